package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/pocketchat-dev/pocketchat/backend/internal/config"
	"github.com/pocketchat-dev/pocketchat/backend/internal/pocketbase"
	"github.com/pocketchat-dev/pocketchat/backend/internal/session"
)

func testToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "user_1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token err: %v", err)
	}
	return token
}

func setupRouter(t *testing.T) (*chi.Mux, string) {
	t.Helper()
	token := testToken(t, time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/collections/users/auth-with-password", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "correct-horse" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": 400, "message": "Failed to authenticate."})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":  token,
			"record": map[string]any{"id": "user_1", "email": body["identity"], "verified": true},
		})
	})
	mux.HandleFunc("POST /api/collections/users/records", func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		_ = json.NewDecoder(r.Body).Decode(&fields)
		fields["id"] = "user_1"
		_ = json.NewEncoder(w).Encode(fields)
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	cfg := config.BackendConfig{URL: backend.URL, PublicURL: backend.URL, AuthCookieName: "pb_auth"}
	handler := New(session.New(cfg, nil), cfg)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, token
}

func TestLoginSetsCookie(t *testing.T) {
	r, token := setupRouter(t)

	payload := []byte(`{"identity":"user@example.com","password":"correct-horse"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	cookies := resp.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "pb_auth" {
		t.Fatalf("expected one pb_auth cookie, got %+v", cookies)
	}

	mirror := pocketbase.NewAuthStore()
	mirror.LoadFromCookieValue(cookies[0].Value)
	if mirror.Token() != token {
		t.Fatal("cookie mirror does not match issued token")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	r, _ := setupRouter(t)

	payload := []byte(`{"identity":"user@example.com","password":"wrongpass"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(payload))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if cookies := resp.Result().Cookies(); len(cookies) != 0 {
		t.Fatalf("failed login must not set cookies, got %+v", cookies)
	}
}

func TestLoginMissingFields(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte(`{}`)))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSignupCreatesAndAuthenticates(t *testing.T) {
	r, _ := setupRouter(t)

	payload := []byte(`{"identity":"new@example.com","password":"correct-horse"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/signup", bytes.NewReader(payload))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if cookies := resp.Result().Cookies(); len(cookies) != 1 {
		t.Fatalf("expected auth cookie after signup, got %+v", cookies)
	}
}

func TestMeWithValidCookie(t *testing.T) {
	r, token := setupRouter(t)

	store := pocketbase.NewAuthStore()
	store.Save(token, &pocketbase.Record{ID: "user_1", Email: "user@example.com"})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "pb_auth", Value: store.ExportCookie("pb_auth").Value})
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body.User.ID != "user_1" {
		t.Fatalf("unexpected user: %+v", body)
	}
}

func TestMeWithoutCookie(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMeWithExpiredCookieClearsIt(t *testing.T) {
	r, _ := setupRouter(t)

	store := pocketbase.NewAuthStore()
	store.Save(testToken(t, time.Now().Add(-time.Hour)), &pocketbase.Record{ID: "user_1"})

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "pb_auth", Value: store.ExportCookie("pb_auth").Value})
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	cookies := resp.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected expired cookie on response, got %+v", cookies)
	}
}

func TestLogoutClearsCookieAndIsIdempotent(t *testing.T) {
	r, token := setupRouter(t)

	store := pocketbase.NewAuthStore()
	store.Save(token, &pocketbase.Record{ID: "user_1"})

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "pb_auth", Value: store.ExportCookie("pb_auth").Value})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	cookies := resp.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected expired cookie, got %+v", cookies)
	}

	// logging out while already signed out still succeeds
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat logout, got %d", resp.Code)
	}
}

func TestConfigExposesPublicURL(t *testing.T) {
	r, _ := setupRouter(t)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/auth/config", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["backendUrl"] == "" || body["cookieName"] != "pb_auth" {
		t.Fatalf("unexpected config: %+v", body)
	}
}
