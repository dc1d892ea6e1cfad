package pocketbase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend fakes the PocketBase endpoints the client consumes.
func stubBackend(t *testing.T, token string) (*httptest.Server, *map[string]int) {
	t.Helper()
	calls := map[string]int{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/collections/users/auth-with-password", func(w http.ResponseWriter, r *http.Request) {
		calls["auth"]++

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
	mux.HandleFunc("POST /api/collections/users/auth-refresh", func(w http.ResponseWriter, r *http.Request) {
		calls["refresh"]++

		if r.Header.Get("Authorization") != token {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": 401, "message": "The request requires valid record authorization token."})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":  token,
			"record": map[string]any{"id": "user_1", "email": "user@example.com"},
		})
	})
	mux.HandleFunc("POST /api/collections/notes/records", func(w http.ResponseWriter, r *http.Request) {
		calls["create"]++
		assert.Equal(t, token, r.Header.Get("Authorization"))

		var fields map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))
		fields["id"] = "rec_1"
		_ = json.NewEncoder(w).Encode(fields)
	})
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		calls["health"]++
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "message": "API is healthy."})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClientAuthWithPassword(t *testing.T) {
	token := testToken(t, time.Now().Add(time.Hour))
	srv, _ := stubBackend(t, token)
	client := New(srv.URL)

	var changes int
	client.Auth.OnChange(func(string, *Record) { changes++ })

	record, err := client.AuthWithPassword(context.Background(), "user@example.com", "correct-horse")
	require.NoError(t, err)

	assert.Equal(t, "user_1", record.ID)
	assert.Equal(t, token, client.Auth.Token())
	assert.True(t, client.Auth.IsValid())
	assert.Equal(t, 1, changes)
}

func TestClientAuthWithPasswordRejected(t *testing.T) {
	srv, _ := stubBackend(t, testToken(t, time.Now().Add(time.Hour)))
	client := New(srv.URL)

	_, err := client.AuthWithPassword(context.Background(), "user@example.com", "wrongpass")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	assert.Empty(t, client.Auth.Token(), "failed sign-in must not touch the store")
	assert.False(t, client.Auth.IsValid())
}

func TestClientAuthRefreshInvalidTokenClearsStore(t *testing.T) {
	srv, _ := stubBackend(t, testToken(t, time.Now().Add(time.Hour)))
	client := New(srv.URL)
	client.Auth.Save(testToken(t, time.Now().Add(time.Minute)), &Record{ID: "user_1"})

	_, err := client.AuthRefresh(context.Background())
	require.ErrorIs(t, err, ErrTokenInvalid)
	assert.Empty(t, client.Auth.Token())
}

func TestClientAuthRefreshWithoutToken(t *testing.T) {
	srv, calls := stubBackend(t, testToken(t, time.Now().Add(time.Hour)))
	client := New(srv.URL)

	_, err := client.AuthRefresh(context.Background())
	require.ErrorIs(t, err, ErrTokenInvalid)
	assert.Zero(t, (*calls)["refresh"], "no network call without a token")
}

func TestClientCreate(t *testing.T) {
	token := testToken(t, time.Now().Add(time.Hour))
	srv, _ := stubBackend(t, token)
	client := New(srv.URL)
	client.Auth.Save(token, &Record{ID: "user_1"})

	record, err := client.Create(context.Background(), "notes", map[string]any{"title": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "rec_1", record.ID)

	title, ok := record.Get("title")
	require.True(t, ok)
	assert.Equal(t, "hello", title)
}

func TestClientHealth(t *testing.T) {
	srv, calls := stubBackend(t, testToken(t, time.Now().Add(time.Hour)))
	client := New(srv.URL)

	require.NoError(t, client.Health(context.Background()))
	assert.Equal(t, 1, (*calls)["health"])
}
