package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pocketchat-dev/pocketchat/backend/internal/config"
	"github.com/pocketchat-dev/pocketchat/backend/internal/pocketbase"
	"github.com/pocketchat-dev/pocketchat/backend/internal/session"
	"github.com/pocketchat-dev/pocketchat/backend/pkg/utils"
)

// Handler exposes the starter's authentication surface. Every request gets
// its own client handle from the accessor; the handle's change listener
// mirrors auth state into the response cookie.
type Handler struct {
	accessor *session.Accessor
	cfg      config.BackendConfig
}

// New creates the auth handler.
func New(accessor *session.Accessor, cfg config.BackendConfig) *Handler {
	return &Handler{accessor: accessor, cfg: cfg}
}

// RegisterRoutes mounts the auth endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/signup", h.handleSignup)
	r.Post("/auth/oauth", h.handleOAuth)
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/auth/me", h.handleMe)
	r.Get("/auth/config", h.handleConfig)
}

type credentialsPayload struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Identity == "" || payload.Password == "" {
		utils.RespondError(w, http.StatusBadRequest, "identity and password are required")
		return
	}

	client := h.accessor.ForRequest(w, r)
	record, err := h.accessor.SignInWithPassword(r.Context(), client, payload.Identity, payload.Password)
	if err != nil {
		h.respondAuthError(w, err, http.StatusUnauthorized, "invalid email or password")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"user": record})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Identity == "" || payload.Password == "" {
		utils.RespondError(w, http.StatusBadRequest, "identity and password are required")
		return
	}

	client := h.accessor.ForRequest(w, r)
	record, err := h.accessor.SignUpWithPassword(r.Context(), client, payload.Identity, payload.Password)
	if err != nil {
		h.respondAuthError(w, err, http.StatusBadRequest, "failed to create account")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{"user": record})
}

type oauthPayload struct {
	Provider     string `json:"provider"`
	Code         string `json:"code"`
	CodeVerifier string `json:"codeVerifier"`
	RedirectURL  string `json:"redirectUrl"`
}

// handleOAuth completes the code-exchange leg of an OAuth2 sign-in started
// by the browser.
func (h *Handler) handleOAuth(w http.ResponseWriter, r *http.Request) {
	var payload oauthPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Provider == "" || payload.Code == "" {
		utils.RespondError(w, http.StatusBadRequest, "provider and code are required")
		return
	}

	client := h.accessor.ForRequest(w, r)
	record, err := h.accessor.SignInWithOAuthCode(r.Context(), client, payload.Provider, payload.Code, payload.CodeVerifier, payload.RedirectURL)
	if err != nil {
		h.respondAuthError(w, err, http.StatusUnauthorized, "oauth sign-in failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"user": record})
}

// handleLogout clears the session. Idempotent: logging out while signed out
// still succeeds.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	client := h.accessor.ForRequest(w, r)
	h.accessor.SignOut(client)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// handleMe reports the current user from the request's cookie. Pure
// in-memory read; an expired cookie was already cleared by the accessor.
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	client := h.accessor.ForRequest(w, r)
	if !session.IsAuthenticated(client) {
		utils.RespondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"user": session.CurrentUser(client)})
}

// handleConfig tells browsers how to reach the backend directly.
func (h *Handler) handleConfig(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"backendUrl": h.cfg.PublicURL,
		"cookieName": h.cfg.AuthCookieName,
	})
}

// respondAuthError maps backend rejections to the given status with a
// form-friendly message, and transport failures to a generic 502 with the
// detail kept in the logs.
func (h *Handler) respondAuthError(w http.ResponseWriter, err error, status int, message string) {
	var apiErr *pocketbase.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		utils.RespondError(w, status, message)
		return
	}

	log.Error().Err(err).Msg("[auth] backend request failed")
	utils.RespondError(w, http.StatusBadGateway, "authentication service unavailable")
}
