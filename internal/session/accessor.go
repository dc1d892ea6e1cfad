// Package session hands out correctly-scoped PocketBase client handles and
// keeps their auth state mirrored into cookies.
//
// Two execution contexts exist and each gets its own entry point rather than
// runtime sniffing: ForRequest builds a fresh handle per HTTP request seeded
// from the request's auth cookie, and Shared returns the lazily-constructed
// process-wide singleton whose auth state persists through a CookieStore.
package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pocketchat-dev/pocketchat/backend/internal/config"
	"github.com/pocketchat-dev/pocketchat/backend/internal/pocketbase"
)

// Accessor produces client handles for both execution contexts.
type Accessor struct {
	cfg   config.BackendConfig
	store CookieStore

	mu     sync.Mutex
	shared *pocketbase.Client
}

// New creates an accessor. The store backs the shared client's cookie
// mirror; it may be nil when no long-lived session is wanted.
func New(cfg config.BackendConfig, store CookieStore) *Accessor {
	return &Accessor{cfg: cfg, store: store}
}

// ForRequest constructs a new client for one HTTP request. The handle is
// seeded from the request's auth cookie, and every subsequent auth change
// on it is mirrored into a Set-Cookie header on the response. An expired or
// garbled incoming token is cleared (past-expiry cookie written), not
// reported as an error.
//
// Handles from ForRequest are never shared across requests.
func (a *Accessor) ForRequest(w http.ResponseWriter, r *http.Request) *pocketbase.Client {
	client := pocketbase.New(a.cfg.URL)

	if cookie, err := r.Cookie(a.cfg.AuthCookieName); err == nil {
		client.Auth.LoadFromCookieValue(cookie.Value)
	}

	client.Auth.OnChange(func(string, *pocketbase.Record) {
		http.SetCookie(w, client.Auth.ExportCookie(a.cfg.AuthCookieName))
	})

	// The listener is attached after seeding, so a valid cookie passes
	// through untouched while an expired one is cleared on the response.
	if client.Auth.Token() != "" && !client.Auth.IsValid() {
		client.Auth.Clear()
	}

	return client
}

// Shared returns the process-wide singleton, constructing it on first call.
// Construction loads any persisted session from the cookie store and
// registers a listener that re-serializes the session on every auth change.
func (a *Accessor) Shared() *pocketbase.Client {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.shared != nil {
		return a.shared
	}

	client := pocketbase.New(a.cfg.URL)

	if a.store != nil {
		if value, err := a.store.Get(); err == nil {
			client.Auth.LoadFromCookieValue(value)
		}

		store := a.store
		name := a.cfg.AuthCookieName
		client.Auth.OnChange(func(token string, _ *pocketbase.Record) {
			if token == "" {
				if err := store.Clear(); err != nil {
					log.Warn().Err(err).Msg("session: failed to clear persisted cookie")
				}
				return
			}
			if err := store.Set(client.Auth.ExportCookie(name).Value); err != nil {
				log.Warn().Err(err).Msg("session: failed to persist cookie")
			}
		})
	}

	a.shared = client
	return client
}

// Reset drops the shared singleton so the next Shared call rebuilds it.
// The persisted cookie is left alone; sign out through the client to clear it.
func (a *Accessor) Reset() {
	a.mu.Lock()
	a.shared = nil
	a.mu.Unlock()
}

// SignInWithPassword authenticates the handle with an identity/password
// pair. One network round trip; on success the handle's change listener has
// already re-synchronized the cookie mirror.
func (a *Accessor) SignInWithPassword(ctx context.Context, client *pocketbase.Client, identity, secret string) (*pocketbase.Record, error) {
	return client.AuthWithPassword(ctx, identity, secret)
}

// SignUpWithPassword creates an account and then authenticates it: two
// round trips, create-account first.
func (a *Accessor) SignUpWithPassword(ctx context.Context, client *pocketbase.Client, identity, secret string) (*pocketbase.Record, error) {
	fields := map[string]any{
		"email":           identity,
		"password":        secret,
		"passwordConfirm": secret,
	}
	if _, err := client.Create(ctx, "users", fields); err != nil {
		return nil, err
	}
	return client.AuthWithPassword(ctx, identity, secret)
}

// SignInWithOAuthCode completes the server leg of an OAuth2 flow by
// exchanging the provider's authorization code for a session.
func (a *Accessor) SignInWithOAuthCode(ctx context.Context, client *pocketbase.Client, provider, code, codeVerifier, redirectURL string) (*pocketbase.Record, error) {
	return client.AuthWithOAuth2Code(ctx, provider, code, codeVerifier, redirectURL)
}

// SignOut clears the handle's session. Purely local, safe to call when
// already signed out.
func (a *Accessor) SignOut(client *pocketbase.Client) {
	client.Auth.Clear()
}

// IsAuthenticated reports token validity from memory; no network call.
func IsAuthenticated(client *pocketbase.Client) bool {
	return client.Auth.IsValid()
}

// CurrentUser returns the in-memory user record; no network call.
func CurrentUser(client *pocketbase.Client) *pocketbase.Record {
	if !client.Auth.IsValid() {
		return nil
	}
	return client.Auth.Record()
}
