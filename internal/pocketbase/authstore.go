package pocketbase

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OnChangeFunc observes authentication state changes. The token is empty
// after a clear.
type OnChangeFunc func(token string, record *Record)

// AuthStore holds the current session token and its user record. It is the
// single owner of the in-memory auth state for one client handle; every
// mutation goes through Save or Clear, and each fires the registered
// listeners exactly once.
type AuthStore struct {
	mu        sync.RWMutex
	token     string
	record    *Record
	listeners []OnChangeFunc
}

// NewAuthStore returns an empty store.
func NewAuthStore() *AuthStore {
	return &AuthStore{}
}

// OnChange registers a listener for subsequent auth state changes.
func (s *AuthStore) OnChange(fn OnChangeFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Save replaces the stored token and record, then notifies listeners.
func (s *AuthStore) Save(token string, record *Record) {
	s.mu.Lock()
	s.token = token
	s.record = record
	listeners := append([]OnChangeFunc(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(token, record)
	}
}

// Clear drops the stored token and record, then notifies listeners.
func (s *AuthStore) Clear() {
	s.Save("", nil)
}

// Token returns the current session token, or "" when signed out.
func (s *AuthStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Record returns the current user record, or nil when signed out.
func (s *AuthStore) Record() *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// IsValid reports whether a token is present and not yet expired. The check
// is purely local: the token's exp claim is read without verifying the
// signature, which belongs to the backend.
func (s *AuthStore) IsValid() bool {
	token := s.Token()
	if token == "" {
		return false
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.After(time.Now())
}

// cookiePayload is the serialized shape stored in the auth cookie, matching
// what PocketBase's own client SDKs export.
type cookiePayload struct {
	Token  string  `json:"token"`
	Record *Record `json:"record,omitempty"`
}

// ExportCookie serializes the current auth state into a cookie. A signed-out
// store yields an expired cookie so the browser drops its stale copy.
func (s *AuthStore) ExportCookie(name string) *http.Cookie {
	s.mu.RLock()
	token, record := s.token, s.record
	s.mu.RUnlock()

	cookie := &http.Cookie{
		Name:     name,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	if token == "" {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
		return cookie
	}

	payload, err := json.Marshal(cookiePayload{Token: token, Record: record})
	if err != nil {
		cookie.MaxAge = -1
		return cookie
	}

	cookie.Value = url.QueryEscape(string(payload))
	return cookie
}

// LoadFromCookieValue seeds the store from a serialized cookie value.
// Unparseable or empty values leave the store signed out without firing
// listeners.
func (s *AuthStore) LoadFromCookieValue(value string) {
	if value == "" {
		return
	}

	decoded, err := url.QueryUnescape(value)
	if err != nil {
		decoded = value
	}

	var payload cookiePayload
	if err := json.Unmarshal([]byte(decoded), &payload); err != nil {
		return
	}
	if payload.Token == "" {
		return
	}

	s.Save(payload.Token, payload.Record)
}
