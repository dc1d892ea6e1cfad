// Package pocketbase is a minimal REST client for the PocketBase API,
// covering the auth and record operations this service consumes.
package pocketbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrTokenInvalid marks a session token the backend refused. Callers treat
// it as "not authenticated" rather than a fault.
var ErrTokenInvalid = errors.New("auth token is missing or invalid")

// APIError is a non-2xx response from PocketBase.
type APIError struct {
	Status  int            `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pocketbase: %d %s", e.Status, e.Message)
}

// Client wraps network access to one PocketBase instance plus the current
// auth state. A Client is either created fresh per request or held as a
// long-lived shared instance; the session accessor decides which.
type Client struct {
	baseURL        string
	authCollection string
	http           *http.Client

	// Auth owns the session token for this handle.
	Auth *AuthStore
}

// New creates a client for the given base URL, authenticating against the
// standard "users" collection.
func New(baseURL string) *Client {
	return &Client{
		baseURL:        baseURL,
		authCollection: "users",
		http:           &http.Client{Timeout: 30 * time.Second},
		Auth:           NewAuthStore(),
	}
}

// BaseURL returns the configured instance address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type authResponse struct {
	Token  string  `json:"token"`
	Record *Record `json:"record"`
}

// AuthWithPassword signs in with an identity/password pair and stores the
// resulting session. One network round trip; failures are returned, the
// store is left untouched.
func (c *Client) AuthWithPassword(ctx context.Context, identity, password string) (*Record, error) {
	body := map[string]any{"identity": identity, "password": password}

	var resp authResponse
	path := fmt.Sprintf("/api/collections/%s/auth-with-password", c.authCollection)
	if err := c.send(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	c.Auth.Save(resp.Token, resp.Record)
	return resp.Record, nil
}

// AuthWithOAuth2Code exchanges an OAuth2 authorization code for a session.
func (c *Client) AuthWithOAuth2Code(ctx context.Context, provider, code, codeVerifier, redirectURL string) (*Record, error) {
	body := map[string]any{
		"provider":     provider,
		"code":         code,
		"codeVerifier": codeVerifier,
		"redirectUrl":  redirectURL,
	}

	var resp authResponse
	path := fmt.Sprintf("/api/collections/%s/auth-with-oauth2", c.authCollection)
	if err := c.send(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	c.Auth.Save(resp.Token, resp.Record)
	return resp.Record, nil
}

// AuthRefresh validates the stored token against the backend and refreshes
// it. A rejected token clears the store and returns ErrTokenInvalid.
func (c *Client) AuthRefresh(ctx context.Context) (*Record, error) {
	if c.Auth.Token() == "" {
		return nil, ErrTokenInvalid
	}

	var resp authResponse
	path := fmt.Sprintf("/api/collections/%s/auth-refresh", c.authCollection)
	if err := c.send(ctx, http.MethodPost, path, nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized ||
			apiErr.Status == http.StatusForbidden || apiErr.Status == http.StatusNotFound) {
			c.Auth.Clear()
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	c.Auth.Save(resp.Token, resp.Record)
	return resp.Record, nil
}

// Create inserts a record into the named collection.
func (c *Client) Create(ctx context.Context, collection string, fields map[string]any) (*Record, error) {
	var record Record
	path := fmt.Sprintf("/api/collections/%s/records", collection)
	if err := c.send(ctx, http.MethodPost, path, fields, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Health probes the instance's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.send(ctx, http.MethodGet, "/api/health", nil, nil)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if token := c.Auth.Token(); token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pocketbase request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: resp.Status}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
