// Package gateway is the single outgoing-request pipeline for the client.
// It attaches the bearer token to every request, normalizes non-2xx
// responses into APIError values, and handles 401 responses centrally by
// wiping persisted auth state and firing the unauthorized hook.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"reimburse/internal/localstore"
)

// EnvBaseURL selects the backend base URL. Absent, the client talks to a
// local development server.
const EnvBaseURL = "REIMBURSE_API_URL"

const defaultBaseURL = "http://localhost:8080"

// loginPath never triggers the unauthorized hook: a rejected login is a
// bad credential, not an expired session.
const loginPath = "/api/auth/login"

// APIError carries a server rejection: the human-readable message (server
// message preferred over transport text), the HTTP status, and the raw
// response body.
type APIError struct {
	Message string
	Status  int
	Body    []byte
}

func (e *APIError) Error() string {
	return e.Message
}

// Client dispatches API requests.
type Client struct {
	baseURL string
	http    *http.Client
	store   *localstore.Store

	mu             sync.Mutex
	onUnauthorized func()
}

// New creates a client reading its base URL from the environment and its
// token from the given store.
func New(store *localstore.Store) *Client {
	base := os.Getenv(EnvBaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	return NewWithBaseURL(store, base)
}

// NewWithBaseURL creates a client against an explicit base URL.
func NewWithBaseURL(store *localstore.Store, baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		store:   store,
	}
}

// BaseURL returns the backend base URL in use.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetUnauthorizedHook registers the function run once per 401 response,
// after persisted auth state has been cleared. The client analog of a
// forced navigation to the login route.
func (c *Client) SetUnauthorizedHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// Do sends one request. A JSON body is marshaled from in when non-nil and
// a 2xx response body is unmarshaled into out when non-nil.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	// Attach the bearer token when one is persisted; without it the
	// request goes out unauthenticated and the server decides.
	if token, err := c.store.Token(); err == nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Central session reset: any expired-session request anywhere
		// self-heals to a clean logged-out state. The hook stays quiet for
		// the login endpoint, where a 401 is a bad credential rather than
		// an expired session.
		_ = c.store.ClearAuth()
		if path != loginPath {
			c.mu.Lock()
			hook := c.onUnauthorized
			c.mu.Unlock()
			if hook != nil {
				hook()
			}
		}
		return &APIError{Message: serverMessage(raw, resp), Status: resp.StatusCode, Body: raw}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Message: serverMessage(raw, resp), Status: resp.StatusCode, Body: raw}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// serverMessage prefers the server-provided message, falling back to the
// transport-level status text.
func serverMessage(raw []byte, resp *http.Response) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return resp.Status
}
