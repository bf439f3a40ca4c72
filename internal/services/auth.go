// Package services provides typed request/response wrappers for the
// backend endpoints. Pure transport, no business logic.
package services

import (
	"context"
	"net/http"

	"reimburse/internal/gateway"
)

// AuthResponse is the backend's login response.
type AuthResponse struct {
	Token    string   `json:"token"`
	Type     string   `json:"type"`
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest carries new-account fields.
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// MessageResponse is a plain backend acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// AuthService wraps the auth endpoints.
type AuthService struct {
	client *gateway.Client
}

// NewAuth creates an AuthService.
func NewAuth(client *gateway.Client) *AuthService {
	return &AuthService{client: client}
}

// Login authenticates with username and password.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	var resp AuthResponse
	if err := s.client.Do(ctx, http.MethodPost, "/api/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a new account.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*MessageResponse, error) {
	var resp MessageResponse
	if err := s.client.Do(ctx, http.MethodPost, "/api/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Test validates the current bearer token.
func (s *AuthService) Test(ctx context.Context) (*MessageResponse, error) {
	var resp MessageResponse
	if err := s.client.Do(ctx, http.MethodGet, "/api/auth/test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
