package services

import (
	"context"
	"net/http"
	"strconv"

	"reimburse/internal/gateway"
	"reimburse/internal/models"
)

// UpdateUserRequest is the admin user-update payload. Nil fields are left
// unchanged by the server.
type UpdateUserRequest struct {
	Email      *string   `json:"email,omitempty"`
	FirstName  *string   `json:"firstName,omitempty"`
	LastName   *string   `json:"lastName,omitempty"`
	Department *string   `json:"department,omitempty"`
	Roles      *[]string `json:"roles,omitempty"`
}

// UserService wraps the admin user-management endpoints.
type UserService struct {
	client *gateway.Client
}

// NewUsers creates a UserService.
func NewUsers(client *gateway.Client) *UserService {
	return &UserService{client: client}
}

// List returns all users.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.client.Do(ctx, http.MethodGet, "/api/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ByID returns a single user.
func (s *UserService) ByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := s.client.Do(ctx, http.MethodGet, "/api/users/"+strconv.FormatInt(id, 10), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates a user's profile and roles.
func (s *UserService) Update(ctx context.Context, id int64, req UpdateUserRequest) (*models.User, error) {
	var user models.User
	if err := s.client.Do(ctx, http.MethodPut, "/api/users/"+strconv.FormatInt(id, 10), req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Delete removes a user.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	return s.client.Do(ctx, http.MethodDelete, "/api/users/"+strconv.FormatInt(id, 10), nil, nil)
}
