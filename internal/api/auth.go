package api

import (
	"log"
	"net/http"
	"strings"

	"reimburse/internal/auth"
	"reimburse/internal/models"
)

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token    string   `json:"token"`
	Type     string   `json:"type"`
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// RegisterRequest is the account creation payload.
type RegisterRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Login authenticates a user and issues a bearer token.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.db.GetUserByUsername(strings.TrimSpace(req.Username))
	if err != nil || !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := auth.IssueToken(h.jwtSecret, user)
	if err != nil {
		log.Printf("Failed to issue token for %s: %v", user.Username, err)
		writeError(w, http.StatusInternalServerError, "Could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:    token,
		Type:     "Bearer",
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
	})
}

// Register creates a new employee account.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if existing, err := h.db.GetUserByUsername(req.Username); err == nil && existing != nil {
		writeError(w, http.StatusConflict, "Username is already taken")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not create account")
		return
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Roles:        []string{models.RoleEmployee},
		PasswordHash: hash,
	}
	if _, err := h.db.CreateUser(user); err != nil {
		log.Printf("Failed to create user %s: %v", req.Username, err)
		writeError(w, http.StatusInternalServerError, "Could not create account")
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "User registered successfully"})
}

// TestAuth confirms the caller's bearer token is valid.
func (h *Handlers) TestAuth(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Token is valid for " + user.Username})
}
