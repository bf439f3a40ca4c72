package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"reimburse/internal/auth"
	"reimburse/internal/models"
	"reimburse/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey contextKey = "user"

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db        *storage.DB
	jwtSecret []byte
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, jwtSecret []byte) *Handlers {
	return &Handlers{db: db, jwtSecret: jwtSecret}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// RequireAuth wraps handlers to require a valid bearer token. The user is
// loaded fresh from the database so role changes take effect immediately,
// not at the next token issue.
func (h *Handlers) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "Missing Authorization header")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
			return
		}

		claims, err := auth.ParseToken(h.jwtSecret, parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		user, err := h.db.GetUserByID(claims.UserID)
		if err != nil {
			// Token is valid but the account is gone (e.g. deleted by an
			// admin); treat it the same as an expired session.
			writeError(w, http.StatusUnauthorized, "Unknown user")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps an authenticated handler to require at least one of
// the given roles.
func (h *Handlers) RequireRole(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUserFromContext(r)
		for _, role := range roles {
			if user.HasRole(role) {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusForbidden, "Insufficient permissions")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
