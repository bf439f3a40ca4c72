package api

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"

	"reimburse/internal/models"
)

// UpdateUserRequest is the admin user-update payload. Nil fields are left
// unchanged.
type UpdateUserRequest struct {
	Email      *string   `json:"email"`
	FirstName  *string   `json:"firstName"`
	LastName   *string   `json:"lastName"`
	Department *string   `json:"department"`
	Roles      *[]string `json:"roles"`
}

// ListUsers returns all users (admin only).
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers()
	if err != nil {
		log.Printf("ListUsers error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser returns a single user by ID (admin only).
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := h.db.GetUserByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("GetUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUser updates a user's profile and roles (admin only).
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	var req UpdateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.db.GetUserByID(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("UpdateUser lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Department != nil {
		user.Department = *req.Department
	}
	if req.Roles != nil {
		if len(*req.Roles) == 0 {
			writeError(w, http.StatusBadRequest, "A user must hold at least one role")
			return
		}
		user.Roles = *req.Roles
	}

	updated, err := h.db.UpdateUser(user)
	if err != nil {
		log.Printf("UpdateUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteUser removes a user (admin only). Admins cannot delete their own
// account, which would lock them out mid-session.
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	if GetUserFromContext(r).ID == id {
		writeError(w, http.StatusBadRequest, "Cannot delete your own account")
		return
	}

	err = h.db.DeleteUser(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("DeleteUser error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
