// Package session owns the client's authenticated identity: the current
// user, their derived role, and the persisted token backing it.
package session

import (
	"context"
	"sync"

	"reimburse/internal/localstore"
	"reimburse/internal/models"
	"reimburse/internal/services"
)

// Store is the process-wide session state. It is constructed on app start
// in a loading state; Restore resolves it from persisted credentials.
type Store struct {
	auth  *services.AuthService
	local *localstore.Store

	mu      sync.Mutex
	user    *models.User
	loading bool
	// epoch invalidates in-flight restore/login completions once Logout
	// runs, so a late response cannot repopulate a logged-out session.
	epoch uint64
}

// New creates a session store in the loading state.
func New(auth *services.AuthService, local *localstore.Store) *Store {
	return &Store{auth: auth, local: local, loading: true}
}

// Restore resolves the session from persisted state: a stored token and
// cached user are validated against the backend; validation failure or
// absence clears all persisted auth state and leaves the session
// unauthenticated.
func (s *Store) Restore(ctx context.Context) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	token, err := s.local.Token()
	if err != nil || token == "" {
		s.finishRestore(epoch, nil)
		return
	}
	user, err := s.local.CachedUser()
	if err != nil || user == nil {
		_ = s.local.ClearAuth()
		s.finishRestore(epoch, nil)
		return
	}

	if _, err := s.auth.Test(ctx); err != nil {
		// The gateway already wiped persisted state on 401; clear it here
		// too so transport failures do not leave a dangling token.
		_ = s.local.ClearAuth()
		s.finishRestore(epoch, nil)
		return
	}

	s.finishRestore(epoch, user)
}

func (s *Store) finishRestore(epoch uint64, user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		// Logged out while the validation call was in flight.
		return
	}
	s.user = user
	s.loading = false
}

// Login authenticates and persists the session. On failure the session
// remains unauthenticated and the error is returned for display.
func (s *Store) Login(ctx context.Context, username, password string) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	resp, err := s.auth.Login(ctx, services.LoginRequest{Username: username, Password: password})
	if err != nil {
		return err
	}

	user := &models.User{
		ID:       resp.ID,
		Username: resp.Username,
		Email:    resp.Email,
		Roles:    resp.Roles,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil
	}
	if err := s.local.SaveAuth(resp.Token, user); err != nil {
		return err
	}
	s.user = user
	s.loading = false
	return nil
}

// Logout clears the session. Synchronous, always succeeds.
func (s *Store) Logout() {
	s.mu.Lock()
	s.epoch++
	s.user = nil
	s.loading = false
	s.mu.Unlock()
	_ = s.local.ClearAuth()
}

// HandleUnauthorized transitions the in-memory session to logged out.
// Wired as the gateway's 401 hook; persisted state is already cleared by
// the time it runs.
func (s *Store) HandleUnauthorized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.user = nil
	s.loading = false
}

// User returns the current user, or nil when unauthenticated.
func (s *Store) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// IsAuthenticated reports whether a user is logged in.
func (s *Store) IsAuthenticated() bool {
	return s.User() != nil
}

// IsLoading reports whether session restoration is still unresolved.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// HasRole reports whether the current user holds the role (ROLE_<UPPER>
// convention, case-insensitive). False when logged out.
func (s *Store) HasRole(role string) bool {
	return s.User().HasRole(role)
}

// PrimaryRole returns the short role name driving navigation, resolved by
// the fixed priority admin > finance > manager > employee. Empty when
// logged out or when no recognized role is held.
func (s *Store) PrimaryRole() string {
	user := s.User()
	if user == nil {
		return ""
	}
	return models.PrimaryRole(user.Roles)
}
