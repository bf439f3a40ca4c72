package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"reimburse/internal/gateway"
	"reimburse/internal/localstore"
	"reimburse/internal/models"
	"reimburse/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal auth backend: one valid credential pair and
// one valid token.
type fakeBackend struct {
	username string
	password string
	token    string
	roles    []string
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Username != f.username || req.Password != f.password {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "Invalid username or password"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token":    f.token,
			"type":     "Bearer",
			"id":       1,
			"username": f.username,
			"email":    f.username + "@example.com",
			"roles":    f.roles,
		})
	})
	mux.HandleFunc("GET /api/auth/test", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "Invalid or expired token"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"message": "Token is valid"})
	})
	return mux
}

type fixture struct {
	store   *Store
	local   *localstore.Store
	client  *gateway.Client
	backend *fakeBackend
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := &fakeBackend{
		username: "finance.jane",
		password: "testpass123",
		token:    "valid-token",
		roles:    []string{models.RoleEmployee, models.RoleFinance},
	}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	local, err := localstore.Open(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	client := gateway.NewWithBaseURL(local, srv.URL)
	store := New(services.NewAuth(client), local)
	client.SetUnauthorizedHook(store.HandleUnauthorized)

	return &fixture{store: store, local: local, client: client, backend: backend}
}

func TestNewStoreIsLoading(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.store.IsLoading())
	assert.False(t, f.store.IsAuthenticated())
}

func TestRestoreWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	f.store.Restore(context.Background())

	assert.False(t, f.store.IsLoading())
	assert.False(t, f.store.IsAuthenticated())
	assert.Nil(t, f.store.User())
}

func TestRestoreWithValidToken(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.local.SaveAuth("valid-token", &models.User{
		ID:       1,
		Username: "finance.jane",
		Roles:    []string{models.RoleEmployee, models.RoleFinance},
	}))

	f.store.Restore(context.Background())

	assert.False(t, f.store.IsLoading())
	assert.True(t, f.store.IsAuthenticated())
	assert.Equal(t, "finance.jane", f.store.User().Username)
	assert.Equal(t, "finance", f.store.PrimaryRole(), "primary role mapped from ROLE_FINANCE")
}

func TestRestoreWithInvalidTokenWipesState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.local.SaveAuth("stale-token", &models.User{ID: 1, Username: "finance.jane"}))

	f.store.Restore(context.Background())

	assert.False(t, f.store.IsAuthenticated())
	assert.Nil(t, f.store.User())

	token, err := f.local.Token()
	require.NoError(t, err)
	assert.Empty(t, token, "persisted token removed after failed validation")
	user, err := f.local.CachedUser()
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestLoginSuccessPersists(t *testing.T) {
	f := newFixture(t)
	f.store.Restore(context.Background())

	require.NoError(t, f.store.Login(context.Background(), "finance.jane", "testpass123"))

	assert.True(t, f.store.IsAuthenticated())
	assert.True(t, f.store.HasRole("finance"))
	assert.True(t, f.store.HasRole("ROLE_FINANCE"))
	assert.False(t, f.store.HasRole("admin"))

	token, err := f.local.Token()
	require.NoError(t, err)
	assert.Equal(t, "valid-token", token)
}

func TestLoginFailureStaysUnauthenticated(t *testing.T) {
	f := newFixture(t)
	f.store.Restore(context.Background())

	err := f.store.Login(context.Background(), "finance.jane", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid username or password")
	assert.False(t, f.store.IsAuthenticated())
}

func TestLogoutClearsEverything(t *testing.T) {
	f := newFixture(t)
	f.store.Restore(context.Background())
	require.NoError(t, f.store.Login(context.Background(), "finance.jane", "testpass123"))

	f.store.Logout()

	assert.False(t, f.store.IsAuthenticated())
	assert.Empty(t, f.store.PrimaryRole())
	token, err := f.local.Token()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestUnauthorizedHookLogsOut(t *testing.T) {
	f := newFixture(t)
	f.store.Restore(context.Background())
	require.NoError(t, f.store.Login(context.Background(), "finance.jane", "testpass123"))

	// Simulate the backend invalidating the token: the next authenticated
	// call 401s, the gateway wipes persisted state and the hook drops the
	// in-memory session.
	f.backend.token = "rotated"
	_, err := services.NewAuth(f.client).Test(context.Background())
	require.Error(t, err)

	assert.False(t, f.store.IsAuthenticated())
	token, err := f.local.Token()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestLateRestoreAfterLogoutIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.store.Restore(context.Background())

	// A restore that was in flight when Logout ran carries the old epoch;
	// its completion must not repopulate the logged-out session.
	f.store.mu.Lock()
	staleEpoch := f.store.epoch
	f.store.mu.Unlock()

	f.store.Logout()
	f.store.finishRestore(staleEpoch, &models.User{ID: 9, Username: "ghost"})

	assert.False(t, f.store.IsAuthenticated(), "stale completion cannot repopulate the session")
	assert.Nil(t, f.store.User())
}
