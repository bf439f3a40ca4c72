package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"reimburse/internal/api"
	"reimburse/internal/auth"
	"reimburse/internal/gateway"
	"reimburse/internal/models"
	"reimburse/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startBackend runs the real API stack in-process and points the client
// env at it. Users are seeded with the password "testpass123".
func startBackend(t *testing.T) {
	t.Helper()

	db, err := storage.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hash, err := auth.HashPassword("testpass123")
	require.NoError(t, err)
	for _, u := range []struct {
		name  string
		roles []string
	}{
		{"employee.eve", []string{models.RoleEmployee}},
		{"manager.mike", []string{models.RoleEmployee, models.RoleManager}},
		{"finance.jane", []string{models.RoleEmployee, models.RoleFinance}},
		{"admin.root", []string{models.RoleAdmin}},
	} {
		_, err := db.CreateUser(&models.User{Username: u.name, Email: u.name + "@example.com", Roles: u.roles, PasswordHash: hash})
		require.NoError(t, err)
	}

	h := api.NewHandlers(db, []byte("test-secret"))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.Handle("GET /api/auth/test", h.RequireAuth(http.HandlerFunc(h.TestAuth)))
	mux.Handle("POST /api/bills", h.RequireAuth(http.HandlerFunc(h.CreateBill)))
	mux.Handle("GET /api/bills/mine", h.RequireAuth(http.HandlerFunc(h.MyBills)))
	mux.Handle("GET /api/bills/pending",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.PendingBills), models.RoleManager, models.RoleAdmin)))
	mux.Handle("GET /api/bills/approved",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.ApprovedBills), models.RoleFinance, models.RoleAdmin)))
	mux.Handle("GET /api/bills/{id}", h.RequireAuth(http.HandlerFunc(h.GetBill)))
	mux.Handle("PATCH /api/bills/{id}/approve",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.ApproveBill), models.RoleManager)))
	mux.Handle("PATCH /api/bills/{id}/reject",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.RejectBill), models.RoleManager)))
	mux.Handle("PATCH /api/bills/{id}/close",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.CloseBill), models.RoleFinance)))
	mux.Handle("GET /api/users",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.ListUsers), models.RoleAdmin)))
	mux.Handle("PUT /api/users/{id}",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.UpdateUser), models.RoleAdmin)))
	mux.Handle("DELETE /api/users/{id}",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.DeleteUser), models.RoleAdmin)))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Setenv(gateway.EnvBaseURL, srv.URL)
}

// cli drives run() as one identity: its own credential store, shared
// backend.
type cli struct {
	t          *testing.T
	configPath string
}

func newCLI(t *testing.T) *cli {
	return &cli{t: t, configPath: filepath.Join(t.TempDir(), "creds.db")}
}

func (c *cli) run(stdin string, args ...string) (stdout, stderr string, err error) {
	c.t.Helper()
	c.t.Setenv(EnvConfigPath, c.configPath)
	var out, errOut bytes.Buffer
	err = run(args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), errOut.String(), err
}

func (c *cli) login(user string) {
	c.t.Helper()
	stdout, _, err := c.run("", "login", "-user", user, "-password", "testpass123")
	require.NoError(c.t, err)
	require.Contains(c.t, stdout, "Signed in as "+user)
}

func TestHelpPrintsUsage(t *testing.T) {
	startBackend(t)
	c := newCLI(t)

	stdout, _, err := c.run("", "help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Usage: reimburse")
	assert.Contains(t, stdout, "submit")
}

func TestMissingCommand(t *testing.T) {
	startBackend(t)
	c := newCLI(t)

	stdout, _, err := c.run("")
	require.EqualError(t, err, "missing command")
	assert.Contains(t, stdout, "Usage: reimburse")
}

func TestUnknownCommand(t *testing.T) {
	startBackend(t)
	c := newCLI(t)

	_, _, err := c.run("", "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "frobnicate"`)
}

func TestLoginWhoamiLogout(t *testing.T) {
	startBackend(t)
	c := newCLI(t)

	stdout, _, err := c.run("", "login", "-user", "finance.jane", "-password", "testpass123")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed in as finance.jane (finance)")

	stdout, _, err = c.run("", "whoami")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Username:     finance.jane")
	assert.Contains(t, stdout, "Primary role: finance")
	assert.Contains(t, stdout, models.RoleFinance)

	stdout, _, err = c.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Signed out.")

	_, _, err = c.run("", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")
}

func TestLoginPromptsForPassword(t *testing.T) {
	startBackend(t)
	c := newCLI(t)

	stdout, _, err := c.run("testpass123\n", "login", "-user", "employee.eve")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Password:")
	assert.Contains(t, stdout, "Signed in as employee.eve (employee)")
}

func TestLoginBadCredentials(t *testing.T) {
	startBackend(t)
	c := newCLI(t)

	_, stderrOut, err := c.run("", "login", "-user", "employee.eve", "-password", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
	assert.Empty(t, stderrOut, "bad credentials are not an expired session")

	_, _, err = c.run("", "whoami")
	require.Error(t, err, "failed login leaves no session behind")
}

func TestSubmitRequiresFlags(t *testing.T) {
	startBackend(t)
	c := newCLI(t)
	c.login("employee.eve")

	_, _, err := c.run("", "submit", "-title", "Taxi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-amount")
}

func TestSubmitShowsUpdatedList(t *testing.T) {
	startBackend(t)
	c := newCLI(t)
	c.login("employee.eve")

	stdout, _, err := c.run("", "submit", "-title", "Taxi to airport", "-amount", "42.50")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Reimbursement request "Taxi to airport" submitted`)
	assert.Contains(t, stdout, "PENDING")

	stdout, _, err = c.run("", "mine")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Taxi to airport")
	assert.Contains(t, stdout, "42.50")
}

func TestEmployeeRedirectedFromPendingQueue(t *testing.T) {
	startBackend(t)
	c := newCLI(t)
	c.login("employee.eve")

	_, _, err := c.run("", "submit", "-title", "Lunch", "-amount", "12")
	require.NoError(t, err)

	stdout, _, err := c.run("", "pending")
	require.NoError(t, err, "role redirect is not an error")
	assert.Contains(t, stdout, "Your role does not grant access to pending")
	assert.Contains(t, stdout, "Lunch", "falls back to the caller's own bills")
}

func TestReviewLifecycle(t *testing.T) {
	startBackend(t)

	employee := newCLI(t)
	employee.login("employee.eve")
	stdout, _, err := employee.run("", "submit", "-title", "Conference", "-amount", "300")
	require.NoError(t, err)
	assert.Contains(t, stdout, "PENDING")

	manager := newCLI(t)
	manager.login("manager.mike")
	stdout, _, err = manager.run("", "pending")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Conference")

	stdout, _, err = manager.run("", "approve", "-id", "1", "-comments", "ok")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Bill #1 approved")
	assert.Contains(t, stdout, "No bills.", "pending queue refetched and now empty")

	// A second approve conflicts with the status graph.
	_, stderrOut, err := manager.run("", "approve", "-id", "1")
	require.Error(t, err)
	assert.Contains(t, stderrOut, "Cannot move bill from APPROVED to APPROVED")

	finance := newCLI(t)
	finance.login("finance.jane")
	stdout, _, err = finance.run("", "approved")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Conference")

	stdout, _, err = finance.run("", "close", "-id", "1", "-comments", "paid")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Bill #1 closed and paid out")

	stdout, _, err = employee.run("", "show", "-id", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Status:      CLOSED")
	assert.Contains(t, stdout, "Manager:     manager.mike")
	assert.Contains(t, stdout, "APPROVED")
	assert.Contains(t, stdout, "ok")
}

func TestAdminUserManagement(t *testing.T) {
	startBackend(t)

	admin := newCLI(t)
	admin.login("admin.root")

	stdout, _, err := admin.run("", "users")
	require.NoError(t, err)
	assert.Contains(t, stdout, "employee.eve")
	assert.Contains(t, stdout, "admin.root")

	stdout, _, err = admin.run("", "user-update", "-id", "1", "-roles", "employee,manager")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Updated employee.eve")
	assert.Contains(t, stdout, models.RoleManager)

	stdout, _, err = admin.run("", "user-delete", "-id", "3")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Deleted user 3")
}

func TestNonAdminCannotListUsers(t *testing.T) {
	startBackend(t)
	c := newCLI(t)
	c.login("manager.mike")

	stdout, _, err := c.run("", "users")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Your role does not grant access to users")
}

func TestRegisterThenLogin(t *testing.T) {
	startBackend(t)
	c := newCLI(t)

	stdout, _, err := c.run("", "register", "-user", "new.nora", "-email", "nora@example.com", "-password", "testpass123")
	require.NoError(t, err)
	assert.Contains(t, stdout, "registered successfully")

	c.login("new.nora")
}
