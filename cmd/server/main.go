package main

import (
	"crypto/rand"
	"log"
	"net/http"
	"os"

	"reimburse/internal/api"
	"reimburse/internal/auth"
	"reimburse/internal/models"
	"reimburse/internal/storage"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "reimburse.db"
	}

	db, err := storage.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	secret := []byte(os.Getenv("JWT_SECRET"))
	if len(secret) == 0 {
		// Random per-process secret. Tokens stop working across restarts,
		// which is fine for local development.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Fatalf("Failed to generate JWT secret: %v", err)
		}
		log.Printf("JWT_SECRET not set, using a random per-process secret")
	}

	if err := seedAdmin(db); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}

	h := api.NewHandlers(db, secret)
	mux := setupRouter(h)

	log.Printf("Server starting on port %s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// seedAdmin creates the initial admin account from ADMIN_USER and
// ADMIN_PASSWORD when the database has no users yet.
func seedAdmin(db *storage.DB) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	username := os.Getenv("ADMIN_USER")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		log.Printf("No users and no ADMIN_USER/ADMIN_PASSWORD set, skipping admin seed")
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	user, err := db.CreateUser(&models.User{
		Username:     username,
		Roles:        []string{models.RoleAdmin},
		PasswordHash: hash,
	})
	if err != nil {
		return err
	}
	log.Printf("Seeded admin user %s (id %d)", user.Username, user.ID)
	return nil
}

func setupRouter(h *api.Handlers) *http.ServeMux {
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
	mux.Handle("GET /api/users/{id}",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.GetUser), models.RoleAdmin)))
	mux.Handle("PUT /api/users/{id}",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.UpdateUser), models.RoleAdmin)))
	mux.Handle("DELETE /api/users/{id}",
		h.RequireAuth(h.RequireRole(http.HandlerFunc(h.DeleteUser), models.RoleAdmin)))

	return mux
}
