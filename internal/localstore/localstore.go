// Package localstore persists the client's token and cached user record
// in a small key-value table, the client-side counterpart of the server's
// session storage.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"reimburse/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

const (
	tokenKey = "token"
	userKey  = "user"
)

// Store is a file-backed key-value store for client auth state.
type Store struct {
	conn *sql.DB
}

// DefaultPath returns the credential store location under the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, "reimburse")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.db"), nil
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		return nil, err
	}
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		return nil, err
	}
	return &Store{conn: conn}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) get(key string) (string, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Store) set(key, value string) error {
	_, err := s.conn.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// Token returns the persisted bearer token, or "" when absent.
func (s *Store) Token() (string, error) {
	return s.get(tokenKey)
}

// CachedUser returns the persisted user record. A corrupted record is
// treated as no session: the stored auth state is wiped and nil is
// returned without error.
func (s *Store) CachedUser() (*models.User, error) {
	raw, err := s.get(userKey)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		_ = s.ClearAuth()
		return nil, nil
	}
	return &user, nil
}

// SaveAuth persists the token and user record together.
func (s *Store) SaveAuth(token string, user *models.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.set(tokenKey, token); err != nil {
		return err
	}
	return s.set(userKey, string(raw))
}

// ClearAuth removes the token and user record together.
func (s *Store) ClearAuth() error {
	_, err := s.conn.Exec("DELETE FROM kv WHERE key IN (?, ?)", tokenKey, userKey)
	return err
}
