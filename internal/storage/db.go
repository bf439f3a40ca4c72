package storage

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"reimburse/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// ErrInvalidTransition is returned when a status change violates the
// bill lifecycle graph.
var ErrInvalidTransition = errors.New("invalid status transition")

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			roles TEXT NOT NULL DEFAULT 'ROLE_EMPLOYEE',
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bills (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			amount REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			date DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			receipt_url TEXT NOT NULL DEFAULT '',
			requester_id INTEGER NOT NULL,
			manager_id INTEGER,
			FOREIGN KEY (requester_id) REFERENCES users(id),
			FOREIGN KEY (manager_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS bill_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bill_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			comments TEXT NOT NULL DEFAULT '',
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			username TEXT NOT NULL,
			FOREIGN KEY (bill_id) REFERENCES bills(id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func joinRoles(roles []string) string {
	if len(roles) == 0 {
		return models.RoleEmployee
	}
	return strings.Join(roles, ",")
}

func splitRoles(roles string) []string {
	if roles == "" {
		return nil
	}
	return strings.Split(roles, ",")
}

const userColumns = "id, username, email, first_name, last_name, department, roles, password_hash, created_at"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	var roles string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.Department, &roles, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Roles = splitRoles(roles)
	return &u, nil
}

// CreateUser inserts a new user. The user's PasswordHash must already be set.
func (db *DB) CreateUser(u *models.User) (*models.User, error) {
	result, err := db.conn.Exec(
		"INSERT INTO users (username, email, first_name, last_name, department, roles, password_hash) VALUES (?, ?, ?, ?, ?, ?, ?)",
		u.Username, u.Email, u.FirstName, u.LastName, u.Department, joinRoles(u.Roles), u.PasswordHash,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	row := db.conn.QueryRow("SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	row := db.conn.QueryRow("SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

// ListUsers retrieves all users ordered by username.
func (db *DB) ListUsers() ([]models.User, error) {
	rows, err := db.conn.Query("SELECT " + userColumns + " FROM users ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser updates a user's profile fields and roles.
func (db *DB) UpdateUser(u *models.User) (*models.User, error) {
	_, err := db.conn.Exec(
		"UPDATE users SET email = ?, first_name = ?, last_name = ?, department = ?, roles = ? WHERE id = ?",
		u.Email, u.FirstName, u.LastName, u.Department, joinRoles(u.Roles), u.ID,
	)
	if err != nil {
		return nil, err
	}
	return db.GetUserByID(u.ID)
}

// DeleteUser removes a user by ID.
func (db *DB) DeleteUser(id int64) error {
	result, err := db.conn.Exec("DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

const billColumns = "id, title, description, amount, status, date, created_at, updated_at, receipt_url, requester_id, manager_id"

// billRecord is a scanned bill row with its user references still
// unresolved.
type billRecord struct {
	bill        models.Bill
	requesterID int64
	managerID   sql.NullInt64
}

func scanBillRecord(row interface{ Scan(...any) error }) (*billRecord, error) {
	var r billRecord
	b := &r.bill
	if err := row.Scan(&b.ID, &b.Title, &b.Description, &b.Amount, &b.Status,
		&b.Date, &b.CreatedAt, &b.UpdatedAt, &b.ReceiptURL, &r.requesterID, &r.managerID); err != nil {
		return nil, err
	}
	return &r, nil
}

// resolveBillUsers fills in the requester and manager. Must only run once
// no row cursor is open: a nested query against an open cursor takes a
// second pool connection, and for an in-memory database that second
// connection is a separate empty database.
func (db *DB) resolveBillUsers(r *billRecord, cache map[int64]*models.User) (*models.Bill, error) {
	lookup := func(id int64) (*models.User, error) {
		if u, ok := cache[id]; ok {
			return u, nil
		}
		u, err := db.GetUserByID(id)
		if err != nil {
			return nil, err
		}
		cache[id] = u
		return u, nil
	}

	requester, err := lookup(r.requesterID)
	if err != nil {
		return nil, err
	}
	r.bill.Requester = requester

	if r.managerID.Valid {
		manager, err := lookup(r.managerID.Int64)
		if err != nil {
			return nil, err
		}
		r.bill.Manager = manager
	}
	return &r.bill, nil
}

// CreateBill inserts a new PENDING bill for the requester and seeds the
// initial history entry.
func (db *DB) CreateBill(b *models.Bill, requester *models.User) (*models.Bill, error) {
	if b.Date.IsZero() {
		b.Date = time.Now()
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.Exec(
		"INSERT INTO bills (title, description, amount, status, date, created_at, updated_at, receipt_url, requester_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		b.Title, b.Description, b.Amount, models.StatusPending, b.Date, now, now, b.ReceiptURL, requester.ID,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		"INSERT INTO bill_history (bill_id, status, comments, timestamp, username) VALUES (?, ?, ?, ?, ?)",
		id, models.StatusPending, "Submitted", now, requester.Username,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return db.GetBill(id)
}

// GetBill retrieves a single bill by ID, including requester, manager and
// its full history ordered oldest first.
func (db *DB) GetBill(id int64) (*models.Bill, error) {
	record, err := scanBillRecord(db.conn.QueryRow("SELECT "+billColumns+" FROM bills WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	b, err := db.resolveBillUsers(record, map[int64]*models.User{})
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(
		"SELECT id, status, comments, timestamp, username FROM bill_history WHERE bill_id = ? ORDER BY id",
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var h models.HistoryItem
		if err := rows.Scan(&h.ID, &h.Status, &h.Comments, &h.Timestamp, &h.Username); err != nil {
			return nil, err
		}
		b.History = append(b.History, h)
	}
	return b, rows.Err()
}

func (db *DB) listBills(query string, args ...any) ([]models.Bill, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*billRecord
	for rows.Next() {
		r, err := scanBillRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	cache := map[int64]*models.User{}
	var bills []models.Bill
	for _, r := range records {
		b, err := db.resolveBillUsers(r, cache)
		if err != nil {
			return nil, err
		}
		bills = append(bills, *b)
	}
	return bills, nil
}

// ListBillsByRequester retrieves a user's bills, newest first. When year
// and month are non-zero the listing is scoped to that month.
func (db *DB) ListBillsByRequester(requesterID int64, year, month int) ([]models.Bill, error) {
	if year != 0 && month != 0 {
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)
		return db.listBills(
			"SELECT "+billColumns+" FROM bills WHERE requester_id = ? AND date >= ? AND date < ? ORDER BY created_at DESC",
			requesterID, start, end,
		)
	}
	return db.listBills(
		"SELECT "+billColumns+" FROM bills WHERE requester_id = ? ORDER BY created_at DESC",
		requesterID,
	)
}

// ListBillsByStatus retrieves all bills in a status, oldest first so
// reviewers see the longest-waiting requests at the top.
func (db *DB) ListBillsByStatus(status models.BillStatus) ([]models.Bill, error) {
	return db.listBills(
		"SELECT "+billColumns+" FROM bills WHERE status = ? ORDER BY created_at",
		status,
	)
}

// TransitionBill moves a bill to a new status, validating the lifecycle
// graph, recording the acting manager on approve/reject, and appending a
// history entry. Returns ErrInvalidTransition for any move the graph
// forbids.
func (db *DB) TransitionBill(id int64, to models.BillStatus, comments string, actor *models.User) (*models.Bill, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var from models.BillStatus
	if err := tx.QueryRow("SELECT status FROM bills WHERE id = ?", id).Scan(&from); err != nil {
		return nil, err
	}

	if !models.CanTransition(from, to) {
		return nil, ErrInvalidTransition
	}

	now := time.Now()
	if to == models.StatusApproved || to == models.StatusRejected {
		_, err = tx.Exec("UPDATE bills SET status = ?, updated_at = ?, manager_id = ? WHERE id = ?",
			to, now, actor.ID, id)
	} else {
		_, err = tx.Exec("UPDATE bills SET status = ?, updated_at = ? WHERE id = ?", to, now, id)
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		"INSERT INTO bill_history (bill_id, status, comments, timestamp, username) VALUES (?, ?, ?, ?, ?)",
		id, to, comments, now, actor.Username,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return db.GetBill(id)
}
