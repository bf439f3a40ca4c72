package models

import (
	"strings"
	"time"
)

// BillStatus is the lifecycle state of a reimbursement request.
type BillStatus string

const (
	StatusPending  BillStatus = "PENDING"
	StatusApproved BillStatus = "APPROVED"
	StatusRejected BillStatus = "REJECTED"
	StatusClosed   BillStatus = "CLOSED"
)

// Role strings as they appear in a user's role list.
const (
	RoleEmployee = "ROLE_EMPLOYEE"
	RoleManager  = "ROLE_MANAGER"
	RoleFinance  = "ROLE_FINANCE"
	RoleAdmin    = "ROLE_ADMIN"
)

// CanTransition reports whether a bill may move between the two statuses.
// PENDING may become APPROVED or REJECTED, APPROVED may become CLOSED.
// REJECTED and CLOSED are terminal.
func CanTransition(from, to BillStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusClosed
	default:
		return false
	}
}

// rolePriority orders recognized roles from most to least privileged.
// The first role a user holds in this order is their primary role.
var rolePriority = []struct {
	role string
	name string
}{
	{RoleAdmin, "admin"},
	{RoleFinance, "finance"},
	{RoleManager, "manager"},
	{RoleEmployee, "employee"},
}

// PrimaryRole resolves the short role name ("admin", "finance", "manager",
// "employee") that drives navigation for a user holding the given roles.
// Unrecognized role strings are ignored. Returns "" when no recognized
// role is present.
func PrimaryRole(roles []string) string {
	for _, p := range rolePriority {
		for _, r := range roles {
			if strings.EqualFold(r, p.role) {
				return p.name
			}
		}
	}
	return ""
}

// User represents an account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName,omitempty"`
	LastName     string    `json:"lastName,omitempty"`
	Department   string    `json:"department,omitempty"`
	Roles        []string  `json:"roles"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasRole reports whether the user holds the role, matched against the
// ROLE_<UPPER> convention. The short name ("manager") and the full role
// string ("ROLE_MANAGER") are both accepted, case-insensitively.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	want := strings.ToUpper(role)
	if !strings.HasPrefix(want, "ROLE_") {
		want = "ROLE_" + want
	}
	for _, r := range u.Roles {
		if strings.EqualFold(r, want) {
			return true
		}
	}
	return false
}

// HistoryItem is an immutable audit record of a status change on a bill.
type HistoryItem struct {
	ID        int64      `json:"id"`
	Status    BillStatus `json:"status"`
	Comments  string     `json:"comments"`
	Timestamp time.Time  `json:"timestamp"`
	Username  string     `json:"username"`
}

// Bill represents a single expense claim moving through the approval
// lifecycle.
type Bill struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Amount      float64       `json:"amount"`
	Status      BillStatus    `json:"status"`
	Date        time.Time     `json:"date"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
	ReceiptURL  string        `json:"receiptUrl"`
	Requester   *User         `json:"requester,omitempty"`
	Manager     *User         `json:"manager,omitempty"`
	History     []HistoryItem `json:"history,omitempty"`
}
