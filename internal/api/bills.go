package api

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"reimburse/internal/models"
	"reimburse/internal/storage"
)

// CreateBillRequest is the bill submission payload.
type CreateBillRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Date        string  `json:"date"`
	ReceiptURL  string  `json:"receiptUrl"`
}

// StatusUpdateRequest carries reviewer comments for a status change.
type StatusUpdateRequest struct {
	Comments string `json:"comments"`
}

func parseBillDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// CreateBill submits a new reimbursement request for the caller.
func (h *Handlers) CreateBill(w http.ResponseWriter, r *http.Request) {
	var req CreateBillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "Amount must be greater than zero")
		return
	}
	date, err := parseBillDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format, expected YYYY-MM-DD")
		return
	}

	user := GetUserFromContext(r)
	bill, err := h.db.CreateBill(&models.Bill{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		Date:        date,
		ReceiptURL:  req.ReceiptURL,
	}, user)
	if err != nil {
		log.Printf("CreateBill error: %v", err)
		writeError(w, http.StatusInternalServerError, "Could not create bill")
		return
	}

	writeJSON(w, http.StatusCreated, bill)
}

// MyBills lists the caller's bills, newest first. Optional year and month
// query parameters scope the listing to one month.
func (h *Handlers) MyBills(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)

	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	month, _ := strconv.Atoi(r.URL.Query().Get("month"))
	if month < 0 || month > 12 {
		month = 0
	}

	bills, err := h.db.ListBillsByRequester(user.ID, year, month)
	if err != nil {
		log.Printf("MyBills error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeBills(w, bills)
}

// PendingBills lists bills awaiting manager action.
func (h *Handlers) PendingBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.db.ListBillsByStatus(models.StatusPending)
	if err != nil {
		log.Printf("PendingBills error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeBills(w, bills)
}

// ApprovedBills lists bills awaiting finance action.
func (h *Handlers) ApprovedBills(w http.ResponseWriter, r *http.Request) {
	bills, err := h.db.ListBillsByStatus(models.StatusApproved)
	if err != nil {
		log.Printf("ApprovedBills error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeBills(w, bills)
}

func writeBills(w http.ResponseWriter, bills []models.Bill) {
	if bills == nil {
		bills = []models.Bill{}
	}
	writeJSON(w, http.StatusOK, bills)
}

// GetBill returns a single bill with its history. Employees may only view
// their own bills; managers, finance and admins may view any.
func (h *Handlers) GetBill(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid bill id")
		return
	}

	bill, err := h.db.GetBill(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Bill not found")
		return
	}
	if err != nil {
		log.Printf("GetBill error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user := GetUserFromContext(r)
	if bill.Requester.ID != user.ID &&
		!user.HasRole(models.RoleManager) && !user.HasRole(models.RoleFinance) && !user.HasRole(models.RoleAdmin) {
		writeError(w, http.StatusForbidden, "Insufficient permissions")
		return
	}

	writeJSON(w, http.StatusOK, bill)
}

// ApproveBill moves a PENDING bill to APPROVED (manager action).
func (h *Handlers) ApproveBill(w http.ResponseWriter, r *http.Request) {
	h.transitionBill(w, r, models.StatusApproved)
}

// RejectBill moves a PENDING bill to REJECTED (manager action).
func (h *Handlers) RejectBill(w http.ResponseWriter, r *http.Request) {
	h.transitionBill(w, r, models.StatusRejected)
}

// CloseBill moves an APPROVED bill to CLOSED (finance action).
func (h *Handlers) CloseBill(w http.ResponseWriter, r *http.Request) {
	h.transitionBill(w, r, models.StatusClosed)
}

func (h *Handlers) transitionBill(w http.ResponseWriter, r *http.Request, to models.BillStatus) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid bill id")
		return
	}

	var req StatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user := GetUserFromContext(r)

	current, err := h.db.GetBill(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Bill not found")
		return
	}
	if err != nil {
		log.Printf("Transition lookup error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Reviewers cannot act on their own submissions.
	if current.Requester.ID == user.ID {
		writeError(w, http.StatusForbidden, "Cannot review your own bill")
		return
	}

	bill, err := h.db.TransitionBill(id, to, req.Comments, user)
	if errors.Is(err, storage.ErrInvalidTransition) {
		writeError(w, http.StatusConflict,
			"Cannot move bill from "+string(current.Status)+" to "+string(to))
		return
	}
	if err != nil {
		log.Printf("TransitionBill error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, bill)
}
