package services

import (
	"context"
	"net/http"
	"strconv"

	"reimburse/internal/gateway"
	"reimburse/internal/models"
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

// BillService wraps the bill endpoints.
type BillService struct {
	client *gateway.Client
}

// NewBills creates a BillService.
func NewBills(client *gateway.Client) *BillService {
	return &BillService{client: client}
}

// Create submits a new reimbursement request.
func (s *BillService) Create(ctx context.Context, req CreateBillRequest) (*models.Bill, error) {
	var bill models.Bill
	if err := s.client.Do(ctx, http.MethodPost, "/api/bills", req, &bill); err != nil {
		return nil, err
	}
	return &bill, nil
}

// Mine returns the current user's bills.
func (s *BillService) Mine(ctx context.Context) ([]models.Bill, error) {
	var bills []models.Bill
	if err := s.client.Do(ctx, http.MethodGet, "/api/bills/mine", nil, &bills); err != nil {
		return nil, err
	}
	return bills, nil
}

// Pending returns bills awaiting manager action.
func (s *BillService) Pending(ctx context.Context) ([]models.Bill, error) {
	var bills []models.Bill
	if err := s.client.Do(ctx, http.MethodGet, "/api/bills/pending", nil, &bills); err != nil {
		return nil, err
	}
	return bills, nil
}

// Approved returns bills awaiting finance action.
func (s *BillService) Approved(ctx context.Context) ([]models.Bill, error) {
	var bills []models.Bill
	if err := s.client.Do(ctx, http.MethodGet, "/api/bills/approved", nil, &bills); err != nil {
		return nil, err
	}
	return bills, nil
}

// ByID returns a single bill with its history.
func (s *BillService) ByID(ctx context.Context, id int64) (*models.Bill, error) {
	var bill models.Bill
	if err := s.client.Do(ctx, http.MethodGet, "/api/bills/"+strconv.FormatInt(id, 10), nil, &bill); err != nil {
		return nil, err
	}
	return &bill, nil
}

// Approve moves a bill to APPROVED (manager action).
func (s *BillService) Approve(ctx context.Context, id int64, req StatusUpdateRequest) (*models.Bill, error) {
	return s.patchStatus(ctx, id, "approve", req)
}

// Reject moves a bill to REJECTED (manager action).
func (s *BillService) Reject(ctx context.Context, id int64, req StatusUpdateRequest) (*models.Bill, error) {
	return s.patchStatus(ctx, id, "reject", req)
}

// Close moves a bill to CLOSED (finance action).
func (s *BillService) Close(ctx context.Context, id int64, req StatusUpdateRequest) (*models.Bill, error) {
	return s.patchStatus(ctx, id, "close", req)
}

func (s *BillService) patchStatus(ctx context.Context, id int64, action string, req StatusUpdateRequest) (*models.Bill, error) {
	var bill models.Bill
	path := "/api/bills/" + strconv.FormatInt(id, 10) + "/" + action
	if err := s.client.Do(ctx, http.MethodPatch, path, req, &bill); err != nil {
		return nil, err
	}
	return &bill, nil
}
