// Package billflow composes async operations over the bill endpoints and
// adds the cross-call refresh policy: each successful mutation refetches
// the one collection it affects.
package billflow

import (
	"context"
	"fmt"

	"reimburse/internal/asyncop"
	"reimburse/internal/models"
	"reimburse/internal/services"
)

// Notifier receives user-facing feedback for mutations. Both methods may
// be called from the goroutine running the mutation.
type Notifier interface {
	Success(message string)
	Failure(message string)
}

type noopNotifier struct{}

func (noopNotifier) Success(string) {}
func (noopNotifier) Failure(string) {}

type statusChange struct {
	id       int64
	comments string
}

// Manager owns one independent async state per bill query and mutation.
type Manager struct {
	notify Notifier

	mine     *asyncop.Operation[struct{}, []models.Bill]
	pending  *asyncop.Operation[struct{}, []models.Bill]
	approved *asyncop.Operation[struct{}, []models.Bill]
	details  *asyncop.Operation[int64, *models.Bill]

	create    *asyncop.Operation[services.CreateBillRequest, *models.Bill]
	approveOp *asyncop.Operation[statusChange, *models.Bill]
	rejectOp  *asyncop.Operation[statusChange, *models.Bill]
	closeOp   *asyncop.Operation[statusChange, *models.Bill]
}

// NewManager wires the bill service into per-call operations. notify may
// be nil.
func NewManager(bills *services.BillService, notify Notifier) *Manager {
	if notify == nil {
		notify = noopNotifier{}
	}
	m := &Manager{notify: notify}

	m.mine = asyncop.New(func(ctx context.Context, _ struct{}) ([]models.Bill, error) {
		return bills.Mine(ctx)
	})
	m.pending = asyncop.New(func(ctx context.Context, _ struct{}) ([]models.Bill, error) {
		return bills.Pending(ctx)
	})
	m.approved = asyncop.New(func(ctx context.Context, _ struct{}) ([]models.Bill, error) {
		return bills.Approved(ctx)
	})
	m.details = asyncop.New(func(ctx context.Context, id int64) (*models.Bill, error) {
		return bills.ByID(ctx, id)
	})

	// Each mutation refetches the collection it affects. The refetch is a
	// separate, later operation: until it completes the collection state
	// is stale, never partially patched.
	m.create = asyncop.New(func(ctx context.Context, req services.CreateBillRequest) (*models.Bill, error) {
		return bills.Create(ctx, req)
	}).OnSuccess(func(bill *models.Bill) {
		notify.Success(fmt.Sprintf("Reimbursement request %q submitted", bill.Title))
		m.refetchMine()
	}).OnError(func(err error) {
		notify.Failure("Failed to submit bill: " + err.Error())
	})

	m.approveOp = asyncop.New(func(ctx context.Context, c statusChange) (*models.Bill, error) {
		return bills.Approve(ctx, c.id, services.StatusUpdateRequest{Comments: c.comments})
	}).OnSuccess(func(bill *models.Bill) {
		notify.Success(fmt.Sprintf("Bill #%d approved", bill.ID))
		m.refetchPending()
	}).OnError(func(err error) {
		notify.Failure("Failed to approve bill: " + err.Error())
	})

	m.rejectOp = asyncop.New(func(ctx context.Context, c statusChange) (*models.Bill, error) {
		return bills.Reject(ctx, c.id, services.StatusUpdateRequest{Comments: c.comments})
	}).OnSuccess(func(bill *models.Bill) {
		notify.Success(fmt.Sprintf("Bill #%d rejected", bill.ID))
		m.refetchPending()
	}).OnError(func(err error) {
		notify.Failure("Failed to reject bill: " + err.Error())
	})

	m.closeOp = asyncop.New(func(ctx context.Context, c statusChange) (*models.Bill, error) {
		return bills.Close(ctx, c.id, services.StatusUpdateRequest{Comments: c.comments})
	}).OnSuccess(func(bill *models.Bill) {
		notify.Success(fmt.Sprintf("Bill #%d closed and paid out", bill.ID))
		m.refetchApproved()
	}).OnError(func(err error) {
		notify.Failure("Failed to close bill: " + err.Error())
	})

	return m
}

func (m *Manager) refetchMine()     { _, _ = m.mine.Execute(context.Background(), struct{}{}) }
func (m *Manager) refetchPending()  { _, _ = m.pending.Execute(context.Background(), struct{}{}) }
func (m *Manager) refetchApproved() { _, _ = m.approved.Execute(context.Background(), struct{}{}) }

// FetchMine loads the current user's bills.
func (m *Manager) FetchMine(ctx context.Context) ([]models.Bill, error) {
	return m.mine.Execute(ctx, struct{}{})
}

// FetchPending loads bills awaiting manager action.
func (m *Manager) FetchPending(ctx context.Context) ([]models.Bill, error) {
	return m.pending.Execute(ctx, struct{}{})
}

// FetchApproved loads bills awaiting finance action.
func (m *Manager) FetchApproved(ctx context.Context) ([]models.Bill, error) {
	return m.approved.Execute(ctx, struct{}{})
}

// FetchDetails loads one bill with its history.
func (m *Manager) FetchDetails(ctx context.Context, id int64) (*models.Bill, error) {
	return m.details.Execute(ctx, id)
}

// SubmitBill creates a new bill; on success the mine collection is
// refetched.
func (m *Manager) SubmitBill(ctx context.Context, req services.CreateBillRequest) (*models.Bill, error) {
	return m.create.Execute(ctx, req)
}

// ApproveBill approves a pending bill; on success the pending collection
// is refetched.
func (m *Manager) ApproveBill(ctx context.Context, id int64, comments string) (*models.Bill, error) {
	return m.approveOp.Execute(ctx, statusChange{id: id, comments: comments})
}

// RejectBill rejects a pending bill; on success the pending collection is
// refetched.
func (m *Manager) RejectBill(ctx context.Context, id int64, comments string) (*models.Bill, error) {
	return m.rejectOp.Execute(ctx, statusChange{id: id, comments: comments})
}

// CloseBill closes an approved bill; on success the approved collection
// is refetched.
func (m *Manager) CloseBill(ctx context.Context, id int64, comments string) (*models.Bill, error) {
	return m.closeOp.Execute(ctx, statusChange{id: id, comments: comments})
}

// MyBills returns the mine collection state.
func (m *Manager) MyBills() asyncop.State[[]models.Bill] { return m.mine.State() }

// PendingBills returns the pending collection state.
func (m *Manager) PendingBills() asyncop.State[[]models.Bill] { return m.pending.State() }

// ApprovedBills returns the approved collection state.
func (m *Manager) ApprovedBills() asyncop.State[[]models.Bill] { return m.approved.State() }

// BillDetails returns the detail query state.
func (m *Manager) BillDetails() asyncop.State[*models.Bill] { return m.details.State() }
