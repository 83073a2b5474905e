// Package clearance tracks disputed or deferred receivables from runs
// through a two-state lifecycle: a case opens when collected cash falls
// short of a frozen total, and a manager decision splits the shortfall
// into approved discount and accounts receivable exactly once.
package clearance

import (
	"context"
	"time"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/entity"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

// CaseStatus is the two-state case lifecycle.
type CaseStatus string

const (
	StatusNeedsClearance CaseStatus = "NEEDS_CLEARANCE"
	StatusDecided        CaseStatus = "DECIDED"
)

// Action is the manager's requested resolution.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// DecisionKind is derived from the decided amounts, never chosen by the
// caller.
type DecisionKind string

const (
	// KindApproveOpenBalance carries the full shortfall as AR.
	KindApproveOpenBalance DecisionKind = "APPROVE_OPEN_BALANCE"

	// KindApproveDiscountOverride forgives the full shortfall.
	KindApproveDiscountOverride DecisionKind = "APPROVE_DISCOUNT_OVERRIDE"

	// KindApproveHybrid splits the shortfall between discount and AR.
	KindApproveHybrid DecisionKind = "APPROVE_HYBRID"

	// KindReject leaves the shortfall unresolved. Rejected cases stay
	// visible on dashboards until handled operationally.
	KindReject DecisionKind = "REJECT"
)

// Case is one receivable under review. It links to exactly one of
// {order, run receipt}.
type Case struct {
	entity.Base

	Status CaseStatus `db:"status" json:"status"`

	RunID      *id.ID `db:"run_id" json:"runId,omitempty"`
	OrderID    *id.ID `db:"order_id" json:"orderId,omitempty"`
	ReceiptID  *id.ID `db:"receipt_id" json:"receiptId,omitempty"`
	CustomerID *id.ID `db:"customer_id" json:"customerId,omitempty"`

	FrozenTotal   types.Money `db:"frozen_total" json:"frozenTotal"`
	CashCollected types.Money `db:"cash_collected" json:"cashCollected"`

	Note string `db:"note" json:"note,omitempty"`
}

// Validate implements entity.Validatable.
func (c *Case) Validate(ctx context.Context) error {
	if (c.OrderID == nil) == (c.ReceiptID == nil) {
		return apperror.NewValidation("case must reference exactly one of order or receipt")
	}
	if c.FrozenTotal.IsNegative() || c.CashCollected.IsNegative() {
		return apperror.NewValidation("case amounts must not be negative")
	}
	return nil
}

// Balance is the outstanding shortfall, recomputed from the frozen
// amounts, never trusted from a client.
func (c *Case) Balance() types.Money {
	b := c.FrozenTotal.Sub(c.CashCollected)
	if b.IsNegative() {
		return types.ZeroMoney()
	}
	return b
}

// Decision is the immutable audit record of one case resolution.
// Exactly one exists per decided case.
type Decision struct {
	ID     id.ID        `db:"id" json:"id"`
	CaseID id.ID        `db:"case_id" json:"caseId"`
	Kind   DecisionKind `db:"kind" json:"kind"`

	// BalanceAtDecision is the shortfall recomputed at decision time.
	BalanceAtDecision types.Money `db:"balance_at_decision" json:"balanceAtDecision"`

	ApprovedDiscount types.Money `db:"approved_discount" json:"approvedDiscount"`
	ArBalance        types.Money `db:"ar_balance" json:"arBalance"`

	DecidedBy id.ID      `db:"decided_by" json:"decidedBy"`
	Note      string     `db:"note" json:"note"`
	DueDate   *time.Time `db:"due_date" json:"dueDate,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CustomerAr is one open receivable ledger entry. Created only when a
// decision or the remit credit path leaves a positive balance, and only
// against an identified customer.
type CustomerAr struct {
	ID         id.ID `db:"id" json:"id"`
	CustomerID id.ID `db:"customer_id" json:"customerId"`

	// DecisionID is set when the AR came from a clearance decision.
	DecisionID *id.ID `db:"decision_id" json:"decisionId,omitempty"`

	// ReceiptID is set when the AR came from a clean credit sale at
	// remit posting. Unique per receipt, which makes re-posting safe.
	ReceiptID *id.ID `db:"receipt_id" json:"receiptId,omitempty"`

	Principal types.Money `db:"principal" json:"principal"`
	Balance   types.Money `db:"balance" json:"balance"`

	DueDate   *time.Time `db:"due_date" json:"dueDate,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

// RejectedCase pairs a rejected case with its decision for dashboards.
// The shortfall has no automatic follow-up; it stays surfaced here
// until an operational process resolves it.
type RejectedCase struct {
	Case     *Case     `json:"case"`
	Decision *Decision `json:"decision"`
}

// Unresolved is the shortfall amount the rejection left hanging.
func (r *RejectedCase) Unresolved() types.Money {
	return r.Decision.BalanceAtDecision
}

// Repository is the clearance store.
type Repository interface {
	GetCaseByID(ctx context.Context, caseID id.ID) (*Case, error)

	// GetCaseByIDForUpdate locks the case row for the current
	// transaction, serializing concurrent decide calls.
	GetCaseByIDForUpdate(ctx context.Context, caseID id.ID) (*Case, error)

	CreateCase(ctx context.Context, c *Case) error
	UpdateCase(ctx context.Context, c *Case) error

	ListByRun(ctx context.Context, runID id.ID) ([]*Case, error)
	CountPendingByRun(ctx context.Context, runID id.ID) (int, error)

	// HasDecision reports whether a decision row already exists for the
	// case. Checked inside the decide transaction before insert.
	HasDecision(ctx context.Context, caseID id.ID) (bool, error)
	GetDecision(ctx context.Context, caseID id.ID) (*Decision, error)
	CreateDecision(ctx context.Context, d *Decision) error

	ListRejectedUnresolved(ctx context.Context, limit, offset int) ([]*RejectedCase, error)
}

// ArRepository is the receivable ledger store.
type ArRepository interface {
	CreateAr(ctx context.Context, ar *CustomerAr) error

	// GetArByReceipt returns nil, nil when no entry exists. The remit
	// transaction uses it as the dedup check for credit-sale AR.
	GetArByReceipt(ctx context.Context, receiptID id.ID) (*CustomerAr, error)

	ListArByCustomer(ctx context.Context, customerID id.ID) ([]*CustomerAr, error)
}
