// Package remit implements run closure: the all-or-nothing posting that
// materializes roadside orders, credits verified returns to stock,
// charges the rider for missing stock and moves the run to CLOSED.
package remit

import (
	"context"
	"time"

	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

// Action is the manager's posting intent.
type Action string

const (
	// ActionApproveClose closes the run with every diff line present.
	ActionApproveClose Action = "APPROVE_CLOSE"

	// ActionChargeClose closes the run and bills the rider for the
	// lines marked missing.
	ActionChargeClose Action = "CHARGE_CLOSE"
)

// Disposition classifies one unaccounted recap line.
type Disposition string

const (
	DispositionPresent Disposition = "PRESENT"
	DispositionMissing Disposition = "MISSING"
)

// VarianceResolution records how a variance was settled.
const ResolutionChargeRider = "CHARGE_RIDER"

// RiderRunVariance captures the expected-vs-actual value of stock the
// manager marked missing. One per run at most.
type RiderRunVariance struct {
	ID      id.ID `db:"id" json:"id"`
	RunID   id.ID `db:"run_id" json:"runId"`
	RiderID id.ID `db:"rider_id" json:"riderId"`

	ExpectedValue types.Money `db:"expected_value" json:"expectedValue"`
	ActualValue   types.Money `db:"actual_value" json:"actualValue"`
	Resolution    string      `db:"resolution" json:"resolution"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ChargeStatus is the rider charge lifecycle. Settlement is handled by
// payroll outside this core; only OPEN is produced here.
type ChargeStatus string

const (
	ChargeOpen    ChargeStatus = "OPEN"
	ChargeSettled ChargeStatus = "SETTLED"
)

// RiderCharge is the amount owed by the rider. Keyed uniquely by
// variance so re-posting updates rather than duplicates.
type RiderCharge struct {
	ID         id.ID `db:"id" json:"id"`
	VarianceID id.ID `db:"variance_id" json:"varianceId"`
	RiderID    id.ID `db:"rider_id" json:"riderId"`

	Amount types.Money  `db:"amount" json:"amount"`
	Status ChargeStatus `db:"status" json:"status"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// PostInput is the manager's posting request. Dispositions cover every
// product with an unaccounted diff.
type PostInput struct {
	RunID        id.ID                  `json:"runId"`
	Action       Action                 `json:"action"`
	Dispositions map[id.ID]Disposition  `json:"dispositions"`
	Note         string                 `json:"note,omitempty"`
}

// PostResult summarizes a completed (or previously completed) posting.
type PostResult struct {
	RunID  id.ID  `json:"runId"`
	Status string `json:"status"`

	// AlreadyClosed is set when the run was closed before this call and
	// the request was treated as an idempotent no-op.
	AlreadyClosed bool `json:"alreadyClosed"`

	OrdersCreated  int `json:"ordersCreated"`
	OrdersExisting int `json:"ordersExisting"`
	ReturnedLines  int `json:"returnedLines"`

	Charge *RiderCharge `json:"charge,omitempty"`

	Summary *Summary `json:"summary"`
}

// Summary is the financial breakdown of a run used by the conservation
// check: cash + approved discount + AR + rejected unresolved must equal
// the frozen total.
type Summary struct {
	FrozenTotal        types.Money `json:"frozenTotal"`
	CashCollected      types.Money `json:"cashCollected"`
	ApprovedDiscount   types.Money `json:"approvedDiscount"`
	ArBalance          types.Money `json:"arBalance"`
	RejectedUnresolved types.Money `json:"rejectedUnresolved"`
}

// Balanced reports whether the conservation law holds under the policy.
func (s *Summary) Balanced(policy types.MoneyPolicy) bool {
	accounted := s.CashCollected.
		Add(s.ApprovedDiscount).
		Add(s.ArBalance).
		Add(s.RejectedUnresolved)
	return policy.Equal(accounted, s.FrozenTotal)
}

// ChargeRepository stores variances and rider charges.
type ChargeRepository interface {
	// GetVarianceByRun returns nil, nil when absent. One variance per
	// run at most; re-posting finds and reuses it.
	GetVarianceByRun(ctx context.Context, runID id.ID) (*RiderRunVariance, error)
	CreateVariance(ctx context.Context, v *RiderRunVariance) error

	// GetChargeByVariance returns nil, nil when absent.
	GetChargeByVariance(ctx context.Context, varianceID id.ID) (*RiderCharge, error)
	CreateCharge(ctx context.Context, c *RiderCharge) error
	UpdateCharge(ctx context.Context, c *RiderCharge) error

	ListOpenByRider(ctx context.Context, riderID id.ID) ([]*RiderCharge, error)
}
