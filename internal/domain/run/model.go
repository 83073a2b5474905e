// Package run provides delivery runs: one rider trip from dispatch to
// remit closure, with its load manifest, rider check-in data, receipts
// and the per-product recap.
package run

import (
	"context"
	"time"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/entity"
	"tindahan/internal/core/id"
)

// Status is the run lifecycle state. Status only moves forward through
// the listed order, never backward.
type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusDispatched Status = "DISPATCHED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusClosed     Status = "CLOSED"
	StatusCancelled  Status = "CANCELLED"
)

var statusRank = map[Status]int{
	StatusPlanned:    0,
	StatusDispatched: 1,
	StatusCheckedIn:  2,
	StatusClosed:     3,
}

// DeliveryRun is one rider trip.
type DeliveryRun struct {
	entity.Base

	Code      string `db:"code" json:"code"`
	RiderID   id.ID  `db:"rider_id" json:"riderId"`
	RiderName string `db:"rider_name" json:"riderName"`
	Status    Status `db:"status" json:"status"`

	// Loadout is the manifest snapshot, immutable once set at dispatch.
	Loadout *LoadoutSnapshot `db:"-" json:"loadout,omitempty"`

	// Checkin is the rider's self-reported snapshot, set or replaced
	// only while the run is DISPATCHED. Opaque until check-in.
	Checkin *CheckinSnapshot `db:"-" json:"checkin,omitempty"`

	DispatchedAt *time.Time `db:"dispatched_at" json:"dispatchedAt,omitempty"`
	CheckedInAt  *time.Time `db:"checked_in_at" json:"checkedInAt,omitempty"`
	ClosedAt     *time.Time `db:"closed_at" json:"closedAt,omitempty"`
}

// NewDeliveryRun creates a PLANNED run for a rider.
func NewDeliveryRun(riderID id.ID, riderName string) *DeliveryRun {
	return &DeliveryRun{
		Base:      entity.NewBase(),
		RiderID:   riderID,
		RiderName: riderName,
		Status:    StatusPlanned,
	}
}

// Validate implements entity.Validatable.
func (r *DeliveryRun) Validate(ctx context.Context) error {
	if id.IsNil(r.RiderID) {
		return apperror.NewValidation("rider is required").WithDetail("field", "riderId")
	}
	return nil
}

func (r *DeliveryRun) stateError(msg string) *apperror.AppError {
	return apperror.NewPrecondition(apperror.CodeRunState, msg).
		WithDetail("run_id", r.ID.String()).
		WithDetail("status", string(r.Status))
}

// Dispatch freezes the loadout manifest and moves PLANNED → DISPATCHED.
func (r *DeliveryRun) Dispatch(loadout *LoadoutSnapshot, at time.Time) error {
	if r.Status != StatusPlanned {
		return r.stateError("run can only be dispatched from PLANNED")
	}
	if loadout == nil || len(loadout.Lines) == 0 {
		return apperror.NewValidation("loadout manifest must have at least one line")
	}
	for _, line := range loadout.Lines {
		if !line.Qty.IsPositive() {
			return apperror.NewValidation("loadout quantities must be positive").
				WithDetail("product_id", line.ProductID.String())
		}
	}
	r.Loadout = loadout
	r.Status = StatusDispatched
	r.DispatchedAt = &at
	r.Touch()
	return nil
}

// RecordCheckin stores or replaces the rider's self-reported snapshot.
// Allowed only while the run is DISPATCHED.
func (r *DeliveryRun) RecordCheckin(snapshot *CheckinSnapshot) error {
	if r.Status != StatusDispatched {
		return r.stateError("check-in data can only be recorded while DISPATCHED")
	}
	if snapshot == nil {
		return apperror.NewValidation("check-in snapshot is required")
	}
	r.Checkin = snapshot
	r.Touch()
	return nil
}

// MarkCheckedIn moves DISPATCHED → CHECKED_IN once check-in data exists.
func (r *DeliveryRun) MarkCheckedIn(at time.Time) error {
	if r.Status != StatusDispatched {
		return r.stateError("run can only check in from DISPATCHED")
	}
	if r.Checkin == nil {
		return apperror.NewValidation("check-in snapshot must be recorded first")
	}
	r.Status = StatusCheckedIn
	r.CheckedInAt = &at
	r.Touch()
	return nil
}

// MarkClosed moves CHECKED_IN → CLOSED. Called only by the remit
// posting transaction.
func (r *DeliveryRun) MarkClosed(at time.Time) error {
	if r.Status != StatusCheckedIn {
		return r.stateError("run can only close from CHECKED_IN")
	}
	r.Status = StatusClosed
	r.ClosedAt = &at
	r.Touch()
	return nil
}

// Cancel abandons a run that has not checked in yet.
func (r *DeliveryRun) Cancel() error {
	if r.Status != StatusPlanned && r.Status != StatusDispatched {
		return r.stateError("run can only be cancelled before check-in")
	}
	r.Status = StatusCancelled
	r.Touch()
	return nil
}

// CanTransition reports whether moving to next is a legal forward step.
func (r *DeliveryRun) CanTransition(next Status) bool {
	if next == StatusCancelled {
		return r.Status == StatusPlanned || r.Status == StatusDispatched
	}
	cur, ok := statusRank[r.Status]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}
