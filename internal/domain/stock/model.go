// Package stock provides physical stock movement records. Movements are
// the authoritative trace of goods leaving on a run and coming back; the
// balance counters on products are derived from them.
package stock

import (
	"context"
	"time"

	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

// MovementKind tags the direction and cause of a movement.
type MovementKind string

const (
	// MovementLoadOut records stock dispatched onto a run.
	MovementLoadOut MovementKind = "LOAD_OUT"

	// MovementReturnIn records physically verified stock returned from a
	// run at remit posting. Created exactly once per run.
	MovementReturnIn MovementKind = "RETURN_IN"
)

// Movement is one immutable stock movement line.
type Movement struct {
	ID        id.ID          `db:"id" json:"id"`
	RunID     id.ID          `db:"run_id" json:"runId"`
	Kind      MovementKind   `db:"kind" json:"kind"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	Qty       types.Quantity `db:"qty" json:"qty"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// NewMovement creates a movement line.
func NewMovement(runID, productID id.ID, kind MovementKind, qty types.Quantity) Movement {
	return Movement{
		ID:        id.New(),
		RunID:     runID,
		Kind:      kind,
		ProductID: productID,
		Qty:       qty,
		CreatedAt: time.Now().UTC(),
	}
}

// Repository is the movement store.
type Repository interface {
	CreateMovements(ctx context.Context, movements []Movement) error

	// HasRunReturn reports whether a RETURN_IN movement already exists
	// for the run. Guards the once-per-run stock credit on re-submission.
	HasRunReturn(ctx context.Context, runID id.ID) (bool, error)

	// ListRunReturns returns the posted RETURN_IN movements for a run.
	ListRunReturns(ctx context.Context, runID id.ID) ([]Movement, error)
}
