package run

import (
	"context"

	"tindahan/internal/core/id"
)

// ListFilter narrows run listings.
type ListFilter struct {
	Status  Status
	RiderID *id.ID
	Limit   int
	Offset  int
}

// Repository is the run store. Receipt rows live with the run because
// they are immutable children confirmed in the same unit of work.
type Repository interface {
	GetByID(ctx context.Context, runID id.ID) (*DeliveryRun, error)

	// GetByIDForUpdate locks the run row for the current transaction.
	// Used by check-in confirmation and remit posting to serialize
	// status transitions.
	GetByIDForUpdate(ctx context.Context, runID id.ID) (*DeliveryRun, error)

	List(ctx context.Context, filter ListFilter) ([]*DeliveryRun, error)
	Create(ctx context.Context, r *DeliveryRun) error

	// Update persists mutable fields with an optimistic version check.
	Update(ctx context.Context, r *DeliveryRun) error

	CreateReceipts(ctx context.Context, receipts []*RunReceipt) error
	ListReceipts(ctx context.Context, runID id.ID) ([]*RunReceipt, error)
	GetReceipt(ctx context.Context, receiptID id.ID) (*RunReceipt, error)

	// DeleteReceipts clears the run's receipts. Only check-in
	// confirmation calls it, to replace a prior confirmation attempt
	// that never reached CHECKED_IN.
	DeleteReceipts(ctx context.Context, runID id.ID) error
}
