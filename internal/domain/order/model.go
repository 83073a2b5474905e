// Package order provides financial orders: parent orders captured at the
// point of sale before a run, and roadside orders materialized from run
// receipts at remit posting.
package order

import (
	"context"
	"strings"
	"time"

	"tindahan/internal/core/entity"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

// Kind distinguishes how an order came to exist.
type Kind string

const (
	// KindParent is a POS-created order linked to a run for delivery.
	KindParent Kind = "PARENT"
	// KindRoadside is materialized from a ROAD receipt at remit posting.
	KindRoadside Kind = "ROADSIDE"
)

// PaymentStatus tracks how much of the frozen total was collected.
type PaymentStatus string

const (
	StatusUnpaid        PaymentStatus = "UNPAID"
	StatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	StatusPaid          PaymentStatus = "PAID"
)

// roadsideCodePrefix marks order codes derived from run receipts. The
// recap calculator relies on it to keep roadside orders out of the POS
// "sold" figures (they are already counted through their receipts).
const roadsideCodePrefix = "RD-"

// RoadsideCode derives the deterministic order code for a ROAD receipt.
// The same (run, receipt) pair always yields the same code, which is the
// idempotency key for order materialization at posting time.
func RoadsideCode(runID, receiptID id.ID) string {
	return roadsideCodePrefix + strings.ToUpper(id.Short(runID)) + "-" + strings.ToUpper(id.Short(receiptID))
}

// IsRoadsideCode reports whether an order code was derived from a receipt.
func IsRoadsideCode(code string) bool {
	return strings.HasPrefix(code, roadsideCodePrefix)
}

// Order is a sale with frozen item prices.
type Order struct {
	entity.Base

	Code          string        `db:"code" json:"code"`
	Kind          Kind          `db:"kind" json:"kind"`
	Status        PaymentStatus `db:"status" json:"status"`
	CustomerID    *id.ID        `db:"customer_id" json:"customerId,omitempty"`
	RunID         *id.ID        `db:"run_id" json:"runId,omitempty"`
	ReceiptID     *id.ID        `db:"receipt_id" json:"receiptId,omitempty"`
	ReceiptNumber string        `db:"receipt_number" json:"receiptNumber,omitempty"`

	// Total is frozen at creation; once the order reaches a terminal
	// payment status item prices are never recomputed.
	Total         types.Money `db:"total" json:"total"`
	CashCollected types.Money `db:"cash_collected" json:"cashCollected"`

	// OnCredit flags a shortfall carried as AR or pending clearance.
	OnCredit bool `db:"on_credit" json:"onCredit"`

	OrderedAt time.Time `db:"ordered_at" json:"orderedAt"`

	Items []Item `db:"-" json:"items"`
}

// Item is one order line. It carries both the base and the frozen
// effective unit price so the line total is always reconstructable
// without re-running pricing.
type Item struct {
	ItemID    id.ID          `db:"item_id" json:"itemId"`
	LineNo    int            `db:"line_no" json:"lineNo"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	Qty       types.Quantity `db:"qty" json:"qty"`
	UnitKind  string         `db:"unit_kind" json:"unitKind"`

	BaseUnitPrice types.Money `db:"base_unit_price" json:"baseUnitPrice"`
	UnitPrice     types.Money `db:"unit_price" json:"unitPrice"`
	Discount      types.Money `db:"discount" json:"discount"`
	LineTotal     types.Money `db:"line_total" json:"lineTotal"`
}

// Repository is the order store.
type Repository interface {
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)

	// GetByCode returns nil, nil when no order carries the code. The
	// remit transaction uses it for the lookup-before-insert idempotency
	// check on roadside codes.
	GetByCode(ctx context.Context, code string) (*Order, error)

	ListByRun(ctx context.Context, runID id.ID) ([]*Order, error)
	Create(ctx context.Context, o *Order) error
}
