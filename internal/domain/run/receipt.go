package run

import (
	"time"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

// ReceiptKind distinguishes how a sale on the run originated.
type ReceiptKind string

const (
	// ReceiptRoad is a roadside sale made by the rider during the run.
	ReceiptRoad ReceiptKind = "ROAD"

	// ReceiptParent settles a pre-existing POS order delivered on the run.
	ReceiptParent ReceiptKind = "PARENT"
)

// RunReceipt is one verified sale on a run. Line prices are frozen when
// the manager confirms the receipt at check-in and never recomputed.
type RunReceipt struct {
	ID    id.ID       `db:"id" json:"id"`
	RunID id.ID       `db:"run_id" json:"runId"`
	Kind  ReceiptKind `db:"kind" json:"kind"`

	// Number is allocated from the receipt sequence at confirmation.
	Number string `db:"number" json:"number"`

	CustomerID    *id.ID `db:"customer_id" json:"customerId,omitempty"`
	ParentOrderID *id.ID `db:"parent_order_id" json:"parentOrderId,omitempty"`

	FrozenTotal   types.Money `db:"frozen_total" json:"frozenTotal"`
	CashCollected types.Money `db:"cash_collected" json:"cashCollected"`

	// OnCredit marks the shortfall as an agreed credit sale. With a
	// customer attached it becomes AR directly at posting; without this
	// flag a shortfall opens a clearance case instead.
	OnCredit bool `db:"on_credit" json:"onCredit"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`

	Lines []ReceiptLine `db:"-" json:"lines"`
}

// ReceiptLine is one frozen-priced line on a receipt.
type ReceiptLine struct {
	LineID    id.ID          `db:"line_id" json:"lineId"`
	ReceiptID id.ID          `db:"receipt_id" json:"receiptId"`
	LineNo    int            `db:"line_no" json:"lineNo"`
	ProductID id.ID          `db:"product_id" json:"productId"`
	Qty       types.Quantity `db:"qty" json:"qty"`
	UnitKind  string         `db:"unit_kind" json:"unitKind"`

	BaseUnitPrice types.Money `db:"base_unit_price" json:"baseUnitPrice"`
	UnitPrice     types.Money `db:"unit_price" json:"unitPrice"`
	LineTotal     types.Money `db:"line_total" json:"lineTotal"`
}

// Shortfall is the uncollected part of the frozen total, never negative.
func (r *RunReceipt) Shortfall() types.Money {
	d := r.FrozenTotal.Sub(r.CashCollected)
	if d.IsNegative() {
		return types.ZeroMoney()
	}
	return d
}

// Validate checks receipt shape before confirmation.
func (r *RunReceipt) Validate(policy types.MoneyPolicy) error {
	switch r.Kind {
	case ReceiptRoad, ReceiptParent:
	default:
		return apperror.NewValidation("unknown receipt kind").WithDetail("kind", string(r.Kind))
	}
	if r.Kind == ReceiptParent && r.ParentOrderID == nil {
		return apperror.NewValidation("parent receipt must reference an order")
	}
	if r.Kind == ReceiptRoad && len(r.Lines) == 0 {
		return apperror.NewValidation("road receipt must have at least one line")
	}
	if r.FrozenTotal.IsNegative() || r.CashCollected.IsNegative() {
		return apperror.NewValidation("receipt amounts must not be negative")
	}
	if r.CashCollected.Sub(r.FrozenTotal).GreaterThan(policy.Epsilon) {
		return apperror.NewValidation("cash collected exceeds receipt total").
			WithDetail("frozen_total", r.FrozenTotal.String()).
			WithDetail("cash_collected", r.CashCollected.String())
	}
	for _, line := range r.Lines {
		if !line.Qty.IsPositive() {
			return apperror.NewValidation("receipt line quantities must be positive").
				WithDetail("product_id", line.ProductID.String())
		}
	}
	return nil
}
