// Package pricing provides the customer pricing engine.
// The engine is a pure function of (cart, rules): no I/O, safe to call for
// both preview quotes and the authoritative remit posting.
package pricing

import (
	"time"

	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

// UnitKind distinguishes pack sales from per-piece retail sales.
type UnitKind string

const (
	UnitPack   UnitKind = "PACK"
	UnitRetail UnitKind = "RETAIL"
)

// RuleKind determines how a rule transforms the base price.
type RuleKind string

const (
	// RuleFixedPrice sets the unit price outright.
	RuleFixedPrice RuleKind = "FIXED_PRICE"
	// RulePercentOff discounts the base price by a percentage.
	RulePercentOff RuleKind = "PERCENT_OFF"
	// RuleAmountOff subtracts a fixed amount from the base price.
	RuleAmountOff RuleKind = "AMOUNT_OFF"
)

// Rule is a customer-specific pricing rule, consumed read-only.
type Rule struct {
	ID         id.ID       `db:"id" json:"id"`
	CustomerID id.ID       `db:"customer_id" json:"customerId"`
	ProductID  *id.ID      `db:"product_id" json:"productId,omitempty"` // nil = any product
	UnitKind   UnitKind    `db:"unit_kind" json:"unitKind,omitempty"`   // "" = any unit kind
	Kind       RuleKind    `db:"kind" json:"kind"`
	Value      types.Money `db:"value" json:"value"`

	// Condition is an optional CEL expression gating the rule,
	// e.g. "qty >= 10.0 && unit_kind == 'PACK'".
	Condition string `db:"condition" json:"condition,omitempty"`

	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// matches reports whether the rule targets the given line at all
// (before any condition expression is evaluated).
func (r Rule) matches(line CartLine) bool {
	if !r.Active {
		return false
	}
	if r.ProductID != nil && *r.ProductID != line.ProductID {
		return false
	}
	if r.UnitKind != "" && r.UnitKind != line.UnitKind {
		return false
	}
	return true
}

// specificity ranks rule precision: product match counts double a
// unit-kind match, so product-specific rules always beat kind-wide ones.
func (r Rule) specificity() int {
	score := 0
	if r.ProductID != nil {
		score += 2
	}
	if r.UnitKind != "" {
		score++
	}
	return score
}

// CartLine is one line of a cart to be priced.
type CartLine struct {
	ProductID     id.ID          `json:"productId"`
	Qty           types.Quantity `json:"qty"`
	BaseUnitPrice types.Money    `json:"baseUnitPrice"`
	UnitKind      UnitKind       `json:"unitKind"`
}

// LineQuote is the priced form of one cart line.
type LineQuote struct {
	ProductID          id.ID          `json:"productId"`
	UnitKind           UnitKind       `json:"unitKind"`
	Qty                types.Quantity `json:"qty"`
	BaseUnitPrice      types.Money    `json:"baseUnitPrice"`
	EffectiveUnitPrice types.Money    `json:"effectiveUnitPrice"`
	DiscountPerUnit    types.Money    `json:"discountPerUnit"`
	LineTotal          types.Money    `json:"lineTotal"`
	AppliedRuleID      *id.ID         `json:"appliedRuleId,omitempty"`
}

// Quote is a fully priced cart.
type Quote struct {
	Lines []LineQuote `json:"lines"`
	Total types.Money `json:"total"`
}
