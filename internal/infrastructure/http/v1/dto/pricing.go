package dto

import (
	"time"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/pricing"
)

// QuoteLineRequest is one cart line to price.
type QuoteLineRequest struct {
	ProductID string `json:"productId" binding:"required,uuid"`
	Qty       int64  `json:"qty" binding:"required,min=1"`
	UnitKind  string `json:"unitKind" binding:"required,oneof=PACK RETAIL"`
}

// QuoteRequest prices a cart for an optional customer.
type QuoteRequest struct {
	CustomerID string             `json:"customerId,omitempty" binding:"omitempty,uuid"`
	Lines      []QuoteLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// CreateRuleRequest for creating pricing rules.
type CreateRuleRequest struct {
	CustomerID string      `json:"customerId" binding:"required,uuid"`
	ProductID  string      `json:"productId,omitempty" binding:"omitempty,uuid"`
	UnitKind   string      `json:"unitKind,omitempty" binding:"omitempty,oneof=PACK RETAIL"`
	Kind       string      `json:"kind" binding:"required,oneof=FIXED_PRICE PERCENT_OFF AMOUNT_OFF"`
	Value      types.Money `json:"value" binding:"required"`
	Condition  string      `json:"condition,omitempty"`
}

// ToRule converts to a domain rule.
func (r *CreateRuleRequest) ToRule() (*pricing.Rule, error) {
	customerID, err := id.Parse(r.CustomerID)
	if err != nil {
		return nil, apperror.NewValidation("invalid customer id")
	}

	rule := &pricing.Rule{
		ID:         id.New(),
		CustomerID: customerID,
		UnitKind:   pricing.UnitKind(r.UnitKind),
		Kind:       pricing.RuleKind(r.Kind),
		Value:      r.Value,
		Condition:  r.Condition,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if r.ProductID != "" {
		productID, err := id.Parse(r.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid product id")
		}
		rule.ProductID = &productID
	}
	return rule, nil
}
