// Package customer provides the customer catalog and per-customer pricing
// rules, consumed read-only by the pricing engine and clearance flow.
package customer

import (
	"context"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/entity"
	"tindahan/internal/core/id"
	"tindahan/internal/domain/pricing"
)

// Customer is a buying party. AR can only be tracked against a customer,
// never an anonymous walk-in.
type Customer struct {
	entity.Base

	Code   string `db:"code" json:"code"`
	Name   string `db:"name" json:"name"`
	Phone  string `db:"phone" json:"phone,omitempty"`
	Active bool   `db:"active" json:"active"`
}

// New creates an active customer.
func New(code, name string) *Customer {
	return &Customer{
		Base:   entity.NewBase(),
		Code:   code,
		Name:   name,
		Active: true,
	}
}

// Validate implements entity.Validatable.
func (c *Customer) Validate(ctx context.Context) error {
	if c.Code == "" {
		return apperror.NewValidation("code is required").WithDetail("field", "code")
	}
	if c.Name == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	return nil
}

// Repository is the customer store.
type Repository interface {
	GetByID(ctx context.Context, customerID id.ID) (*Customer, error)
	List(ctx context.Context, activeOnly bool) ([]*Customer, error)
	Create(ctx context.Context, c *Customer) error

	// ActiveRules returns the active pricing rules for one customer.
	ActiveRules(ctx context.Context, customerID id.ID) ([]pricing.Rule, error)
}
