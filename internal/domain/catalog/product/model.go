// Package product provides the product catalog, consumed read-only by the
// pricing, recap and remit components. Stock-on-hand is the one mutable
// counter, credited by verified run returns.
package product

import (
	"context"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/entity"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

// Product is one sellable item. A product is dispatched and counted in
// packs; RetailAllowed products may additionally be sold per piece.
type Product struct {
	entity.Base

	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	// PackPrice is the base price per pack.
	PackPrice types.Money `db:"pack_price" json:"packPrice"`

	// RetailPrice is the base price per retail piece (if RetailAllowed).
	RetailPrice types.Money `db:"retail_price" json:"retailPrice"`

	// SRP is the suggested retail price, used as a valuation fallback
	// when no frozen price exists for missing stock.
	SRP types.Money `db:"srp" json:"srp"`

	RetailAllowed bool `db:"retail_allowed" json:"retailAllowed"`

	// PackSize is the number of retail pieces per pack.
	PackSize int `db:"pack_size" json:"packSize"`

	// StockOnHand is the warehouse stock counter in packs.
	StockOnHand types.Quantity `db:"stock_on_hand" json:"stockOnHand"`

	Active bool `db:"active" json:"active"`
}

// New creates an active product.
func New(code, name string) *Product {
	return &Product{
		Base:   entity.NewBase(),
		Code:   code,
		Name:   name,
		Active: true,
	}
}

// BasePriceFor returns the base unit price for the given unit kind.
func (p *Product) BasePriceFor(kind string) types.Money {
	if kind == "RETAIL" {
		return p.RetailPrice
	}
	return p.PackPrice
}

// Validate implements entity.Validatable.
func (p *Product) Validate(ctx context.Context) error {
	if p.Code == "" {
		return apperror.NewValidation("code is required").WithDetail("field", "code")
	}
	if p.Name == "" {
		return apperror.NewValidation("name is required").WithDetail("field", "name")
	}
	if p.PackPrice.IsNegative() || p.RetailPrice.IsNegative() || p.SRP.IsNegative() {
		return apperror.NewValidation("prices must not be negative")
	}
	return nil
}

// Repository is the read-mostly product store.
type Repository interface {
	GetByID(ctx context.Context, productID id.ID) (*Product, error)
	GetByIDs(ctx context.Context, productIDs []id.ID) (map[id.ID]*Product, error)
	List(ctx context.Context, activeOnly bool) ([]*Product, error)
	Create(ctx context.Context, p *Product) error

	// AddStock increments stock-on-hand. Negative deltas are rejected by
	// a CHECK constraint when they would drive the counter below zero.
	AddStock(ctx context.Context, productID id.ID, delta types.Quantity) error
}
