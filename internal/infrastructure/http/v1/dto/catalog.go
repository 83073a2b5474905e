package dto

import (
	"tindahan/internal/core/types"
	"tindahan/internal/domain/catalog/customer"
	"tindahan/internal/domain/catalog/product"
)

// CreateProductRequest for creating products.
type CreateProductRequest struct {
	Code          string      `json:"code" binding:"required"`
	Name          string      `json:"name" binding:"required"`
	PackPrice     types.Money `json:"packPrice"`
	RetailPrice   types.Money `json:"retailPrice"`
	SRP           types.Money `json:"srp"`
	RetailAllowed bool        `json:"retailAllowed"`
	PackSize      int         `json:"packSize"`
	StockOnHand   int64       `json:"stockOnHand"`
}

// ToProduct converts to a domain product.
func (r *CreateProductRequest) ToProduct() *product.Product {
	p := product.New(r.Code, r.Name)
	p.PackPrice = r.PackPrice
	p.RetailPrice = r.RetailPrice
	p.SRP = r.SRP
	p.RetailAllowed = r.RetailAllowed
	p.PackSize = r.PackSize
	p.StockOnHand = types.Quantity(r.StockOnHand)
	return p
}

// CreateCustomerRequest for creating customers.
type CreateCustomerRequest struct {
	Code  string `json:"code" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone,omitempty"`
}

// ToCustomer converts to a domain customer.
func (r *CreateCustomerRequest) ToCustomer() *customer.Customer {
	c := customer.New(r.Code, r.Name)
	c.Phone = r.Phone
	return c
}
