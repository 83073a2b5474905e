package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/catalog/customer"
	"tindahan/internal/domain/catalog/product"
	"tindahan/internal/domain/pricing"
	"tindahan/internal/infrastructure/http/v1/dto"
)

// RuleWriter stores pricing rules.
type RuleWriter interface {
	CreateRule(ctx context.Context, rule *pricing.Rule) error
}

// PricingHandler handles quote previews and pricing rule management.
type PricingHandler struct {
	*BaseHandler
	engine    *pricing.Engine
	products  product.Repository
	customers customer.Repository
	rules     RuleWriter
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(base *BaseHandler, engine *pricing.Engine, products product.Repository, customers customer.Repository, rules RuleWriter) *PricingHandler {
	return &PricingHandler{
		BaseHandler: base,
		engine:      engine,
		products:    products,
		customers:   customers,
		rules:       rules,
	}
}

// Quote handles POST /pricing/quote. It prices a cart without creating
// anything; the same engine runs inside check-in confirmation.
func (h *PricingHandler) Quote(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.QuoteRequest
	if !h.BindJSON(c, &req) {
		return
	}

	customerID := id.Nil()
	var rules []pricing.Rule
	if req.CustomerID != "" {
		parsed, err := id.Parse(req.CustomerID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid customer id"))
			return
		}
		customerID = parsed
		rules, err = h.customers.ActiveRules(ctx, customerID)
		if err != nil {
			h.Error(c, err)
			return
		}
	}

	cart, err := h.buildCart(ctx, req.Lines)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, h.engine.Quote(customerID, cart, rules))
}

func (h *PricingHandler) buildCart(ctx context.Context, lines []dto.QuoteLineRequest) ([]pricing.CartLine, error) {
	ids := make([]id.ID, 0, len(lines))
	for _, l := range lines {
		productID, err := id.Parse(l.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid product id").WithDetail("product_id", l.ProductID)
		}
		ids = append(ids, productID)
	}

	products, err := h.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	cart := make([]pricing.CartLine, 0, len(lines))
	for i, l := range lines {
		p, ok := products[ids[i]]
		if !ok {
			return nil, apperror.NewNotFound("product", l.ProductID)
		}
		kind := pricing.UnitKind(l.UnitKind)
		if kind == pricing.UnitRetail && !p.RetailAllowed {
			return nil, apperror.NewPrecondition(apperror.CodeBusinessRule,
				"product cannot be sold per piece").
				WithDetail("product_id", l.ProductID)
		}
		cart = append(cart, pricing.CartLine{
			ProductID:     ids[i],
			Qty:           types.Quantity(l.Qty),
			BaseUnitPrice: p.BasePriceFor(string(kind)),
			UnitKind:      kind,
		})
	}
	return cart, nil
}

// CreateRule handles POST /pricing/rules
func (h *PricingHandler) CreateRule(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateRuleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	rule, err := req.ToRule()
	if err != nil {
		h.Error(c, err)
		return
	}

	// Reject rules for unknown customers up front.
	if _, err := h.customers.GetByID(ctx, rule.CustomerID); err != nil {
		h.Error(c, err)
		return
	}

	if err := h.rules.CreateRule(ctx, rule); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rule.ID)
}

// ListRules handles GET /pricing/rules/:customerId
func (h *PricingHandler) ListRules(c *gin.Context) {
	customerID, ok := h.PathID(c, "customerId")
	if !ok {
		return
	}
	rules, err := h.customers.ActiveRules(c.Request.Context(), customerID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rules, len(rules)))
}

// RegisterRoutes registers pricing routes.
func (h *PricingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/quote", h.Quote)
	rg.POST("/rules", h.CreateRule)
	rg.GET("/rules/:customerId", h.ListRules)
}
