package handlers

import (
	"github.com/gin-gonic/gin"

	"tindahan/internal/domain/catalog/customer"
	"tindahan/internal/domain/catalog/product"
	"tindahan/internal/infrastructure/http/v1/dto"
)

// CatalogHandler handles product and customer endpoints.
type CatalogHandler struct {
	*BaseHandler
	products  product.Repository
	customers customer.Repository
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(base *BaseHandler, products product.Repository, customers customer.Repository) *CatalogHandler {
	return &CatalogHandler{
		BaseHandler: base,
		products:    products,
		customers:   customers,
	}
}

// ListProducts handles GET /catalog/products
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	activeOnly := c.Query("all") == ""
	products, err := h.products.List(c.Request.Context(), activeOnly)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(products, len(products)))
}

// GetProduct handles GET /catalog/products/:id
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	productID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	p, err := h.products.GetByID(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// CreateProduct handles POST /catalog/products
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p := req.ToProduct()
	if err := p.Validate(ctx); err != nil {
		h.Error(c, err)
		return
	}
	if err := h.products.Create(ctx, p); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, p.ID)
}

// ListCustomers handles GET /catalog/customers
func (h *CatalogHandler) ListCustomers(c *gin.Context) {
	activeOnly := c.Query("all") == ""
	customers, err := h.customers.List(c.Request.Context(), activeOnly)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(customers, len(customers)))
}

// GetCustomer handles GET /catalog/customers/:id
func (h *CatalogHandler) GetCustomer(c *gin.Context) {
	customerID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	cust, err := h.customers.GetByID(c.Request.Context(), customerID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, cust)
}

// CreateCustomer handles POST /catalog/customers
func (h *CatalogHandler) CreateCustomer(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateCustomerRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cust := req.ToCustomer()
	if err := cust.Validate(ctx); err != nil {
		h.Error(c, err)
		return
	}
	if err := h.customers.Create(ctx, cust); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, cust.ID)
}

// RegisterRoutes registers catalog routes.
func (h *CatalogHandler) RegisterRoutes(rg *gin.RouterGroup) {
	products := rg.Group("/products")
	products.GET("", h.ListProducts)
	products.GET("/:id", h.GetProduct)
	products.POST("", h.CreateProduct)

	customers := rg.Group("/customers")
	customers.GET("", h.ListCustomers)
	customers.GET("/:id", h.GetCustomer)
	customers.POST("", h.CreateCustomer)
}
