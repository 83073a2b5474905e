package handlers

import (
	"github.com/gin-gonic/gin"

	"tindahan/internal/domain/clearance"
	"tindahan/internal/infrastructure/http/v1/dto"
)

// ClearanceHandler handles clearance case endpoints.
type ClearanceHandler struct {
	*BaseHandler
	service *clearance.Service
}

// NewClearanceHandler creates a new clearance handler.
func NewClearanceHandler(base *BaseHandler, service *clearance.Service) *ClearanceHandler {
	return &ClearanceHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Get handles GET /clearance/cases/:id
func (h *ClearanceHandler) Get(c *gin.Context) {
	caseID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	cs, decision, err := h.service.Get(c.Request.Context(), caseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.CaseResponse{Case: cs, Decision: decision})
}

// ListByRun handles GET /clearance/cases?runId=...
func (h *ClearanceHandler) ListByRun(c *gin.Context) {
	runID, ok := h.PathID(c, "runId")
	if !ok {
		return
	}
	cases, err := h.service.ListByRun(c.Request.Context(), runID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(cases, len(cases)))
}

// Decide handles POST /clearance/cases/:id/decide
func (h *ClearanceHandler) Decide(c *gin.Context) {
	caseID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	userID, ok := h.CurrentUserID(c)
	if !ok {
		return
	}

	var req dto.DecideRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Decide(c.Request.Context(), caseID, userID, req.ToDecideInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// RejectedUnresolved handles GET /clearance/rejected. The dashboard of
// rejected shortfalls with no automatic follow-up.
func (h *ClearanceHandler) RejectedUnresolved(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", 50)
	offset := h.ParseIntQuery(c, "offset", 0)

	cases, err := h.service.ListRejectedUnresolved(c.Request.Context(), limit, offset)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(cases, len(cases)))
}

// RegisterRoutes registers clearance routes. decide guards the
// manager-only decision endpoint.
func (h *ClearanceHandler) RegisterRoutes(rg *gin.RouterGroup, decide gin.HandlerFunc) {
	rg.GET("/cases/:id", h.Get)
	rg.GET("/runs/:runId/cases", h.ListByRun)
	rg.GET("/rejected", h.RejectedUnresolved)
	rg.POST("/cases/:id/decide", decide, h.Decide)
}
