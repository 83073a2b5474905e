package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"tindahan/internal/core/id"
	"tindahan/internal/domain/audit"
	"tindahan/internal/domain/remit"
	"tindahan/internal/infrastructure/http/v1/dto"
)

// ChargeReader lists open rider charges.
type ChargeReader interface {
	ListOpenByRider(ctx context.Context, riderID id.ID) ([]*remit.RiderCharge, error)
}

// RemitHandler handles remit posting and run financial summaries.
type RemitHandler struct {
	*BaseHandler
	service *remit.Service
	charges ChargeReader
	auditor audit.Recorder
}

// NewRemitHandler creates a new remit handler.
func NewRemitHandler(base *BaseHandler, service *remit.Service, charges ChargeReader, auditor audit.Recorder) *RemitHandler {
	return &RemitHandler{
		BaseHandler: base,
		service:     service,
		charges:     charges,
		auditor:     auditor,
	}
}

// Post handles POST /runs/:id/remit. The all-or-nothing closing
// transaction; re-posting a CLOSED run is a no-op.
func (h *RemitHandler) Post(c *gin.Context) {
	runID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	userID, ok := h.CurrentUserID(c)
	if !ok {
		return
	}

	var req dto.PostRemitRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToPostInput(runID)
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.Post(c.Request.Context(), userID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Summary handles GET /runs/:id/summary. The financial breakdown used
// by the conservation check.
func (h *RemitHandler) Summary(c *gin.Context) {
	runID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), runID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// OpenCharges handles GET /riders/:id/charges
func (h *RemitHandler) OpenCharges(c *gin.Context) {
	riderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	charges, err := h.charges.ListOpenByRider(c.Request.Context(), riderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(charges, len(charges)))
}

// AuditTrail handles GET /runs/:id/audit
func (h *RemitHandler) AuditTrail(c *gin.Context) {
	runID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	entries, err := h.auditor.List(c.Request.Context(), "delivery_run", runID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries, len(entries)))
}

// RegisterRoutes registers remit routes. manage guards posting and the
// charge listing.
func (h *RemitHandler) RegisterRoutes(rg *gin.RouterGroup, manage gin.HandlerFunc) {
	rg.GET("/runs/:id/summary", h.Summary)
	rg.POST("/runs/:id/remit", manage, h.Post)
	rg.GET("/runs/:id/audit", manage, h.AuditTrail)
	rg.GET("/riders/:id/charges", manage, h.OpenCharges)
}
