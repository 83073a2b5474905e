package handlers

import (
	"github.com/gin-gonic/gin"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/domain/run"
	"tindahan/internal/infrastructure/http/v1/dto"
)

// RunHandler handles the delivery run lifecycle.
type RunHandler struct {
	*BaseHandler
	service *run.Service
}

// NewRunHandler creates a new run handler.
func NewRunHandler(base *BaseHandler, service *run.Service) *RunHandler {
	return &RunHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create handles POST /runs
func (h *RunHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateRunRequest
	if !h.BindJSON(c, &req) {
		return
	}

	riderID, err := id.Parse(req.RiderID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid rider id"))
		return
	}

	r, err := h.service.Create(ctx, riderID, req.RiderName)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, r.ID)
}

// List handles GET /runs
func (h *RunHandler) List(c *gin.Context) {
	var req dto.RunListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	filter, err := req.ToFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	runs, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(runs, len(runs)))
}

// Get handles GET /runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	runID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	r, err := h.service.Get(c.Request.Context(), runID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}

// Dispatch handles POST /runs/:id/dispatch
func (h *RunHandler) Dispatch(c *gin.Context) {
	runID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.DispatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	lines, err := req.ToLoadLines()
	if err != nil {
		h.Error(c, err)
		return
	}

	r, err := h.service.Dispatch(c.Request.Context(), runID, lines)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}

// RecordCheckin handles PUT /runs/:id/checkin. Repeatable while the run
// is DISPATCHED; each call replaces the previous snapshot.
func (h *RunHandler) RecordCheckin(c *gin.Context) {
	runID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.CheckinRequest
	if !h.BindJSON(c, &req) {
		return
	}
	snapshot, err := req.ToSnapshot()
	if err != nil {
		h.Error(c, err)
		return
	}

	r, err := h.service.RecordCheckin(c.Request.Context(), runID, snapshot)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}

// ConfirmCheckin handles POST /runs/:id/checkin/confirm. Freezes the
// manager-verified receipts and moves the run to CHECKED_IN.
func (h *RunHandler) ConfirmCheckin(c *gin.Context) {
	runID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.ConfirmCheckinRequest
	if !h.BindJSON(c, &req) {
		return
	}
	receipts, err := req.ToReceipts(runID)
	if err != nil {
		h.Error(c, err)
		return
	}

	r, err := h.service.ConfirmCheckin(c.Request.Context(), runID, receipts)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}

// Cancel handles POST /runs/:id/cancel
func (h *RunHandler) Cancel(c *gin.Context) {
	runID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	r, err := h.service.Cancel(c.Request.Context(), runID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, r)
}

// Recap handles POST /runs/:id/recap. A POST because the manager may
// send live preview returns for a run that has not posted yet.
func (h *RunHandler) Recap(c *gin.Context) {
	runID, ok := h.PathID(c, "id")
	if !ok {
		return
	}

	var req dto.RecapRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}
	preview, err := req.ToPreviewMap()
	if err != nil {
		h.Error(c, err)
		return
	}

	rows, err := h.service.Recap(c.Request.Context(), runID, preview)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rows, len(rows)))
}

// RegisterRoutes registers run routes. Riders read runs and submit
// check-in data; manage guards the manager-only transitions.
func (h *RunHandler) RegisterRoutes(rg *gin.RouterGroup, manage gin.HandlerFunc) {
	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/recap", h.Recap)
	rg.PUT("/:id/checkin", h.RecordCheckin)

	rg.POST("", manage, h.Create)
	rg.POST("/:id/dispatch", manage, h.Dispatch)
	rg.POST("/:id/checkin/confirm", manage, h.ConfirmCheckin)
	rg.POST("/:id/cancel", manage, h.Cancel)
}
