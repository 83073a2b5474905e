// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tindahan/internal/core/appctx"
	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/infrastructure/http/v1/dto"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// BindQuery binds and validates query parameters.
func (h *BaseHandler) BindQuery(c *gin.Context, obj any) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid query parameters").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers error on Gin context and aborts request. The JSON
// response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// PathID parses a uuid path parameter.
func (h *BaseHandler) PathID(c *gin.Context, name string) (id.ID, bool) {
	parsed, err := id.Parse(c.Param(name))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid "+name).WithDetail("param", name))
		return id.Nil(), false
	}
	return parsed, true
}

// ParseIntQuery parses an integer query parameter with a default value.
func (h *BaseHandler) ParseIntQuery(c *gin.Context, key string, defaultVal int) int {
	val := c.Query(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// CurrentUserID extracts the authenticated user's id from context.
func (h *BaseHandler) CurrentUserID(c *gin.Context) (id.ID, bool) {
	user := appctx.GetUser(c.Request.Context())
	if user == nil {
		h.Error(c, apperror.NewUnauthorized("authentication required"))
		return id.Nil(), false
	}
	userID, err := id.Parse(user.UserID)
	if err != nil {
		h.Error(c, apperror.NewUnauthorized("invalid user id in token"))
		return id.Nil(), false
	}
	return userID, true
}

// Created sends 201 response with ID.
func (h *BaseHandler) Created(c *gin.Context, entityID id.ID) {
	c.JSON(http.StatusCreated, dto.NewIDResponse(entityID))
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
