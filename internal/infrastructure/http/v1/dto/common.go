// Package dto provides data transfer objects for the HTTP API.
package dto

import (
	"tindahan/internal/core/id"
)

// --- Pagination ---

// PageRequest contains pagination parameters.
type PageRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults sets default pagination values.
func (p *PageRequest) Defaults() {
	if p.Limit == 0 {
		p.Limit = 50
	}
}

// ListResponse wraps list results.
type ListResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}

// NewListResponse creates a list response.
func NewListResponse(items any, count int) ListResponse {
	return ListResponse{Items: items, Count: count}
}

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates an ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
