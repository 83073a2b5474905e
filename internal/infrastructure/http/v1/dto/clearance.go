package dto

import (
	"time"

	"tindahan/internal/core/types"
	"tindahan/internal/domain/clearance"
)

// DecideRequest resolves one clearance case.
type DecideRequest struct {
	Action           string      `json:"action" binding:"required,oneof=APPROVE REJECT"`
	ApprovedDiscount types.Money `json:"approvedDiscount"`
	Note             string      `json:"note" binding:"required"`
	DueDate          *time.Time  `json:"dueDate,omitempty"`
}

// ToDecideInput converts to the domain decide input.
func (r *DecideRequest) ToDecideInput() clearance.DecideInput {
	return clearance.DecideInput{
		Action:           clearance.Action(r.Action),
		ApprovedDiscount: r.ApprovedDiscount,
		Note:             r.Note,
		DueDate:          r.DueDate,
	}
}

// CaseResponse pairs a case with its decision, when decided.
type CaseResponse struct {
	Case     *clearance.Case     `json:"case"`
	Decision *clearance.Decision `json:"decision,omitempty"`
}
