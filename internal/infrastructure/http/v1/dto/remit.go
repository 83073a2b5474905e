package dto

import (
	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/domain/remit"
)

// PostRemitRequest closes a run.
type PostRemitRequest struct {
	Action string `json:"action" binding:"required,oneof=APPROVE_CLOSE CHARGE_CLOSE"`

	// Dispositions maps product id to PRESENT or MISSING for every
	// recap line with an unaccounted diff.
	Dispositions map[string]string `json:"dispositions"`

	Note string `json:"note,omitempty"`
}

// ToPostInput converts to the domain posting input.
func (r *PostRemitRequest) ToPostInput(runID id.ID) (remit.PostInput, error) {
	in := remit.PostInput{
		RunID:  runID,
		Action: remit.Action(r.Action),
		Note:   r.Note,
	}
	if len(r.Dispositions) > 0 {
		in.Dispositions = make(map[id.ID]remit.Disposition, len(r.Dispositions))
		for rawID, rawDisp := range r.Dispositions {
			productID, err := id.Parse(rawID)
			if err != nil {
				return in, apperror.NewValidation("invalid product id in dispositions").
					WithDetail("product_id", rawID)
			}
			disp := remit.Disposition(rawDisp)
			if disp != remit.DispositionPresent && disp != remit.DispositionMissing {
				return in, apperror.NewValidation("disposition must be PRESENT or MISSING").
					WithDetail("product_id", rawID).
					WithDetail("disposition", rawDisp)
			}
			in.Dispositions[productID] = disp
		}
	}
	return in, nil
}
