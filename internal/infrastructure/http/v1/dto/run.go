package dto

import (
	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/run"
)

// CreateRunRequest for creating runs.
type CreateRunRequest struct {
	RiderID   string `json:"riderId" binding:"required,uuid"`
	RiderName string `json:"riderName,omitempty"`
}

// LoadLineRequest is one manifest line.
type LoadLineRequest struct {
	ProductID string `json:"productId" binding:"required,uuid"`
	Qty       int64  `json:"qty" binding:"required,min=1"`
}

// DispatchRequest freezes the manifest and dispatches the run.
type DispatchRequest struct {
	Lines []LoadLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToLoadLines converts the manifest lines.
func (r *DispatchRequest) ToLoadLines() ([]run.LoadLine, error) {
	lines := make([]run.LoadLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		productID, err := id.Parse(l.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid product id").WithDetail("product_id", l.ProductID)
		}
		lines = append(lines, run.LoadLine{ProductID: productID, Qty: types.Quantity(l.Qty)})
	}
	return lines, nil
}

// QuickSaleRequest is one rider-reported roadside sale line.
type QuickSaleRequest struct {
	ProductID  string      `json:"productId" binding:"required,uuid"`
	Qty        int64       `json:"qty" binding:"required,min=1"`
	UnitKind   string      `json:"unitKind,omitempty" binding:"omitempty,oneof=PACK RETAIL"`
	UnitPrice  types.Money `json:"unitPrice"`
	CustomerID string      `json:"customerId,omitempty" binding:"omitempty,uuid"`
}

// ReturnLineRequest is one rider-claimed return quantity.
type ReturnLineRequest struct {
	ProductID string `json:"productId" binding:"required,uuid"`
	Qty       int64  `json:"qty" binding:"required,min=1"`
}

// CheckinRequest records the rider's self-reported tally.
type CheckinRequest struct {
	QuickSales   []QuickSaleRequest  `json:"quickSales" binding:"dive"`
	Returns      []ReturnLineRequest `json:"returns" binding:"dive"`
	CashDeclared types.Money         `json:"cashDeclared"`
	Note         string              `json:"note,omitempty"`
}

// ToSnapshot converts to a domain check-in snapshot.
func (r *CheckinRequest) ToSnapshot() (*run.CheckinSnapshot, error) {
	s := run.NewCheckinSnapshot()
	s.CashDeclared = r.CashDeclared
	s.Note = r.Note

	for _, qs := range r.QuickSales {
		productID, err := id.Parse(qs.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid product id").WithDetail("product_id", qs.ProductID)
		}
		sale := run.QuickSale{
			ProductID: productID,
			Qty:       types.Quantity(qs.Qty),
			UnitKind:  qs.UnitKind,
			UnitPrice: qs.UnitPrice,
		}
		if qs.CustomerID != "" {
			customerID, err := id.Parse(qs.CustomerID)
			if err != nil {
				return nil, apperror.NewValidation("invalid customer id").WithDetail("customer_id", qs.CustomerID)
			}
			sale.CustomerID = &customerID
		}
		s.QuickSales = append(s.QuickSales, sale)
	}

	for _, rl := range r.Returns {
		productID, err := id.Parse(rl.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid product id").WithDetail("product_id", rl.ProductID)
		}
		s.Returns = append(s.Returns, run.ReturnLine{ProductID: productID, Qty: types.Quantity(rl.Qty)})
	}

	return s, nil
}

// ReceiptLineRequest is one frozen-priced receipt line.
type ReceiptLineRequest struct {
	ProductID string      `json:"productId" binding:"required,uuid"`
	Qty       int64       `json:"qty" binding:"required,min=1"`
	UnitKind  string      `json:"unitKind,omitempty" binding:"omitempty,oneof=PACK RETAIL"`
	UnitPrice types.Money `json:"unitPrice"`
}

// ReceiptRequest is one verified sale submitted at check-in confirmation.
type ReceiptRequest struct {
	Kind          string               `json:"kind" binding:"required,oneof=ROAD PARENT"`
	CustomerID    string               `json:"customerId,omitempty" binding:"omitempty,uuid"`
	ParentOrderID string               `json:"parentOrderId,omitempty" binding:"omitempty,uuid"`
	FrozenTotal   types.Money          `json:"frozenTotal"`
	CashCollected types.Money          `json:"cashCollected"`
	OnCredit      bool                 `json:"onCredit"`
	Lines         []ReceiptLineRequest `json:"lines" binding:"dive"`
}

// ConfirmCheckinRequest carries the manager-verified receipts.
type ConfirmCheckinRequest struct {
	Receipts []ReceiptRequest `json:"receipts" binding:"dive"`
}

// ToReceipts converts to domain receipts. IDs and numbers are allocated
// by the run service, not here.
func (r *ConfirmCheckinRequest) ToReceipts(runID id.ID) ([]*run.RunReceipt, error) {
	receipts := make([]*run.RunReceipt, 0, len(r.Receipts))
	for _, req := range r.Receipts {
		rcpt := &run.RunReceipt{
			RunID:         runID,
			Kind:          run.ReceiptKind(req.Kind),
			FrozenTotal:   req.FrozenTotal,
			CashCollected: req.CashCollected,
			OnCredit:      req.OnCredit,
		}
		if req.CustomerID != "" {
			customerID, err := id.Parse(req.CustomerID)
			if err != nil {
				return nil, apperror.NewValidation("invalid customer id").WithDetail("customer_id", req.CustomerID)
			}
			rcpt.CustomerID = &customerID
		}
		if req.ParentOrderID != "" {
			orderID, err := id.Parse(req.ParentOrderID)
			if err != nil {
				return nil, apperror.NewValidation("invalid parent order id").WithDetail("parent_order_id", req.ParentOrderID)
			}
			rcpt.ParentOrderID = &orderID
		}
		for i, l := range req.Lines {
			productID, err := id.Parse(l.ProductID)
			if err != nil {
				return nil, apperror.NewValidation("invalid product id").WithDetail("product_id", l.ProductID)
			}
			rcpt.Lines = append(rcpt.Lines, run.ReceiptLine{
				LineNo:    i + 1,
				ProductID: productID,
				Qty:       types.Quantity(l.Qty),
				UnitKind:  l.UnitKind,
				UnitPrice: l.UnitPrice,
			})
		}
		receipts = append(receipts, rcpt)
	}
	return receipts, nil
}

// RecapRequest carries optional live preview returns for an open run.
type RecapRequest struct {
	PreviewReturns []ReturnLineRequest `json:"previewReturns" binding:"dive"`
}

// ToPreviewMap converts preview returns to the recap input map.
func (r *RecapRequest) ToPreviewMap() (map[id.ID]types.Quantity, error) {
	if len(r.PreviewReturns) == 0 {
		return nil, nil
	}
	out := make(map[id.ID]types.Quantity, len(r.PreviewReturns))
	for _, rl := range r.PreviewReturns {
		productID, err := id.Parse(rl.ProductID)
		if err != nil {
			return nil, apperror.NewValidation("invalid product id").WithDetail("product_id", rl.ProductID)
		}
		out[productID] += types.Quantity(rl.Qty)
	}
	return out, nil
}

// RunListRequest filters the run list.
type RunListRequest struct {
	PageRequest
	Status  string `form:"status" binding:"omitempty,oneof=PLANNED DISPATCHED CHECKED_IN CLOSED CANCELLED"`
	RiderID string `form:"riderId" binding:"omitempty,uuid"`
}

// ToFilter converts to the repository filter.
func (r *RunListRequest) ToFilter() (run.ListFilter, error) {
	r.Defaults()
	filter := run.ListFilter{
		Status: run.Status(r.Status),
		Limit:  r.Limit,
		Offset: r.Offset,
	}
	if r.RiderID != "" {
		riderID, err := id.Parse(r.RiderID)
		if err != nil {
			return filter, apperror.NewValidation("invalid rider id")
		}
		filter.RiderID = &riderID
	}
	return filter, nil
}
