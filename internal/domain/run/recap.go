package run

import (
	"sort"

	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/order"
	"tindahan/internal/domain/stock"
)

// RecapRow is the reconciliation of one product on a run.
type RecapRow struct {
	ProductID id.ID  `json:"productId"`
	Name      string `json:"name"`

	// Loaded is the manifest quantity frozen at dispatch.
	Loaded types.Quantity `json:"loaded"`

	// Sold sums linked POS order lines and roadside sales. Posted ROAD
	// receipts take precedence over the rider's check-in preview.
	Sold types.Quantity `json:"sold"`

	// Returned is the physically verified return quantity. Posted
	// RETURN_IN movements take precedence over the manager's live
	// pre-posting selection.
	Returned types.Quantity `json:"returned"`

	// Diff is the expected-but-unaccounted quantity, never negative.
	// It is the pool the manager classifies as present or missing
	// before the run can close.
	Diff types.Quantity `json:"diff"`
}

// RecapInput gathers everything the calculator reconciles. All fields
// are read-only views; the calculator never touches a store.
type RecapInput struct {
	Loadout *LoadoutSnapshot

	// ParentOrders are orders linked to the run. Roadside-derived orders
	// among them are skipped: their quantities already arrive through
	// the receipts that materialized them.
	ParentOrders []*order.Order

	// RoadReceipts are posted ROAD receipts for the run.
	RoadReceipts []*RunReceipt

	// Checkin is the rider's preview, consulted for quick sales only
	// when no ROAD receipts exist yet.
	Checkin *CheckinSnapshot

	// ReturnMovements are posted RETURN_IN records for the run.
	ReturnMovements []stock.Movement

	// PreviewReturns is the manager's live selection, consulted only
	// when no RETURN_IN movements exist yet.
	PreviewReturns map[id.ID]types.Quantity

	// ProductNames resolves display names; unknown products get "".
	ProductNames map[id.ID]string
}

// BuildRecap produces one row per product seen in any source, sorted by
// product name then id for stable output. Pure function.
func BuildRecap(in RecapInput) []RecapRow {
	rows := map[id.ID]*RecapRow{}
	row := func(productID id.ID) *RecapRow {
		r, ok := rows[productID]
		if !ok {
			r = &RecapRow{ProductID: productID, Name: in.ProductNames[productID]}
			rows[productID] = r
		}
		return r
	}

	if in.Loadout != nil {
		for _, line := range in.Loadout.Lines {
			row(line.ProductID).Loaded += line.Qty
		}
	}

	for _, o := range in.ParentOrders {
		if order.IsRoadsideCode(o.Code) {
			continue
		}
		for _, item := range o.Items {
			row(item.ProductID).Sold += item.Qty
		}
	}

	var road []*RunReceipt
	for _, r := range in.RoadReceipts {
		if r.Kind == ReceiptRoad {
			road = append(road, r)
		}
	}
	if len(road) > 0 {
		for _, r := range road {
			for _, line := range r.Lines {
				row(line.ProductID).Sold += line.Qty
			}
		}
	} else if in.Checkin != nil {
		for _, qs := range in.Checkin.QuickSales {
			row(qs.ProductID).Sold += qs.Qty
		}
	}

	if len(in.ReturnMovements) > 0 {
		for _, m := range in.ReturnMovements {
			if m.Kind != stock.MovementReturnIn {
				continue
			}
			row(m.ProductID).Returned += m.Qty
		}
	} else {
		for productID, qty := range in.PreviewReturns {
			row(productID).Returned += qty
		}
	}

	out := make([]RecapRow, 0, len(rows))
	for _, r := range rows {
		if diff := r.Loaded - r.Sold; diff > 0 {
			r.Diff = diff
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out
}

// OversoldProducts returns the products whose sold quantity exceeds
// loaded. A non-empty result blocks remit posting.
func OversoldProducts(rows []RecapRow) []id.ID {
	var offenders []id.ID
	for _, r := range rows {
		if r.Sold > r.Loaded {
			offenders = append(offenders, r.ProductID)
		}
	}
	return offenders
}
