package remit

import (
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/catalog/product"
	"tindahan/internal/domain/order"
	"tindahan/internal/domain/pricing"
	"tindahan/internal/domain/run"
)

// UnitKindClassifier classifies a frozen historical unit price as PACK
// or RETAIL when the stored line does not say. Implemented by the
// pricing engine.
type UnitKindClassifier interface {
	ClassifyFrozenPrice(customerID, productID id.ID, retailBase, packBase types.Money, retailPermitted bool, rules []pricing.Rule, observed types.Money) (pricing.UnitKind, bool)
}

// unitValueSource names where a shortage valuation came from, for the
// posting audit trail.
type unitValueSource string

const (
	sourceRoadReceipt unitValueSource = "ROAD_RECEIPT"
	sourceParentOrder unitValueSource = "PARENT_ORDER"
	sourceSRP         unitValueSource = "SRP"
	sourceBasePrice   unitValueSource = "BASE_PRICE"
)

// valuer resolves unit values for missing stock from the run's frozen
// prices, falling back to catalog prices.
type valuer struct {
	receipts []*run.RunReceipt
	orders   []*order.Order
	products map[id.ID]*product.Product
	kinds    UnitKindClassifier
}

// isPackPrice reports whether a frozen line price may value missing
// stock, which is counted in packs. Lines without a stored unit kind are
// classified against the catalog allowed prices; RETAIL-classified and
// unclassifiable prices fall through to the next valuation source.
func (v *valuer) isPackPrice(productID id.ID, storedKind string, price types.Money) bool {
	if storedKind != "" {
		return storedKind == string(pricing.UnitPack)
	}
	p, ok := v.products[productID]
	if !ok || v.kinds == nil {
		return false
	}
	kind, ok := v.kinds.ClassifyFrozenPrice(id.Nil(), productID, p.RetailPrice, p.PackPrice, p.RetailAllowed, nil, price)
	return ok && kind == pricing.UnitPack
}

// unitValue resolves the value of one missing unit by fixed priority:
// frozen ROAD receipt price, then frozen parent-order item price, then
// SRP, then catalog base price. Frozen prices count only when they are
// pack prices, stored or inferred. Returns false when nothing positive
// resolves; the caller must fail the posting rather than charge zero.
func (v *valuer) unitValue(productID id.ID) (types.Money, unitValueSource, bool) {
	for _, rcpt := range v.receipts {
		if rcpt.Kind != run.ReceiptRoad {
			continue
		}
		for _, line := range rcpt.Lines {
			if line.ProductID == productID && line.UnitPrice.IsPositive() &&
				v.isPackPrice(productID, line.UnitKind, line.UnitPrice) {
				return line.UnitPrice, sourceRoadReceipt, true
			}
		}
	}

	for _, o := range v.orders {
		if order.IsRoadsideCode(o.Code) {
			continue
		}
		for _, item := range o.Items {
			if item.ProductID == productID && item.UnitPrice.IsPositive() &&
				v.isPackPrice(productID, item.UnitKind, item.UnitPrice) {
				return item.UnitPrice, sourceParentOrder, true
			}
		}
	}

	if p, ok := v.products[productID]; ok {
		if p.SRP.IsPositive() {
			return p.SRP, sourceSRP, true
		}
		if p.PackPrice.IsPositive() {
			return p.PackPrice, sourceBasePrice, true
		}
		if p.RetailPrice.IsPositive() {
			return p.RetailPrice, sourceBasePrice, true
		}
	}

	return types.ZeroMoney(), "", false
}

// shortageLine is one valued missing-stock line.
type shortageLine struct {
	ProductID id.ID
	Qty       types.Quantity
	UnitValue types.Money
	Value     types.Money
	Source    unitValueSource
}

// valueShortage values every missing line, returning the unvalued
// product ids when any line cannot be priced.
func (v *valuer) valueShortage(policy types.MoneyPolicy, missing map[id.ID]types.Quantity) ([]shortageLine, []id.ID) {
	var lines []shortageLine
	var unvalued []id.ID
	for productID, qty := range missing {
		unit, source, ok := v.unitValue(productID)
		if !ok {
			unvalued = append(unvalued, productID)
			continue
		}
		lines = append(lines, shortageLine{
			ProductID: productID,
			Qty:       qty,
			UnitValue: unit,
			Value:     policy.Round(unit.Mul(qty.Money())),
			Source:    source,
		})
	}
	return lines, unvalued
}

func shortageTotal(lines []shortageLine) types.Money {
	total := types.ZeroMoney()
	for _, l := range lines {
		total = total.Add(l.Value)
	}
	return total
}
