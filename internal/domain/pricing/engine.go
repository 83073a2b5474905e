package pricing

import (
	"sort"

	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
)

// Engine computes effective prices from customer rules.
// Stateless and side-effect-free; a single instance is safely shared
// across concurrent requests.
type Engine struct {
	policy     types.MoneyPolicy
	conditions *ConditionEvaluator

	// inferEpsilon is the maximum deviation from an allowed price for a
	// frozen historical price to be classified as that unit kind.
	inferEpsilon types.Money
}

// NewEngine creates a pricing engine with the given money policy.
func NewEngine(policy types.MoneyPolicy) (*Engine, error) {
	conditions, err := NewConditionEvaluator()
	if err != nil {
		return nil, err
	}
	return &Engine{
		policy:       policy,
		conditions:   conditions,
		inferEpsilon: policy.Epsilon,
	}, nil
}

// WithInferEpsilon overrides the unit-kind inference tolerance.
func (e *Engine) WithInferEpsilon(eps types.Money) *Engine {
	e.inferEpsilon = eps
	return e
}

// Quote prices a cart for one customer. A nil customer (id.Nil) means no
// discount: every line keeps its base price.
//
// Totals are rounded at the line level (half away from zero) and then
// summed; the sum itself is never re-rounded.
func (e *Engine) Quote(customerID id.ID, cart []CartLine, rules []Rule) Quote {
	quote := Quote{
		Lines: make([]LineQuote, 0, len(cart)),
		Total: types.ZeroMoney(),
	}

	for _, line := range cart {
		lq := e.priceLine(customerID, line, rules)
		quote.Lines = append(quote.Lines, lq)
		quote.Total = quote.Total.Add(lq.LineTotal)
	}

	return quote
}

func (e *Engine) priceLine(customerID id.ID, line CartLine, rules []Rule) LineQuote {
	lq := LineQuote{
		ProductID:          line.ProductID,
		UnitKind:           line.UnitKind,
		Qty:                line.Qty,
		BaseUnitPrice:      line.BaseUnitPrice,
		EffectiveUnitPrice: line.BaseUnitPrice,
		DiscountPerUnit:    types.ZeroMoney(),
	}

	if rule := e.resolveRule(customerID, line, rules); rule != nil {
		effective := e.applyRule(*rule, line.BaseUnitPrice)
		// Never price below zero, never above base without an explicit
		// manager override (which goes through clearance, not rules).
		effective = e.policy.Clamp(effective, types.ZeroMoney(), line.BaseUnitPrice)
		lq.EffectiveUnitPrice = e.policy.Round(effective)
		lq.DiscountPerUnit = line.BaseUnitPrice.Sub(lq.EffectiveUnitPrice)
		ruleID := rule.ID
		lq.AppliedRuleID = &ruleID
	}

	lq.LineTotal = e.policy.Round(lq.EffectiveUnitPrice.Mul(line.Qty.Money()))
	return lq
}

// resolveRule picks the winning rule for a line: most specific first,
// then most recently created, ties broken by id descending.
func (e *Engine) resolveRule(customerID id.ID, line CartLine, rules []Rule) *Rule {
	if id.IsNil(customerID) {
		return nil
	}

	candidates := make([]Rule, 0, 2)
	for _, r := range rules {
		if r.CustomerID != customerID || !r.matches(line) {
			continue
		}
		if r.Condition != "" {
			ok, err := e.conditions.Eval(r.Condition, line)
			if err != nil || !ok {
				continue
			}
		}
		candidates = append(candidates, r)
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.specificity() != b.specificity() {
			return a.specificity() > b.specificity()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})

	return &candidates[0]
}

func (e *Engine) applyRule(rule Rule, base types.Money) types.Money {
	switch rule.Kind {
	case RuleFixedPrice:
		return rule.Value
	case RulePercentOff:
		hundred := types.MustMoney("100")
		return base.Sub(base.Mul(rule.Value).Div(hundred))
	case RuleAmountOff:
		return base.Sub(rule.Value)
	default:
		return base
	}
}

// AllowedPrices returns the effective RETAIL and PACK unit prices this
// customer would pay for a product, used for unit-kind inference.
func (e *Engine) AllowedPrices(customerID id.ID, productID id.ID, retailBase, packBase types.Money, rules []Rule) (retail, pack types.Money) {
	retailLine := CartLine{ProductID: productID, Qty: 1, BaseUnitPrice: retailBase, UnitKind: UnitRetail}
	packLine := CartLine{ProductID: productID, Qty: 1, BaseUnitPrice: packBase, UnitKind: UnitPack}
	return e.priceLine(customerID, retailLine, rules).EffectiveUnitPrice,
		e.priceLine(customerID, packLine, rules).EffectiveUnitPrice
}

// ClassifyFrozenPrice infers the unit kind of a frozen historical price
// from the allowed prices the customer would pay today. Pass id.Nil and
// nil rules for anonymous sales; the bases are then the allowed prices.
func (e *Engine) ClassifyFrozenPrice(customerID, productID id.ID, retailBase, packBase types.Money, retailPermitted bool, rules []Rule, observed types.Money) (UnitKind, bool) {
	retail, pack := e.AllowedPrices(customerID, productID, retailBase, packBase, rules)
	return e.InferUnitKind(observed, retail, pack, retailPermitted)
}

// InferUnitKind classifies a frozen historical unit price as RETAIL or
// PACK by distance to the allowed prices. Ties favor RETAIL only when
// retail sale is permitted for the product. Returns ok=false when neither
// allowed price is within the inference epsilon; callers must treat such
// rows as unclassifiable rather than guessing.
func (e *Engine) InferUnitKind(observed, retailAllowedPrice, packAllowedPrice types.Money, retailPermitted bool) (UnitKind, bool) {
	dRetail := observed.Sub(retailAllowedPrice).Abs()
	dPack := observed.Sub(packAllowedPrice).Abs()

	if dRetail.GreaterThan(e.inferEpsilon) && dPack.GreaterThan(e.inferEpsilon) {
		return "", false
	}

	switch {
	case dRetail.LessThan(dPack):
		if !retailPermitted {
			return UnitPack, dPack.LessThanOrEqual(e.inferEpsilon)
		}
		return UnitRetail, true
	case dPack.LessThan(dRetail):
		return UnitPack, true
	default:
		// Equidistant.
		if retailPermitted {
			return UnitRetail, true
		}
		return UnitPack, true
	}
}
