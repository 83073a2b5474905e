package remit

import (
	"context"
	"time"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/tx"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/audit"
	"tindahan/internal/domain/catalog/product"
	"tindahan/internal/domain/clearance"
	"tindahan/internal/domain/order"
	"tindahan/internal/domain/run"
	"tindahan/internal/domain/stock"
	"tindahan/pkg/logger"
)

// Service executes remit posting. Preconditions run before the
// transaction opens so bad requests fail fast without locking; the
// in-transaction status re-check is the optimistic lock against a
// concurrent posting.
type Service struct {
	runs      run.Repository
	orders    order.Repository
	products  product.Repository
	movements stock.Repository
	clearance *clearance.Service
	ar        clearance.ArRepository
	charges   ChargeRepository
	txManager tx.Manager
	auditor   audit.Recorder
	kinds     UnitKindClassifier
	policy    types.MoneyPolicy
	now       func() time.Time
}

// NewService wires the remit service.
func NewService(
	runs run.Repository,
	orders order.Repository,
	products product.Repository,
	movements stock.Repository,
	clearanceSvc *clearance.Service,
	ar clearance.ArRepository,
	charges ChargeRepository,
	txManager tx.Manager,
	auditor audit.Recorder,
	kinds UnitKindClassifier,
	policy types.MoneyPolicy,
) *Service {
	return &Service{
		runs:      runs,
		orders:    orders,
		products:  products,
		movements: movements,
		clearance: clearanceSvc,
		ar:        ar,
		charges:   charges,
		txManager: txManager,
		auditor:   auditor,
		kinds:     kinds,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// postingPlan is everything the preconditions resolved, handed to the
// transaction body so it never re-derives business inputs.
type postingPlan struct {
	run      *run.DeliveryRun
	receipts []*run.RunReceipt
	orders   []*order.Order

	present map[id.ID]types.Quantity
	missing map[id.ID]types.Quantity

	shortage      []shortageLine
	shortageValue types.Money
}

// Post closes a run. Safe to call again after any failure: roadside
// order codes, the run-level return check and the variance-keyed charge
// make a full re-submission converge on the same final state.
func (s *Service) Post(ctx context.Context, userID id.ID, in PostInput) (*PostResult, error) {
	plan, early, err := s.checkPreconditions(ctx, in)
	if err != nil {
		return nil, err
	}
	if early != nil {
		return early, nil
	}

	result := &PostResult{RunID: in.RunID}
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.runs.GetByIDForUpdate(ctx, in.RunID)
		if err != nil {
			return err
		}
		if locked.Status != run.StatusCheckedIn {
			return apperror.NewConcurrentModification("delivery_run", in.RunID)
		}

		if err := s.materializeRoadOrders(ctx, plan, result); err != nil {
			return err
		}
		if err := s.recordArEntries(ctx, plan); err != nil {
			return err
		}
		if err := s.applyReturns(ctx, plan, result); err != nil {
			return err
		}
		if in.Action == ActionChargeClose {
			charge, err := s.upsertCharge(ctx, plan)
			if err != nil {
				return err
			}
			result.Charge = charge
		}

		if err := locked.MarkClosed(s.now()); err != nil {
			return err
		}
		if err := s.runs.Update(ctx, locked); err != nil {
			return err
		}
		result.Status = string(locked.Status)

		entry := audit.NewEntry(audit.ActionRemitPosted, "delivery_run", in.RunID).
			By(userID).
			With("action", string(in.Action)).
			With("orders_created", result.OrdersCreated).
			With("returned_lines", result.ReturnedLines).
			With("shortage_value", plan.shortageValue.String())
		return s.auditor.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	summary, err := s.Summary(ctx, in.RunID)
	if err != nil {
		return nil, err
	}
	result.Summary = summary

	logger.Info(ctx, "remit posted",
		"run_id", in.RunID, "action", in.Action,
		"orders_created", result.OrdersCreated,
		"returned_lines", result.ReturnedLines)
	return result, nil
}

// checkPreconditions validates the posting outside any transaction.
// A non-nil early result means the run was already closed and the call
// is an idempotent no-op.
func (s *Service) checkPreconditions(ctx context.Context, in PostInput) (*postingPlan, *PostResult, error) {
	r, err := s.runs.GetByID(ctx, in.RunID)
	if err != nil {
		return nil, nil, err
	}

	if r.Status == run.StatusClosed {
		early, err := s.alreadyClosed(ctx, r)
		if err != nil {
			return nil, nil, err
		}
		return nil, early, nil
	}
	if r.Status != run.StatusCheckedIn {
		return nil, nil, apperror.NewPrecondition(apperror.CodeRunState,
			"run must be CHECKED_IN to post remit").
			WithDetail("run_id", in.RunID.String()).
			WithDetail("status", string(r.Status))
	}

	pending, err := s.clearance.CountPendingByRun(ctx, in.RunID)
	if err != nil {
		return nil, nil, err
	}
	if pending > 0 {
		return nil, nil, apperror.NewPrecondition(apperror.CodePendingClearance,
			"run has clearance cases awaiting decision").
			WithDetail("run_id", in.RunID.String()).
			WithDetail("pending_cases", pending)
	}

	receipts, err := s.runs.ListReceipts(ctx, in.RunID)
	if err != nil {
		return nil, nil, err
	}
	runOrders, err := s.orders.ListByRun(ctx, in.RunID)
	if err != nil {
		return nil, nil, err
	}
	returns, err := s.movements.ListRunReturns(ctx, in.RunID)
	if err != nil {
		return nil, nil, err
	}

	rows := run.BuildRecap(run.RecapInput{
		Loadout:         r.Loadout,
		ParentOrders:    runOrders,
		RoadReceipts:    receipts,
		Checkin:         r.Checkin,
		ReturnMovements: returns,
	})

	if offenders := run.OversoldProducts(rows); len(offenders) > 0 {
		appErr := apperror.NewPrecondition(apperror.CodeOversoldStock,
			"sold quantity exceeds loaded quantity")
		appErr.WithDetail("products", idStrings(offenders))
		return nil, nil, appErr
	}

	plan := &postingPlan{
		run:      r,
		receipts: receipts,
		orders:   runOrders,
		present:  map[id.ID]types.Quantity{},
		missing:  map[id.ID]types.Quantity{},
	}

	var undisposed []id.ID
	for _, row := range rows {
		if row.Diff <= 0 {
			continue
		}
		switch in.Dispositions[row.ProductID] {
		case DispositionPresent:
			plan.present[row.ProductID] = row.Diff
		case DispositionMissing:
			plan.missing[row.ProductID] = row.Diff
		default:
			undisposed = append(undisposed, row.ProductID)
		}
	}
	if len(undisposed) > 0 {
		appErr := apperror.NewPrecondition(apperror.CodeMissingDisposition,
			"every unaccounted line needs a present or missing disposition")
		appErr.WithDetail("products", idStrings(undisposed))
		return nil, nil, appErr
	}

	anyMissing := len(plan.missing) > 0
	switch in.Action {
	case ActionApproveClose:
		if anyMissing {
			return nil, nil, apperror.NewPrecondition(apperror.CodeBusinessRule,
				"run has missing stock; only charge-and-close may post it")
		}
	case ActionChargeClose:
		if !anyMissing {
			return nil, nil, apperror.NewPrecondition(apperror.CodeBusinessRule,
				"charge-and-close requires at least one missing line")
		}
	default:
		return nil, nil, apperror.NewValidation("unknown posting action").
			WithDetail("action", string(in.Action))
	}

	if anyMissing {
		products, err := s.loadProducts(ctx, plan)
		if err != nil {
			return nil, nil, err
		}
		v := &valuer{receipts: receipts, orders: runOrders, products: products, kinds: s.kinds}
		lines, unvalued := v.valueShortage(s.policy, plan.missing)
		if len(unvalued) > 0 {
			appErr := apperror.NewPrecondition(apperror.CodeUnvaluedShortage,
				"no unit value resolvable for missing stock")
			appErr.WithDetail("products", idStrings(unvalued))
			return nil, nil, appErr
		}
		plan.shortage = lines
		plan.shortageValue = shortageTotal(lines)
		if s.policy.IsZero(plan.shortageValue) {
			return nil, nil, apperror.NewPrecondition(apperror.CodeBusinessRule,
				"computed shortage value is zero; nothing to charge")
		}
	} else {
		plan.shortageValue = types.ZeroMoney()
	}

	return plan, nil, nil
}

func (s *Service) loadProducts(ctx context.Context, plan *postingPlan) (map[id.ID]*product.Product, error) {
	ids := make([]id.ID, 0, len(plan.missing))
	for productID := range plan.missing {
		ids = append(ids, productID)
	}
	return s.products.GetByIDs(ctx, ids)
}

// materializeRoadOrders creates one order per ROAD receipt, with frozen
// item prices taken verbatim from the receipt. The deterministic code
// is looked up before insert, so re-posting skips existing orders.
func (s *Service) materializeRoadOrders(ctx context.Context, plan *postingPlan, result *PostResult) error {
	for _, rcpt := range plan.receipts {
		if rcpt.Kind != run.ReceiptRoad {
			continue
		}

		code := order.RoadsideCode(plan.run.ID, rcpt.ID)
		existing, err := s.orders.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		if existing != nil {
			result.OrdersExisting++
		} else {
			if err := s.orders.Create(ctx, s.buildRoadsideOrder(plan.run, rcpt, code)); err != nil {
				return err
			}
			result.OrdersCreated++
		}
	}
	return nil
}

// recordArEntries opens AR ledger rows for clean credit receipts, ROAD
// and PARENT alike.
func (s *Service) recordArEntries(ctx context.Context, plan *postingPlan) error {
	for _, rcpt := range plan.receipts {
		if err := s.recordCreditAr(ctx, rcpt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) buildRoadsideOrder(r *run.DeliveryRun, rcpt *run.RunReceipt, code string) *order.Order {
	shortfall := rcpt.Shortfall()
	status := order.StatusPaid
	if !s.policy.IsZero(shortfall) {
		status = order.StatusPartiallyPaid
	}

	runID := r.ID
	receiptID := rcpt.ID
	o := &order.Order{
		Code:          code,
		Kind:          order.KindRoadside,
		Status:        status,
		CustomerID:    rcpt.CustomerID,
		RunID:         &runID,
		ReceiptID:     &receiptID,
		ReceiptNumber: rcpt.Number,
		Total:         rcpt.FrozenTotal,
		CashCollected: rcpt.CashCollected,
		OnCredit:      rcpt.OnCredit || !s.policy.IsZero(shortfall),
		OrderedAt:     rcpt.CreatedAt,
	}
	o.ID = id.New()
	o.CreatedAt = s.now()
	o.UpdatedAt = o.CreatedAt

	o.Items = make([]order.Item, 0, len(rcpt.Lines))
	for _, line := range rcpt.Lines {
		o.Items = append(o.Items, order.Item{
			ItemID:        id.New(),
			LineNo:        line.LineNo,
			ProductID:     line.ProductID,
			Qty:           line.Qty,
			UnitKind:      line.UnitKind,
			BaseUnitPrice: line.BaseUnitPrice,
			UnitPrice:     line.UnitPrice,
			Discount:      line.BaseUnitPrice.Sub(line.UnitPrice),
			LineTotal:     line.LineTotal,
		})
	}
	return o
}

// recordCreditAr opens the AR ledger entry for a clean credit sale,
// once per receipt.
func (s *Service) recordCreditAr(ctx context.Context, rcpt *run.RunReceipt) error {
	if !rcpt.OnCredit || rcpt.CustomerID == nil {
		return nil
	}
	shortfall := rcpt.Shortfall()
	if s.policy.IsZero(shortfall) {
		return nil
	}

	existing, err := s.ar.GetArByReceipt(ctx, rcpt.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	receiptID := rcpt.ID
	return s.ar.CreateAr(ctx, &clearance.CustomerAr{
		ID:         id.New(),
		CustomerID: *rcpt.CustomerID,
		ReceiptID:  &receiptID,
		Principal:  shortfall,
		Balance:    shortfall,
		CreatedAt:  s.now(),
	})
}

// applyReturns credits present stock back to inventory exactly once per
// run, guarded by the RETURN_IN existence check.
func (s *Service) applyReturns(ctx context.Context, plan *postingPlan, result *PostResult) error {
	if len(plan.present) == 0 {
		return nil
	}

	returned, err := s.movements.HasRunReturn(ctx, plan.run.ID)
	if err != nil {
		return err
	}
	if returned {
		return nil
	}

	moves := make([]stock.Movement, 0, len(plan.present))
	for productID, qty := range plan.present {
		if err := s.products.AddStock(ctx, productID, qty); err != nil {
			return err
		}
		moves = append(moves, stock.NewMovement(plan.run.ID, productID, stock.MovementReturnIn, qty))
	}
	if err := s.movements.CreateMovements(ctx, moves); err != nil {
		return err
	}
	result.ReturnedLines = len(moves)
	return nil
}

// upsertCharge finds or creates the run's variance and its uniquely
// keyed rider charge.
func (s *Service) upsertCharge(ctx context.Context, plan *postingPlan) (*RiderCharge, error) {
	variance, err := s.charges.GetVarianceByRun(ctx, plan.run.ID)
	if err != nil {
		return nil, err
	}
	if variance == nil {
		variance = &RiderRunVariance{
			ID:            id.New(),
			RunID:         plan.run.ID,
			RiderID:       plan.run.RiderID,
			ExpectedValue: plan.shortageValue,
			ActualValue:   types.ZeroMoney(),
			Resolution:    ResolutionChargeRider,
			CreatedAt:     s.now(),
		}
		if err := s.charges.CreateVariance(ctx, variance); err != nil {
			return nil, err
		}
	}

	charge, err := s.charges.GetChargeByVariance(ctx, variance.ID)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		charge = &RiderCharge{
			ID:         id.New(),
			VarianceID: variance.ID,
			RiderID:    plan.run.RiderID,
			Amount:     plan.shortageValue,
			Status:     ChargeOpen,
			CreatedAt:  s.now(),
			UpdatedAt:  s.now(),
		}
		if err := s.charges.CreateCharge(ctx, charge); err != nil {
			return nil, err
		}
		return charge, nil
	}

	charge.Amount = plan.shortageValue
	charge.UpdatedAt = s.now()
	if err := s.charges.UpdateCharge(ctx, charge); err != nil {
		return nil, err
	}
	return charge, nil
}

// alreadyClosed builds the idempotent response for a double-submit.
func (s *Service) alreadyClosed(ctx context.Context, r *run.DeliveryRun) (*PostResult, error) {
	summary, err := s.Summary(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	result := &PostResult{
		RunID:         r.ID,
		Status:        string(r.Status),
		AlreadyClosed: true,
		Summary:       summary,
	}
	variance, err := s.charges.GetVarianceByRun(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if variance != nil {
		charge, err := s.charges.GetChargeByVariance(ctx, variance.ID)
		if err != nil {
			return nil, err
		}
		result.Charge = charge
	}
	return result, nil
}

// Summary computes the financial breakdown of a run. Every receipt's
// shortfall is accounted for exactly once: through its clearance
// decision, or as clean-credit AR.
func (s *Service) Summary(ctx context.Context, runID id.ID) (*Summary, error) {
	receipts, err := s.runs.ListReceipts(ctx, runID)
	if err != nil {
		return nil, err
	}
	cases, err := s.clearance.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		FrozenTotal:        types.ZeroMoney(),
		CashCollected:      types.ZeroMoney(),
		ApprovedDiscount:   types.ZeroMoney(),
		ArBalance:          types.ZeroMoney(),
		RejectedUnresolved: types.ZeroMoney(),
	}

	cased := map[id.ID]struct{}{}
	for _, c := range cases {
		if c.ReceiptID != nil {
			cased[*c.ReceiptID] = struct{}{}
		}
		if c.Status != clearance.StatusDecided {
			continue
		}
		_, d, err := s.clearance.Get(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if d.Kind == clearance.KindReject {
			sum.RejectedUnresolved = sum.RejectedUnresolved.Add(d.BalanceAtDecision)
			continue
		}
		sum.ApprovedDiscount = sum.ApprovedDiscount.Add(d.ApprovedDiscount)
		sum.ArBalance = sum.ArBalance.Add(d.ArBalance)
	}

	for _, rcpt := range receipts {
		sum.FrozenTotal = sum.FrozenTotal.Add(rcpt.FrozenTotal)
		sum.CashCollected = sum.CashCollected.Add(rcpt.CashCollected)
		if _, ok := cased[rcpt.ID]; ok {
			continue
		}
		// Clean credit sale: the shortfall is AR, recorded at posting.
		if shortfall := rcpt.Shortfall(); !s.policy.IsZero(shortfall) {
			sum.ArBalance = sum.ArBalance.Add(shortfall)
		}
	}

	return sum, nil
}

func idStrings(ids []id.ID) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		out = append(out, v.String())
	}
	return out
}
