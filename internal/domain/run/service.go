package run

import (
	"context"
	"time"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/tx"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/catalog/product"
	"tindahan/internal/domain/order"
	"tindahan/internal/domain/stock"
	"tindahan/pkg/logger"
	"tindahan/pkg/numerator"
)

// CaseOpener opens clearance cases for confirmed receipts whose
// shortfall is not a clean credit sale. Implemented by the clearance
// service; kept as an interface here to avoid a dependency cycle.
type CaseOpener interface {
	OpenForReceipt(ctx context.Context, r *RunReceipt) error
}

// Service drives the run lifecycle.
type Service struct {
	runs      Repository
	products  product.Repository
	orders    order.Repository
	movements stock.Repository
	numbers   *numerator.Service
	txManager tx.Manager
	cases     CaseOpener
	policy    types.MoneyPolicy
	now       func() time.Time
}

// NewService wires the run service.
func NewService(
	runs Repository,
	products product.Repository,
	orders order.Repository,
	movements stock.Repository,
	numbers *numerator.Service,
	txManager tx.Manager,
	cases CaseOpener,
	policy types.MoneyPolicy,
) *Service {
	return &Service{
		runs:      runs,
		products:  products,
		orders:    orders,
		movements: movements,
		numbers:   numbers,
		txManager: txManager,
		cases:     cases,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a PLANNED run for a rider.
func (s *Service) Create(ctx context.Context, riderID id.ID, riderName string) (*DeliveryRun, error) {
	r := NewDeliveryRun(riderID, riderName)
	if err := r.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		code, err := s.numbers.GetNextNumber(ctx, numerator.DefaultConfig("RUN"), nil, s.now())
		if err != nil {
			return apperror.NewDatabase(err)
		}
		r.Code = code
		return s.runs.Create(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "run created", "run_id", r.ID, "code", r.Code, "rider_id", r.RiderID)
	return r, nil
}

// Get loads one run with its snapshots.
func (s *Service) Get(ctx context.Context, runID id.ID) (*DeliveryRun, error) {
	return s.runs.GetByID(ctx, runID)
}

// List returns runs matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*DeliveryRun, error) {
	return s.runs.List(ctx, filter)
}

// Dispatch freezes the manifest, records LOAD_OUT movements and
// decrements warehouse stock.
func (s *Service) Dispatch(ctx context.Context, runID id.ID, lines []LoadLine) (*DeliveryRun, error) {
	var r *DeliveryRun
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.runs.GetByIDForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		if err := r.Dispatch(NewLoadoutSnapshot(lines), s.now()); err != nil {
			return err
		}

		ids := make([]id.ID, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.ProductID)
		}
		known, err := s.products.GetByIDs(ctx, ids)
		if err != nil {
			return err
		}

		moves := make([]stock.Movement, 0, len(lines))
		for _, line := range lines {
			if _, ok := known[line.ProductID]; !ok {
				return apperror.NewNotFound("product", line.ProductID)
			}
			if err := s.products.AddStock(ctx, line.ProductID, -line.Qty); err != nil {
				return err
			}
			moves = append(moves, stock.NewMovement(runID, line.ProductID, stock.MovementLoadOut, line.Qty))
		}
		if err := s.movements.CreateMovements(ctx, moves); err != nil {
			return err
		}
		return s.runs.Update(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "run dispatched", "run_id", runID, "lines", len(lines))
	return r, nil
}

// RecordCheckin stores the rider's self-reported snapshot. Repeated
// calls while DISPATCHED replace the previous snapshot.
func (s *Service) RecordCheckin(ctx context.Context, runID id.ID, snapshot *CheckinSnapshot) (*DeliveryRun, error) {
	if snapshot != nil && snapshot.Version == 0 {
		snapshot.Version = SnapshotVersion
	}
	var r *DeliveryRun
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.runs.GetByIDForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		if err := r.RecordCheckin(snapshot); err != nil {
			return err
		}
		return s.runs.Update(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ConfirmCheckin freezes the manager-verified receipts and moves the
// run to CHECKED_IN. Receipts replace any prior confirmation attempt.
// Shortfalls that are not clean credit sales open clearance cases.
func (s *Service) ConfirmCheckin(ctx context.Context, runID id.ID, receipts []*RunReceipt) (*DeliveryRun, error) {
	var r *DeliveryRun
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.runs.GetByIDForUpdate(ctx, runID)
		if err != nil {
			return err
		}

		for _, rcpt := range receipts {
			if err := s.prepareReceipt(ctx, r, rcpt); err != nil {
				return err
			}
		}

		if err := r.MarkCheckedIn(s.now()); err != nil {
			return err
		}

		if err := s.runs.DeleteReceipts(ctx, runID); err != nil {
			return err
		}
		if err := s.runs.CreateReceipts(ctx, receipts); err != nil {
			return err
		}
		if err := s.runs.Update(ctx, r); err != nil {
			return err
		}

		for _, rcpt := range receipts {
			shortfall := rcpt.Shortfall()
			if s.policy.IsZero(shortfall) {
				continue
			}
			if rcpt.OnCredit && rcpt.CustomerID != nil {
				// Clean pre-approved AR, settled by remit posting.
				continue
			}
			if err := s.cases.OpenForReceipt(ctx, rcpt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "run checked in", "run_id", runID, "receipts", len(receipts))
	return r, nil
}

// prepareReceipt finalizes one receipt before it is frozen: assigns ids
// and number, recomputes line totals under the money policy, and checks
// shape invariants.
func (s *Service) prepareReceipt(ctx context.Context, r *DeliveryRun, rcpt *RunReceipt) error {
	if id.IsNil(rcpt.ID) {
		rcpt.ID = id.New()
	}
	rcpt.RunID = r.ID
	rcpt.CreatedAt = s.now()

	switch rcpt.Kind {
	case ReceiptRoad:
		total := types.ZeroMoney()
		for i := range rcpt.Lines {
			line := &rcpt.Lines[i]
			if id.IsNil(line.LineID) {
				line.LineID = id.New()
			}
			line.ReceiptID = rcpt.ID
			line.LineNo = i + 1
			line.LineTotal = s.policy.Round(line.UnitPrice.Mul(line.Qty.Money()))
			total = total.Add(line.LineTotal)
		}
		rcpt.FrozenTotal = total
	case ReceiptParent:
		if rcpt.ParentOrderID == nil {
			return apperror.NewValidation("parent receipt must reference an order")
		}
		parent, err := s.orders.GetByID(ctx, *rcpt.ParentOrderID)
		if err != nil {
			return err
		}
		if parent.RunID == nil || *parent.RunID != r.ID {
			return apperror.NewValidation("parent order does not belong to this run").
				WithDetail("order_id", parent.ID.String())
		}
		rcpt.FrozenTotal = parent.Total
		if rcpt.CustomerID == nil {
			rcpt.CustomerID = parent.CustomerID
		}
	}

	if rcpt.OnCredit && rcpt.CustomerID == nil {
		return apperror.NewPrecondition(apperror.CodeCustomerRequired,
			"credit sale requires a customer").
			WithDetail("receipt_id", rcpt.ID.String())
	}

	if err := rcpt.Validate(s.policy); err != nil {
		return err
	}

	number, err := s.numbers.GetNextNumber(ctx, numerator.DefaultConfig("RCT"), nil, s.now())
	if err != nil {
		return apperror.NewDatabase(err)
	}
	rcpt.Number = number
	return nil
}

// Cancel abandons a run before check-in. A dispatched run returns its
// full manifest to stock.
func (s *Service) Cancel(ctx context.Context, runID id.ID) (*DeliveryRun, error) {
	var r *DeliveryRun
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.runs.GetByIDForUpdate(ctx, runID)
		if err != nil {
			return err
		}
		wasDispatched := r.Status == StatusDispatched
		if err := r.Cancel(); err != nil {
			return err
		}

		if wasDispatched && r.Loadout != nil {
			moves := make([]stock.Movement, 0, len(r.Loadout.Lines))
			for _, line := range r.Loadout.Lines {
				if err := s.products.AddStock(ctx, line.ProductID, line.Qty); err != nil {
					return err
				}
				moves = append(moves, stock.NewMovement(runID, line.ProductID, stock.MovementReturnIn, line.Qty))
			}
			if err := s.movements.CreateMovements(ctx, moves); err != nil {
				return err
			}
		}
		return s.runs.Update(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "run cancelled", "run_id", runID)
	return r, nil
}

// Recap reconciles loaded against sold and returned for one run.
// previewReturns is the manager's live selection, used only before
// RETURN_IN movements exist.
func (s *Service) Recap(ctx context.Context, runID id.ID, previewReturns map[id.ID]types.Quantity) ([]RecapRow, error) {
	r, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	receipts, err := s.runs.ListReceipts(ctx, runID)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	returns, err := s.movements.ListRunReturns(ctx, runID)
	if err != nil {
		return nil, err
	}

	names, err := s.productNames(ctx, r, receipts, orders, returns)
	if err != nil {
		return nil, err
	}

	return BuildRecap(RecapInput{
		Loadout:         r.Loadout,
		ParentOrders:    orders,
		RoadReceipts:    receipts,
		Checkin:         r.Checkin,
		ReturnMovements: returns,
		PreviewReturns:  previewReturns,
		ProductNames:    names,
	}), nil
}

func (s *Service) productNames(
	ctx context.Context,
	r *DeliveryRun,
	receipts []*RunReceipt,
	orders []*order.Order,
	returns []stock.Movement,
) (map[id.ID]string, error) {
	seen := map[id.ID]struct{}{}
	if r.Loadout != nil {
		for _, line := range r.Loadout.Lines {
			seen[line.ProductID] = struct{}{}
		}
	}
	for _, rcpt := range receipts {
		for _, line := range rcpt.Lines {
			seen[line.ProductID] = struct{}{}
		}
	}
	for _, o := range orders {
		for _, item := range o.Items {
			seen[item.ProductID] = struct{}{}
		}
	}
	for _, m := range returns {
		seen[m.ProductID] = struct{}{}
	}

	ids := make([]id.ID, 0, len(seen))
	for productID := range seen {
		ids = append(ids, productID)
	}
	known, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	names := make(map[id.ID]string, len(known))
	for productID, p := range known {
		names[productID] = p.Name
	}
	return names, nil
}
