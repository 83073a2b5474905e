package clearance

import (
	"context"
	"time"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/entity"
	"tindahan/internal/core/id"
	"tindahan/internal/core/tx"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/audit"
	"tindahan/internal/domain/run"
	"tindahan/pkg/logger"
)

// DecideInput is the manager's resolution request. The decision kind is
// derived from the amounts, not taken from the caller.
type DecideInput struct {
	Action           Action      `json:"action"`
	ApprovedDiscount types.Money `json:"approvedDiscount"`
	Note             string      `json:"note"`
	DueDate          *time.Time  `json:"dueDate,omitempty"`
}

// DecideResult reports what the decision produced.
type DecideResult struct {
	Case     *Case       `json:"case"`
	Decision *Decision   `json:"decision"`
	Ar       *CustomerAr `json:"ar,omitempty"`
}

// Service drives the clearance case lifecycle.
type Service struct {
	cases     Repository
	ar        ArRepository
	txManager tx.Manager
	auditor   audit.Recorder
	policy    types.MoneyPolicy
	now       func() time.Time
}

// NewService wires the clearance service.
func NewService(
	cases Repository,
	ar ArRepository,
	txManager tx.Manager,
	auditor audit.Recorder,
	policy types.MoneyPolicy,
) *Service {
	return &Service{
		cases:     cases,
		ar:        ar,
		txManager: txManager,
		auditor:   auditor,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OpenForReceipt opens a NEEDS_CLEARANCE case for a confirmed receipt
// whose shortfall is not a clean credit sale. Runs inside the caller's
// check-in transaction.
func (s *Service) OpenForReceipt(ctx context.Context, r *run.RunReceipt) error {
	receiptID := r.ID
	runID := r.RunID
	c := &Case{
		Status:        StatusNeedsClearance,
		RunID:         &runID,
		ReceiptID:     &receiptID,
		CustomerID:    r.CustomerID,
		FrozenTotal:   r.FrozenTotal,
		CashCollected: r.CashCollected,
	}
	c.Base = entity.NewBase()
	if err := c.Validate(ctx); err != nil {
		return err
	}
	if err := s.cases.CreateCase(ctx, c); err != nil {
		return err
	}
	logger.Info(ctx, "clearance case opened",
		"case_id", c.ID, "run_id", runID, "receipt_id", receiptID,
		"shortfall", c.Balance().String())
	return nil
}

// Get loads one case with its decision, if decided.
func (s *Service) Get(ctx context.Context, caseID id.ID) (*Case, *Decision, error) {
	c, err := s.cases.GetCaseByID(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	if c.Status != StatusDecided {
		return c, nil, nil
	}
	d, err := s.cases.GetDecision(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	return c, d, nil
}

// ListByRun returns all cases tied to a run.
func (s *Service) ListByRun(ctx context.Context, runID id.ID) ([]*Case, error) {
	return s.cases.ListByRun(ctx, runID)
}

// CountPendingByRun counts NEEDS_CLEARANCE cases for a run. The remit
// posting precondition uses it.
func (s *Service) CountPendingByRun(ctx context.Context, runID id.ID) (int, error) {
	return s.cases.CountPendingByRun(ctx, runID)
}

// ListRejectedUnresolved surfaces rejected shortfalls awaiting separate
// operational handling.
func (s *Service) ListRejectedUnresolved(ctx context.Context, limit, offset int) ([]*RejectedCase, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.cases.ListRejectedUnresolved(ctx, limit, offset)
}

// Decide resolves a case exactly once. The balance is recomputed fresh
// from the frozen amounts; the requested discount is clamped to it; the
// decision, the status flip and any AR entry commit atomically.
func (s *Service) Decide(ctx context.Context, caseID, decidedBy id.ID, in DecideInput) (*DecideResult, error) {
	if in.Note == "" {
		return nil, apperror.NewValidation("decision note is required").WithDetail("field", "note")
	}
	switch in.Action {
	case ActionApprove, ActionReject:
	default:
		return nil, apperror.NewValidation("unknown action").WithDetail("action", string(in.Action))
	}
	if in.ApprovedDiscount.IsNegative() {
		return nil, apperror.NewValidation("approved discount must not be negative")
	}

	var result *DecideResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.cases.GetCaseByIDForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		if c.Status != StatusNeedsClearance {
			return apperror.NewPrecondition(apperror.CodeAlreadyDecided,
				"case is already decided").
				WithDetail("case_id", caseID.String())
		}
		exists, err := s.cases.HasDecision(ctx, caseID)
		if err != nil {
			return err
		}
		if exists {
			return apperror.NewPrecondition(apperror.CodeDuplicateDecision,
				"a decision already exists for this case").
				WithDetail("case_id", caseID.String())
		}

		balance := c.Balance()
		d := &Decision{
			ID:                id.New(),
			CaseID:            caseID,
			BalanceAtDecision: balance,
			DecidedBy:         decidedBy,
			Note:              in.Note,
			DueDate:           in.DueDate,
			CreatedAt:         s.now(),
		}

		switch in.Action {
		case ActionReject:
			d.Kind = KindReject
			d.ApprovedDiscount = types.ZeroMoney()
			d.ArBalance = types.ZeroMoney()
		case ActionApprove:
			d.ApprovedDiscount = s.policy.Clamp(in.ApprovedDiscount, types.ZeroMoney(), balance)
			d.ArBalance = balance.Sub(d.ApprovedDiscount)
			d.Kind = deriveKind(s.policy, d.ApprovedDiscount, d.ArBalance)
		}

		var ar *CustomerAr
		if d.ArBalance.GreaterThan(s.policy.Epsilon) {
			if c.CustomerID == nil {
				return apperror.NewPrecondition(apperror.CodeCustomerRequired,
					"AR balance requires an identified customer").
					WithDetail("case_id", caseID.String()).
					WithDetail("ar_balance", d.ArBalance.String())
			}
			decisionID := d.ID
			ar = &CustomerAr{
				ID:         id.New(),
				CustomerID: *c.CustomerID,
				DecisionID: &decisionID,
				Principal:  d.ArBalance,
				Balance:    d.ArBalance,
				DueDate:    in.DueDate,
				CreatedAt:  s.now(),
			}
		}

		if err := s.cases.CreateDecision(ctx, d); err != nil {
			return err
		}
		if ar != nil {
			if err := s.ar.CreateAr(ctx, ar); err != nil {
				return err
			}
		}

		c.Status = StatusDecided
		c.Touch()
		if err := s.cases.UpdateCase(ctx, c); err != nil {
			return err
		}

		entry := audit.NewEntry(audit.ActionClearanceDecided, "clearance_case", caseID).
			By(decidedBy).
			With("kind", string(d.Kind)).
			With("balance", balance.String()).
			With("approved_discount", d.ApprovedDiscount.String()).
			With("ar_balance", d.ArBalance.String())
		if err := s.auditor.Record(ctx, entry); err != nil {
			return err
		}

		result = &DecideResult{Case: c, Decision: d, Ar: ar}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "clearance case decided",
		"case_id", caseID, "kind", result.Decision.Kind,
		"approved_discount", result.Decision.ApprovedDiscount.String(),
		"ar_balance", result.Decision.ArBalance.String())
	return result, nil
}

// deriveKind classifies an approval by which sides of the split are
// non-zero under the policy epsilon.
func deriveKind(policy types.MoneyPolicy, discount, arBalance types.Money) DecisionKind {
	arZero := policy.IsZero(arBalance)
	discountZero := policy.IsZero(discount)
	switch {
	case arZero && discountZero:
		// Balance itself was ~0; treat as fully forgiven.
		return KindApproveDiscountOverride
	case arZero:
		return KindApproveDiscountOverride
	case discountZero:
		return KindApproveOpenBalance
	default:
		return KindApproveHybrid
	}
}
