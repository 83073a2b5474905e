package clearance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/entity"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/audit"
	"tindahan/internal/domain/run"
)

// fakeTxManager runs the callback directly. Rollback behavior is not
// simulated; tests assert that nothing was written before the failure
// point instead.
type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeCaseRepo struct {
	cases     map[id.ID]*Case
	decisions map[id.ID]*Decision
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{
		cases:     map[id.ID]*Case{},
		decisions: map[id.ID]*Decision{},
	}
}

func (r *fakeCaseRepo) GetCaseByID(ctx context.Context, caseID id.ID) (*Case, error) {
	c, ok := r.cases[caseID]
	if !ok {
		return nil, apperror.NewNotFound("clearance case", caseID)
	}
	return c, nil
}

func (r *fakeCaseRepo) GetCaseByIDForUpdate(ctx context.Context, caseID id.ID) (*Case, error) {
	return r.GetCaseByID(ctx, caseID)
}

func (r *fakeCaseRepo) CreateCase(ctx context.Context, c *Case) error {
	r.cases[c.ID] = c
	return nil
}

func (r *fakeCaseRepo) UpdateCase(ctx context.Context, c *Case) error {
	r.cases[c.ID] = c
	return nil
}

func (r *fakeCaseRepo) ListByRun(ctx context.Context, runID id.ID) ([]*Case, error) {
	var out []*Case
	for _, c := range r.cases {
		if c.RunID != nil && *c.RunID == runID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCaseRepo) CountPendingByRun(ctx context.Context, runID id.ID) (int, error) {
	n := 0
	for _, c := range r.cases {
		if c.RunID != nil && *c.RunID == runID && c.Status == StatusNeedsClearance {
			n++
		}
	}
	return n, nil
}

func (r *fakeCaseRepo) HasDecision(ctx context.Context, caseID id.ID) (bool, error) {
	_, ok := r.decisions[caseID]
	return ok, nil
}

func (r *fakeCaseRepo) GetDecision(ctx context.Context, caseID id.ID) (*Decision, error) {
	d, ok := r.decisions[caseID]
	if !ok {
		return nil, apperror.NewNotFound("clearance decision", caseID)
	}
	return d, nil
}

func (r *fakeCaseRepo) CreateDecision(ctx context.Context, d *Decision) error {
	r.decisions[d.CaseID] = d
	return nil
}

func (r *fakeCaseRepo) ListRejectedUnresolved(ctx context.Context, limit, offset int) ([]*RejectedCase, error) {
	var out []*RejectedCase
	for caseID, d := range r.decisions {
		if d.Kind == KindReject {
			out = append(out, &RejectedCase{Case: r.cases[caseID], Decision: d})
		}
	}
	return out, nil
}

type fakeArRepo struct {
	entries []*CustomerAr
}

func (r *fakeArRepo) CreateAr(ctx context.Context, ar *CustomerAr) error {
	r.entries = append(r.entries, ar)
	return nil
}

func (r *fakeArRepo) GetArByReceipt(ctx context.Context, receiptID id.ID) (*CustomerAr, error) {
	for _, ar := range r.entries {
		if ar.ReceiptID != nil && *ar.ReceiptID == receiptID {
			return ar, nil
		}
	}
	return nil, nil
}

func (r *fakeArRepo) ListArByCustomer(ctx context.Context, customerID id.ID) ([]*CustomerAr, error) {
	var out []*CustomerAr
	for _, ar := range r.entries {
		if ar.CustomerID == customerID {
			out = append(out, ar)
		}
	}
	return out, nil
}

func newTestService() (*Service, *fakeCaseRepo, *fakeArRepo) {
	cases := newFakeCaseRepo()
	ar := &fakeArRepo{}
	svc := NewService(cases, ar, fakeTxManager{}, audit.NopRecorder{}, types.DefaultMoneyPolicy())
	return svc, cases, ar
}

func seedCase(repo *fakeCaseRepo, frozen, cash string, customerID *id.ID) *Case {
	receiptID := id.New()
	runID := id.New()
	c := &Case{
		Status:        StatusNeedsClearance,
		RunID:         &runID,
		ReceiptID:     &receiptID,
		CustomerID:    customerID,
		FrozenTotal:   types.MustMoney(frozen),
		CashCollected: types.MustMoney(cash),
	}
	c.Base = entity.NewBase()
	repo.cases[c.ID] = c
	return c
}

func TestDecide_ApproveHybrid(t *testing.T) {
	svc, repo, ar := newTestService()
	customerID := id.New()
	c := seedCase(repo, "1000.00", "400.00", &customerID)

	res, err := svc.Decide(context.Background(), c.ID, id.New(), DecideInput{
		Action:           ActionApprove,
		ApprovedDiscount: types.MustMoney("250.00"),
		Note:             "agreed price adjustment plus terms",
	})
	require.NoError(t, err)

	assert.Equal(t, KindApproveHybrid, res.Decision.Kind)
	assert.True(t, res.Decision.BalanceAtDecision.Equal(types.MustMoney("600.00")))
	assert.True(t, res.Decision.ApprovedDiscount.Equal(types.MustMoney("250.00")))
	assert.True(t, res.Decision.ArBalance.Equal(types.MustMoney("350.00")))
	assert.Equal(t, StatusDecided, res.Case.Status)

	require.Len(t, ar.entries, 1)
	assert.Equal(t, customerID, ar.entries[0].CustomerID)
	assert.True(t, ar.entries[0].Principal.Equal(types.MustMoney("350.00")))
	assert.True(t, ar.entries[0].Balance.Equal(types.MustMoney("350.00")))
}

func TestDecide_ApproveOpenBalance(t *testing.T) {
	svc, repo, ar := newTestService()
	customerID := id.New()
	c := seedCase(repo, "500.00", "200.00", &customerID)

	res, err := svc.Decide(context.Background(), c.ID, id.New(), DecideInput{
		Action: ActionApprove,
		Note:   "carry full balance",
	})
	require.NoError(t, err)

	assert.Equal(t, KindApproveOpenBalance, res.Decision.Kind)
	assert.True(t, res.Decision.ArBalance.Equal(types.MustMoney("300.00")))
	require.Len(t, ar.entries, 1)
}

func TestDecide_ApproveDiscountOverride(t *testing.T) {
	svc, repo, ar := newTestService()
	c := seedCase(repo, "500.00", "200.00", nil)

	res, err := svc.Decide(context.Background(), c.ID, id.New(), DecideInput{
		Action:           ActionApprove,
		ApprovedDiscount: types.MustMoney("300.00"),
		Note:             "damaged goods, full discount",
	})
	require.NoError(t, err)

	assert.Equal(t, KindApproveDiscountOverride, res.Decision.Kind)
	assert.True(t, res.Decision.ArBalance.IsZero())
	assert.Empty(t, ar.entries)
	assert.Nil(t, res.Ar)
}

func TestDecide_DiscountClampedToBalance(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedCase(repo, "100.00", "80.00", nil)

	res, err := svc.Decide(context.Background(), c.ID, id.New(), DecideInput{
		Action:           ActionApprove,
		ApprovedDiscount: types.MustMoney("999.00"),
		Note:             "forgive everything",
	})
	require.NoError(t, err)

	assert.True(t, res.Decision.ApprovedDiscount.Equal(types.MustMoney("20.00")))
	assert.Equal(t, KindApproveDiscountOverride, res.Decision.Kind)
}

func TestDecide_Reject(t *testing.T) {
	svc, repo, ar := newTestService()
	customerID := id.New()
	c := seedCase(repo, "1000.00", "400.00", &customerID)

	res, err := svc.Decide(context.Background(), c.ID, id.New(), DecideInput{
		Action: ActionReject,
		Note:   "dispute not settled",
	})
	require.NoError(t, err)

	assert.Equal(t, KindReject, res.Decision.Kind)
	assert.True(t, res.Decision.ApprovedDiscount.IsZero())
	assert.True(t, res.Decision.ArBalance.IsZero())
	assert.Equal(t, StatusDecided, res.Case.Status)
	assert.Empty(t, ar.entries)

	rejected, err := svc.ListRejectedUnresolved(context.Background(), 50, 0)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.True(t, rejected[0].Unresolved().Equal(types.MustMoney("600.00")))
}

func TestDecide_AlreadyDecided(t *testing.T) {
	svc, repo, _ := newTestService()
	customerID := id.New()
	c := seedCase(repo, "100.00", "50.00", &customerID)

	_, err := svc.Decide(context.Background(), c.ID, id.New(), DecideInput{
		Action: ActionApprove, Note: "first",
	})
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), c.ID, id.New(), DecideInput{
		Action: ActionApprove, Note: "second",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyDecided))
}

func TestDecide_DuplicateDecisionRow(t *testing.T) {
	svc, repo, _ := newTestService()
	customerID := id.New()
	c := seedCase(repo, "100.00", "50.00", &customerID)

	// A decision row exists but the status flip was lost. The dedup
	// check must still refuse a second insert.
	repo.decisions[c.ID] = &Decision{ID: id.New(), CaseID: c.ID, Kind: KindReject}

	_, err := svc.Decide(context.Background(), c.ID, id.New(), DecideInput{
		Action: ActionReject, Note: "again",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicateDecision))
}

func TestDecide_ArRequiresCustomer(t *testing.T) {
	svc, repo, ar := newTestService()
	c := seedCase(repo, "1000.00", "400.00", nil)

	_, err := svc.Decide(context.Background(), c.ID, id.New(), DecideInput{
		Action:           ActionApprove,
		ApprovedDiscount: types.MustMoney("100.00"),
		Note:             "partial discount",
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeCustomerRequired))

	// Nothing written before the gate fired.
	assert.Empty(t, repo.decisions)
	assert.Empty(t, ar.entries)
	assert.Equal(t, StatusNeedsClearance, repo.cases[c.ID].Status)
}

func TestDecide_NoteRequired(t *testing.T) {
	svc, repo, _ := newTestService()
	c := seedCase(repo, "100.00", "50.00", nil)

	_, err := svc.Decide(context.Background(), c.ID, id.New(), DecideInput{Action: ActionReject})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestOpenForReceipt(t *testing.T) {
	svc, _, _ := newTestService()
	customerID := id.New()

	rcpt := &run.RunReceipt{
		ID:            id.New(),
		RunID:         id.New(),
		Kind:          run.ReceiptRoad,
		CustomerID:    &customerID,
		FrozenTotal:   types.MustMoney("750.00"),
		CashCollected: types.MustMoney("500.00"),
	}
	require.NoError(t, svc.OpenForReceipt(context.Background(), rcpt))

	pending, err := svc.CountPendingByRun(context.Background(), rcpt.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	cases, err := svc.ListByRun(context.Background(), rcpt.RunID)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.True(t, cases[0].Balance().Equal(types.MustMoney("250.00")))
}
