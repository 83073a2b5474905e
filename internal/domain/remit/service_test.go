package remit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/audit"
	"tindahan/internal/domain/catalog/product"
	"tindahan/internal/domain/clearance"
	"tindahan/internal/domain/order"
	"tindahan/internal/domain/pricing"
	"tindahan/internal/domain/run"
	"tindahan/internal/domain/stock"
)

func newTestEngine() *pricing.Engine {
	e, err := pricing.NewEngine(types.DefaultMoneyPolicy())
	if err != nil {
		panic(err)
	}
	return e
}

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRunRepo struct {
	runs     map[id.ID]*run.DeliveryRun
	receipts map[id.ID][]*run.RunReceipt

	// onLock runs inside GetByIDForUpdate, simulating a concurrent
	// writer that slipped in between precondition check and lock.
	onLock func(r *run.DeliveryRun)
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{
		runs:     map[id.ID]*run.DeliveryRun{},
		receipts: map[id.ID][]*run.RunReceipt{},
	}
}

func (f *fakeRunRepo) GetByID(ctx context.Context, runID id.ID) (*run.DeliveryRun, error) {
	r, ok := f.runs[runID]
	if !ok {
		return nil, apperror.NewNotFound("delivery run", runID)
	}
	return r, nil
}

func (f *fakeRunRepo) GetByIDForUpdate(ctx context.Context, runID id.ID) (*run.DeliveryRun, error) {
	r, err := f.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if f.onLock != nil {
		f.onLock(r)
	}
	return r, nil
}

func (f *fakeRunRepo) List(ctx context.Context, filter run.ListFilter) ([]*run.DeliveryRun, error) {
	return nil, nil
}

func (f *fakeRunRepo) Create(ctx context.Context, r *run.DeliveryRun) error {
	f.runs[r.ID] = r
	return nil
}

func (f *fakeRunRepo) Update(ctx context.Context, r *run.DeliveryRun) error {
	f.runs[r.ID] = r
	return nil
}

func (f *fakeRunRepo) CreateReceipts(ctx context.Context, receipts []*run.RunReceipt) error {
	for _, rcpt := range receipts {
		f.receipts[rcpt.RunID] = append(f.receipts[rcpt.RunID], rcpt)
	}
	return nil
}

func (f *fakeRunRepo) ListReceipts(ctx context.Context, runID id.ID) ([]*run.RunReceipt, error) {
	return f.receipts[runID], nil
}

func (f *fakeRunRepo) GetReceipt(ctx context.Context, receiptID id.ID) (*run.RunReceipt, error) {
	for _, list := range f.receipts {
		for _, rcpt := range list {
			if rcpt.ID == receiptID {
				return rcpt, nil
			}
		}
	}
	return nil, apperror.NewNotFound("run receipt", receiptID)
}

func (f *fakeRunRepo) DeleteReceipts(ctx context.Context, runID id.ID) error {
	delete(f.receipts, runID)
	return nil
}

type fakeOrderRepo struct {
	orders map[id.ID]*order.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[id.ID]*order.Order{}}
}

func (f *fakeOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*order.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("order", orderID)
	}
	return o, nil
}

func (f *fakeOrderRepo) GetByCode(ctx context.Context, code string) (*order.Order, error) {
	for _, o := range f.orders {
		if o.Code == code {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeOrderRepo) ListByRun(ctx context.Context, runID id.ID) ([]*order.Order, error) {
	var out []*order.Order
	for _, o := range f.orders {
		if o.RunID != nil && *o.RunID == runID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) Create(ctx context.Context, o *order.Order) error {
	f.orders[o.ID] = o
	return nil
}

type fakeProductRepo struct {
	products map[id.ID]*product.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: map[id.ID]*product.Product{}}
}

func (f *fakeProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID)
	}
	return p, nil
}

func (f *fakeProductRepo) GetByIDs(ctx context.Context, ids []id.ID) (map[id.ID]*product.Product, error) {
	out := map[id.ID]*product.Product{}
	for _, productID := range ids {
		if p, ok := f.products[productID]; ok {
			out[productID] = p
		}
	}
	return out, nil
}

func (f *fakeProductRepo) List(ctx context.Context, activeOnly bool) ([]*product.Product, error) {
	return nil, nil
}

func (f *fakeProductRepo) Create(ctx context.Context, p *product.Product) error {
	f.products[p.ID] = p
	return nil
}

func (f *fakeProductRepo) AddStock(ctx context.Context, productID id.ID, delta types.Quantity) error {
	f.products[productID].StockOnHand += delta
	return nil
}

type fakeStockRepo struct {
	movements []stock.Movement
}

func (f *fakeStockRepo) CreateMovements(ctx context.Context, movements []stock.Movement) error {
	f.movements = append(f.movements, movements...)
	return nil
}

func (f *fakeStockRepo) HasRunReturn(ctx context.Context, runID id.ID) (bool, error) {
	for _, m := range f.movements {
		if m.RunID == runID && m.Kind == stock.MovementReturnIn {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStockRepo) ListRunReturns(ctx context.Context, runID id.ID) ([]stock.Movement, error) {
	var out []stock.Movement
	for _, m := range f.movements {
		if m.RunID == runID && m.Kind == stock.MovementReturnIn {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeChargeRepo struct {
	variances []*RiderRunVariance
	charges   []*RiderCharge
}

func (f *fakeChargeRepo) GetVarianceByRun(ctx context.Context, runID id.ID) (*RiderRunVariance, error) {
	for _, v := range f.variances {
		if v.RunID == runID {
			return v, nil
		}
	}
	return nil, nil
}

func (f *fakeChargeRepo) CreateVariance(ctx context.Context, v *RiderRunVariance) error {
	f.variances = append(f.variances, v)
	return nil
}

func (f *fakeChargeRepo) GetChargeByVariance(ctx context.Context, varianceID id.ID) (*RiderCharge, error) {
	for _, c := range f.charges {
		if c.VarianceID == varianceID {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeChargeRepo) CreateCharge(ctx context.Context, c *RiderCharge) error {
	f.charges = append(f.charges, c)
	return nil
}

func (f *fakeChargeRepo) UpdateCharge(ctx context.Context, c *RiderCharge) error {
	return nil
}

func (f *fakeChargeRepo) ListOpenByRider(ctx context.Context, riderID id.ID) ([]*RiderCharge, error) {
	var out []*RiderCharge
	for _, c := range f.charges {
		if c.RiderID == riderID && c.Status == ChargeOpen {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeCaseRepo struct {
	cases     map[id.ID]*clearance.Case
	decisions map[id.ID]*clearance.Decision
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{
		cases:     map[id.ID]*clearance.Case{},
		decisions: map[id.ID]*clearance.Decision{},
	}
}

func (f *fakeCaseRepo) GetCaseByID(ctx context.Context, caseID id.ID) (*clearance.Case, error) {
	c, ok := f.cases[caseID]
	if !ok {
		return nil, apperror.NewNotFound("clearance case", caseID)
	}
	return c, nil
}

func (f *fakeCaseRepo) GetCaseByIDForUpdate(ctx context.Context, caseID id.ID) (*clearance.Case, error) {
	return f.GetCaseByID(ctx, caseID)
}

func (f *fakeCaseRepo) CreateCase(ctx context.Context, c *clearance.Case) error {
	f.cases[c.ID] = c
	return nil
}

func (f *fakeCaseRepo) UpdateCase(ctx context.Context, c *clearance.Case) error {
	f.cases[c.ID] = c
	return nil
}

func (f *fakeCaseRepo) ListByRun(ctx context.Context, runID id.ID) ([]*clearance.Case, error) {
	var out []*clearance.Case
	for _, c := range f.cases {
		if c.RunID != nil && *c.RunID == runID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCaseRepo) CountPendingByRun(ctx context.Context, runID id.ID) (int, error) {
	n := 0
	for _, c := range f.cases {
		if c.RunID != nil && *c.RunID == runID && c.Status == clearance.StatusNeedsClearance {
			n++
		}
	}
	return n, nil
}

func (f *fakeCaseRepo) HasDecision(ctx context.Context, caseID id.ID) (bool, error) {
	_, ok := f.decisions[caseID]
	return ok, nil
}

func (f *fakeCaseRepo) GetDecision(ctx context.Context, caseID id.ID) (*clearance.Decision, error) {
	d, ok := f.decisions[caseID]
	if !ok {
		return nil, apperror.NewNotFound("clearance decision", caseID)
	}
	return d, nil
}

func (f *fakeCaseRepo) CreateDecision(ctx context.Context, d *clearance.Decision) error {
	f.decisions[d.CaseID] = d
	return nil
}

func (f *fakeCaseRepo) ListRejectedUnresolved(ctx context.Context, limit, offset int) ([]*clearance.RejectedCase, error) {
	return nil, nil
}

type fakeArRepo struct {
	entries []*clearance.CustomerAr
}

func (f *fakeArRepo) CreateAr(ctx context.Context, ar *clearance.CustomerAr) error {
	f.entries = append(f.entries, ar)
	return nil
}

func (f *fakeArRepo) GetArByReceipt(ctx context.Context, receiptID id.ID) (*clearance.CustomerAr, error) {
	for _, ar := range f.entries {
		if ar.ReceiptID != nil && *ar.ReceiptID == receiptID {
			return ar, nil
		}
	}
	return nil, nil
}

func (f *fakeArRepo) ListArByCustomer(ctx context.Context, customerID id.ID) ([]*clearance.CustomerAr, error) {
	return nil, nil
}

// fixture bundles the wired service with its fakes.
type fixture struct {
	svc      *Service
	clr      *clearance.Service
	runs     *fakeRunRepo
	orders   *fakeOrderRepo
	products *fakeProductRepo
	stock    *fakeStockRepo
	charges  *fakeChargeRepo
	cases    *fakeCaseRepo
	ar       *fakeArRepo
}

func newFixture() *fixture {
	f := &fixture{
		runs:     newFakeRunRepo(),
		orders:   newFakeOrderRepo(),
		products: newFakeProductRepo(),
		stock:    &fakeStockRepo{},
		charges:  &fakeChargeRepo{},
		cases:    newFakeCaseRepo(),
		ar:       &fakeArRepo{},
	}
	policy := types.DefaultMoneyPolicy()
	f.clr = clearance.NewService(f.cases, f.ar, fakeTxManager{}, audit.NopRecorder{}, policy)
	f.svc = NewService(
		f.runs, f.orders, f.products, f.stock,
		f.clr, f.ar, f.charges,
		fakeTxManager{}, audit.NopRecorder{}, newTestEngine(), policy,
	)
	return f
}

// seedRun creates a CHECKED_IN run with one product loaded and one ROAD
// receipt selling soldQty at unitPrice, collecting cash.
func (f *fixture) seedRun(t *testing.T, loaded, soldQty types.Quantity, unitPrice, cash string) (*run.DeliveryRun, *product.Product, *run.RunReceipt) {
	t.Helper()
	now := time.Now().UTC()

	p := product.New("SODA-1L", "Soda 1L")
	p.PackPrice = types.MustMoney(unitPrice)
	p.SRP = types.MustMoney("25.00")
	f.products.products[p.ID] = p

	r := run.NewDeliveryRun(id.New(), "Ramon")
	require.NoError(t, r.Dispatch(run.NewLoadoutSnapshot([]run.LoadLine{
		{ProductID: p.ID, Qty: loaded},
	}), now))
	require.NoError(t, r.RecordCheckin(run.NewCheckinSnapshot()))
	require.NoError(t, r.MarkCheckedIn(now))
	f.runs.runs[r.ID] = r

	price := types.MustMoney(unitPrice)
	total := price.Mul(soldQty.Money()).Round(2)
	rcpt := &run.RunReceipt{
		ID:            id.New(),
		RunID:         r.ID,
		Kind:          run.ReceiptRoad,
		Number:        "RCT-2026-00001",
		FrozenTotal:   total,
		CashCollected: types.MustMoney(cash),
		CreatedAt:     now,
		Lines: []run.ReceiptLine{{
			LineID:        id.New(),
			LineNo:        1,
			ProductID:     p.ID,
			Qty:           soldQty,
			UnitKind:      "PACK",
			BaseUnitPrice: price,
			UnitPrice:     price,
			LineTotal:     total,
		}},
	}
	f.runs.receipts[r.ID] = []*run.RunReceipt{rcpt}
	return r, p, rcpt
}

func TestPost_ApproveClose(t *testing.T) {
	f := newFixture()
	r, p, rcpt := f.seedRun(t, 50, 47, "10.00", "470.00")
	startStock := p.StockOnHand

	res, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionApproveClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionPresent},
	})
	require.NoError(t, err)

	assert.False(t, res.AlreadyClosed)
	assert.Equal(t, string(run.StatusClosed), res.Status)
	assert.Equal(t, 1, res.OrdersCreated)
	assert.Equal(t, 1, res.ReturnedLines)
	assert.Nil(t, res.Charge)

	// Present diff of 3 went back to stock.
	assert.Equal(t, startStock+3, p.StockOnHand)

	// The roadside order carries the frozen receipt prices verbatim.
	o, err := f.orders.GetByCode(context.Background(), order.RoadsideCode(r.ID, rcpt.ID))
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, order.KindRoadside, o.Kind)
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.True(t, o.Total.Equal(types.MustMoney("470.00")))
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].UnitPrice.Equal(types.MustMoney("10.00")))

	require.NotNil(t, res.Summary)
	assert.True(t, res.Summary.Balanced(types.DefaultMoneyPolicy()))
}

func TestPost_ChargeClose(t *testing.T) {
	f := newFixture()
	r, p, _ := f.seedRun(t, 50, 47, "25.00", "1175.00")
	startStock := p.StockOnHand

	// Make only SRP resolvable so the valuation walks to the fallback.
	f.runs.receipts[r.ID][0].Lines[0].UnitPrice = types.ZeroMoney()
	p.PackPrice = types.ZeroMoney()

	res, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionChargeClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionMissing},
	})
	require.NoError(t, err)

	// 3 missing at SRP 25.00 bills exactly 75.00.
	require.NotNil(t, res.Charge)
	assert.True(t, res.Charge.Amount.Equal(types.MustMoney("75.00")))
	assert.Equal(t, ChargeOpen, res.Charge.Status)

	require.Len(t, f.charges.variances, 1)
	v := f.charges.variances[0]
	assert.Equal(t, r.ID, v.RunID)
	assert.True(t, v.ExpectedValue.Equal(types.MustMoney("75.00")))
	assert.True(t, v.ActualValue.IsZero())
	assert.Equal(t, ResolutionChargeRider, v.Resolution)

	// Missing stock is not credited back.
	assert.Equal(t, startStock, p.StockOnHand)
	assert.Equal(t, 0, res.ReturnedLines)
}

func TestPost_IdempotentResubmit(t *testing.T) {
	f := newFixture()
	r, p, _ := f.seedRun(t, 50, 47, "10.00", "470.00")

	input := PostInput{
		RunID:        r.ID,
		Action:       ActionApproveClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionPresent},
	}

	first, err := f.svc.Post(context.Background(), id.New(), input)
	require.NoError(t, err)
	require.False(t, first.AlreadyClosed)

	stockAfterFirst := p.StockOnHand
	ordersAfterFirst := len(f.orders.orders)
	movesAfterFirst := len(f.stock.movements)

	second, err := f.svc.Post(context.Background(), id.New(), input)
	require.NoError(t, err)

	assert.True(t, second.AlreadyClosed)
	assert.Equal(t, stockAfterFirst, p.StockOnHand)
	assert.Equal(t, ordersAfterFirst, len(f.orders.orders))
	assert.Equal(t, movesAfterFirst, len(f.stock.movements))
	assert.Empty(t, f.charges.charges)
}

func TestPost_OversoldBlocksWithoutWrites(t *testing.T) {
	f := newFixture()
	r, p, _ := f.seedRun(t, 5, 7, "10.00", "70.00")

	_, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionApproveClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionPresent},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeOversoldStock))

	assert.Equal(t, run.StatusCheckedIn, f.runs.runs[r.ID].Status)
	assert.Empty(t, f.orders.orders)
	assert.Empty(t, f.stock.movements)
}

func TestPost_PendingClearanceBlocks(t *testing.T) {
	f := newFixture()
	r, p, rcpt := f.seedRun(t, 10, 10, "10.00", "60.00")

	require.NoError(t, f.clr.OpenForReceipt(context.Background(), rcpt))

	_, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionApproveClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionPresent},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodePendingClearance))
}

func TestPost_MissingDispositionBlocks(t *testing.T) {
	f := newFixture()
	r, _, _ := f.seedRun(t, 50, 47, "10.00", "470.00")

	_, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:  r.ID,
		Action: ActionApproveClose,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeMissingDisposition))
}

func TestPost_ApproveCloseRejectedWhenMissing(t *testing.T) {
	f := newFixture()
	r, p, _ := f.seedRun(t, 50, 47, "10.00", "470.00")

	_, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionApproveClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionMissing},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeBusinessRule))
}

func TestPost_ChargeCloseRequiresMissing(t *testing.T) {
	f := newFixture()
	r, p, _ := f.seedRun(t, 50, 47, "10.00", "470.00")

	_, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionChargeClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionPresent},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeBusinessRule))
}

func TestPost_UnvaluedShortageBlocks(t *testing.T) {
	f := newFixture()
	r, p, _ := f.seedRun(t, 50, 47, "10.00", "470.00")

	// Strip every price source.
	f.runs.receipts[r.ID][0].Lines[0].UnitPrice = types.ZeroMoney()
	p.PackPrice = types.ZeroMoney()
	p.RetailPrice = types.ZeroMoney()
	p.SRP = types.ZeroMoney()

	_, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionChargeClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionMissing},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeUnvaluedShortage))
}

func TestPost_ConcurrentCloseAborts(t *testing.T) {
	f := newFixture()
	r, p, _ := f.seedRun(t, 10, 10, "10.00", "100.00")

	// Another posting wins the race between precondition check and lock.
	f.runs.onLock = func(locked *run.DeliveryRun) {
		locked.Status = run.StatusClosed
	}

	_, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionApproveClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionPresent},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConcurrentModification))
}

func TestPost_CreditSaleCreatesArOnce(t *testing.T) {
	f := newFixture()
	customerID := id.New()
	r, p, rcpt := f.seedRun(t, 10, 10, "10.00", "40.00")
	rcpt.OnCredit = true
	rcpt.CustomerID = &customerID

	input := PostInput{
		RunID:        r.ID,
		Action:       ActionApproveClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionPresent},
	}
	res, err := f.svc.Post(context.Background(), id.New(), input)
	require.NoError(t, err)

	require.Len(t, f.ar.entries, 1)
	assert.True(t, f.ar.entries[0].Principal.Equal(types.MustMoney("60.00")))
	assert.Equal(t, customerID, f.ar.entries[0].CustomerID)

	// Re-posting does not duplicate the entry.
	_, err = f.svc.Post(context.Background(), id.New(), input)
	require.NoError(t, err)
	assert.Len(t, f.ar.entries, 1)

	assert.True(t, res.Summary.Balanced(types.DefaultMoneyPolicy()))
	assert.True(t, res.Summary.ArBalance.Equal(types.MustMoney("60.00")))
}

func TestPost_ConservationWithDecidedCase(t *testing.T) {
	f := newFixture()
	customerID := id.New()
	r, p, rcpt := f.seedRun(t, 10, 10, "100.00", "400.00")
	rcpt.CustomerID = &customerID

	// Shortfall of 600 goes through clearance: 250 discount, 350 AR.
	require.NoError(t, f.clr.OpenForReceipt(context.Background(), rcpt))
	cases, err := f.clr.ListByRun(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	_, err = f.clr.Decide(context.Background(), cases[0].ID, id.New(), clearance.DecideInput{
		Action:           clearance.ActionApprove,
		ApprovedDiscount: types.MustMoney("250.00"),
		Note:             "agreed adjustment",
	})
	require.NoError(t, err)

	res, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionApproveClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionPresent},
	})
	require.NoError(t, err)

	sum := res.Summary
	assert.True(t, sum.FrozenTotal.Equal(types.MustMoney("1000.00")))
	assert.True(t, sum.CashCollected.Equal(types.MustMoney("400.00")))
	assert.True(t, sum.ApprovedDiscount.Equal(types.MustMoney("250.00")))
	assert.True(t, sum.ArBalance.Equal(types.MustMoney("350.00")))
	assert.True(t, sum.RejectedUnresolved.IsZero())
	assert.True(t, sum.Balanced(types.DefaultMoneyPolicy()))
}

func TestPost_RejectedShortfallStaysInSummary(t *testing.T) {
	f := newFixture()
	r, p, rcpt := f.seedRun(t, 10, 10, "10.00", "60.00")

	require.NoError(t, f.clr.OpenForReceipt(context.Background(), rcpt))
	cases, err := f.clr.ListByRun(context.Background(), r.ID)
	require.NoError(t, err)
	_, err = f.clr.Decide(context.Background(), cases[0].ID, id.New(), clearance.DecideInput{
		Action: clearance.ActionReject,
		Note:   "dispute unresolved",
	})
	require.NoError(t, err)

	res, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionApproveClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionPresent},
	})
	require.NoError(t, err)

	assert.True(t, res.Summary.RejectedUnresolved.Equal(types.MustMoney("40.00")))
	assert.True(t, res.Summary.Balanced(types.DefaultMoneyPolicy()))
}

func TestPost_ParentCreditReceiptCreatesAr(t *testing.T) {
	f := newFixture()
	now := time.Now().UTC()
	customerID := id.New()

	p := product.New("SODA-1L", "Soda 1L")
	p.PackPrice = types.MustMoney("10.00")
	p.SRP = types.MustMoney("25.00")
	f.products.products[p.ID] = p

	r := run.NewDeliveryRun(id.New(), "Ramon")
	require.NoError(t, r.Dispatch(run.NewLoadoutSnapshot([]run.LoadLine{
		{ProductID: p.ID, Qty: 10},
	}), now))
	require.NoError(t, r.RecordCheckin(run.NewCheckinSnapshot()))
	require.NoError(t, r.MarkCheckedIn(now))
	f.runs.runs[r.ID] = r

	parent := &order.Order{
		Code:       "ORD-2026-00077",
		Kind:       order.KindParent,
		Status:     order.StatusUnpaid,
		CustomerID: &customerID,
		RunID:      &r.ID,
		Total:      types.MustMoney("100.00"),
		Items: []order.Item{{
			ItemID:    id.New(),
			LineNo:    1,
			ProductID: p.ID,
			Qty:       10,
			UnitKind:  "PACK",
			UnitPrice: types.MustMoney("10.00"),
			LineTotal: types.MustMoney("100.00"),
		}},
	}
	parent.ID = id.New()
	require.NoError(t, f.orders.Create(context.Background(), parent))

	rcpt := &run.RunReceipt{
		ID:            id.New(),
		RunID:         r.ID,
		Kind:          run.ReceiptParent,
		Number:        "RCT-2026-00002",
		CustomerID:    &customerID,
		ParentOrderID: &parent.ID,
		FrozenTotal:   types.MustMoney("100.00"),
		CashCollected: types.MustMoney("40.00"),
		OnCredit:      true,
		CreatedAt:     now,
	}
	f.runs.receipts[r.ID] = []*run.RunReceipt{rcpt}

	input := PostInput{
		RunID:        r.ID,
		Action:       ActionApproveClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionPresent},
	}
	res, err := f.svc.Post(context.Background(), id.New(), input)
	require.NoError(t, err)

	// Parent receipts materialize no order, but the agreed credit still
	// lands in the AR ledger.
	assert.Equal(t, 0, res.OrdersCreated)
	require.Len(t, f.ar.entries, 1)
	entry := f.ar.entries[0]
	assert.Equal(t, customerID, entry.CustomerID)
	require.NotNil(t, entry.ReceiptID)
	assert.Equal(t, rcpt.ID, *entry.ReceiptID)
	assert.True(t, entry.Principal.Equal(types.MustMoney("60.00")))

	// Re-posting does not duplicate the entry.
	_, err = f.svc.Post(context.Background(), id.New(), input)
	require.NoError(t, err)
	assert.Len(t, f.ar.entries, 1)

	assert.True(t, res.Summary.ArBalance.Equal(types.MustMoney("60.00")))
	assert.True(t, res.Summary.Balanced(types.DefaultMoneyPolicy()))
}

func TestPost_ChargeCloseInfersUntaggedFrozenPrice(t *testing.T) {
	f := newFixture()
	r, p, _ := f.seedRun(t, 50, 47, "10.00", "470.00")

	// The frozen line carries a per-piece price with no stored kind.
	// Inference classifies it RETAIL, so the missing trays are valued
	// at SRP instead.
	p.RetailAllowed = true
	p.RetailPrice = types.MustMoney("8.00")
	line := &f.runs.receipts[r.ID][0].Lines[0]
	line.UnitKind = ""
	line.UnitPrice = types.MustMoney("8.00")

	res, err := f.svc.Post(context.Background(), id.New(), PostInput{
		RunID:        r.ID,
		Action:       ActionChargeClose,
		Dispositions: map[id.ID]Disposition{p.ID: DispositionMissing},
	})
	require.NoError(t, err)

	require.NotNil(t, res.Charge)
	assert.True(t, res.Charge.Amount.Equal(types.MustMoney("75.00")), "got %s", res.Charge.Amount)
}
