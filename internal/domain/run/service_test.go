package run

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/entity"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/catalog/product"
	"tindahan/internal/domain/order"
	"tindahan/internal/domain/stock"
	"tindahan/pkg/numerator"
)

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// seqRow satisfies pgx.Row for the numerator fake.
type seqRow struct{ val int64 }

func (r seqRow) Scan(dest ...any) error {
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = r.val
		}
	}
	return nil
}

type seqQuerier struct{ current int64 }

func (q *seqQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.current++
	return seqRow{val: q.current}
}

type fakeRunRepo struct {
	runs     map[id.ID]*DeliveryRun
	receipts map[id.ID][]*RunReceipt
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{
		runs:     map[id.ID]*DeliveryRun{},
		receipts: map[id.ID][]*RunReceipt{},
	}
}

func (r *fakeRunRepo) GetByID(ctx context.Context, runID id.ID) (*DeliveryRun, error) {
	dr, ok := r.runs[runID]
	if !ok {
		return nil, apperror.NewNotFound("delivery run", runID)
	}
	return dr, nil
}

func (r *fakeRunRepo) GetByIDForUpdate(ctx context.Context, runID id.ID) (*DeliveryRun, error) {
	return r.GetByID(ctx, runID)
}

func (r *fakeRunRepo) List(ctx context.Context, filter ListFilter) ([]*DeliveryRun, error) {
	out := make([]*DeliveryRun, 0, len(r.runs))
	for _, dr := range r.runs {
		if filter.Status != "" && dr.Status != filter.Status {
			continue
		}
		out = append(out, dr)
	}
	return out, nil
}

func (r *fakeRunRepo) Create(ctx context.Context, dr *DeliveryRun) error {
	r.runs[dr.ID] = dr
	return nil
}

func (r *fakeRunRepo) Update(ctx context.Context, dr *DeliveryRun) error {
	if _, ok := r.runs[dr.ID]; !ok {
		return apperror.NewNotFound("delivery run", dr.ID)
	}
	r.runs[dr.ID] = dr
	return nil
}

func (r *fakeRunRepo) CreateReceipts(ctx context.Context, receipts []*RunReceipt) error {
	for _, rcpt := range receipts {
		r.receipts[rcpt.RunID] = append(r.receipts[rcpt.RunID], rcpt)
	}
	return nil
}

func (r *fakeRunRepo) ListReceipts(ctx context.Context, runID id.ID) ([]*RunReceipt, error) {
	return r.receipts[runID], nil
}

func (r *fakeRunRepo) GetReceipt(ctx context.Context, receiptID id.ID) (*RunReceipt, error) {
	for _, rcpts := range r.receipts {
		for _, rcpt := range rcpts {
			if rcpt.ID == receiptID {
				return rcpt, nil
			}
		}
	}
	return nil, apperror.NewNotFound("run receipt", receiptID)
}

func (r *fakeRunRepo) DeleteReceipts(ctx context.Context, runID id.ID) error {
	delete(r.receipts, runID)
	return nil
}

type fakeProductRepo struct {
	products map[id.ID]*product.Product
}

func newFakeProductRepo(products ...*product.Product) *fakeProductRepo {
	repo := &fakeProductRepo{products: map[id.ID]*product.Product{}}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (r *fakeProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	p, ok := r.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID)
	}
	return p, nil
}

func (r *fakeProductRepo) GetByIDs(ctx context.Context, productIDs []id.ID) (map[id.ID]*product.Product, error) {
	out := map[id.ID]*product.Product{}
	for _, pid := range productIDs {
		if p, ok := r.products[pid]; ok {
			out[pid] = p
		}
	}
	return out, nil
}

func (r *fakeProductRepo) List(ctx context.Context, activeOnly bool) ([]*product.Product, error) {
	out := make([]*product.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeProductRepo) Create(ctx context.Context, p *product.Product) error {
	r.products[p.ID] = p
	return nil
}

func (r *fakeProductRepo) AddStock(ctx context.Context, productID id.ID, delta types.Quantity) error {
	p, ok := r.products[productID]
	if !ok {
		return apperror.NewNotFound("product", productID)
	}
	if p.StockOnHand+delta < 0 {
		return apperror.NewPrecondition(apperror.CodeBusinessRule, "stock on hand cannot go negative")
	}
	p.StockOnHand += delta
	return nil
}

type fakeOrderRepo struct {
	orders map[id.ID]*order.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[id.ID]*order.Order{}}
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*order.Order, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("order", orderID)
	}
	return o, nil
}

func (r *fakeOrderRepo) GetByCode(ctx context.Context, code string) (*order.Order, error) {
	for _, o := range r.orders {
		if o.Code == code {
			return o, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) ListByRun(ctx context.Context, runID id.ID) ([]*order.Order, error) {
	var out []*order.Order
	for _, o := range r.orders {
		if o.RunID != nil && *o.RunID == runID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) Create(ctx context.Context, o *order.Order) error {
	r.orders[o.ID] = o
	return nil
}

type fakeStockRepo struct {
	movements []stock.Movement
}

func (r *fakeStockRepo) CreateMovements(ctx context.Context, movements []stock.Movement) error {
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *fakeStockRepo) HasRunReturn(ctx context.Context, runID id.ID) (bool, error) {
	for _, m := range r.movements {
		if m.RunID == runID && m.Kind == stock.MovementReturnIn {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeStockRepo) ListRunReturns(ctx context.Context, runID id.ID) ([]stock.Movement, error) {
	var out []stock.Movement
	for _, m := range r.movements {
		if m.RunID == runID && m.Kind == stock.MovementReturnIn {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeCaseOpener struct {
	opened []*RunReceipt
}

func (o *fakeCaseOpener) OpenForReceipt(ctx context.Context, r *RunReceipt) error {
	o.opened = append(o.opened, r)
	return nil
}

type serviceFixture struct {
	service  *Service
	runs     *fakeRunRepo
	products *fakeProductRepo
	orders   *fakeOrderRepo
	stock    *fakeStockRepo
	cases    *fakeCaseOpener
}

func newServiceFixture(products ...*product.Product) *serviceFixture {
	f := &serviceFixture{
		runs:     newFakeRunRepo(),
		products: newFakeProductRepo(products...),
		orders:   newFakeOrderRepo(),
		stock:    &fakeStockRepo{},
		cases:    &fakeCaseOpener{},
	}
	f.service = NewService(
		f.runs,
		f.products,
		f.orders,
		f.stock,
		numerator.New(&seqQuerier{}),
		fakeTxManager{},
		f.cases,
		types.DefaultMoneyPolicy(),
	)
	return f
}

func testProduct(name string, stockOnHand types.Quantity) *product.Product {
	p := product.New(strings.ToUpper(name), name)
	p.PackPrice = types.MustMoney("100.00")
	p.SRP = types.MustMoney("110.00")
	p.StockOnHand = stockOnHand
	return p
}

func TestService_Create(t *testing.T) {
	f := newServiceFixture()

	r, err := f.service.Create(context.Background(), id.New(), "Juan")
	require.NoError(t, err)
	assert.Equal(t, StatusPlanned, r.Status)
	assert.True(t, strings.HasPrefix(r.Code, "RUN-"), "code %q", r.Code)

	stored, err := f.runs.GetByID(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Code, stored.Code)
}

func TestService_Dispatch(t *testing.T) {
	p := testProduct("eggs", 10)
	f := newServiceFixture(p)

	r, err := f.service.Create(context.Background(), id.New(), "Juan")
	require.NoError(t, err)

	r, err = f.service.Dispatch(context.Background(), r.ID, []LoadLine{
		{ProductID: p.ID, Qty: 4},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusDispatched, r.Status)
	require.NotNil(t, r.Loadout)
	assert.NotNil(t, r.DispatchedAt)
	assert.Equal(t, types.Quantity(6), p.StockOnHand)

	require.Len(t, f.stock.movements, 1)
	assert.Equal(t, stock.MovementLoadOut, f.stock.movements[0].Kind)
	assert.Equal(t, types.Quantity(4), f.stock.movements[0].Qty)
}

func TestService_Dispatch_UnknownProduct(t *testing.T) {
	f := newServiceFixture()

	r, err := f.service.Create(context.Background(), id.New(), "Juan")
	require.NoError(t, err)

	_, err = f.service.Dispatch(context.Background(), r.ID, []LoadLine{
		{ProductID: id.New(), Qty: 1},
	})
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_Dispatch_RequiresPlanned(t *testing.T) {
	p := testProduct("eggs", 10)
	f := newServiceFixture(p)

	r, err := f.service.Create(context.Background(), id.New(), "Juan")
	require.NoError(t, err)

	lines := []LoadLine{{ProductID: p.ID, Qty: 1}}
	_, err = f.service.Dispatch(context.Background(), r.ID, lines)
	require.NoError(t, err)

	_, err = f.service.Dispatch(context.Background(), r.ID, lines)
	assert.True(t, apperror.IsCode(err, apperror.CodeRunState))
}

func TestService_RecordCheckin_ReplacesSnapshot(t *testing.T) {
	p := testProduct("eggs", 10)
	f := newServiceFixture(p)

	r, err := f.service.Create(context.Background(), id.New(), "Juan")
	require.NoError(t, err)
	_, err = f.service.Dispatch(context.Background(), r.ID, []LoadLine{{ProductID: p.ID, Qty: 5}})
	require.NoError(t, err)

	first := NewCheckinSnapshot()
	first.CashDeclared = types.MustMoney("100.00")
	_, err = f.service.RecordCheckin(context.Background(), r.ID, first)
	require.NoError(t, err)

	second := NewCheckinSnapshot()
	second.CashDeclared = types.MustMoney("250.00")
	updated, err := f.service.RecordCheckin(context.Background(), r.ID, second)
	require.NoError(t, err)

	require.NotNil(t, updated.Checkin)
	assert.True(t, updated.Checkin.CashDeclared.Equal(types.MustMoney("250.00")))
}

func TestService_RecordCheckin_RequiresDispatched(t *testing.T) {
	f := newServiceFixture()

	r, err := f.service.Create(context.Background(), id.New(), "Juan")
	require.NoError(t, err)

	_, err = f.service.RecordCheckin(context.Background(), r.ID, NewCheckinSnapshot())
	assert.True(t, apperror.IsCode(err, apperror.CodeRunState))
}

func dispatchedRun(t *testing.T, f *serviceFixture, p *product.Product, qty types.Quantity) *DeliveryRun {
	t.Helper()
	r, err := f.service.Create(context.Background(), id.New(), "Juan")
	require.NoError(t, err)
	r, err = f.service.Dispatch(context.Background(), r.ID, []LoadLine{{ProductID: p.ID, Qty: qty}})
	require.NoError(t, err)
	return r
}

func TestService_ConfirmCheckin_OpensCaseForShortfall(t *testing.T) {
	p := testProduct("eggs", 10)
	f := newServiceFixture(p)
	r := dispatchedRun(t, f, p, 5)

	rcpt := &RunReceipt{
		Kind:          ReceiptRoad,
		CashCollected: types.MustMoney("150.00"),
		Lines: []ReceiptLine{
			{ProductID: p.ID, Qty: 2, UnitKind: "PACK", UnitPrice: types.MustMoney("100.00")},
		},
	}

	updated, err := f.service.ConfirmCheckin(context.Background(), r.ID, []*RunReceipt{rcpt})
	require.NoError(t, err)

	assert.Equal(t, StatusCheckedIn, updated.Status)
	assert.True(t, rcpt.FrozenTotal.Equal(types.MustMoney("200.00")), "got %s", rcpt.FrozenTotal)
	assert.True(t, strings.HasPrefix(rcpt.Number, "RCT-"), "number %q", rcpt.Number)

	// 50.00 uncollected and not a credit sale: needs clearance.
	require.Len(t, f.cases.opened, 1)
	assert.Equal(t, rcpt.ID, f.cases.opened[0].ID)
}

func TestService_ConfirmCheckin_CreditSaleSkipsCase(t *testing.T) {
	p := testProduct("eggs", 10)
	f := newServiceFixture(p)
	r := dispatchedRun(t, f, p, 5)

	customerID := id.New()
	rcpt := &RunReceipt{
		Kind:          ReceiptRoad,
		CustomerID:    &customerID,
		OnCredit:      true,
		CashCollected: types.ZeroMoney(),
		Lines: []ReceiptLine{
			{ProductID: p.ID, Qty: 1, UnitKind: "PACK", UnitPrice: types.MustMoney("100.00")},
		},
	}

	_, err := f.service.ConfirmCheckin(context.Background(), r.ID, []*RunReceipt{rcpt})
	require.NoError(t, err)
	assert.Empty(t, f.cases.opened)
}

func TestService_ConfirmCheckin_CreditWithoutCustomer(t *testing.T) {
	p := testProduct("eggs", 10)
	f := newServiceFixture(p)
	r := dispatchedRun(t, f, p, 5)

	rcpt := &RunReceipt{
		Kind:          ReceiptRoad,
		OnCredit:      true,
		CashCollected: types.ZeroMoney(),
		Lines: []ReceiptLine{
			{ProductID: p.ID, Qty: 1, UnitKind: "PACK", UnitPrice: types.MustMoney("100.00")},
		},
	}

	_, err := f.service.ConfirmCheckin(context.Background(), r.ID, []*RunReceipt{rcpt})
	assert.True(t, apperror.IsCode(err, apperror.CodeCustomerRequired))
}

func TestService_ConfirmCheckin_ParentReceiptBindsOrder(t *testing.T) {
	p := testProduct("eggs", 10)
	f := newServiceFixture(p)
	r := dispatchedRun(t, f, p, 5)

	customerID := id.New()
	parent := &order.Order{
		Base:       entity.NewBase(),
		Code:       "ORD-2026-00001",
		Kind:       order.KindParent,
		Status:     order.StatusUnpaid,
		CustomerID: &customerID,
		RunID:      &r.ID,
		Total:      types.MustMoney("300.00"),
	}
	require.NoError(t, f.orders.Create(context.Background(), parent))

	rcpt := &RunReceipt{
		Kind:          ReceiptParent,
		ParentOrderID: &parent.ID,
		CashCollected: types.MustMoney("300.00"),
	}

	_, err := f.service.ConfirmCheckin(context.Background(), r.ID, []*RunReceipt{rcpt})
	require.NoError(t, err)

	assert.True(t, rcpt.FrozenTotal.Equal(types.MustMoney("300.00")))
	require.NotNil(t, rcpt.CustomerID)
	assert.Equal(t, customerID, *rcpt.CustomerID)
	assert.Empty(t, f.cases.opened)
}

func TestService_ConfirmCheckin_ParentFromAnotherRun(t *testing.T) {
	p := testProduct("eggs", 10)
	f := newServiceFixture(p)
	r := dispatchedRun(t, f, p, 5)

	otherRun := id.New()
	parent := &order.Order{
		Base:   entity.NewBase(),
		Code:   "ORD-2026-00002",
		Kind:   order.KindParent,
		Status: order.StatusUnpaid,
		RunID:  &otherRun,
		Total:  types.MustMoney("300.00"),
	}
	require.NoError(t, f.orders.Create(context.Background(), parent))

	rcpt := &RunReceipt{
		Kind:          ReceiptParent,
		ParentOrderID: &parent.ID,
		CashCollected: types.MustMoney("300.00"),
	}

	_, err := f.service.ConfirmCheckin(context.Background(), r.ID, []*RunReceipt{rcpt})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestService_Cancel_RestocksDispatchedRun(t *testing.T) {
	p := testProduct("eggs", 10)
	f := newServiceFixture(p)
	r := dispatchedRun(t, f, p, 4)
	require.Equal(t, types.Quantity(6), p.StockOnHand)

	cancelled, err := f.service.Cancel(context.Background(), r.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, types.Quantity(10), p.StockOnHand)

	returns, err := f.stock.ListRunReturns(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, types.Quantity(4), returns[0].Qty)
}

func TestService_Cancel_CheckedInRunRefused(t *testing.T) {
	p := testProduct("eggs", 10)
	f := newServiceFixture(p)
	r := dispatchedRun(t, f, p, 5)

	rcpt := &RunReceipt{
		Kind:          ReceiptRoad,
		CashCollected: types.MustMoney("100.00"),
		Lines: []ReceiptLine{
			{ProductID: p.ID, Qty: 1, UnitKind: "PACK", UnitPrice: types.MustMoney("100.00")},
		},
	}
	_, err := f.service.ConfirmCheckin(context.Background(), r.ID, []*RunReceipt{rcpt})
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), r.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeRunState))
}
