package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/domain/order"
)

var orderCols = []string{
	"id", "version", "created_at", "updated_at",
	"code", "kind", "status", "customer_id", "run_id",
	"receipt_id", "receipt_number",
	"total", "cash_collected", "on_credit", "ordered_at",
}

var orderItemCols = []string{
	"item_id", "order_id", "line_no", "product_id", "qty", "unit_kind",
	"base_unit_price", "unit_price", "discount", "line_total",
}

// orderItemRow adds the foreign key column the domain item omits.
type orderItemRow struct {
	order.Item
	OrderID id.ID `db:"order_id"`
}

// OrderRepo is the postgres order store.
type OrderRepo struct {
	txManager *TxManager
}

var _ order.Repository = (*OrderRepo)(nil)

// NewOrderRepo creates the order repository.
func NewOrderRepo(txManager *TxManager) *OrderRepo {
	return &OrderRepo{txManager: txManager}
}

func (r *OrderRepo) GetByID(ctx context.Context, orderID id.ID) (*order.Order, error) {
	q := builder().Select(orderCols...).From("orders").
		Where(squirrel.Eq{"id": orderID}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var o order.Order
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &o, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order", orderID.String())
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := r.loadItems(ctx, []*order.Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetByCode returns nil, nil when no order carries the code.
func (r *OrderRepo) GetByCode(ctx context.Context, code string) (*order.Order, error) {
	q := builder().Select(orderCols...).From("orders").
		Where(squirrel.Eq{"code": code}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var o order.Order
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &o, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by code: %w", err)
	}
	if err := r.loadItems(ctx, []*order.Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) ListByRun(ctx context.Context, runID id.ID) ([]*order.Order, error) {
	q := builder().Select(orderCols...).From("orders").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("ordered_at", "id")
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var orders []*order.Order
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &orders, sql, args...); err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepo) loadItems(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]id.ID, 0, len(orders))
	byID := make(map[id.ID]*order.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	q := builder().Select(orderItemCols...).From("order_items").
		Where(squirrel.Eq{"order_id": ids}).
		OrderBy("order_id", "line_no")
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build items query: %w", err)
	}

	var rows []orderItemRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	for _, row := range rows {
		if o, ok := byID[row.OrderID]; ok {
			o.Items = append(o.Items, row.Item)
		}
	}
	return nil
}

func (r *OrderRepo) Create(ctx context.Context, o *order.Order) error {
	querier := r.txManager.GetQuerier(ctx)

	q := builder().Insert("orders").
		Columns(orderCols...).
		Values(o.ID, o.Version, o.CreatedAt, o.UpdatedAt,
			o.Code, o.Kind, o.Status, o.CustomerID, o.RunID,
			o.ReceiptID, o.ReceiptNumber,
			o.Total, o.CashCollected, o.OnCredit, o.OrderedAt)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("order", "code", o.Code)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		iq := builder().Insert("order_items").
			Columns(orderItemCols...).
			Values(item.ItemID, o.ID, item.LineNo, item.ProductID,
				item.Qty, item.UnitKind,
				item.BaseUnitPrice, item.UnitPrice, item.Discount, item.LineTotal)
		sql, args, err := iq.ToSql()
		if err != nil {
			return fmt.Errorf("build item insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}
