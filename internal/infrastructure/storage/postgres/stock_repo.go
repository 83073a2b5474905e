package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tindahan/internal/core/id"
	"tindahan/internal/domain/stock"
)

var movementCols = []string{
	"id", "run_id", "kind", "product_id", "qty", "created_at",
}

// StockRepo is the postgres stock movement store.
type StockRepo struct {
	txManager *TxManager
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates the stock movement repository.
func NewStockRepo(txManager *TxManager) *StockRepo {
	return &StockRepo{txManager: txManager}
}

func (r *StockRepo) CreateMovements(ctx context.Context, movements []stock.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	q := builder().Insert("stock_movements").Columns(movementCols...)
	for _, m := range movements {
		q = q.Values(m.ID, m.RunID, m.Kind, m.ProductID, m.Qty, m.CreatedAt)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}
	return nil
}

func (r *StockRepo) HasRunReturn(ctx context.Context, runID id.ID) (bool, error) {
	var exists bool
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM stock_movements WHERE run_id = $1 AND kind = $2
		)
	`, runID, stock.MovementReturnIn).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check run return: %w", err)
	}
	return exists, nil
}

func (r *StockRepo) ListRunReturns(ctx context.Context, runID id.ID) ([]stock.Movement, error) {
	q := builder().Select(movementCols...).From("stock_movements").
		Where(squirrel.Eq{"run_id": runID, "kind": stock.MovementReturnIn}).
		OrderBy("created_at", "id")
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []stock.Movement
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}
