package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/domain/remit"
)

var varianceCols = []string{
	"id", "run_id", "rider_id", "expected_value", "actual_value",
	"resolution", "created_at",
}

var chargeCols = []string{
	"id", "variance_id", "rider_id", "amount", "status",
	"created_at", "updated_at",
}

// ChargeRepo is the postgres store for variances and rider charges.
type ChargeRepo struct {
	txManager *TxManager
}

var _ remit.ChargeRepository = (*ChargeRepo)(nil)

// NewChargeRepo creates the charge repository.
func NewChargeRepo(txManager *TxManager) *ChargeRepo {
	return &ChargeRepo{txManager: txManager}
}

// GetVarianceByRun returns nil, nil when the run has no variance.
func (r *ChargeRepo) GetVarianceByRun(ctx context.Context, runID id.ID) (*remit.RiderRunVariance, error) {
	q := builder().Select(varianceCols...).From("rider_run_variances").
		Where(squirrel.Eq{"run_id": runID}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var v remit.RiderRunVariance
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &v, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get variance: %w", err)
	}
	return &v, nil
}

func (r *ChargeRepo) CreateVariance(ctx context.Context, v *remit.RiderRunVariance) error {
	q := builder().Insert("rider_run_variances").
		Columns(varianceCols...).
		Values(v.ID, v.RunID, v.RiderID, v.ExpectedValue, v.ActualValue,
			v.Resolution, v.CreatedAt)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("rider run variance", "run_id", v.RunID.String())
		}
		return fmt.Errorf("insert variance: %w", err)
	}
	return nil
}

// GetChargeByVariance returns nil, nil when the variance has no charge.
func (r *ChargeRepo) GetChargeByVariance(ctx context.Context, varianceID id.ID) (*remit.RiderCharge, error) {
	q := builder().Select(chargeCols...).From("rider_charges").
		Where(squirrel.Eq{"variance_id": varianceID}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var c remit.RiderCharge
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &c, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get charge: %w", err)
	}
	return &c, nil
}

func (r *ChargeRepo) CreateCharge(ctx context.Context, c *remit.RiderCharge) error {
	q := builder().Insert("rider_charges").
		Columns(chargeCols...).
		Values(c.ID, c.VarianceID, c.RiderID, c.Amount, c.Status,
			c.CreatedAt, c.UpdatedAt)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("rider charge", "variance_id", c.VarianceID.String())
		}
		return fmt.Errorf("insert charge: %w", err)
	}
	return nil
}

func (r *ChargeRepo) UpdateCharge(ctx context.Context, c *remit.RiderCharge) error {
	q := builder().Update("rider_charges").
		Set("amount", c.Amount).
		Set("status", c.Status).
		Set("updated_at", c.UpdatedAt).
		Where(squirrel.Eq{"id": c.ID})
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update charge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("rider charge", c.ID.String())
	}
	return nil
}

func (r *ChargeRepo) ListOpenByRider(ctx context.Context, riderID id.ID) ([]*remit.RiderCharge, error) {
	q := builder().Select(chargeCols...).From("rider_charges").
		Where(squirrel.Eq{"rider_id": riderID, "status": remit.ChargeOpen}).
		OrderBy("created_at DESC")
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var charges []*remit.RiderCharge
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &charges, sql, args...); err != nil {
		return nil, fmt.Errorf("select charges: %w", err)
	}
	return charges, nil
}
