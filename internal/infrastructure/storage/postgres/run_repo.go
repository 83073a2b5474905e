package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/domain/run"
)

var runCols = []string{
	"id", "version", "created_at", "updated_at",
	"code", "rider_id", "rider_name", "status",
	"loadout", "checkin",
	"dispatched_at", "checked_in_at", "closed_at",
}

var receiptCols = []string{
	"id", "run_id", "kind", "number", "customer_id", "parent_order_id",
	"frozen_total", "cash_collected", "on_credit", "created_at",
}

var receiptLineCols = []string{
	"line_id", "receipt_id", "line_no", "product_id", "qty", "unit_kind",
	"base_unit_price", "unit_price", "line_total",
}

// runRow is the flat storage shape; snapshots live as JSONB and are
// decoded strictly on load.
type runRow struct {
	run.DeliveryRun
	LoadoutRaw []byte `db:"loadout"`
	CheckinRaw []byte `db:"checkin"`
}

// RunRepo is the postgres run store, including receipts.
type RunRepo struct {
	txManager *TxManager
}

var _ run.Repository = (*RunRepo)(nil)

// NewRunRepo creates the run repository.
func NewRunRepo(txManager *TxManager) *RunRepo {
	return &RunRepo{txManager: txManager}
}

func (r *RunRepo) getRun(ctx context.Context, runID id.ID, forUpdate bool) (*run.DeliveryRun, error) {
	q := builder().Select(runCols...).From("delivery_runs").
		Where(squirrel.Eq{"id": runID}).Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row runRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("delivery run", runID.String())
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r.hydrate(&row)
}

func (r *RunRepo) hydrate(row *runRow) (*run.DeliveryRun, error) {
	dr := row.DeliveryRun
	var err error
	if dr.Loadout, err = run.DecodeLoadoutSnapshot(row.LoadoutRaw); err != nil {
		return nil, err
	}
	if dr.Checkin, err = run.DecodeCheckinSnapshot(row.CheckinRaw); err != nil {
		return nil, err
	}
	return &dr, nil
}

func (r *RunRepo) GetByID(ctx context.Context, runID id.ID) (*run.DeliveryRun, error) {
	return r.getRun(ctx, runID, false)
}

func (r *RunRepo) GetByIDForUpdate(ctx context.Context, runID id.ID) (*run.DeliveryRun, error) {
	return r.getRun(ctx, runID, true)
}

func (r *RunRepo) List(ctx context.Context, filter run.ListFilter) ([]*run.DeliveryRun, error) {
	q := builder().Select(runCols...).From("delivery_runs").
		OrderBy("created_at DESC")
	if filter.Status != "" {
		q = q.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.RiderID != nil {
		q = q.Where(squirrel.Eq{"rider_id": *filter.RiderID})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*runRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}

	out := make([]*run.DeliveryRun, 0, len(rows))
	for _, row := range rows {
		dr, err := r.hydrate(row)
		if err != nil {
			return nil, err
		}
		out = append(out, dr)
	}
	return out, nil
}

func encodeSnapshots(dr *run.DeliveryRun) (loadout, checkin []byte, err error) {
	if dr.Loadout != nil {
		if loadout, err = json.Marshal(dr.Loadout); err != nil {
			return nil, nil, fmt.Errorf("marshal loadout: %w", err)
		}
	}
	if dr.Checkin != nil {
		if checkin, err = json.Marshal(dr.Checkin); err != nil {
			return nil, nil, fmt.Errorf("marshal checkin: %w", err)
		}
	}
	return loadout, checkin, nil
}

func (r *RunRepo) Create(ctx context.Context, dr *run.DeliveryRun) error {
	loadout, checkin, err := encodeSnapshots(dr)
	if err != nil {
		return err
	}

	q := builder().Insert("delivery_runs").
		Columns(runCols...).
		Values(dr.ID, dr.Version, dr.CreatedAt, dr.UpdatedAt,
			dr.Code, dr.RiderID, dr.RiderName, dr.Status,
			loadout, checkin,
			dr.DispatchedAt, dr.CheckedInAt, dr.ClosedAt)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("delivery run", "code", dr.Code)
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Update persists mutable run fields with an optimistic version check.
func (r *RunRepo) Update(ctx context.Context, dr *run.DeliveryRun) error {
	loadout, checkin, err := encodeSnapshots(dr)
	if err != nil {
		return err
	}

	q := builder().Update("delivery_runs").
		Set("status", dr.Status).
		Set("loadout", loadout).
		Set("checkin", checkin).
		Set("dispatched_at", dr.DispatchedAt).
		Set("checked_in_at", dr.CheckedInAt).
		Set("closed_at", dr.ClosedAt).
		Set("updated_at", dr.UpdatedAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": dr.ID, "version": dr.Version})
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("delivery_run", dr.ID.String())
	}
	dr.Version++
	return nil
}

func (r *RunRepo) CreateReceipts(ctx context.Context, receipts []*run.RunReceipt) error {
	querier := r.txManager.GetQuerier(ctx)
	for _, rcpt := range receipts {
		q := builder().Insert("run_receipts").
			Columns(receiptCols...).
			Values(rcpt.ID, rcpt.RunID, rcpt.Kind, rcpt.Number,
				rcpt.CustomerID, rcpt.ParentOrderID,
				rcpt.FrozenTotal, rcpt.CashCollected, rcpt.OnCredit, rcpt.CreatedAt)
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build receipt insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert receipt: %w", err)
		}

		for _, line := range rcpt.Lines {
			lq := builder().Insert("run_receipt_lines").
				Columns(receiptLineCols...).
				Values(line.LineID, rcpt.ID, line.LineNo, line.ProductID,
					line.Qty, line.UnitKind,
					line.BaseUnitPrice, line.UnitPrice, line.LineTotal)
			sql, args, err := lq.ToSql()
			if err != nil {
				return fmt.Errorf("build receipt line insert: %w", err)
			}
			if _, err := querier.Exec(ctx, sql, args...); err != nil {
				return fmt.Errorf("insert receipt line: %w", err)
			}
		}
	}
	return nil
}

func (r *RunRepo) ListReceipts(ctx context.Context, runID id.ID) ([]*run.RunReceipt, error) {
	q := builder().Select(receiptCols...).From("run_receipts").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("created_at", "id")
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var receipts []*run.RunReceipt
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &receipts, sql, args...); err != nil {
		return nil, fmt.Errorf("select receipts: %w", err)
	}
	if len(receipts) == 0 {
		return receipts, nil
	}

	ids := make([]id.ID, 0, len(receipts))
	byID := make(map[id.ID]*run.RunReceipt, len(receipts))
	for _, rcpt := range receipts {
		ids = append(ids, rcpt.ID)
		byID[rcpt.ID] = rcpt
	}

	lq := builder().Select(receiptLineCols...).From("run_receipt_lines").
		Where(squirrel.Eq{"receipt_id": ids}).
		OrderBy("receipt_id", "line_no")
	sql, args, err = lq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lines query: %w", err)
	}

	var lines []run.ReceiptLine
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select receipt lines: %w", err)
	}
	for _, line := range lines {
		if rcpt, ok := byID[line.ReceiptID]; ok {
			rcpt.Lines = append(rcpt.Lines, line)
		}
	}
	return receipts, nil
}

func (r *RunRepo) GetReceipt(ctx context.Context, receiptID id.ID) (*run.RunReceipt, error) {
	q := builder().Select(receiptCols...).From("run_receipts").
		Where(squirrel.Eq{"id": receiptID}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rcpt run.RunReceipt
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &rcpt, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("run receipt", receiptID.String())
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	lq := builder().Select(receiptLineCols...).From("run_receipt_lines").
		Where(squirrel.Eq{"receipt_id": receiptID}).
		OrderBy("line_no")
	sql, args, err = lq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lines query: %w", err)
	}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rcpt.Lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select receipt lines: %w", err)
	}
	return &rcpt, nil
}

func (r *RunRepo) DeleteReceipts(ctx context.Context, runID id.ID) error {
	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, `
		DELETE FROM run_receipt_lines
		WHERE receipt_id IN (SELECT id FROM run_receipts WHERE run_id = $1)
	`, runID); err != nil {
		return fmt.Errorf("delete receipt lines: %w", err)
	}
	if _, err := querier.Exec(ctx, `DELETE FROM run_receipts WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("delete receipts: %w", err)
	}
	return nil
}
