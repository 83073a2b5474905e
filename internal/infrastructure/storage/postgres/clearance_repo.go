package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/domain/clearance"
)

var caseCols = []string{
	"id", "version", "created_at", "updated_at",
	"status", "run_id", "order_id", "receipt_id", "customer_id",
	"frozen_total", "cash_collected", "note",
}

var decisionCols = []string{
	"id", "case_id", "kind", "balance_at_decision",
	"approved_discount", "ar_balance",
	"decided_by", "note", "due_date", "created_at",
}

var arCols = []string{
	"id", "customer_id", "decision_id", "receipt_id",
	"principal", "balance", "due_date", "created_at",
}

// ClearanceRepo is the postgres clearance case store.
type ClearanceRepo struct {
	txManager *TxManager
}

var (
	_ clearance.Repository   = (*ClearanceRepo)(nil)
	_ clearance.ArRepository = (*ClearanceRepo)(nil)
)

// NewClearanceRepo creates the clearance repository.
func NewClearanceRepo(txManager *TxManager) *ClearanceRepo {
	return &ClearanceRepo{txManager: txManager}
}

func (r *ClearanceRepo) getCase(ctx context.Context, caseID id.ID, forUpdate bool) (*clearance.Case, error) {
	q := builder().Select(caseCols...).From("clearance_cases").
		Where(squirrel.Eq{"id": caseID}).Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var c clearance.Case
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &c, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("clearance case", caseID.String())
		}
		return nil, fmt.Errorf("get case: %w", err)
	}
	return &c, nil
}

func (r *ClearanceRepo) GetCaseByID(ctx context.Context, caseID id.ID) (*clearance.Case, error) {
	return r.getCase(ctx, caseID, false)
}

func (r *ClearanceRepo) GetCaseByIDForUpdate(ctx context.Context, caseID id.ID) (*clearance.Case, error) {
	return r.getCase(ctx, caseID, true)
}

func (r *ClearanceRepo) CreateCase(ctx context.Context, c *clearance.Case) error {
	q := builder().Insert("clearance_cases").
		Columns(caseCols...).
		Values(c.ID, c.Version, c.CreatedAt, c.UpdatedAt,
			c.Status, c.RunID, c.OrderID, c.ReceiptID, c.CustomerID,
			c.FrozenTotal, c.CashCollected, c.Note)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("clearance case", "receipt_id", c.ReceiptID.String())
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (r *ClearanceRepo) UpdateCase(ctx context.Context, c *clearance.Case) error {
	q := builder().Update("clearance_cases").
		Set("status", c.Status).
		Set("note", c.Note).
		Set("updated_at", c.UpdatedAt).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": c.ID, "version": c.Version})
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("clearance_case", c.ID.String())
	}
	c.Version++
	return nil
}

func (r *ClearanceRepo) ListByRun(ctx context.Context, runID id.ID) ([]*clearance.Case, error) {
	q := builder().Select(caseCols...).From("clearance_cases").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("created_at", "id")
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var cases []*clearance.Case
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &cases, sql, args...); err != nil {
		return nil, fmt.Errorf("select cases: %w", err)
	}
	return cases, nil
}

func (r *ClearanceRepo) CountPendingByRun(ctx context.Context, runID id.ID) (int, error) {
	var count int
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM clearance_cases WHERE run_id = $1 AND status = $2
	`, runID, clearance.StatusNeedsClearance).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending cases: %w", err)
	}
	return count, nil
}

func (r *ClearanceRepo) HasDecision(ctx context.Context, caseID id.ID) (bool, error) {
	var exists bool
	err := r.txManager.GetQuerier(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM clearance_decisions WHERE case_id = $1)
	`, caseID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check decision: %w", err)
	}
	return exists, nil
}

func (r *ClearanceRepo) GetDecision(ctx context.Context, caseID id.ID) (*clearance.Decision, error) {
	q := builder().Select(decisionCols...).From("clearance_decisions").
		Where(squirrel.Eq{"case_id": caseID}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var d clearance.Decision
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &d, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("clearance decision", caseID.String())
		}
		return nil, fmt.Errorf("get decision: %w", err)
	}
	return &d, nil
}

func (r *ClearanceRepo) CreateDecision(ctx context.Context, d *clearance.Decision) error {
	q := builder().Insert("clearance_decisions").
		Columns(decisionCols...).
		Values(d.ID, d.CaseID, d.Kind, d.BalanceAtDecision,
			d.ApprovedDiscount, d.ArBalance,
			d.DecidedBy, d.Note, d.DueDate, d.CreatedAt)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewPrecondition(apperror.CodeDuplicateDecision,
				"case already has a decision").
				WithDetail("case_id", d.CaseID.String())
		}
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ListRejectedUnresolved returns rejected cases with their decisions,
// newest decisions first. These stay surfaced until handled outside the
// system.
func (r *ClearanceRepo) ListRejectedUnresolved(ctx context.Context, limit, offset int) ([]*clearance.RejectedCase, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.txManager.GetQuerier(ctx).Query(ctx, `
		SELECT
			c.id, c.version, c.created_at, c.updated_at,
			c.status, c.run_id, c.order_id, c.receipt_id, c.customer_id,
			c.frozen_total, c.cash_collected, c.note,
			d.id, d.case_id, d.kind, d.balance_at_decision,
			d.approved_discount, d.ar_balance,
			d.decided_by, d.note, d.due_date, d.created_at
		FROM clearance_cases c
		JOIN clearance_decisions d ON d.case_id = c.id
		WHERE d.kind = $1
		ORDER BY d.created_at DESC
		LIMIT $2 OFFSET $3
	`, clearance.KindReject, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query rejected cases: %w", err)
	}
	defer rows.Close()

	var out []*clearance.RejectedCase
	for rows.Next() {
		var (
			c clearance.Case
			d clearance.Decision
		)
		if err := rows.Scan(
			&c.ID, &c.Version, &c.CreatedAt, &c.UpdatedAt,
			&c.Status, &c.RunID, &c.OrderID, &c.ReceiptID, &c.CustomerID,
			&c.FrozenTotal, &c.CashCollected, &c.Note,
			&d.ID, &d.CaseID, &d.Kind, &d.BalanceAtDecision,
			&d.ApprovedDiscount, &d.ArBalance,
			&d.DecidedBy, &d.Note, &d.DueDate, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rejected case: %w", err)
		}
		out = append(out, &clearance.RejectedCase{Case: &c, Decision: &d})
	}
	return out, rows.Err()
}

func (r *ClearanceRepo) CreateAr(ctx context.Context, ar *clearance.CustomerAr) error {
	q := builder().Insert("customer_ar").
		Columns(arCols...).
		Values(ar.ID, ar.CustomerID, ar.DecisionID, ar.ReceiptID,
			ar.Principal, ar.Balance, ar.DueDate, ar.CreatedAt)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("customer AR", "receipt_id", ar.ReceiptID.String())
		}
		return fmt.Errorf("insert customer AR: %w", err)
	}
	return nil
}

// GetArByReceipt returns nil, nil when no entry exists for the receipt.
func (r *ClearanceRepo) GetArByReceipt(ctx context.Context, receiptID id.ID) (*clearance.CustomerAr, error) {
	q := builder().Select(arCols...).From("customer_ar").
		Where(squirrel.Eq{"receipt_id": receiptID}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ar clearance.CustomerAr
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &ar, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get customer AR: %w", err)
	}
	return &ar, nil
}

func (r *ClearanceRepo) ListArByCustomer(ctx context.Context, customerID id.ID) ([]*clearance.CustomerAr, error) {
	q := builder().Select(arCols...).From("customer_ar").
		Where(squirrel.Eq{"customer_id": customerID}).
		OrderBy("created_at DESC")
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []*clearance.CustomerAr
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select customer AR: %w", err)
	}
	return out, nil
}
