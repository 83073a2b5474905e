package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/domain/catalog/customer"
	"tindahan/internal/domain/pricing"
)

var customerCols = []string{
	"id", "version", "created_at", "updated_at",
	"code", "name", "phone", "active",
}

var ruleCols = []string{
	"id", "customer_id", "product_id", "unit_kind",
	"kind", "value", "condition", "active", "created_at",
}

// CustomerRepo is the postgres customer store, including the pricing
// rules consumed read-only by the pricing engine.
type CustomerRepo struct {
	txManager *TxManager
}

var _ customer.Repository = (*CustomerRepo)(nil)

// NewCustomerRepo creates the customer repository.
func NewCustomerRepo(txManager *TxManager) *CustomerRepo {
	return &CustomerRepo{txManager: txManager}
}

func (r *CustomerRepo) GetByID(ctx context.Context, customerID id.ID) (*customer.Customer, error) {
	q := builder().Select(customerCols...).From("customers").
		Where(squirrel.Eq{"id": customerID}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var c customer.Customer
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &c, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("customer", customerID.String())
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

func (r *CustomerRepo) List(ctx context.Context, activeOnly bool) ([]*customer.Customer, error) {
	q := builder().Select(customerCols...).From("customers").OrderBy("name")
	if activeOnly {
		q = q.Where(squirrel.Eq{"active": true})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var customers []*customer.Customer
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &customers, sql, args...); err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	return customers, nil
}

func (r *CustomerRepo) Create(ctx context.Context, c *customer.Customer) error {
	q := builder().Insert("customers").
		Columns(customerCols...).
		Values(c.ID, c.Version, c.CreatedAt, c.UpdatedAt,
			c.Code, c.Name, c.Phone, c.Active)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("customer", "code", c.Code)
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// ActiveRules loads the active pricing rules for one customer.
func (r *CustomerRepo) ActiveRules(ctx context.Context, customerID id.ID) ([]pricing.Rule, error) {
	q := builder().Select(ruleCols...).From("pricing_rules").
		Where(squirrel.Eq{"customer_id": customerID, "active": true}).
		OrderBy("created_at DESC")
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rules []pricing.Rule
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rules, sql, args...); err != nil {
		return nil, fmt.Errorf("select pricing rules: %w", err)
	}
	return rules, nil
}

// CreateRule stores one pricing rule.
func (r *CustomerRepo) CreateRule(ctx context.Context, rule *pricing.Rule) error {
	q := builder().Insert("pricing_rules").
		Columns(ruleCols...).
		Values(rule.ID, rule.CustomerID, rule.ProductID, rule.UnitKind,
			rule.Kind, rule.Value, rule.Condition, rule.Active, rule.CreatedAt)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert pricing rule: %w", err)
	}
	return nil
}
