package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"tindahan/internal/core/apperror"
	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/catalog/product"
)

var productCols = []string{
	"id", "version", "created_at", "updated_at",
	"code", "name", "pack_price", "retail_price", "srp",
	"retail_allowed", "pack_size", "stock_on_hand", "active",
}

// ProductRepo is the postgres product store.
type ProductRepo struct {
	txManager *TxManager
}

var _ product.Repository = (*ProductRepo)(nil)

// NewProductRepo creates the product repository.
func NewProductRepo(txManager *TxManager) *ProductRepo {
	return &ProductRepo{txManager: txManager}
}

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	q := builder().Select(productCols...).From("products").
		Where(squirrel.Eq{"id": productID}).Limit(1)
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p product.Product
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (r *ProductRepo) GetByIDs(ctx context.Context, productIDs []id.ID) (map[id.ID]*product.Product, error) {
	out := make(map[id.ID]*product.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	q := builder().Select(productCols...).From("products").
		Where(squirrel.Eq{"id": productIDs})
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var products []*product.Product
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (r *ProductRepo) List(ctx context.Context, activeOnly bool) ([]*product.Product, error) {
	q := builder().Select(productCols...).From("products").OrderBy("name")
	if activeOnly {
		q = q.Where(squirrel.Eq{"active": true})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var products []*product.Product
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return products, nil
}

func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	q := builder().Insert("products").
		Columns(productCols...).
		Values(p.ID, p.Version, p.CreatedAt, p.UpdatedAt,
			p.Code, p.Name, p.PackPrice, p.RetailPrice, p.SRP,
			p.RetailAllowed, p.PackSize, p.StockOnHand, p.Active)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if isUniqueViolation(err) {
			return apperror.NewDuplicate("product", "code", p.Code)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// AddStock adjusts stock-on-hand. A CHECK constraint on the column
// rejects adjustments that would drive it negative.
func (r *ProductRepo) AddStock(ctx context.Context, productID id.ID, delta types.Quantity) error {
	sql := `
		UPDATE products
		SET stock_on_hand = stock_on_hand + $2, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, productID, delta)
	if err != nil {
		if isCheckViolation(err) {
			return apperror.NewPrecondition(apperror.CodeBusinessRule,
				"stock adjustment would drive stock below zero").
				WithDetail("product_id", productID.String())
		}
		return fmt.Errorf("adjust stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", productID.String())
	}
	return nil
}
