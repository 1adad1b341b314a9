// Package catalog_repo reads products, variants and carts from PostgreSQL.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/catalog"
	"marketplace/internal/infrastructure/storage/postgres"
)

const (
	tableProducts = "products"
	tableVariants = "product_variants"
)

var (
	productColumns = postgres.ExtractDBColumns[catalog.Product]()
	variantColumns = postgres.ExtractDBColumns[catalog.Variant]()
)

var _ catalog.Reader = (*ProductRepo)(nil)

type ProductRepo struct {
	txm *postgres.TxManager
}

func NewProductRepo(txm *postgres.TxManager) *ProductRepo {
	return &ProductRepo{txm: txm}
}

func (r *ProductRepo) FindProductByID(ctx context.Context, productID id.ID) (*catalog.Product, error) {
	sql, args, err := postgres.Builder().
		Select(productColumns...).
		From(tableProducts).
		Where(squirrel.Eq{"id": productID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)

	var p catalog.Product
	if err := pgxscan.Get(ctx, querier, &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	sql, args, err = postgres.Builder().
		Select(variantColumns...).
		From(tableVariants).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &p.Variants, sql, args...); err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	return &p, nil
}

// upsertProductQuery replaces every column but the id.
func upsertProductQuery(p *catalog.Product) (string, []any, error) {
	return postgres.Builder().
		Insert(tableProducts).
		SetMap(postgres.StructToMap(p)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			regular_price = EXCLUDED.regular_price,
			discount_price = EXCLUDED.discount_price,
			initial_stock = EXCLUDED.initial_stock`).
		ToSql()
}

// PutProduct inserts or replaces a product and its variant set.
func (r *ProductRepo) PutProduct(ctx context.Context, p catalog.Product) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := r.txm.GetQuerier(ctx)

		sql, args, err := upsertProductQuery(&p)
		if err != nil {
			return fmt.Errorf("build upsert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("upsert product: %w", err)
		}

		sql, args, err = postgres.Builder().
			Delete(tableVariants).
			Where(squirrel.Eq{"product_id": p.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("delete variants: %w", err)
		}

		if len(p.Variants) == 0 {
			return nil
		}
		q := postgres.Builder().Insert(tableVariants).Columns(variantColumns...)
		for i := range p.Variants {
			v := p.Variants[i]
			v.ProductID = p.ID
			m := postgres.StructToMap(&v)
			values := make([]any, len(variantColumns))
			for j, c := range variantColumns {
				values[j] = m[c]
			}
			q = q.Values(values...)
		}
		sql, args, err = q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert variants: %w", err)
		}
		return nil
	})
}

// DeleteProduct removes a product and its variants; stock and order rows keep their ids.
func (r *ProductRepo) DeleteProduct(ctx context.Context, productID id.ID) error {
	sql, args, err := postgres.Builder().
		Delete(tableProducts).
		Where(squirrel.Eq{"id": productID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}
