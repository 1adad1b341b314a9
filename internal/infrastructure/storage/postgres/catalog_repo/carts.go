package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"marketplace/internal/core/id"
	"marketplace/internal/domain/cart"
	"marketplace/internal/infrastructure/storage/postgres"
)

const (
	tableCarts     = "carts"
	tableCartItems = "cart_items"
)

var cartItemColumns = postgres.ExtractDBColumns[cart.Item]()

var _ cart.Store = (*CartRepo)(nil)

type CartRepo struct {
	txm *postgres.TxManager
}

func NewCartRepo(txm *postgres.TxManager) *CartRepo {
	return &CartRepo{txm: txm}
}

// GetCartWithItems returns (nil, nil) when the user has no cart.
func (r *CartRepo) GetCartWithItems(ctx context.Context, userID id.ID) (*cart.Cart, error) {
	sql, args, err := postgres.Builder().
		Select("id", "user_id").
		From(tableCarts).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)

	var c cart.Cart
	if err := pgxscan.Get(ctx, querier, &c, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	sql, args, err = postgres.Builder().
		Select(cartItemColumns...).
		From(tableCartItems).
		Where(squirrel.Eq{"cart_id": c.ID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &c.Items, sql, args...); err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	return &c, nil
}

func (r *CartRepo) Clear(ctx context.Context, cartID id.ID) error {
	sql, args, err := postgres.Builder().
		Delete(tableCartItems).
		Where(squirrel.Eq{"cart_id": cartID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// AddItem appends a line to the user's cart, creating the cart on first use.
func (r *CartRepo) AddItem(ctx context.Context, userID id.ID, item cart.Item) error {
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := r.txm.GetQuerier(ctx)

		var cartID id.ID
		err := querier.QueryRow(ctx, `
			INSERT INTO carts (id, user_id) VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING id
		`, id.New(), userID).Scan(&cartID)
		if err != nil {
			return fmt.Errorf("upsert cart: %w", err)
		}

		sql, args, err := postgres.Builder().
			Insert(tableCartItems).
			Columns("id", "cart_id", "product_id", "product_variant_id", "quantity").
			Values(id.New(), cartID, item.ProductID, item.VariantID, item.Quantity).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
		return nil
	})
}
