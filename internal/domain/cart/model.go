// Package cart describes the shopping cart contract consumed at checkout.
package cart

import (
	"context"

	"marketplace/internal/core/id"
)

type Item struct {
	ProductID id.ID  `db:"product_id" json:"productId"`
	VariantID *id.ID `db:"product_variant_id" json:"productVariantId,omitempty"`
	Quantity  int    `db:"quantity" json:"quantity"`
}

type Cart struct {
	ID     id.ID  `db:"id" json:"id"`
	UserID id.ID  `db:"user_id" json:"userId"`
	Items  []Item `db:"-" json:"items"`
}

func (c *Cart) IsEmpty() bool { return c == nil || len(c.Items) == 0 }

// Store reads and clears carts.
// GetCartWithItems returns (nil, nil) when the user has no cart.
type Store interface {
	GetCartWithItems(ctx context.Context, userID id.ID) (*Cart, error)
	Clear(ctx context.Context, cartID id.ID) error
}
