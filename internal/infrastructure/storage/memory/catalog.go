package memory

import (
	"context"
	"slices"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/cart"
	"marketplace/internal/domain/catalog"
)

var (
	_ catalog.Reader = (*CatalogRepo)(nil)
	_ cart.Store     = (*CartRepo)(nil)
)

type CatalogRepo struct{ s *Store }

func (r *CatalogRepo) FindProductByID(ctx context.Context, productID id.ID) (*catalog.Product, error) {
	var out *catalog.Product
	err := r.s.view(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return apperror.NewNotFound("product", productID)
		}
		p.Variants = slices.Clone(p.Variants)
		out = &p
		return nil
	})
	return out, err
}

// PutProduct inserts or replaces a product with its variants.
func (r *CatalogRepo) PutProduct(ctx context.Context, p catalog.Product) error {
	p.Variants = slices.Clone(p.Variants)
	return r.s.view(ctx, func(st *state) error {
		st.products[p.ID] = p
		return nil
	})
}

// DeleteProduct removes a product; stock units and orders keep their references.
func (r *CatalogRepo) DeleteProduct(ctx context.Context, productID id.ID) error {
	return r.s.view(ctx, func(st *state) error {
		delete(st.products, productID)
		return nil
	})
}

type CartRepo struct{ s *Store }

func (r *CartRepo) GetCartWithItems(ctx context.Context, userID id.ID) (*cart.Cart, error) {
	var out *cart.Cart
	err := r.s.view(ctx, func(st *state) error {
		c, ok := st.carts[userID]
		if !ok {
			return nil
		}
		c.Items = slices.Clone(c.Items)
		out = &c
		return nil
	})
	return out, err
}

func (r *CartRepo) Clear(ctx context.Context, cartID id.ID) error {
	return r.s.view(ctx, func(st *state) error {
		for user, c := range st.carts {
			if c.ID == cartID {
				c.Items = nil
				st.carts[user] = c
			}
		}
		return nil
	})
}

// AddItem appends a line to the user's cart, creating the cart on first use.
func (r *CartRepo) AddItem(ctx context.Context, userID id.ID, item cart.Item) error {
	return r.s.view(ctx, func(st *state) error {
		c, ok := st.carts[userID]
		if !ok {
			c = cart.Cart{ID: id.New(), UserID: userID}
		}
		c.Items = append(slices.Clone(c.Items), item)
		st.carts[userID] = c
		return nil
	})
}
