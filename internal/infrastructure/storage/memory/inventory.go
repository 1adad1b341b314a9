package memory

import (
	"context"
	"sort"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/inventory"
)

var _ inventory.Repository = (*InventoryRepo)(nil)

type InventoryRepo struct{ s *Store }

func (r *InventoryRepo) FindOrCreateForUpdate(ctx context.Context, key inventory.Key, initial int) (*inventory.StockUnit, error) {
	var out *inventory.StockUnit
	err := r.s.view(ctx, func(st *state) error {
		u, ok := st.units[key.String()]
		if !ok {
			now := nowUTC()
			u = inventory.StockUnit{
				ID:                id.New(),
				ProductID:         key.ProductID,
				VariantID:         key.VariantID,
				QuantityAvailable: initial,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			st.units[key.String()] = u
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *InventoryRepo) GetForUpdate(ctx context.Context, key inventory.Key) (*inventory.StockUnit, error) {
	return r.Get(ctx, key)
}

func (r *InventoryRepo) Get(ctx context.Context, key inventory.Key) (*inventory.StockUnit, error) {
	var out *inventory.StockUnit
	err := r.s.view(ctx, func(st *state) error {
		u, ok := st.units[key.String()]
		if !ok {
			return apperror.NewNotFound("stock unit", key.String())
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *InventoryRepo) Update(ctx context.Context, unit *inventory.StockUnit) error {
	return r.s.view(ctx, func(st *state) error {
		k := unit.Key().String()
		if _, ok := st.units[k]; !ok {
			return apperror.NewNotFound("stock unit", k)
		}
		st.units[k] = *unit
		return nil
	})
}

func (r *InventoryRepo) AppendMovement(ctx context.Context, m *inventory.Movement) error {
	return r.s.view(ctx, func(st *state) error {
		st.movements = append(st.movements, *m)
		return nil
	})
}

func (r *InventoryRepo) CreateRestock(ctx context.Context, rs *inventory.Restock) error {
	return r.s.view(ctx, func(st *state) error {
		st.restocks = append(st.restocks, *rs)
		return nil
	})
}

func (r *InventoryRepo) ListMovements(ctx context.Context, key inventory.Key, f inventory.MovementFilter) ([]inventory.Movement, error) {
	var out []inventory.Movement
	err := r.s.view(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.ProductID != key.ProductID || !id.EqualPtr(m.VariantID, key.VariantID) {
				continue
			}
			if f.Type != nil && m.Type != *f.Type {
				continue
			}
			if f.From != nil && m.CreatedAt.Before(*f.From) {
				continue
			}
			if f.To != nil && m.CreatedAt.After(*f.To) {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Offset, f.Limit), nil
}

func (r *InventoryRepo) LowStockForVendor(ctx context.Context, vendorID id.ID) ([]inventory.StockUnit, error) {
	var out []inventory.StockUnit
	err := r.s.view(ctx, func(st *state) error {
		for _, u := range st.units {
			p, ok := st.products[u.ProductID]
			if !ok || p.VendorID != vendorID || !u.IsLow() {
				continue
			}
			out = append(out, u)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].QuantityAvailable < out[j].QuantityAvailable })
	return out, err
}

// Movements returns every recorded movement in insertion order.
func (r *InventoryRepo) Movements(ctx context.Context) []inventory.Movement {
	var out []inventory.Movement
	_ = r.s.view(ctx, func(st *state) error {
		out = append(out, st.movements...)
		return nil
	})
	return out
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
