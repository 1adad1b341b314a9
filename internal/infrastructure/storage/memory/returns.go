package memory

import (
	"bytes"
	"context"
	"sort"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/returns"
)

var _ returns.Repository = (*ReturnRepo)(nil)

type ReturnRepo struct{ s *Store }

func (r *ReturnRepo) CreateReturn(ctx context.Context, ret *returns.Return) error {
	return r.s.view(ctx, func(st *state) error {
		for _, existing := range st.returns {
			if existing.ReturnNumber == ret.ReturnNumber {
				return apperror.NewDuplicate("return", "return_number", ret.ReturnNumber)
			}
		}
		row := *ret
		row.Items = nil
		st.returns[ret.ID] = row
		st.returnOrder = append(st.returnOrder, ret.ID)
		for _, it := range ret.Items {
			st.returnItems[it.ID] = it
		}
		return nil
	})
}

func (r *ReturnRepo) GetReturn(ctx context.Context, returnID id.ID) (*returns.Return, error) {
	var out *returns.Return
	err := r.s.view(ctx, func(st *state) error {
		ret, ok := st.returns[returnID]
		if !ok {
			return apperror.NewNotFound("return", returnID)
		}
		ret.Items = st.returnItemsOf(returnID)
		out = &ret
		return nil
	})
	return out, err
}

func (r *ReturnRepo) GetReturnForUpdate(ctx context.Context, returnID id.ID) (*returns.Return, error) {
	return r.GetReturn(ctx, returnID)
}

func (r *ReturnRepo) FindItem(ctx context.Context, itemID id.ID) (*returns.ReturnItem, error) {
	var out *returns.ReturnItem
	err := r.s.view(ctx, func(st *state) error {
		it, ok := st.returnItems[itemID]
		if !ok {
			return apperror.NewNotFound("return item", itemID)
		}
		out = &it
		return nil
	})
	return out, err
}

func (r *ReturnRepo) UpdateReturn(ctx context.Context, ret *returns.Return) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.returns[ret.ID]; !ok {
			return apperror.NewNotFound("return", ret.ID)
		}
		row := *ret
		row.Items = nil
		st.returns[ret.ID] = row
		return nil
	})
}

func (r *ReturnRepo) UpdateItem(ctx context.Context, it *returns.ReturnItem) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.returnItems[it.ID]; !ok {
			return apperror.NewNotFound("return item", it.ID)
		}
		st.returnItems[it.ID] = *it
		return nil
	})
}

func (r *ReturnRepo) HasActiveReturnForItem(ctx context.Context, orderItemID id.ID) (bool, error) {
	found := false
	err := r.s.view(ctx, func(st *state) error {
		for _, it := range st.returnItems {
			if it.OrderItemID != orderItemID {
				continue
			}
			ret := st.returns[it.ReturnID]
			if ret.Active() && it.Status.Active() {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *ReturnRepo) ListByOrder(ctx context.Context, orderID id.ID) ([]returns.Return, error) {
	var out []returns.Return
	err := r.s.view(ctx, func(st *state) error {
		for _, returnID := range st.returnOrder {
			ret := st.returns[returnID]
			if ret.OrderID != orderID {
				continue
			}
			ret.Items = st.returnItemsOf(returnID)
			out = append(out, ret)
		}
		return nil
	})
	return out, err
}

func (st *state) returnItemsOf(returnID id.ID) []returns.ReturnItem {
	var items []returns.ReturnItem
	for _, it := range st.returnItems {
		if it.ReturnID == returnID {
			items = append(items, it)
		}
	}
	sortByCreated(items)
	return items
}

// sortByCreated orders return lines by creation, breaking ties on the time-ordered id.
func sortByCreated(items []returns.ReturnItem) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return bytes.Compare(items[i].ID[:], items[j].ID[:]) < 0
	})
}
