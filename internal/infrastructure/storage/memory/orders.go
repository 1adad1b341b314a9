package memory

import (
	"context"
	"sort"
	"time"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/orders"
)

var (
	_ orders.Repository          = (*OrderRepo)(nil)
	_ orders.PaymentContextStore = (*OrderRepo)(nil)
	_ orders.RefundQueue         = (*OrderRepo)(nil)
)

type OrderRepo struct{ s *Store }

func (r *OrderRepo) CreateOrder(ctx context.Context, o *orders.Order) error {
	return r.s.view(ctx, func(st *state) error {
		for _, existing := range st.orders {
			if existing.OrderNumber == o.OrderNumber {
				return apperror.NewDuplicate("order", "order_number", o.OrderNumber)
			}
		}
		st.orders[o.ID] = detachOrder(*o)
		return nil
	})
}

func (r *OrderRepo) CreateItems(ctx context.Context, items []orders.OrderItem) error {
	return r.s.view(ctx, func(st *state) error {
		for _, it := range items {
			if _, ok := st.orders[it.OrderID]; !ok {
				return apperror.NewNotFound("order", it.OrderID)
			}
			st.orderItems[it.ID] = it
			st.itemOrder = append(st.itemOrder, it.ID)
		}
		return nil
	})
}

func (r *OrderRepo) GetOrder(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	var out *orders.Order
	err := r.s.view(ctx, func(st *state) error {
		o, ok := st.orders[orderID]
		if !ok {
			return apperror.NewNotFound("order", orderID)
		}
		o = detachOrder(o)
		o.Items = st.itemsOf(orderID)
		out = &o
		return nil
	})
	return out, err
}

func (r *OrderRepo) GetOrderForUpdate(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	return r.GetOrder(ctx, orderID)
}

func (r *OrderRepo) FindItem(ctx context.Context, itemID id.ID) (*orders.OrderItem, error) {
	var out *orders.OrderItem
	err := r.s.view(ctx, func(st *state) error {
		it, ok := st.orderItems[itemID]
		if !ok {
			return apperror.NewNotFound("order item", itemID)
		}
		out = &it
		return nil
	})
	return out, err
}

func (r *OrderRepo) UpdateOrder(ctx context.Context, o *orders.Order) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.orders[o.ID]; !ok {
			return apperror.NewNotFound("order", o.ID)
		}
		st.orders[o.ID] = detachOrder(*o)
		return nil
	})
}

func (r *OrderRepo) UpdateItem(ctx context.Context, it *orders.OrderItem) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.orderItems[it.ID]; !ok {
			return apperror.NewNotFound("order item", it.ID)
		}
		st.orderItems[it.ID] = *it
		return nil
	})
}

func (r *OrderRepo) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, int, error) {
	var out []orders.Order
	err := r.s.view(ctx, func(st *state) error {
		for _, o := range st.orders {
			if f.UserID != nil && o.UserID != *f.UserID {
				continue
			}
			if f.Status != nil && o.Status != *f.Status {
				continue
			}
			o = detachOrder(o)
			o.Items = st.itemsOf(o.ID)
			out = append(out, o)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, f.Offset, f.Limit), len(out), nil
}

func (st *state) itemsOf(orderID id.ID) []orders.OrderItem {
	var items []orders.OrderItem
	for _, itemID := range st.itemOrder {
		if it := st.orderItems[itemID]; it.OrderID == orderID {
			items = append(items, it)
		}
	}
	return items
}

// detachOrder drops the items and copies the cancellation request so stored
// rows never alias caller memory.
func detachOrder(o orders.Order) orders.Order {
	o.Items = nil
	if o.CancellationRequest != nil {
		cr := *o.CancellationRequest
		o.CancellationRequest = &cr
	}
	return o
}

// Payment contexts

func (r *OrderRepo) CreatePaymentContext(ctx context.Context, pc *orders.PaymentContext) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.payments[pc.Reference]; ok {
			return apperror.NewDuplicate("payment context", "reference", pc.Reference)
		}
		st.payments[pc.Reference] = *pc
		return nil
	})
}

func (r *OrderRepo) GetPaymentContextForUpdate(ctx context.Context, reference string) (*orders.PaymentContext, error) {
	var out *orders.PaymentContext
	err := r.s.view(ctx, func(st *state) error {
		pc, ok := st.payments[reference]
		if !ok {
			return apperror.NewNotFound("payment context", reference)
		}
		out = &pc
		return nil
	})
	return out, err
}

func (r *OrderRepo) PendingPaymentContext(ctx context.Context, orderID id.ID) (*orders.PaymentContext, error) {
	var out *orders.PaymentContext
	err := r.s.view(ctx, func(st *state) error {
		for _, pc := range st.payments {
			if pc.OrderID != orderID || pc.Status != orders.PaymentContextPending {
				continue
			}
			if out == nil || pc.CreatedAt.After(out.CreatedAt) {
				c := pc
				out = &c
			}
		}
		if out == nil {
			return apperror.NewNotFound("payment context", orderID)
		}
		return nil
	})
	return out, err
}

func (r *OrderRepo) UpdatePaymentContext(ctx context.Context, pc *orders.PaymentContext) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.payments[pc.Reference]; !ok {
			return apperror.NewNotFound("payment context", pc.Reference)
		}
		st.payments[pc.Reference] = *pc
		return nil
	})
}

func (r *OrderRepo) DeletePaymentContext(ctx context.Context, reference string) error {
	return r.s.view(ctx, func(st *state) error {
		delete(st.payments, reference)
		return nil
	})
}

func (r *OrderRepo) ListExpiredPaymentContexts(ctx context.Context, now time.Time, limit int) ([]orders.PaymentContext, error) {
	var out []orders.PaymentContext
	err := r.s.view(ctx, func(st *state) error {
		for _, pc := range st.payments {
			if pc.Status == orders.PaymentContextPending && pc.Expired(now) {
				out = append(out, pc)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return page(out, 0, limit), err
}

func (r *OrderRepo) PurgeSettledPaymentContexts(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := r.s.view(ctx, func(st *state) error {
		for ref, pc := range st.payments {
			if pc.Status != orders.PaymentContextPending && pc.UpdatedAt.Before(cutoff) {
				delete(st.payments, ref)
				n++
			}
		}
		return nil
	})
	return n, err
}

// Refund queue

func (r *OrderRepo) EnqueueRefund(ctx context.Context, rr *orders.RefundRequest) error {
	return r.s.view(ctx, func(st *state) error {
		st.refunds[rr.ID] = *rr
		st.refundOrder = append(st.refundOrder, rr.ID)
		return nil
	})
}

func (r *OrderRepo) ClaimPendingRefunds(ctx context.Context, limit int) ([]orders.RefundRequest, error) {
	var out []orders.RefundRequest
	err := r.s.view(ctx, func(st *state) error {
		for _, refundID := range st.refundOrder {
			if rr := st.refunds[refundID]; rr.Status == orders.RefundRequestPending {
				out = append(out, rr)
			}
		}
		return nil
	})
	return page(out, 0, limit), err
}

func (r *OrderRepo) UpdateRefund(ctx context.Context, rr *orders.RefundRequest) error {
	return r.s.view(ctx, func(st *state) error {
		if _, ok := st.refunds[rr.ID]; !ok {
			return apperror.NewNotFound("refund request", rr.ID)
		}
		st.refunds[rr.ID] = *rr
		return nil
	})
}

func (r *OrderRepo) ListRefundsForOrder(ctx context.Context, orderID id.ID) ([]orders.RefundRequest, error) {
	var out []orders.RefundRequest
	err := r.s.view(ctx, func(st *state) error {
		for _, refundID := range st.refundOrder {
			if rr := st.refunds[refundID]; rr.OrderID == orderID {
				out = append(out, rr)
			}
		}
		return nil
	})
	return out, err
}
