package orders

import (
	"context"
	"fmt"
	"strings"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/outbox"
	"marketplace/internal/core/security"
	"marketplace/internal/core/types"
	"marketplace/internal/domain/audit"
	"marketplace/internal/domain/inventory"
	"marketplace/pkg/logger"
)

// ItemStatusUpdate moves one order line.
type ItemStatusUpdate struct {
	Status ItemStatus
	Reason string
}

// UpdateOrderItemStatus moves a line through its state machine. Only admins and
// the vendor selling the line may act, and only admins may mark it DELIVERED.
// Admins may skip steps of the table, but terminal lines and lines in a return
// stay put, and shipped lines cannot be cancelled or rejected.
func (s *Service) UpdateOrderItemStatus(ctx context.Context, itemID id.ID, in ItemStatusUpdate, actor security.Actor) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.UpdateOrderItemStatus")
	defer span.End()

	if !in.Status.Valid() {
		return nil, apperror.NewValidation("unknown item status").WithDetail("status", in.Status)
	}

	var (
		order *Order
		from  ItemStatus
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		found, err := s.repo.FindItem(ctx, itemID)
		if err != nil {
			return err
		}
		order, err = s.repo.GetOrderForUpdate(ctx, found.OrderID)
		if err != nil {
			return err
		}
		item, ok := order.Item(itemID)
		if !ok {
			return apperror.NewNotFound("order item", itemID)
		}

		if !actor.IsAdmin() && !(actor.IsVendor() && item.VendorID == actor.ID) {
			return apperror.NewForbidden(fmt.Sprintf("cannot update %s on order %s", item.ProductTitle, order.OrderNumber))
		}
		if in.Status == ItemDelivered && !actor.IsAdmin() {
			return apperror.NewForbidden("only admins can mark items delivered")
		}

		from = item.Status
		if from == in.Status {
			return nil
		}
		allowed := ItemTransitionAllowed(from, in.Status) ||
			(actor.IsAdmin() && itemOverridable(from))
		if !in.Status.Active() && !from.Unshipped() {
			allowed = false
		}
		if !allowed {
			return apperror.NewInvalidTransition(entityOrderItem, string(from), string(in.Status)).
				WithDetail("item_id", itemID).WithDetail("order_number", order.OrderNumber)
		}

		oldTotal := order.TotalAmount
		if in.Status.Active() {
			item.Status = in.Status
			item.UpdatedAt = s.now().UTC()
		} else {
			if err := s.removeItem(ctx, order, item, in.Status, in.Reason, actor); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateItem(ctx, item); err != nil {
			return fmt.Errorf("update order item: %w", err)
		}
		if !in.Status.Active() {
			if err := s.settleRemoval(ctx, order, oldTotal, &item.ID); err != nil {
				return err
			}
		}

		if err := s.persistDerived(ctx, order, actor); err != nil {
			return err
		}

		if err := s.publish(ctx, order, outbox.EventOrderItemStatusChanged, map[string]any{
			"itemId":   item.ID,
			"vendorId": item.VendorID,
			"from":     from,
			"to":       in.Status,
		}); err != nil {
			return err
		}
		entry := audit.NewEntry(entityOrderItem, item.ID, audit.ActionStatusChange, actor).
			WithChange("status", from, in.Status)
		if in.Reason != "" {
			entry.Changes["reason"] = in.Reason
		}
		return s.audit.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "order item status changed",
		"item_id", itemID, "order_id", order.ID, "from", from, "to", in.Status, "order_status", order.Status)
	return order, nil
}

// UpdateOrderStatus sets an explicit status (admin only, validated against the
// order table) or, when status is nil, recomputes the status from the lines.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID id.ID, status *Status, actor security.Actor) (*Order, error) {
	ctx, span := tracer.Start(ctx, "orders.UpdateOrderStatus")
	defer span.End()

	if status != nil && !status.Valid() {
		return nil, apperror.NewValidation("unknown order status").WithDetail("status", *status)
	}
	if status != nil && !actor.IsAdmin() {
		return nil, apperror.NewForbidden("only admins can set an order status")
	}

	var order *Order
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.repo.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if status == nil {
			if !canView(order, actor) {
				return apperror.NewForbidden("order is not visible to this user")
			}
			return s.persistDerived(ctx, order, actor)
		}

		from := order.Status
		to := *status
		if from == to {
			return nil
		}
		if !OrderTransitionAllowed(from, to) {
			return apperror.NewInvalidTransition(entityOrder, string(from), string(to)).
				WithDetail("order_number", order.OrderNumber)
		}
		if to == StatusDelivered {
			for _, it := range order.Items {
				if it.Status.Active() && it.Status != ItemDelivered {
					return apperror.NewInvalidTransition(entityOrder, string(from), string(to)).
						WithDetail("order_number", order.OrderNumber).
						WithDetail("undelivered_item", it.ID)
				}
			}
		}
		if to == StatusCancelled {
			if err := s.cancelItems(ctx, order, actor, "cancelled by admin", func(it *OrderItem) bool {
				return ItemTransitionAllowed(it.Status, ItemCancelled)
			}); err != nil {
				return err
			}
		}

		order.Status = to
		order.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return s.recordOrderStatus(ctx, order, from, actor)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// RequestCancellation records the owner's request to cancel an order that has not shipped.
func (s *Service) RequestCancellation(ctx context.Context, orderID id.ID, actor security.Actor, reason string) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.NewValidation("cancellation reason is required")
	}

	var order *Order
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.repo.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !actor.Owns(order.UserID) {
			return apperror.NewForbidden("only the customer can request cancellation")
		}
		switch order.Status {
		case StatusPending, StatusConfirmed, StatusProcessing:
		default:
			return apperror.NewInvalidTransition(entityOrder, string(order.Status), string(StatusCancelled)).
				WithDetail("order_number", order.OrderNumber)
		}
		if order.CancellationRequest != nil && order.CancellationRequest.Status == RequestPending {
			return apperror.NewConflict("a cancellation request is already pending").
				WithDetail("order_number", order.OrderNumber)
		}

		order.CancellationRequest = &CancellationRequest{
			Status:      RequestPending,
			Reason:      reason,
			RequestedAt: s.now().UTC(),
		}
		order.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		entry := audit.NewEntry(entityOrder, order.ID, audit.ActionCancel, actor).
			WithChange("cancellationRequest", nil, RequestPending)
		return s.audit.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ReviewCancellation approves or rejects a pending cancellation request.
// Approval cancels every line that has not shipped yet.
func (s *Service) ReviewCancellation(ctx context.Context, orderID id.ID, approve bool, reviewer security.Actor, rejectionReason string) (*Order, error) {
	if !reviewer.IsAdmin() {
		return nil, apperror.NewForbidden("only admins review cancellations")
	}
	if !approve && strings.TrimSpace(rejectionReason) == "" {
		return nil, apperror.NewValidation("rejection reason is required")
	}

	var order *Order
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.repo.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		req := order.CancellationRequest
		if req == nil || req.Status != RequestPending {
			return apperror.NewInvalidTransition("cancellation request", "NONE", "REVIEWED").
				WithDetail("order_number", order.OrderNumber)
		}

		now := s.now().UTC()
		req.ReviewedBy = id.Ptr(reviewer.ID)
		req.ReviewedAt = &now
		from := order.Status
		if approve {
			req.Status = RequestApproved
			if err := s.cancelItems(ctx, order, reviewer, "cancellation approved: "+req.Reason, func(it *OrderItem) bool {
				return ItemTransitionAllowed(it.Status, ItemCancelled)
			}); err != nil {
				return err
			}
			order.Status = DeriveStatus(order.ItemStatuses())
		} else {
			req.Status = RequestRejected
			req.RejectionReason = rejectionReason
		}

		order.UpdatedAt = now
		if err := s.repo.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if from != order.Status {
			if err := s.recordOrderStatus(ctx, order, from, reviewer); err != nil {
				return err
			}
		}
		entry := audit.NewEntry(entityOrder, order.ID, audit.ActionReview, reviewer).
			WithChange("cancellationRequest", RequestPending, req.Status)
		return s.audit.Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "cancellation reviewed", "order_id", orderID, "approved", approve, "status", order.Status)
	return order, nil
}

// cancelItems cancels every active line matching pick and settles refunds once.
func (s *Service) cancelItems(ctx context.Context, order *Order, actor security.Actor, reason string, pick func(*OrderItem) bool) error {
	oldTotal := order.TotalAmount
	changed := false
	for i := range order.Items {
		it := &order.Items[i]
		if !it.Status.Active() || !pick(it) {
			continue
		}
		from := it.Status
		if err := s.removeItem(ctx, order, it, ItemCancelled, reason, actor); err != nil {
			return err
		}
		if err := s.repo.UpdateItem(ctx, it); err != nil {
			return fmt.Errorf("update order item: %w", err)
		}
		entry := audit.NewEntry(entityOrderItem, it.ID, audit.ActionCancel, actor).
			WithChange("status", from, ItemCancelled)
		if err := s.audit.Record(ctx, entry); err != nil {
			return fmt.Errorf("audit item cancel: %w", err)
		}
		changed = true
	}
	if !changed {
		return nil
	}
	if err := s.settleRemoval(ctx, order, oldTotal, nil); err != nil {
		return err
	}
	return s.publish(ctx, order, outbox.EventOrderCancelled, map[string]any{"reason": reason})
}

// removeItem takes a line out of the active set: stamps the rejection and returns
// its stock. Stock is refunded when the order was paid (already deducted), else
// released. Paid goods that already left the warehouse are not restocked here.
func (s *Service) removeItem(ctx context.Context, order *Order, it *OrderItem, to ItemStatus, reason string, actor security.Actor) error {
	now := s.now().UTC()
	from := it.Status
	it.Status = to
	it.UpdatedAt = now
	it.Rejection = &Rejection{Reason: reason, RejectedAt: now}
	if !id.IsNil(actor.ID) {
		it.Rejection.RejectedBy = id.Ptr(actor.ID)
	}

	if order.PaymentStatus == PaymentPaid {
		if !from.Unshipped() {
			return nil
		}
		key, err := inventory.ResolveKey(ctx, s.catalog, it.ProductID, it.VariantID)
		if err != nil {
			return err
		}
		ref := inventory.Reference{ID: it.ID.String(), Type: inventory.RefOrderItem, Reason: strings.ToLower(string(to)) + " item returned to stock"}
		if err := s.ledger.Refund(ctx, key, it.Quantity, ref); err != nil {
			return fmt.Errorf("restock %s: %w", it.ProductTitle, err)
		}
		return nil
	}

	key := inventory.ProductKey(it.ProductID)
	if it.VariantID != nil {
		key = inventory.VariantKey(it.ProductID, *it.VariantID)
	}
	if err := s.ledger.Release(ctx, key, it.Quantity); err != nil {
		return fmt.Errorf("release %s: %w", it.ProductTitle, err)
	}
	return nil
}

// settleRemoval recomputes the total and, for paid orders, queues the refund of
// the difference. When no active line remains the order is fully refunded, or,
// when unpaid, its payment window is closed.
func (s *Service) settleRemoval(ctx context.Context, order *Order, oldTotal types.Money, itemID *id.ID) error {
	order.RecalculateTotal()
	switch order.PaymentStatus {
	case PaymentPending:
		if order.HasActiveItems() {
			return nil
		}
		return s.closePayment(ctx, order)
	case PaymentPaid:
	default:
		return nil
	}

	kind := RefundPartial
	if !order.HasActiveItems() {
		kind = RefundFull
		order.PaymentStatus = PaymentRefunded
	}
	amount := oldTotal.Sub(order.TotalAmount)
	if !amount.IsPositive() {
		return nil
	}
	if kind == RefundFull {
		itemID = nil
	}
	return s.enqueueRefund(ctx, &RefundRequest{
		OrderID:     order.ID,
		OrderItemID: itemID,
		Amount:      amount,
		Kind:        kind,
	})
}

// persistDerived recomputes the status from the lines and saves the order.
func (s *Service) persistDerived(ctx context.Context, order *Order, actor security.Actor) error {
	from := order.Status
	order.Status = DeriveStatus(order.ItemStatuses())
	order.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if from == order.Status {
		return nil
	}
	return s.recordOrderStatus(ctx, order, from, actor)
}

func (s *Service) recordOrderStatus(ctx context.Context, order *Order, from Status, actor security.Actor) error {
	if err := s.publish(ctx, order, outbox.EventOrderStatusChanged, map[string]any{
		"orderNumber": order.OrderNumber,
		"from":        from,
	}); err != nil {
		return err
	}
	entry := audit.NewEntry(entityOrder, order.ID, audit.ActionStatusChange, actor).
		WithChange("status", from, order.Status)
	if err := s.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("audit order status: %w", err)
	}
	return nil
}

// RecomputeOrder re-derives and persists the order status inside the caller's
// transaction. The order must already be locked by the caller.
func (s *Service) RecomputeOrder(ctx context.Context, order *Order, actor security.Actor) error {
	return s.persistDerived(ctx, order, actor)
}
