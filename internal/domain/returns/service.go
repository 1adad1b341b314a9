package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/numerator"
	"marketplace/internal/core/outbox"
	"marketplace/internal/core/security"
	"marketplace/internal/core/tx"
	"marketplace/internal/core/types"
	"marketplace/internal/domain/audit"
	"marketplace/internal/domain/catalog"
	"marketplace/internal/domain/inventory"
	"marketplace/internal/domain/orders"
	"marketplace/pkg/logger"
)

var tracer = otel.Tracer("marketplace/returns")

const (
	entityReturn     = "return"
	entityReturnItem = "return_item"
	numberPrefix     = "RET"
)

// Deps wires the return workflow.
type Deps struct {
	Returns   Repository
	Orders    OrderStore
	Workflow  OrderWorkflow
	Restocker Restocker
	Catalog   catalog.Reader
	Numerator numerator.Generator
	TxManager tx.Manager
	Outbox    outbox.Publisher
	Audit     audit.Recorder
}

// Service is the return workflow.
type Service struct {
	repo      Repository
	orders    OrderStore
	workflow  OrderWorkflow
	restocker Restocker
	catalog   catalog.Reader
	numerator numerator.Generator
	txManager tx.Manager
	outbox    outbox.Publisher
	audit     audit.Recorder
	now       func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		repo:      d.Returns,
		orders:    d.Orders,
		workflow:  d.Workflow,
		restocker: d.Restocker,
		catalog:   d.Catalog,
		numerator: d.Numerator,
		txManager: d.TxManager,
		outbox:    d.Outbox,
		audit:     d.Audit,
		now:       time.Now,
	}
}

// ItemRequest is one line the customer wants to send back.
type ItemRequest struct {
	OrderItemID id.ID
	Quantity    int
	Reason      string
}

// CreateInput is the return request payload.
type CreateInput struct {
	OrderID id.ID
	Reason  string
	Items   []ItemRequest
}

// StatusUpdate moves a return or one of its items. Reason is required for rejections.
type StatusUpdate struct {
	Status Status
	Reason string
}

// CreateReturn opens a return for lines of a delivered order owned by userID.
func (s *Service) CreateReturn(ctx context.Context, userID id.ID, in CreateInput) (*Return, error) {
	ctx, span := tracer.Start(ctx, "returns.CreateReturn")
	defer span.End()

	if err := validateCreate(in); err != nil {
		return nil, err
	}
	actor := security.Actor{ID: userID, Role: security.RoleCustomer}

	var ret *Return
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetOrderForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return apperror.NewForbidden("only the customer can return items of this order").WithDetail("order_id", order.ID)
		}
		if order.Status != orders.StatusDelivered {
			return apperror.NewInvalidTransition("order", string(order.Status), string(orders.StatusReturnInProgress)).
				WithDetail("order_number", order.OrderNumber)
		}

		now := s.now().UTC()
		ret = &Return{
			ID:           id.New(),
			OrderID:      order.ID,
			UserID:       userID,
			Reason:       strings.TrimSpace(in.Reason),
			Status:       StatusRequested,
			RefundAmount: types.Zero(),
			RefundStatus: RefundNone,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		for _, req := range in.Items {
			oi, ok := order.Item(req.OrderItemID)
			if !ok {
				return apperror.NewNotFound("order item", req.OrderItemID).WithDetail("order_id", order.ID)
			}
			if oi.Status != orders.ItemDelivered {
				return apperror.NewInvalidTransition("order item", string(oi.Status), string(orders.ItemReturnRequested)).
					WithDetail("order_item_id", oi.ID)
			}
			if req.Quantity > oi.Quantity {
				return apperror.NewValidation("return quantity exceeds ordered quantity").
					WithDetail("order_item_id", oi.ID).
					WithDetail("ordered", oi.Quantity).
					WithDetail("requested", req.Quantity)
			}
			busy, err := s.repo.HasActiveReturnForItem(ctx, oi.ID)
			if err != nil {
				return fmt.Errorf("check active return: %w", err)
			}
			if busy {
				return apperror.NewConflict("order item already has an active return").WithDetail("order_item_id", oi.ID)
			}

			reason := strings.TrimSpace(req.Reason)
			if reason == "" {
				reason = ret.Reason
			}
			ret.Items = append(ret.Items, ReturnItem{
				ID:          id.New(),
				ReturnID:    ret.ID,
				OrderItemID: oi.ID,
				Quantity:    req.Quantity,
				Reason:      reason,
				Status:      ItemRequested,
				CreatedAt:   now,
				UpdatedAt:   now,
			})

			oi.Status = orders.ItemReturnRequested
			oi.UpdatedAt = now
			if err := s.orders.UpdateItem(ctx, oi); err != nil {
				return fmt.Errorf("update order item: %w", err)
			}
		}

		ret.ReturnNumber, err = s.numerator.Next(ctx, numerator.DefaultConfig(numberPrefix), now)
		if err != nil {
			return fmt.Errorf("return number: %w", err)
		}
		if err := s.repo.CreateReturn(ctx, ret); err != nil {
			return fmt.Errorf("create return: %w", err)
		}
		if err := s.workflow.RecomputeOrder(ctx, order, actor); err != nil {
			return err
		}

		if err := s.publish(ctx, ret, outbox.EventReturnCreated, map[string]any{"items": len(ret.Items)}); err != nil {
			return err
		}
		entry := audit.NewEntry(entityReturn, ret.ID, audit.ActionCreate, actor).WithChange("status", nil, ret.Status)
		return s.record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "return requested", "return_id", ret.ID, "return_number", ret.ReturnNumber, "order_id", ret.OrderID)
	return ret, nil
}

func validateCreate(in CreateInput) error {
	if len(in.Items) == 0 {
		return apperror.NewValidation("at least one item is required")
	}
	if strings.TrimSpace(in.Reason) == "" {
		for _, it := range in.Items {
			if strings.TrimSpace(it.Reason) == "" {
				return apperror.NewValidation("a return reason is required").WithDetail("order_item_id", it.OrderItemID)
			}
		}
	}
	seen := make(map[id.ID]struct{}, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity < 1 {
			return apperror.NewValidation("return quantity must be at least 1").
				WithDetail("order_item_id", it.OrderItemID).WithDetail("quantity", it.Quantity)
		}
		if _, dup := seen[it.OrderItemID]; dup {
			return apperror.NewValidation("order item listed twice").WithDetail("order_item_id", it.OrderItemID)
		}
		seen[it.OrderItemID] = struct{}{}
	}
	return nil
}

// ReviewReturn approves or rejects a requested return as a whole.
func (s *Service) ReviewReturn(ctx context.Context, returnID id.ID, decision Decision, reviewer security.Actor, reason string) (*Return, error) {
	ctx, span := tracer.Start(ctx, "returns.ReviewReturn")
	defer span.End()

	to, err := decisionStatus(decision, reason)
	if err != nil {
		return nil, err
	}

	var ret *Return
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		locked, order, err := s.lock(ctx, returnID)
		if err != nil {
			return err
		}
		ret = locked
		if ret.Status != StatusRequested {
			return apperror.NewInvalidTransition(entityReturn, string(ret.Status), string(to)).
				WithDetail("return_number", ret.ReturnNumber)
		}
		if err := authorizeStaff(reviewer, order, ret.Items...); err != nil {
			return err
		}
		return s.review(ctx, order, ret, to, reviewer, reason)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "return reviewed", "return_id", ret.ID, "decision", decision, "refund_amount", ret.RefundAmount.String())
	return ret, nil
}

func decisionStatus(d Decision, reason string) (Status, error) {
	switch d {
	case DecisionApproved:
		return StatusApproved, nil
	case DecisionRejected:
		if strings.TrimSpace(reason) == "" {
			return "", apperror.NewValidation("rejection reason is required")
		}
		return StatusRejected, nil
	}
	return "", apperror.NewInvalidReview(string(d))
}

// review applies an approve/reject decision to every requested item and the return.
func (s *Service) review(ctx context.Context, order *orders.Order, ret *Return, to Status, reviewer security.Actor, reason string) error {
	now := s.now().UTC()
	for i := range ret.Items {
		it := &ret.Items[i]
		if it.Status != ItemRequested {
			continue
		}
		if err := s.applyItem(ctx, order, ret, it, ItemStatus(to), reviewer, reason); err != nil {
			return err
		}
	}
	ret.ReviewedBy = id.Ptr(reviewer.ID)
	ret.ReviewedAt = &now
	if to == StatusRejected {
		ret.RejectionReason = strings.TrimSpace(reason)
	}
	return s.moveReturn(ctx, order, ret, to, reviewer)
}

// UpdateReturnStatus moves a return along its table, cascading to its active items.
// Customers may only report their parcel as in transit.
func (s *Service) UpdateReturnStatus(ctx context.Context, returnID id.ID, in StatusUpdate, actor security.Actor) (*Return, error) {
	ctx, span := tracer.Start(ctx, "returns.UpdateReturnStatus")
	defer span.End()

	if !in.Status.Valid() {
		return nil, apperror.NewValidation("unknown return status").WithDetail("status", in.Status)
	}
	switch in.Status {
	case StatusApproved:
		return s.ReviewReturn(ctx, returnID, DecisionApproved, actor, in.Reason)
	case StatusRejected:
		return s.ReviewReturn(ctx, returnID, DecisionRejected, actor, in.Reason)
	}

	var ret *Return
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var (
			order *orders.Order
			err   error
		)
		ret, order, err = s.lock(ctx, returnID)
		if err != nil {
			return err
		}
		if !TransitionAllowed(ret.Status, in.Status) {
			return apperror.NewInvalidTransition(entityReturn, string(ret.Status), string(in.Status)).
				WithDetail("return_number", ret.ReturnNumber)
		}
		if err := authorizeMove(actor, ret, order, in.Status, ret.Items...); err != nil {
			return err
		}

		to := ItemStatus(in.Status)
		for i := range ret.Items {
			it := &ret.Items[i]
			if !ItemTransitionAllowed(it.Status, to) {
				continue
			}
			if err := s.applyItem(ctx, order, ret, it, to, actor, in.Reason); err != nil {
				return err
			}
		}
		return s.moveReturn(ctx, order, ret, in.Status, actor)
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// UpdateReturnItemStatus moves a single return line. The return follows once
// all of its active lines agree on a status.
func (s *Service) UpdateReturnItemStatus(ctx context.Context, itemID id.ID, in StatusUpdate, actor security.Actor) (*Return, error) {
	ctx, span := tracer.Start(ctx, "returns.UpdateReturnItemStatus")
	defer span.End()

	to := ItemStatus(in.Status)
	if !to.Valid() {
		return nil, apperror.NewValidation("unknown return item status").WithDetail("status", in.Status)
	}
	if to == ItemRejected && strings.TrimSpace(in.Reason) == "" {
		return nil, apperror.NewValidation("rejection reason is required")
	}

	found, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	var ret *Return
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		locked, order, err := s.lock(ctx, found.ReturnID)
		if err != nil {
			return err
		}
		ret = locked
		it, ok := ret.Item(itemID)
		if !ok {
			return apperror.NewNotFound(entityReturnItem, itemID)
		}
		if !ItemTransitionAllowed(it.Status, to) {
			return apperror.NewInvalidTransition(entityReturnItem, string(it.Status), string(to)).
				WithDetail("return_number", ret.ReturnNumber)
		}
		if err := authorizeMove(actor, ret, order, Status(to), *it); err != nil {
			return err
		}
		if err := s.applyItem(ctx, order, ret, it, to, actor, in.Reason); err != nil {
			return err
		}

		rolled, ok := ret.RollupStatus()
		if ok && rolled != ret.Status && TransitionAllowed(ret.Status, rolled) {
			if rolled == StatusApproved || rolled == StatusRejected {
				now := s.now().UTC()
				ret.ReviewedBy = id.Ptr(actor.ID)
				ret.ReviewedAt = &now
				if rolled == StatusRejected {
					ret.RejectionReason = strings.TrimSpace(in.Reason)
				}
			}
			return s.moveReturn(ctx, order, ret, rolled, actor)
		}
		ret.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateReturn(ctx, ret); err != nil {
			return fmt.Errorf("update return: %w", err)
		}
		return s.workflow.RecomputeOrder(ctx, order, actor)
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// CancelReturn withdraws a return before a refund is underway. Lines already
// received are taken back out of stock, since the goods stay with the customer.
func (s *Service) CancelReturn(ctx context.Context, returnID id.ID, userID id.ID) (*Return, error) {
	ctx, span := tracer.Start(ctx, "returns.CancelReturn")
	defer span.End()

	actor := security.Actor{ID: userID, Role: security.RoleCustomer}
	var ret *Return
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var (
			order *orders.Order
			err   error
		)
		ret, order, err = s.lock(ctx, returnID)
		if err != nil {
			return err
		}
		if ret.UserID != userID {
			return apperror.NewForbidden("only the requester can cancel this return").WithDetail("return_id", ret.ID)
		}
		if !TransitionAllowed(ret.Status, StatusCancelled) {
			return apperror.NewInvalidTransition(entityReturn, string(ret.Status), string(StatusCancelled)).
				WithDetail("return_number", ret.ReturnNumber)
		}

		for i := range ret.Items {
			it := &ret.Items[i]
			if !it.Status.Active() {
				continue
			}
			if err := s.applyItem(ctx, order, ret, it, ItemCancelled, actor, ""); err != nil {
				return err
			}
		}
		return s.moveReturn(ctx, order, ret, StatusCancelled, actor)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "return cancelled", "return_id", ret.ID)
	return ret, nil
}

// GetReturn returns a return visible to actor.
func (s *Service) GetReturn(ctx context.Context, returnID id.ID, actor security.Actor) (*Return, error) {
	ret, err := s.repo.GetReturn(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || actor.Owns(ret.UserID) {
		return ret, nil
	}
	order, err := s.orders.GetOrder(ctx, ret.OrderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeStaff(actor, order, ret.Items...); err != nil {
		return nil, apperror.NewForbidden("return is not visible to this user").WithDetail("return_id", returnID)
	}
	return ret, nil
}

// ListReturnsForOrder lists the returns of an order visible to actor.
func (s *Service) ListReturnsForOrder(ctx context.Context, orderID id.ID, actor security.Actor) ([]Return, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Owns(order.UserID) && !(actor.IsVendor() && order.HasVendor(actor.ID)) {
		return nil, apperror.NewForbidden("order is not visible to this user").WithDetail("order_id", orderID)
	}
	return s.repo.ListByOrder(ctx, orderID)
}

// lock row-locks a return and then its order, in that order.
func (s *Service) lock(ctx context.Context, returnID id.ID) (*Return, *orders.Order, error) {
	ret, err := s.repo.GetReturnForUpdate(ctx, returnID)
	if err != nil {
		return nil, nil, err
	}
	order, err := s.orders.GetOrderForUpdate(ctx, ret.OrderID)
	if err != nil {
		return nil, nil, fmt.Errorf("load order of return %s: %w", ret.ReturnNumber, err)
	}
	return ret, order, nil
}

// applyItem moves one return line and mirrors it on the order line.
func (s *Service) applyItem(ctx context.Context, order *orders.Order, ret *Return, it *ReturnItem, to ItemStatus, actor security.Actor, reason string) error {
	oi, ok := order.Item(it.OrderItemID)
	if !ok {
		return apperror.NewNotFound("order item", it.OrderItemID).WithDetail("return_id", ret.ID)
	}

	now := s.now().UTC()
	from := it.Status
	it.Status = to
	it.UpdatedAt = now

	var mirror orders.ItemStatus
	switch to {
	case ItemApproved:
		it.ReviewedBy = id.Ptr(actor.ID)
		it.ReviewedAt = &now
		mirror = orders.ItemReturnApproved
	case ItemRejected:
		it.ReviewedBy = id.Ptr(actor.ID)
		it.ReviewedAt = &now
		it.RejectionReason = strings.TrimSpace(reason)
		mirror = orders.ItemReturnRejected
	case ItemInTransit:
		mirror = orders.ItemReturnInTransit
	case ItemReceived:
		mirror = orders.ItemReturnReceived
		if err := s.restock(ctx, ret, it, oi); err != nil {
			return err
		}
	case ItemRefunded:
		mirror = orders.ItemRefunded
	case ItemCancelled:
		mirror = orders.ItemDelivered
		if err := s.unstock(ctx, ret, it, oi); err != nil {
			return err
		}
	}

	if mirror != "" && oi.Status != mirror {
		oi.Status = mirror
		oi.UpdatedAt = now
		if err := s.orders.UpdateItem(ctx, oi); err != nil {
			return fmt.Errorf("update order item: %w", err)
		}
	}
	if err := s.repo.UpdateItem(ctx, it); err != nil {
		return fmt.Errorf("update return item: %w", err)
	}

	entry := audit.NewEntry(entityReturnItem, it.ID, audit.ActionStatusChange, actor).WithChange("status", from, to)
	return s.record(ctx, entry)
}

// restock puts received goods back once per return line.
func (s *Service) restock(ctx context.Context, ret *Return, it *ReturnItem, oi *orders.OrderItem) error {
	if it.RestockedAt != nil {
		return nil
	}
	key, err := inventory.ResolveKey(ctx, s.catalog, oi.ProductID, oi.VariantID)
	if err != nil {
		return err
	}
	ref := inventory.Reference{ID: it.ID.String(), Type: inventory.RefReturn, Reason: "return " + ret.ReturnNumber + " received"}
	if err := s.restocker.Refund(ctx, key, it.Quantity, ref); err != nil {
		return fmt.Errorf("restock %s: %w", oi.ProductTitle, err)
	}
	now := s.now().UTC()
	it.RestockedAt = &now
	return nil
}

// unstock reverses the restock of a received line whose return is withdrawn.
func (s *Service) unstock(ctx context.Context, ret *Return, it *ReturnItem, oi *orders.OrderItem) error {
	if it.RestockedAt == nil {
		return nil
	}
	key, err := inventory.ResolveKey(ctx, s.catalog, oi.ProductID, oi.VariantID)
	if err != nil {
		return err
	}
	ref := inventory.Reference{ID: it.ID.String(), Type: inventory.RefReturn, Reason: "return " + ret.ReturnNumber + " cancelled after receipt"}
	if _, err := s.restocker.Adjust(ctx, key, -it.Quantity, ref); err != nil {
		return fmt.Errorf("unstock %s: %w", oi.ProductTitle, err)
	}
	it.RestockedAt = nil
	return nil
}

// moveReturn sets the return status, applies its side effects and
// re-derives the order.
func (s *Service) moveReturn(ctx context.Context, order *orders.Order, ret *Return, to Status, actor security.Actor) error {
	from := ret.Status
	ret.Status = to
	ret.UpdatedAt = s.now().UTC()

	switch to {
	case StatusApproved:
		ret.RefundAmount = refundAmount(order, ret)
		ret.RefundStatus = RefundPending
	case StatusRefundPending:
		if ret.RefundAmount.IsPositive() {
			err := s.workflow.EnqueueRefund(ctx, &orders.RefundRequest{
				OrderID:  order.ID,
				ReturnID: id.Ptr(ret.ID),
				Amount:   ret.RefundAmount,
				Kind:     orders.RefundReturn,
			})
			if err != nil {
				return err
			}
		}
	case StatusRefunded:
		ret.RefundStatus = RefundCompleted
		if order.PaymentStatus == orders.PaymentPaid && allItemsRefunded(ret) {
			order.PaymentStatus = orders.PaymentRefunded
		}
	case StatusRejected, StatusCancelled:
		ret.RefundStatus = RefundNone
	}

	if err := s.repo.UpdateReturn(ctx, ret); err != nil {
		return fmt.Errorf("update return: %w", err)
	}
	if err := s.workflow.RecomputeOrder(ctx, order, actor); err != nil {
		return err
	}

	eventType := outbox.EventReturnStatusChanged
	action := audit.ActionStatusChange
	switch to {
	case StatusApproved, StatusRejected:
		eventType, action = outbox.EventReturnReviewed, audit.ActionReview
	case StatusCancelled:
		action = audit.ActionCancel
	}
	if err := s.publish(ctx, ret, eventType, map[string]any{"from": from}); err != nil {
		return err
	}
	entry := audit.NewEntry(entityReturn, ret.ID, action, actor).WithChange("status", from, to)
	if to == StatusApproved {
		entry = entry.WithChange("refundAmount", nil, ret.RefundAmount)
	}
	return s.record(ctx, entry)
}

// refundAmount sums order unit price times returned quantity over approved lines.
func refundAmount(order *orders.Order, ret *Return) types.Money {
	total := types.Zero()
	for _, it := range ret.Items {
		if it.Status != ItemApproved {
			continue
		}
		oi, ok := order.Item(it.OrderItemID)
		if !ok {
			continue
		}
		total = total.Add(types.LineTotal(oi.UnitPrice, it.Quantity))
	}
	return total
}

func allItemsRefunded(ret *Return) bool {
	for _, it := range ret.Items {
		if it.Status != ItemRefunded {
			return false
		}
	}
	return len(ret.Items) > 0
}

// authorizeStaff allows admins and vendors selling every given line.
func authorizeStaff(actor security.Actor, order *orders.Order, items ...ReturnItem) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsVendor() {
		return apperror.NewForbidden("only staff can manage returns")
	}
	for _, it := range items {
		oi, ok := order.Item(it.OrderItemID)
		if !ok || oi.VendorID != actor.ID {
			return apperror.NewForbidden("return line belongs to another vendor").WithDetail("return_item_id", it.ID)
		}
	}
	return nil
}

// authorizeMove lets the requester report shipment; everything else is staff only.
func authorizeMove(actor security.Actor, ret *Return, order *orders.Order, to Status, items ...ReturnItem) error {
	if to == StatusInTransit && actor.Owns(ret.UserID) {
		return nil
	}
	return authorizeStaff(actor, order, items...)
}

func (s *Service) publish(ctx context.Context, ret *Return, eventType string, payload map[string]any) error {
	payload["returnId"] = ret.ID
	payload["returnNumber"] = ret.ReturnNumber
	payload["orderId"] = ret.OrderID
	payload["status"] = ret.Status
	payload["refundAmount"] = ret.RefundAmount
	err := s.outbox.Publish(ctx, outbox.Event{
		AggregateType: entityReturn,
		AggregateID:   ret.ID,
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) error {
	if err := s.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("audit %s: %w", entry.EntityType, err)
	}
	return nil
}
