package orders

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/outbox"
	"marketplace/internal/core/security"
	"marketplace/internal/core/tx"
	"marketplace/internal/core/types"
	"marketplace/internal/domain/audit"
	"marketplace/internal/domain/cart"
	"marketplace/internal/domain/catalog"
	"marketplace/internal/domain/inventory"
	"marketplace/pkg/logger"
)

var tracer = otel.Tracer("marketplace/orders")

const (
	entityOrder     = "order"
	entityOrderItem = "order_item"

	orderNumberAttempts = 3
	defaultPaymentTTL   = 24 * time.Hour
)

// Deps wires the order workflow. Deduper is optional.
type Deps struct {
	Orders         Repository
	Payments       PaymentContextStore
	Refunds        RefundQueue
	Carts          cart.Store
	Catalog        catalog.Reader
	Ledger         InventoryLedger
	TxManager      tx.Manager
	Outbox         outbox.Publisher
	Audit          audit.Recorder
	Gateway        Gateway
	RefundProvider RefundProvider
	Deduper        Deduper
	PaymentTTL     time.Duration
}

// Service is the order workflow.
type Service struct {
	repo       Repository
	payments   PaymentContextStore
	refunds    RefundQueue
	carts      cart.Store
	catalog    catalog.Reader
	ledger     InventoryLedger
	txManager  tx.Manager
	outbox     outbox.Publisher
	audit      audit.Recorder
	gateway    Gateway
	provider   RefundProvider
	dedup      Deduper
	paymentTTL time.Duration
	now        func() time.Time
}

// NewService creates the order workflow.
func NewService(d Deps) *Service {
	ttl := d.PaymentTTL
	if ttl <= 0 {
		ttl = defaultPaymentTTL
	}
	return &Service{
		repo:       d.Orders,
		payments:   d.Payments,
		refunds:    d.Refunds,
		carts:      d.Carts,
		catalog:    d.Catalog,
		ledger:     d.Ledger,
		txManager:  d.TxManager,
		outbox:     d.Outbox,
		audit:      d.Audit,
		gateway:    d.Gateway,
		provider:   d.RefundProvider,
		dedup:      d.Deduper,
		paymentTTL: ttl,
		now:        time.Now,
	}
}

// CreateOrderInput is the checkout payload.
type CreateOrderInput struct {
	ShippingAddress Address
}

// Checkout is the result of CreateOrder.
type Checkout struct {
	Order            *Order
	PaymentReference string
	PaymentExpiresAt time.Time
}

// CreateOrder converts the user's cart into an order. Cart read, stock
// reservation, order persistence, payment context and cart clearing commit together.
func (s *Service) CreateOrder(ctx context.Context, userID id.ID, in CreateOrderInput) (*Checkout, error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder")
	defer span.End()

	if err := validateAddress(in.ShippingAddress); err != nil {
		return nil, err
	}

	var result *Checkout
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		c, err := s.carts.GetCartWithItems(ctx, userID)
		if err != nil {
			return fmt.Errorf("get cart: %w", err)
		}
		if c.IsEmpty() {
			return apperror.NewEmptyCart(userID)
		}

		now := s.now().UTC()
		order := &Order{
			ID:              id.New(),
			UserID:          userID,
			Status:          StatusPending,
			PaymentStatus:   PaymentPending,
			TotalAmount:     types.Zero(),
			ShippingAddress: in.ShippingAddress,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.insertWithUniqueNumber(ctx, order); err != nil {
			return err
		}

		items := make([]OrderItem, 0, len(c.Items))
		holds := make([]reservation, 0, len(c.Items))
		for i, line := range c.Items {
			item, err := s.priceLine(ctx, order, line)
			if err != nil {
				return err
			}
			key := inventory.ProductKey(line.ProductID)
			if line.VariantID != nil {
				key = inventory.VariantKey(line.ProductID, *line.VariantID)
			}
			holds = append(holds, reservation{line: i + 1, key: key, qty: line.Quantity})
			items = append(items, *item)
		}
		// Units are locked in key order so concurrent checkouts cannot deadlock.
		slices.SortStableFunc(holds, func(a, b reservation) int { return a.key.Compare(b.key) })
		for _, h := range holds {
			if err := s.ledger.Reserve(ctx, h.key, h.qty); err != nil {
				return fmt.Errorf("reserve line %d: %w", h.line, err)
			}
		}

		if err := s.repo.CreateItems(ctx, items); err != nil {
			return fmt.Errorf("create order items: %w", err)
		}
		order.Items = items
		order.RecalculateTotal()
		if err := s.repo.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("update order total: %w", err)
		}

		pc := &PaymentContext{
			Reference: id.New().String(),
			OrderID:   order.ID,
			UserID:    userID,
			Amount:    order.TotalAmount,
			Status:    PaymentContextPending,
			ExpiresAt: now.Add(s.paymentTTL),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.payments.CreatePaymentContext(ctx, pc); err != nil {
			return fmt.Errorf("create payment context: %w", err)
		}

		if err := s.carts.Clear(ctx, c.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		if err := s.publish(ctx, order, outbox.EventOrderCreated, map[string]any{
			"orderNumber": order.OrderNumber,
			"userId":      order.UserID,
			"totalAmount": order.TotalAmount,
			"items":       len(order.Items),
		}); err != nil {
			return err
		}
		entry := audit.NewEntry(entityOrder, order.ID, audit.ActionCreate, security.Actor{ID: userID, Role: security.RoleCustomer}).
			WithChange("status", nil, order.Status)
		if err := s.audit.Record(ctx, entry); err != nil {
			return fmt.Errorf("audit order create: %w", err)
		}

		result = &Checkout{Order: order, PaymentReference: pc.Reference, PaymentExpiresAt: pc.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "order created",
		"order_id", result.Order.ID,
		"order_number", result.Order.OrderNumber,
		"total", result.Order.TotalAmount.String(),
	)
	return result, nil
}

type reservation struct {
	line int
	key  inventory.Key
	qty  int
}

// insertWithUniqueNumber retries order-number generation on collision.
func (s *Service) insertWithUniqueNumber(ctx context.Context, order *Order) error {
	var lastErr error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := NewOrderNumber(s.now())
		if err != nil {
			return apperror.NewInternal(err)
		}
		order.OrderNumber = number

		err = s.repo.CreateOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !apperror.IsConflict(err) {
			return fmt.Errorf("create order: %w", err)
		}
		lastErr = err
		logger.Warn(ctx, "order number collision, retrying", "order_number", number, "attempt", attempt+1)
	}
	return lastErr
}

// priceLine reloads the catalog entry and snapshots the current price.
func (s *Service) priceLine(ctx context.Context, order *Order, line cart.Item) (*OrderItem, error) {
	if line.Quantity <= 0 {
		return nil, apperror.NewValidation("cart quantity must be positive").
			WithDetail("product_id", line.ProductID).WithDetail("quantity", line.Quantity)
	}

	p, err := s.catalog.FindProductByID(ctx, line.ProductID)
	if apperror.IsNotFound(err) {
		return nil, apperror.NewProductUnavailable(line.ProductID.String(), line.ProductID)
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", line.ProductID, err)
	}
	if !p.IsActive() {
		return nil, apperror.NewProductUnavailable(p.Title, p.ID)
	}

	price := p.UnitPrice()
	title := p.Title
	if line.VariantID != nil {
		v, ok := p.Variant(*line.VariantID)
		if !ok || !v.IsActive() {
			return nil, apperror.NewProductUnavailable(p.Title, p.ID).WithDetail("variant_id", *line.VariantID)
		}
		price = v.UnitPrice()
		if v.Name != "" {
			title = p.Title + " / " + v.Name
		}
	}

	return &OrderItem{
		ID:           id.New(),
		OrderID:      order.ID,
		ProductID:    p.ID,
		VariantID:    line.VariantID,
		VendorID:     p.VendorID,
		ProductTitle: title,
		Quantity:     line.Quantity,
		UnitPrice:    price,
		TotalPrice:   types.LineTotal(price, line.Quantity),
		Status:       ItemPending,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.CreatedAt,
	}, nil
}

// FinalizePayment converts the order's reservations into deductions, taking the
// current order total as the captured amount. Calling it for an already paid
// order is a no-op.
func (s *Service) FinalizePayment(ctx context.Context, orderID id.ID) error {
	ctx, span := tracer.Start(ctx, "orders.FinalizePayment")
	defer span.End()

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus == PaymentPaid {
			return nil
		}
		if order.PaymentStatus != PaymentPending {
			return apperror.NewInvalidTransition("order payment", string(order.PaymentStatus), string(PaymentPaid)).
				WithDetail("order_number", order.OrderNumber)
		}
		return s.capture(ctx, order, order.TotalAmount)
	})
}

// settleCapture applies money captured by the gateway for a payment context.
// A capture for an order that is no longer awaiting payment is refunded in full.
func (s *Service) settleCapture(ctx context.Context, pc *PaymentContext) error {
	order, err := s.repo.GetOrderForUpdate(ctx, pc.OrderID)
	if err != nil {
		return err
	}
	if order.PaymentStatus == PaymentPending {
		return s.capture(ctx, order, pc.Amount)
	}

	logger.Warn(ctx, "payment captured for settled order, refunding",
		"order_id", order.ID, "reference", pc.Reference, "payment_status", order.PaymentStatus)
	if order.PaymentStatus == PaymentFailed {
		order.PaymentStatus = PaymentRefunded
		order.UpdatedAt = s.now().UTC()
		if err := s.repo.UpdateOrder(ctx, order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		entry := audit.NewEntry(entityOrder, order.ID, audit.ActionPayment, security.System).
			WithChange("paymentStatus", PaymentFailed, PaymentRefunded)
		if err := s.audit.Record(ctx, entry); err != nil {
			return fmt.Errorf("audit payment: %w", err)
		}
	}
	if !pc.Amount.IsPositive() {
		return nil
	}
	return s.enqueueRefund(ctx, &RefundRequest{OrderID: order.ID, Amount: pc.Amount, Kind: RefundFull})
}

// capture deducts the stock of the active lines of a locked, unpaid order and
// marks it paid. Whatever was captured above the current total is queued for
// refund; an order with no active line left is refunded in full.
func (s *Service) capture(ctx context.Context, order *Order, captured types.Money) error {
	for _, it := range order.Items {
		if !it.Status.Active() {
			continue
		}
		key, err := inventory.ResolveKey(ctx, s.catalog, it.ProductID, it.VariantID)
		if err != nil {
			return err
		}
		ref := inventory.Reference{ID: order.ID.String(), Type: inventory.RefOrder, Reason: "order " + order.OrderNumber + " paid"}
		if err := s.ledger.Deduct(ctx, key, it.Quantity, ref); err != nil {
			return fmt.Errorf("deduct %s: %w", it.ProductTitle, err)
		}
	}

	order.PaymentStatus = PaymentPaid
	refund := &RefundRequest{OrderID: order.ID, Kind: RefundPartial, Amount: captured.Sub(order.TotalAmount)}
	if !order.HasActiveItems() {
		order.PaymentStatus = PaymentRefunded
		refund.Kind = RefundFull
		refund.Amount = captured
	}
	order.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if err := s.publish(ctx, order, outbox.EventOrderPaid, map[string]any{
		"orderNumber": order.OrderNumber,
		"totalAmount": order.TotalAmount,
		"captured":    captured,
	}); err != nil {
		return err
	}
	entry := audit.NewEntry(entityOrder, order.ID, audit.ActionPayment, security.System).
		WithChange("paymentStatus", PaymentPending, order.PaymentStatus)
	if err := s.audit.Record(ctx, entry); err != nil {
		return fmt.Errorf("audit payment: %w", err)
	}
	if refund.Amount.IsPositive() {
		if err := s.enqueueRefund(ctx, refund); err != nil {
			return err
		}
	}

	logger.Info(ctx, "order paid, stock deducted",
		"order_id", order.ID, "captured", captured.String(), "total", order.TotalAmount.String())
	return nil
}

// GetOrder returns an order visible to actor: its owner, an admin, or a vendor selling a line.
func (s *Service) GetOrder(ctx context.Context, orderID id.ID, actor security.Actor) (*Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canView(order, actor) {
		return nil, apperror.NewForbidden("order is not visible to this user").WithDetail("order_id", orderID)
	}
	return order, nil
}

// ListOrders returns the actor's orders. Admins may list any user's orders.
func (s *Service) ListOrders(ctx context.Context, actor security.Actor, filter ListFilter) ([]Order, int, error) {
	if !actor.IsAdmin() || filter.UserID == nil {
		filter.UserID = id.Ptr(actor.ID)
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, apperror.NewValidation("unknown order status").WithDetail("status", *filter.Status)
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.repo.ListOrders(ctx, filter)
}

func canView(o *Order, actor security.Actor) bool {
	switch {
	case actor.IsAdmin():
		return true
	case actor.Owns(o.UserID):
		return true
	case actor.IsVendor():
		return o.HasVendor(actor.ID)
	}
	return false
}

func (s *Service) publish(ctx context.Context, o *Order, eventType string, payload map[string]any) error {
	payload["orderId"] = o.ID
	payload["status"] = o.Status
	payload["paymentStatus"] = o.PaymentStatus
	err := s.outbox.Publish(ctx, outbox.Event{
		AggregateType: entityOrder,
		AggregateID:   o.ID,
		EventType:     eventType,
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

func validateAddress(a Address) error {
	missing := []string{}
	if strings.TrimSpace(a.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(a.Line1) == "" {
		missing = append(missing, "line1")
	}
	if strings.TrimSpace(a.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(a.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return apperror.NewValidation("shipping address is incomplete").WithDetail("missing", missing)
	}
	return nil
}

const orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewOrderNumber returns ORD-<base36 millis>-<6 random base36 chars>.
func NewOrderNumber(at time.Time) (string, error) {
	suffix := make([]byte, 6)
	limit := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("order number entropy: %w", err)
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	stamp := strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))
	return "ORD-" + stamp + "-" + string(suffix), nil
}
