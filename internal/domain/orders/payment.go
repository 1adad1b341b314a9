package orders

import (
	"context"
	"fmt"
	"time"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
	"marketplace/pkg/logger"
)

// GatewayStatus is the outcome reported by the payment gateway.
type GatewayStatus string

const (
	GatewayComplete  GatewayStatus = "COMPLETE"
	GatewayFailed    GatewayStatus = "FAILED"
	GatewayCancelled GatewayStatus = "CANCELLED"
)

// PaymentNotification is the gateway webhook payload.
type PaymentNotification struct {
	Reference string
	Status    GatewayStatus
}

// PaymentSession is returned when a customer starts paying.
type PaymentSession struct {
	Reference   string    `json:"reference"`
	RedirectURL string    `json:"redirectUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// InitiatePayment asks the gateway for a redirect for the order's pending payment
// context. A new context is opened when the previous one is gone.
func (s *Service) InitiatePayment(ctx context.Context, orderID id.ID, actor security.Actor) (*PaymentSession, error) {
	var (
		pc    *PaymentContext
		order *Order
	)
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.repo.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !actor.Owns(order.UserID) {
			return apperror.NewForbidden("only the customer can pay for this order")
		}
		if order.PaymentStatus != PaymentPending || order.Status == StatusCancelled {
			return apperror.NewInvalidTransition("order payment", string(order.PaymentStatus), string(PaymentPaid)).
				WithDetail("order_number", order.OrderNumber)
		}

		pc, err = s.payments.PendingPaymentContext(ctx, orderID)
		if err == nil && !pc.Expired(s.now()) {
			return nil
		}
		if err != nil && !apperror.IsNotFound(err) {
			return fmt.Errorf("find payment context: %w", err)
		}

		// missing or expired: open a fresh window
		now := s.now().UTC()
		pc = &PaymentContext{
			Reference: id.New().String(),
			OrderID:   order.ID,
			UserID:    order.UserID,
			Amount:    order.TotalAmount,
			Status:    PaymentContextPending,
			ExpiresAt: now.Add(s.paymentTTL),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.payments.CreatePaymentContext(ctx, pc)
	})
	if err != nil {
		return nil, err
	}

	redirect, err := s.gateway.Initiate(ctx, PaymentRequest{
		Reference:   pc.Reference,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      pc.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("initiate payment: %w", err)
	}

	logger.Info(ctx, "payment initiated", "order_id", orderID, "reference", pc.Reference)
	return &PaymentSession{Reference: pc.Reference, RedirectURL: redirect, ExpiresAt: pc.ExpiresAt}, nil
}

// HandlePaymentNotification applies a gateway webhook. Replays of an already
// settled reference succeed without side effects. A capture arriving after the
// order was cancelled or failed is refunded rather than dropped.
func (s *Service) HandlePaymentNotification(ctx context.Context, n PaymentNotification) error {
	ctx, span := tracer.Start(ctx, "orders.HandlePaymentNotification")
	defer span.End()

	switch n.Status {
	case GatewayComplete, GatewayFailed, GatewayCancelled:
	default:
		return apperror.NewValidation("unknown payment status").WithDetail("status", n.Status)
	}
	if n.Reference == "" {
		return apperror.NewValidation("payment reference is required")
	}

	dedupKey := "payment:" + n.Reference + ":" + string(n.Status)
	if s.dedup != nil {
		if seen, err := s.dedup.Seen(ctx, dedupKey); err == nil && seen {
			logger.Debug(ctx, "payment notification replay skipped", "reference", n.Reference)
			return nil
		}
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		pc, err := s.payments.GetPaymentContextForUpdate(ctx, n.Reference)
		if err != nil {
			return err
		}
		switch {
		case n.Status == GatewayComplete && pc.Status != PaymentContextCompleted:
			// A failed context can still be captured late; the money goes back.
			if err := s.settleCapture(ctx, pc); err != nil {
				return err
			}
			pc.Status = PaymentContextCompleted
		case n.Status != GatewayComplete && pc.Status == PaymentContextPending:
			if err := s.failPayment(ctx, pc.OrderID, "payment "+string(n.Status)); err != nil {
				return err
			}
			pc.Status = PaymentContextFailed
		default:
			return nil
		}
		pc.UpdatedAt = s.now().UTC()
		return s.payments.UpdatePaymentContext(ctx, pc)
	})
	if err != nil {
		return err
	}

	if s.dedup != nil {
		if err := s.dedup.Mark(ctx, dedupKey); err != nil {
			logger.Warn(ctx, "mark payment notification failed", "reference", n.Reference, "error", err)
		}
	}
	return nil
}

// failPayment cancels an unpaid order and releases its reservations.
func (s *Service) failPayment(ctx context.Context, orderID id.ID, reason string) error {
	order, err := s.repo.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentStatus != PaymentPending {
		return nil
	}

	from := order.Status
	if err := s.cancelItems(ctx, order, security.System, reason, func(*OrderItem) bool { return true }); err != nil {
		return err
	}
	order.PaymentStatus = PaymentFailed
	order.Status = DeriveStatus(order.ItemStatuses())
	order.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateOrder(ctx, order); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return s.recordOrderStatus(ctx, order, from, security.System)
}

// closePayment fails an unpaid order left without active lines together with
// every pending payment context it has.
func (s *Service) closePayment(ctx context.Context, order *Order) error {
	order.PaymentStatus = PaymentFailed
	now := s.now().UTC()
	for {
		pc, err := s.payments.PendingPaymentContext(ctx, order.ID)
		if apperror.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find payment context: %w", err)
		}
		pc.Status = PaymentContextFailed
		pc.UpdatedAt = now
		if err := s.payments.UpdatePaymentContext(ctx, pc); err != nil {
			return fmt.Errorf("close payment context: %w", err)
		}
	}
}

// ReapExpiredPayments cancels orders whose payment window closed unpaid and
// purges settled contexts older than the payment TTL. Returns the number of expired contexts.
func (s *Service) ReapExpiredPayments(ctx context.Context, limit int) (int, error) {
	now := s.now().UTC()
	expired, err := s.payments.ListExpiredPaymentContexts(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list expired payment contexts: %w", err)
	}

	reaped := 0
	for _, candidate := range expired {
		err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			pc, err := s.payments.GetPaymentContextForUpdate(ctx, candidate.Reference)
			if apperror.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			if pc.Status != PaymentContextPending || !pc.Expired(now) {
				return nil
			}

			// A newer pending context keeps the order alive.
			latest, err := s.payments.PendingPaymentContext(ctx, pc.OrderID)
			if err == nil && latest.Reference != pc.Reference && !latest.Expired(now) {
				return s.payments.DeletePaymentContext(ctx, pc.Reference)
			}

			if err := s.failPayment(ctx, pc.OrderID, "payment window expired"); err != nil {
				return err
			}
			return s.payments.DeletePaymentContext(ctx, pc.Reference)
		})
		if err != nil {
			logger.Error(ctx, "reap payment context failed", "reference", candidate.Reference, "error", err)
			continue
		}
		reaped++
	}

	purged, err := s.payments.PurgeSettledPaymentContexts(ctx, now.Add(-s.paymentTTL))
	if err != nil {
		return reaped, fmt.Errorf("purge payment contexts: %w", err)
	}
	if reaped > 0 || purged > 0 {
		logger.Info(ctx, "payment contexts reaped", "expired", reaped, "purged", purged)
	}
	return reaped, nil
}
