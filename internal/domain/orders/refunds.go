package orders

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/outbox"
	"marketplace/pkg/logger"
)

// EnqueueRefund queues a refund obligation inside the caller's transaction.
// Used by the return workflow for approved returns.
func (s *Service) EnqueueRefund(ctx context.Context, r *RefundRequest) error {
	return s.enqueueRefund(ctx, r)
}

func (s *Service) enqueueRefund(ctx context.Context, r *RefundRequest) error {
	if !r.Amount.IsPositive() {
		return apperror.NewValidation("refund amount must be positive").WithDetail("amount", r.Amount.String())
	}
	now := s.now().UTC()
	r.ID = id.New()
	r.Status = RefundRequestPending
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := s.refunds.EnqueueRefund(ctx, r); err != nil {
		return fmt.Errorf("enqueue refund: %w", err)
	}

	err := s.outbox.Publish(ctx, outbox.Event{
		AggregateType: entityOrder,
		AggregateID:   r.OrderID,
		EventType:     outbox.EventRefundRequested,
		Payload: map[string]any{
			"refundId": r.ID,
			"orderId":  r.OrderID,
			"amount":   r.Amount,
			"kind":     r.Kind,
		},
	})
	if err != nil {
		return fmt.Errorf("publish refund: %w", err)
	}

	logger.Info(ctx, "refund queued", "order_id", r.OrderID, "kind", r.Kind, "amount", r.Amount.String())
	return nil
}

// ListRefunds returns the refund obligations of an order.
func (s *Service) ListRefunds(ctx context.Context, orderID id.ID) ([]RefundRequest, error) {
	return s.refunds.ListRefundsForOrder(ctx, orderID)
}

// ProcessRefunds submits one batch of pending refund requests to the provider.
// The batch is claimed as SUBMITTING in its own transaction, the provider is
// called outside any transaction, and each outcome is saved separately, so a
// failed save can never put an already submitted request back in the queue.
// Provider failures are retried on later batches up to MaxRefundAttempts, then
// parked as FAILED. The request ID is the provider's idempotency key.
func (s *Service) ProcessRefunds(ctx context.Context, limit int) (int, error) {
	var claimed []RefundRequest
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = s.refunds.ClaimPendingRefunds(ctx, limit)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		for i := range claimed {
			r := &claimed[i]
			r.Status = RefundRequestSubmitting
			r.Attempts++
			r.UpdatedAt = now
			if err := s.refunds.UpdateRefund(ctx, r); err != nil {
				return fmt.Errorf("claim refund %s: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("process refunds: %w", err)
	}

	submitted := 0
	var errs []error
	for i := range claimed {
		r := &claimed[i]
		ref, err := s.provider.Refund(ctx, *r)
		r.UpdatedAt = s.now().UTC()
		if err != nil {
			msg := err.Error()
			r.LastError = &msg
			r.Status = RefundRequestPending
			if r.Attempts >= MaxRefundAttempts {
				r.Status = RefundRequestFailed
			}
			logger.Warn(ctx, "refund submission failed", "refund_id", r.ID, "attempt", r.Attempts, "error", err)
		} else {
			r.Status = RefundRequestSubmitted
			r.ProviderRef = &ref
			r.LastError = nil
			submitted++
		}

		err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			return s.refunds.UpdateRefund(ctx, r)
		})
		if err != nil {
			logger.Error(ctx, "refund outcome not saved, left as submitting",
				"refund_id", r.ID, "outcome", r.Status, "error", err)
			errs = append(errs, fmt.Errorf("save refund %s: %w", r.ID, err))
		}
	}
	if len(errs) > 0 {
		return submitted, fmt.Errorf("process refunds: %w", errors.Join(errs...))
	}
	return submitted, nil
}
