package order_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/orders"
	"marketplace/internal/infrastructure/storage/postgres"
)

var paymentColumns = postgres.ExtractDBColumns[orders.PaymentContext]()

func (r *OrderRepo) CreatePaymentContext(ctx context.Context, pc *orders.PaymentContext) error {
	sql, args, err := postgres.Builder().
		Insert(tablePayments).
		SetMap(postgres.StructToMap(pc)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return apperror.NewDuplicate("payment context", "reference", pc.Reference)
		}
		return fmt.Errorf("insert payment context: %w", err)
	}
	return nil
}

func (r *OrderRepo) GetPaymentContextForUpdate(ctx context.Context, reference string) (*orders.PaymentContext, error) {
	sql, args, err := postgres.Builder().
		Select(paymentColumns...).
		From(tablePayments).
		Where(squirrel.Eq{"reference": reference}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var pc orders.PaymentContext
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &pc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("payment context", reference)
		}
		return nil, fmt.Errorf("get payment context: %w", err)
	}
	return &pc, nil
}

func (r *OrderRepo) PendingPaymentContext(ctx context.Context, orderID id.ID) (*orders.PaymentContext, error) {
	sql, args, err := postgres.Builder().
		Select(paymentColumns...).
		From(tablePayments).
		Where(squirrel.Eq{"order_id": orderID, "status": orders.PaymentContextPending}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var pc orders.PaymentContext
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &pc, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("payment context", orderID)
		}
		return nil, fmt.Errorf("get pending payment context: %w", err)
	}
	return &pc, nil
}

func (r *OrderRepo) UpdatePaymentContext(ctx context.Context, pc *orders.PaymentContext) error {
	sql, args, err := postgres.Builder().
		Update(tablePayments).
		Set("status", pc.Status).
		Set("expires_at", pc.ExpiresAt).
		Set("updated_at", pc.UpdatedAt).
		Where(squirrel.Eq{"reference": pc.Reference}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	return r.execOne(ctx, sql, args, "payment context", pc.Reference)
}

func (r *OrderRepo) DeletePaymentContext(ctx context.Context, reference string) error {
	sql, args, err := postgres.Builder().
		Delete(tablePayments).
		Where(squirrel.Eq{"reference": reference}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete payment context: %w", err)
	}
	return nil
}

// expiredQuery lists candidates oldest first; each is re-checked under lock.
func expiredQuery(now time.Time, limit int) squirrel.SelectBuilder {
	q := postgres.Builder().
		Select(paymentColumns...).
		From(tablePayments).
		Where(squirrel.Eq{"status": orders.PaymentContextPending}).
		Where(squirrel.LtOrEq{"expires_at": now}).
		OrderBy("expires_at")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func (r *OrderRepo) ListExpiredPaymentContexts(ctx context.Context, now time.Time, limit int) ([]orders.PaymentContext, error) {
	sql, args, err := expiredQuery(now, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []orders.PaymentContext
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list expired payment contexts: %w", err)
	}
	return out, nil
}

func (r *OrderRepo) PurgeSettledPaymentContexts(ctx context.Context, cutoff time.Time) (int64, error) {
	sql, args, err := postgres.Builder().
		Delete(tablePayments).
		Where(squirrel.NotEq{"status": orders.PaymentContextPending}).
		Where(squirrel.Lt{"updated_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("purge payment contexts: %w", err)
	}
	return tag.RowsAffected(), nil
}
