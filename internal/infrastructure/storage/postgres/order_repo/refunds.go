package order_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"marketplace/internal/core/id"
	"marketplace/internal/domain/orders"
	"marketplace/internal/infrastructure/storage/postgres"
)

var refundColumns = postgres.ExtractDBColumns[orders.RefundRequest]()

func (r *OrderRepo) EnqueueRefund(ctx context.Context, rr *orders.RefundRequest) error {
	sql, args, err := postgres.Builder().
		Insert(tableRefunds).
		SetMap(postgres.StructToMap(rr)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("enqueue refund: %w", err)
	}
	return nil
}

// claimQuery locks the oldest PENDING requests; concurrent workers skip them.
func claimQuery(limit int) squirrel.SelectBuilder {
	q := postgres.Builder().
		Select(refundColumns...).
		From(tableRefunds).
		Where(squirrel.Eq{"status": orders.RefundRequestPending}).
		OrderBy("created_at", "id").
		Suffix("FOR UPDATE SKIP LOCKED")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return q
}

func (r *OrderRepo) ClaimPendingRefunds(ctx context.Context, limit int) ([]orders.RefundRequest, error) {
	if r.txm.GetTx(ctx) == nil {
		return nil, fmt.Errorf("claim refunds requires transaction context")
	}
	sql, args, err := claimQuery(limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []orders.RefundRequest
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("claim refunds: %w", err)
	}
	return out, nil
}

func (r *OrderRepo) UpdateRefund(ctx context.Context, rr *orders.RefundRequest) error {
	sql, args, err := postgres.Builder().
		Update(tableRefunds).
		Set("status", rr.Status).
		Set("provider_ref", rr.ProviderRef).
		Set("attempts", rr.Attempts).
		Set("last_error", rr.LastError).
		Set("updated_at", rr.UpdatedAt).
		Where(squirrel.Eq{"id": rr.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	return r.execOne(ctx, sql, args, "refund request", rr.ID)
}

func (r *OrderRepo) ListRefundsForOrder(ctx context.Context, orderID id.ID) ([]orders.RefundRequest, error) {
	sql, args, err := postgres.Builder().
		Select(refundColumns...).
		From(tableRefunds).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []orders.RefundRequest
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	return out, nil
}
