// Package return_repo persists returns and return items in PostgreSQL.
package return_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/returns"
	"marketplace/internal/infrastructure/storage/postgres"
)

const (
	tableReturns = "returns"
	tableItems   = "return_items"
)

var (
	returnColumns = postgres.ExtractDBColumns[returns.Return]()
	itemColumns   = postgres.ExtractDBColumns[returns.ReturnItem]()
)

var _ returns.Repository = (*ReturnRepo)(nil)

type ReturnRepo struct {
	txm *postgres.TxManager
}

func NewReturnRepo(txm *postgres.TxManager) *ReturnRepo {
	return &ReturnRepo{txm: txm}
}

// CreateReturn inserts the header and copies its items in one round trip.
func (r *ReturnRepo) CreateReturn(ctx context.Context, ret *returns.Return) error {
	sql, args, err := postgres.Builder().
		Insert(tableReturns).
		SetMap(postgres.StructToMap(ret)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, "") {
			return apperror.NewDuplicate("return", "return_number", ret.ReturnNumber)
		}
		return fmt.Errorf("insert return: %w", err)
	}

	if _, err := r.txm.CopyRows(ctx, tableItems, itemColumns, postgres.RowValues(ret.Items, itemColumns)); err != nil {
		return err
	}
	return nil
}

func (r *ReturnRepo) GetReturn(ctx context.Context, returnID id.ID) (*returns.Return, error) {
	return r.getReturn(ctx, returnID, false)
}

func (r *ReturnRepo) GetReturnForUpdate(ctx context.Context, returnID id.ID) (*returns.Return, error) {
	return r.getReturn(ctx, returnID, true)
}

func (r *ReturnRepo) getReturn(ctx context.Context, returnID id.ID, forUpdate bool) (*returns.Return, error) {
	q := postgres.Builder().
		Select(returnColumns...).
		From(tableReturns).
		Where(squirrel.Eq{"id": returnID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var ret returns.Return
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &ret, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("return", returnID)
		}
		return nil, fmt.Errorf("get return: %w", err)
	}

	items, err := r.itemsOf(ctx, []id.ID{returnID})
	if err != nil {
		return nil, err
	}
	ret.Items = items[returnID]
	return &ret, nil
}

func (r *ReturnRepo) itemsOf(ctx context.Context, returnIDs []id.ID) (map[id.ID][]returns.ReturnItem, error) {
	out := make(map[id.ID][]returns.ReturnItem, len(returnIDs))
	if len(returnIDs) == 0 {
		return out, nil
	}
	sql, args, err := postgres.Builder().
		Select(itemColumns...).
		From(tableItems).
		Where(squirrel.Eq{"return_id": returnIDs}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var items []returns.ReturnItem
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("list return items: %w", err)
	}
	for _, it := range items {
		out[it.ReturnID] = append(out[it.ReturnID], it)
	}
	return out, nil
}

func (r *ReturnRepo) FindItem(ctx context.Context, itemID id.ID) (*returns.ReturnItem, error) {
	sql, args, err := postgres.Builder().
		Select(itemColumns...).
		From(tableItems).
		Where(squirrel.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var it returns.ReturnItem
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &it, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("return item", itemID)
		}
		return nil, fmt.Errorf("get return item: %w", err)
	}
	return &it, nil
}

func (r *ReturnRepo) UpdateReturn(ctx context.Context, ret *returns.Return) error {
	sql, args, err := postgres.Builder().
		Update(tableReturns).
		Set("status", ret.Status).
		Set("refund_amount", ret.RefundAmount).
		Set("refund_status", ret.RefundStatus).
		Set("reviewed_by", ret.ReviewedBy).
		Set("reviewed_at", ret.ReviewedAt).
		Set("rejection_reason", ret.RejectionReason).
		Set("updated_at", ret.UpdatedAt).
		Where(squirrel.Eq{"id": ret.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	return r.execOne(ctx, sql, args, "return", ret.ID)
}

func (r *ReturnRepo) UpdateItem(ctx context.Context, it *returns.ReturnItem) error {
	sql, args, err := postgres.Builder().
		Update(tableItems).
		Set("status", it.Status).
		Set("reviewed_by", it.ReviewedBy).
		Set("reviewed_at", it.ReviewedAt).
		Set("rejection_reason", it.RejectionReason).
		Set("restocked_at", it.RestockedAt).
		Set("updated_at", it.UpdatedAt).
		Where(squirrel.Eq{"id": it.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	return r.execOne(ctx, sql, args, "return item", it.ID)
}

func (r *ReturnRepo) execOne(ctx context.Context, sql string, args []any, entity string, key any) error {
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", entity, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(entity, key)
	}
	return nil
}

var inactiveReturnStatuses = []string{string(returns.StatusCancelled), string(returns.StatusRejected)}

// activeItemQuery finds a live return line for an order item: neither the
// line nor its return is cancelled or rejected.
func activeItemQuery(orderItemID id.ID) squirrel.SelectBuilder {
	return postgres.Builder().
		Select("1").
		From(tableItems + " ri").
		Join(tableReturns + " r ON r.id = ri.return_id").
		Where(squirrel.Eq{"ri.order_item_id": orderItemID}).
		Where(squirrel.NotEq{"ri.status": inactiveReturnStatuses}).
		Where(squirrel.NotEq{"r.status": inactiveReturnStatuses}).
		Limit(1)
}

func (r *ReturnRepo) HasActiveReturnForItem(ctx context.Context, orderItemID id.ID) (bool, error) {
	inner, args, err := activeItemQuery(orderItemID).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	var exists bool
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, "SELECT EXISTS ("+inner+")", args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active return: %w", err)
	}
	return exists, nil
}

func (r *ReturnRepo) ListByOrder(ctx context.Context, orderID id.ID) ([]returns.Return, error) {
	sql, args, err := postgres.Builder().
		Select(returnColumns...).
		From(tableReturns).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []returns.Return
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list returns: %w", err)
	}

	ids := make([]id.ID, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	items, err := r.itemsOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}
