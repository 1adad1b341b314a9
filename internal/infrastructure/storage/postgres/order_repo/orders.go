// Package order_repo persists orders, order items, payment contexts and the
// refund queue in PostgreSQL.
package order_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/types"
	"marketplace/internal/domain/orders"
	"marketplace/internal/infrastructure/storage/postgres"
)

const (
	tableOrders     = "orders"
	tableItems      = "order_items"
	tablePayments   = "payment_contexts"
	tableRefunds    = "refund_requests"
	orderNumberUniq = "uq_orders_order_number"
)

var (
	_ orders.Repository          = (*OrderRepo)(nil)
	_ orders.PaymentContextStore = (*OrderRepo)(nil)
	_ orders.RefundQueue         = (*OrderRepo)(nil)
)

// orderRow is an orders row; JSONB columns travel as raw bytes.
type orderRow struct {
	ID                  id.ID                `db:"id"`
	UserID              id.ID                `db:"user_id"`
	OrderNumber         string               `db:"order_number"`
	Status              orders.Status        `db:"status"`
	PaymentStatus       orders.PaymentStatus `db:"payment_status"`
	TotalAmount         types.Money          `db:"total_amount"`
	ShippingAddress     []byte               `db:"shipping_address"`
	CancellationRequest []byte               `db:"cancellation_request"`
	CreatedAt           time.Time            `db:"created_at"`
	UpdatedAt           time.Time            `db:"updated_at"`
}

type itemRow struct {
	ID           id.ID             `db:"id"`
	OrderID      id.ID             `db:"order_id"`
	ProductID    id.ID             `db:"product_id"`
	VariantID    *id.ID            `db:"product_variant_id"`
	VendorID     id.ID             `db:"vendor_id"`
	ProductTitle string            `db:"product_title"`
	Quantity     int               `db:"quantity"`
	UnitPrice    types.Money       `db:"unit_price"`
	TotalPrice   types.Money       `db:"total_price"`
	Status       orders.ItemStatus `db:"status"`
	Rejection    []byte            `db:"rejection"`
	CreatedAt    time.Time         `db:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at"`
}

var (
	orderColumns = postgres.ExtractDBColumns[orderRow]()
	itemColumns  = postgres.ExtractDBColumns[itemRow]()
)

// OrderRepo implements the order repositories over one TxManager.
type OrderRepo struct {
	txm *postgres.TxManager
}

func NewOrderRepo(txm *postgres.TxManager) *OrderRepo {
	return &OrderRepo{txm: txm}
}

func toOrderRow(o *orders.Order) (orderRow, error) {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return orderRow{}, fmt.Errorf("marshal shipping address: %w", err)
	}
	row := orderRow{
		ID:              o.ID,
		UserID:          o.UserID,
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: addr,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.CancellationRequest != nil {
		if row.CancellationRequest, err = json.Marshal(o.CancellationRequest); err != nil {
			return orderRow{}, fmt.Errorf("marshal cancellation request: %w", err)
		}
	}
	return row, nil
}

func (r orderRow) toOrder() (*orders.Order, error) {
	o := &orders.Order{
		ID:            r.ID,
		UserID:        r.UserID,
		OrderNumber:   r.OrderNumber,
		Status:        r.Status,
		PaymentStatus: r.PaymentStatus,
		TotalAmount:   r.TotalAmount,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if err := json.Unmarshal(r.ShippingAddress, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if len(r.CancellationRequest) > 0 {
		o.CancellationRequest = &orders.CancellationRequest{}
		if err := json.Unmarshal(r.CancellationRequest, o.CancellationRequest); err != nil {
			return nil, fmt.Errorf("unmarshal cancellation request: %w", err)
		}
	}
	return o, nil
}

func toItemRow(it *orders.OrderItem) (itemRow, error) {
	row := itemRow{
		ID:           it.ID,
		OrderID:      it.OrderID,
		ProductID:    it.ProductID,
		VariantID:    it.VariantID,
		VendorID:     it.VendorID,
		ProductTitle: it.ProductTitle,
		Quantity:     it.Quantity,
		UnitPrice:    it.UnitPrice,
		TotalPrice:   it.TotalPrice,
		Status:       it.Status,
		CreatedAt:    it.CreatedAt,
		UpdatedAt:    it.UpdatedAt,
	}
	if it.Rejection != nil {
		var err error
		if row.Rejection, err = json.Marshal(it.Rejection); err != nil {
			return itemRow{}, fmt.Errorf("marshal rejection: %w", err)
		}
	}
	return row, nil
}

func (r itemRow) toItem() (orders.OrderItem, error) {
	it := orders.OrderItem{
		ID:           r.ID,
		OrderID:      r.OrderID,
		ProductID:    r.ProductID,
		VariantID:    r.VariantID,
		VendorID:     r.VendorID,
		ProductTitle: r.ProductTitle,
		Quantity:     r.Quantity,
		UnitPrice:    r.UnitPrice,
		TotalPrice:   r.TotalPrice,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.Rejection) > 0 {
		it.Rejection = &orders.Rejection{}
		if err := json.Unmarshal(r.Rejection, it.Rejection); err != nil {
			return it, fmt.Errorf("unmarshal rejection: %w", err)
		}
	}
	return it, nil
}

// CreateOrder inserts the order shell. A taken order number is reported as
// Duplicate without aborting the surrounding transaction.
func (r *OrderRepo) CreateOrder(ctx context.Context, o *orders.Order) error {
	row, err := toOrderRow(o)
	if err != nil {
		return err
	}
	sql, args, err := postgres.Builder().
		Insert(tableOrders).
		SetMap(postgres.StructToMap(&row)).
		Suffix("ON CONFLICT ON CONSTRAINT " + orderNumberUniq + " DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		if postgres.IsUniqueViolation(err, orderNumberUniq) {
			return apperror.NewDuplicate("order", "order_number", o.OrderNumber)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewDuplicate("order", "order_number", o.OrderNumber)
	}
	return nil
}

// insertItemsQuery builds one multi-row insert for all lines.
func insertItemsQuery(items []orders.OrderItem) (string, []any, error) {
	q := postgres.Builder().Insert(tableItems).Columns(itemColumns...)
	for i := range items {
		row, err := toItemRow(&items[i])
		if err != nil {
			return "", nil, err
		}
		m := postgres.StructToMap(&row)
		values := make([]any, len(itemColumns))
		for j, c := range itemColumns {
			values[j] = m[c]
		}
		q = q.Values(values...)
	}
	return q.ToSql()
}

func (r *OrderRepo) CreateItems(ctx context.Context, items []orders.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	sql, args, err := insertItemsQuery(items)
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}
	return nil
}

func (r *OrderRepo) GetOrder(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	return r.getOrder(ctx, orderID, false)
}

// GetOrderForUpdate locks the order row; item rows are only written under it.
func (r *OrderRepo) GetOrderForUpdate(ctx context.Context, orderID id.ID) (*orders.Order, error) {
	return r.getOrder(ctx, orderID, true)
}

func (r *OrderRepo) getOrder(ctx context.Context, orderID id.ID, forUpdate bool) (*orders.Order, error) {
	q := postgres.Builder().
		Select(orderColumns...).
		From(tableOrders).
		Where(squirrel.Eq{"id": orderID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	var row orderRow
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order", orderID)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o, err := row.toOrder()
	if err != nil {
		return nil, err
	}

	items, err := r.itemsOf(ctx, []id.ID{orderID})
	if err != nil {
		return nil, err
	}
	o.Items = items[orderID]
	return o, nil
}

// itemsOf loads the lines of several orders keyed by order id, in creation order.
func (r *OrderRepo) itemsOf(ctx context.Context, orderIDs []id.ID) (map[id.ID][]orders.OrderItem, error) {
	out := make(map[id.ID][]orders.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	sql, args, err := postgres.Builder().
		Select(itemColumns...).
		From(tableItems).
		Where(squirrel.Eq{"order_id": orderIDs}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []itemRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	for _, row := range rows {
		it, err := row.toItem()
		if err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, nil
}

func (r *OrderRepo) FindItem(ctx context.Context, itemID id.ID) (*orders.OrderItem, error) {
	sql, args, err := postgres.Builder().
		Select(itemColumns...).
		From(tableItems).
		Where(squirrel.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var row itemRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("order item", itemID)
		}
		return nil, fmt.Errorf("get order item: %w", err)
	}
	it, err := row.toItem()
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *OrderRepo) UpdateOrder(ctx context.Context, o *orders.Order) error {
	row, err := toOrderRow(o)
	if err != nil {
		return err
	}
	sql, args, err := postgres.Builder().
		Update(tableOrders).
		Set("status", row.Status).
		Set("payment_status", row.PaymentStatus).
		Set("total_amount", row.TotalAmount).
		Set("cancellation_request", row.CancellationRequest).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{"id": row.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	return r.execOne(ctx, sql, args, "order", o.ID)
}

func (r *OrderRepo) UpdateItem(ctx context.Context, it *orders.OrderItem) error {
	row, err := toItemRow(it)
	if err != nil {
		return err
	}
	sql, args, err := postgres.Builder().
		Update(tableItems).
		Set("status", row.Status).
		Set("rejection", row.Rejection).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{"id": row.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	return r.execOne(ctx, sql, args, "order item", it.ID)
}

// execOne runs a single-row write and maps zero affected rows to NotFound.
func (r *OrderRepo) execOne(ctx context.Context, sql string, args []any, entity string, key any) error {
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", entity, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(entity, key)
	}
	return nil
}

func listFilter(q squirrel.SelectBuilder, f orders.ListFilter) squirrel.SelectBuilder {
	if f.UserID != nil {
		q = q.Where(squirrel.Eq{"user_id": *f.UserID})
	}
	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	return q
}

// listOrdersQuery pages orders newest first.
func listOrdersQuery(f orders.ListFilter) squirrel.SelectBuilder {
	q := listFilter(postgres.Builder().Select(orderColumns...).From(tableOrders), f).
		OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func (r *OrderRepo) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, int, error) {
	countSQL, countArgs, err := listFilter(postgres.Builder().Select("COUNT(*)").From(tableOrders), f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}
	querier := r.txm.GetQuerier(ctx)
	var total int
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	sql, args, err := listOrdersQuery(f).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}
	var rows []orderRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	ids := make([]id.ID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	items, err := r.itemsOf(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	out := make([]orders.Order, 0, len(rows))
	for _, row := range rows {
		o, err := row.toOrder()
		if err != nil {
			return nil, 0, err
		}
		o.Items = items[o.ID]
		out = append(out, *o)
	}
	return out, total, nil
}
