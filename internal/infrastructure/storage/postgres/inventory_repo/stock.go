// Package inventory_repo is the PostgreSQL stock ledger: stock_units,
// stock_movements and restocks.
package inventory_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/domain/inventory"
	"marketplace/internal/infrastructure/storage/postgres"
)

const (
	tableUnits     = "stock_units"
	tableMovements = "stock_movements"
	tableRestocks  = "restocks"
)

var (
	unitColumns     = postgres.ExtractDBColumns[inventory.StockUnit]()
	movementColumns = postgres.ExtractDBColumns[inventory.Movement]()
	restockColumns  = postgres.ExtractDBColumns[inventory.Restock]()
)

var _ inventory.Repository = (*StockRepo)(nil)

// StockRepo implements inventory.Repository.
type StockRepo struct {
	txm *postgres.TxManager
}

func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{txm: txm}
}

// keyWhere matches the unit of key; a nil variant matches the product-level row only.
// *id.ID never goes into squirrel.Eq: its Valuer would be called on nil.
func keyWhere(key inventory.Key) squirrel.Sqlizer {
	if key.VariantID == nil {
		return squirrel.And{squirrel.Eq{"product_id": key.ProductID}, squirrel.Expr("variant_id IS NULL")}
	}
	return squirrel.Eq{"product_id": key.ProductID, "variant_id": *key.VariantID}
}

func selectUnit(key inventory.Key, forUpdate bool) squirrel.SelectBuilder {
	q := postgres.Builder().
		Select(unitColumns...).
		From(tableUnits).
		Where(keyWhere(key)).
		Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

func (r *StockRepo) getUnit(ctx context.Context, key inventory.Key, forUpdate bool) (*inventory.StockUnit, error) {
	sql, args, err := selectUnit(key, forUpdate).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var unit inventory.StockUnit
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &unit, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("stock unit", key.String())
		}
		return nil, fmt.Errorf("get stock unit: %w", err)
	}
	return &unit, nil
}

// FindOrCreateForUpdate inserts the unit if missing (losing a race is fine)
// and then locks whichever row exists.
func (r *StockRepo) FindOrCreateForUpdate(ctx context.Context, key inventory.Key, initial int) (*inventory.StockUnit, error) {
	now := time.Now().UTC()
	sql, args, err := postgres.Builder().
		Insert(tableUnits).
		Columns("id", "product_id", "variant_id", "quantity_available", "quantity_reserved", "reorder_level", "created_at", "updated_at").
		Values(id.New(), key.ProductID, key.VariantID, initial, 0, 0, now, now).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return nil, fmt.Errorf("insert stock unit: %w", err)
	}
	return r.getUnit(ctx, key, true)
}

func (r *StockRepo) GetForUpdate(ctx context.Context, key inventory.Key) (*inventory.StockUnit, error) {
	return r.getUnit(ctx, key, true)
}

func (r *StockRepo) Get(ctx context.Context, key inventory.Key) (*inventory.StockUnit, error) {
	return r.getUnit(ctx, key, false)
}

func (r *StockRepo) Update(ctx context.Context, unit *inventory.StockUnit) error {
	sql, args, err := postgres.Builder().
		Update(tableUnits).
		Set("quantity_available", unit.QuantityAvailable).
		Set("quantity_reserved", unit.QuantityReserved).
		Set("reorder_level", unit.ReorderLevel).
		Set("updated_at", unit.UpdatedAt).
		Where(squirrel.Eq{"id": unit.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update stock unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock unit", unit.ID)
	}
	return nil
}

func (r *StockRepo) AppendMovement(ctx context.Context, m *inventory.Movement) error {
	return r.insert(ctx, tableMovements, movementColumns, m)
}

func (r *StockRepo) CreateRestock(ctx context.Context, rs *inventory.Restock) error {
	return r.insert(ctx, tableRestocks, restockColumns, rs)
}

func (r *StockRepo) insert(ctx context.Context, table string, cols []string, v any) error {
	sql, args, err := postgres.Builder().
		Insert(table).
		SetMap(postgres.Columns(postgres.StructToMap(v), cols)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// movementsQuery lists a unit's movements newest first.
func movementsQuery(key inventory.Key, f inventory.MovementFilter) squirrel.SelectBuilder {
	q := postgres.Builder().
		Select(movementColumns...).
		From(tableMovements).
		Where(keyWhere(key)).
		OrderBy("created_at DESC", "id DESC")
	if f.Type != nil {
		q = q.Where(squirrel.Eq{"type": *f.Type})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *f.To})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func (r *StockRepo) ListMovements(ctx context.Context, key inventory.Key, f inventory.MovementFilter) ([]inventory.Movement, error) {
	sql, args, err := movementsQuery(key, f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []inventory.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return out, nil
}

func lowStockQuery(vendorID id.ID) squirrel.SelectBuilder {
	cols := make([]string, len(unitColumns))
	for i, c := range unitColumns {
		cols[i] = "su." + c
	}
	return postgres.Builder().
		Select(cols...).
		From(tableUnits + " su").
		Join("products p ON p.id = su.product_id").
		Where(squirrel.Eq{"p.user_id": vendorID}).
		Where("su.quantity_available > 0").
		Where("su.quantity_available <= su.reorder_level").
		OrderBy("su.quantity_available", "su.id")
}

func (r *StockRepo) LowStockForVendor(ctx context.Context, vendorID id.ID) ([]inventory.StockUnit, error) {
	sql, args, err := lowStockQuery(vendorID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []inventory.StockUnit
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("low stock: %w", err)
	}
	return out, nil
}
