// Package inventory implements the stock ledger: one StockUnit per product or
// variant, reservations, deductions and the append-only movement log.
package inventory

import (
	"bytes"
	"fmt"
	"time"

	"marketplace/internal/core/id"
	"marketplace/internal/core/types"
)

// Key designates a StockUnit: a product, or a (product, variant) pair.
type Key struct {
	ProductID id.ID
	VariantID *id.ID
}

func ProductKey(productID id.ID) Key {
	return Key{ProductID: productID}
}

func VariantKey(productID, variantID id.ID) Key {
	return Key{ProductID: productID, VariantID: &variantID}
}

// Compare orders keys by product, then variant, with the product-level unit
// first. Callers locking several units take them in this order.
func (k Key) Compare(o Key) int {
	if c := bytes.Compare(k.ProductID[:], o.ProductID[:]); c != 0 {
		return c
	}
	switch {
	case k.VariantID == nil && o.VariantID == nil:
		return 0
	case k.VariantID == nil:
		return -1
	case o.VariantID == nil:
		return 1
	}
	return bytes.Compare(k.VariantID[:], o.VariantID[:])
}

// IsVariant reports whether the key addresses a variant-level unit.
func (k Key) IsVariant() bool { return k.VariantID != nil }

// ProductLevel drops the variant part.
func (k Key) ProductLevel() Key { return Key{ProductID: k.ProductID} }

func (k Key) String() string {
	if k.VariantID != nil {
		return fmt.Sprintf("product:%s/variant:%s", k.ProductID, *k.VariantID)
	}
	return fmt.Sprintf("product:%s", k.ProductID)
}

// StockUnit holds quantities for one Key.
// Invariant: 0 <= QuantityReserved <= QuantityAvailable.
type StockUnit struct {
	ID                id.ID     `db:"id" json:"id"`
	ProductID         id.ID     `db:"product_id" json:"productId"`
	VariantID         *id.ID    `db:"variant_id" json:"variantId,omitempty"`
	QuantityAvailable int       `db:"quantity_available" json:"quantityAvailable"`
	QuantityReserved  int       `db:"quantity_reserved" json:"quantityReserved"`
	ReorderLevel      int       `db:"reorder_level" json:"reorderLevel"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

func (u *StockUnit) Key() Key {
	return Key{ProductID: u.ProductID, VariantID: u.VariantID}
}

// Sellable is what can still be reserved.
func (u *StockUnit) Sellable() int {
	return u.QuantityAvailable - u.QuantityReserved
}

// IsLow reports 0 < available <= reorder level.
func (u *StockUnit) IsLow() bool {
	return u.QuantityAvailable > 0 && u.QuantityAvailable <= u.ReorderLevel
}

// MovementType classifies an on-hand change.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment:
		return true
	}
	return false
}

// ReferenceType names the kind of entity a movement points to.
type ReferenceType string

const (
	RefOrder     ReferenceType = "order"
	RefOrderItem ReferenceType = "order_item"
	RefReturn    ReferenceType = "return"
	RefRestock   ReferenceType = "restock"
	RefManual    ReferenceType = "manual"
)

// Reference describes why a movement happened.
type Reference struct {
	ID     string
	Type   ReferenceType
	Reason string
}

// Movement is an immutable record of an on-hand change. Quantity is always positive;
// BalanceAfter gives the direction of ADJUSTMENT rows.
type Movement struct {
	ID            id.ID         `db:"id" json:"id"`
	StockUnitID   id.ID         `db:"stock_unit_id" json:"stockUnitId"`
	ProductID     id.ID         `db:"product_id" json:"productId"`
	VariantID     *id.ID        `db:"variant_id" json:"variantId,omitempty"`
	Type          MovementType  `db:"type" json:"type"`
	Quantity      int           `db:"quantity" json:"quantity"`
	BalanceAfter  int           `db:"balance_after" json:"balanceAfter"`
	Reason        string        `db:"reason" json:"reason"`
	ReferenceID   string        `db:"reference_id" json:"referenceId,omitempty"`
	ReferenceType ReferenceType `db:"reference_type" json:"referenceType,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
}

// Restock is a supplier delivery.
type Restock struct {
	ID          id.ID       `db:"id" json:"id"`
	StockUnitID id.ID       `db:"stock_unit_id" json:"stockUnitId"`
	Quantity    int         `db:"quantity" json:"quantity"`
	UnitCost    types.Money `db:"unit_cost" json:"unitCost"`
	Supplier    string      `db:"supplier" json:"supplier"`
	RestockedAt time.Time   `db:"restocked_at" json:"restockedAt"`
	CreatedBy   *id.ID      `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

// RestockInput is the caller-supplied part of a Restock.
type RestockInput struct {
	Quantity    int
	UnitCost    types.Money
	Supplier    string
	RestockedAt time.Time
	CreatedBy   *id.ID
}

// MovementFilter narrows ListMovements.
type MovementFilter struct {
	Type   *MovementType
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// Scope of a stock notification.
type Scope string

const (
	ScopeProduct Scope = "product"
	ScopeVariant Scope = "variant"
)

// Notification is sent to real-time subscribers when a unit changes.
type Notification struct {
	Scope             Scope     `json:"scope"`
	ID                id.ID     `json:"id"`
	ProductID         id.ID     `json:"productId"`
	QuantityAvailable int       `json:"quantityAvailable"`
	QuantityReserved  int       `json:"quantityReserved"`
	Timestamp         time.Time `json:"timestamp"`
}

// NotificationFor builds the broadcast payload for a unit.
func NotificationFor(u *StockUnit, at time.Time) Notification {
	n := Notification{
		Scope:             ScopeProduct,
		ID:                u.ProductID,
		ProductID:         u.ProductID,
		QuantityAvailable: u.QuantityAvailable,
		QuantityReserved:  u.QuantityReserved,
		Timestamp:         at,
	}
	if u.VariantID != nil {
		n.Scope = ScopeVariant
		n.ID = *u.VariantID
	}
	return n
}
