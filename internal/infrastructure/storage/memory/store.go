// Package memory is an in-process storage backend. One mutex serializes all
// transactions, so row locks and rollbacks behave like the postgres backend
// at the cost of concurrency. Used for local runs and domain tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"marketplace/internal/core/id"
	"marketplace/internal/core/tx"
	"marketplace/internal/domain/audit"
	"marketplace/internal/domain/cart"
	"marketplace/internal/domain/catalog"
	"marketplace/internal/domain/inventory"
	"marketplace/internal/domain/orders"
	"marketplace/internal/domain/returns"
)

var _ tx.Manager = (*Store)(nil)

type state struct {
	products    map[id.ID]catalog.Product
	carts       map[id.ID]cart.Cart // by user
	units       map[string]inventory.StockUnit
	movements   []inventory.Movement
	restocks    []inventory.Restock
	orders      map[id.ID]orders.Order
	orderItems  map[id.ID]orders.OrderItem
	itemOrder   []id.ID // insertion order of order items
	payments    map[string]orders.PaymentContext
	refunds     map[id.ID]orders.RefundRequest
	refundOrder []id.ID
	returns     map[id.ID]returns.Return
	returnItems map[id.ID]returns.ReturnItem
	returnOrder []id.ID
	events      []Event
	audit       []audit.Entry
}

func newState() *state {
	return &state{
		products:    make(map[id.ID]catalog.Product),
		carts:       make(map[id.ID]cart.Cart),
		units:       make(map[string]inventory.StockUnit),
		orders:      make(map[id.ID]orders.Order),
		orderItems:  make(map[id.ID]orders.OrderItem),
		payments:    make(map[string]orders.PaymentContext),
		refunds:     make(map[id.ID]orders.RefundRequest),
		returns:     make(map[id.ID]returns.Return),
		returnItems: make(map[id.ID]returns.ReturnItem),
	}
}

// clone copies every table. Stored values never share mutable memory with
// callers, so a shallow copy per table is enough.
func (s *state) clone() *state {
	return &state{
		products:    maps.Clone(s.products),
		carts:       maps.Clone(s.carts),
		units:       maps.Clone(s.units),
		movements:   slices.Clone(s.movements),
		restocks:    slices.Clone(s.restocks),
		orders:      maps.Clone(s.orders),
		orderItems:  maps.Clone(s.orderItems),
		itemOrder:   slices.Clone(s.itemOrder),
		payments:    maps.Clone(s.payments),
		refunds:     maps.Clone(s.refunds),
		refundOrder: slices.Clone(s.refundOrder),
		returns:     maps.Clone(s.returns),
		returnItems: maps.Clone(s.returnItems),
		returnOrder: slices.Clone(s.returnOrder),
		events:      slices.Clone(s.events),
		audit:       slices.Clone(s.audit),
	}
}

// Store holds every table and doubles as the transaction manager.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// RunInTransaction runs fn holding the store lock. A failing fn (or panic)
// restores the state captured at the start. Nested calls join the outer one.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	outer := ctx
	s.mu.Lock()
	snapshot := s.st.clone()
	txCtx, hooks := tx.WithHooks(context.WithValue(ctx, txKey{}, s))

	committed := false
	defer func() {
		if !committed {
			s.st = snapshot
		}
		s.mu.Unlock()
		if committed {
			hooks.Run(outer)
		}
	}()

	if err = fn(txCtx); err != nil {
		return err
	}
	committed = true
	return nil
}

// view runs fn against the live state, taking the lock unless ctx already holds it.
func (s *Store) view(ctx context.Context, fn func(st *state) error) error {
	if s.inTx(ctx) {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Repositories returns typed views over the shared store.
func (s *Store) Catalog() *CatalogRepo     { return &CatalogRepo{s: s} }
func (s *Store) Carts() *CartRepo          { return &CartRepo{s: s} }
func (s *Store) Inventory() *InventoryRepo { return &InventoryRepo{s: s} }
func (s *Store) Orders() *OrderRepo        { return &OrderRepo{s: s} }
func (s *Store) Returns() *ReturnRepo      { return &ReturnRepo{s: s} }
func (s *Store) Outbox() *OutboxRepo       { return &OutboxRepo{s: s} }
func (s *Store) Audit() *AuditRepo         { return &AuditRepo{s: s} }
