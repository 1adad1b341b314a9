// Package app assembles the domain services over a storage backend.
package app

import (
	"time"

	"marketplace/internal/core/numerator"
	"marketplace/internal/core/outbox"
	"marketplace/internal/core/tx"
	"marketplace/internal/domain/audit"
	"marketplace/internal/domain/cart"
	"marketplace/internal/domain/catalog"
	"marketplace/internal/domain/inventory"
	"marketplace/internal/domain/orders"
	"marketplace/internal/domain/returns"
	"marketplace/internal/infrastructure/storage/memory"
)

// Stores is everything a storage backend provides.
type Stores struct {
	TxManager tx.Manager
	Catalog   catalog.Reader
	Carts     cart.Store
	Inventory inventory.Repository
	Orders    orders.Repository
	Payments  orders.PaymentContextStore
	Refunds   orders.RefundQueue
	OrderRows returns.OrderStore
	Returns   returns.Repository
	Outbox    outbox.Publisher
	Audit     audit.Recorder
	Numerator numerator.Generator
}

// Integrations are the external collaborators. Deduper and Broadcaster are optional.
type Integrations struct {
	Broadcaster    inventory.Broadcaster
	Gateway        orders.Gateway
	RefundProvider orders.RefundProvider
	Deduper        orders.Deduper
	PaymentTTL     time.Duration
}

// Services are the wired workflows.
type Services struct {
	Ledger  *inventory.Ledger
	Orders  *orders.Service
	Returns *returns.Service
}

func NewServices(s Stores, in Integrations) *Services {
	ledger := inventory.NewLedger(s.Inventory, s.Catalog, s.TxManager, in.Broadcaster)

	orderSvc := orders.NewService(orders.Deps{
		Orders:         s.Orders,
		Payments:       s.Payments,
		Refunds:        s.Refunds,
		Carts:          s.Carts,
		Catalog:        s.Catalog,
		Ledger:         ledger,
		TxManager:      s.TxManager,
		Outbox:         s.Outbox,
		Audit:          s.Audit,
		Gateway:        in.Gateway,
		RefundProvider: in.RefundProvider,
		Deduper:        in.Deduper,
		PaymentTTL:     in.PaymentTTL,
	})

	returnSvc := returns.NewService(returns.Deps{
		Returns:   s.Returns,
		Orders:    s.OrderRows,
		Workflow:  orderSvc,
		Restocker: ledger,
		Catalog:   s.Catalog,
		Numerator: s.Numerator,
		TxManager: s.TxManager,
		Outbox:    s.Outbox,
		Audit:     s.Audit,
	})

	return &Services{Ledger: ledger, Orders: orderSvc, Returns: returnSvc}
}

// MemoryStores exposes an in-process store as a backend.
func MemoryStores(m *memory.Store) Stores {
	orderRepo := m.Orders()
	return Stores{
		TxManager: m,
		Catalog:   m.Catalog(),
		Carts:     m.Carts(),
		Inventory: m.Inventory(),
		Orders:    orderRepo,
		Payments:  orderRepo,
		Refunds:   orderRepo,
		OrderRows: orderRepo,
		Returns:   m.Returns(),
		Outbox:    m.Outbox(),
		Audit:     m.Audit(),
		Numerator: numerator.NewSequenceGenerator(),
	}
}
