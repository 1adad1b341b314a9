// Package apptest wires the workflows over the memory store for tests.
package apptest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketplace/internal/app"
	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
	"marketplace/internal/core/types"
	"marketplace/internal/domain/cart"
	"marketplace/internal/domain/catalog"
	"marketplace/internal/domain/inventory"
	"marketplace/internal/domain/orders"
	"marketplace/internal/infrastructure/payment"
	"marketplace/internal/infrastructure/storage/memory"
)

// Harness is a fully wired marketplace with one admin, vendor and customer.
type Harness struct {
	T        testing.TB
	Store    *memory.Store
	Services *app.Services

	Admin    security.Actor
	Vendor   security.Actor
	Customer security.Actor
}

func New(t testing.TB) *Harness {
	t.Helper()
	store := memory.New()
	gateway, err := payment.NewRedirectGateway("https://pay.test", "")
	require.NoError(t, err)

	return &Harness{
		T:     t,
		Store: store,
		Services: app.NewServices(app.MemoryStores(store), app.Integrations{
			Gateway:        gateway,
			RefundProvider: payment.ManualRefunds{},
			PaymentTTL:     time.Hour,
		}),
		Admin:    security.Actor{ID: id.New(), Role: security.RoleAdmin},
		Vendor:   security.Actor{ID: id.New(), Role: security.RoleVendor},
		Customer: security.Actor{ID: id.New(), Role: security.RoleCustomer},
	}
}

// Product lists an active product of the harness vendor.
func (h *Harness) Product(title, price string, stock int) catalog.Product {
	h.T.Helper()
	p := catalog.Product{
		ID:           id.New(),
		VendorID:     h.Vendor.ID,
		Title:        title,
		Status:       catalog.StatusActive,
		RegularPrice: types.MustMoney(price),
		InitialStock: stock,
	}
	require.NoError(h.T, h.Store.Catalog().PutProduct(context.Background(), p))
	return p
}

// AddToCart puts qty of a product into the customer's cart.
func (h *Harness) AddToCart(productID id.ID, qty int) {
	h.T.Helper()
	require.NoError(h.T, h.Store.Carts().AddItem(context.Background(), h.Customer.ID, cart.Item{ProductID: productID, Quantity: qty}))
}

func Address() orders.Address {
	return orders.Address{FullName: "Jane Doe", Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"}
}

// Checkout converts the customer's cart into an order.
func (h *Harness) Checkout() *orders.Checkout {
	h.T.Helper()
	co, err := h.Services.Orders.CreateOrder(context.Background(), h.Customer.ID, orders.CreateOrderInput{ShippingAddress: Address()})
	require.NoError(h.T, err)
	return co
}

// Pay confirms the checkout's payment through the webhook path.
func (h *Harness) Pay(co *orders.Checkout) {
	h.T.Helper()
	err := h.Services.Orders.HandlePaymentNotification(context.Background(), orders.PaymentNotification{
		Reference: co.PaymentReference,
		Status:    orders.GatewayComplete,
	})
	require.NoError(h.T, err)
}

// Order reloads an order as admin.
func (h *Harness) Order(orderID id.ID) *orders.Order {
	h.T.Helper()
	o, err := h.Services.Orders.GetOrder(context.Background(), orderID, h.Admin)
	require.NoError(h.T, err)
	return o
}

// MoveItem applies an item transition as the vendor, or the admin for DELIVERED.
func (h *Harness) MoveItem(itemID id.ID, to orders.ItemStatus) *orders.Order {
	h.T.Helper()
	actor := h.Vendor
	if to == orders.ItemDelivered {
		actor = h.Admin
	}
	o, err := h.Services.Orders.UpdateOrderItemStatus(context.Background(), itemID, orders.ItemStatusUpdate{Status: to}, actor)
	require.NoError(h.T, err)
	return o
}

// Fulfil walks every line of the order to DELIVERED.
func (h *Harness) Fulfil(orderID id.ID) *orders.Order {
	h.T.Helper()
	path := []orders.ItemStatus{
		orders.ItemAccepted, orders.ItemProcessing, orders.ItemPicked,
		orders.ItemPacked, orders.ItemShipped, orders.ItemDelivered,
	}
	var o *orders.Order
	for _, it := range h.Order(orderID).Items {
		for _, to := range path {
			o = h.MoveItem(it.ID, to)
		}
	}
	return o
}

// Unit reads the product-level stock unit.
func (h *Harness) Unit(productID id.ID) *inventory.StockUnit {
	h.T.Helper()
	u, err := h.Services.Ledger.GetStockUnit(context.Background(), inventory.ProductKey(productID))
	require.NoError(h.T, err)
	return u
}
