package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/app/apptest"
	"marketplace/internal/core/apperror"
	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
	"marketplace/internal/domain/orders"
	v1 "marketplace/internal/infrastructure/http/v1"
	"marketplace/internal/infrastructure/storage/postgres"
	"marketplace/pkg/logger"
)

type tokenTable map[string]security.Actor

func (t tokenTable) ValidateToken(token string) (security.Actor, error) {
	a, ok := t[token]
	if !ok {
		return security.Actor{}, errors.New("unknown token")
	}
	return a, nil
}

type memIdempotency struct {
	mu   sync.Mutex
	done map[string]*postgres.IdempotencyReplay
}

func (m *memIdempotency) AcquireKey(_ context.Context, key, _, _, _ string) (*postgres.IdempotencyReplay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[key], nil
}

func (m *memIdempotency) CompleteKey(_ context.Context, key string, status int, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[key] = &postgres.IdempotencyReplay{StatusCode: status, ContentType: contentType, Body: append([]byte(nil), body...)}
	return nil
}

func (m *memIdempotency) FailKey(ctx context.Context, key string, status int, contentType string, body []byte) error {
	return m.CompleteKey(ctx, key, status, contentType, body)
}

type env struct {
	h      *apptest.Harness
	router http.Handler
}

func newEnv(t *testing.T) *env {
	h := apptest.New(t)
	router := v1.NewRouter(v1.RouterConfig{
		Services: h.Services,
		Logger:   logger.Default(),
		JWTValidator: tokenTable{
			"admin":    h.Admin,
			"vendor":   h.Vendor,
			"customer": h.Customer,
			"stranger": {ID: id.New(), Role: security.RoleCustomer},
		},
		Idempotency: &memIdempotency{done: map[string]*postgres.IdempotencyReplay{}},
	})
	return &env{h: h, router: router}
}

func (e *env) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var address = map[string]any{
	"fullName":   "Jane Doe",
	"line1":      "1 Main St",
	"city":       "Springfield",
	"postalCode": "12345",
	"country":    "US",
}

func TestHealthLive(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodGet, "/api/v1/orders", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperror.CodeUnauthorized, decode[errorBody](t, w).Code)

	w = e.do(http.MethodGet, "/api/v1/orders", "forged", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutAndWebhook(t *testing.T) {
	e := newEnv(t)
	p := e.h.Product("Mug", "12.50", 10)
	e.h.AddToCart(p.ID, 2)

	w := e.do(http.MethodPost, "/api/v1/orders", "customer", map[string]any{"shippingAddress": address})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	type checkout struct {
		Order            orders.Order `json:"order"`
		PaymentReference string       `json:"paymentReference"`
	}
	co := decode[checkout](t, w)
	require.NotEmpty(t, co.PaymentReference)
	assert.Equal(t, "25", co.Order.TotalAmount.String())
	assert.Equal(t, 2, e.h.Unit(p.ID).QuantityReserved)

	w = e.do(http.MethodPost, "/api/v1/payments/webhook", "", map[string]any{
		"reference": co.PaymentReference,
		"status":    "COMPLETE",
	})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/api/v1/orders/"+co.Order.ID.String(), "customer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[orders.Order](t, w)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, 8, e.h.Unit(p.ID).QuantityAvailable)
}

func TestCheckoutRejectsBadAddress(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodPost, "/api/v1/orders", "customer", map[string]any{
		"shippingAddress": map[string]any{"fullName": "x"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, decode[errorBody](t, w).Code)
}

func TestCheckoutIdempotentReplay(t *testing.T) {
	e := newEnv(t)
	p := e.h.Product("Lamp", "40", 5)
	e.h.AddToCart(p.ID, 1)
	body := map[string]any{"shippingAddress": address}

	first := e.do(http.MethodPost, "/api/v1/orders", "customer", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	// The cart is empty now; only a replay can succeed.
	second := e.do(http.MethodPost, "/api/v1/orders", "customer", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, e.h.Unit(p.ID).QuantityReserved)
}

func TestOtherCustomerCannotSeeOrder(t *testing.T) {
	e := newEnv(t)
	p := e.h.Product("Pen", "1", 5)
	e.h.AddToCart(p.ID, 1)
	co := e.h.Checkout()

	w := e.do(http.MethodGet, "/api/v1/orders/"+co.Order.ID.String(), "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodGet, "/api/v1/orders/"+co.Order.ID.String()+"/refunds", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodGet, "/api/v1/orders/not-an-id", "customer", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInventoryRoles(t *testing.T) {
	e := newEnv(t)
	p := e.h.Product("Cup", "3", 4)
	adjust := map[string]any{"productId": p.ID.String(), "delta": 6, "reason": "recount"}

	w := e.do(http.MethodPost, "/api/v1/inventory/stock/adjust", "customer", adjust)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/api/v1/inventory/stock/adjust", "vendor", adjust)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/api/v1/inventory/stock?productId="+p.ID.String(), "customer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, decode[struct {
		Available int `json:"available"`
	}](t, w).Available)

	w = e.do(http.MethodGet, "/api/v1/inventory/low-stock", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
