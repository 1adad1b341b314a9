package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient stock", NewInsufficientStock("Mug", 3, 2), http.StatusConflict},
		{"not found", NewNotFound("order", "x"), http.StatusNotFound},
		{"forbidden", NewForbidden("no"), http.StatusForbidden},
		{"validation", NewValidation("bad"), http.StatusBadRequest},
		{"transition", NewInvalidTransition("order", "PENDING", "SHIPPED"), http.StatusUnprocessableEntity},
		{"empty cart", NewEmptyCart("u1"), http.StatusUnprocessableEntity},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPStatus(tt.err))
		})
	}
}

func TestHasCode_WrappedError(t *testing.T) {
	err := fmt.Errorf("reserve line 1: %w", NewInsufficientStock("Mug", 3, 2))

	assert.True(t, HasCode(err, CodeInsufficientStock))
	assert.False(t, IsNotFound(err))

	appErr, ok := AsAppError(err)
	assert.True(t, ok)
	assert.Contains(t, appErr.Message, "Mug")
	assert.Equal(t, 3, appErr.Details["requested"])
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(NewConflict("order number taken")))
	assert.True(t, IsConflict(NewDuplicate("order", "order_number", "ORD-1")))
	assert.False(t, IsConflict(NewValidation("x")))
}

func TestWithDetailAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewDatabase("insert order", cause).WithDetail("order_id", "o1")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "o1", err.Details["order_id"])
	assert.Equal(t, "insert order", err.Details["operation"])
}
