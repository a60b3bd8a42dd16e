package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "product not found", err: ErrProductNotFound, want: ErrNotFound},
		{name: "order not found", err: ErrOrderNotFound, want: ErrNotFound},
		{name: "wrapped session not found", err: fmt.Errorf("load: %w", ErrSessionNotFound), want: ErrNotFound},
		{name: "validation", err: NewValidationError("name", "required"), want: ErrInvalidInput},
		{name: "conflict", err: &ConflictError{Field: "sku", Message: "SKU already exists"}, want: ErrConflict},
		{name: "stock", err: &StockError{ProductName: "A", Available: 1, Requested: 2}, want: ErrStockInsufficient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.want)
		})
	}
}

func TestStockErrorMessage(t *testing.T) {
	err := &StockError{ProductID: 2, ProductName: "MacBook Air", Available: 0, Requested: 1}
	assert.Equal(t, "Insufficient stock for 'MacBook Air'. Available: 0", err.Error())
}

func TestAsFieldErrors(t *testing.T) {
	fields, ok := AsFieldErrors(fmt.Errorf("create: %w", &ConflictError{Field: "email", Message: "Email already taken"}))
	require.True(t, ok)
	assert.Equal(t, FieldErrors{"email": {"Email already taken"}}, fields)

	verr := &ValidationError{Fields: FieldErrors{}}
	verr.Fields.Add("items", "Order items are required")
	fields, ok = AsFieldErrors(verr)
	require.True(t, ok)
	assert.Equal(t, []string{"Order items are required"}, fields["items"])

	_, ok = AsFieldErrors(errors.New("boom"))
	assert.False(t, ok)
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: FieldErrors{
		"sku":  {"SKU is required"},
		"name": {"Product name is required"},
	}}
	assert.Equal(t, "validation failed: name: Product name is required; sku: SKU is required", err.Error())
}
