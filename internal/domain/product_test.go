package domain_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestValidateProduct(t *testing.T) {
	valid := domain.Product{Name: "AirPods Pro", SKU: "AIRP", Price: decimal.RequireFromString("249.99"), Stock: 20}
	require.NoError(t, domain.ValidateProduct(valid))

	cases := []struct {
		name  string
		mut   func(p *domain.Product)
		field string
	}{
		{"missing name", func(p *domain.Product) { p.Name = "" }, "name"},
		{"long name", func(p *domain.Product) { p.Name = strings.Repeat("n", 256) }, "name"},
		{"missing sku", func(p *domain.Product) { p.SKU = "" }, "sku"},
		{"long sku", func(p *domain.Product) { p.SKU = strings.Repeat("S", 51) }, "sku"},
		{"negative price", func(p *domain.Product) { p.Price = decimal.RequireFromString("-0.01") }, "price"},
		{"negative stock", func(p *domain.Product) { p.Stock = -1 }, "stock"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mut(&p)
			err := domain.ValidateProduct(p)
			require.ErrorIs(t, err, domain.ErrInvalidInput)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Contains(t, verr.Fields, tc.field)
		})
	}
}

func TestProductRef(t *testing.T) {
	p := domain.Product{ID: 3, Name: "S24", SKU: "S24", Price: decimal.RequireFromString("799.99"), Stock: 15}
	ref := p.Ref()
	require.Equal(t, int64(3), ref.ID)
	require.Equal(t, "S24", ref.SKU)
	require.True(t, ref.Price.Equal(p.Price))
	require.False(t, p.Deleted())
}
