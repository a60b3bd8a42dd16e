package main

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/config"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/identity"
)

func newSeedStack(t *testing.T) (*app.Dependencies, *app.Services) {
	t.Helper()

	cfg := config.Default()
	cfg.SessionSecret = "seed-test-secret-0123456789"

	logger := log.WithField("component", "seed-test")
	deps, err := app.NewDependencies(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	services, err := app.NewServices(cfg, deps)
	require.NoError(t, err)
	return deps, services
}

func TestSeedCreatesDemoData(t *testing.T) {
	ctx := context.Background()
	deps, services := newSeedStack(t)
	logger := log.WithField("component", "seed-test")

	result, err := seed(ctx, services, deps.Users, deps.Orders, logger)
	require.NoError(t, err)
	assert.True(t, result.UserCreated)
	assert.Equal(t, len(demoProducts), result.ProductsCreated)
	assert.Equal(t, len(demoOrders), result.OrdersCreated)

	login, err := services.Identity.Authenticate(ctx, identity.LoginInput{Email: demoUserEmail, Password: demoUserPassword})
	require.NoError(t, err)
	assert.Equal(t, result.UserID, login.User.ID)

	page, err := services.Orders.ListOrders(ctx, result.UserID, 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	// Новые заказы идут первыми.
	assert.Equal(t, domain.OrderStatusCancelled, page.Items[0].Status)
	assert.Equal(t, "1599.98", page.Items[0].TotalAmount.StringFixed(2))
	assert.Equal(t, domain.OrderStatusConfirmed, page.Items[1].Status)
	assert.Equal(t, "1999.98", page.Items[1].TotalAmount.StringFixed(2))
	assert.Equal(t, domain.OrderStatusPending, page.Items[2].Status)
	assert.Equal(t, "1499.97", page.Items[2].TotalAmount.StringFixed(2))

	products, err := services.Catalog.List(ctx, "IPH15PRO", 1)
	require.NoError(t, err)
	require.Len(t, products.Items, 1)
	assert.Equal(t, 19, products.Items[0].Stock)
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	deps, services := newSeedStack(t)
	logger := log.WithField("component", "seed-test")

	first, err := seed(ctx, services, deps.Users, deps.Orders, logger)
	require.NoError(t, err)

	second, err := seed(ctx, services, deps.Users, deps.Orders, logger)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)
	assert.False(t, second.UserCreated)
	assert.Zero(t, second.ProductsCreated)
	assert.Zero(t, second.OrdersCreated)

	products, err := services.Catalog.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, len(demoProducts), products.Total)

	page, err := services.Orders.ListOrders(ctx, first.UserID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}
