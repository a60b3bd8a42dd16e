package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type fixture struct {
	store    *memory.Store
	products domain.ProductRepository
	users    domain.UserRepository
	orders   domain.OrderRepository
	outbox   *memory.OutboxRepository
	workflow *Workflow
	logs     *test.Hook
	registry *prometheus.Registry
}

func newFixture(t *testing.T, options ...WorkflowOption) fixture {
	t.Helper()

	store := memory.NewStore()
	logger, hook := test.NewNullLogger()
	registry := prometheus.NewRegistry()

	options = append([]WorkflowOption{
		WithWorkflowLogger(logrus.NewEntry(logger)),
		WithWorkflowMetrics(metrics.NewOrderMetricsWithRegisterer(registry)),
	}, options...)

	return fixture{
		store:    store,
		products: memory.NewProductRepository(store),
		users:    memory.NewUserRepository(store),
		orders:   memory.NewOrderRepository(store),
		outbox:   memory.NewOutboxRepository(store),
		workflow: NewWorkflow(memory.NewUnitOfWork(store), options...),
		logs:     hook,
		registry: registry,
	}
}

func (f fixture) user(t *testing.T, email string) domain.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), domain.User{Name: "Buyer", Email: email, PasswordHash: "x"})
	require.NoError(t, err)
	return u
}

func (f fixture) product(t *testing.T, sku, price string, stock int) domain.Product {
	t.Helper()
	p, err := f.products.Create(context.Background(), domain.Product{
		Name:  "Product " + sku,
		SKU:   sku,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	require.NoError(t, err)
	return p
}

func (f fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := f.products.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func lines(pairs ...int64) PlaceOrderInput {
	in := PlaceOrderInput{}
	for i := 0; i+1 < len(pairs); i += 2 {
		in.Items = append(in.Items, LineInput{ProductID: pairs[i], Quantity: int(pairs[i+1])})
	}
	return in
}

func TestPlaceOrder_TotalsAndStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	a := f.product(t, "A", "10.00", 5)

	order, err := f.workflow.PlaceOrder(ctx, u.ID, lines(a.ID, 2))
	require.NoError(t, err)

	assert.Equal(t, "20.00", order.TotalAmount.StringFixed(2))
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, u.ID, order.UserID)
	require.NotNil(t, order.User)
	assert.Equal(t, "a@example.com", order.User.Email)
	require.Len(t, order.Items, 1)
	require.NotNil(t, order.Items[0].Product)
	assert.Equal(t, "A", order.Items[0].Product.SKU)
	assert.Equal(t, 3, f.stock(t, a.ID))

	assert.Equal(t, 1.0, f.placements(t, metrics.ResultCreated))
	require.NotEmpty(t, f.logs.Entries)
	assert.Equal(t, "Order created", f.logs.LastEntry().Message)
}

func (f fixture) placements(t *testing.T, result string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "storefront_order_placements_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPlaceOrder_MultiLineTotalIsSumOfSubtotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	a := f.product(t, "A", "19.99", 10)
	b := f.product(t, "B", "0.01", 10)

	order, err := f.workflow.PlaceOrder(ctx, u.ID, lines(a.ID, 3, b.ID, 7))
	require.NoError(t, err)

	assert.Equal(t, "60.04", order.TotalAmount.StringFixed(2))
	assert.True(t, domain.SumItems(order.Items).Equal(order.TotalAmount))
	assert.Equal(t, []int64{a.ID, b.ID}, []int64{order.Items[0].ProductID, order.Items[1].ProductID})
}

func TestPlaceOrder_InsufficientStockRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	a := f.product(t, "A", "10.00", 5)
	b := f.product(t, "B", "5.00", 0)

	_, err := f.workflow.PlaceOrder(ctx, u.ID, lines(a.ID, 2, b.ID, 1))
	require.ErrorIs(t, err, domain.ErrStockInsufficient)

	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Insufficient stock for 'Product B'. Available: 0", stockErr.Error())

	assert.Equal(t, 5, f.stock(t, a.ID))
	page, err := f.orders.ListByUser(ctx, u.ID, domain.PageRequest{Page: 1})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, f.outbox.AllPending())
}

func TestPlaceOrder_DuplicateLinesShareStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	a := f.product(t, "A", "1.00", 3)

	_, err := f.workflow.PlaceOrder(ctx, u.ID, lines(a.ID, 2, a.ID, 2))
	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 3, f.stock(t, a.ID))

	order, err := f.workflow.PlaceOrder(ctx, u.ID, lines(a.ID, 2, a.ID, 1))
	require.NoError(t, err)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, 0, f.stock(t, a.ID))
}

func TestPlaceOrder_MissingOrDeletedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	a := f.product(t, "A", "1.00", 3)
	gone := f.product(t, "GONE", "1.00", 3)
	require.NoError(t, f.products.SoftDelete(ctx, gone.ID, gone.CreatedAt))

	_, err := f.workflow.PlaceOrder(ctx, u.ID, lines(a.ID, 1, 999, 1))
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = f.workflow.PlaceOrder(ctx, u.ID, lines(gone.ID, 1))
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Equal(t, 3, f.stock(t, a.ID))
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@example.com")

	cases := []struct {
		name  string
		in    PlaceOrderInput
		field string
		msg   string
	}{
		{"no items", PlaceOrderInput{}, "items", "Order items are required"},
		{"empty items", PlaceOrderInput{Items: []LineInput{}}, "items", "Order items are required"},
		{"zero quantity", lines(1, 0), "items.0.quantity", "Quantity must be at least 1"},
		{"missing product", PlaceOrderInput{Items: []LineInput{{Quantity: 1}, {ProductID: 0, Quantity: 1}}}, "items.1.product_id", "Product id is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.workflow.PlaceOrder(ctx, u.ID, tc.in)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			fields, ok := domain.AsFieldErrors(err)
			require.True(t, ok)
			assert.Contains(t, fields[tc.field], tc.msg)
		})
	}
}

func TestPlaceOrder_TotalAboveColumnLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	a := f.product(t, "A", "9999999999.99", 5)

	_, err := f.workflow.PlaceOrder(ctx, u.ID, lines(a.ID, 2))
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	fields, ok := domain.AsFieldErrors(err)
	require.True(t, ok)
	assert.Equal(t, []string{"Order total may not be greater than 9999999999.99"}, fields["items"])

	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Empty(t, f.outbox.AllPending())
	assert.Equal(t, 1.0, f.placements(t, metrics.ResultInvalid))
	for _, e := range f.logs.AllEntries() {
		if e.Level <= logrus.ErrorLevel {
			t.Fatalf("rejected order must not log errors: %s", e.Message)
		}
	}

	order, err := f.workflow.PlaceOrder(ctx, u.ID, lines(a.ID, 1))
	require.NoError(t, err)
	assert.Equal(t, "9999999999.99", order.TotalAmount.StringFixed(2))
}

func TestPlaceOrder_RequiresUserUnlessGuestEnabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", "1.00", 3)

	_, err := f.workflow.PlaceOrder(ctx, 0, lines(a.ID, 1))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	guest := f.user(t, "guest@example.com")
	guestFlow := NewWorkflow(memory.NewUnitOfWork(f.store), WithGuestUser(guest.ID), WithWorkflowLogger(logrus.NewEntry(logrus.New())))

	order, err := guestFlow.PlaceOrder(ctx, 0, lines(a.ID, 1))
	require.NoError(t, err)
	assert.Equal(t, guest.ID, order.UserID)
}

func TestPlaceOrder_EnqueuesOrderCreated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	a := f.product(t, "A", "10.00", 5)

	order, err := f.workflow.PlaceOrder(ctx, u.ID, lines(a.ID, 1))
	require.NoError(t, err)

	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventOrderCreated, pending[0].EventType)
	assert.Equal(t, domain.AggregateOrder, pending[0].AggregateType)
	assert.Equal(t, strconv.FormatInt(order.ID, 10), pending[0].AggregateID)

	var event domain.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(pending[0].Payload, &event))
	assert.Equal(t, order.ID, event.OrderID)
	assert.Equal(t, u.ID, event.UserID)
	assert.Equal(t, "pending", event.Status)
	assert.True(t, event.TotalAmount.Equal(decimal.NewFromInt(10)))
	require.Len(t, event.Items, 1)
	assert.Equal(t, "A", event.Items[0].SKU)
	assert.Equal(t, 1, event.Items[0].Quantity)
}

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@example.com")
	a := f.product(t, "A", "10.00", 1)

	const workers = 16
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.workflow.PlaceOrder(ctx, u.ID, lines(a.ID, 1))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrStockInsufficient):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(workers-1), rejected.Load())
	assert.Equal(t, 0, f.stock(t, a.ID))
}

func TestPlaceOrder_UnexpectedFailureIsLoggedAndWrapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "A", "10.00", 5)

	// Пользователя с таким id нет: хранилище отвергает заказ.
	_, err := f.workflow.PlaceOrder(ctx, 404, lines(a.ID, 1))
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Equal(t, 5, f.stock(t, a.ID))

	entry := f.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Order creation failed", entry.Message)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, int64(404), entry.Data["user_id"])
}
