package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	appconfig "github.com/vladislavdragonenkov/storefront/internal/config"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/identity"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

// newStorefront поднимает API на memory-хранилище с одним пользователем и товаром.
func newStorefront(t *testing.T, stock int) (*httptest.Server, *app.Services, int64) {
	t.Helper()

	cfg := appconfig.Default()
	cfg.SessionSecret = "loadtest-secret-0123456789"

	deps, err := app.NewDependencies(context.Background(), cfg, log.WithField("component", "loadtest-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	services, err := app.NewServices(cfg, deps)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = services.Identity.Register(ctx, identity.RegisterInput{
		Name:                 "Load",
		Email:                "load@example.com",
		Password:             "secret123",
		PasswordConfirmation: "secret123",
	})
	require.NoError(t, err)

	price := decimal.RequireFromString("10.50")
	product, err := services.Catalog.Create(ctx, catalog.ProductInput{Name: "Widget", SKU: "LOAD-1", Price: &price, Stock: &stock})
	require.NoError(t, err)

	server := httptest.NewServer(httpapi.NewRouter(
		httpapi.NewHandler(services.Catalog, services.Identity, services.Workflow, services.Orders),
		httpapi.RouterOptions{},
	))
	t.Cleanup(server.Close)

	return server, services, product.ID
}

func baseConfig(url string, productID int64) config {
	return config{
		baseURL:     url,
		total:       20,
		concurrency: 4,
		timeout:     5 * time.Second,
		mode:        modeMixed,
		email:       "load@example.com",
		password:    "secret123",
		productID:   productID,
		quantity:    1,
	}
}

func TestRunMixedAgainstStorefront(t *testing.T) {
	server, services, productID := newStorefront(t, 100)

	result, err := run(context.Background(), server.Client(), baseConfig(server.URL, productID))
	require.NoError(t, err)

	assert.Equal(t, int64(20), result.TotalScenarios)
	assert.Zero(t, result.FailedScenarios)
	assert.Equal(t, int64(5), result.Steps["PlaceOrder"].Calls)
	assert.Equal(t, int64(5), result.Steps["PlaceOrder"].Statuses["201"])
	assert.Equal(t, int64(15), result.Steps["ListProducts"].Calls)

	product, err := services.Catalog.Get(context.Background(), productID)
	require.NoError(t, err)
	assert.Equal(t, 95, product.Stock)
}

func TestRunCheckoutReportsStockFailures(t *testing.T) {
	server, _, productID := newStorefront(t, 2)

	cfg := baseConfig(server.URL, productID)
	cfg.mode = modeCheckout
	cfg.total = 4

	result, err := run(context.Background(), server.Client(), cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.SuccessScenarios)
	assert.Equal(t, int64(2), result.FailedScenarios)
	assert.Equal(t, int64(2), result.Steps["PlaceOrder"].Statuses["422"])
	assert.InDelta(t, 0.5, result.ErrorRate, 1e-9)
}

func TestRunFailsOnBadCredentials(t *testing.T) {
	server, _, productID := newStorefront(t, 1)

	cfg := baseConfig(server.URL, productID)
	cfg.password = "wrong-password"

	_, err := run(context.Background(), server.Client(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=401")
}

func TestRunBrowseSkipsLogin(t *testing.T) {
	server, _, _ := newStorefront(t, 1)

	cfg := baseConfig(server.URL, 0)
	cfg.mode = modeBrowse
	cfg.password = ""
	cfg.total = 6

	result, err := run(context.Background(), server.Client(), cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.SuccessScenarios)
	_, placed := result.Steps["PlaceOrder"]
	assert.False(t, placed)
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{"-base-url=http://api:8080/", "-mode=checkout", "-total=10", "-duration=1s"})
	require.NoError(t, err)
	assert.Equal(t, "http://api:8080", cfg.baseURL)
	assert.Equal(t, modeCheckout, cfg.mode)
	assert.True(t, cfg.totalSet)
	assert.Equal(t, "duration:1s,max-total:10", runTarget(cfg))

	cfg, err = parseConfig(nil)
	require.NoError(t, err)
	assert.False(t, cfg.totalSet)
	assert.Equal(t, "count:400", runTarget(cfg))

	cases := map[string][]string{
		"unsupported mode":       {"-mode=chaos"},
		"concurrency must be":    {"-concurrency=0"},
		"total must be > 0":      {"-total=0"},
		"product-id must be > 0": {"-product-id=0"},
		"timeout must be > 0":    {"-timeout=0s"},
	}
	for want, args := range cases {
		_, err := parseConfig(args)
		require.Error(t, err, want)
		assert.Contains(t, err.Error(), want)
	}
}

func TestDispatchJobsDuration(t *testing.T) {
	jobs := make(chan int)
	done := make(chan int)
	go func() {
		count := 0
		for range jobs {
			count++
		}
		done <- count
	}()

	dispatchJobs(context.Background(), jobs, config{duration: 20 * time.Millisecond, total: 3, totalSet: true})
	assert.Equal(t, 3, <-done)
}

func TestPercentileAndSummary(t *testing.T) {
	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))
	assert.InDelta(t, 2.5, percentile([]float64{1, 2, 3, 4}, 50), 1e-9)

	summary := buildLatencySummary([]float64{4, 1, 3, 2})
	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 4.0, summary.Max)
	assert.Equal(t, 2.5, summary.Avg)
	assert.Zero(t, ratio(1, 0))
}

func TestWriteJSONReportAndPrint(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	result := report{TotalScenarios: 2, SuccessScenarios: 2, Steps: map[string]stepReport{"PlaceOrder": {Calls: 2, Success: 2}}}
	require.NoError(t, writeJSONReport("report.json", result))

	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)
	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, int64(2), decoded.TotalScenarios)

	assert.Error(t, writeJSONReport("../escape.json", result))
	assert.Error(t, writeJSONReport(".", result))

	var out bytes.Buffer
	printReport(&out, result, config{mode: modeCheckout, total: 2})
	assert.True(t, strings.Contains(out.String(), "PlaceOrder: calls=2"))
}
