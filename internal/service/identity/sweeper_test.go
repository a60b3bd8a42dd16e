package identity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

type countingStore struct {
	calls   atomic.Int32
	removed int
}

func (s *countingStore) Sweep() int {
	s.calls.Add(1)
	return s.removed
}

func TestSweeperSweepOnceRecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	store := &countingStore{removed: 3}
	sweeper := NewSweeper(store, WithSweeperMetrics(metrics.NewSessionMetricsWithRegisterer(registry)))

	assert.Equal(t, 3, sweeper.SweepOnce())
	assert.Equal(t, 3, sweeper.SweepOnce())

	families, err := registry.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["storefront_session_sweep_runs_total"])
	assert.Equal(t, 6.0, values["storefront_session_swept_total"])
	assert.Equal(t, 3.0, values["storefront_session_sweep_last_removed"])
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	store := &countingStore{}
	sweeper := NewSweeper(store, WithSweepInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	require.Eventually(t, func() bool { return store.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperWithoutStoreReturnsImmediately(t *testing.T) {
	assert.NoError(t, NewSweeper(nil).Run(context.Background()))
}
