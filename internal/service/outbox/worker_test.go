package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

type fakeOutbox struct {
	mu      sync.Mutex
	pending []domain.OutboxMessage
	sent    []string
	failed  []string
	pullErr error
	markErr error
}

func (f *fakeOutbox) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, msg)
	return msg, nil
}

func (f *fakeOutbox) PullPending(limit int) ([]domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	n := len(f.pending)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]domain.OutboxMessage(nil), f.pending[:n]...), nil
}

func (f *fakeOutbox) Stats() (domain.OutboxStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.OutboxStats{PendingCount: len(f.pending)}, nil
}

func (f *fakeOutbox) MarkSent(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.sent = append(f.sent, id)
	f.drop(id)
	return nil
}

func (f *fakeOutbox) MarkFailed(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	f.drop(id)
	return nil
}

func (f *fakeOutbox) drop(id string) {
	for i, msg := range f.pending {
		if msg.ID == id {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return
		}
	}
}

// scriptedPublisher возвращает ошибки из script по очереди, затем fallback.
type scriptedPublisher struct {
	mu        sync.Mutex
	script    []error
	fallback  error
	published []domain.OutboxMessage
	attempts  int
}

func (p *scriptedPublisher) Publish(msg domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	err := p.fallback
	if len(p.script) > 0 {
		err, p.script = p.script[0], p.script[1:]
	}
	if err == nil {
		p.published = append(p.published, msg)
	}
	return err
}

func (p *scriptedPublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

var (
	_ domain.OutboxRepository = (*fakeOutbox)(nil)
	_ domain.OutboxPublisher  = (*scriptedPublisher)(nil)
)

func orderEvent(id string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateOrder,
		AggregateID:   "ord-" + id,
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":"ord-` + id + `"}`),
	}
}

func newTestWorker(repo domain.OutboxRepository, pub domain.OutboxPublisher, opts ...Option) (*Worker, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	base := []Option{
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(reg)),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	}
	return NewWorker(repo, pub, append(base, opts...)...), reg
}

func attempts(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "storefront_outbox_publish_attempts_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestWorkerProcessOnce(t *testing.T) {
	tests := []struct {
		name       string
		script     []error
		fallback   error
		wantSent   []string
		wantFailed []string
		wantCalls  int
	}{
		{
			name:      "first attempt succeeds",
			wantSent:  []string{"1"},
			wantCalls: 1,
		},
		{
			name:      "succeeds on third attempt",
			script:    []error{errors.New("broker down"), errors.New("broker down")},
			wantSent:  []string{"1"},
			wantCalls: 3,
		},
		{
			name:       "exhausts attempts",
			fallback:   errors.New("broker down"),
			wantFailed: []string{"1"},
			wantCalls:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeOutbox{pending: []domain.OutboxMessage{orderEvent("1")}}
			pub := &scriptedPublisher{script: tt.script, fallback: tt.fallback}
			worker, reg := newTestWorker(repo, pub)

			delivered := worker.ProcessOnce(context.Background())

			assert.Equal(t, len(tt.wantSent), delivered)
			assert.Equal(t, tt.wantSent, repo.sent)
			assert.Equal(t, tt.wantFailed, repo.failed)
			assert.Equal(t, tt.wantCalls, pub.calls())
			assert.Equal(t, float64(tt.wantCalls-len(tt.wantSent)), attempts(t, reg, resultRetry))
			assert.Equal(t, float64(len(tt.wantFailed)), attempts(t, reg, resultFailed))
		})
	}
}

func TestWorkerSendsDeadLetter(t *testing.T) {
	repo := &fakeOutbox{pending: []domain.OutboxMessage{orderEvent("2")}}
	dlq := &scriptedPublisher{}
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	worker, _ := newTestWorker(repo, &scriptedPublisher{fallback: errors.New("publish failed")}, WithDLQPublisher(dlq))
	worker.now = func() time.Time { return at }
	worker.ProcessOnce(context.Background())

	require.Len(t, dlq.published, 1)
	envelope := dlq.published[0]
	assert.Equal(t, "2", envelope.ID)
	assert.Equal(t, "ord-2", envelope.AggregateID)

	var letter DeadLetter
	require.NoError(t, json.Unmarshal(envelope.Payload, &letter))
	assert.Contains(t, letter.PublishError, "publish failed")
	assert.True(t, letter.DLQPublishedAt.Equal(at))

	original, err := letter.Message()
	require.NoError(t, err)
	assert.Equal(t, orderEvent("2"), original)
	assert.Equal(t, []string{"2"}, repo.failed)
}

func TestWorkerCountsDLQFailure(t *testing.T) {
	repo := &fakeOutbox{pending: []domain.OutboxMessage{orderEvent("3")}}
	dlq := &scriptedPublisher{fallback: errors.New("dlq down")}

	worker, reg := newTestWorker(repo, &scriptedPublisher{fallback: errors.New("down")},
		WithDLQPublisher(dlq), WithMaxAttempts(1))
	worker.ProcessOnce(context.Background())

	assert.Equal(t, 1.0, attempts(t, reg, resultDLQFailed))
	assert.Equal(t, []string{"3"}, repo.failed, "message is marked failed even if dlq is down")
}

func TestWorkerProcessOnceEdgeCases(t *testing.T) {
	t.Run("respects batch size", func(t *testing.T) {
		repo := &fakeOutbox{pending: []domain.OutboxMessage{orderEvent("a"), orderEvent("b"), orderEvent("c")}}
		worker, _ := newTestWorker(repo, &scriptedPublisher{}, WithBatchSize(2))

		assert.Equal(t, 2, worker.ProcessOnce(context.Background()))
		assert.Equal(t, 1, worker.ProcessOnce(context.Background()))
		assert.Equal(t, []string{"a", "b", "c"}, repo.sent)
	})

	t.Run("pull error", func(t *testing.T) {
		worker, _ := newTestWorker(&fakeOutbox{pullErr: errors.New("db down")}, &scriptedPublisher{})
		assert.Zero(t, worker.ProcessOnce(context.Background()))
	})

	t.Run("mark sent error is not counted", func(t *testing.T) {
		repo := &fakeOutbox{pending: []domain.OutboxMessage{orderEvent("d")}, markErr: errors.New("db down")}
		worker, _ := newTestWorker(repo, &scriptedPublisher{})
		assert.Zero(t, worker.ProcessOnce(context.Background()))
	})

	t.Run("cancelled context leaves message pending", func(t *testing.T) {
		repo := &fakeOutbox{pending: []domain.OutboxMessage{orderEvent("e")}}
		worker, _ := newTestWorker(repo, &scriptedPublisher{fallback: errors.New("down")},
			WithRetryBaseDelay(time.Hour))

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)

		assert.Zero(t, worker.ProcessOnce(ctx))
		assert.Empty(t, repo.failed)
		assert.Len(t, repo.pending, 1)
	})
}

func TestWorkerRun(t *testing.T) {
	t.Run("delivers and stops on cancel", func(t *testing.T) {
		repo := &fakeOutbox{pending: []domain.OutboxMessage{orderEvent("r")}}
		pub := &scriptedPublisher{}
		worker, _ := newTestWorker(repo, pub, WithPollInterval(5*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- worker.Run(ctx) }()

		require.Eventually(t, func() bool { return pub.calls() == 1 }, time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("worker did not stop after cancel")
		}
	})

	t.Run("disabled without publisher", func(t *testing.T) {
		worker, _ := newTestWorker(&fakeOutbox{}, nil)
		require.NoError(t, worker.Run(context.Background()))
	})
}

func TestBackoffDelay(t *testing.T) {
	b := backoff{base: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, b.delay(1))
	assert.Equal(t, 20*time.Millisecond, b.delay(2))
	assert.Equal(t, 40*time.Millisecond, b.delay(3))
	assert.Equal(t, time.Duration(1<<63-1), b.delay(200))
	assert.Zero(t, backoff{}.delay(3))
}

func TestWorkerOptionsIgnoreInvalidValues(t *testing.T) {
	worker, _ := newTestWorker(&fakeOutbox{}, &scriptedPublisher{},
		WithPollInterval(-1), WithBatchSize(0), WithMaxAttempts(-2), WithLogger(nil))

	assert.Equal(t, defaultPollInterval, worker.pollInterval)
	assert.Equal(t, defaultBatchSize, worker.batchSize)
	assert.Equal(t, 3, worker.maxAttempts)
	assert.NotNil(t, worker.logger)
}
