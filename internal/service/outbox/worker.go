// Package outbox доставляет события из transactional outbox во внешний брокер.
package outbox

import (
	"context"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// Результаты попыток для метрики storefront_outbox_publish_attempts_total.
const (
	resultSent      = "sent"
	resultRetry     = "retry_error"
	resultFailed    = "failed"
	resultDLQFailed = "dlq_failed"
)

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher включает отправку в DLQ после исчерпания попыток.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithRetryBaseDelay задаёт задержку перед второй попыткой; дальше она удваивается.
// Ноль отключает паузы между попытками.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.backoff = backoff{base: max(delay, 0)} }
}

// Worker периодически забирает pending-сообщения и публикует их.
// Сообщение, не доставленное за maxAttempts попыток, помечается failed
// и, если настроен DLQ, отправляется туда в виде DeadLetter.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	metrics   *metrics.OutboxMetrics
	logger    *log.Entry
	now       func() time.Time

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	backoff      backoff
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:         repo,
		publisher:    publisher,
		logger:       log.WithField("component", "outbox-worker"),
		now:          time.Now,
		pollInterval: defaultPollInterval,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		backoff:      backoff{base: defaultRetryBaseDelay},
	}
	for _, option := range options {
		option(w)
	}
	if w.metrics == nil {
		w.metrics = metrics.NewOutboxMetrics()
	}
	return w
}

// Run опрашивает outbox до отмены ctx и возвращает nil.
func (w *Worker) Run(ctx context.Context) error {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return nil
	}

	w.logger.WithFields(log.Fields{
		"poll_interval": w.pollInterval.String(),
		"batch_size":    w.batchSize,
	}).Info("outbox worker started")
	defer w.logger.Info("outbox worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessOnce обрабатывает один батч и возвращает число доставленных сообщений.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.observeBacklog()

	batch, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("outbox pull failed")
		return 0
	}

	delivered := 0
	for _, event := range batch {
		if ctx.Err() != nil {
			break
		}
		if w.deliver(ctx, event) {
			delivered++
		}
	}
	return delivered
}

// deliver публикует event и фиксирует исход в репозитории.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) bool {
	entry := w.logger.WithFields(log.Fields{
		"outbox_id":  event.ID,
		"event_type": event.EventType,
	})

	err := w.publishWithRetry(ctx, event)
	if err == nil {
		if markErr := w.repo.MarkSent(event.ID); markErr != nil {
			entry.WithError(markErr).Warn("outbox mark sent failed")
			return false
		}
		return true
	}
	if ctx.Err() != nil {
		// сообщение остаётся pending и будет взято после рестарта
		return false
	}

	entry.WithError(err).Error("outbox publish exhausted retries")
	w.metrics.RecordAttempt(resultFailed)
	if dlqErr := w.sendToDLQ(event, err); dlqErr != nil {
		entry.WithError(dlqErr).Warn("outbox dlq publish failed")
		w.metrics.RecordAttempt(resultDLQFailed)
	}
	if markErr := w.repo.MarkFailed(event.ID); markErr != nil {
		entry.WithError(markErr).Warn("outbox mark failed failed")
	}
	return false
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = w.publisher.Publish(event); err == nil {
			w.metrics.RecordAttempt(resultSent)
			return nil
		}
		w.metrics.RecordAttempt(resultRetry)

		if attempt == w.maxAttempts {
			return fmt.Errorf("publish failed after %d attempts: %w", attempt, err)
		}
		if waitErr := sleepContext(ctx, w.backoff.delay(attempt)); waitErr != nil {
			return waitErr
		}
	}
}

func (w *Worker) sendToDLQ(event domain.OutboxMessage, cause error) error {
	if w.dlq == nil {
		return nil
	}
	msg, err := newDeadLetter(event, cause, w.now()).Envelope()
	if err != nil {
		return err
	}
	return w.dlq.Publish(msg)
}

func (w *Worker) observeBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("outbox stats failed")
		return
	}
	w.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt, w.now().UTC())
}

// backoff — экспоненциальная задержка: base, 2*base, 4*base...
type backoff struct {
	base time.Duration
}

func (b backoff) delay(attempt int) time.Duration {
	if b.base <= 0 || attempt < 1 {
		return 0
	}
	shift := attempt - 1
	if shift >= 62 || b.base > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return b.base << shift
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
