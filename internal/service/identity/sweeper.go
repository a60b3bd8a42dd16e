package identity

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// DefaultSweepInterval — период очистки истёкших сессий.
const DefaultSweepInterval = time.Minute

// ExpiredSessionStore умеет удалять истёкшие сессии.
// Хранилищам с собственным TTL (Redis) он не нужен.
type ExpiredSessionStore interface {
	Sweep() int
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval задаёт интервал между проходами.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweeperLogger задаёт logger.
func WithSweeperLogger(logger *log.Entry) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweeperMetrics задаёт метрики очистки.
func WithSweeperMetrics(m *metrics.SessionMetrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// Sweeper периодически удаляет истёкшие сессии.
type Sweeper struct {
	store    ExpiredSessionStore
	interval time.Duration
	logger   *log.Entry
	metrics  *metrics.SessionMetrics
}

// NewSweeper создаёт воркер очистки сессий.
func NewSweeper(store ExpiredSessionStore, options ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		interval: DefaultSweepInterval,
		logger:   log.WithField("component", "session-sweeper"),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Run выполняет очистку до отмены ctx. Всегда возвращает nil, чтобы жить в errgroup.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.store == nil {
		s.logger.Debug("session sweeper is disabled: store is nil")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce выполняет один проход и возвращает число удалённых сессий.
func (s *Sweeper) SweepOnce() int {
	removed := s.store.Sweep()
	s.metrics.RecordSweep(removed)
	if removed > 0 {
		s.logger.WithField("removed", removed).Debug("expired sessions swept")
	}
	return removed
}
