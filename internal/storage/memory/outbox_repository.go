package memory

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	seq        int64
	createdAt  time.Time
	updatedAt  time.Time
}

// OutboxRepository — in-memory transactional outbox поверх общего Store.
type OutboxRepository struct {
	store *Store
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository(store *Store) *OutboxRepository {
	return &OutboxRepository{store: store}
}

// Enqueue сохраняет событие со статусом `pending` вне транзакции заказа.
func (r *OutboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return r.store.enqueueOutbox(msg), nil
}

// enqueueOutbox вызывается под s.mu.
func (s *Store) enqueueOutbox(msg domain.OutboxMessage) domain.OutboxMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := s.now()
	s.outboxSeq++
	s.outbox[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		seq:       s.outboxSeq,
		createdAt: now,
		updatedAt: now,
	}
	return msg
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке записи.
func (r *OutboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	pending := r.pendingLocked()
	if len(pending) > limit {
		pending = pending[:limit]
	}
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats() (domain.OutboxStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	pending := r.pendingLocked()
	stats := domain.OutboxStats{PendingCount: len(pending)}
	if len(pending) > 0 {
		stats.OldestPendingAt = pending[0].createdAt
	}
	return stats, nil
}

func (r *OutboxRepository) pendingLocked() []*outboxRecord {
	pending := make([]*outboxRecord, 0)
	for _, rec := range r.store.outbox {
		if rec.status == outboxStatusPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	return pending
}

// MarkSent обновляет статус события после успешной публикации.
func (r *OutboxRepository) MarkSent(id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *OutboxRepository) MarkFailed(id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *OutboxRepository) mark(id, status string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	record, ok := r.store.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = r.store.now()
	return nil
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	pending := r.pendingLocked()
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
