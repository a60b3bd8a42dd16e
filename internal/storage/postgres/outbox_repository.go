package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"

	defaultOutboxBatch = 100
)

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository возвращает outbox поверх таблицы outbox_messages.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

// Enqueue пишет событие отдельной командой. При оформлении заказа
// событие попадает в outbox через OrderTx.EnqueueOutbox в той же транзакции.
func (r *outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return insertOutbox(ctx, r.db, msg)
}

func insertOutbox(ctx context.Context, q queryer, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	payload := string(msg.Payload)
	if payload == "" {
		payload = "{}"
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO outbox_messages (id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $7)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, payload, outboxPending, time.Now().UTC())
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("insert outbox %s: %w", msg.EventType, err)
	}
	return msg, nil
}

// PullPending читает самые старые pending-сообщения, не меняя их статус.
func (r *outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload::text
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2
	`, outboxPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox: %w", err)
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		msg, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		batch = append(batch, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pending outbox: %w", err)
	}
	return batch, nil
}

func scanOutbox(rows *sql.Rows) (domain.OutboxMessage, error) {
	var (
		msg     domain.OutboxMessage
		payload string
	)
	if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &payload); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("scan outbox: %w", err)
	}
	msg.Payload = []byte(payload)
	return msg, nil
}

func (r *outboxRepository) Stats() (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = $1
	`, outboxPending).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox backlog: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(id string) error   { return r.setStatus(id, outboxSent) }
func (r *outboxRepository) MarkFailed(id string) error { return r.setStatus(id, outboxFailed) }

// setStatus возвращает domain.ErrOutboxPublish, если сообщения нет.
func (r *outboxRepository) setStatus(id, status string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var updated string
	err := r.db.QueryRowContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`, id, status).Scan(&updated)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("outbox %s: %w", id, domain.ErrOutboxPublish)
	case err != nil:
		return fmt.Errorf("set outbox %s to %s: %w", id, status, err)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
