package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errIncompleteDeadLetter = errors.New("incomplete dead letter")

// DeadLetter — тело сообщения в DLQ: исходное событие и причина, по которой его не доставили.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

func newDeadLetter(event domain.OutboxMessage, cause error, at time.Time) DeadLetter {
	letter := DeadLetter{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		Payload:        json.RawMessage(event.Payload),
		DLQPublishedAt: at.UTC(),
	}
	if cause != nil {
		letter.PublishError = cause.Error()
	}
	return letter
}

// Envelope упаковывает письмо в outbox-сообщение для DLQ-паблишера.
func (d DeadLetter) Envelope() (domain.OutboxMessage, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("encode dead letter %s: %w", d.OutboxID, err)
	}
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       body,
	}, nil
}

// Message восстанавливает исходное событие для повторной публикации.
func (d DeadLetter) Message() (domain.OutboxMessage, error) {
	switch {
	case d.OutboxID == "":
		return domain.OutboxMessage{}, fmt.Errorf("%w: outbox_id is empty", errIncompleteDeadLetter)
	case d.EventType == "":
		return domain.OutboxMessage{}, fmt.Errorf("%w: event_type is empty", errIncompleteDeadLetter)
	case len(d.Payload) == 0:
		return domain.OutboxMessage{}, fmt.Errorf("%w: %s has no payload", errIncompleteDeadLetter, d.OutboxID)
	}
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}, nil
}
