package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OutboxTopicPublisher отправляет outbox-сообщения в один топик.
// События одного заказа имеют общий ключ и попадают в одну партицию.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт паблишер; пустой topic заменяется на TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, now: time.Now}
}

func (p *OutboxTopicPublisher) Topic() string { return p.topic }

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	return p.producer.Send(Message{
		Topic:   p.topic,
		Key:     partitionKey(event),
		Value:   p.envelope(event),
		Headers: eventHeaders(event),
	})
}

func (p *OutboxTopicPublisher) envelope(event domain.OutboxMessage) Envelope {
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   p.now().UTC(),
	}
}

func partitionKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

func eventHeaders(event domain.OutboxMessage) map[string]string {
	return map[string]string{
		HeaderEventType:     event.EventType,
		HeaderOutboxID:      event.ID,
		HeaderAggregateType: event.AggregateType,
	}
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
