package outbox

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// LogPublisher пишет события в лог. Используется, когда брокер не настроен,
// чтобы outbox не копил backlog в локальной разработке.
type LogPublisher struct {
	logger *log.Entry
}

// NewLogPublisher создаёт publisher поверх logrus.
func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log-publisher")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":      event.ID,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"event_type":     event.EventType,
		"payload":        string(event.Payload),
	}).Info("outbox event published")
	return nil
}

var _ domain.OutboxPublisher = (*LogPublisher)(nil)
