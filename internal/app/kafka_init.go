package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/config"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const kafkaClientID = "storefront"

// kafkaPublishers — паблишеры событий и DLQ поверх одного producer'а.
type kafkaPublishers struct {
	events   *kafka.OutboxTopicPublisher
	dlq      *kafka.OutboxTopicPublisher
	producer *kafka.Producer
	logger   *log.Entry
}

// connectKafka возвращает nil без ошибки, если брокеры не настроены.
func connectKafka(cfg config.Config, logger *log.Entry) (*kafkaPublishers, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, kafka.WithClientID(kafkaClientID))
	if err != nil {
		return nil, err
	}

	kp := &kafkaPublishers{
		events:   kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		producer: producer,
		logger:   logger,
	}
	if cfg.KafkaDLQTopic != "" {
		kp.dlq = kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)
	}

	fields := log.Fields{"brokers": brokers, "topic": kp.events.Topic()}
	if kp.dlq != nil {
		fields["dlq_topic"] = kp.dlq.Topic()
	}
	logger.WithFields(fields).Info("kafka producer connected")
	return kp, nil
}

// Close не возвращает ошибку: сбой закрытия producer'а только логируется.
func (kp *kafkaPublishers) Close() error {
	if kp == nil {
		return nil
	}
	if err := kp.producer.Close(); err != nil {
		kp.logger.WithError(err).Warn("kafka producer close failed")
		return nil
	}
	kp.logger.Info("kafka producer closed")
	return nil
}
