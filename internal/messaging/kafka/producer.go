package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const defaultClientID = "storefront"

var errProducerNotInitialized = errors.New("kafka producer is not initialized")

// Message — одно сообщение для отправки. Value сериализуется в JSON.
type Message struct {
	Topic   string
	Key     string
	Value   any
	Headers map[string]string
}

// ProducerOption настраивает sarama-конфиг producer'а.
type ProducerOption func(*sarama.Config)

// WithClientID задаёт client.id, видимый на стороне брокера.
func WithClientID(id string) ProducerOption {
	return func(c *sarama.Config) {
		if id != "" {
			c.ClientID = id
		}
	}
}

// WithRetryMax ограничивает число повторов отправки.
func WithRetryMax(n int) ProducerOption {
	return func(c *sarama.Config) {
		if n >= 0 {
			c.Producer.Retry.Max = n
		}
	}
}

// Producer — синхронный producer с гарантией записи на все in-sync реплики.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

func producerConfig(opts ...ProducerOption) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = defaultClientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	// idempotent producer требует не больше одного запроса в полёте
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewProducer подключается к brokers.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	sp, err := sarama.NewSyncProducer(brokers, producerConfig(opts...))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(sp), nil
}

func newProducer(sp sarama.SyncProducer) *Producer {
	return &Producer{sync: sp, logger: log.WithField("component", "kafka-producer")}
}

// Send сериализует msg.Value и дожидается подтверждения брокера.
func (p *Producer) Send(msg Message) error {
	if p == nil || p.sync == nil {
		return errProducerNotInitialized
	}
	if msg.Topic == "" {
		return errors.New("kafka topic is required")
	}

	body, err := json.Marshal(msg.Value)
	if err != nil {
		return fmt.Errorf("encode kafka message: %w", err)
	}

	record := &sarama.ProducerMessage{
		Topic:     msg.Topic,
		Key:       sarama.StringEncoder(msg.Key),
		Value:     sarama.ByteEncoder(body),
		Headers:   recordHeaders(msg.Headers),
		Timestamp: time.Now(),
	}

	fields := log.Fields{"topic": msg.Topic, "key": msg.Key}
	partition, offset, err := p.sync.SendMessage(record)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", msg.Topic, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("kafka message sent")
	return nil
}

// recordHeaders упорядочивает заголовки по ключу.
func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]sarama.RecordHeader, 0, len(keys))
	for _, k := range keys {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(headers[k])})
	}
	return out
}

func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
