package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/config"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type options struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

type offsetReader interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

// replayer перекладывает сообщения из DLQ обратно в основной топик событий.
type replayer struct {
	opts      options
	offsets   offsetReader
	source    partitionSource
	publisher domain.OutboxPublisher
	logger    *log.Entry
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "dlq-replay")

	cfg, err := config.Load(".env")
	if err != nil {
		// Validate требует session_secret, replay он не нужен.
		cfg = config.Default()
	}

	opts, err := parseOptions(os.Args[1:], cfg)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseOptions(args []string, cfg config.Config) (options, error) {
	opts := options{}
	var brokersRaw string

	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.StringVar(&brokersRaw, "brokers", cfg.KafkaBrokers, "Kafka brokers as comma-separated list (fallback: "+config.EnvPrefix+"_KAFKA_BROKERS)")
	fs.StringVar(&opts.sourceTopic, "source-topic", cfg.KafkaDLQTopic, "DLQ source topic")
	fs.StringVar(&opts.targetTopic, "target-topic", cfg.KafkaTopic, "target topic for replay")
	fs.IntVar(&opts.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	fs.BoolVar(&opts.execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&opts.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.brokers = config.Config{KafkaBrokers: brokersRaw}.Brokers()
	opts.sourceTopic = strings.TrimSpace(opts.sourceTopic)
	opts.targetTopic = strings.TrimSpace(opts.targetTopic)

	var errs []error
	if len(opts.brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required"))
	}
	if opts.sourceTopic == "" {
		errs = append(errs, errors.New("source-topic is required"))
	}
	if opts.targetTopic == "" {
		errs = append(errs, errors.New("target-topic is required"))
	}
	if opts.sourceTopic != "" && opts.sourceTopic == opts.targetTopic {
		errs = append(errs, errors.New("source-topic and target-topic must differ"))
	}
	if opts.limit <= 0 {
		errs = append(errs, errors.New("limit must be > 0"))
	}
	if opts.idleTimeout <= 0 {
		errs = append(errs, errors.New("idle-timeout must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return options{}, err
	}
	return opts, nil
}

func run(ctx context.Context, opts options, logger *log.Entry) error {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = "storefront-dlq-replay"
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer consumer.Close()

	r := &replayer{
		opts:    opts,
		offsets: client,
		source:  saramaSource{consumer: consumer},
		logger:  logger,
	}

	if opts.execute {
		producer, err := kafka.NewProducer(opts.brokers, kafka.WithClientID("storefront-dlq-replay"))
		if err != nil {
			return err
		}
		defer producer.Close()
		r.publisher = kafka.NewOutboxPublisher(producer, opts.targetTopic)
	}

	_, err = r.Run(ctx)
	return err
}

// Run обходит партиции DLQ по возрастанию номера, пока не наберётся limit сообщений.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats
	if r.opts.execute && r.publisher == nil {
		return total, errors.New("publisher is required in execute mode")
	}

	r.logger.WithFields(log.Fields{
		"source_topic": r.opts.sourceTopic,
		"target_topic": r.opts.targetTopic,
		"limit":        r.opts.limit,
		"execute":      r.opts.execute,
	}).Info("starting dlq replay")

	partitions, err := r.offsets.Partitions(r.opts.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.opts.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= r.opts.limit {
			break
		}
		stats, err := r.replayPartition(ctx, partition, r.opts.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if r.opts.execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")

	return total, nil
}

func (r *replayer) replayPartition(ctx context.Context, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.offsets.GetOffset(r.opts.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.opts.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.opts.fromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.source.ConsumePartition(r.opts.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.opts.idleTimeout)
	defer idle.Stop()

	errs := pc.Errors()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.opts.idleTimeout)

			stats.processed++
			if err := r.replayOne(msg); err != nil {
				if errors.Is(err, errUnsupportedMessage) {
					stats.skipped++
					r.logger.WithError(err).WithFields(log.Fields{
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Warn("skip unsupported dlq message")
					continue
				}
				return stats, err
			}
			stats.replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

var errUnsupportedMessage = errors.New("unsupported dlq message")

func (r *replayer) replayOne(msg *sarama.ConsumerMessage) error {
	original, err := decodeDeadLetter(msg.Value)
	if err != nil {
		return err
	}

	if !r.opts.execute {
		r.logger.WithFields(log.Fields{
			"partition":  msg.Partition,
			"offset":     msg.Offset,
			"outbox_id":  original.ID,
			"event_type": original.EventType,
		}).Info("dlq replay candidate")
		return nil
	}

	if err := r.publisher.Publish(original); err != nil {
		return fmt.Errorf("publish replay message %s: %w", original.ID, err)
	}
	return nil
}

// decodeDeadLetter разбирает конверт DLQ и восстанавливает исходное outbox-сообщение.
func decodeDeadLetter(raw []byte) (domain.OutboxMessage, error) {
	var envelope kafka.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("%w: decode envelope: %v", errUnsupportedMessage, err)
	}
	if len(envelope.Payload) == 0 {
		return domain.OutboxMessage{}, fmt.Errorf("%w: empty envelope payload", errUnsupportedMessage)
	}

	var letter outbox.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("%w: decode dead letter: %v", errUnsupportedMessage, err)
	}
	original, err := letter.Message()
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("%w: %v", errUnsupportedMessage, err)
	}
	return original, nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
