// Утилита переигрывает события checkout из DLQ обратно в основной топик.
// В DLQ попадают конверты outbox worker'а; переигрываются только события,
// которые не ушли из-за ошибки публикации. Poison-сообщения (неизвестный
// тип события, пустой payload) остаются в DLQ навсегда.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	session     string
	eventTypes  map[string]struct{}
	idleTimeout time.Duration
}

// dlqEnvelope — конверт, который outbox worker пишет в DLQ.
type dlqEnvelope struct {
	OutboxID      string          `json:"outbox_id"`
	SessionID     string          `json:"session_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Reason        string          `json:"reason"`
	PublishError  string          `json:"publish_error"`
}

// Причины пропуска DLQ-сообщения при переигрывании.
type skipReason string

const (
	skipNone           skipReason = ""
	skipUndecodable    skipReason = "undecodable"
	skipPoison         skipReason = "poison"
	skipUnknownEvent   skipReason = "unknown_event_type"
	skipEmptyPayload   skipReason = "empty_payload"
	skipSessionFilter  skipReason = "session_filter"
	skipEventFilter    skipReason = "event_type_filter"
	skipMissingSession skipReason = "missing_session_id"
)

// replayableEventTypes — события жизненного цикла checkout, которые вообще
// имеет смысл возвращать в основной топик.
var replayableEventTypes = map[string]struct{}{
	string(kafka.EventTypeCheckoutStarted):   {},
	string(kafka.EventTypeCheckoutSucceeded): {},
	string(kafka.EventTypeCheckoutFailed):    {},
	string(kafka.EventTypeCheckoutAbandoned): {},
	string(kafka.EventTypeOrderPlaced):       {},
	string(kafka.EventTypeCartCleared):       {},
}

// evaluate решает судьбу одного DLQ-сообщения: вернуть кандидата на
// переигрывание или причину пропуска. Чистая функция, вся доменная логика
// переигрывания сосредоточена здесь.
func evaluate(cfg config, value []byte) (domain.OutboxMessage, skipReason) {
	var envelope dlqEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return domain.OutboxMessage{}, skipUndecodable
	}

	// Конверты с причиной, отличной от publish_failed, worker отбраковал
	// осознанно; их переигрывание снова уронит его на валидации.
	if envelope.Reason != "" && envelope.Reason != "publish_failed" {
		return domain.OutboxMessage{}, skipPoison
	}
	if _, ok := replayableEventTypes[envelope.EventType]; !ok {
		return domain.OutboxMessage{}, skipUnknownEvent
	}
	if len(envelope.Payload) == 0 {
		return domain.OutboxMessage{}, skipEmptyPayload
	}
	if envelope.SessionID == "" {
		return domain.OutboxMessage{}, skipMissingSession
	}
	if cfg.session != "" && envelope.SessionID != cfg.session {
		return domain.OutboxMessage{}, skipSessionFilter
	}
	if len(cfg.eventTypes) > 0 {
		if _, ok := cfg.eventTypes[envelope.EventType]; !ok {
			return domain.OutboxMessage{}, skipEventFilter
		}
	}

	aggregateType := envelope.AggregateType
	if aggregateType == "" {
		aggregateType = "checkout"
	}

	return domain.OutboxMessage{
		ID:            envelope.OutboxID,
		AggregateType: aggregateType,
		AggregateID:   envelope.SessionID,
		EventType:     envelope.EventType,
		Payload:       envelope.Payload,
	}, skipNone
}

// partitionReader — минимальный срез sarama.PartitionConsumer для чтения DLQ.
type partitionReader interface {
	Messages() <-chan *sarama.ConsumerMessage
	Close() error
}

// replayDeps — точки соприкосновения с Kafka, подменяемые в тестах.
type replayDeps struct {
	partitions func(topic string) ([]int32, error)
	offsets    func(topic string, partition int32, at int64) (int64, error)
	consume    func(topic string, partition int32, offset int64) (partitionReader, error)
	publish    func(msg domain.OutboxMessage) error
	close      func()
}

var connect = func(cfg config) (replayDeps, error) {
	client, err := sarama.NewClient(cfg.brokers, sarama.NewConfig())
	if err != nil {
		return replayDeps{}, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}

	deps := replayDeps{
		partitions: client.Partitions,
		offsets:    client.GetOffset,
		consume: func(topic string, partition int32, offset int64) (partitionReader, error) {
			return consumer.ConsumePartition(topic, partition, offset)
		},
		close: func() {
			_ = consumer.Close()
			_ = client.Close()
		},
	}

	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		deps.close()
		return replayDeps{}, fmt.Errorf("create kafka producer: %w", err)
	}
	publisher := kafka.NewOutboxPublisher(producer, cfg.targetTopic)
	deps.publish = publisher.Publish
	prevClose := deps.close
	deps.close = func() {
		_ = producer.Close()
		prevClose()
	}
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	deps, err := connect(cfg)
	if err != nil {
		fail("connect to kafka: %v", err)
	}
	defer deps.close()

	if err := replay(context.Background(), cfg, deps); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw    string
		eventTypesRaw string
		cfg           config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicCheckoutEvents, "target topic for replay")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.StringVar(&cfg.session, "session", "", "replay only events of this checkout session")
	flag.StringVar(&eventTypesRaw, "event-types", "", "replay only these event types (comma-separated, e.g. checkout.succeeded,order.placed)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}
	cfg.brokers = splitList(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" || strings.TrimSpace(cfg.targetTopic) == "" {
		return config{}, fmt.Errorf("source-topic and target-topic are required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	if types := splitList(eventTypesRaw); len(types) > 0 {
		cfg.eventTypes = make(map[string]struct{}, len(types))
		for _, eventType := range types {
			if _, ok := replayableEventTypes[eventType]; !ok {
				return config{}, fmt.Errorf("unknown event type %q", eventType)
			}
			cfg.eventTypes[eventType] = struct{}{}
		}
	}

	return cfg, nil
}

func splitList(raw string) []string {
	chunks := strings.Split(raw, ",")
	items := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		item := strings.TrimSpace(chunk)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

// replay проходит все партиции DLQ от старейшего offset и переигрывает
// подходящие события. Чтение останавливается на limit, конце партиции или
// idle timeout.
func replay(ctx context.Context, cfg config, deps replayDeps) error {
	if cfg.execute && deps.publish == nil {
		return fmt.Errorf("publisher is required in execute mode")
	}

	partitions, err := deps.partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("dlq topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":         mode,
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
	}).Info("starting dlq replay")

	var replayed, skipped int
	skippedBy := make(map[skipReason]int)

	for _, partition := range partitions {
		if replayed >= cfg.limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		newest, err := deps.offsets(cfg.sourceTopic, partition, sarama.OffsetNewest)
		if err != nil {
			return fmt.Errorf("get newest offset for partition %d: %w", partition, err)
		}
		oldest, err := deps.offsets(cfg.sourceTopic, partition, sarama.OffsetOldest)
		if err != nil {
			return fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
		}
		if newest <= oldest {
			continue
		}

		reader, err := deps.consume(cfg.sourceTopic, partition, oldest)
		if err != nil {
			return fmt.Errorf("consume partition %d: %w", partition, err)
		}

		err = scanPartition(ctx, cfg, reader, newest, func(msg *sarama.ConsumerMessage) (bool, error) {
			candidate, reason := evaluate(cfg, msg.Value)
			if reason != skipNone {
				skipped++
				skippedBy[reason]++
				return replayed < cfg.limit, nil
			}

			if cfg.execute {
				if err := deps.publish(candidate); err != nil {
					return false, fmt.Errorf("replay event %s: %w", candidate.ID, err)
				}
			} else {
				log.WithFields(log.Fields{
					"outbox_id":  candidate.ID,
					"session_id": candidate.AggregateID,
					"event_type": candidate.EventType,
				}).Info("dlq replay candidate")
			}
			replayed++
			return replayed < cfg.limit, nil
		})
		_ = reader.Close()
		if err != nil {
			return err
		}
	}

	fields := log.Fields{"mode": mode, "replayed": replayed, "skipped": skipped}
	for reason, count := range skippedBy {
		fields["skipped_"+string(reason)] = count
	}
	log.WithFields(fields).Info("dlq replay finished")
	return nil
}

// scanPartition читает сообщения до endOffset, тишины или остановки handler'а.
func scanPartition(
	ctx context.Context,
	cfg config,
	reader partitionReader,
	endOffset int64,
	handle func(*sarama.ConsumerMessage) (bool, error),
) error {
	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			return nil
		case msg, ok := <-reader.Messages():
			if !ok || msg == nil {
				return nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.idleTimeout)

			if msg.Offset >= endOffset {
				return nil
			}

			keep, err := handle(msg)
			if err != nil {
				return err
			}
			if !keep || msg.Offset+1 >= endOffset {
				return nil
			}
		}
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
