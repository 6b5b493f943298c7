package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// HeaderEventType проставляется на каждое checkout-событие, чтобы
// потребители могли фильтровать поток без разбора payload.
const HeaderEventType = "x-event-type"

// Producer публикует события storefront в Kafka. Ключом всегда служит
// идентификатор сессии: так все события одной checkout-сессии попадают
// в одну партицию и читаются по порядку.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// NewProducer создает синхронный producer с идемпотентной записью.
func NewProducer(brokers []string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1 // требование идемпотентного режима

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		logger:   log.WithField("component", "kafka-producer"),
	}, nil
}

// PublishCheckoutEvent публикует событие жизненного цикла checkout-сессии
// в TopicCheckoutEvents с ключом по сессии и типом события в заголовке.
func (p *Producer) PublishCheckoutEvent(event *CheckoutEvent) error {
	if event == nil || event.SessionID == "" {
		return fmt.Errorf("checkout event requires a session id")
	}

	msg, err := buildMessage(TopicCheckoutEvents, event.SessionID, event)
	if err != nil {
		return err
	}
	msg.Headers = append(msg.Headers, sarama.RecordHeader{
		Key:   []byte(HeaderEventType),
		Value: []byte(event.EventType),
	})
	return p.send(msg)
}

// PublishEvent публикует произвольный JSON-сериализуемый payload;
// используется outbox-публикатором и утилитой повторной доставки.
func (p *Producer) PublishEvent(topic string, key string, event interface{}) error {
	msg, err := buildMessage(topic, key, event)
	if err != nil {
		return err
	}
	return p.send(msg)
}

func buildMessage(topic, key string, event interface{}) (*sarama.ProducerMessage, error) {
	eventData, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(eventData),
		Timestamp: time.Now(),
	}, nil
}

func (p *Producer) send(msg *sarama.ProducerMessage) error {
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic": msg.Topic,
			"key":   msg.Key,
		}).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     msg.Topic,
		"key":       msg.Key,
		"partition": partition,
		"offset":    offset,
	}).Debug("message sent to kafka")
	return nil
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
