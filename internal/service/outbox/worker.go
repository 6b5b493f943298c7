package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// Причины отправки сообщения в DLQ.
const (
	dlqReasonPublishFailed    = "publish_failed"
	dlqReasonUnknownEventType = "unknown_event_type"
	dlqReasonEmptyPayload     = "empty_payload"
)

var (
	outboxPublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending outbox record.",
	})
)

// knownEventTypes — типы событий, которые оркестратор действительно кладёт в
// outbox. Сообщение с другим типом не могло быть создано этим кодом и уходит
// в DLQ как poison message, не задерживая очередь.
var knownEventTypes = map[string]struct{}{
	string(kafka.EventTypeCheckoutStarted):   {},
	string(kafka.EventTypeCheckoutSucceeded): {},
	string(kafka.EventTypeCheckoutFailed):    {},
	string(kafka.EventTypeCheckoutAbandoned): {},
	string(kafka.EventTypeOrderPlaced):       {},
	string(kafka.EventTypeCartCleared):       {},
}

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDLQPublisher задаёт publisher для отправки в DLQ после исчерпания retry.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча из outbox.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithMaxAttempts задаёт число попыток публикации перед failed/DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.RetryBaseDelay = delay
	}
}

// Worker переносит события жизненного цикла checkout из transactional outbox
// в Kafka. События одной checkout-сессии публикуются строго в порядке
// постановки: если голова сессии не опубликована, хвост этой сессии
// откладывается до следующего цикла, чтобы подписчик не увидел
// checkout.succeeded раньше checkout.started.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlqPublisher   domain.OutboxPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Worker{
		repo:           repo,
		publisher:      publisher,
		dlqPublisher:   opts.DLQPublisher,
		logger:         logger,
		pollInterval:   opts.PollInterval,
		batchSize:      opts.BatchSize,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
	}
}

// Run запускает периодический polling outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один polling-цикл: вычитывает батч, группирует его по
// checkout-сессиям и публикует каждую сессию по порядку.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.refreshBacklogMetrics()

	pending, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return
	}
	if len(pending) == 0 {
		return
	}

	for _, batch := range groupBySession(pending) {
		if ctx.Err() != nil {
			return
		}
		w.publishSessionBatch(ctx, batch)
	}

	w.refreshBacklogMetrics()
}

// sessionBatch — порция сообщений одной checkout-сессии в порядке постановки.
type sessionBatch struct {
	sessionID string
	messages  []domain.OutboxMessage
}

// groupBySession режет батч на подпоследовательности по AggregateID, сохраняя
// порядок внутри сессии и порядок первых появлений между сессиями.
func groupBySession(pending []domain.OutboxMessage) []sessionBatch {
	index := make(map[string]int, len(pending))
	batches := make([]sessionBatch, 0, len(pending))
	for _, msg := range pending {
		pos, ok := index[msg.AggregateID]
		if !ok {
			pos = len(batches)
			index[msg.AggregateID] = pos
			batches = append(batches, sessionBatch{sessionID: msg.AggregateID})
		}
		batches[pos].messages = append(batches[pos].messages, msg)
	}
	return batches
}

// publishSessionBatch публикует сообщения одной сессии по порядку. Poison
// message уходит в DLQ и пропускается; ошибка публикации останавливает
// сессию, её хвост остаётся pending до следующего цикла.
func (w *Worker) publishSessionBatch(ctx context.Context, batch sessionBatch) {
	for i, msg := range batch.messages {
		if ctx.Err() != nil {
			return
		}

		if reason := poisonReason(msg); reason != "" {
			w.logger.WithFields(log.Fields{
				"outbox_id":  msg.ID,
				"session_id": batch.sessionID,
				"event_type": msg.EventType,
				"reason":     reason,
			}).Error("dropping poison outbox message")
			outboxPublishAttempts.WithLabelValues("poison").Inc()
			w.escalateToDLQ(msg, reason, fmt.Errorf("poison outbox message: %s", reason))
			continue
		}

		if err := w.publishWithRetry(ctx, msg); err != nil {
			deferred := len(batch.messages) - i - 1
			w.logger.WithError(err).WithFields(log.Fields{
				"outbox_id":  msg.ID,
				"session_id": batch.sessionID,
				"event_type": msg.EventType,
				"deferred":   deferred,
			}).Error("outbox publish failed, deferring rest of session to keep event order")
			outboxPublishAttempts.WithLabelValues("failed").Inc()
			w.escalateToDLQ(msg, dlqReasonPublishFailed, err)
			return
		}

		if err := w.repo.MarkSent(msg.ID); err != nil {
			w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to mark outbox as sent")
		}
	}
}

// poisonReason возвращает причину, по которой сообщение нельзя публиковать,
// или пустую строку для нормального сообщения.
func poisonReason(msg domain.OutboxMessage) string {
	if _, ok := knownEventTypes[msg.EventType]; !ok {
		return dlqReasonUnknownEventType
	}
	if len(msg.Payload) == 0 {
		return dlqReasonEmptyPayload
	}
	return ""
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err := w.publisher.Publish(msg)
		if err == nil {
			outboxPublishAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		lastErr = err
		outboxPublishAttempts.WithLabelValues("retry_error").Inc()

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.backoffDelay(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

// escalateToDLQ переводит сообщение в failed и, если DLQ настроен, отправляет
// туда конверт с причиной. Ошибки здесь уже некуда эскалировать, только в лог.
func (w *Worker) escalateToDLQ(msg domain.OutboxMessage, reason string, cause error) {
	if w.dlqPublisher != nil {
		envelope, err := json.Marshal(map[string]any{
			"outbox_id":        msg.ID,
			"session_id":       msg.AggregateID,
			"aggregate_type":   msg.AggregateType,
			"event_type":       msg.EventType,
			"payload":          json.RawMessage(msg.Payload),
			"reason":           reason,
			"publish_error":    cause.Error(),
			"dlq_published_at": time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to marshal dlq envelope")
			outboxPublishAttempts.WithLabelValues("dlq_failed").Inc()
		} else {
			dlqMsg := domain.OutboxMessage{
				ID:            msg.ID,
				AggregateType: msg.AggregateType,
				AggregateID:   msg.AggregateID,
				EventType:     msg.EventType,
				Payload:       envelope,
			}
			if err := w.dlqPublisher.Publish(dlqMsg); err != nil {
				w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to publish to DLQ")
				outboxPublishAttempts.WithLabelValues("dlq_failed").Inc()
			}
		}
	}

	if err := w.repo.MarkFailed(msg.ID); err != nil {
		w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to mark outbox as failed")
	}
}

func (w *Worker) refreshBacklogMetrics() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	outboxPendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		outboxOldestPendingAge.Set(0)
		return
	}

	age := time.Since(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	outboxOldestPendingAge.Set(age)
}

func (w *Worker) backoffDelay(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
