package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-1",
				AggregateType: "checkout",
				AggregateID:   "session-1",
				EventType:     "checkout.succeeded",
				Payload:       []byte(`{"state":"succeeded"}`),
			},
		},
	}
	publisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if repo.sentIDs[0] != "msg-1" {
		t.Fatalf("expected sent id msg-1, got %s", repo.sentIDs[0])
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
	if got := publisher.calls(); got != 1 {
		t.Fatalf("expected 1 publish call, got %d", got)
	}
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-2",
				AggregateType: "checkout",
				AggregateID:   "session-2",
				EventType:     "checkout.succeeded",
				Payload:       []byte(`{"status":"canceled"}`),
			},
		},
	}
	publisher := &stubPublisher{err: errors.New("publish failed")}
	dlqPublisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 0 {
		t.Fatalf("expected 0 sent marks, got %d", got)
	}
	if got := len(repo.failedIDs); got != 1 {
		t.Fatalf("expected 1 failed mark, got %d", got)
	}
	if repo.failedIDs[0] != "msg-2" {
		t.Fatalf("expected failed id msg-2, got %s", repo.failedIDs[0])
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish, got %d", got)
	}
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{
				ID:            "msg-3",
				AggregateType: "checkout",
				AggregateID:   "session-3",
				EventType:     "checkout.succeeded",
				Payload:       []byte(`{"status":"paid"}`),
			},
		},
	}
	publisher := &stubPublisher{
		sequenceErrors: []error{
			errors.New("attempt 1"),
			errors.New("attempt 2"),
			nil,
		},
	}

	worker := NewWorker(
		repo,
		publisher,
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	)

	worker.ProcessOnce(context.Background())

	if got := publisher.calls(); got != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", got)
	}
	if got := len(repo.sentIDs); got != 1 {
		t.Fatalf("expected 1 sent mark, got %d", got)
	}
	if got := len(repo.failedIDs); got != 0 {
		t.Fatalf("expected 0 failed marks, got %d", got)
	}
}

type stubOutboxRepo struct {
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats() (domain.OutboxStats, error) {
	stats := domain.OutboxStats{
		PendingCount: len(s.pending),
	}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	callCount      int
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		if err == nil {
			s.published = append(s.published, msg)
		}
		return err
	}

	if s.err == nil {
		s.published = append(s.published, msg)
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) publishedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.published))
	for _, msg := range s.published {
		ids = append(ids, msg.ID)
	}
	return ids
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)

func TestWorker_ProcessOnce_DefersSessionTailAfterFailure(t *testing.T) {
	t.Parallel()

	// Сообщения двух сессий перемешаны; после провала msg-b хвост session-a
	// (msg-c) должен остаться pending, а session-b публикуется независимо.
	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{ID: "msg-a", AggregateType: "checkout", AggregateID: "session-a", EventType: "checkout.started", Payload: []byte(`{}`)},
			{ID: "msg-b", AggregateType: "checkout", AggregateID: "session-a", EventType: "checkout.succeeded", Payload: []byte(`{}`)},
			{ID: "msg-d", AggregateType: "checkout", AggregateID: "session-b", EventType: "checkout.started", Payload: []byte(`{}`)},
			{ID: "msg-c", AggregateType: "checkout", AggregateID: "session-a", EventType: "order.placed", Payload: []byte(`{}`)},
		},
	}
	publisher := &stubPublisher{
		sequenceErrors: []error{nil, errors.New("broker down"), nil},
	}
	dlqPublisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
		WithMaxAttempts(1),
	)

	worker.ProcessOnce(context.Background())

	publishedIDs := publisher.publishedIDs()
	if len(publishedIDs) != 2 || publishedIDs[0] != "msg-a" || publishedIDs[1] != "msg-d" {
		t.Fatalf("expected published [msg-a msg-d], got %v", publishedIDs)
	}
	if len(repo.failedIDs) != 1 || repo.failedIDs[0] != "msg-b" {
		t.Fatalf("expected only msg-b marked failed, got %v", repo.failedIDs)
	}
	for _, id := range repo.sentIDs {
		if id == "msg-c" {
			t.Fatal("msg-c must stay pending until the next cycle")
		}
	}
	if got := dlqPublisher.calls(); got != 1 {
		t.Fatalf("expected 1 DLQ publish for msg-b, got %d", got)
	}
}

func TestWorker_ProcessOnce_PoisonMessageGoesToDLQ(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{
		pending: []domain.OutboxMessage{
			{ID: "msg-alien", AggregateType: "checkout", AggregateID: "session-1", EventType: "inventory.reserved", Payload: []byte(`{}`)},
			{ID: "msg-empty", AggregateType: "checkout", AggregateID: "session-1", EventType: "checkout.started"},
			{ID: "msg-ok", AggregateType: "checkout", AggregateID: "session-1", EventType: "checkout.started", Payload: []byte(`{}`)},
		},
	}
	publisher := &stubPublisher{}
	dlqPublisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithDLQPublisher(dlqPublisher),
		WithRetryBaseDelay(0),
	)

	worker.ProcessOnce(context.Background())

	// Poison message не публикуется в основной топик и не блокирует
	// следующее нормальное сообщение той же сессии.
	publishedIDs := publisher.publishedIDs()
	if len(publishedIDs) != 1 || publishedIDs[0] != "msg-ok" {
		t.Fatalf("expected only msg-ok published, got %v", publishedIDs)
	}
	if len(repo.failedIDs) != 2 {
		t.Fatalf("expected 2 failed marks for poison messages, got %v", repo.failedIDs)
	}
	if got := dlqPublisher.calls(); got != 2 {
		t.Fatalf("expected 2 DLQ publishes, got %d", got)
	}

	var envelope struct {
		Reason    string `json:"reason"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(dlqPublisher.published[0].Payload, &envelope); err != nil {
		t.Fatalf("decode dlq envelope: %v", err)
	}
	if envelope.Reason != "unknown_event_type" {
		t.Fatalf("expected unknown_event_type reason, got %q", envelope.Reason)
	}
	if envelope.SessionID != "session-1" {
		t.Fatalf("expected session-1 in dlq envelope, got %q", envelope.SessionID)
	}
}

func TestGroupBySession_KeepsOrder(t *testing.T) {
	t.Parallel()

	batches := groupBySession([]domain.OutboxMessage{
		{ID: "1", AggregateID: "s1"},
		{ID: "2", AggregateID: "s2"},
		{ID: "3", AggregateID: "s1"},
	})

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if batches[0].sessionID != "s1" || batches[1].sessionID != "s2" {
		t.Fatalf("unexpected batch order: %s, %s", batches[0].sessionID, batches[1].sessionID)
	}
	if len(batches[0].messages) != 2 || batches[0].messages[0].ID != "1" || batches[0].messages[1].ID != "3" {
		t.Fatalf("session s1 order broken: %+v", batches[0].messages)
	}
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{}
	publisher := &stubPublisher{}

	worker := NewWorker(
		repo,
		publisher,
		WithPollInterval(5*time.Millisecond),
		WithRetryBaseDelay(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}
