package postgres

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestTimelineRepository_PostgresSessionJournal(t *testing.T) {
	store := openIntegrationStore(t)
	timelineRepo := NewTimelineRepository(store)

	base := time.Now().UTC().Add(-time.Hour).Round(time.Microsecond)

	// Переходы пишутся не по порядку времени: List обязан отсортировать.
	journal := []domain.TimelineEvent{
		{SessionID: "session-1", Type: "finalizing", Reason: "payment captured", Occurred: base.Add(20 * time.Second)},
		{SessionID: "session-1", Type: "preparing_intent", Reason: "begin", Occurred: base},
		{SessionID: "session-1", Type: "succeeded", Reason: "order recorded", Occurred: base.Add(30 * time.Second)},
		{SessionID: "session-1", Type: "awaiting_confirmation", Reason: "intent ready", Occurred: base.Add(10 * time.Second)},
		{SessionID: "session-2", Type: "preparing_intent", Reason: "begin", Occurred: base.Add(5 * time.Second)},
	}
	for _, event := range journal {
		if err := timelineRepo.Append(event); err != nil {
			t.Fatalf("append %s: %v", event.Type, err)
		}
	}

	events, err := timelineRepo.List("session-1")
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}

	wantTypes := []string{"preparing_intent", "awaiting_confirmation", "finalizing", "succeeded"}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events for session-1, got %d", len(wantTypes), len(events))
	}
	for i, event := range events {
		if event.Type != wantTypes[i] {
			t.Fatalf("position %d: got %s, want %s", i, event.Type, wantTypes[i])
		}
		if event.SessionID != "session-1" {
			t.Fatalf("foreign session leaked into listing: %+v", event)
		}
	}
}

func TestTimelineRepository_PostgresZeroOccurredAutoFilled(t *testing.T) {
	store := openIntegrationStore(t)
	timelineRepo := NewTimelineRepository(store)

	before := time.Now().UTC().Add(-time.Second)
	if err := timelineRepo.Append(domain.TimelineEvent{
		SessionID: "session-1",
		Type:      "preparing_intent",
		Reason:    "begin",
	}); err != nil {
		t.Fatalf("append with zero occurred: %v", err)
	}

	events, err := timelineRepo.List("session-1")
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Occurred.Before(before) {
		t.Fatalf("zero occurred must be stamped with insert time, got %v", events[0].Occurred)
	}
}

func TestTimelineRepository_PostgresUnknownSession(t *testing.T) {
	store := openIntegrationStore(t)
	timelineRepo := NewTimelineRepository(store)

	events, err := timelineRepo.List("missing-session")
	if err != nil {
		t.Fatalf("list for unknown session should not fail: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for unknown session, got %d", len(events))
	}
}
