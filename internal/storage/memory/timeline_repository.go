package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// timelineRepositoryInMemory хранит журнал переходов checkout-сессий в
// памяти (для разработки и тестов). Поведение зеркалит постгресовую
// реализацию: нулевое Occurred штампуется временем записи, события с
// одинаковым временем сохраняют порядок добавления.
type timelineRepositoryInMemory struct {
	mu       sync.RWMutex
	journals map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{journals: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет событие в журнал сессии.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	journal := append(r.journals[event.SessionID], event)
	sort.SliceStable(journal, func(i, j int) bool {
		return journal[i].Occurred.Before(journal[j].Occurred)
	})
	r.journals[event.SessionID] = journal
	return nil
}

// List возвращает события checkout-сессии в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(sessionID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	journal := r.journals[sessionID]
	events := make([]domain.TimelineEvent, len(journal))
	copy(events, journal)
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
