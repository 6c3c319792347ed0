package memory

import (
	"context"
	"sync"
	"time"
)

// ProcessedEventsStore реализует repository.ProcessedEventsStore на map eventID -> expiresAt.
// Для local окружения; в docker используется redis.
type ProcessedEventsStore struct {
	mu     sync.Mutex
	now    func() time.Time
	events map[string]time.Time
}

// NewProcessedEventsStore создаёт пустой store
func NewProcessedEventsStore() *ProcessedEventsStore {
	return &ProcessedEventsStore{
		now:    time.Now,
		events: make(map[string]time.Time),
	}
}

// MarkProcessed сохраняет eventID до now+ttl
func (s *ProcessedEventsStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpiredLocked()
	s.events[eventID] = s.now().Add(ttl)
	return nil
}

// IsProcessed true, пока запись не протухла
func (s *ProcessedEventsStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.events[eventID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(expiresAt) {
		delete(s.events, eventID)
		return false, nil
	}
	return true, nil
}

// evictExpiredLocked ленивая очистка, вызывается под s.mu
func (s *ProcessedEventsStore) evictExpiredLocked() {
	now := s.now()
	for id, expiresAt := range s.events {
		if !now.Before(expiresAt) {
			delete(s.events, id)
		}
	}
}
