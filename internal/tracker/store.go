// Package tracker owns the live tracking engine: per-feed event
// stores, the connection lifecycle state machine, and the trackers
// that tie them to a transport and recompute derived views on ingest.
package tracker

import (
	"sync"

	"github.com/ernie/heistwatch/internal/domain"
)

// EventStore holds the authoritative latest event list for one feed.
// Pure in-memory bookkeeping; no network or presentation logic.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.Event
	index  map[domain.EventKey]int
}

// NewEventStore creates an empty store
func NewEventStore() *EventStore {
	return &EventStore{index: make(map[domain.EventKey]int)}
}

// Ingest merges a freshly received batch. A snapshot replaces the
// current list; a delta merges into it. Re-delivery of the same batch
// is idempotent: events are deduplicated by (markerName, serverID,
// timestamp), with later deliveries replacing earlier ones in place.
func (s *EventStore) Ingest(events []domain.Event, snapshot bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snapshot {
		s.events = nil
		s.index = make(map[domain.EventKey]int, len(events))
	}
	for _, e := range events {
		k := e.Key()
		if i, ok := s.index[k]; ok {
			s.events[i] = e
			continue
		}
		s.index[k] = len(s.events)
		s.events = append(s.events, e)
	}
}

// Current returns a copy of the live event list in arrival order
func (s *EventStore) Current() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of stored events
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
