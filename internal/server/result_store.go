package server

import (
	"sync"
	"time"

	"github.com/straja-ai/magika-go/internal/report"
)

// resultStore keeps recent scan events in memory for GET /v1/scans/{id}.
type resultStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]resultEntry
}

type resultEntry struct {
	event     *report.Event
	expiresAt time.Time
}

func newResultStore(ttl time.Duration) *resultStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &resultStore{
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]resultEntry),
	}
}

func (s *resultStore) Put(ev *report.Event) {
	if s == nil || ev == nil || ev.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	s.data[ev.ID] = resultEntry{event: ev, expiresAt: s.now().Add(s.ttl)}
}

func (s *resultStore) Get(id string) (*report.Event, bool) {
	if s == nil || id == "" {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[id]
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.data, id)
		return nil, false
	}
	return entry.event, true
}

func (s *resultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *resultStore) cleanupLocked() {
	now := s.now()
	for k, v := range s.data {
		if now.After(v.expiresAt) {
			delete(s.data, k)
		}
	}
}
