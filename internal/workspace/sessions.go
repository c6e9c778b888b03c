package workspace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sessions maps session ids to workspaces. Idle sessions are dropped by
// Sweep.
type Sessions struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
	factory func() *Workspace
	now     func() time.Time
}

type entry struct {
	ws       *Workspace
	lastSeen time.Time
}

// NewSessions creates a store that builds workspaces with factory.
func NewSessions(factory func() *Workspace) *Sessions {
	return &Sessions{
		entries: make(map[uuid.UUID]*entry),
		factory: factory,
		now:     time.Now,
	}
}

// Get returns the workspace of id. An unknown or unparsable id gets a fresh
// workspace under a new id; created reports that case.
func (s *Sessions) Get(id string) (ws *Workspace, sid string, created bool) {
	if key, err := uuid.Parse(id); err == nil {
		s.mu.RLock()
		e, ok := s.entries[key]
		s.mu.RUnlock()
		if ok {
			s.touch(key)
			return e.ws, key.String(), false
		}
	}
	key := uuid.New()
	ws = s.factory()
	s.mu.Lock()
	s.entries[key] = &entry{ws: ws, lastSeen: s.now()}
	s.mu.Unlock()
	return ws, key.String(), true
}

func (s *Sessions) touch(key uuid.UUID) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.lastSeen = s.now()
	}
	s.mu.Unlock()
}

// Len is the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep drops sessions idle for longer than ttl and returns how many.
func (s *Sessions) Sweep(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.entries {
		if e.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}
