package monitor

import (
	"sync"
	"time"
)

// SeenPersister stores seen mention ids across restarts
type SeenPersister interface {
	MarkSeen(id string, at time.Time) error
	LoadSeen(since time.Time) (map[string]time.Time, error)
	PruneSeen(cutoff time.Time) (int64, error)
}

// SeenSet remembers mention ids that have already been handled within a
// retention window. Writes go through to the persister when one is set.
type SeenSet struct {
	window    time.Duration
	persister SeenPersister
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewSeenSet creates a set retaining ids for window. persister may be nil.
func NewSeenSet(window time.Duration, persister SeenPersister) *SeenSet {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &SeenSet{
		window:    window,
		persister: persister,
		now:       time.Now,
		entries:   make(map[string]time.Time),
	}
}

// Load fills the set from the persister, returning the number of ids loaded
func (s *SeenSet) Load() (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	loaded, err := s.persister.LoadSeen(s.now().Add(-s.window))
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, at := range loaded {
		s.entries[id] = at
	}
	return len(loaded), nil
}

// Contains reports whether id was seen within the window
func (s *SeenSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.entries[id]
	return ok && s.now().Sub(at) < s.window
}

// Add marks id as seen. The in-memory entry is kept even when persisting fails.
func (s *SeenSet) Add(id string) error {
	now := s.now()
	s.mu.Lock()
	s.entries[id] = now
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}
	return s.persister.MarkSeen(id, now)
}

// Prune drops ids older than the window and returns how many were removed
// from memory
func (s *SeenSet) Prune() (int, error) {
	cutoff := s.now().Add(-s.window)

	s.mu.Lock()
	removed := 0
	for id, at := range s.entries {
		if at.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()

	if s.persister == nil {
		return removed, nil
	}
	if _, err := s.persister.PruneSeen(cutoff); err != nil {
		return removed, err
	}
	return removed, nil
}

// Len returns the number of ids held in memory
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
