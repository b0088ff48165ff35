// Package cooldown throttles command invocations per (command, caller, guild).
package cooldown

import (
	"sync"
	"time"

	"github.com/keshon/modkit/pkg/cmd"
)

// Key identifies one throttle slot. GuildID is empty outside guilds.
type Key struct {
	Kind     cmd.Kind
	Command  string
	CallerID string
	GuildID  string
}

// Entry is an active cooldown.
type Entry struct {
	Key    Key
	EndsAt time.Time
}

// Store holds at most one entry per key. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[Key]Entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{entries: make(map[Key]Entry), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindActive returns the entry for key if it has not ended yet.
func (s *Store) FindActive(key Key) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || !e.EndsAt.After(s.now()) {
		return Entry{}, false
	}
	return e, true
}

// Create starts a cooldown of d for key, replacing any previous entry.
func (s *Store) Create(key Key, d time.Duration) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry{Key: key, EndsAt: s.now().Add(d)}
	s.entries[key] = e
	return e
}

// Acquire checks and claims key in one step. When an unexpired entry exists it
// is returned with false; otherwise a new entry of d is created and returned
// with true.
func (s *Store) Acquire(key Key, d time.Duration) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && e.EndsAt.After(now) {
		return e, false
	}
	e := Entry{Key: key, EndsAt: now.Add(d)}
	s.entries[key] = e
	return e, true
}

// SweepExpired removes entries whose end time has passed and returns how many
// were removed. Expiry is re-checked under the write lock, so an entry
// replaced after the snapshot was taken survives.
func (s *Store) SweepExpired() int {
	now := s.now()

	s.mu.RLock()
	var expired []Key
	for k, e := range s.entries {
		if !e.EndsAt.After(now) {
			expired = append(expired, k)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return 0
	}

	removed := 0
	s.mu.Lock()
	for _, k := range expired {
		if e, ok := s.entries[k]; ok && !e.EndsAt.After(now) {
			delete(s.entries, k)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}

// Len returns the number of stored entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
