// Package ratelimit tracks the quota each provider reports in its response
// headers.
package ratelimit

import "sync"

// Store holds one snapshot slot per provider. Writes replace a slot's
// snapshot wholesale; slots are never shared across providers.
type Store struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

// NewStore creates a store with empty slots for the given providers.
func NewStore(providers ...string) *Store {
	s := &Store{slots: make(map[string]*slot, len(providers))}
	for _, p := range providers {
		s.slots[p] = &slot{}
	}
	return s
}

func (s *Store) slot(provider string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots == nil {
		s.slots = make(map[string]*slot)
	}
	sl, ok := s.slots[provider]
	if !ok {
		sl = &slot{}
		s.slots[provider] = sl
	}
	return sl
}

// Put replaces the provider's snapshot.
func (s *Store) Put(provider string, snap Snapshot) {
	if s == nil {
		return
	}
	sl := s.slot(provider)
	sl.mu.Lock()
	sl.snap = snap
	sl.set = true
	sl.mu.Unlock()
}

// Get returns the provider's latest snapshot and whether one was stored.
func (s *Store) Get(provider string) (Snapshot, bool) {
	if s == nil {
		return Snapshot{}, false
	}
	sl := s.slot(provider)
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.snap, sl.set
}
