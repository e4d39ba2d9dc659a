// Package callstate implements the Call-State Store (spec.md §4.7): a
// two-tier record of each call's shared, frequently-read-and-written
// fields — the process-local tier holding each live call's CallStateEntry
// under one mutex (the Playback Ledger lives in orchestrator.Ledger, with
// its own mutex), and a
// cross-process tier in redis_store.go for workers that need to read or
// flag call state from outside the process handling the carrier
// WebSocket.
package callstate

import (
	"fmt"
	"sync"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

// Store is the process-local tier: one entry per live call, all guarded by
// a single RWMutex, with no per-field locking.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*calltypes.CallStateEntry
}

// New returns an empty process-local store.
func New() *Store {
	return &Store{entries: make(map[string]*calltypes.CallStateEntry)}
}

// Create registers a new call's state entry, overwriting any stale entry
// left behind by a reused call ID.
func (s *Store) Create(callID string) *calltypes.CallStateEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &calltypes.CallStateEntry{CurrentPlaybackIDs: make(map[string]struct{})}
	s.entries[callID] = e
	return e
}

// Get returns the call's state entry, or false if the call is unknown.
func (s *Store) Get(callID string) (*calltypes.CallStateEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[callID]
	return e, ok
}

// Update applies fn to the call's entry under the store's write lock,
// giving callers field-merge semantics without copying the whole struct.
func (s *Store) Update(callID string, fn func(*calltypes.CallStateEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[callID]
	if !ok {
		return fmt.Errorf("callstate: unknown call %q", callID)
	}
	fn(e)
	return nil
}

// Delete removes a call's state entry once the call has ended.
func (s *Store) Delete(callID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, callID)
}

// Len reports how many calls currently have live state, for diagnostics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
