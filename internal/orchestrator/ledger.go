package orchestrator

import (
	"sync"
	"time"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

// Ledger is the Playback Ledger (spec.md §3/§4.6): the set of carrier-side
// outbound audio items currently expected to be playing. It is written by
// the Turn Orchestrator and by the Carrier Session's playback.ended
// callbacks; reads are many. One mutex protects the set per spec.md §5.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]calltypes.PlaybackEntry
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]calltypes.PlaybackEntry)}
}

// Add records a new outstanding playback item.
func (l *Ledger) Add(entry calltypes.PlaybackEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.PlaybackID] = entry
}

// Remove drops an entry, called when the carrier confirms playback.ended
// or when the ledger is cleared by interruption.
func (l *Ledger) Remove(playbackID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, playbackID)
}

// Clear drops every outstanding entry, used on barge-in.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]calltypes.PlaybackEntry)
}

// HoldsFloor reports whether at least one content or check_in entry is both
// outstanding and still within its estimated playback window. Carrier
// playback.ended confirmations are the precise signal for when an entry's
// floor ownership ends, but they're not wired into every carrier
// implementation; ExpectedEndWallclock is the same self-expiring estimate
// the Persistent TTS Session's own floor tracker uses, so a ledger that
// never receives a Remove call still releases the floor on schedule instead
// of holding it for the rest of the call. Comfort-noise entries never imply
// floor ownership.
func (l *Ledger) HoldsFloor() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for _, e := range l.entries {
		if e.HoldsFloor() && e.ExpectedEndWallclock.After(now) {
			return true
		}
	}
	return false
}

// ExpectedEnd returns the latest ExpectedEndWallclock among outstanding,
// not-yet-expired floor-holding entries, or the zero Time if none remain.
func (l *Ledger) ExpectedEnd() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	var latest time.Time
	for _, e := range l.entries {
		if !e.HoldsFloor() || !e.ExpectedEndWallclock.After(now) {
			continue
		}
		if e.ExpectedEndWallclock.After(latest) {
			latest = e.ExpectedEndWallclock
		}
	}
	return latest
}

// Len returns the number of outstanding entries, for diagnostics/tests.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
