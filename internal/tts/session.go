package tts

import (
	"context"
	"strings"
	"sync"
	"time"
)

// keepAliveInterval is how often a persistent TTS session pings the vendor
// with a no-op to avoid its ~20s idle timeout (spec.md §4.5).
const keepAliveInterval = 15 * time.Second

// minPlaybackDuration and perWordDuration implement the playback-duration
// estimate used to extend floor ownership: max(1.5, 0.4*words + 1.0)
// seconds, additive onto whatever time is already accounted for.
const (
	minPlaybackDuration = 1500 * time.Millisecond
	perWordDuration     = 400 * time.Millisecond
	baseWordDuration    = 1000 * time.Millisecond
)

// FloorTracker implements the floor-ownership invariant shared by every
// vendor TTS session: each streamed sentence extends an expected-end
// wallclock by its estimated spoken duration, and the agent is considered
// to hold the floor for as long as "now" is before that wallclock.
// Not safe for concurrent use except through its own methods.
type FloorTracker struct {
	mu          sync.Mutex
	expectedEnd time.Time
}

// Extend adds sentence's estimated spoken duration onto the tracker's
// expected-end wallclock, starting from whichever is later: now, or the
// previously tracked expected end (sentences queue back-to-back).
func (f *FloorTracker) Extend(text string) {
	d := estimateDuration(text)
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	base := f.expectedEnd
	if base.Before(now) {
		base = now
	}
	f.expectedEnd = base.Add(d)
}

// Clear drops floor ownership immediately, used on barge-in or cancellation.
func (f *FloorTracker) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expectedEnd = time.Time{}
}

// IsHolding reports whether the agent is still expected to be speaking.
func (f *FloorTracker) IsHolding() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Now().Before(f.expectedEnd)
}

func estimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	d := time.Duration(words)*perWordDuration + baseWordDuration
	if d < minPlaybackDuration {
		return minPlaybackDuration
	}
	return d
}

// startKeepAlive runs ping at keepAliveInterval until ctx is cancelled.
// Vendor clients pass a closure that sends their specific no-op frame.
func startKeepAlive(ctx context.Context, ping func() error) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = ping()
		}
	}
}
