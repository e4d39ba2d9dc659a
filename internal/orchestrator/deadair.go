package orchestrator

import (
	"context"
	"sync"
	"time"
)

// DeadAirMonitor samples the gap since the agent or user last spoke and
// invokes a check-in callback at configured thresholds (spec.md §4.6,
// "Dead-air monitor"), ending the call once the check-in budget or the
// total call-duration cap is exhausted.
type DeadAirMonitor struct {
	thresholds     []time.Duration
	maxCheckIns    int
	maxCallSeconds time.Duration

	checkIn func(checkInNum int)
	hangup  func(reason string)

	mu            sync.Mutex
	lastActivity  time.Time
	callStartedAt time.Time
	firedCount    int
}

// NewDeadAirMonitor builds a monitor. thresholds must be sorted ascending;
// checkIn is invoked once per threshold crossed with no intervening
// activity, hangup is invoked once when the budget or call-duration cap is
// exceeded.
func NewDeadAirMonitor(thresholds []time.Duration, maxCheckIns int, maxCallSeconds time.Duration, checkIn func(int), hangup func(string)) *DeadAirMonitor {
	now := time.Now()
	return &DeadAirMonitor{
		thresholds:     thresholds,
		maxCheckIns:    maxCheckIns,
		maxCallSeconds: maxCallSeconds,
		checkIn:        checkIn,
		hangup:         hangup,
		lastActivity:   now,
		callStartedAt:  now,
	}
}

// RecordActivity resets the silence clock; call on every user or agent
// utterance start.
func (d *DeadAirMonitor) RecordActivity() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastActivity = time.Now()
	d.firedCount = 0
}

// Run samples at the given tick interval until ctx is cancelled.
func (d *DeadAirMonitor) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sample()
		}
	}
}

func (d *DeadAirMonitor) sample() {
	d.mu.Lock()
	silence := time.Since(d.lastActivity)
	callAge := time.Since(d.callStartedAt)
	nextIdx := d.firedCount

	if d.maxCallSeconds > 0 && callAge >= d.maxCallSeconds {
		d.mu.Unlock()
		d.hangup("max_call_duration")
		return
	}

	if nextIdx >= len(d.thresholds) {
		d.mu.Unlock()
		if d.maxCheckIns > 0 && nextIdx >= d.maxCheckIns {
			d.hangup("max_check_ins")
		}
		return
	}

	if silence < d.thresholds[nextIdx] {
		d.mu.Unlock()
		return
	}
	d.firedCount++
	d.mu.Unlock()

	if d.maxCheckIns > 0 && nextIdx >= d.maxCheckIns {
		d.hangup("max_check_ins")
		return
	}
	d.checkIn(nextIdx + 1)
}
