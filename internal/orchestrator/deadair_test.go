package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDeadAirMonitor_FirstCheckInAtFirstThreshold(t *testing.T) {
	var mu sync.Mutex
	var checkIns []int
	var hungUp string

	m := NewDeadAirMonitor(
		[]time.Duration{20 * time.Millisecond, 40 * time.Millisecond},
		2, time.Second,
		func(n int) { mu.Lock(); checkIns = append(checkIns, n); mu.Unlock() },
		func(reason string) { mu.Lock(); hungUp = reason; mu.Unlock() },
	)

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	m.Run(ctx, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(checkIns) < 2 {
		t.Fatalf("expected at least 2 check-ins, got %v", checkIns)
	}
	if checkIns[0] != 1 || checkIns[1] != 2 {
		t.Errorf("expected check-ins numbered 1 then 2, got %v", checkIns)
	}
	if hungUp != "max_check_ins" {
		t.Errorf("expected hangup reason max_check_ins after exhausting check-in budget, got %q", hungUp)
	}
}

func TestDeadAirMonitor_ActivityResetsSilenceClock(t *testing.T) {
	var mu sync.Mutex
	fired := 0

	m := NewDeadAirMonitor(
		[]time.Duration{15 * time.Millisecond},
		3, time.Second,
		func(int) { mu.Lock(); fired++; mu.Unlock() },
		func(string) {},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RecordActivity()
			}
		}
	}()

	m.Run(ctx, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 0 {
		t.Errorf("expected continuous activity to suppress check-ins, got %d", fired)
	}
}

func TestDeadAirMonitor_MaxCallDurationEndsCall(t *testing.T) {
	var mu sync.Mutex
	var hungUp string

	m := NewDeadAirMonitor(
		[]time.Duration{time.Hour},
		5, 10*time.Millisecond,
		func(int) {},
		func(reason string) { mu.Lock(); hungUp = reason; mu.Unlock() },
	)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	m.Run(ctx, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if hungUp != "max_call_duration" {
		t.Errorf("expected hangup reason max_call_duration, got %q", hungUp)
	}
}
