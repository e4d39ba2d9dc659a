package orchestrator

import (
	"testing"
	"time"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

func TestLedger_EmptyDoesNotHoldFloor(t *testing.T) {
	l := NewLedger()
	if l.HoldsFloor() {
		t.Error("expected an empty ledger to not hold the floor")
	}
}

func TestLedger_ContentEntryHoldsFloor(t *testing.T) {
	l := NewLedger()
	l.Add(calltypes.PlaybackEntry{PlaybackID: "p1", Kind: calltypes.PlaybackContent, ExpectedEndWallclock: time.Now().Add(time.Second)})
	if !l.HoldsFloor() {
		t.Error("expected a content entry to hold the floor")
	}
}

func TestLedger_ComfortNoiseNeverHoldsFloor(t *testing.T) {
	l := NewLedger()
	l.Add(calltypes.PlaybackEntry{PlaybackID: "p1", Kind: calltypes.PlaybackComfortNoise, ExpectedEndWallclock: time.Now().Add(time.Second)})
	if l.HoldsFloor() {
		t.Error("expected comfort-noise entries to never imply floor ownership")
	}
}

func TestLedger_CheckInHoldsFloor(t *testing.T) {
	l := NewLedger()
	l.Add(calltypes.PlaybackEntry{PlaybackID: "p1", Kind: calltypes.PlaybackCheckIn, ExpectedEndWallclock: time.Now().Add(time.Second)})
	if !l.HoldsFloor() {
		t.Error("expected a check-in entry to hold the floor")
	}
}

func TestLedger_RemoveReleasesFloor(t *testing.T) {
	l := NewLedger()
	l.Add(calltypes.PlaybackEntry{PlaybackID: "p1", Kind: calltypes.PlaybackContent, ExpectedEndWallclock: time.Now().Add(time.Second)})
	l.Remove("p1")
	if l.HoldsFloor() {
		t.Error("expected removing the only floor-holding entry to release the floor")
	}
}

func TestLedger_ClearDropsEverything(t *testing.T) {
	l := NewLedger()
	l.Add(calltypes.PlaybackEntry{PlaybackID: "p1", Kind: calltypes.PlaybackContent, ExpectedEndWallclock: time.Now().Add(time.Second)})
	l.Add(calltypes.PlaybackEntry{PlaybackID: "p2", Kind: calltypes.PlaybackCheckIn, ExpectedEndWallclock: time.Now().Add(time.Second)})
	l.Clear()
	if l.Len() != 0 {
		t.Errorf("expected 0 entries after Clear, got %d", l.Len())
	}
}

func TestLedger_ExpectedEndIgnoresComfortNoise(t *testing.T) {
	l := NewLedger()
	near := time.Now().Add(time.Second)
	far := time.Now().Add(10 * time.Second)
	l.Add(calltypes.PlaybackEntry{PlaybackID: "content", Kind: calltypes.PlaybackContent, ExpectedEndWallclock: near})
	l.Add(calltypes.PlaybackEntry{PlaybackID: "noise", Kind: calltypes.PlaybackComfortNoise, ExpectedEndWallclock: far})
	if got := l.ExpectedEnd(); !got.Equal(near) {
		t.Errorf("expected comfort-noise entry to be excluded from ExpectedEnd, got %v want %v", got, near)
	}
}
