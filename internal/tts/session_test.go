package tts

import (
	"testing"
	"time"
)

func TestFloorTracker_NotHoldingInitially(t *testing.T) {
	var f FloorTracker
	if f.IsHolding() {
		t.Error("expected fresh tracker to not hold the floor")
	}
}

func TestFloorTracker_ExtendGrantsFloor(t *testing.T) {
	var f FloorTracker
	f.Extend("hello there, how are you today")
	if !f.IsHolding() {
		t.Error("expected tracker to hold the floor after extending")
	}
}

func TestFloorTracker_MinimumDurationApplies(t *testing.T) {
	var f FloorTracker
	f.Extend("hi")
	f.mu.Lock()
	end := f.expectedEnd
	f.mu.Unlock()
	if time.Until(end) < minPlaybackDuration-50*time.Millisecond {
		t.Errorf("expected at least the minimum playback duration, got %v", time.Until(end))
	}
}

func TestFloorTracker_LongerTextExtendsFurther(t *testing.T) {
	var short, long FloorTracker
	short.Extend("hi")
	long.Extend("this is a much longer sentence with many more words in it")

	short.mu.Lock()
	shortEnd := short.expectedEnd
	short.mu.Unlock()
	long.mu.Lock()
	longEnd := long.expectedEnd
	long.mu.Unlock()

	if !longEnd.After(shortEnd) {
		t.Error("expected a longer sentence to extend the floor further than a short one")
	}
}

func TestFloorTracker_SentencesQueueBackToBack(t *testing.T) {
	var f FloorTracker
	f.Extend("first sentence")
	f.mu.Lock()
	firstEnd := f.expectedEnd
	f.mu.Unlock()

	f.Extend("second sentence")
	f.mu.Lock()
	secondEnd := f.expectedEnd
	f.mu.Unlock()

	if !secondEnd.After(firstEnd) {
		t.Error("expected second extension to push the expected end further out")
	}
}

func TestFloorTracker_ClearDropsFloor(t *testing.T) {
	var f FloorTracker
	f.Extend("hello there")
	if !f.IsHolding() {
		t.Fatal("expected floor to be held before clearing")
	}
	f.Clear()
	if f.IsHolding() {
		t.Error("expected floor to be released after Clear")
	}
}
