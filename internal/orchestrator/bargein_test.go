package orchestrator

import (
	"testing"
	"time"
)

func TestShouldBargeIn_AllConditionsMet(t *testing.T) {
	if !ShouldBargeIn(4, 3, false, false, true, 5*time.Second, 1500*time.Millisecond) {
		t.Error("expected a real interruption to be recognized as a barge-in")
	}
}

func TestShouldBargeIn_AgentNotActive(t *testing.T) {
	if ShouldBargeIn(4, 3, false, false, false, 5*time.Second, 1500*time.Millisecond) {
		t.Error("expected no barge-in when the agent does not hold the floor")
	}
}

func TestShouldBargeIn_BelowWordThreshold(t *testing.T) {
	if ShouldBargeIn(2, 3, false, false, true, 5*time.Second, 1500*time.Millisecond) {
		t.Error("expected a short utterance to not count as a barge-in")
	}
}

func TestShouldBargeIn_EchoIgnored(t *testing.T) {
	if ShouldBargeIn(5, 3, true, false, true, 5*time.Second, 1500*time.Millisecond) {
		t.Error("expected an echo of the agent's own speech to not trigger a barge-in")
	}
}

func TestShouldBargeIn_FillerIgnored(t *testing.T) {
	if ShouldBargeIn(5, 3, false, true, true, 5*time.Second, 1500*time.Millisecond) {
		t.Error("expected a filler backchannel to not trigger a barge-in")
	}
}

func TestShouldBargeIn_WithinCooldown(t *testing.T) {
	if ShouldBargeIn(5, 3, false, false, true, 500*time.Millisecond, 1500*time.Millisecond) {
		t.Error("expected a barge-in attempt within the cooldown window to be suppressed")
	}
}
