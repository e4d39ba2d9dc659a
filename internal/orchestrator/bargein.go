package orchestrator

import "time"

// ShouldBargeIn decides whether an interim transcript heard while the agent
// holds the floor counts as a real interruption (spec.md §4.6, "Barge-in
// decision"): at least wordCountThreshold words, not an echo of the
// agent's own recent speech, not a filler backchannel, the agent must
// actually be active, and the call must be outside its post-interrupt
// cooldown window.
func ShouldBargeIn(wordCount, wordCountThreshold int, isEcho, isFiller, agentActive bool, sinceLastInterrupt, cooldown time.Duration) bool {
	if !agentActive {
		return false
	}
	if isEcho || isFiller {
		return false
	}
	if wordCount < wordCountThreshold {
		return false
	}
	if sinceLastInterrupt < cooldown {
		return false
	}
	return true
}
