// Package orchestrator implements the Turn Orchestrator (spec.md §4.6): the
// single module that drives a call's TurnState machine and concentrates
// every policy the source scattered across handlers — echo suppression,
// filler filtering, barge-in, debounce/endpointing, the response pipeline,
// who-speaks-first, voicemail/gatekeeper handling, the dead-air monitor,
// and hangup semantics — behind one unambiguous predicate per rule.
package orchestrator

import (
	"fmt"
	"sync"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

// validTransitions enumerates the TurnState machine's edges from spec.md
// §4.6. A transition attempted off this table is rejected.
var validTransitions = map[calltypes.TurnState]map[calltypes.TurnState]bool{
	calltypes.TurnIdle: {
		calltypes.TurnUserSpeaking: true,
		calltypes.TurnAgentSpeaking: true, // AI-first greeting, or a check-in
		calltypes.TurnEnded:        true,
	},
	calltypes.TurnUserSpeaking: {
		calltypes.TurnThinking: true,
		calltypes.TurnIdle:     true, // abandoned utterance (filler-only, etc.)
		calltypes.TurnEnded:    true,
	},
	calltypes.TurnThinking: {
		calltypes.TurnAgentSpeaking: true,
		calltypes.TurnEnded:         true,
	},
	calltypes.TurnAgentSpeaking: {
		calltypes.TurnInterrupted: true,
		calltypes.TurnIdle:        true,
		calltypes.TurnEnded:       true,
	},
	calltypes.TurnInterrupted: {
		calltypes.TurnIdle:  true,
		calltypes.TurnEnded: true,
	},
	calltypes.TurnEnded: {},
}

// StateMachine guards one call's TurnState behind a mutex and rejects
// transitions not on the table above.
type StateMachine struct {
	mu    sync.Mutex
	state calltypes.TurnState
}

// NewStateMachine starts a call in TurnIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: calltypes.TurnIdle}
}

// Current returns the current state.
func (m *StateMachine) Current() calltypes.TurnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to next if the edge is valid, returning an error
// otherwise. The zero value of next is never a valid target.
func (m *StateMachine) Transition(next calltypes.TurnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == next {
		return nil
	}
	if !validTransitions[m.state][next] {
		return fmt.Errorf("orchestrator: invalid turn transition %s -> %s", m.state, next)
	}
	m.state = next
	return nil
}

// IsAgentActive implements the consolidated predicate from spec.md §9:
// agent_is_active = (tts reports speaking) OR (expected_end > now) OR
// (LLM still generating) OR (awaiting first audio of the response). The
// four inputs are supplied by the caller since they live in different
// subsystems (TTS session, Playback Ledger, response pipeline).
func IsAgentActive(ttsHoldingFloor, ledgerHoldsFloor, llmGenerating, awaitingFirstAudio bool) bool {
	return ttsHoldingFloor || ledgerHoldsFloor || llmGenerating || awaitingFirstAudio
}
