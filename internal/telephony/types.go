// Package telephony implements the Carrier Session (spec.md §4.2): the
// bidirectional WebSocket bridge to the telephony carrier's Media Streams
// protocol. This package makes no routing or turn-taking decisions — it
// only frames and unframes carrier wire messages onto ordered Go channels.
// The Turn Orchestrator owns all policy.
package telephony

import "github.com/lexiqai/voice-orchestrator/internal/calltypes"

// EventKind distinguishes the carrier lifecycle events a CarrierSession
// surfaces on its inbound channel.
type EventKind string

const (
	EventStart EventKind = "start"
	EventMedia EventKind = "media"
	EventDTMF  EventKind = "dtmf"
	EventStop  EventKind = "stop"
)

// InboundEvent is one ordered event arriving from the carrier. Only the
// field matching Kind is populated.
type InboundEvent struct {
	Kind EventKind

	// EventStart
	CallSID          string
	StreamSID        string
	AccountSID       string
	CustomParameters map[string]string

	// EventMedia
	Frame calltypes.AudioFrame

	// EventDTMF
	Digit string
}

// Session is the policy-free carrier bridge for one call.
type Session interface {
	// Inbound is the ordered sequence of events arriving from the carrier.
	// It is closed once the underlying connection ends.
	Inbound() <-chan InboundEvent

	// SendAudio writes one outbound audio frame (already in carrier mulaw
	// format) to the carrier as a media message.
	SendAudio(frame calltypes.AudioFrame) error

	// SendMark asks the carrier to echo back a named marker once it has
	// finished playing everything queued before it. The orchestrator does
	// not send marks, and CarrierSession drops mark echoes it receives.
	SendMark(name string) error

	// SendClear tells the carrier to discard any audio it has buffered
	// but not yet played — the wire-level half of a barge-in.
	SendClear() error

	// Close ends the carrier connection.
	Close() error
}
