// Package stt implements the STT Session (spec.md §4.3): a vendor-agnostic
// streaming speech-to-text connection that takes mu-law carrier audio in
// and yields three independent event sequences out — interim transcripts,
// final transcripts, and turn-end signals.
package stt

import "time"

// TranscriptEvent is one partial or final transcript emitted by a Session.
type TranscriptEvent struct {
	Text       string
	Confidence float64
	ReceivedAt time.Time
}

// EndpointSignal marks that the vendor believes the caller has finished
// their turn. It is zero-width: only its arrival matters.
type EndpointSignal struct {
	ReceivedAt time.Time
}

// Session is the streaming STT connection for one call. Implementations
// connect once (via their constructor) and auto-reconnect on transport
// failure through resilience.Reconnect: up to ReconnectMaxAttempts attempts
// (default 3), waiting ReconnectBackoff milliseconds (default 1000) before
// the second attempt and doubling the wait after each further failure, so
// retries are not immediate. Tokens in flight during the gap are lost.
type Session interface {
	// SendAudio enqueues one audio frame. It backpressures via a bounded
	// channel rather than blocking the caller indefinitely.
	SendAudio(frame []byte) error

	// PartialTranscripts is the lazy, infinite sequence of interim results.
	PartialTranscripts() <-chan TranscriptEvent

	// FinalTranscripts is the lazy, infinite sequence of committed
	// segments, already passed through garbled-echo sanitation.
	FinalTranscripts() <-chan TranscriptEvent

	// EndpointSignals is the lazy, infinite sequence of turn-end signals.
	EndpointSignals() <-chan EndpointSignal

	// Stop ends the session without releasing underlying resources.
	Stop() error

	// Close releases all resources. Safe to call after Stop.
	Close() error
}
