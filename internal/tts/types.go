// Package tts implements the Persistent TTS Session (spec.md §4.5): a
// long-lived duplex link to a speech-synthesis vendor that streams
// sentences in, streams mu-law audio chunks out, and tracks whether the
// agent currently holds the conversational floor.
package tts

import "github.com/lexiqai/voice-orchestrator/internal/calltypes"

// AudioChunk is one piece of synthesized audio, already in 8kHz mu-law.
type AudioChunk struct {
	Data []byte
}

// Session is a vendor-agnostic persistent TTS connection for one call.
type Session interface {
	// StreamSentence sends one completed sentence for synthesis. The
	// session extends its floor-ownership window by the sentence's
	// estimated spoken duration.
	StreamSentence(sentence calltypes.Sentence) error

	// ClearAudio discards any audio already buffered downstream for
	// playback (barge-in: the carrier stops what's already in flight).
	ClearAudio() error

	// CancelPendingSentences aborts sentences queued at the vendor that
	// have not finished streaming audio back yet.
	CancelPendingSentences() error

	// IsHoldingFloor reports whether the agent is currently considered to
	// be speaking, per the floor-ownership invariant (spec.md §3).
	IsHoldingFloor() bool

	// AudioChunks is the ordered stream of synthesized mu-law audio.
	AudioChunks() <-chan AudioChunk

	// Close ends the session and releases the underlying connection.
	Close() error
}
