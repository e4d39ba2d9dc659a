// Package llm implements the LLM Session (spec.md §4.4): a streaming chat
// completion that accumulates tokens into sentence-sized chunks and hands
// them to a sink in order. A sentence that ends in terminal punctuation is
// held back until the next sentence completes or the stream ends, so the
// sink receives each sentence one step late and the final one carries
// IsLast.
package llm

import (
	"context"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

// StreamSink receives each completed Sentence, in order, one sentence
// behind the LLM stream (see the package comment).
type StreamSink func(calltypes.Sentence)

// Session is a vendor-agnostic streaming chat-completion connection.
type Session interface {
	// Generate sends a streaming completion request and feeds completed
	// sentences to sink, each once the following sentence completes (the
	// last one when the stream ends). It blocks until the stream
	// ends, the context is cancelled, or an unrecoverable error occurs.
	// Cancelling ctx must abort the underlying HTTP/WS stream within
	// 200ms (spec.md §4.4).
	Generate(ctx context.Context, systemPrompt string, history []calltypes.TranscriptEntry, userTurn string, sink StreamSink) error
}
