package llm

import (
	"strings"
	"time"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

// terminalPunctuation are the sentence-ending runes the accumulator splits
// on (spec.md §4.4).
const terminalPunctuation = ".?!"

// sentenceCeiling caps how long a single buffered sentence may grow before
// it is force-flushed, in case a vendor stream never emits terminal
// punctuation (run-on generation, malformed output).
const sentenceCeiling = 30 * time.Second

// SentenceAccumulator buffers streamed LLM tokens and yields a
// calltypes.Sentence to its sink whenever the buffer ends in terminal
// punctuation, the sentence ceiling elapses, or the stream completes.
// Shared by every vendor client so sentence-boundary behavior is identical
// across providers.
//
// A sentence is only known to be the response's last one once Finish is
// called, so the accumulator holds the most recently completed sentence
// back by one step and stamps IsLast on it there.
type SentenceAccumulator struct {
	sink        StreamSink
	buf         strings.Builder
	sentenceNum int
	startedAt   time.Time
	pending     *calltypes.Sentence
}

// NewSentenceAccumulator builds an accumulator that calls sink for each
// completed Sentence, in order.
func NewSentenceAccumulator(sink StreamSink) *SentenceAccumulator {
	return &SentenceAccumulator{sink: sink}
}

// PushToken appends one streamed token, flushing a sentence once the
// buffer ends in terminal punctuation or the ceiling is reached.
func (a *SentenceAccumulator) PushToken(token string) {
	if token == "" {
		return
	}
	if a.buf.Len() == 0 {
		a.startedAt = time.Now()
	}
	a.buf.WriteString(token)

	trimmed := strings.TrimRight(a.buf.String(), " \t\n")
	if trimmed == "" {
		return
	}
	last := trimmed[len(trimmed)-1]
	if strings.IndexByte(terminalPunctuation, last) >= 0 || time.Since(a.startedAt) >= sentenceCeiling {
		a.completeSentence()
	}
}

// Finish flushes any remaining buffered text and emits the final held-back
// sentence with IsLast set, even if the generation produced no text at all.
func (a *SentenceAccumulator) Finish() {
	if strings.TrimSpace(a.buf.String()) != "" {
		a.completeSentence()
	}

	if a.pending != nil {
		a.pending.IsLast = true
		a.sink(*a.pending)
		a.pending = nil
		return
	}

	a.sentenceNum++
	a.sink(calltypes.Sentence{
		SentenceNum:   a.sentenceNum,
		IsFirst:       a.sentenceNum == 1,
		IsLast:        true,
		SendTimestamp: time.Now(),
	})
}

func (a *SentenceAccumulator) completeSentence() {
	text := strings.TrimSpace(a.buf.String())
	a.buf.Reset()
	if text == "" {
		return
	}

	a.emitPending()

	a.sentenceNum++
	s := calltypes.Sentence{
		Text:          text,
		SentenceNum:   a.sentenceNum,
		IsFirst:       a.sentenceNum == 1,
		SendTimestamp: time.Now(),
	}
	a.pending = &s
}

func (a *SentenceAccumulator) emitPending() {
	if a.pending == nil {
		return
	}
	a.sink(*a.pending)
	a.pending = nil
}
