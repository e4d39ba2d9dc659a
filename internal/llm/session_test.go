package llm

import (
	"testing"

	"github.com/lexiqai/voice-orchestrator/internal/calltypes"
)

func TestSentenceAccumulator_SplitsOnTerminalPunctuation(t *testing.T) {
	var got []calltypes.Sentence
	acc := NewSentenceAccumulator(func(s calltypes.Sentence) {
		got = append(got, s)
	})

	for _, tok := range []string{"Hello", " there", ".", " How", " are", " you", "?"} {
		acc.PushToken(tok)
	}
	acc.Finish()

	if len(got) != 2 {
		t.Fatalf("expected 2 sentences, got %d: %+v", len(got), got)
	}
	if got[0].Text != "Hello there." {
		t.Errorf("expected first sentence 'Hello there.', got %q", got[0].Text)
	}
	if !got[0].IsFirst || got[0].IsLast {
		t.Errorf("expected first sentence IsFirst=true IsLast=false, got %+v", got[0])
	}
	if got[1].Text != "How are you?" {
		t.Errorf("expected second sentence 'How are you?', got %q", got[1].Text)
	}
	if got[1].IsFirst || !got[1].IsLast {
		t.Errorf("expected second sentence IsFirst=false IsLast=true, got %+v", got[1])
	}
}

func TestSentenceAccumulator_FlushesTrailingTextWithoutPunctuation(t *testing.T) {
	var got []calltypes.Sentence
	acc := NewSentenceAccumulator(func(s calltypes.Sentence) {
		got = append(got, s)
	})

	acc.PushToken("no terminator here")
	acc.Finish()

	if len(got) != 1 {
		t.Fatalf("expected 1 sentence, got %d", len(got))
	}
	if got[0].Text != "no terminator here" {
		t.Errorf("unexpected text: %q", got[0].Text)
	}
	if !got[0].IsLast {
		t.Error("expected trailing sentence to be marked IsLast")
	}
}

func TestSentenceAccumulator_EmptyGenerationStillSignalsCompletion(t *testing.T) {
	var got []calltypes.Sentence
	acc := NewSentenceAccumulator(func(s calltypes.Sentence) {
		got = append(got, s)
	})

	acc.Finish()

	if len(got) != 1 {
		t.Fatalf("expected 1 sentinel sentence, got %d", len(got))
	}
	if !got[0].IsLast {
		t.Error("expected sentinel sentence to be marked IsLast")
	}
	if got[0].Text != "" {
		t.Errorf("expected empty sentinel text, got %q", got[0].Text)
	}
}

func TestSentenceAccumulator_SequentialNumbering(t *testing.T) {
	var got []calltypes.Sentence
	acc := NewSentenceAccumulator(func(s calltypes.Sentence) {
		got = append(got, s)
	})

	acc.PushToken("One.")
	acc.PushToken("Two.")
	acc.PushToken("Three.")
	acc.Finish()

	if len(got) != 3 {
		t.Fatalf("expected 3 sentences, got %d", len(got))
	}
	for i, s := range got {
		if s.SentenceNum != i+1 {
			t.Errorf("expected SentenceNum %d, got %d", i+1, s.SentenceNum)
		}
	}
	if !got[2].IsLast {
		t.Error("expected last sentence to be marked IsLast")
	}
}
