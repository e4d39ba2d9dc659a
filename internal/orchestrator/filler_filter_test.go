package orchestrator

import "testing"

func TestIsFiller_SingleBackchannelWord(t *testing.T) {
	for _, text := range []string{"um", "Yeah", "OK.", "mhm"} {
		if !IsFiller(text) {
			t.Errorf("expected %q to be classified as filler", text)
		}
	}
}

func TestIsFiller_TwoBackchannelWords(t *testing.T) {
	if !IsFiller("yeah okay") {
		t.Error("expected two backchannel words to be classified as filler")
	}
}

func TestIsFiller_ThreeWordsNeverFiller(t *testing.T) {
	if IsFiller("um actually wait") {
		t.Error("expected a 3-word utterance to never be classified as filler, even starting with um")
	}
}

func TestIsFiller_TwoWordThresholdBoundary(t *testing.T) {
	if IsFiller("wait stop") {
		t.Error("expected a 2-word utterance with no filler tokens to not be classified as filler")
	}
}

func TestIsFiller_EmptyTranscript(t *testing.T) {
	if IsFiller("") {
		t.Error("expected an empty transcript to not be classified as filler")
	}
}
