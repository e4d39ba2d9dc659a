package stt

import "testing"

func TestIsGarbledEcho(t *testing.T) {
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"pure punctuation", "...", true},
		{"pure punctuation with spaces", "- - -", true},
		{"single letter repeated with spaces", "a a a", true},
		{"contiguous single letter repeat", "hhhh", true},
		{"short no-vowel fragment", "hm", true},
		{"short no-vowel fragment two", "tsk", true},
		{"number shorthand kept", "4K", false},
		{"time shorthand kept", "2PM", false},
		{"time shorthand lowercase kept", "930am", false},
		{"normal sentence kept", "I need to check my account", false},
		{"short real word kept", "yes", false},
		{"short real word two kept", "no", false},
		{"single real word kept", "okay", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsGarbledEcho(c.text); got != c.want {
				t.Errorf("IsGarbledEcho(%q) = %v, want %v", c.text, got, c.want)
			}
		})
	}
}
