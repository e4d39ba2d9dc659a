package stt

import (
	"regexp"
	"strings"
)

// shorthandPattern matches valid number/time shorthand ("4K", "2PM", "930am")
// that must survive sanitation even though it looks like a short, mostly
// non-alphabetic fragment.
var shorthandPattern = regexp.MustCompile(`(?i)^\d{1,4}(k|m|am|pm)$`)

const vowels = "aeiouAEIOU"

// IsGarbledEcho classifies a transcript fragment as vendor noise that must
// never reach the Orchestrator: single-letter repetitions, pure
// punctuation, and short no-vowel fragments, per spec.md §4.3 — except
// number/time shorthand, which is kept.
func IsGarbledEcho(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	compact := strings.ReplaceAll(trimmed, " ", "")
	if shorthandPattern.MatchString(compact) {
		return false
	}

	if isPurePunctuation(trimmed) {
		return true
	}
	if isSingleLetterRepetition(trimmed) {
		return true
	}
	if isShortNoVowelFragment(compact) {
		return true
	}

	return false
}

func isPurePunctuation(s string) bool {
	for _, r := range s {
		if isAlphaNumeric(r) {
			return false
		}
	}
	return true
}

func isAlphaNumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// isSingleLetterRepetition matches both "a a a" (space-separated repeats of
// one letter) and "aaaa" (contiguous repeats with no separators).
func isSingleLetterRepetition(s string) bool {
	fields := strings.Fields(s)
	if len(fields) > 1 {
		first := strings.ToLower(fields[0])
		if len([]rune(first)) != 1 {
			return false
		}
		for _, f := range fields {
			if strings.ToLower(f) != first {
				return false
			}
		}
		return true
	}

	compact := strings.ToLower(s)
	if len(compact) < 2 {
		return false
	}
	first := compact[0]
	if !isAlphaNumeric(rune(first)) {
		return false
	}
	for i := 1; i < len(compact); i++ {
		if compact[i] != first {
			return false
		}
	}
	return true
}

// isShortNoVowelFragment flags short fragments (<=4 characters once
// whitespace is stripped) with no vowels and no digits, e.g. "hm", "k", "tsk".
func isShortNoVowelFragment(compact string) bool {
	if len(compact) == 0 || len(compact) > 4 {
		return false
	}
	for _, r := range compact {
		if strings.ContainsRune(vowels, r) {
			return false
		}
		if r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}
