package orchestrator

import (
	"regexp"
	"strings"
)

// voicemailPatterns match common voicemail/answering-machine greetings
// that a pattern-matcher on the live transcript (the second of the two
// independent detectors in spec.md §4.6, "Voicemail / IVR") can catch even
// when the carrier's own AMD has not fired or is disabled.
var voicemailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(is not|isn't) available`),
	regexp.MustCompile(`(?i)please leave (a|your) message`),
	regexp.MustCompile(`(?i)at the (tone|beep)`),
	regexp.MustCompile(`(?i)you('ve| have) reached`),
	regexp.MustCompile(`(?i)no one (is available|can take your call)`),
	regexp.MustCompile(`(?i)mailbox (is full|belongs to)`),
	regexp.MustCompile(`(?i)record your message`),
}

// gatekeeperPatterns match IVR prompts asking for a DTMF digit to proceed,
// which call for a digit press rather than a hangup (spec.md §4.6,
// "Gatekeeper bypass").
var gatekeeperPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)press (\d) to continue`),
	regexp.MustCompile(`(?i)press (\d) for`),
	regexp.MustCompile(`(?i)to (?:reach|speak to|speak with) .*,? press (\d)`),
	regexp.MustCompile(`(?i)enter (\d) now`),
}

// IsVoicemailGreeting reports whether a transcript fragment matches a known
// voicemail/answering-machine greeting pattern.
func IsVoicemailGreeting(text string) bool {
	for _, p := range voicemailPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// GatekeeperDigit returns the DTMF digit an IVR gatekeeper prompt is asking
// for, and true if one was found. When multiple digit groups are present
// in the match, the first capture group found is used.
func GatekeeperDigit(text string) (string, bool) {
	for _, p := range gatekeeperPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		for _, group := range m[1:] {
			if group != "" {
				return group, true
			}
		}
	}
	return "", false
}

// minMonologueWords is the word count above which an uninterrupted opening
// transcript segment (no user interjection yet) is treated as a likely
// voicemail monologue even without a specific pattern match.
const minMonologueWords = 40

// IsLongOpeningMonologue reports whether an opening transcript segment is
// long enough, with no interaction yet, to itself be evidence of a
// voicemail/IVR system rather than a human caller.
func IsLongOpeningMonologue(text string, userHasSpoken bool) bool {
	if userHasSpoken {
		return false
	}
	return len(strings.Fields(text)) >= minMonologueWords
}
