package orchestrator

import "strings"

// fillerTokens are common backchannel acknowledgements that never carry
// turn-taking intent on their own (spec.md §4.6, "Filler filter").
var fillerTokens = map[string]struct{}{
	"um":     {},
	"uh":     {},
	"uhh":    {},
	"umm":    {},
	"yeah":   {},
	"yep":    {},
	"yup":    {},
	"okay":   {},
	"ok":     {},
	"mhm":    {},
	"mm":     {},
	"hmm":    {},
	"right":  {},
	"sure":   {},
	"oh":     {},
	"alright": {},
}

// IsFiller reports whether a final transcript is a filler utterance that
// must be dropped while the agent is speaking: 1-2 words that are entirely
// backchannel tokens. Longer utterances, even if they start with a filler
// word ("um actually wait"), are never filtered here — they go through the
// barge-in word-count check instead.
func IsFiller(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 || len(words) > 2 {
		return false
	}
	for _, w := range words {
		w = strings.Trim(w, ".,!?")
		if _, ok := fillerTokens[w]; !ok {
			return false
		}
	}
	return true
}
