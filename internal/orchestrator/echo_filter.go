package orchestrator

import "strings"

// minEchoGramLen is the shortest phrase the 3-gram check considers; below
// this both texts are too short for a shared 3-gram to be meaningful.
const minEchoGramLen = 3

// IsEcho reports whether transcript is the carrier looping the agent's own
// recently-spoken audio back as user input (spec.md §4.6, "Echo suppression
// (critical)"). It compares transcript against each of recentAgentTexts
// (bounded to calltypes.MaxRecentAgentTexts) by three independent checks —
// word-set Jaccard similarity, substring containment in either direction,
// and any shared 3-gram phrase — and discards on the first match.
//
// This system never sees the agent's own audio on the input side (carrier
// mulaw in, vendor mulaw out; the carrier is responsible for not looping
// speaker audio into the mic), so the check operates on transcript text
// rather than audio cross-correlation.
func IsEcho(transcript string, recentAgentTexts []string) bool {
	normalized := normalizeForEcho(transcript)
	if normalized == "" {
		return false
	}

	for _, agentText := range recentAgentTexts {
		candidate := normalizeForEcho(agentText)
		if candidate == "" {
			continue
		}
		if jaccardSimilarity(normalized, candidate) >= 0.8 {
			return true
		}
		if substringEitherWay(normalized, candidate) {
			return true
		}
		if sharesTrigram(normalized, candidate) {
			return true
		}
	}
	return false
}

func normalizeForEcho(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

func jaccardSimilarity(a, b string) float64 {
	setA, setB := wordSet(a), wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func substringEitherWay(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func sharesTrigram(a, b string) bool {
	gramsA := trigrams(a)
	if len(gramsA) == 0 {
		return false
	}
	gramsB := trigrams(b)
	for g := range gramsA {
		if _, ok := gramsB[g]; ok {
			return true
		}
	}
	return false
}

func trigrams(s string) map[string]struct{} {
	words := strings.Fields(s)
	grams := make(map[string]struct{})
	if len(words) < minEchoGramLen {
		return grams
	}
	for i := 0; i+minEchoGramLen <= len(words); i++ {
		grams[strings.Join(words[i:i+minEchoGramLen], " ")] = struct{}{}
	}
	return grams
}
