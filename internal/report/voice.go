package report

import "strings"

// VoiceResult summarizes active versus passive voice usage
type VoiceResult struct {
	ActiveRatio  float64 `json:"active_ratio"`
	PassiveRatio float64 `json:"passive_ratio"`
	TotalVerbs   int     `json:"total_verbs"`
	ActiveCount  int     `json:"active_count"`
	PassiveCount int     `json:"passive_count"`
}

var passiveAuxiliaries = map[string]bool{
	"am": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "get": true, "got": true,
}

// Irregular past participles the suffix check misses
var irregularParticiples = map[string]bool{
	"done": true, "made": true, "told": true, "given": true, "taken": true,
	"seen": true, "known": true, "shown": true, "left": true, "put": true,
	"held": true, "kept": true, "sent": true, "found": true, "felt": true,
	"hurt": true, "said": true, "heard": true, "brought": true, "caught": true,
}

// Verb suffixes used by the active-verb heuristic
var verbSuffixes = []string{"ing", "ed", "es"}

// AnalyzeVoice estimates active versus passive voice from surface cues: a
// passive auxiliary directly followed by a past participle counts as passive,
// other verb-shaped tokens count as active. Ratios are percentages of the
// combined verb count.
func AnalyzeVoice(texts []string) VoiceResult {
	active, passive := 0, 0
	for _, text := range texts {
		words := strings.Fields(strings.ToLower(text))
		for i, raw := range words {
			word := strings.Trim(raw, ".,!?;:'\"()")
			if passiveAuxiliaries[word] {
				if i+1 < len(words) {
					next := strings.Trim(words[i+1], ".,!?;:'\"()")
					if isPastParticiple(next) {
						passive++
						continue
					}
				}
				continue
			}
			if looksLikeVerb(word) {
				active++
			}
		}
	}

	total := active + passive
	result := VoiceResult{
		TotalVerbs:   total,
		ActiveCount:  active,
		PassiveCount: passive,
	}
	if total > 0 {
		result.ActiveRatio = float64(active) / float64(total) * 100
		result.PassiveRatio = float64(passive) / float64(total) * 100
	}
	return result
}

func isPastParticiple(word string) bool {
	if irregularParticiples[word] {
		return true
	}
	return len(word) > 3 && (strings.HasSuffix(word, "ed") || strings.HasSuffix(word, "en"))
}

func looksLikeVerb(word string) bool {
	if len(word) <= 3 {
		return false
	}
	for _, suffix := range verbSuffixes {
		if strings.HasSuffix(word, suffix) {
			return true
		}
	}
	return false
}
