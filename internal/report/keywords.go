package report

import "strings"

// Emotional keyword categories. Matching is substring containment over the
// lowercased text, one hit per keyword per message.
var emotionalKeywords = map[string][]string{
	"positive":    {"happy", "great", "good", "wonderful", "excited", "love", "thank", "grateful", "joy"},
	"negative":    {"sad", "angry", "frustrated", "worried", "anxious", "hate", "bad", "upset", "depressed"},
	"uncertainty": {"maybe", "perhaps", "might", "could", "possibly", "unsure", "don't know", "confused"},
}

// KeywordResult counts emotional keyword hits and question usage
type KeywordResult struct {
	EmotionalKeywords map[string]int `json:"emotional_keywords"`
	QuestionFrequency float64        `json:"question_frequency"`
	QuestionCount     int            `json:"question_count"`
	TotalTexts        int            `json:"total_texts"`
}

// AnalyzeKeywords counts emotional keyword hits per category and the share
// of texts containing a question mark. Empty input yields zero counts.
func AnalyzeKeywords(texts []string) KeywordResult {
	counts := map[string]int{"positive": 0, "negative": 0, "uncertainty": 0}
	if len(texts) == 0 {
		return KeywordResult{EmotionalKeywords: counts}
	}

	questions := 0
	for _, text := range texts {
		lower := strings.ToLower(text)
		for category, keywords := range emotionalKeywords {
			for _, keyword := range keywords {
				if strings.Contains(lower, keyword) {
					counts[category]++
				}
			}
		}
		if strings.Contains(text, "?") {
			questions++
		}
	}

	return KeywordResult{
		EmotionalKeywords: counts,
		QuestionFrequency: float64(questions) / float64(len(texts)) * 100,
		QuestionCount:     questions,
		TotalTexts:        len(texts),
	}
}
