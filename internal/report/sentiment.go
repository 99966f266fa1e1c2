package report

import "strings"

// SentimentResult aggregates polarity scoring over a set of texts
type SentimentResult struct {
	AverageSentiment float64              `json:"average_sentiment"`
	Distribution     SentimentBuckets     `json:"sentiment_distribution"`
	Percentages      SentimentPercentages `json:"sentiment_percentages"`
	Scores           []float64            `json:"scores,omitempty"`
}

// SentimentBuckets counts messages per polarity bucket
type SentimentBuckets struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// SentimentPercentages is the bucket distribution as percentages. For any
// non-empty input the three values sum to 100 up to rounding.
type SentimentPercentages struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Polarity lexicon for the scorer. Coarse by design; the report surfaces
// trends, not clinical-grade sentiment.
var (
	positiveWords = map[string]bool{
		"happy": true, "great": true, "good": true, "wonderful": true,
		"excited": true, "love": true, "thank": true, "thanks": true,
		"grateful": true, "joy": true, "better": true, "calm": true,
		"hopeful": true, "proud": true, "relieved": true, "enjoy": true,
	}
	negativeWords = map[string]bool{
		"sad": true, "angry": true, "frustrated": true, "worried": true,
		"anxious": true, "hate": true, "bad": true, "upset": true,
		"depressed": true, "terrible": true, "awful": true, "scared": true,
		"hopeless": true, "tired": true, "worse": true, "hurt": true,
	}
)

// SentimentPolarity scores one text in [-1, 1] from the lexicon: the signed
// balance of positive and negative word hits over all hits.
func SentimentPolarity(text string) float64 {
	positives, negatives := 0, 0
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:'\"()")
		if positiveWords[word] {
			positives++
		} else if negativeWords[word] {
			negatives++
		}
	}

	total := positives + negatives
	if total == 0 {
		return 0
	}
	return float64(positives-negatives) / float64(total)
}

// AnalyzeSentiment buckets texts into positive (score > 0.1), negative
// (score < -0.1), and neutral, with an average polarity over all texts.
// Empty input yields the all-zero structure.
func AnalyzeSentiment(texts []string) SentimentResult {
	if len(texts) == 0 {
		return SentimentResult{}
	}

	scores := make([]float64, len(texts))
	sum := 0.0
	positive, negative := 0, 0
	for i, text := range texts {
		score := SentimentPolarity(text)
		scores[i] = score
		sum += score
		switch {
		case score > 0.1:
			positive++
		case score < -0.1:
			negative++
		}
	}
	neutral := len(texts) - positive - negative

	n := float64(len(texts))
	return SentimentResult{
		AverageSentiment: sum / n,
		Distribution: SentimentBuckets{
			Positive: positive,
			Neutral:  neutral,
			Negative: negative,
		},
		Percentages: SentimentPercentages{
			Positive: float64(positive) / n * 100,
			Neutral:  float64(neutral) / n * 100,
			Negative: float64(negative) / n * 100,
		},
		Scores: scores,
	}
}
