package report

import (
	"context"

	"github.com/clinchat/backend/pkg/model"
)

// NLPAnalysis is the language analysis component's result
type NLPAnalysis struct {
	AverageSentiment  float64              `json:"average_sentiment"`
	Distribution      SentimentBuckets     `json:"sentiment_distribution"`
	Percentages       SentimentPercentages `json:"sentiment_percentages"`
	VoiceAnalysis     VoiceResult          `json:"voice_analysis"`
	QuestionFrequency float64              `json:"question_frequency"`
	EmotionalKeywords map[string]int       `json:"emotional_keywords"`
	MessageCount      int                  `json:"message_count"`
}

// NLPAnalysisComponent analyzes sentiment, voice, questions, and emotional
// keywords over the patient's own messages. Assistant messages are excluded;
// the analysis describes the patient, not the model.
type NLPAnalysisComponent struct{}

// Name returns the component's registry key
func (c *NLPAnalysisComponent) Name() string { return model.ComponentNLPAnalysis }

// Generate produces the analysis. No user messages yields the all-zero
// structure, never an error.
func (c *NLPAnalysisComponent) Generate(_ context.Context, data *SourceData) (any, error) {
	texts := data.UserTexts()
	if len(texts) == 0 {
		return NLPAnalysis{
			EmotionalKeywords: map[string]int{"positive": 0, "negative": 0, "uncertainty": 0},
		}, nil
	}

	sentiment := AnalyzeSentiment(texts)
	keywords := AnalyzeKeywords(texts)
	voice := AnalyzeVoice(texts)

	return NLPAnalysis{
		AverageSentiment:  sentiment.AverageSentiment,
		Distribution:      sentiment.Distribution,
		Percentages:       sentiment.Percentages,
		VoiceAnalysis:     voice,
		QuestionFrequency: keywords.QuestionFrequency,
		EmotionalKeywords: keywords.EmotionalKeywords,
		MessageCount:      len(texts),
	}, nil
}
