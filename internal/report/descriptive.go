package report

import (
	"context"
	"math"
	"strings"

	"github.com/clinchat/backend/pkg/model"
)

// DayBreakdown counts a day's messages per role
type DayBreakdown struct {
	User      int `json:"user"`
	Assistant int `json:"assistant"`
}

// DescriptiveStats is the descriptive statistics component's result
type DescriptiveStats struct {
	UserMessages        int                     `json:"user_messages"`
	AssistantMessages   int                     `json:"assistant_messages"`
	TotalMessages       int                     `json:"total_messages"`
	AvgWordsPerUserMsg  float64                 `json:"avg_words_per_user_message"`
	AvgWordsPerAsstMsg  float64                 `json:"avg_words_per_assistant_message"`
	TotalWords          int                     `json:"total_words"`
	SessionDurationHrs  float64                 `json:"session_duration_hours"`
	MessagesByDay       map[string]DayBreakdown `json:"messages_by_day"`
	LongestUserMessage  int                     `json:"longest_user_message"`
	ShortestUserMessage int                     `json:"shortest_user_message"`
	ConversationsCount  int                     `json:"conversations_count"`
	AvgMessagesPerChat  float64                 `json:"average_messages_per_chat"`
}

// DescriptiveStatsComponent computes message volume and word statistics over
// every message in the window, all roles included
type DescriptiveStatsComponent struct{}

// Name returns the component's registry key
func (c *DescriptiveStatsComponent) Name() string { return model.ComponentDescriptiveStats }

// Generate produces the statistics. An empty window yields the all-zero
// structure, never an error.
func (c *DescriptiveStatsComponent) Generate(_ context.Context, data *SourceData) (any, error) {
	messages := data.AllMessages()
	stats := DescriptiveStats{
		MessagesByDay:      map[string]DayBreakdown{},
		ConversationsCount: len(data.Conversations),
	}
	if len(messages) == 0 {
		stats.ConversationsCount = 0
		return stats, nil
	}

	userWords, assistantWords := 0, 0
	longest, shortest := 0, math.MaxInt
	for _, msg := range messages {
		words := len(strings.Fields(msg.Content))
		day := msg.Timestamp.Format("2006-01-02")
		breakdown := stats.MessagesByDay[day]

		switch msg.Role {
		case model.MessageRoleUser:
			stats.UserMessages++
			userWords += words
			breakdown.User++
			if words > longest {
				longest = words
			}
			if words < shortest {
				shortest = words
			}
		case model.MessageRoleAssistant:
			stats.AssistantMessages++
			assistantWords += words
			breakdown.Assistant++
		}
		stats.MessagesByDay[day] = breakdown
	}

	stats.TotalMessages = len(messages)
	stats.TotalWords = userWords + assistantWords
	if stats.UserMessages > 0 {
		stats.AvgWordsPerUserMsg = float64(userWords) / float64(stats.UserMessages)
		stats.LongestUserMessage = longest
		stats.ShortestUserMessage = shortest
	}
	if stats.AssistantMessages > 0 {
		stats.AvgWordsPerAsstMsg = float64(assistantWords) / float64(stats.AssistantMessages)
	}

	first := messages[0].Timestamp
	last := messages[len(messages)-1].Timestamp
	stats.SessionDurationHrs = math.Round(last.Sub(first).Hours()*100) / 100

	if stats.ConversationsCount > 0 {
		stats.AvgMessagesPerChat = float64(stats.TotalMessages) / float64(stats.ConversationsCount)
	}

	return stats, nil
}
