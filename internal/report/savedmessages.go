package report

import (
	"context"
	"sort"
	"time"

	"github.com/clinchat/backend/pkg/model"
)

// SavedMessageEntry is one saved excerpt in the report
type SavedMessageEntry struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Note           string    `json:"note,omitempty"`
	ConversationID string    `json:"conversation_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// SavedMessagesResult is the saved messages component's result
type SavedMessagesResult struct {
	Selections []SavedMessageEntry `json:"selections"`
	TotalCount int                 `json:"total_count"`
}

// SavedMessagesComponent collects the excerpts the patient saved across the
// window's conversations, newest first
type SavedMessagesComponent struct{}

// Name returns the component's registry key
func (c *SavedMessagesComponent) Name() string { return model.ComponentSavedMessages }

// Generate lists the window's saved selections
func (c *SavedMessagesComponent) Generate(_ context.Context, data *SourceData) (any, error) {
	entries := make([]SavedMessageEntry, 0, len(data.Selections))
	for _, sel := range data.Selections {
		entries = append(entries, SavedMessageEntry{
			ID:             sel.ID,
			Text:           sel.SelectionText,
			Note:           sel.Note,
			ConversationID: sel.ConversationID,
			CreatedAt:      sel.CreatedAt,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	return SavedMessagesResult{
		Selections: entries,
		TotalCount: len(entries),
	}, nil
}
