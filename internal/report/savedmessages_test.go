package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinchat/backend/pkg/model"
)

func TestSavedMessages_NewestFirst(t *testing.T) {
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	data := &SourceData{
		Selections: []model.SavedSelection{
			{ID: "sel-1", ConversationID: "conv-1", SelectionText: "oldest", CreatedAt: base},
			{ID: "sel-2", ConversationID: "conv-1", SelectionText: "newest", Note: "flagged for review", CreatedAt: base.Add(48 * time.Hour)},
			{ID: "sel-3", ConversationID: "conv-2", SelectionText: "middle", CreatedAt: base.Add(24 * time.Hour)},
		},
	}

	result, err := (&SavedMessagesComponent{}).Generate(context.Background(), data)
	require.NoError(t, err)

	saved, ok := result.(SavedMessagesResult)
	require.True(t, ok)
	assert.Equal(t, 3, saved.TotalCount)
	require.Len(t, saved.Selections, 3)
	assert.Equal(t, "newest", saved.Selections[0].Text)
	assert.Equal(t, "middle", saved.Selections[1].Text)
	assert.Equal(t, "oldest", saved.Selections[2].Text)
	assert.Equal(t, "flagged for review", saved.Selections[0].Note)
	assert.Equal(t, "conv-1", saved.Selections[0].ConversationID)
}

func TestSavedMessages_Empty(t *testing.T) {
	result, err := (&SavedMessagesComponent{}).Generate(context.Background(), &SourceData{})
	require.NoError(t, err)

	saved := result.(SavedMessagesResult)
	assert.Zero(t, saved.TotalCount)
	assert.NotNil(t, saved.Selections, "empty windows serialize as an empty list, not null")
}
