// Package report assembles the multi-component analytical document produced
// for a chat window after it closes.
package report

import (
	"context"
	"sort"

	"github.com/clinchat/backend/pkg/model"
)

// SourceData is the window snapshot every component reads. It is loaded once
// per generation run and shared; components must treat it as read-only.
type SourceData struct {
	Window        *model.ChatWindow
	Conversations []model.Conversation
	// Messages holds each conversation's messages in chronological order
	Messages map[string][]model.Message
	// Selections are the saved excerpts across the window's conversations
	Selections []model.SavedSelection
}

// AllMessages returns every message in the window in chronological order.
// Equal timestamps keep conversation order, so the result is deterministic.
func (d *SourceData) AllMessages() []model.Message {
	var all []model.Message
	for _, conv := range d.Conversations {
		all = append(all, d.Messages[conv.ID]...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all
}

// UserTexts returns the content of every user-role message in the window
func (d *SourceData) UserTexts() []string {
	var texts []string
	for _, msg := range d.AllMessages() {
		if msg.Role == model.MessageRoleUser {
			texts = append(texts, msg.Content)
		}
	}
	return texts
}

// Component produces one facet of a window report. Components are
// independent: none reads another's output, so generation order only affects
// display order.
type Component interface {
	// Name is the component's key in the report document and in the
	// window's report configuration
	Name() string
	// Generate builds the component's structured result
	Generate(ctx context.Context, data *SourceData) (any, error)
}

// ErrOmit is returned by a component that should be left out of the document
// entirely rather than recorded as an error slot
type omitError struct{ reason string }

func (e *omitError) Error() string { return e.reason }

// Omit wraps a reason into the sentinel that drops a component from the
// report without flagging an error
func Omit(reason string) error { return &omitError{reason: reason} }

// IsOmit reports whether the error asks for silent omission
func IsOmit(err error) bool {
	_, ok := err.(*omitError)
	return ok
}
