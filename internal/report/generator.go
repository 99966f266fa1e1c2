package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/repository"
	"github.com/clinchat/backend/pkg/model"
)

const (
	saveMaxAttempts = 3
	saveBaseBackoff = 500 * time.Millisecond
)

// Summary is the top-level roll-up consumers read without opening components
type Summary struct {
	TotalConversations     int     `json:"total_conversations"`
	TotalUserMessages      int     `json:"total_user_messages"`
	TotalModelMessages     int     `json:"total_model_messages"`
	AverageMessagesPerChat float64 `json:"average_messages_per_chat"`
}

// Document is the report payload shape. Renderers depend on these keys;
// changing them breaks stored reports.
type Document struct {
	WindowID          string         `json:"window_id"`
	WindowTitle       string         `json:"window_title"`
	WindowDescription string         `json:"window_description"`
	PatientID         string         `json:"patient_id"`
	ProviderID        string         `json:"provider_id"`
	StartDate         time.Time      `json:"start_date"`
	EndDate           time.Time      `json:"end_date"`
	GeneratedAt       time.Time      `json:"generated_at"`
	Components        map[string]any `json:"components"`
	Summary           Summary        `json:"summary"`
}

// componentError is the slot recorded for a failed component
type componentError struct {
	Error string `json:"error"`
}

// DataStore loads the window snapshot components read
type DataStore interface {
	GetWindow(ctx context.Context, windowID string) (*model.ChatWindow, error)
	ListConversationsByWindow(ctx context.Context, windowID string) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	ListSelectionsByWindow(ctx context.Context, windowID string) ([]model.SavedSelection, error)
}

// ReportStore persists generated reports
type ReportStore interface {
	CreateReport(ctx context.Context, report *model.Report) error
	UpdateReportFilePath(ctx context.Context, reportID, filePath string) error
}

// Archiver uploads a serialized report for long-term storage
type Archiver interface {
	UploadReport(ctx context.Context, filename string, data []byte) (string, error)
}

// Generator orchestrates the report components for a window and persists the
// assembled document
type Generator struct {
	data       DataStore
	reports    ReportStore
	archiver   Archiver
	components []Component
	logger     *zap.Logger
	now        func() time.Time
	sleep      func(time.Duration)
}

// NewGenerator creates a Generator over a fixed component set. A nil
// archiver disables blob archiving.
func NewGenerator(data DataStore, reports ReportStore, archiver Archiver, components []Component, logger *zap.Logger) *Generator {
	return &Generator{
		data:       data,
		reports:    reports,
		archiver:   archiver,
		components: components,
		logger:     logger,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// DefaultComponents builds the standard component set
func DefaultComponents(catalog SummaryModelCatalog, caller SummaryModelCaller, logger *zap.Logger) []Component {
	return []Component{
		NewAISummaryComponent(catalog, caller, logger),
		&SavedMessagesComponent{},
		&DescriptiveStatsComponent{},
		&NLPAnalysisComponent{},
	}
}

// Generate assembles the report document for a window. Each enabled
// component runs in isolation: one component's failure becomes an error slot
// in the document, never an aborted report.
func (g *Generator) Generate(ctx context.Context, windowID string) (*Document, error) {
	data, err := g.loadSourceData(ctx, windowID)
	if err != nil {
		return nil, err
	}

	window := data.Window
	doc := &Document{
		WindowID:          window.ID,
		WindowTitle:       window.Title,
		WindowDescription: window.Description,
		PatientID:         window.PatientID,
		ProviderID:        window.ProviderID,
		StartDate:         window.StartTime,
		EndDate:           window.EndTime,
		GeneratedAt:       g.now(),
		Components:        map[string]any{},
	}

	for _, component := range g.components {
		name := component.Name()
		if !window.ReportConfig[name] {
			continue
		}

		result, err := component.Generate(ctx, data)
		if err != nil {
			if IsOmit(err) {
				g.logger.Info("report component omitted",
					zap.String("window_id", windowID),
					zap.String("component", name),
					zap.String("reason", err.Error()),
				)
				continue
			}
			g.logger.Error("report component failed",
				zap.Error(err),
				zap.String("window_id", windowID),
				zap.String("component", name),
			)
			doc.Components[name] = componentError{Error: err.Error()}
			continue
		}
		doc.Components[name] = result
	}

	doc.Summary = deriveSummary(doc.Components)
	return doc, nil
}

// SaveReport generates the document and persists it as a Report row. Writes
// retry with exponential backoff on transient contention only; other errors
// propagate immediately. Uniqueness is the caller's job: SaveReport itself
// will happily store a second report for the same window.
func (g *Generator) SaveReport(ctx context.Context, windowID string) (*model.Report, error) {
	doc, err := g.Generate(ctx, windowID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}

	rpt := &model.Report{
		ID:          uuid.New().String(),
		WindowID:    doc.WindowID,
		PatientID:   doc.PatientID,
		ProviderID:  doc.ProviderID,
		ReportType:  model.ReportTypeUnified,
		Payload:     payload,
		GeneratedAt: doc.GeneratedAt,
	}

	var lastErr error
	for attempt := 0; attempt < saveMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := saveBaseBackoff * time.Duration(1<<uint(attempt-1))
			g.logger.Warn("report save contended, retrying",
				zap.String("window_id", windowID),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			g.sleep(backoff)
		}

		lastErr = g.reports.CreateReport(ctx, rpt)
		if lastErr == nil {
			g.archive(ctx, rpt)
			g.logger.Info("report saved",
				zap.String("report_id", rpt.ID),
				zap.String("window_id", windowID),
			)
			return rpt, nil
		}
		if !repository.IsTransient(lastErr) {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("report save failed after %d attempts: %w", saveMaxAttempts, lastErr)
}

// archive uploads the serialized document to blob storage. Best effort: the
// report row stands on its own if the upload fails.
func (g *Generator) archive(ctx context.Context, rpt *model.Report) {
	if g.archiver == nil {
		return
	}

	filename := fmt.Sprintf("reports/%s/%s.json", rpt.WindowID, rpt.ID)
	path, err := g.archiver.UploadReport(ctx, filename, rpt.Payload)
	if err != nil {
		g.logger.Warn("failed to archive report",
			zap.Error(err),
			zap.String("report_id", rpt.ID),
		)
		return
	}

	rpt.FilePath = path
	if err := g.reports.UpdateReportFilePath(ctx, rpt.ID, path); err != nil {
		g.logger.Warn("failed to record archive path",
			zap.Error(err),
			zap.String("report_id", rpt.ID),
		)
	}
}

func (g *Generator) loadSourceData(ctx context.Context, windowID string) (*SourceData, error) {
	window, err := g.data.GetWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}

	conversations, err := g.data.ListConversationsByWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}

	messages := make(map[string][]model.Message, len(conversations))
	for _, conv := range conversations {
		msgs, err := g.data.ListMessages(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		messages[conv.ID] = msgs
	}

	selections, err := g.data.ListSelectionsByWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}

	return &SourceData{
		Window:        window,
		Conversations: conversations,
		Messages:      messages,
		Selections:    selections,
	}, nil
}

// deriveSummary lifts the roll-up numbers out of the descriptive stats
// component when it ran; otherwise everything stays zero
func deriveSummary(components map[string]any) Summary {
	stats, ok := components[model.ComponentDescriptiveStats].(DescriptiveStats)
	if !ok {
		return Summary{}
	}
	return Summary{
		TotalConversations:     stats.ConversationsCount,
		TotalUserMessages:      stats.UserMessages,
		TotalModelMessages:     stats.AssistantMessages,
		AverageMessagesPerChat: stats.AvgMessagesPerChat,
	}
}
