package report

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/llm"
	"github.com/clinchat/backend/pkg/model"
)

// maxThemes caps how many extracted themes the summary keeps
const maxThemes = 5

// Preference order for summary generation, small to large. Cheaper models
// are tried first; anything reachable beats nothing.
var summaryModelPreference = []string{
	"llama3.2:1b",
	"llama3.2:3b",
	"llama3.2",
	"mistral",
	"llama3.1:8b",
	"llama3.1:70b",
}

// AISummaryResult is the AI summary component's result
type AISummaryResult struct {
	Summary       string   `json:"summary"`
	Themes        []string `json:"themes"`
	ProgressNotes string   `json:"progress_notes"`
	GeneratedWith string   `json:"generated_with"`
	Error         string   `json:"error,omitempty"`
}

// SummaryModelCatalog lists the endpoints eligible for summary generation
type SummaryModelCatalog interface {
	ListActiveEndpoints(ctx context.Context) ([]model.ModelEndpoint, error)
}

// SummaryModelCaller dispatches the summary prompt to a model backend
type SummaryModelCaller interface {
	Call(ctx context.Context, endpoint *model.ModelEndpoint, messages []llm.ChatMessage) (string, float64, error)
	Provider(p model.ModelProvider) (llm.Provider, bool)
}

// AISummaryComponent produces a clinician-oriented free-text summary of the
// window's conversations using a locally hosted model
type AISummaryComponent struct {
	catalog SummaryModelCatalog
	caller  SummaryModelCaller
	logger  *zap.Logger
}

// NewAISummaryComponent creates the summary component
func NewAISummaryComponent(catalog SummaryModelCatalog, caller SummaryModelCaller, logger *zap.Logger) *AISummaryComponent {
	return &AISummaryComponent{
		catalog: catalog,
		caller:  caller,
		logger:  logger,
	}
}

// Name returns the component's registry key
func (c *AISummaryComponent) Name() string { return model.ComponentAISummary }

// Generate summarizes the window's conversations. An empty window yields a
// fixed placeholder; no reachable local model omits the component from the
// report entirely.
func (c *AISummaryComponent) Generate(ctx context.Context, data *SourceData) (any, error) {
	messages := data.AllMessages()
	if len(messages) == 0 {
		return AISummaryResult{
			Summary:       "No messages to summarize.",
			Themes:        []string{},
			GeneratedWith: "No model",
		}, nil
	}

	endpoint, err := c.selectModel(ctx)
	if err != nil {
		return nil, Omit(err.Error())
	}

	prompt := c.buildPrompt(data)
	response, _, err := c.caller.Call(ctx, endpoint, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		// A failed generation call stays inside this component's slot
		return AISummaryResult{
			Summary:       fmt.Sprintf("Error generating AI summary: %v", err),
			Themes:        []string{},
			GeneratedWith: endpoint.Name,
			Error:         err.Error(),
		}, nil
	}

	return parseSummaryResponse(response, endpoint.Name), nil
}

// selectModel picks a reachable locally hosted model: preference order first,
// then any the server has pulled
func (c *AISummaryComponent) selectModel(ctx context.Context) (*model.ModelEndpoint, error) {
	endpoints, err := c.catalog.ListActiveEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	provider, ok := c.caller.Provider(model.ModelProviderLocal)
	if !ok {
		return nil, fmt.Errorf("no local model provider configured")
	}
	pulledNames, err := provider.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("local model server unreachable: %w", err)
	}
	pulled := make(map[string]bool, len(pulledNames))
	for _, name := range pulledNames {
		pulled[name] = true
	}

	var reachable []model.ModelEndpoint
	for _, endpoint := range endpoints {
		if endpoint.Provider == model.ModelProviderLocal && pulled[endpoint.ModelIdentifier] {
			reachable = append(reachable, endpoint)
		}
	}
	if len(reachable) == 0 {
		return nil, fmt.Errorf("no local models available")
	}

	for _, preferred := range summaryModelPreference {
		for i := range reachable {
			if reachable[i].ModelIdentifier == preferred {
				return &reachable[i], nil
			}
		}
	}

	c.logger.Debug("no preferred summary model pulled, using first available",
		zap.String("model", reachable[0].ModelIdentifier),
	)
	return &reachable[0], nil
}

// buildPrompt lays out every conversation chronologically with role and
// timestamp labels, then asks for the three labeled sections the parser
// expects
func (c *AISummaryComponent) buildPrompt(data *SourceData) string {
	var sb strings.Builder
	for _, conv := range data.Conversations {
		msgs := data.Messages[conv.ID]
		if len(msgs) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n--- Conversation: %s ---\n", conv.Title)
		for _, msg := range msgs {
			fmt.Fprintf(&sb, "[%s] %s: %s\n", msg.Timestamp.Format("2006-01-02 15:04"), msg.Role, msg.Content)
		}
	}

	return fmt.Sprintf(`Please analyze this series of chat conversations from a therapy/support window and provide:
1. A comprehensive summary (2-3 paragraphs)
2. Key themes identified (list up to 5)
3. Brief progress notes suitable for clinical documentation

Conversations:
%s

Format your response as:
SUMMARY:
[Your summary here]

THEMES:
- Theme 1
- Theme 2
[etc]

PROGRESS NOTES:
[Your clinical notes here]`, sb.String())
}

// parseSummaryResponse scans the response line by line, switching sections on
// the SUMMARY/THEMES/PROGRESS NOTES markers. Missing or malformed sections
// yield empty values; parsing never fails.
func parseSummaryResponse(response, modelName string) AISummaryResult {
	var summary, notes strings.Builder
	themes := []string{}

	section := ""
	for _, line := range strings.Split(response, "\n") {
		switch {
		case strings.Contains(line, "SUMMARY:"):
			section = "summary"
		case strings.Contains(line, "THEMES:"):
			section = "themes"
		case strings.Contains(line, "PROGRESS NOTES:"):
			section = "progress"
		default:
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			switch section {
			case "summary":
				summary.WriteString(trimmed + " ")
			case "themes":
				if strings.HasPrefix(trimmed, "-") && len(themes) < maxThemes {
					themes = append(themes, strings.TrimSpace(strings.TrimPrefix(trimmed, "-")))
				}
			case "progress":
				notes.WriteString(trimmed + " ")
			}
		}
	}

	return AISummaryResult{
		Summary:       strings.TrimSpace(summary.String()),
		Themes:        themes,
		ProgressNotes: strings.TrimSpace(notes.String()),
		GeneratedWith: modelName,
	}
}
