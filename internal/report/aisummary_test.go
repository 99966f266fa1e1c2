package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/llm"
	"github.com/clinchat/backend/pkg/model"
)

type fakeSummaryCatalog struct {
	endpoints []model.ModelEndpoint
	err       error
}

func (f *fakeSummaryCatalog) ListActiveEndpoints(_ context.Context) ([]model.ModelEndpoint, error) {
	return f.endpoints, f.err
}

type fakeLocalProvider struct {
	models  []string
	listErr error
}

func (f *fakeLocalProvider) Name() string                      { return "ollama" }
func (f *fakeLocalProvider) Available(_ context.Context) bool  { return f.listErr == nil }
func (f *fakeLocalProvider) ListModels(_ context.Context) ([]string, error) {
	return f.models, f.listErr
}
func (f *fakeLocalProvider) Chat(_ context.Context, _ string, _ []llm.ChatMessage, _ llm.Options) (string, error) {
	return "", errors.New("not used")
}

type fakeSummaryCaller struct {
	local    *fakeLocalProvider
	response string
	callErr  error
	called   []string
	prompts  []string
}

func (f *fakeSummaryCaller) Call(_ context.Context, endpoint *model.ModelEndpoint, messages []llm.ChatMessage) (string, float64, error) {
	f.called = append(f.called, endpoint.ModelIdentifier)
	if len(messages) > 0 {
		f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	}
	return f.response, 0.2, f.callErr
}

func (f *fakeSummaryCaller) Provider(p model.ModelProvider) (llm.Provider, bool) {
	if p != model.ModelProviderLocal || f.local == nil {
		return nil, false
	}
	return f.local, true
}

func localEndpoint(identifier string) model.ModelEndpoint {
	return model.ModelEndpoint{
		ID:              "endpoint-" + identifier,
		Name:            identifier,
		Provider:        model.ModelProviderLocal,
		ModelIdentifier: identifier,
		Active:          true,
	}
}

func summaryData() *SourceData {
	ts := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	return &SourceData{
		Conversations: []model.Conversation{{ID: "conv-1", Title: "Morning check-in"}},
		Messages: map[string][]model.Message{
			"conv-1": {
				testMessage(model.MessageRoleUser, "I slept badly again", ts),
				testMessage(model.MessageRoleAssistant, "That sounds hard. What kept you up?", ts.Add(time.Minute)),
			},
		},
	}
}

func TestAISummary_EmptyWindow(t *testing.T) {
	component := NewAISummaryComponent(&fakeSummaryCatalog{}, &fakeSummaryCaller{}, zap.NewNop())

	result, err := component.Generate(context.Background(), &SourceData{})
	require.NoError(t, err)

	summary := result.(AISummaryResult)
	assert.Equal(t, "No messages to summarize.", summary.Summary)
	assert.Equal(t, "No model", summary.GeneratedWith)
	assert.Empty(t, summary.Themes)
}

func TestAISummary_OmittedWhenNoLocalModel(t *testing.T) {
	tests := []struct {
		name    string
		catalog *fakeSummaryCatalog
		caller  *fakeSummaryCaller
	}{
		{
			name:    "no local provider configured",
			catalog: &fakeSummaryCatalog{endpoints: []model.ModelEndpoint{localEndpoint("llama3.2")}},
			caller:  &fakeSummaryCaller{},
		},
		{
			name:    "local server unreachable",
			catalog: &fakeSummaryCatalog{endpoints: []model.ModelEndpoint{localEndpoint("llama3.2")}},
			caller:  &fakeSummaryCaller{local: &fakeLocalProvider{listErr: errors.New("connection refused")}},
		},
		{
			name:    "no endpoint matches a pulled model",
			catalog: &fakeSummaryCatalog{endpoints: []model.ModelEndpoint{localEndpoint("llama3.2")}},
			caller:  &fakeSummaryCaller{local: &fakeLocalProvider{models: []string{"mistral"}}},
		},
		{
			name:    "catalog failure",
			catalog: &fakeSummaryCatalog{err: errors.New("db down")},
			caller:  &fakeSummaryCaller{local: &fakeLocalProvider{models: []string{"llama3.2"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			component := NewAISummaryComponent(tt.catalog, tt.caller, zap.NewNop())
			_, err := component.Generate(context.Background(), summaryData())
			require.Error(t, err)
			assert.True(t, IsOmit(err), "component should drop out silently, not record an error slot")
			assert.Empty(t, tt.caller.called)
		})
	}
}

func TestAISummary_PrefersSmallerModels(t *testing.T) {
	catalog := &fakeSummaryCatalog{endpoints: []model.ModelEndpoint{
		localEndpoint("mistral"),
		localEndpoint("llama3.2:1b"),
		localEndpoint("llama3.1:70b"),
	}}
	caller := &fakeSummaryCaller{
		local:    &fakeLocalProvider{models: []string{"mistral", "llama3.2:1b", "llama3.1:70b"}},
		response: "SUMMARY:\nFine.\n",
	}
	component := NewAISummaryComponent(catalog, caller, zap.NewNop())

	_, err := component.Generate(context.Background(), summaryData())
	require.NoError(t, err)
	require.Len(t, caller.called, 1)
	assert.Equal(t, "llama3.2:1b", caller.called[0])
}

func TestAISummary_UnlistedModelStillUsable(t *testing.T) {
	catalog := &fakeSummaryCatalog{endpoints: []model.ModelEndpoint{localEndpoint("qwen2:7b")}}
	caller := &fakeSummaryCaller{
		local:    &fakeLocalProvider{models: []string{"qwen2:7b"}},
		response: "SUMMARY:\nFine.\n",
	}
	component := NewAISummaryComponent(catalog, caller, zap.NewNop())

	result, err := component.Generate(context.Background(), summaryData())
	require.NoError(t, err)
	assert.Equal(t, "qwen2:7b", result.(AISummaryResult).GeneratedWith)
}

func TestAISummary_CallFailureStaysInSlot(t *testing.T) {
	catalog := &fakeSummaryCatalog{endpoints: []model.ModelEndpoint{localEndpoint("llama3.2")}}
	caller := &fakeSummaryCaller{
		local:   &fakeLocalProvider{models: []string{"llama3.2"}},
		callErr: errors.New("model timed out"),
	}
	component := NewAISummaryComponent(catalog, caller, zap.NewNop())

	result, err := component.Generate(context.Background(), summaryData())
	require.NoError(t, err, "a failed generation call is reported inside the result, not as a component error")

	summary := result.(AISummaryResult)
	assert.Contains(t, summary.Summary, "Error generating AI summary")
	assert.Contains(t, summary.Summary, "model timed out")
	assert.Equal(t, "model timed out", summary.Error)
	assert.Equal(t, "llama3.2", summary.GeneratedWith)
}

func TestAISummary_PromptIncludesConversations(t *testing.T) {
	catalog := &fakeSummaryCatalog{endpoints: []model.ModelEndpoint{localEndpoint("llama3.2")}}
	caller := &fakeSummaryCaller{
		local:    &fakeLocalProvider{models: []string{"llama3.2"}},
		response: "SUMMARY:\nFine.\n",
	}
	component := NewAISummaryComponent(catalog, caller, zap.NewNop())

	_, err := component.Generate(context.Background(), summaryData())
	require.NoError(t, err)
	require.Len(t, caller.prompts, 1)
	assert.Contains(t, caller.prompts[0], "Morning check-in")
	assert.Contains(t, caller.prompts[0], "I slept badly again")
	assert.Contains(t, caller.prompts[0], "SUMMARY:")
}

func TestParseSummaryResponse(t *testing.T) {
	response := `Some preamble the model added.
SUMMARY:
The patient reported poor sleep
across several sessions.

THEMES:
- Sleep disruption
- Work stress

PROGRESS NOTES:
Recommend follow-up on sleep hygiene.`

	result := parseSummaryResponse(response, "llama3.2")

	assert.Equal(t, "The patient reported poor sleep across several sessions.", result.Summary)
	assert.Equal(t, []string{"Sleep disruption", "Work stress"}, result.Themes)
	assert.Equal(t, "Recommend follow-up on sleep hygiene.", result.ProgressNotes)
	assert.Equal(t, "llama3.2", result.GeneratedWith)
}

func TestParseSummaryResponse_ThemesCapped(t *testing.T) {
	response := "THEMES:\n- a\n- b\n- c\n- d\n- e\n- f\n- g\n"
	result := parseSummaryResponse(response, "m")
	assert.Len(t, result.Themes, maxThemes)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, result.Themes)
}

func TestParseSummaryResponse_MalformedNeverFails(t *testing.T) {
	result := parseSummaryResponse("just plain text with no markers", "m")
	assert.Empty(t, result.Summary)
	assert.Empty(t, result.Themes)
	assert.Empty(t, result.ProgressNotes)

	result = parseSummaryResponse("", "m")
	assert.Empty(t, result.Summary)
}
