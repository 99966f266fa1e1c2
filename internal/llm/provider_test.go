package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

type fakeProvider struct {
	name     string
	response string
	err      error
	gotModel string
	gotOpts  Options
}

func (f *fakeProvider) Name() string                     { return f.name }
func (f *fakeProvider) Available(_ context.Context) bool { return true }
func (f *fakeProvider) ListModels(_ context.Context) ([]string, error) {
	return nil, nil
}
func (f *fakeProvider) Chat(_ context.Context, modelIdentifier string, _ []ChatMessage, opts Options) (string, error) {
	f.gotModel = modelIdentifier
	f.gotOpts = opts
	return f.response, f.err
}

func TestRouterCall(t *testing.T) {
	local := &fakeProvider{name: "ollama", response: "hello"}
	router := NewRouter(zap.NewNop(), map[model.ModelProvider]Provider{
		model.ModelProviderLocal: local,
	})

	endpoint := &model.ModelEndpoint{
		Provider:        model.ModelProviderLocal,
		ModelIdentifier: "llama3.2",
		Config:          `{"temperature":0.5,"max_tokens":128}`,
	}
	text, elapsed, err := router.Call(context.Background(), endpoint, []ChatMessage{{Role: RoleUser, Content: "hi"}})

	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.GreaterOrEqual(t, elapsed, 0.0)
	assert.Equal(t, "llama3.2", local.gotModel)
	require.NotNil(t, local.gotOpts.Temperature)
	assert.Equal(t, 0.5, *local.gotOpts.Temperature)
	require.NotNil(t, local.gotOpts.MaxTokens)
	assert.Equal(t, 128, *local.gotOpts.MaxTokens)
}

func TestRouterCall_UnregisteredProvider(t *testing.T) {
	router := NewRouter(zap.NewNop(), map[model.ModelProvider]Provider{})

	_, _, err := router.Call(context.Background(), &model.ModelEndpoint{Provider: model.ModelProviderOpenAI}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider registered")
}

func TestRouterCall_ProviderErrorPropagates(t *testing.T) {
	local := &fakeProvider{name: "ollama", err: errors.New("model not loaded")}
	router := NewRouter(zap.NewNop(), map[model.ModelProvider]Provider{
		model.ModelProviderLocal: local,
	})

	_, _, err := router.Call(context.Background(), &model.ModelEndpoint{Provider: model.ModelProviderLocal}, nil)
	assert.EqualError(t, err, "model not loaded")
}

func TestRouterProvider(t *testing.T) {
	local := &fakeProvider{name: "ollama"}
	router := NewRouter(zap.NewNop(), map[model.ModelProvider]Provider{
		model.ModelProviderLocal: local,
	})

	got, ok := router.Provider(model.ModelProviderLocal)
	assert.True(t, ok)
	assert.Equal(t, Provider(local), got)

	_, ok = router.Provider(model.ModelProviderOpenAI)
	assert.False(t, ok)
}

func TestErrorText(t *testing.T) {
	err := errors.New("connection refused")
	assert.Equal(t, "Error calling ollama: connection refused", ErrorText("ollama", err))
}

func TestParseEndpointOptions(t *testing.T) {
	tests := []struct {
		name        string
		config      string
		temperature *float64
		maxTokens   *int
	}{
		{name: "empty config", config: ""},
		{name: "malformed config", config: "{not json"},
		{name: "unknown keys ignored", config: `{"top_p":0.9}`},
		{
			name:        "both options",
			config:      `{"temperature":0.3,"max_tokens":512}`,
			temperature: floatPointer(0.3),
			maxTokens:   intPointer(512),
		},
		{
			name:        "temperature only",
			config:      `{"temperature":1.0}`,
			temperature: floatPointer(1.0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := parseEndpointOptions(tt.config)
			assert.Equal(t, tt.temperature, opts.Temperature)
			assert.Equal(t, tt.maxTokens, opts.MaxTokens)
		})
	}
}

func floatPointer(f float64) *float64 { return &f }
func intPointer(i int) *int           { return &i }
