package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clinchat/backend/pkg/model"
)

// Chat message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a provider-neutral chat message
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options holds per-request generation parameters
type Options struct {
	Temperature *float64
	MaxTokens   *int
}

// Provider generates chat completions against one model backend
type Provider interface {
	// Name identifies the provider in logs and error text
	Name() string
	// Available reports whether the provider can currently serve requests
	Available(ctx context.Context) bool
	// ListModels returns identifiers of models the provider can serve
	ListModels(ctx context.Context) ([]string, error)
	// Chat generates a completion for the given conversation
	Chat(ctx context.Context, modelIdentifier string, messages []ChatMessage, opts Options) (string, error)
}

// Router dispatches chat requests to the provider backing a model endpoint
type Router struct {
	providers map[model.ModelProvider]Provider
	logger    *zap.Logger
}

// NewRouter creates a router over the given providers
func NewRouter(logger *zap.Logger, providers map[model.ModelProvider]Provider) *Router {
	return &Router{providers: providers, logger: logger}
}

// Provider returns the provider registered for the given backend
func (r *Router) Provider(p model.ModelProvider) (Provider, bool) {
	prov, ok := r.providers[p]
	return prov, ok
}

// Call sends the conversation to the endpoint's provider and returns the
// response text together with the elapsed wall time in seconds. Generation
// parameters are read from the endpoint's config JSON.
func (r *Router) Call(ctx context.Context, endpoint *model.ModelEndpoint, messages []ChatMessage) (string, float64, error) {
	start := time.Now()

	prov, ok := r.providers[endpoint.Provider]
	if !ok {
		return "", time.Since(start).Seconds(), fmt.Errorf("no provider registered for %q", endpoint.Provider)
	}

	opts := parseEndpointOptions(endpoint.Config)
	text, err := prov.Chat(ctx, endpoint.ModelIdentifier, messages, opts)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		r.logger.Warn("model call failed",
			zap.String("provider", prov.Name()),
			zap.String("model", endpoint.ModelIdentifier),
			zap.Float64("elapsed_seconds", elapsed),
			zap.Error(err),
		)
		return "", elapsed, err
	}

	r.logger.Info("model call completed",
		zap.String("provider", prov.Name()),
		zap.String("model", endpoint.ModelIdentifier),
		zap.Float64("elapsed_seconds", elapsed),
	)
	return text, elapsed, nil
}

// ErrorText formats a failed model call as response text so the failure can
// be stored as a regular assistant message instead of aborting the chat.
func ErrorText(providerName string, err error) string {
	return fmt.Sprintf("Error calling %s: %v", providerName, err)
}

// parseEndpointOptions reads temperature and max_tokens from an endpoint's
// config JSON. Malformed config yields default options.
func parseEndpointOptions(raw string) Options {
	if raw == "" {
		return Options{}
	}
	var cfg struct {
		Temperature *float64 `json:"temperature"`
		MaxTokens   *int     `json:"max_tokens"`
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Options{}
	}
	return Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
}
