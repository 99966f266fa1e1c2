package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// OllamaProvider serves chat completions from a local Ollama server
type OllamaProvider struct {
	baseURL     string
	client      *http.Client
	probeClient *http.Client
	logger      *zap.Logger
}

var _ Provider = (*OllamaProvider)(nil)

// NewOllamaProvider creates a provider against the given Ollama base URL.
// The probe timeout keeps availability checks fast; generation requests get
// the longer request timeout.
func NewOllamaProvider(baseURL string, probeTimeout, requestTimeout time.Duration, logger *zap.Logger) *OllamaProvider {
	if probeTimeout <= 0 {
		probeTimeout = 2 * time.Second
	}
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	return &OllamaProvider{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: requestTimeout},
		probeClient: &http.Client{Timeout: probeTimeout},
		logger:      logger,
	}
}

// Name identifies the provider in logs and error text
func (o *OllamaProvider) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Available probes the server's tags endpoint with a short timeout
func (o *OllamaProvider) Available(ctx context.Context) bool {
	models, err := o.ListModels(ctx)
	return err == nil && len(models) > 0
}

// ListModels returns the model names the local server has pulled
func (o *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := o.probeClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags: status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Chat generates a completion from the local server
func (o *OllamaProvider) Chat(ctx context.Context, modelIdentifier string, messages []ChatMessage, opts Options) (string, error) {
	ollamaMessages := make([]ollamaMessage, len(messages))
	for i, msg := range messages {
		role := msg.Role
		if role == "model" {
			role = RoleAssistant
		}
		ollamaMessages[i] = ollamaMessage{Role: role, Content: msg.Content}
	}

	payload := ollamaChatRequest{
		Model:    modelIdentifier,
		Messages: ollamaMessages,
		Stream:   false,
	}
	if opts.Temperature != nil || opts.MaxTokens != nil {
		payload.Options = &ollamaOptions{}
		if opts.Temperature != nil {
			payload.Options.Temperature = *opts.Temperature
		}
		if opts.MaxTokens != nil {
			payload.Options.NumPredict = *opts.MaxTokens
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	o.logger.Debug("ollama completion",
		zap.String("model", chatResp.Model),
		zap.Int("response_bytes", len(chatResp.Message.Content)),
	)
	return chatResp.Message.Content, nil
}
