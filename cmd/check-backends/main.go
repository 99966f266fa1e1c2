// Command check-backends verifies connectivity to the external services the
// backend depends on: the local model server, OpenAI, and blob storage.
// Useful when setting up a new environment.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/clinchat/backend/internal/azure"
	"github.com/clinchat/backend/internal/config"
	"github.com/clinchat/backend/internal/llm"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := false

	logger.Info("=== Checking local model server ===")
	if err := checkOllama(ctx, cfg, logger); err != nil {
		logger.Error("Local model server check failed", zap.Error(err))
		failed = true
	} else {
		logger.Info("Local model server check passed")
	}

	if cfg.LLM.OpenAI.APIKey != "" {
		logger.Info("=== Checking OpenAI ===")
		if err := checkOpenAI(ctx, cfg, logger); err != nil {
			logger.Error("OpenAI check failed", zap.Error(err))
			failed = true
		} else {
			logger.Info("OpenAI check passed")
		}
	} else {
		logger.Info("OpenAI not configured, skipping")
	}

	if cfg.HasBlobStorage() {
		logger.Info("=== Checking blob storage ===")
		if err := checkBlobStorage(ctx, cfg, logger); err != nil {
			logger.Error("Blob storage check failed", zap.Error(err))
			failed = true
		} else {
			logger.Info("Blob storage check passed")
		}
	} else {
		logger.Info("Blob storage not configured, skipping")
	}

	if failed {
		os.Exit(1)
	}
	logger.Info("All configured backends reachable")
}

func checkOllama(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	provider := llm.NewOllamaProvider(
		cfg.LLM.Ollama.BaseURL,
		cfg.LLM.Ollama.ProbeTimeout,
		cfg.LLM.Ollama.RequestTimeout,
		logger,
	)

	models, err := provider.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	logger.Info("Local model server reachable",
		zap.Int("model_count", len(models)),
		zap.Strings("models", models),
	)
	if len(models) == 0 {
		logger.Warn("No models pulled; AI summaries and local chat will be unavailable")
	}
	return nil
}

func checkOpenAI(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	provider, err := llm.NewOpenAIProvider(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.BaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	models, err := provider.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	logger.Info("OpenAI reachable", zap.Int("model_count", len(models)))
	return nil
}

func checkBlobStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var client *azure.BlobStorageClient
	var err error
	if cfg.Storage.ConnectionString != "" {
		client, err = azure.NewBlobStorageClientFromConnectionString(
			cfg.Storage.ConnectionString,
			cfg.Storage.ReportContainer,
			logger,
		)
	} else {
		client, err = azure.NewBlobStorageClient(
			cfg.Storage.AccountName,
			cfg.Storage.AccountKey,
			cfg.Storage.ReportContainer,
			logger,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	blobName := fmt.Sprintf("connectivity-check/%d.json", time.Now().Unix())
	payload := []byte(`{"check":"connectivity"}`)

	uploaded, err := client.UploadReport(ctx, blobName, payload)
	if err != nil {
		return fmt.Errorf("failed to upload test blob: %w", err)
	}

	downloaded, err := client.DownloadReport(ctx, uploaded)
	if err != nil {
		return fmt.Errorf("failed to download test blob: %w", err)
	}
	if string(downloaded) != string(payload) {
		return fmt.Errorf("downloaded blob does not match uploaded content")
	}

	logger.Info("Blob storage round-trip succeeded", zap.String("blob_name", uploaded))
	return nil
}
