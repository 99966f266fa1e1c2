package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	LLM       LLMConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LLMConfig holds language model provider configuration
type LLMConfig struct {
	OpenAI OpenAIConfig
	Ollama OllamaConfig
}

// OpenAIConfig holds hosted model provider configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// OllamaConfig holds local model server configuration
type OllamaConfig struct {
	BaseURL        string
	ProbeTimeout   time.Duration
	RequestTimeout time.Duration
}

// StorageConfig holds Azure Blob Storage configuration for report archives
type StorageConfig struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
	BlobEndpoint     string
	ReportContainer  string
}

// SchedulerConfig holds background report scheduler configuration
type SchedulerConfig struct {
	Interval time.Duration
	Enabled  bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	// Bind specific environment variables
	bindEnvVars(v)

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.maxopenconns", 25)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.connmaxlifetime", 5*time.Minute)

	// LLM defaults
	v.SetDefault("llm.ollama.baseurl", "http://localhost:11434")
	v.SetDefault("llm.ollama.probetimeout", 2*time.Second)
	v.SetDefault("llm.ollama.requesttimeout", 60*time.Second)

	// Storage defaults
	v.SetDefault("storage.reportcontainer", "window-reports")

	// Scheduler defaults
	v.SetDefault("scheduler.interval", 5*time.Minute)
	v.SetDefault("scheduler.enabled", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")

	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// OpenAI
	v.BindEnv("llm.openai.apikey", "OPENAI_API_KEY")
	v.BindEnv("llm.openai.baseurl", "OPENAI_BASE_URL")

	// Ollama
	v.BindEnv("llm.ollama.baseurl", "OLLAMA_BASE_URL")

	// Azure Storage
	v.BindEnv("storage.accountname", "AZURE_STORAGE_ACCOUNT_NAME")
	v.BindEnv("storage.accountkey", "AZURE_STORAGE_ACCOUNT_KEY")
	v.BindEnv("storage.connectionstring", "AZURE_STORAGE_CONNECTION_STRING")
	v.BindEnv("storage.blobendpoint", "AZURE_STORAGE_BLOB_ENDPOINT")
	v.BindEnv("storage.reportcontainer", "AZURE_STORAGE_REPORT_CONTAINER")

	// Scheduler
	v.BindEnv("scheduler.interval", "SCHEDULER_INTERVAL")
	v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate required fields
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	if c.LLM.Ollama.BaseURL == "" {
		return fmt.Errorf("llm.ollama.baseurl is required")
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}

	return nil
}

// HasBlobStorage reports whether report archive storage is configured
func (c *Config) HasBlobStorage() bool {
	return c.Storage.ConnectionString != "" || (c.Storage.AccountName != "" && c.Storage.AccountKey != "")
}
