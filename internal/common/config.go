package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Archive  ArchiveConfig
	Server   ServerConfig
	Workflow WorkflowConfig
	LLM      LLMConfig
	Render   RenderConfig
	Docs     DocsConfig
}

// ArchiveConfig holds configuration for the terminal-session archive store.
type ArchiveConfig struct {
	Driver      string // "sqlite" or "postgres"
	DSN         string
	DialTimeout time.Duration
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// WorkflowConfig holds the orchestrator's convergence and retry policy.
// These are deployment values, never hardcoded in the orchestrator.
type WorkflowConfig struct {
	MaxIterations  int
	ExtractRetries int
	ExtractTimeout time.Duration
	BackoffInitial time.Duration
}

// LLMConfig holds configuration for the extraction/classification capability.
type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
}

// RenderConfig holds configuration for the PDF render collaborator.
type RenderConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DocsConfig holds configuration for the document store.
type DocsConfig struct {
	RootDir string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Archive: ArchiveConfig{
			Driver:      getEnv("ARCHIVE_DRIVER", "sqlite"),
			DSN:         getEnv("ARCHIVE_DSN", "file:contracts.db?_pragma=journal_mode(WAL)"),
			DialTimeout: getEnvAsDuration("ARCHIVE_DIAL_TIMEOUT", 3*time.Second),
		},
		Server: ServerConfig{
			Addr:            getEnv("HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Workflow: WorkflowConfig{
			MaxIterations:  getEnvAsInt("WORKFLOW_MAX_ITERATIONS", 5),
			ExtractRetries: getEnvAsInt("EXTRACT_RETRIES", 2),
			ExtractTimeout: getEnvAsDuration("EXTRACT_TIMEOUT", 60*time.Second),
			BackoffInitial: getEnvAsDuration("EXTRACT_BACKOFF_INITIAL", 500*time.Millisecond),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Render: RenderConfig{
			BaseURL: getEnv("RENDER_BASE_URL", ""),
			Timeout: getEnvAsDuration("RENDER_TIMEOUT", 30*time.Second),
		},
		Docs: DocsConfig{
			RootDir: getEnv("DOCS_ROOT_DIR", "./documents"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Archive.DSN == "" {
		return NewAppError("CONFIG_ERROR", "ARCHIVE_DSN is required", ErrInvalidInput)
	}
	if c.Archive.Driver != "sqlite" && c.Archive.Driver != "postgres" {
		return NewAppError("CONFIG_ERROR", "ARCHIVE_DRIVER must be sqlite or postgres", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Workflow.MaxIterations <= 0 {
		return NewAppError("CONFIG_ERROR", "WORKFLOW_MAX_ITERATIONS must be positive", ErrInvalidInput)
	}
	if c.Workflow.ExtractRetries < 0 {
		return NewAppError("CONFIG_ERROR", "EXTRACT_RETRIES must not be negative", ErrInvalidInput)
	}
	return nil
}
