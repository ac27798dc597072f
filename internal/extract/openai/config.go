package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joseph-ayodele/contracts-desk/internal/schema"
)

// Config for the OpenAI-backed extraction capability.
type Config struct {
	APIKey      string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
}

// Client implements extract.Capability over chat/completions.
type Client struct {
	cfg       Config
	validator *schema.Validator
	http      *http.Client
	log       *slog.Logger
}

// NewClient builds a capability client; the validator supplies the
// per-contract-type JSON schema embedded in the prompt.
func NewClient(cfg Config, validator *schema.Validator, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:       cfg,
		validator: validator,
		http:      &http.Client{Timeout: cfg.Timeout},
		log:       logger,
	}
}
