package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
	"github.com/joseph-ayodele/contracts-desk/internal/llmhttp"
	"github.com/joseph-ayodele/contracts-desk/internal/schema"
)

// Config for the LLM-backed classifier.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// LLMClassifier implements Classifier over chat/completions.
type LLMClassifier struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// NewLLMClassifier builds a classifier client.
func NewLLMClassifier(cfg Config, logger *slog.Logger) *LLMClassifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMClassifier{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: logger}
}

// resultSchema constrains the classifier's JSON output.
func resultSchema() map[string]any {
	types := make([]string, 0, len(constants.KnownContractTypes)+1)
	for _, t := range constants.KnownContractTypes {
		types = append(types, string(t))
	}
	types = append(types, string(constants.ContractUnknown))
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"contract_type": map[string]any{"type": "string", "enum": types},
			"confidence":    map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"rationale":     map[string]any{"type": "string"},
		},
		"required": []string{"contract_type", "confidence"},
	}
}

// Classify sends the document to the model and asks for a contract type. An
// unreadable document, an unknown verdict, a transport failure or a malformed
// verdict all surface as ErrUnclassifiable; the caller never guesses a schema.
func (c *LLMClassifier) Classify(ctx context.Context, doc extract.DocumentRef) (Result, error) {
	rid := uuid.New().String()
	start := time.Now()
	c.log.Info("classify.start", "req_id", rid, "document_id", doc.ID, "filename", doc.Filename)

	attachment, err := llmhttp.FilePart(doc)
	if err != nil {
		c.log.Error("classify.read_document_failed", "req_id", rid, "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}

	sch := resultSchema()
	schemaText, _ := json.MarshalIndent(sch, "", "  ")
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": "You classify contract documents. Return ONLY JSON matching the provided schema. " +
				"Pick 'unknown' when no listed type fits; never force a type."},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": fmt.Sprintf("Filename: %s\nFormat: %s\nClassify this document.", doc.Filename, doc.Format)},
				attachment,
			}},
			{"role": "system", "content": "JSON Schema:\n" + string(schemaText)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, err := llmhttp.SendJSON(ctx, c.http, endpoint, body, headers, c.log)
	if err != nil {
		c.log.Error("classify.http_error", "req_id", rid, "status", status, "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}

	content, err := llmhttp.DecodeChatContent(raw)
	if err != nil {
		c.log.Error("classify.decode_error", "req_id", rid, "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}
	if err := schema.ValidateJSONAgainstSchema(sch, []byte(content)); err != nil {
		c.log.Error("classify.schema_validation_failed", "req_id", rid, "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}

	var out Result
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnclassifiable, err)
	}
	out.ModelName = c.cfg.Model

	c.log.Info("classify.ok",
		"req_id", rid,
		"contract_type", out.ContractType,
		"confidence", out.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}
