package openai

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
	"github.com/joseph-ayodele/contracts-desk/internal/llmhttp"
	"github.com/joseph-ayodele/contracts-desk/internal/schema"
)

// Extract implements extract.Capability. It posts a chat/completions request
// with the document attached and the contract type's JSON schema embedded in
// the prompt, and returns the model's raw JSON content. Failure classes map
// onto the adapter's retry taxonomy: transport errors, 408/429 and 5xx are
// transient; 400/422 is malformed input; 401/403 is an authorization
// failure; an undecodable body is unparseable.
func (c *Client) Extract(ctx context.Context, doc extract.DocumentRef, ct constants.ContractType, prior *extract.Context) ([]byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	def, err := c.validator.Definition(ct)
	if err != nil {
		return nil, &extract.Error{Kind: extract.ErrMalformedInput, Cause: err}
	}
	jsonSchema := mustJSON(schema.BuildJSONSchema(def))

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"document_id", doc.ID,
		"contract_type", ct,
		"corrected_pass", prior != nil,
	)

	attachment, err := llmhttp.FilePart(doc)
	if err != nil {
		c.log.Error("llm.extract.read_document_failed", "req_id", rid, "error", err)
		return nil, &extract.Error{Kind: extract.ErrMalformedInput, Cause: err}
	}

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": buildSystemPrompt(ct, prior)},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": buildUserPrompt(doc, prior) + "\n\nReturn ONLY JSON that matches the provided schema."},
				attachment,
			}},
			{"role": "system", "content": "JSON Schema:\n" + jsonSchema},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, httpErr := llmhttp.SendJSON(ctx, c.http, endpoint, body, headers, c.log)
	if httpErr != nil {
		kind := kindForStatus(status)
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "status", status, "kind", kind, "error", httpErr,
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, &extract.Error{Kind: kind, Cause: httpErr}
	}

	content, err := llmhttp.DecodeChatContent(raw)
	if err != nil {
		c.log.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds())
		return nil, &extract.Error{Kind: extract.ErrUnparseable, Cause: err}
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"content_bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds())
	return []byte(strings.TrimSpace(content)), nil
}

func kindForStatus(status int) extract.ErrorKind {
	switch {
	case status == 401 || status == 403:
		return extract.ErrAuthorization
	case status == 400 || status == 422:
		return extract.ErrMalformedInput
	case status == 0, status == 408, status == 429, status >= 500:
		return extract.ErrTransient
	default:
		return extract.ErrTransient
	}
}
