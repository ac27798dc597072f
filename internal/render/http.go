package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/joseph-ayodele/contracts-desk/internal/model"
)

// Config for the HTTP render service client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	OutDir  string // where rendered PDFs are written
}

// HTTPRenderer posts the extraction result to a template render service and
// stores the returned PDF. Returned bytes are sanity-checked as a PDF before
// a handle is issued; a corrupt response is a RenderError, not a handle.
type HTTPRenderer struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// NewHTTPRenderer builds a renderer client.
func NewHTTPRenderer(cfg Config, logger *slog.Logger) *HTTPRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.OutDir == "" {
		cfg.OutDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPRenderer{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: logger}
}

// Render implements Renderer.
func (r *HTTPRenderer) Render(ctx context.Context, result *model.ExtractionResult) (PDFHandle, error) {
	rid := uuid.New().String()
	start := time.Now()
	r.log.Info("render.start", "req_id", rid, "contract_type", result.ContractType, "generation", result.Generation)

	payload, err := json.Marshal(result)
	if err != nil {
		return PDFHandle{}, fmt.Errorf("%w: encode result: %v", ErrRenderFailed, err)
	}

	endpoint := strings.TrimRight(r.cfg.BaseURL, "/") + "/render"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return PDFHandle{}, fmt.Errorf("%w: build request: %v", ErrRenderFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		r.log.Error("render.http_error", "req_id", rid, "error", err)
		return PDFHandle{}, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.log.Warn("render.response_body_close_error", "req_id", rid, "error", err)
		}
	}()

	if resp.StatusCode/100 != 2 {
		r.log.Error("render.bad_status", "req_id", rid, "status", resp.StatusCode)
		return PDFHandle{}, fmt.Errorf("%w: status %d", ErrRenderFailed, resp.StatusCode)
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return PDFHandle{}, fmt.Errorf("%w: read body: %v", ErrRenderFailed, err)
	}
	if err := api.Validate(bytes.NewReader(pdf), nil); err != nil {
		r.log.Error("render.invalid_pdf", "req_id", rid, "error", err)
		return PDFHandle{}, fmt.Errorf("%w: response is not a valid pdf: %v", ErrRenderFailed, err)
	}

	id := uuid.New().String()
	path := filepath.Join(r.cfg.OutDir, id+".pdf")
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return PDFHandle{}, fmt.Errorf("%w: write pdf: %v", ErrRenderFailed, err)
	}

	r.log.Info("render.ok",
		"req_id", rid,
		"pdf_id", id,
		"bytes", len(pdf),
		"elapsed_ms", time.Since(start).Milliseconds())
	return PDFHandle{ID: id, Path: path, Size: int64(len(pdf))}, nil
}
