// Package render holds the PDF-generation and delivery collaborators.
package render

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/contracts-desk/internal/model"
)

// ErrRenderFailed is the retryable rendering failure. A session stays at
// Confirmed with render_pending set and rendering can be retried without
// re-running extraction.
var ErrRenderFailed = errors.New("pdf rendering failed")

// PDFHandle is an opaque reference to a rendered document.
type PDFHandle struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Renderer turns a confirmed extraction result into a PDF.
type Renderer interface {
	Render(ctx context.Context, result *model.ExtractionResult) (PDFHandle, error)
}

// Delivery consumes a rendered PDF (download link, email). Its outcome is
// irrelevant to workflow state beyond the render_pending/Finalized
// distinction.
type Delivery interface {
	Deliver(ctx context.Context, handle PDFHandle) error
}
