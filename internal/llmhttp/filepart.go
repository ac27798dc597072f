package llmhttp

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/joseph-ayodele/contracts-desk/constants"
	"github.com/joseph-ayodele/contracts-desk/internal/extract"
)

// FilePart reads the referenced document from disk and wraps it as a
// chat/completions file content part, base64-encoded behind a data URL.
// Both LLM collaborators attach documents this way.
func FilePart(doc extract.DocumentRef) (map[string]any, error) {
	b, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", doc.ID, err)
	}
	return map[string]any{
		"type": "file",
		"file": map[string]any{
			"filename":  doc.Filename,
			"file_data": "data:" + mimeFor(doc.Format) + ";base64," + base64.StdEncoding.EncodeToString(b),
		},
	}, nil
}

func mimeFor(f constants.DocumentFormat) string {
	switch f {
	case constants.FormatPDF:
		return "application/pdf"
	case constants.FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case constants.FormatDOC:
		return "application/msword"
	default:
		return "application/octet-stream"
	}
}
