package constants

import "strings"

// DocumentFormat is the detected format of an uploaded contract document.
type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "PDF"
	FormatDOC  DocumentFormat = "DOC"
	FormatDOCX DocumentFormat = "DOCX"
)

// AllowedExtensions holds the file extensions accepted for upload.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"doc":  {},
	"docx": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a file extension to its DocumentFormat.
// Returns "" for unsupported extensions.
func MapExtToFormat(ext string) DocumentFormat {
	switch NormalizeExt(ext) {
	case "pdf":
		return FormatPDF
	case "doc":
		return FormatDOC
	case "docx":
		return FormatDOCX
	default:
		return ""
	}
}
