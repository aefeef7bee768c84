// Package extract pulls plain text out of uploaded documents ahead of
// ingestion. PDF, Markdown, and plain text are supported.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedType indicates the document type has no extractor.
	ErrUnsupportedType = errors.New("unsupported document type")

	// ErrExtraction indicates the document could not be read, e.g. an
	// encrypted or damaged PDF.
	ErrExtraction = errors.New("text extraction failed")
)

// Text extracts plain text from a document. The type is decided by the
// declared contentType first and the filename extension as a fallback.
func Text(data []byte, contentType, filename string) (string, error) {
	switch kind(contentType, filename) {
	case "pdf":
		return pdfText(data)
	case "text":
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %q (%s)", ErrUnsupportedType, contentType, filename)
	}
}

func kind(contentType, filename string) string {
	// Strip parameters like "; charset=utf-8".
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	switch contentType {
	case "application/pdf":
		return "pdf"
	case "text/plain", "text/markdown":
		return "text"
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "pdf"
	case ".txt", ".md", ".markdown":
		return "text"
	}
	return ""
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, plain); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return sb.String(), nil
}
