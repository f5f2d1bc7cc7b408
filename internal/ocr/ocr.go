// Package ocr extracts plain text from lender policy documents.
package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lender-match/internal/config"
)

// Extractor extracts text content from a document.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// NewExtractor returns an Extractor that reads plain-text documents
// directly and runs everything else through pdftotext.
func NewExtractor(cfg config.IngestConfig) Extractor {
	return &byExtension{pdf: NewPdfToText(cfg.PdfToTextPath)}
}

type byExtension struct {
	pdf Extractor
}

func (e *byExtension) ExtractText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "ocr: read %s", path)
		}
		return string(data), nil
	default:
		return e.pdf.ExtractText(ctx, path)
	}
}
