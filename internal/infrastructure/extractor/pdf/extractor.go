package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/talentsift/talentsift/internal/core/domain"
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract buffers the whole file because the pdf reader needs random access.
// Resumes are small, so this stays in memory. The reader is text-only, so
// embedded images are not recovered from PDFs.
func (e *Extractor) Extract(_ context.Context, filename, _ string, data io.Reader) (domain.Extraction, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("read resume: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("parse pdf %s: %w", filename, err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extract pdf text %s: %w", filename, err)
	}

	var out strings.Builder
	if _, err := io.Copy(&out, textReader); err != nil {
		return domain.Extraction{}, fmt.Errorf("read pdf text %s: %w", filename, err)
	}
	return domain.Extraction{Text: strings.TrimSpace(out.String())}, nil
}
