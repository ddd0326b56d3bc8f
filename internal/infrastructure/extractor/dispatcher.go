package extractor

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/talentsift/talentsift/internal/core/domain"
	"github.com/talentsift/talentsift/internal/core/ports"
	"github.com/talentsift/talentsift/internal/infrastructure/extractor/pdf"
	"github.com/talentsift/talentsift/internal/infrastructure/extractor/plaintext"
	"github.com/talentsift/talentsift/internal/infrastructure/extractor/xlsx"
)

// Dispatcher routes a resume to the extractor for its format. The MIME type
// wins when present; the filename extension is the fallback because browsers
// often upload with application/octet-stream.
type Dispatcher struct {
	pdf   ports.TextExtractor
	xlsx  ports.TextExtractor
	plain ports.TextExtractor
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		pdf:   pdf.New(),
		xlsx:  xlsx.New(),
		plain: plaintext.New(),
	}
}

func (d *Dispatcher) Extract(ctx context.Context, filename, mimeType string, data io.Reader) (domain.Extraction, error) {
	extraction, err := d.pick(filename, mimeType).Extract(ctx, filename, mimeType, data)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract text", err)
	}
	return extraction, nil
}

func (d *Dispatcher) pick(filename, mimeType string) ports.TextExtractor {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0])) {
	case "application/pdf":
		return d.pdf
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return d.xlsx
	case "text/plain", "text/markdown":
		return d.plain
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return d.pdf
	case ".xlsx":
		return d.xlsx
	default:
		return d.plain
	}
}
