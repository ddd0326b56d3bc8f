package plaintext

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/talentsift/talentsift/internal/core/domain"
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, filename, _ string, data io.Reader) (domain.Extraction, error) {
	raw, err := io.ReadAll(data)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("read resume: %w", err)
	}

	if !utf8.Valid(raw) {
		return domain.Extraction{}, fmt.Errorf("not valid UTF-8 text: %s", filename)
	}

	return domain.Extraction{Text: strings.TrimSpace(string(raw))}, nil
}
