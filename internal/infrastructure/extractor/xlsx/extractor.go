package xlsx

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/talentsift/talentsift/internal/core/domain"
)

type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract joins every cell of every sheet, one row per line, and collects
// embedded pictures (portrait photos, scanned certificates). Spreadsheet
// resumes are usually skill matrices, so cell order matters more than layout.
func (e *Extractor) Extract(_ context.Context, filename, _ string, data io.Reader) (domain.Extraction, error) {
	book, err := excelize.OpenReader(data)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("parse xlsx %s: %w", filename, err)
	}
	defer book.Close()

	var out strings.Builder
	var images []domain.ExtractedImage
	for _, sheet := range book.GetSheetList() {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line == "" {
				continue
			}
			out.WriteString(line)
			out.WriteString("\n")
		}

		pics, err := sheetPictures(book, sheet)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("read sheet %s pictures: %w", sheet, err)
		}
		images = append(images, pics...)
	}
	return domain.Extraction{Text: strings.TrimSpace(out.String()), Images: images}, nil
}

func sheetPictures(book *excelize.File, sheet string) ([]domain.ExtractedImage, error) {
	cells, err := book.GetPictureCells(sheet)
	if err != nil {
		return nil, err
	}
	var images []domain.ExtractedImage
	for _, cell := range cells {
		pics, err := book.GetPictures(sheet, cell)
		if err != nil {
			return nil, err
		}
		for _, pic := range pics {
			if len(pic.File) == 0 {
				continue
			}
			images = append(images, domain.ExtractedImage{
				Extension: strings.ToLower(pic.Extension),
				Data:      pic.File,
			})
		}
	}
	return images, nil
}
