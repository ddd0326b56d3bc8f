package xlsx

import (
	"bytes"
	"context"
	"encoding/base64"
	_ "image/png"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractJoinsCellsPerRow(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	_ = book.SetCellValue(sheet, "A1", "Jane Doe")
	_ = book.SetCellValue(sheet, "B1", "Senior Engineer")
	_ = book.SetCellValue(sheet, "A2", "Go")
	_ = book.SetCellValue(sheet, "B2", "7 years")

	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	extraction, err := New().Extract(context.Background(), "skills.xlsx", "", &buf)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(extraction.Text, "Jane Doe Senior Engineer") {
		t.Fatalf("missing joined row, got %q", extraction.Text)
	}
	if !strings.Contains(extraction.Text, "Go 7 years") {
		t.Fatalf("missing second row, got %q", extraction.Text)
	}
}

func TestExtractCollectsEmbeddedPictures(t *testing.T) {
	// 1x1 transparent PNG.
	png, err := base64.StdEncoding.DecodeString(
		"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mP8z8BQDwAEhQGAhKmMIQAAAABJRU5ErkJggg==")
	if err != nil {
		t.Fatalf("decode png fixture: %v", err)
	}

	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	_ = book.SetCellValue(sheet, "A1", "Jane Doe")
	if err := book.AddPictureFromBytes(sheet, "B2", &excelize.Picture{
		Extension: ".png",
		File:      png,
	}); err != nil {
		t.Fatalf("add picture: %v", err)
	}

	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	extraction, err := New().Extract(context.Background(), "skills.xlsx", "", &buf)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(extraction.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(extraction.Images))
	}
	img := extraction.Images[0]
	if img.Extension != ".png" {
		t.Fatalf("extension = %q, want .png", img.Extension)
	}
	if !bytes.Equal(img.Data, png) {
		t.Fatalf("picture bytes do not round-trip")
	}
}

func TestExtractRejectsNonWorkbook(t *testing.T) {
	_, err := New().Extract(context.Background(), "skills.xlsx", "", strings.NewReader("plain text"))
	if err == nil {
		t.Fatalf("expected error")
	}
}
