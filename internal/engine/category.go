package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Category is a document family with its own engine list.
type Category string

const (
	PDF         Category = "pdf"
	Image       Category = "image"
	Spreadsheet Category = "spreadsheet"
	Word        Category = "word"
)

// Categories lists every supported category in display order.
var Categories = []Category{PDF, Image, Spreadsheet, Word}

var categoryAliases = map[string]Category{
	"pdf":            PDF,
	"image":          Image,
	"img":            Image,
	"spreadsheet":    Spreadsheet,
	"excel":          Spreadsheet,
	"xlsx":           Spreadsheet,
	"word":           Word,
	"word-processor": Word,
	"docx":           Word,
}

// ParseCategory resolves a user-supplied category name.
func ParseCategory(s string) (Category, error) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", configErr("ParseCategory", ErrUnknownCategory, fmt.Sprintf("%q", s))
	}
	return c, nil
}

var extCategories = map[string]Category{
	".pdf":      PDF,
	".png":      Image,
	".jpg":      Image,
	".jpeg":     Image,
	".tif":      Image,
	".tiff":     Image,
	".bmp":      Image,
	".gif":      Image,
	".webp":     Image,
	".xlsx":     Spreadsheet,
	".xlsm":     Spreadsheet,
	".csv":      Spreadsheet,
	".docx":     Word,
	".htm":      Word,
	".html":     Word,
	".md":       Word,
	".markdown": Word,
	".txt":      Word,
}

// mimeCategories maps detected content types, checked along the mimetype parent chain.
var mimeCategories = map[string]Category{
	"application/pdf": PDF,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       Spreadsheet,
	"text/csv": Spreadsheet,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": Word,
	"text/html": Word,
}

// CategoryForExt maps a file extension to its category.
func CategoryForExt(filename string) (Category, bool) {
	c, ok := extCategories[strings.ToLower(filepath.Ext(filename))]
	return c, ok
}

// DetectCategory sniffs the file content and falls back to the extension
// for generic types (plain text, zip, octet-stream).
func DetectCategory(path string) (Category, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}
	for m := mt; m != nil; m = m.Parent() {
		base, _, _ := strings.Cut(m.String(), ";")
		if c, ok := mimeCategories[base]; ok {
			return c, nil
		}
		if strings.HasPrefix(base, "image/") {
			return Image, nil
		}
	}
	if c, ok := CategoryForExt(path); ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnknownCategory, filepath.Base(path), mt.String())
}
