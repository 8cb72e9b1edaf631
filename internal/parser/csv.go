package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docmux/internal/document"
)

// CSVParser handles CSV files. The first row is the header; each data row
// becomes one block of "Header: value" pairs.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) ([]document.ContentBlock, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	headers := records[0]
	var blocks []document.ContentBlock
	for _, row := range records[1:] {
		if text := rowText(headers, row); text != "" {
			blocks = append(blocks, textBlock(text))
		}
	}
	return blocks, nil
}

// rowText renders one row against its headers, skipping empty cells.
func rowText(headers, row []string) string {
	var text strings.Builder
	for j, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString(", ")
		}
		if j < len(headers) && strings.TrimSpace(headers[j]) != "" {
			text.WriteString(strings.TrimSpace(headers[j]) + ": " + cell)
		} else {
			text.WriteString(cell)
		}
	}
	return text.String()
}
