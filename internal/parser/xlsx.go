package parser

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/dgallion1/docmux/internal/document"
)

// XLSXEngine reads every sheet of a workbook. The first row of a sheet is
// its header; each following row becomes one block and Page is the
// 1-based sheet index.
type XLSXEngine struct{}

func (e *XLSXEngine) Name() string { return "xlsx" }

func (e *XLSXEngine) Extract(ctx context.Context, path string) (*document.RawResult, error) {
	if err := requireExt(path, ".xlsx", ".xlsm"); err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open: %w", err)
	}
	defer f.Close()

	res := &document.RawResult{Engine: e.Name()}
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("xlsx: sheet %q: %w", sheet, err)
		}
		res.Pages++
		if len(rows) == 0 {
			continue
		}
		headers := rows[0]
		for _, row := range rows[1:] {
			if text := rowText(headers, row); text != "" {
				res.Blocks = append(res.Blocks, document.ContentBlock{
					Page:       i + 1,
					Text:       text,
					Confidence: document.MaxConfidence,
				})
			}
		}
	}
	return res, nil
}
