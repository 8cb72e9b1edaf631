package parser

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/docmux/internal/document"
)

// PDFTextEngine reads the native text layer, one block per page with rows
// separated by newlines.
type PDFTextEngine struct{}

func (e *PDFTextEngine) Name() string { return "pdftext" }

func (e *PDFTextEngine) Extract(ctx context.Context, path string) (*document.RawResult, error) {
	if err := requireExt(path, ".pdf"); err != nil {
		return nil, fmt.Errorf("pdftext: %w", err)
	}
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdftext: open: %w", err)
	}
	defer f.Close()

	res := &document.RawResult{Engine: e.Name(), Pages: reader.NumPage()}
	for i := 1; i <= res.Pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := pageRows(page)
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			if b, ok := layoutBlock(row, 0); ok {
				lines = append(lines, b.Text)
			}
		}
		if len(lines) == 0 {
			continue
		}
		res.Blocks = append(res.Blocks, document.ContentBlock{
			Page:       i,
			Text:       strings.Join(lines, "\n"),
			Confidence: document.MaxConfidence,
		})
	}
	return res, nil
}

// PDFLayoutEngine groups positioned glyphs into rows, one block per row, with
// coordinates in points from the top-left of the page.
type PDFLayoutEngine struct{}

func (e *PDFLayoutEngine) Name() string { return "pdflayout" }

func (e *PDFLayoutEngine) Extract(ctx context.Context, path string) (*document.RawResult, error) {
	if err := requireExt(path, ".pdf"); err != nil {
		return nil, fmt.Errorf("pdflayout: %w", err)
	}
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdflayout: open: %w", err)
	}
	defer f.Close()

	res := &document.RawResult{Engine: e.Name(), Pages: reader.NumPage()}
	for i := 1; i <= res.Pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := pageRows(page)
		if err != nil {
			continue
		}
		height := pageHeight(page)
		for _, row := range rows {
			if b, ok := layoutBlock(row, height); ok {
				b.Page = i
				res.Blocks = append(res.Blocks, b)
			}
		}
	}
	return res, nil
}

// pageRows groups the page's glyphs by rounded baseline. Rows run from the
// top of the page down and each row is ordered left to right.
func pageRows(page pdflib.Page) (rows [][]pdflib.Text, err error) {
	defer func() {
		// The content interpreter panics on malformed operators.
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("read page content: %v", r)
		}
	}()

	byLine := map[float64][]pdflib.Text{}
	for _, t := range page.Content().Text {
		y := math.Round(t.Y)
		byLine[y] = append(byLine[y], t)
	}
	ys := make([]float64, 0, len(byLine))
	for y := range byLine {
		ys = append(ys, y)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(ys)))

	for _, y := range ys {
		row := byLine[y]
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })
		rows = append(rows, row)
	}
	return rows, nil
}

// maxPageTreeDepth bounds the Parent walk on malformed, cyclic page trees.
const maxPageTreeDepth = 32

// pageHeight returns the MediaBox height, inherited from the nearest /Pages
// ancestor when the page does not carry one, or 0 when none is found.
func pageHeight(page pdflib.Page) float64 {
	v := page.V
	for depth := 0; depth < maxPageTreeDepth && !v.IsNull(); depth++ {
		if box := v.Key("MediaBox"); box.Len() == 4 {
			return box.Index(3).Float64() - box.Index(1).Float64()
		}
		v = v.Key("Parent")
	}
	return 0
}

// layoutBlock joins the glyphs of one row, inserting a single space where the
// row carries whitespace or a visible gap. Whitespace does not extend the
// block's bounds.
func layoutBlock(runs []pdflib.Text, height float64) (document.ContentBlock, bool) {
	var sb strings.Builder
	left, right := math.Inf(1), math.Inf(-1)
	var baseline, size float64
	prevEnd := math.Inf(-1)
	space := false
	for _, t := range runs {
		lead := strings.TrimLeftFunc(t.S, unicode.IsSpace)
		s := strings.TrimRightFunc(lead, unicode.IsSpace)
		if s == "" {
			space = space || t.S != ""
			continue
		}
		if sb.Len() > 0 && (space || len(lead) < len(t.S) || t.X-prevEnd > t.FontSize*0.2) {
			sb.WriteByte(' ')
		}
		space = len(s) < len(lead)
		sb.WriteString(s)
		prevEnd = t.X + t.W
		left = math.Min(left, t.X)
		right = math.Max(right, t.X+t.W)
		baseline = t.Y
		size = math.Max(size, t.FontSize)
	}
	if sb.Len() == 0 {
		return document.ContentBlock{}, false
	}

	top := baseline + size
	if height > 0 {
		top = height - top
	}
	return document.ContentBlock{
		Coordinates: &document.Rect{Left: left, Top: top, Width: right - left, Height: size},
		Text:        sb.String(),
		Confidence:  document.MaxConfidence,
	}, true
}
