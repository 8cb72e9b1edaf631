package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/docmux/internal/document"
)

// PdftotextEngine runs poppler's pdftotext with -bbox-layout and turns each
// layout block into a content block with its bounding box in points.
type PdftotextEngine struct {
	Bin    string
	Runner Runner
}

func (e *PdftotextEngine) Name() string { return "pdftotext" }

func (e *PdftotextEngine) Extract(ctx context.Context, path string) (*document.RawResult, error) {
	if err := requireExt(path, ".pdf"); err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	out, errb, err := e.Runner.Run(ctx, e.Bin, "-bbox-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("pdftotext: %w: %v", ErrEngineUnavailable, err)
		}
		return nil, fmt.Errorf("pdftotext: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	res, err := parseBBoxLayout(out)
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	res.Engine = e.Name()
	return res, nil
}

// parseBBoxLayout reads the XHTML emitted by pdftotext -bbox-layout:
// page > flow > block > line > word.
func parseBBoxLayout(data []byte) (*document.RawResult, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse bbox layout: %w", err)
	}

	res := &document.RawResult{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "page":
				res.Pages++
			case "block":
				if b, ok := bboxBlock(n); ok {
					b.Page = res.Pages
					res.Blocks = append(res.Blocks, b)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return res, nil
}

func bboxBlock(n *html.Node) (document.ContentBlock, bool) {
	var lines []string
	for l := n.FirstChild; l != nil; l = l.NextSibling {
		if l.Type != html.ElementNode || l.Data != "line" {
			continue
		}
		var words []string
		for w := l.FirstChild; w != nil; w = w.NextSibling {
			if w.Type == html.ElementNode && w.Data == "word" {
				if t := textContent(w); t != "" {
					words = append(words, t)
				}
			}
		}
		if len(words) > 0 {
			lines = append(lines, strings.Join(words, " "))
		}
	}
	if len(lines) == 0 {
		return document.ContentBlock{}, false
	}

	// The html tokenizer lowercases attribute names.
	xMin, yMin := attrFloat(n, "xmin"), attrFloat(n, "ymin")
	xMax, yMax := attrFloat(n, "xmax"), attrFloat(n, "ymax")
	return document.ContentBlock{
		Coordinates: &document.Rect{Left: xMin, Top: yMin, Width: xMax - xMin, Height: yMax - yMin},
		Text:        strings.Join(lines, "\n"),
		Confidence:  document.MaxConfidence,
	}, true
}

func attrFloat(n *html.Node, key string) float64 {
	v, err := strconv.ParseFloat(attr(n, key), 64)
	if err != nil {
		return 0
	}
	return v
}
