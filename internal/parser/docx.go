package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/docmux/internal/document"
)

// DOCXParser handles .docx files. Every non-empty paragraph becomes one block.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) ([]document.ContentBlock, error) {
	ra, size, cleanup, err := readerAt(r, "docmux-docx-*.docx")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	doc, err := docx.Parse(ra, size)
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var blocks []document.ContentBlock
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		if text := docxParagraphText(para); text != "" {
			blocks = append(blocks, textBlock(text))
		}
	}
	return blocks, nil
}

// readerAt gives random access to r, using it directly when it is a file.
func readerAt(r io.Reader, pattern string) (io.ReaderAt, int64, func(), error) {
	if f, ok := r.(*os.File); ok {
		st, err := f.Stat()
		if err != nil {
			return nil, 0, nil, fmt.Errorf("stat: %w", err)
		}
		return f, st.Size(), func() {}, nil
	}

	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}
	size, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("write temp file: %w", err)
	}
	return tmp, size, cleanup, nil
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
