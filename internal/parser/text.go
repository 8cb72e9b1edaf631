package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dgallion1/docmux/internal/document"
)

// TextParser handles plain text files. Each paragraph becomes one block.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) ([]document.ContentBlock, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blocks []document.ContentBlock
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			blocks = append(blocks, textBlock(current.String()))
			current.Reset()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// acceptText admits any file whose content sniffs as text, whatever its extension.
func acceptText(path string) error {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("detect content type: %w", err)
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, mt.String())
}
