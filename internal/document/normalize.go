package document

import (
	"crypto/sha256"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// Normalize converts an accepted engine result into a CanonicalDocument.
// It never fails: malformed results collapse to the empty sentinel.
func Normalize(path string, raw *RawResult) CanonicalDocument {
	if raw == nil || malformed(raw.Blocks) {
		return Empty(path)
	}

	blocks := make([]ContentBlock, 0, len(raw.Blocks))
	texts := make([]string, 0, len(raw.Blocks))
	for _, b := range raw.Blocks {
		if b.Blank() {
			continue
		}
		if b.Coordinates != nil {
			c := *b.Coordinates
			b.Coordinates = &c
		}
		blocks = append(blocks, b)
		texts = append(texts, b.Text)
	}

	return CanonicalDocument{
		FileName: baseName(path),
		Text:     strings.Join(texts, "\n"),
		Blocks:   blocks,
	}
}

func malformed(blocks []ContentBlock) bool {
	for _, b := range blocks {
		if b.Page < 0 {
			return true
		}
		if math.IsNaN(b.Confidence) || b.Confidence < 0 || b.Confidence > MaxConfidence {
			return true
		}
	}
	return false
}

func baseName(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// FileHashHex streams the file at path through SHA-256.
func FileHashHex(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
