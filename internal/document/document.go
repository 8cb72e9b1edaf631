package document

import "strings"

// MaxConfidence is reported by engines that have no native confidence score.
const MaxConfidence = 100.0

// Rect is a block's position on its page, in the engine's native units.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ContentBlock is one unit of extracted text.
type ContentBlock struct {
	Page        int     `json:"page,omitempty"` // 1-based; 0 for non-paginated sources
	Coordinates *Rect   `json:"coordinates,omitempty"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"` // 0..100
}

// Blank reports whether the block carries no text.
func (b ContentBlock) Blank() bool {
	return strings.TrimSpace(b.Text) == ""
}

// RawResult is what an engine adapter returns on success.
type RawResult struct {
	Engine string
	Pages  int
	Blocks []ContentBlock
}

// NonEmpty reports whether at least one block has non-blank text.
func (r *RawResult) NonEmpty() bool {
	if r == nil {
		return false
	}
	for _, b := range r.Blocks {
		if !b.Blank() {
			return true
		}
	}
	return false
}

// CanonicalDocument is the engine-agnostic extraction result.
// The zero-content value (Text "", Blocks empty) means no engine succeeded.
type CanonicalDocument struct {
	FileName string         `json:"file_name"`
	Text     string         `json:"text"`
	Blocks   []ContentBlock `json:"blocks"`
}

// Empty returns the "no engine succeeded" sentinel for path.
func Empty(path string) CanonicalDocument {
	return CanonicalDocument{
		FileName: baseName(path),
		Blocks:   []ContentBlock{},
	}
}

// IsEmpty reports whether d carries no content blocks.
func (d CanonicalDocument) IsEmpty() bool {
	return len(d.Blocks) == 0
}
