package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmux/internal/document"
)

func noop(context.Context, string) (*document.RawResult, error) { return nil, nil }

func fullRegistry() *Registry {
	reg := NewRegistry()
	reg.Register("pdftext", noop, PDF)
	reg.Register("pdflayout", noop, PDF)
	reg.Register("pdftotext", noop, PDF)
	reg.Register("vision", noop, PDF, Image)
	reg.Register("documentai", noop, PDF, Image)
	reg.Register("tesseract", noop, PDF, Image)
	reg.Register("xlsx", noop, Spreadsheet)
	reg.Register("csv", noop, Spreadsheet)
	reg.Register("docx", noop, Word)
	reg.Register("html", noop, Word)
	reg.Register("markdown", noop, Word)
	reg.Register("plaintext", noop, Word)
	return reg
}

func TestRegistry_NamesSortedPerCategory(t *testing.T) {
	reg := fullRegistry()
	assert.Equal(t, []string{"documentai", "tesseract", "vision"}, reg.Names(Image))
	assert.Equal(t, []string{"docx", "html", "markdown", "plaintext"}, reg.Names(Word))
	assert.Empty(t, NewRegistry().Names(PDF))
}

func names(ds []Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

func TestDefaultTable_PreservesPriorityOrder(t *testing.T) {
	table, err := DefaultTable(fullRegistry())
	require.NoError(t, err)

	pdf, err := table.Descriptors(PDF)
	require.NoError(t, err)
	assert.Equal(t, []string{"pdftext", "pdflayout", "pdftotext", "vision", "documentai", "tesseract"}, names(pdf))

	par, seq := Partition(pdf)
	assert.Equal(t, []string{"pdftext", "pdflayout", "pdftotext"}, names(par))
	assert.Equal(t, []string{"vision", "documentai", "tesseract"}, names(seq))

	img, err := table.Descriptors(Image)
	require.NoError(t, err)
	par, seq = Partition(img)
	assert.Equal(t, []string{"tesseract"}, names(par))
	assert.Equal(t, []string{"vision", "documentai"}, names(seq))

	assert.Equal(t, Categories, table.Categories())
	for _, d := range pdf {
		assert.NotNil(t, d.Invoke, d.Name)
	}
}

func TestLoadTable_UnknownEngine(t *testing.T) {
	src := `
categories:
  pdf:
    engines:
      - name: nosuch
        mode: parallel
        speed: fast
`
	_, err := LoadTable(strings.NewReader(src), fullRegistry())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEngine)

	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestLoadTable_EngineNotRegisteredForCategory(t *testing.T) {
	src := `
categories:
  image:
    engines:
      - name: pdftext
        mode: parallel
`
	_, err := LoadTable(strings.NewReader(src), fullRegistry())
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestLoadTable_RejectsBadDescriptors(t *testing.T) {
	cases := map[string]string{
		"bad mode": `
categories:
  pdf:
    engines:
      - {name: pdftext, mode: sometimes}
`,
		"rate out of range": `
categories:
  pdf:
    engines:
      - {name: pdftext, mode: parallel, success_rate: 1.5}
`,
		"duplicate": `
categories:
  pdf:
    engines:
      - {name: pdftext, mode: parallel}
      - {name: pdftext, mode: sequential}
`,
		"bad speed": `
categories:
  pdf:
    engines:
      - {name: pdftext, mode: parallel, speed: warp}
`,
		"bad timeout": `
categories:
  pdf:
    timeout: soon
    engines:
      - {name: pdftext, mode: parallel}
`,
		"unknown field": `
categories:
  pdf:
    engines:
      - {name: pdftext, mode: parallel, weight: 3}
`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadTable(strings.NewReader(src), fullRegistry())
			assert.ErrorIs(t, err, ErrInvalidDescriptor)
		})
	}
}

func TestLoadTable_UnknownCategory(t *testing.T) {
	src := `
categories:
  audio:
    engines:
      - {name: pdftext, mode: parallel}
`
	_, err := LoadTable(strings.NewReader(src), fullRegistry())
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestLoadTable_TimeoutOverrideAndDefaults(t *testing.T) {
	src := `
categories:
  spreadsheet:
    timeout: 45s
    engines:
      - {name: xlsx, mode: parallel}
`
	table, err := LoadTable(strings.NewReader(src), fullRegistry())
	require.NoError(t, err)

	d, ok := table.Timeout(Spreadsheet)
	assert.True(t, ok)
	assert.Equal(t, 45*time.Second, d)

	_, ok = table.Timeout(PDF)
	assert.False(t, ok)

	ds, err := table.Descriptors(Spreadsheet)
	require.NoError(t, err)
	assert.Equal(t, Medium, ds[0].Speed)

	_, err = table.Descriptors(PDF)
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestTable_DescriptorsReturnsCopy(t *testing.T) {
	table, err := DefaultTable(fullRegistry())
	require.NoError(t, err)

	ds, _ := table.Descriptors(Word)
	ds[0].Name = "mutated"

	again, _ := table.Descriptors(Word)
	assert.Equal(t, "docx", again[0].Name)
}

func TestNewTable_RequiresInvoke(t *testing.T) {
	_, err := NewTable(map[Category][]Descriptor{
		PDF: {{Name: "x", Mode: Parallel, Speed: Fast}},
	})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}
