package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"pdf":            PDF,
		" PDF ":          PDF,
		"image":          Image,
		"excel":          Spreadsheet,
		"spreadsheet":    Spreadsheet,
		"word":           Word,
		"word-processor": Word,
	}
	for in, want := range cases {
		got, err := ParseCategory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCategory("audio")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestDetectCategory(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

	cases := []struct {
		name string
		data []byte
		want Category
	}{
		{"scan.pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"), PDF},
		{"photo.bin", png, Image},
		{"notes.md", []byte("# Title\n\nSome text.\n"), Word},
		{"page.html", []byte("<!DOCTYPE html><html><body><p>Hi</p></body></html>"), Word},
		{"rows.csv", []byte("a,b,c\n1,2,3\n4,5,6\n"), Spreadsheet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DetectCategory(writeFile(t, tc.name, tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDetectCategory_Unknown(t *testing.T) {
	_, err := DetectCategory(writeFile(t, "blob.xyz", []byte{0x00, 0x01, 0x02, 0x03, 0xff, 0xfe}))
	assert.ErrorIs(t, err, ErrUnknownCategory)
}
