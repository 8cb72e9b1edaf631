package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docmux/internal/document"
	"github.com/dgallion1/docmux/internal/fallback"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runEnv(t, nil, args...)
}

func runEnv(t *testing.T, env map[string]string, args ...string) (string, string, error) {
	t.Helper()
	for _, k := range []string{"ENGINE_TABLE", "GOOGLE_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS", "DOCUMENT_AI_PROCESSOR_ID"} {
		t.Setenv(k, env[k])
	}
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExtract_PrintsText(t *testing.T) {
	stdout, stderr, err := run(t, "extract", writeDoc(t, "notes.md", "# Notes\n\nBody text.\n"))
	require.NoError(t, err)
	assert.Equal(t, "Notes\nBody text.\n", stdout)
	assert.Contains(t, stderr, "engine: markdown")
}

func TestExtract_JSON(t *testing.T) {
	stdout, _, err := run(t, "extract", "--json", "--category", "word", writeDoc(t, "notes.txt", "hello\n"))
	require.NoError(t, err)

	var doc document.CanonicalDocument
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, "notes.txt", doc.FileName)
	assert.Equal(t, "hello", doc.Text)
}

func TestExtract_DetailReportsExhaustion(t *testing.T) {
	// Spreadsheet engines reject a text file regardless of content.
	stdout, _, err := run(t, "extract", "--detail", "--category", "spreadsheet", writeDoc(t, "data.txt", "a,b\n"))
	require.NoError(t, err)

	var out fallback.Outcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, fallback.StatusExhausted, out.Status)
	assert.Len(t, out.Attempts, 2)
	assert.Empty(t, out.Document.Blocks)
}

func TestExtract_ExhaustedIsError(t *testing.T) {
	_, _, err := run(t, "extract", "--category", "spreadsheet", writeDoc(t, "data.txt", "a,b\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no engine produced content")
}

func TestExtract_UnknownCategory(t *testing.T) {
	_, _, err := run(t, "extract", "--category", "hologram", writeDoc(t, "a.txt", "x"))
	assert.ErrorContains(t, err, "unknown document category")
}

func TestEngines_ListsCategory(t *testing.T) {
	stdout, _, err := run(t, "engines", "--category", "image")
	require.NoError(t, err)
	assert.Contains(t, stdout, "CATEGORY")
	assert.Contains(t, stdout, "tesseract")
	assert.Contains(t, stdout, "documentai")
	assert.NotContains(t, stdout, "pdftext")
}

func TestEngines_AllShowsUnlistedEngines(t *testing.T) {
	table := writeDoc(t, "engines.yaml", `
categories:
  word:
    engines:
      - name: plaintext
        mode: parallel
        success_rate: 0.5
        speed: fast
`)
	env := map[string]string{"ENGINE_TABLE": table}

	stdout, _, err := runEnv(t, env, "engines")
	require.NoError(t, err)
	assert.Contains(t, stdout, "plaintext")
	assert.NotContains(t, stdout, "unlisted")

	stdout, _, err = runEnv(t, env, "engines", "--all")
	require.NoError(t, err)
	for _, name := range []string{"docx", "html", "markdown"} {
		assert.Regexp(t, `word\s+`+name+`\s+unlisted`, stdout)
	}
	assert.NotRegexp(t, `plaintext\s+unlisted`, stdout)
}
