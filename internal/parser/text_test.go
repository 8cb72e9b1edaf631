package parser

import (
	"testing"
)

func TestTextParser_BasicParagraphSplitting(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph."
	got := blockTexts(t, &TextParser{}, input, "notes.txt")

	want := []string{
		"First paragraph line one.\nFirst paragraph line two.",
		"Second paragraph.",
		"Third paragraph.",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d blocks, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("block[%d]: expected %q, got %q", i, w, got[i])
		}
	}
}

func TestTextParser_EmptyInput(t *testing.T) {
	got := blockTexts(t, &TextParser{}, "", "empty.txt")
	if len(got) != 0 {
		t.Errorf("expected 0 blocks for empty input, got %d", len(got))
	}
}

func TestTextParser_SingleLine(t *testing.T) {
	got := blockTexts(t, &TextParser{}, "Hello world", "single.txt")
	if len(got) != 1 {
		t.Fatalf("expected 1 block, got %d", len(got))
	}
	if got[0] != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", got[0])
	}
}

func TestTextParser_MultipleBlankLines(t *testing.T) {
	// Multiple consecutive blank lines should not produce empty paragraphs.
	got := blockTexts(t, &TextParser{}, "Para one.\n\n\n\nPara two.", "gaps.txt")
	if len(got) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(got))
	}
}

func TestTextParser_WhitespaceOnlyLines(t *testing.T) {
	// Lines with only whitespace should be treated as blank.
	got := blockTexts(t, &TextParser{}, "Para one.\n   \nPara two.", "ws.txt")
	if len(got) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(got))
	}
}
