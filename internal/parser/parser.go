package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/docmux/internal/document"
	"github.com/dgallion1/docmux/internal/engine"
)

// Engine is one extraction adapter. Extract is a pure function of the
// document at path and must honour ctx cancellation.
type Engine interface {
	Name() string
	Extract(ctx context.Context, path string) (*document.RawResult, error)
}

// Config holds the settings shared by the local engines.
type Config struct {
	OCRConfidenceCutoff float64
	OCRDPI              int
	OCRMaxPages         int
	OCRConcurrency      int
	TesseractBin        string
	TesseractLang       string
	PdftotextBin        string
	PdftoppmBin         string
}

func (c Config) withDefaults() Config {
	if c.OCRDPI <= 0 {
		c.OCRDPI = 300
	}
	if c.OCRConcurrency <= 0 {
		c.OCRConcurrency = 2
	}
	if c.TesseractBin == "" {
		c.TesseractBin = "tesseract"
	}
	if c.TesseractLang == "" {
		c.TesseractLang = "eng"
	}
	if c.PdftotextBin == "" {
		c.PdftotextBin = "pdftotext"
	}
	if c.PdftoppmBin == "" {
		c.PdftoppmBin = "pdftoppm"
	}
	return c
}

// Clients carries the optional cloud backends. Nil fields register an
// engine that always reports ErrEngineUnavailable.
type Clients struct {
	Vision     VisionClient
	DocumentAI DocumentAIClient
	// Processor is the full Document AI processor resource name.
	Processor string
}

// Engines builds every adapter.
func Engines(cfg Config, clients Clients, runner Runner, log *slog.Logger) map[string]Engine {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Log: log}
	}
	engines := []Engine{
		&PDFTextEngine{},
		&PDFLayoutEngine{},
		&PdftotextEngine{Bin: cfg.PdftotextBin, Runner: runner},
		NewTesseractEngine(cfg, runner, log),
		NewVisionEngine(clients.Vision, cfg.OCRConfidenceCutoff),
		NewDocumentAIEngine(clients.DocumentAI, clients.Processor, cfg.OCRConfidenceCutoff),
		&XLSXEngine{},
		newFileEngine("csv", acceptExt(".csv"), &CSVParser{}),
		newFileEngine("docx", acceptExt(".docx"), &DOCXParser{}),
		newFileEngine("html", acceptExt(".html", ".htm"), &HTMLParser{}),
		newFileEngine("markdown", acceptExt(".md", ".markdown"), &MarkdownParser{}),
		newFileEngine("plaintext", acceptText, &TextParser{}),
	}
	out := make(map[string]Engine, len(engines))
	for _, e := range engines {
		out[e.Name()] = e
	}
	return out
}

// engineCategories lists the categories each engine serves.
var engineCategories = map[string][]engine.Category{
	"pdftext":    {engine.PDF},
	"pdflayout":  {engine.PDF},
	"pdftotext":  {engine.PDF},
	"tesseract":  {engine.PDF, engine.Image},
	"vision":     {engine.PDF, engine.Image},
	"documentai": {engine.PDF, engine.Image},
	"xlsx":       {engine.Spreadsheet},
	"csv":        {engine.Spreadsheet},
	"docx":       {engine.Word},
	"html":       {engine.Word},
	"markdown":   {engine.Word},
	"plaintext":  {engine.Word},
}

// Register builds every adapter and binds it into reg.
func Register(reg *engine.Registry, cfg Config, clients Clients, runner Runner, log *slog.Logger) {
	for name, e := range Engines(cfg, clients, runner, log) {
		reg.Register(name, e.Extract, engineCategories[name]...)
	}
}

// StreamParser parses an already-open document into content blocks.
type StreamParser interface {
	Parse(r io.Reader, filename string) ([]document.ContentBlock, error)
}

// fileEngine adapts a StreamParser to the Engine contract.
type fileEngine struct {
	name   string
	accept func(path string) error
	parser StreamParser
}

func newFileEngine(name string, accept func(string) error, p StreamParser) *fileEngine {
	return &fileEngine{name: name, accept: accept, parser: p}
}

func (e *fileEngine) Name() string { return e.name }

func (e *fileEngine) Extract(ctx context.Context, path string) (*document.RawResult, error) {
	if err := e.accept(path); err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", e.name, err)
	}
	defer f.Close()

	blocks, err := e.parser.Parse(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	return &document.RawResult{Engine: e.name, Blocks: blocks}, nil
}

func acceptExt(exts ...string) func(string) error {
	return func(path string) error {
		return requireExt(path, exts...)
	}
}

// textBlock builds a block for sources without native confidence or pages.
func textBlock(text string) document.ContentBlock {
	return document.ContentBlock{Text: text, Confidence: document.MaxConfidence}
}
