package parser

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/docmux/internal/document"
)

var imageExts = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".gif", ".webp"}

// TesseractEngine OCRs images directly and PDFs after rasterizing them with
// pdftoppm. Words below the confidence cutoff are dropped; the rest are
// grouped into one block per text line.
type TesseractEngine struct {
	cfg    Config
	runner Runner
	log    *slog.Logger
}

func NewTesseractEngine(cfg Config, runner Runner, log *slog.Logger) *TesseractEngine {
	return &TesseractEngine{cfg: cfg.withDefaults(), runner: runner, log: log}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Extract(ctx context.Context, path string) (*document.RawResult, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return e.extractPDF(ctx, path)
	}
	if err := requireExt(path, imageExts...); err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}
	blocks, err := e.ocrImage(ctx, path, 1)
	if err != nil {
		return nil, err
	}
	return &document.RawResult{Engine: e.Name(), Pages: 1, Blocks: blocks}, nil
}

func (e *TesseractEngine) extractPDF(ctx context.Context, path string) (*document.RawResult, error) {
	tmpDir, err := os.MkdirTemp("", "docmux-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.log.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.PdftoppmBin, "-r", strconv.Itoa(e.cfg.OCRDPI), "-png", path, prefix)
	if err != nil {
		return nil, execError("pdftoppm", err, errb)
	}

	// collect generated pngs (page-1.png, page-2.png, ...); pdftoppm zero-pads
	// to the width of the page count so a lexical sort keeps page order.
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.OCRMaxPages > 0 && len(matches) > e.cfg.OCRMaxPages {
		matches = matches[:e.cfg.OCRMaxPages]
	}
	if len(matches) == 0 {
		return nil, errors.New("tesseract: pdftoppm produced no images")
	}

	pages := make([][]document.ContentBlock, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.OCRConcurrency)
	for i, img := range matches {
		g.Go(func() error {
			blocks, err := e.ocrImage(gctx, img, i+1)
			if err != nil {
				return err
			}
			pages[i] = blocks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &document.RawResult{Engine: e.Name(), Pages: len(matches)}
	for _, blocks := range pages {
		res.Blocks = append(res.Blocks, blocks...)
	}
	return res, nil
}

func (e *TesseractEngine) ocrImage(ctx context.Context, img string, page int) ([]document.ContentBlock, error) {
	// tesseract <img> stdout --oem 3 --psm 6 -l eng tsv
	out, errb, err := e.runner.Run(ctx, e.cfg.TesseractBin, img, "stdout", "--oem", "3", "--psm", "6", "-l", e.cfg.TesseractLang, "tsv")
	if err != nil {
		return nil, execError("tesseract", err, errb)
	}
	words, err := parseTSV(out)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}
	return groupLines(words, page, e.cfg.OCRConfidenceCutoff), nil
}

func execError(tool string, err error, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%s: %w: %v", tool, ErrEngineUnavailable, err)
	}
	msg := truncate(strings.TrimSpace(string(stderr)), 512)
	if msg == "" {
		return fmt.Errorf("%s: %w", tool, err)
	}
	return fmt.Errorf("%s: %w: %s", tool, err, msg)
}

// tsvWord is one level-5 row of tesseract's TSV output.
type tsvWord struct {
	block, par, line int
	rect             document.Rect
	conf             float64
	text             string
}

// parseTSV reads tesseract's 12-column TSV:
// level page_num block_num par_num line_num word_num left top width height conf text
func parseTSV(data []byte) ([]tsvWord, error) {
	var words []tsvWord
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	header := true
	for sc.Scan() {
		if header {
			header = false
			if strings.HasPrefix(sc.Text(), "level") {
				continue
			}
		}
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < 11 || cols[0] != "5" {
			continue
		}
		text := ""
		if len(cols) >= 12 {
			text = strings.TrimSpace(cols[11])
		}
		if text == "" {
			continue
		}
		nums := make([]float64, 11)
		for i := 1; i < 11; i++ {
			v, err := strconv.ParseFloat(cols[i], 64)
			if err != nil {
				return nil, fmt.Errorf("tsv column %d: %w", i+1, err)
			}
			nums[i] = v
		}
		words = append(words, tsvWord{
			block: int(nums[2]),
			par:   int(nums[3]),
			line:  int(nums[4]),
			rect:  document.Rect{Left: nums[6], Top: nums[7], Width: nums[8], Height: nums[9]},
			conf:  nums[10],
			text:  text,
		})
	}
	return words, sc.Err()
}

// groupLines drops words below cutoff and merges the survivors of each
// (block, paragraph, line) into one block with the mean word confidence
// and the union of the word boxes.
func groupLines(words []tsvWord, page int, cutoff float64) []document.ContentBlock {
	type key struct{ block, par, line int }
	type acc struct {
		texts                    []string
		confSum                  float64
		left, top, right, bottom float64
	}

	var order []key
	lines := make(map[key]*acc)
	for _, w := range words {
		if w.conf < cutoff {
			continue
		}
		k := key{w.block, w.par, w.line}
		a, ok := lines[k]
		if !ok {
			a = &acc{left: math.Inf(1), top: math.Inf(1), right: math.Inf(-1), bottom: math.Inf(-1)}
			lines[k] = a
			order = append(order, k)
		}
		a.texts = append(a.texts, w.text)
		a.confSum += w.conf
		a.left = math.Min(a.left, w.rect.Left)
		a.top = math.Min(a.top, w.rect.Top)
		a.right = math.Max(a.right, w.rect.Left+w.rect.Width)
		a.bottom = math.Max(a.bottom, w.rect.Top+w.rect.Height)
	}

	blocks := make([]document.ContentBlock, 0, len(order))
	for _, k := range order {
		a := lines[k]
		blocks = append(blocks, document.ContentBlock{
			Page:        page,
			Coordinates: &document.Rect{Left: a.left, Top: a.top, Width: a.right - a.left, Height: a.bottom - a.top},
			Text:        strings.Join(a.texts, " "),
			Confidence:  math.Min(a.confSum/float64(len(a.texts)), document.MaxConfidence),
		})
	}
	return blocks
}
