package parser

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/gabriel-vasile/mimetype"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/status"

	"github.com/dgallion1/docmux/internal/document"
)

const (
	// maxCloudBytes is the inline payload limit for synchronous requests (20MB).
	maxCloudBytes = 20 * 1024 * 1024

	// maxVisionPages is the page limit for synchronous file annotation.
	maxVisionPages = 5
)

// VisionClient is the subset of *vision.ImageAnnotatorClient we use.
type VisionClient interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	BatchAnnotateFiles(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateFilesResponse, error)
}

// DocumentAIClient is the subset of *documentai.DocumentProcessorClient we use.
type DocumentAIClient interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
}

// readCloudPayload loads a document for inline upload and reports its MIME type.
func readCloudPayload(engine, path string) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		if err := requireExt(path, imageExts...); err != nil {
			return nil, "", fmt.Errorf("%s: %w", engine, err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%s: read: %w", engine, err)
	}
	if len(data) > maxCloudBytes {
		return nil, "", fmt.Errorf("%s: file too large for inline request: %d bytes", engine, len(data))
	}
	mt, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return data, mt, nil
}

// VisionEngine runs Google Cloud Vision DOCUMENT_TEXT_DETECTION and returns
// one block per detected paragraph.
type VisionEngine struct {
	client VisionClient
	cutoff float64
}

func NewVisionEngine(client VisionClient, cutoff float64) *VisionEngine {
	return &VisionEngine{client: client, cutoff: cutoff}
}

func (e *VisionEngine) Name() string { return "vision" }

func (e *VisionEngine) Extract(ctx context.Context, path string) (*document.RawResult, error) {
	if e.client == nil {
		return nil, fmt.Errorf("vision: %w: no credentials configured", ErrEngineUnavailable)
	}
	data, mime, err := readCloudPayload("vision", path)
	if err != nil {
		return nil, err
	}
	features := []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}}

	var pages []*visionpb.AnnotateImageResponse
	if mime == "application/pdf" {
		resp, err := e.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
			Requests: []*visionpb.AnnotateFileRequest{{
				InputConfig: &visionpb.InputConfig{Content: data, MimeType: mime},
				Features:    features,
				// Unset Pages means the first maxVisionPages pages.
			}},
		})
		if err != nil {
			return nil, rpcError("vision", err)
		}
		if len(resp.GetResponses()) == 0 {
			return nil, fmt.Errorf("vision: empty response")
		}
		file := resp.GetResponses()[0]
		if file.GetError() != nil {
			return nil, rpcError("vision", status.ErrorProto(file.GetError()))
		}
		pages = file.GetResponses()
	} else {
		resp, err := e.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
			Requests: []*visionpb.AnnotateImageRequest{{
				Image:    &visionpb.Image{Content: data},
				Features: features,
			}},
		})
		if err != nil {
			return nil, rpcError("vision", err)
		}
		pages = resp.GetResponses()
	}

	res := &document.RawResult{Engine: e.Name()}
	for i, page := range pages {
		if page.GetError() != nil {
			return nil, rpcError("vision", status.ErrorProto(page.GetError()))
		}
		num := int(page.GetContext().GetPageNumber())
		if num == 0 {
			num = i + 1
		}
		res.Pages++
		for _, p := range page.GetFullTextAnnotation().GetPages() {
			res.Blocks = append(res.Blocks, e.paragraphs(p, num)...)
		}
	}
	return res, nil
}

// paragraphs converts one annotated page, dropping words below the cutoff.
func (e *VisionEngine) paragraphs(page *visionpb.Page, num int) []document.ContentBlock {
	var blocks []document.ContentBlock
	for _, b := range page.GetBlocks() {
		for _, para := range b.GetParagraphs() {
			var sb strings.Builder
			var confSum float64
			var kept int
			for _, w := range para.GetWords() {
				conf := float64(w.GetConfidence()) * 100
				if conf < e.cutoff {
					continue
				}
				sep := ""
				for _, s := range w.GetSymbols() {
					sb.WriteString(s.GetText())
					switch s.GetProperty().GetDetectedBreak().GetType() {
					case visionpb.TextAnnotation_DetectedBreak_LINE_BREAK,
						visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE:
						sep = "\n"
					case visionpb.TextAnnotation_DetectedBreak_SPACE,
						visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
						sep = " "
					}
				}
				sb.WriteString(sep)
				confSum += conf
				kept++
			}
			text := strings.TrimSpace(sb.String())
			if kept == 0 || text == "" {
				continue
			}
			blocks = append(blocks, document.ContentBlock{
				Page:        num,
				Coordinates: visionRect(para.GetBoundingBox(), page.GetWidth(), page.GetHeight()),
				Text:        text,
				Confidence:  math.Min(confSum/float64(kept), document.MaxConfidence),
			})
		}
	}
	return blocks
}

func visionRect(box *visionpb.BoundingPoly, width, height int32) *document.Rect {
	var xs, ys []float64
	for _, v := range box.GetVertices() {
		xs = append(xs, float64(v.GetX()))
		ys = append(ys, float64(v.GetY()))
	}
	if len(xs) == 0 {
		for _, v := range box.GetNormalizedVertices() {
			xs = append(xs, float64(v.GetX())*float64(width))
			ys = append(ys, float64(v.GetY())*float64(height))
		}
	}
	return boundingRect(xs, ys)
}

// DocumentAIEngine sends the document to a Document AI OCR processor and
// returns one block per detected line.
type DocumentAIEngine struct {
	client    DocumentAIClient
	processor string
	cutoff    float64
}

func NewDocumentAIEngine(client DocumentAIClient, processor string, cutoff float64) *DocumentAIEngine {
	return &DocumentAIEngine{client: client, processor: processor, cutoff: cutoff}
}

func (e *DocumentAIEngine) Name() string { return "documentai" }

func (e *DocumentAIEngine) Extract(ctx context.Context, path string) (*document.RawResult, error) {
	if e.client == nil || e.processor == "" {
		return nil, fmt.Errorf("documentai: %w: no processor configured", ErrEngineUnavailable)
	}
	data, mime, err := readCloudPayload("documentai", path)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: e.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mime,
			},
		},
	})
	if err != nil {
		return nil, rpcError("documentai", err)
	}
	doc := resp.GetDocument()
	if doc == nil {
		return nil, fmt.Errorf("documentai: no document in response")
	}

	// Anchor indices count characters, not bytes.
	full := []rune(doc.GetText())
	res := &document.RawResult{Engine: e.Name(), Pages: len(doc.GetPages())}
	for i, page := range doc.GetPages() {
		num := int(page.GetPageNumber())
		if num == 0 {
			num = i + 1
		}
		dim := page.GetDimension()
		for _, line := range page.GetLines() {
			layout := line.GetLayout()
			conf := float64(layout.GetConfidence()) * 100
			if conf < e.cutoff {
				continue
			}
			text := strings.TrimSpace(anchorText(full, layout.GetTextAnchor()))
			if text == "" {
				continue
			}
			res.Blocks = append(res.Blocks, document.ContentBlock{
				Page:        num,
				Coordinates: documentAIRect(layout.GetBoundingPoly(), dim.GetWidth(), dim.GetHeight()),
				Text:        text,
				Confidence:  math.Min(conf, document.MaxConfidence),
			})
		}
	}
	return res, nil
}

// anchorText resolves a text anchor against the document's full text.
func anchorText(full []rune, anchor *documentaipb.Document_TextAnchor) string {
	var sb strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end > int64(len(full)) || start >= end {
			continue
		}
		sb.WriteString(string(full[start:end]))
	}
	return sb.String()
}

func documentAIRect(box *documentaipb.BoundingPoly, width, height float32) *document.Rect {
	var xs, ys []float64
	for _, v := range box.GetVertices() {
		xs = append(xs, float64(v.GetX()))
		ys = append(ys, float64(v.GetY()))
	}
	if len(xs) == 0 {
		for _, v := range box.GetNormalizedVertices() {
			xs = append(xs, float64(v.GetX())*float64(width))
			ys = append(ys, float64(v.GetY())*float64(height))
		}
	}
	return boundingRect(xs, ys)
}

func boundingRect(xs, ys []float64) *document.Rect {
	if len(xs) == 0 {
		return nil
	}
	left, top := math.Inf(1), math.Inf(1)
	right, bottom := math.Inf(-1), math.Inf(-1)
	for i := range xs {
		left, right = math.Min(left, xs[i]), math.Max(right, xs[i])
		top, bottom = math.Min(top, ys[i]), math.Max(bottom, ys[i])
	}
	return &document.Rect{Left: left, Top: top, Width: right - left, Height: bottom - top}
}
