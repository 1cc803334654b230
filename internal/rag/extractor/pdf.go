package extractor

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"docqa/internal/ocr"
	"docqa/internal/rag/schema"
	"docqa/pkg/logger"

	"github.com/ledongthuc/pdf"
)

// Strategy is one attempt in the PDF fallback chain. ok is false when the
// attempt could not run at all; empty text with ok true also moves the chain on.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, doc *schema.SourceDocument) (segments []schema.Segment, ok bool)
}

// PDFExtractor runs its strategies in order until one yields non-blank text.
type PDFExtractor struct {
	strategies []Strategy
	log        *logger.Logger
}

// NewPDFExtractor creates a PDFExtractor with the given chain.
func NewPDFExtractor(log *logger.Logger, strategies ...Strategy) *PDFExtractor {
	return &PDFExtractor{strategies: strategies, log: log}
}

func (p *PDFExtractor) Extract(ctx context.Context, doc *schema.SourceDocument) (*schema.ExtractedText, error) {
	for _, s := range p.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		segments, ok := p.attempt(ctx, s, doc)
		text := &schema.ExtractedText{Source: doc.Origin, Kind: schema.KindPDF, Strategy: s.Name(), Segments: segments}
		if ok && !text.IsBlank() {
			return text, nil
		}
		p.log.WithFields(map[string]interface{}{"strategy": s.Name(), "ran": ok}).Info("pdf strategy produced no text, trying next")
	}
	return nil, fmt.Errorf("%w from PDF", ErrNoText)
}

func (p *PDFExtractor) attempt(ctx context.Context, s Strategy, doc *schema.SourceDocument) (segments []schema.Segment, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(map[string]interface{}{"strategy": s.Name(), "panic": fmt.Sprint(r)}).Warn("pdf strategy panicked")
			segments, ok = nil, false
		}
	}()
	return s.Attempt(ctx, doc)
}

// openLedongthuc opens doc with the pure Go PDF reader.
func openLedongthuc(doc *schema.SourceDocument) (*os.File, *pdf.Reader, error) {
	f, err := os.Open(doc.Path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, r, nil
}

// pageFunc extracts the text of one 1-based page.
type pageFunc func(page pdf.Page) (string, error)

// eachPage applies fn to every page. Page failures are logged and skipped.
func eachPage(ctx context.Context, log *logger.Logger, strategy string, doc *schema.SourceDocument, fn pageFunc) ([]schema.Segment, bool) {
	f, r, err := openLedongthuc(doc)
	if err != nil {
		log.WithFields(map[string]interface{}{"strategy": strategy}).WithError(err).Warn("cannot open pdf")
		return nil, false
	}
	defer f.Close()

	var segments []schema.Segment
	for i := 1; i <= r.NumPage(); i++ {
		if ctx.Err() != nil {
			break
		}
		text, err := safePage(r, i, fn)
		if err != nil {
			log.WithFields(map[string]interface{}{"strategy": strategy, "page": i}).WithError(err).Warn("skipping page")
			continue
		}
		segments = append(segments, schema.Segment{Text: strings.TrimSpace(text), Page: i})
	}
	return segments, true
}

func safePage(r *pdf.Reader, i int, fn pageFunc) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", i, rec)
		}
	}()
	page := r.Page(i)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d: missing page object", i)
	}
	return fn(page)
}

// RowLayoutStrategy rebuilds lines from positioned glyphs: glyphs sharing a
// baseline form a row, rows run top to bottom and glyphs within a row left to right.
type RowLayoutStrategy struct {
	log *logger.Logger
}

func NewRowLayoutStrategy(log *logger.Logger) *RowLayoutStrategy {
	return &RowLayoutStrategy{log: log}
}

func (s *RowLayoutStrategy) Name() string { return "layout" }

func (s *RowLayoutStrategy) Attempt(ctx context.Context, doc *schema.SourceDocument) ([]schema.Segment, bool) {
	return eachPage(ctx, s.log, s.Name(), doc, func(page pdf.Page) (string, error) {
		rows := groupRows(page.Content().Text)
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			if line := joinRun(row.glyphs); strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		return strings.Join(lines, "\n"), nil
	})
}

type glyphRow struct {
	y      float64
	glyphs []pdf.Text
}

// groupRows buckets glyphs by baseline. A glyph joins the first row whose
// baseline is within 30% of its font size (at least one point).
func groupRows(glyphs []pdf.Text) []glyphRow {
	var rows []glyphRow
	for _, g := range glyphs {
		// TJ ends every array with a synthetic newline glyph.
		if g.S != "" && strings.Trim(g.S, "\r\n") == "" {
			continue
		}
		tol := math.Max(1, 0.3*g.FontSize)
		placed := false
		for i := range rows {
			if math.Abs(rows[i].y-g.Y) <= tol {
				rows[i].glyphs = append(rows[i].glyphs, g)
				placed = true
				break
			}
		}
		if !placed {
			rows = append(rows, glyphRow{y: g.Y, glyphs: []pdf.Text{g}})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })
	for _, row := range rows {
		sort.SliceStable(row.glyphs, func(i, j int) bool { return row.glyphs[i].X < row.glyphs[j].X })
	}
	return rows
}

// joinRun concatenates glyph runs, inserting a space where the horizontal gap
// is wider than a fraction of the font size.
func joinRun(words []pdf.Text) string {
	var sb strings.Builder
	for i, w := range words {
		if i > 0 {
			prev := words[i-1]
			gap := w.X - (prev.X + prev.W)
			threshold := 0.15 * w.FontSize
			if threshold <= 0 {
				threshold = 1
			}
			if gap > threshold && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(w.S, " ") {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(w.S)
	}
	return sb.String()
}

// SimpleTextStrategy reads the plain text layer page by page.
type SimpleTextStrategy struct {
	log *logger.Logger
}

func NewSimpleTextStrategy(log *logger.Logger) *SimpleTextStrategy {
	return &SimpleTextStrategy{log: log}
}

func (s *SimpleTextStrategy) Name() string { return "simple" }

func (s *SimpleTextStrategy) Attempt(ctx context.Context, doc *schema.SourceDocument) ([]schema.Segment, bool) {
	return eachPage(ctx, s.log, s.Name(), doc, func(page pdf.Page) (string, error) {
		return page.GetPlainText(nil)
	})
}

// OCRStrategy rasterizes every page and transcribes the images.
type OCRStrategy struct {
	rasterizer Rasterizer
	engine     ocr.OCR
	log        *logger.Logger
}

func NewOCRStrategy(rasterizer Rasterizer, engine ocr.OCR, log *logger.Logger) *OCRStrategy {
	return &OCRStrategy{rasterizer: rasterizer, engine: engine, log: log}
}

func (s *OCRStrategy) Name() string { return "ocr" }

func (s *OCRStrategy) Attempt(ctx context.Context, doc *schema.SourceDocument) ([]schema.Segment, bool) {
	if s.engine == nil || s.rasterizer == nil {
		return nil, false
	}
	pages, err := s.rasterizer.Rasterize(ctx, doc.Path)
	if err != nil {
		s.log.WithError(err).Warn("rasterization failed")
		return nil, false
	}

	segments := make([]schema.Segment, 0, len(pages))
	for _, page := range pages {
		if ctx.Err() != nil {
			break
		}
		text, err := s.engine.Recognize(ctx, page.PNG)
		if err != nil {
			s.log.WithFields(map[string]interface{}{"page": page.Page, "engine": s.engine.Name()}).WithError(err).Warn("ocr failed for page")
			continue
		}
		segments = append(segments, schema.Segment{Text: strings.TrimSpace(text), Page: page.Page})
	}
	return segments, true
}
