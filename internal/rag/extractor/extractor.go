// Package extractor turns fetched documents into plain text.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"docqa/internal/config"
	"docqa/internal/metrics"
	"docqa/internal/ocr"
	"docqa/internal/rag/schema"
	"docqa/pkg/logger"
)

var (
	// ErrNoText means the document was readable but yielded no text.
	ErrNoText = errors.New("no text extracted")
	// ErrUnsupportedFormat means no extractor can read the document.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

// Status tags an extraction Result.
type Status int

const (
	StatusOK Status = iota
	StatusEmpty
	StatusUnsupported
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusUnsupported:
		return "unsupported"
	default:
		return "error"
	}
}

// Result is the outcome of one extraction. Text is set only for StatusOK.
type Result struct {
	Status Status
	Text   *schema.ExtractedText
	Reason string
	err    error
}

// OK wraps extracted text.
func OK(text *schema.ExtractedText) Result {
	return Result{Status: StatusOK, Text: text}
}

// Empty reports that every attempt yielded no text.
func Empty(reason string) Result {
	return Result{Status: StatusEmpty, Reason: reason}
}

// Unsupported reports a document that no extractor can read.
func Unsupported(reason string) Result {
	return Result{Status: StatusUnsupported, Reason: reason}
}

// Failed reports an unexpected extraction error.
func Failed(err error) Result {
	return Result{Status: StatusError, Reason: err.Error(), err: err}
}

// Err converts a non-OK result into an error matching ErrNoText or ErrUnsupportedFormat.
func (r Result) Err() error {
	switch r.Status {
	case StatusOK:
		return nil
	case StatusEmpty:
		return fmt.Errorf("%w: %s", ErrNoText, r.Reason)
	case StatusUnsupported:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, r.Reason)
	default:
		if r.err != nil {
			return r.err
		}
		return errors.New(r.Reason)
	}
}

// FormatExtractor reads one document kind. Implementations return ErrNoText or
// ErrUnsupportedFormat (possibly wrapped) for the corresponding outcomes.
type FormatExtractor interface {
	Extract(ctx context.Context, doc *schema.SourceDocument) (*schema.ExtractedText, error)
}

// Extractor dispatches on document kind. Nothing escapes Extract: panics and
// errors become Result values.
type Extractor struct {
	formats map[schema.Kind]FormatExtractor
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates an Extractor with no registered formats.
func New(log *logger.Logger, m *metrics.Metrics) *Extractor {
	return &Extractor{
		formats: make(map[schema.Kind]FormatExtractor),
		log:     log.With("component", "extractor"),
		metrics: m,
	}
}

// NewDefault registers every built-in format. engine may be nil to disable OCR.
func NewDefault(cfg config.ExtractorConfig, engine ocr.OCR, log *logger.Logger, m *metrics.Metrics) *Extractor {
	e := New(log, m)
	licensed := UnidocLicensed()

	strategies := []Strategy{NewRowLayoutStrategy(e.log)}
	if licensed {
		strategies[0] = NewUnidocLayoutStrategy(e.log)
	}
	strategies = append(strategies, NewSimpleTextStrategy(e.log))
	if engine != nil {
		var rasterizer Rasterizer = NewPdftoppmRasterizer(cfg.PdftoppmPath, cfg.DPI)
		if cfg.Rasterizer == "unipdf" && licensed {
			rasterizer = NewUnidocRasterizer()
		}
		strategies = append(strategies, NewOCRStrategy(rasterizer, engine, e.log))
	}

	e.Register(schema.KindPDF, NewPDFExtractor(e.log, strategies...))
	e.Register(schema.KindDOCX, NewDOCXExtractor(licensed))
	e.Register(schema.KindXLSX, &XLSXExtractor{})
	e.Register(schema.KindHTML, &HTMLExtractor{})
	e.Register(schema.KindEmail, &EmailExtractor{})
	e.Register(schema.KindText, &TextExtractor{})
	return e
}

// Register installs or replaces the extractor for a kind.
func (e *Extractor) Register(kind schema.Kind, fe FormatExtractor) {
	e.formats[kind] = fe
}

// Extract reads doc into text.
func (e *Extractor) Extract(ctx context.Context, doc *schema.SourceDocument) (res Result) {
	started := time.Now()
	log := e.log.WithFields(map[string]interface{}{"source": doc.Origin, "kind": string(doc.Kind)})

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(map[string]interface{}{"panic": fmt.Sprint(r), "stack": string(debug.Stack())}).Error("extractor panicked")
			res = Failed(fmt.Errorf("extractor panicked: %v", r))
		}
		strategy := "-"
		if res.Text != nil && res.Text.Strategy != "" {
			strategy = res.Text.Strategy
		}
		if e.metrics != nil {
			e.metrics.ExtractionsTotal.WithLabelValues(string(doc.Kind), strategy, res.Status.String()).Inc()
		}
		log.WithFields(map[string]interface{}{
			"status":      res.Status.String(),
			"strategy":    strategy,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("extraction finished")
	}()

	fe, ok := e.formats[doc.Kind]
	if !ok {
		return Unsupported(fmt.Sprintf("no extractor for kind %q", doc.Kind))
	}

	text, err := fe.Extract(ctx, doc)
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return Unsupported(err.Error())
	case errors.Is(err, ErrNoText):
		return Empty(err.Error())
	case err != nil:
		log.WithError(err).Warn("extraction failed")
		return Failed(err)
	case text.IsBlank():
		return Empty(fmt.Sprintf("no text extracted from %s", doc.Kind))
	}

	if text.Source == "" {
		text.Source = doc.Origin
	}
	text.Kind = doc.Kind
	return OK(text)
}
