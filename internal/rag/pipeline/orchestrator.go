// Package pipeline runs one document through fetch, extraction, chunking and
// indexing, then answers every question against the resulting index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/rag/extractor"
	"docqa/internal/rag/interfaces"
	"docqa/internal/rag/schema"
	"docqa/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Extractor produces a tagged extraction result. *extractor.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, doc *schema.SourceDocument) extractor.Result
}

// Components are the stages of a run. All are required.
type Components struct {
	Fetcher     interfaces.Fetcher
	Extractor   Extractor
	Splitter    interfaces.Splitter
	Indexer     interfaces.IndexBuilder
	Retriever   interfaces.Retriever
	Synthesizer interfaces.Synthesizer
}

// Output is the result of a successful run. Answers and Structured are in
// question order; a failed question has a nil Structured entry.
type Output struct {
	RunID      string
	Answers    []string
	Structured []*schema.StructuredAnswer
	Elapsed    time.Duration
	Strategy   string
	Chunks     int
}

// Orchestrator is safe for concurrent runs; each run owns its document and index.
type Orchestrator struct {
	c           Components
	topK        int
	concurrency int
	format      string
	log         *logger.Logger
	metrics     *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTopK sets how many chunks each question retrieves.
func WithTopK(k int) Option {
	return func(o *Orchestrator) { o.topK = k }
}

// WithConcurrency bounds the number of questions answered at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithAnswerFormat selects how structured answers are rendered into strings.
func WithAnswerFormat(format string) Option {
	return func(o *Orchestrator) { o.format = format }
}

func WithLogger(log *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(c Components, opts ...Option) (*Orchestrator, error) {
	if c.Fetcher == nil || c.Extractor == nil || c.Splitter == nil || c.Indexer == nil || c.Retriever == nil || c.Synthesizer == nil {
		return nil, errors.New("pipeline: every component is required")
	}
	o := &Orchestrator{
		c:           c,
		concurrency: defaultConcurrency,
		format:      schema.FormatAnswer,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("component", "pipeline")
	return o, nil
}

// Run fetches the document at url and answers the questions against it.
func (o *Orchestrator) Run(ctx context.Context, url string, questions []string) (*Output, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := o.log.WithFields(map[string]interface{}{"run_id": runID, "document": url})

	stageStart := time.Now()
	doc, err := o.c.Fetcher.Fetch(ctx, url)
	o.metrics.ObserveStage(StageFetch, stageStart)
	if err != nil {
		log.WithError(err).Error("document fetch failed")
		return nil, stageError(StageFetch, err)
	}
	return o.answer(ctx, runID, log, doc, questions, started)
}

// RunDocument answers questions against an already acquired document. The
// document is released before RunDocument returns.
func (o *Orchestrator) RunDocument(ctx context.Context, doc *schema.SourceDocument, questions []string) (*Output, error) {
	runID := uuid.NewString()
	log := o.log.WithFields(map[string]interface{}{"run_id": runID, "document": doc.Origin})
	return o.answer(ctx, runID, log, doc, questions, time.Now())
}

func (o *Orchestrator) answer(ctx context.Context, runID string, log *logger.Logger, doc *schema.SourceDocument, questions []string, started time.Time) (*Output, error) {
	defer func() { _ = doc.Release() }()

	stageStart := time.Now()
	res := o.c.Extractor.Extract(ctx, doc)
	o.metrics.ObserveStage(StageExtract, stageStart)
	o.release(log, doc)
	if res.Status != extractor.StatusOK {
		return nil, stageError(StageExtract, res.Err())
	}

	stageStart = time.Now()
	chunks, err := o.c.Splitter.Split(ctx, res.Text)
	o.metrics.ObserveStage(StageChunk, stageStart)
	if err != nil {
		return nil, stageError(StageChunk, err)
	}

	stageStart = time.Now()
	index, err := o.c.Indexer.Build(ctx, chunks)
	o.metrics.ObserveStage(StageIndex, stageStart)
	if err != nil {
		return nil, stageError(StageIndex, err)
	}
	if o.metrics != nil {
		o.metrics.ChunksPerRun.Observe(float64(len(chunks)))
	}
	log.WithFields(map[string]interface{}{
		"strategy":  res.Text.Strategy,
		"chunks":    len(chunks),
		"questions": len(questions),
	}).Info("document indexed")

	out := &Output{
		RunID:      runID,
		Answers:    make([]string, len(questions)),
		Structured: make([]*schema.StructuredAnswer, len(questions)),
		Strategy:   res.Text.Strategy,
		Chunks:     len(chunks),
	}

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, q := range questions {
		g.Go(func() error {
			answer, err := o.answerOne(ctx, index, q)
			if err != nil {
				log.WithError(err).With("question_index", i).Warn("question failed")
				out.Answers[i] = questionErrorPrefix + err.Error()
				o.countQuestion("failed")
				return nil
			}
			out.Structured[i] = answer
			out.Answers[i] = answer.Render(o.format)
			if answer.Structured {
				o.countQuestion("answered")
			} else {
				o.countQuestion("raw")
			}
			return nil
		})
	}
	_ = g.Wait()

	out.Elapsed = time.Since(started)
	return out, nil
}

// answerOne retrieves and synthesizes one answer. A panic is returned as an error.
func (o *Orchestrator) answerOne(ctx context.Context, index interfaces.VectorIndex, question string) (answer *schema.StructuredAnswer, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.With("stack", string(debug.Stack())).Error(fmt.Sprintf("panic while answering: %v", r))
			answer, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()

	stageStart := time.Now()
	found, err := o.c.Retriever.Search(ctx, index, question, o.topK)
	o.metrics.ObserveStage("retrieve", stageStart)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	stageStart = time.Now()
	answer, err = o.c.Synthesizer.Synthesize(ctx, question, found)
	o.metrics.ObserveStage("synthesize", stageStart)
	if err != nil {
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}
	return answer, nil
}

func (o *Orchestrator) release(log *logger.Logger, doc *schema.SourceDocument) {
	if err := doc.Release(); err != nil {
		log.WithError(err).Warn("failed to remove temporary document")
	}
}

func (o *Orchestrator) countQuestion(outcome string) {
	if o.metrics != nil {
		o.metrics.QuestionsTotal.WithLabelValues(outcome).Inc()
	}
}
