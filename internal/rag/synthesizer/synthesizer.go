// Package synthesizer turns retrieved context into a structured answer with one LLM call.
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/rag/interfaces"
	"docqa/internal/rag/schema"
	"docqa/pkg/logger"
)

const (
	// DefaultMaxResponseTime is the soft budget for one synthesis.
	DefaultMaxResponseTime = 30 * time.Second
	// slowFraction of the budget triggers a warning.
	slowFraction = 0.8
)

// Synthesizer classifies the question, builds the prompt, calls the LLM and parses the reply.
type Synthesizer struct {
	llm             interfaces.LLM
	classifier      Classifier
	counter         *TokenCounter
	budget          int
	maxResponseTime time.Duration
	log             *logger.Logger
	metrics         *metrics.Metrics
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

func WithClassifier(c Classifier) Option {
	return func(s *Synthesizer) { s.classifier = c }
}

func WithTokenCounter(c *TokenCounter) Option {
	return func(s *Synthesizer) { s.counter = c }
}

// WithContextBudget caps the tokens spent on context blocks; <= 0 means unlimited.
func WithContextBudget(tokens int) Option {
	return func(s *Synthesizer) { s.budget = tokens }
}

// WithMaxResponseTime sets the soft budget; runs longer than 80% of it are logged.
func WithMaxResponseTime(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.maxResponseTime = d
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Synthesizer) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synthesizer) { s.metrics = m }
}

func New(llm interfaces.LLM, opts ...Option) (*Synthesizer, error) {
	if llm == nil {
		return nil, errors.New("synthesizer: llm is required")
	}
	s := &Synthesizer{
		llm:             llm,
		classifier:      NewKeywordClassifier(),
		counter:         &TokenCounter{},
		maxResponseTime: DefaultMaxResponseTime,
		log:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Synthesize answers one question. Only LLM failures are returned as errors;
// malformed model output falls back to the raw text.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, passages schema.RetrievalResult) (*schema.StructuredAnswer, error) {
	started := time.Now()
	domain := s.classifier.Classify(question)
	prompt, included := buildPrompt(domain, question, passages, s.counter, s.budget)

	raw, err := s.llm.Generate(ctx, prompt)
	elapsed := time.Since(started)
	s.checkBudget(domain, elapsed)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	answer := ParseAnswer(raw)
	log := s.log.WithFields(map[string]interface{}{
		"domain":     domain.String(),
		"blocks":     included,
		"structured": answer.Structured,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	if !answer.Structured {
		log.Warn("LLM output was not structured JSON, using raw text")
	} else {
		log.Debug("answer synthesized")
	}
	return answer, nil
}

func (s *Synthesizer) checkBudget(domain Domain, elapsed time.Duration) {
	limit := time.Duration(float64(s.maxResponseTime) * slowFraction)
	if elapsed <= limit {
		return
	}
	if s.metrics != nil {
		s.metrics.SynthesisWarned.Inc()
	}
	s.log.WithFields(map[string]interface{}{
		"domain":     domain.String(),
		"elapsed_ms": elapsed.Milliseconds(),
		"budget_ms":  s.maxResponseTime.Milliseconds(),
	}).Warn(fmt.Sprintf("answer synthesis took %s, over %.0f%% of the response budget", elapsed.Round(time.Millisecond), slowFraction*100))
}

var _ interfaces.Synthesizer = (*Synthesizer)(nil)
