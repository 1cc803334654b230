// Package service validates run requests and wraps the pipeline with caching,
// a hard timeout, run events and metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/models"
	"docqa/internal/rag/pipeline"
	"docqa/internal/rag_service/cache"
	"docqa/pkg/logger"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRequest marks a request rejected before any processing.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTimeout is returned when the run exceeds the request timeout.
	ErrTimeout = errors.New("request timed out")
)

const (
	maxQuestions      = 100
	publishTimeout    = 5 * time.Second
	defaultRunTimeout = 120 * time.Second
)

// Runner executes one pipeline run. *pipeline.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, url string, questions []string) (*pipeline.Output, error)
}

// Publisher receives one event per finished run.
type Publisher interface {
	Publish(ctx context.Context, event *models.RunEvent) error
}

// HealthInfo describes the process and its configured providers.
type HealthInfo struct {
	Status                string `json:"status"`
	CredentialsConfigured bool   `json:"credentials_configured"`
	LLMProvider           string `json:"llm_provider,omitempty"`
	EmbeddingProvider     string `json:"embedding_provider,omitempty"`
	OCRProvider           string `json:"ocr_provider,omitempty"`
	IndexBackend          string `json:"index_backend,omitempty"`
	Uptime                string `json:"uptime,omitempty"`
}

// Options holds the optional collaborators of a Service.
type Options struct {
	Cache        cache.Cache
	Publisher    Publisher
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
	Timeout      time.Duration
	AnswerFormat string
	Health       HealthInfo
}

type Service struct {
	runner    Runner
	cache     cache.Cache
	publisher Publisher
	metrics   *metrics.Metrics
	log       *logger.Logger
	timeout   time.Duration
	format    string
	health    HealthInfo
	started   time.Time
}

func New(runner Runner, opts Options) *Service {
	s := &Service{
		runner:    runner,
		cache:     opts.Cache,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		timeout:   opts.Timeout,
		format:    opts.AnswerFormat,
		health:    opts.Health,
		started:   time.Now(),
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.timeout <= 0 {
		s.timeout = defaultRunTimeout
	}
	return s
}

// Validate checks a request without running it.
func Validate(req *models.RunRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidRequest)
	}
	doc := strings.TrimSpace(req.Documents)
	if doc == "" {
		return fmt.Errorf("%w: documents is required", ErrInvalidRequest)
	}
	if !strings.HasPrefix(doc, "http://") && !strings.HasPrefix(doc, "https://") {
		return fmt.Errorf("%w: documents must be an http(s) URL", ErrInvalidRequest)
	}
	if len(req.Questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrInvalidRequest)
	}
	if len(req.Questions) > maxQuestions {
		return fmt.Errorf("%w: at most %d questions are allowed", ErrInvalidRequest, maxQuestions)
	}
	for i, q := range req.Questions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("%w: question %d is blank", ErrInvalidRequest, i+1)
		}
	}
	return nil
}

// Run answers the request. On a fatal error the response has Success=false and
// the error is returned as well so the caller can choose a status code.
func (s *Service) Run(ctx context.Context, req *models.RunRequest) (*models.RunResponse, error) {
	started := time.Now()
	if err := Validate(req); err != nil {
		return failure(err, started), err
	}
	url := strings.TrimSpace(req.Documents)

	if s.metrics != nil {
		s.metrics.RunsInFlight.Inc()
		defer s.metrics.RunsInFlight.Dec()
	}

	key := cache.Key(url, req.Questions, s.format)
	if entry := s.lookup(ctx, key); entry != nil && len(entry.Answers) == len(req.Questions) {
		resp := &models.RunResponse{Answers: entry.Answers, ProcessingTime: since(started), Success: true}
		s.finish(ctx, &models.RunEvent{
			RunID:         uuid.NewString(),
			Document:      url,
			QuestionCount: len(req.Questions),
			Status:        models.RunCached,
			Strategy:      entry.Strategy,
			CacheHit:      true,
		}, started, "cached")
		return resp, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	out, err := s.runner.Run(runCtx, url, req.Questions)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, s.timeout, err)
		}
		event := &models.RunEvent{
			RunID:         uuid.NewString(),
			Document:      url,
			QuestionCount: len(req.Questions),
			Status:        models.RunFailed,
			Error:         err.Error(),
		}
		var se *pipeline.StageError
		if errors.As(err, &se) {
			event.Stage = se.Stage
		}
		s.log.WithError(err).With("document", url).Error("run failed")
		s.finish(ctx, event, started, "failed")
		return failure(err, started), err
	}

	s.store(ctx, key, out)
	s.finish(ctx, &models.RunEvent{
		RunID:         out.RunID,
		Document:      url,
		QuestionCount: len(req.Questions),
		Status:        models.RunSucceeded,
		Strategy:      out.Strategy,
		Chunks:        out.Chunks,
	}, started, "success")
	return &models.RunResponse{Answers: out.Answers, ProcessingTime: since(started), Success: true}, nil
}

// Health reports static readiness; it never touches the pipeline.
func (s *Service) Health() HealthInfo {
	h := s.health
	if h.Status == "" {
		h.Status = "ok"
	}
	h.Uptime = time.Since(s.started).Round(time.Second).String()
	return h
}

func (s *Service) lookup(ctx context.Context, key string) *cache.Entry {
	if s.cache == nil {
		return nil
	}
	entry, err := s.cache.Get(ctx, key)
	result := "miss"
	switch {
	case err != nil:
		result = "error"
		s.log.WithError(err).Warn("answer cache lookup failed")
	case entry != nil:
		result = "hit"
	}
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
	return entry
}

// store caches only runs in which every question was answered.
func (s *Service) store(ctx context.Context, key string, out *pipeline.Output) {
	if s.cache == nil {
		return
	}
	for _, a := range out.Structured {
		if a == nil {
			return
		}
	}
	entry := &cache.Entry{Answers: out.Answers, Strategy: out.Strategy, StoredAt: time.Now().UTC()}
	if err := s.cache.Set(ctx, key, entry); err != nil {
		s.log.WithError(err).Warn("answer cache store failed")
	}
}

func (s *Service) finish(ctx context.Context, event *models.RunEvent, started time.Time, status string) {
	elapsed := time.Since(started)
	event.ElapsedSeconds = elapsed.Seconds()
	event.Timestamp = time.Now().UTC()
	if s.metrics != nil {
		s.metrics.RunsTotal.WithLabelValues(status).Inc()
		s.metrics.RunDuration.Observe(elapsed.Seconds())
	}
	if s.publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	outcome := "published"
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		outcome = "failed"
		s.log.WithError(err).With("run_id", event.RunID).Warn("run event not published")
	}
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues(outcome).Inc()
	}
}

func failure(err error, started time.Time) *models.RunResponse {
	return &models.RunResponse{
		Answers:        []string{},
		ProcessingTime: since(started),
		Success:        false,
		Error:          err.Error(),
	}
}

func since(t time.Time) float64 {
	return time.Since(t).Seconds()
}
