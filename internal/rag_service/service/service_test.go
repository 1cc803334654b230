package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/models"
	"docqa/internal/rag/pipeline"
	"docqa/internal/rag/schema"
	"docqa/internal/rag_service/cache"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
	fail  map[int]bool
}

func (f *fakeRunner) Run(ctx context.Context, url string, questions []string) (*pipeline.Output, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, &pipeline.StageError{Stage: pipeline.StageFetch, Err: ctx.Err()}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := &pipeline.Output{RunID: "run-1", Strategy: "layout", Chunks: 7}
	for i, q := range questions {
		if f.fail[i] {
			out.Answers = append(out.Answers, "Error processing question: boom")
			out.Structured = append(out.Structured, nil)
			continue
		}
		out.Answers = append(out.Answers, "answer to "+q)
		out.Structured = append(out.Structured, &schema.StructuredAnswer{Answer: "answer to " + q})
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.RunEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e *models.RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func validRequest() *models.RunRequest {
	return &models.RunRequest{Documents: "https://example.com/policy.pdf", Questions: []string{"Q1", "Q2"}}
}

func TestValidate(t *testing.T) {
	many := make([]string, maxQuestions+1)
	for i := range many {
		many[i] = "q"
	}
	tests := []struct {
		name string
		req  *models.RunRequest
	}{
		{name: "nil", req: nil},
		{name: "no document", req: &models.RunRequest{Questions: []string{"q"}}},
		{name: "not a url", req: &models.RunRequest{Documents: "/etc/passwd", Questions: []string{"q"}}},
		{name: "no questions", req: &models.RunRequest{Documents: "https://x/a.pdf"}},
		{name: "blank question", req: &models.RunRequest{Documents: "https://x/a.pdf", Questions: []string{"q", "  "}}},
		{name: "too many", req: &models.RunRequest{Documents: "https://x/a.pdf", Questions: many}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(tt.req), ErrInvalidRequest)
		})
	}
	assert.NoError(t, Validate(validRequest()))
}

func TestRunSuccessCachesAndPublishes(t *testing.T) {
	runner := &fakeRunner{}
	pub := &recordingPublisher{}
	mem, err := cache.NewMemoryCache(4, time.Hour)
	require.NoError(t, err)
	m := metrics.New()
	s := New(runner, Options{Cache: mem, Publisher: pub, Metrics: m})

	resp, err := s.Run(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"answer to Q1", "answer to Q2"}, resp.Answers)
	assert.Empty(t, resp.Error)

	again, err := s.Run(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, resp.Answers, again.Answers)
	assert.Equal(t, 1, runner.calls, "second run is served from cache")

	require.Len(t, pub.events, 2)
	assert.Equal(t, models.RunSucceeded, pub.events[0].Status)
	assert.Equal(t, "run-1", pub.events[0].RunID)
	assert.Equal(t, 7, pub.events[0].Chunks)
	assert.Equal(t, models.RunCached, pub.events[1].Status)
	assert.True(t, pub.events[1].CacheHit)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("cached")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("published")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunsInFlight))
}

func TestRunDoesNotCachePartialFailures(t *testing.T) {
	runner := &fakeRunner{fail: map[int]bool{1: true}}
	mem, err := cache.NewMemoryCache(4, time.Hour)
	require.NoError(t, err)
	s := New(runner, Options{Cache: mem})

	for i := 0; i < 2; i++ {
		resp, err := s.Run(context.Background(), validRequest())
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "Error processing question: boom", resp.Answers[1])
	}
	assert.Equal(t, 2, runner.calls)
}

// slowRunner finishes after the deadline and reports the expiry in its answers.
type slowRunner struct {
	delay time.Duration
}

func (r slowRunner) Run(ctx context.Context, url string, questions []string) (*pipeline.Output, error) {
	time.Sleep(r.delay)
	out := &pipeline.Output{RunID: "run-late", Strategy: "layout"}
	for range questions {
		msg := "answered"
		if ctx.Err() != nil {
			msg = "Error processing question: " + ctx.Err().Error()
		}
		out.Answers = append(out.Answers, msg)
		out.Structured = append(out.Structured, nil)
	}
	return out, nil
}

func TestRunKeepsAnswersReturnedPastDeadline(t *testing.T) {
	tests := []struct {
		name    string
		delay   time.Duration
		timeout time.Duration
		want    string
	}{
		{name: "within deadline", delay: 0, timeout: time.Second, want: "answered"},
		{name: "past deadline", delay: 50 * time.Millisecond, timeout: 10 * time.Millisecond, want: "Error processing question: context deadline exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			s := New(slowRunner{delay: tt.delay}, Options{Publisher: pub, Timeout: tt.timeout})

			resp, err := s.Run(context.Background(), validRequest())
			require.NoError(t, err)
			assert.True(t, resp.Success)
			assert.Empty(t, resp.Error)
			assert.Equal(t, []string{tt.want, tt.want}, resp.Answers)
			require.Len(t, pub.events, 1)
			assert.Equal(t, models.RunSucceeded, pub.events[0].Status)
		})
	}
}

func TestRunFailures(t *testing.T) {
	fetchErr := &pipeline.StageError{Stage: pipeline.StageFetch, Err: errors.New("404")}
	tests := []struct {
		name    string
		runner  *fakeRunner
		req     *models.RunRequest
		timeout time.Duration
		is      error
		stage   string
	}{
		{name: "invalid", runner: &fakeRunner{}, req: &models.RunRequest{}, is: ErrInvalidRequest},
		{name: "fetch", runner: &fakeRunner{err: fetchErr}, req: validRequest(), is: pipeline.ErrFetch, stage: pipeline.StageFetch},
		{name: "timeout", runner: &fakeRunner{delay: time.Second}, req: validRequest(), timeout: 20 * time.Millisecond, is: ErrTimeout, stage: pipeline.StageFetch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{err: errors.New("kafka down")}
			s := New(tt.runner, Options{Publisher: pub, Timeout: tt.timeout})

			resp, err := s.Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
			require.NotNil(t, resp)
			assert.False(t, resp.Success)
			assert.Equal(t, err.Error(), resp.Error)
			assert.NotNil(t, resp.Answers)
			assert.Empty(t, resp.Answers)

			if tt.stage == "" {
				assert.Empty(t, pub.events, "invalid requests are rejected before a run starts")
				assert.Equal(t, 0, tt.runner.calls)
				return
			}
			require.Len(t, pub.events, 1)
			assert.Equal(t, models.RunFailed, pub.events[0].Status)
			assert.Equal(t, tt.stage, pub.events[0].Stage)
		})
	}
}

func TestHealth(t *testing.T) {
	s := New(&fakeRunner{}, Options{Health: HealthInfo{CredentialsConfigured: true, LLMProvider: "gemini"}})
	h := s.Health()
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.CredentialsConfigured)
	assert.Equal(t, "gemini", h.LLMProvider)
	assert.NotEmpty(t, h.Uptime)
}
