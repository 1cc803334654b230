package synthesizer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"docqa/internal/metrics"
	"docqa/internal/rag/schema"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	reply   string
	err     error
	delay   time.Duration
	prompts []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.reply, f.err
}

func passages(texts ...string) schema.RetrievalResult {
	out := make(schema.RetrievalResult, len(texts))
	for i, t := range texts {
		out[i] = schema.ScoredChunk{Chunk: schema.Chunk{Text: t, Page: i + 1, Index: i}, Score: 1 - float32(i)/10}
	}
	return out
}

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()
	tests := []struct {
		question string
		want     Domain
	}{
		{"What is the grace period for premium payment?", DomainInsurance},
		{"Does the policy cover maternity expenses?", DomainInsurance},
		{"Which court has jurisdiction over a breach of contract?", DomainLegal},
		{"How many days of leave does an employee get?", DomainHR},
		{"What are the KYC and AML audit obligations?", DomainCompliance},
		{"What is the capital of France?", DomainGeneral},
		{"", DomainGeneral},
		// one hit each: the earlier domain wins
		{"Is the contract premium refundable?", DomainInsurance},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.question))
		})
	}
	assert.Equal(t, "hr", DomainHR.String())
}

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		want       string
		structured bool
		check      func(t *testing.T, a *schema.StructuredAnswer)
	}{
		{name: "plain text", raw: "Paris is the capital.", want: "Paris is the capital."},
		{
			name:       "fenced json",
			raw:        "```json\n{\"answer\": \"Thirty days.\", \"conditions\": [\"premium paid\"], \"confidence\": \"high\", \"references\": [{\"page\": 4, \"excerpt\": \"grace period of thirty days\"}]}\n```",
			want:       "Thirty days.",
			structured: true,
			check: func(t *testing.T, a *schema.StructuredAnswer) {
				assert.Equal(t, schema.ConfidenceHigh, a.Confidence)
				assert.Equal(t, []string{"premium paid"}, a.Conditions)
				require.Len(t, a.References, 1)
				assert.Equal(t, schema.PageRef("4"), a.References[0].Page)
			},
		},
		{
			name:       "prose around object",
			raw:        "Here you go: {\"answer\": \"Yes {covered}\", \"confidence\": \"unsure\"} Hope it helps.",
			want:       "Yes {covered}",
			structured: true,
			check: func(t *testing.T, a *schema.StructuredAnswer) {
				assert.Empty(t, a.Confidence)
			},
		},
		{name: "truncated json", raw: "{\"answer\": \"Thirty", want: "{\"answer\": \"Thirty"},
		{name: "empty answer field", raw: "{\"answer\": \"\", \"rationale\": \"x\"}", want: "{\"answer\": \"\", \"rationale\": \"x\"}"},
		{name: "wrong types", raw: "{\"answer\": 5}", want: "{\"answer\": 5}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ParseAnswer(tt.raw)
			require.NotNil(t, a)
			assert.Equal(t, tt.want, a.Answer)
			assert.Equal(t, tt.structured, a.Structured)
			if !tt.structured {
				assert.Empty(t, a.Conditions)
				assert.Empty(t, a.References)
				assert.Empty(t, a.Rationale)
				assert.Empty(t, a.Confidence)
			}
			if tt.check != nil {
				tt.check(t, a)
			}
		})
	}
}

func TestSynthesizeFallsBackToRawText(t *testing.T) {
	llm := &fakeLLM{reply: "Paris is the capital."}
	s, err := New(llm)
	require.NoError(t, err)

	a, err := s.Synthesize(context.Background(), "What is the capital of France?", passages("Paris is the capital of France."))
	require.NoError(t, err)
	assert.Equal(t, &schema.StructuredAnswer{Answer: "Paris is the capital."}, a)
}

func TestSynthesizePrompt(t *testing.T) {
	llm := &fakeLLM{reply: `{"answer": "30 days"}`}
	s, err := New(llm)
	require.NoError(t, err)

	found := passages("A grace period of thirty days is allowed.", "Maternity is covered after 24 months.")
	found[1].Chunk.Metadata = map[string]interface{}{schema.MetadataKeySection: "Section 4.2"}
	_, err = s.Synthesize(context.Background(), "What is the grace period for premium payment?", found)
	require.NoError(t, err)

	require.Len(t, llm.prompts, 1)
	p := llm.prompts[0]
	assert.True(t, strings.HasPrefix(p, domainInstructions[DomainInsurance]))
	assert.Contains(t, p, "[1] (page 1)\nA grace period of thirty days is allowed.")
	assert.Contains(t, p, "[2] (page 2) Section 4.2\nMaternity")
	assert.Contains(t, p, "Question: What is the grace period for premium payment?")
	for _, field := range []string{`"answer"`, `"conditions"`, `"references"`, `"rationale"`, `"confidence"`} {
		assert.Contains(t, p, field)
	}
	assert.Less(t, strings.Index(p, "[1]"), strings.Index(p, "[2]"))
}

func TestSynthesizeTokenBudget(t *testing.T) {
	llm := &fakeLLM{reply: "ok"}
	long := strings.Repeat("coverage ", 100)
	s, err := New(llm, WithContextBudget(150))
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "q", passages(long, long, long))
	require.NoError(t, err)
	p := llm.prompts[0]
	assert.Contains(t, p, "[1]")
	assert.NotContains(t, p, "[2]")

	// the top block is kept even when it alone exceeds the budget
	s, err = New(llm, WithContextBudget(1))
	require.NoError(t, err)
	_, err = s.Synthesize(context.Background(), "q", passages(long))
	require.NoError(t, err)
	assert.Contains(t, llm.prompts[1], "[1]")

	_, err = s.Synthesize(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Contains(t, llm.prompts[2], "no relevant passages")
}

func TestSynthesizeSlowWarning(t *testing.T) {
	m := metrics.New()
	tests := []struct {
		name  string
		delay time.Duration
		max   time.Duration
		want  float64
	}{
		{name: "fast", delay: 0, max: time.Minute, want: 0},
		{name: "over eighty percent", delay: 40 * time.Millisecond, max: 40 * time.Millisecond, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(m.SynthesisWarned)
			s, err := New(&fakeLLM{reply: `{"answer": "fine"}`, delay: tt.delay}, WithMaxResponseTime(tt.max), WithMetrics(m))
			require.NoError(t, err)
			a, err := s.Synthesize(context.Background(), "q", passages("x"))
			require.NoError(t, err)
			assert.Equal(t, "fine", a.Answer)
			assert.Equal(t, tt.want, testutil.ToFloat64(m.SynthesisWarned)-before)
		})
	}
}

func TestSynthesizeLLMError(t *testing.T) {
	boom := errors.New("quota")
	s, err := New(&fakeLLM{err: boom})
	require.NoError(t, err)
	_, err = s.Synthesize(context.Background(), "q", passages("x"))
	assert.ErrorIs(t, err, boom)

	_, err = New(nil)
	assert.Error(t, err)
}

func TestTokenCounterEstimate(t *testing.T) {
	c, err := NewTokenCounter("")
	require.NoError(t, err)
	assert.False(t, c.Exact())
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("abcd"))
	assert.Equal(t, 2, c.Count("abcde"))
	assert.Equal(t, 1, c.Count("保险"))
}
