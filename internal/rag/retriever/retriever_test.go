package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docqa/internal/rag/schema"
	"docqa/internal/rag/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vocabEmbedder struct {
	vocab []string
	dim   int
}

func (e *vocabEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := len(e.vocab) + 1
	if e.dim > 0 {
		n = e.dim
	}
	v := make([]float32, n)
	lower := strings.ToLower(text)
	for i, w := range e.vocab {
		if i < n {
			v[i] = float32(strings.Count(lower, w))
		}
	}
	v[n-1] += 0.01
	return v, nil
}

func (e *vocabEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type stubReranker struct {
	out   schema.RetrievalResult
	err   error
	calls int
}

func (s *stubReranker) Rerank(ctx context.Context, query string, chunks schema.RetrievalResult) (schema.RetrievalResult, error) {
	s.calls++
	return s.out, s.err
}

var texts = []string{
	"the grace period is thirty days",
	"maternity expenses are covered after 24 months",
	"the grace period is thirty days",
	"cataract surgery has a two year waiting period",
	"organ donor expenses are covered",
}

func buildIndex(t *testing.T, emb *vocabEmbedder) *vectorstore.FlatIndex {
	t.Helper()
	chunks := make([]schema.Chunk, len(texts))
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = schema.Chunk{ID: text, Text: text, Index: i}
		vectors[i], _ = emb.Embed(context.Background(), text)
	}
	idx, err := vectorstore.NewFlatIndex(chunks, vectors)
	require.NoError(t, err)
	return idx
}

func indexes(r schema.RetrievalResult) []int {
	out := make([]int, len(r))
	for i, c := range r {
		out[i] = c.Chunk.Index
	}
	return out
}

func TestSearch(t *testing.T) {
	emb := &vocabEmbedder{vocab: []string{"grace", "maternity", "cataract", "waiting", "donor"}}
	idx := buildIndex(t, emb)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		k     int
		want  []int
	}{
		{name: "default k with tie", query: "What is the grace period?", k: 0, want: []int{0, 2}},
		{name: "single result", query: "cataract waiting", k: 1, want: []int{3}},
		{name: "k larger than index", query: "organ donor", k: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(emb, nil).Search(ctx, idx, tt.query, tt.k)
			require.NoError(t, err)
			if tt.k <= 0 {
				assert.Len(t, res, DefaultTopK)
			} else {
				assert.Len(t, res, min(tt.k, len(texts)))
			}
			if tt.want != nil {
				assert.Equal(t, tt.want, indexes(res)[:len(tt.want)])
			}
			for i := 1; i < len(res); i++ {
				assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
			}
		})
	}
}

func TestSearchIsDeterministic(t *testing.T) {
	emb := &vocabEmbedder{vocab: []string{"grace", "expenses"}}
	idx := buildIndex(t, emb)
	r := New(emb, nil)

	first, err := r.Search(context.Background(), idx, "expenses", 4)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Search(context.Background(), idx, "expenses", 4)
		require.NoError(t, err)
		assert.Equal(t, indexes(first), indexes(again))
	}
	assert.Equal(t, []int{1, 4}, indexes(first)[:2])
}

func TestSearchDimensionMismatch(t *testing.T) {
	idx := buildIndex(t, &vocabEmbedder{vocab: []string{"grace"}})
	_, err := New(&vocabEmbedder{vocab: []string{"grace"}, dim: 7}, nil).Search(context.Background(), idx, "grace", 3)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestSearchRerank(t *testing.T) {
	emb := &vocabEmbedder{vocab: []string{"grace", "maternity", "cataract", "waiting", "donor"}}
	idx := buildIndex(t, emb)
	ctx := context.Background()

	reordered := schema.RetrievalResult{{Chunk: schema.Chunk{Index: 4}, Score: 0.9}}
	ok := &stubReranker{out: reordered}
	res, err := New(emb, nil, WithReranker(ok)).Search(ctx, idx, "grace", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, indexes(res))
	assert.Equal(t, 1, ok.calls)

	failing := &stubReranker{err: errors.New("cohere down")}
	res, err = New(emb, nil, WithReranker(failing)).Search(ctx, idx, "grace", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, indexes(res)[:2])
}
