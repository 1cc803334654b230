// Package retriever finds the chunks most relevant to a question.
package retriever

import (
	"context"
	"fmt"

	"docqa/internal/rag/interfaces"
	"docqa/internal/rag/schema"
	"docqa/internal/rag/vectorstore"
	"docqa/pkg/logger"
)

// DefaultTopK is the number of chunks handed to the synthesizer per question.
const DefaultTopK = 3

// VectorRetriever embeds the query with the index's embedder and searches the index.
// A reranker, when set, reorders the candidates.
type VectorRetriever struct {
	embedder interfaces.Embedder
	reranker interfaces.Reranker
	log      *logger.Logger
}

// Option configures a VectorRetriever.
type Option func(*VectorRetriever)

// WithReranker adds a rerank stage after vector search.
func WithReranker(r interfaces.Reranker) Option {
	return func(v *VectorRetriever) { v.reranker = r }
}

func New(embedder interfaces.Embedder, log *logger.Logger, opts ...Option) *VectorRetriever {
	if log == nil {
		log = logger.Nop()
	}
	v := &VectorRetriever{embedder: embedder, log: log}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Search returns up to k chunks by descending similarity. k <= 0 means DefaultTopK.
func (v *VectorRetriever) Search(ctx context.Context, index interfaces.VectorIndex, query string, k int) (schema.RetrievalResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	if index == nil || index.Len() == 0 {
		return nil, nil
	}

	q, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(q) != index.Dimension() {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", vectorstore.ErrDimensionMismatch, len(q), index.Dimension())
	}

	results, err := index.Search(ctx, q, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if v.reranker == nil || len(results) < 2 {
		return results, nil
	}

	reranked, err := v.reranker.Rerank(ctx, query, results)
	if err != nil || len(reranked) == 0 {
		v.log.WithError(err).With("candidates", len(results)).Warn("rerank failed, keeping vector order")
		return results, nil
	}
	return reranked, nil
}

var _ interfaces.Retriever = (*VectorRetriever)(nil)
