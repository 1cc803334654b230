package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"docqa/internal/rag/interfaces"
	"docqa/internal/rag/schema"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

// ChromemIndex keeps the chunks in an in-memory chromem-go collection queried
// with precomputed embeddings. Nothing is persisted.
type ChromemIndex struct {
	collection *chromem.Collection
	chunks     map[string]int
	ordered    []schema.Chunk
	dim        int
}

// noEmbed guards against chromem embedding text itself; every vector is supplied by the caller.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embeddings are computed before indexing")
}

// NewChromemIndex loads chunks and vectors into a fresh collection.
func NewChromemIndex(ctx context.Context, chunks []schema.Chunk, vectors [][]float32, concurrency int) (*ChromemIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to index")
	}
	if concurrency < 1 {
		concurrency = 1
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection("run-"+uuid.NewString(), nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	idx := &ChromemIndex{
		collection: collection,
		chunks:     make(map[string]int, len(chunks)),
		ordered:    append([]schema.Chunk(nil), chunks...),
		dim:        len(vectors[0]),
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) == 0 || len(vectors[i]) != idx.dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(vectors[i]), idx.dim)
		}
		id := strconv.Itoa(i)
		idx.chunks[id] = i
		docs[i] = chromem.Document{
			ID:        id,
			Metadata:  map[string]string{"chunk_id": c.ID, "page": strconv.Itoa(c.Page)},
			Embedding: normalize(vectors[i]),
			Content:   c.Text,
		}
	}
	if err := collection.AddDocuments(ctx, docs, concurrency); err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}
	return idx, nil
}

func (c *ChromemIndex) Len() int       { return len(c.ordered) }
func (c *ChromemIndex) Dimension() int { return c.dim }

// Search ranks every document so ties can be broken by insertion order, then keeps k.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, k int) (schema.RetrievalResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != c.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), c.dim)
	}

	results, err := c.collection.QueryEmbedding(ctx, normalize(query), c.collection.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	scored := make(schema.RetrievalResult, len(c.ordered))
	for i := range c.ordered {
		scored[i] = schema.ScoredChunk{Chunk: c.ordered[i]}
	}
	for _, r := range results {
		if i, ok := c.chunks[r.ID]; ok {
			scored[i].Score = r.Similarity
		}
	}
	return topK(scored, k), nil
}

var _ interfaces.VectorIndex = (*ChromemIndex)(nil)
