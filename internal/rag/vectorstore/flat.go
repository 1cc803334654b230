// Package vectorstore holds the per-request embedding index.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"docqa/internal/rag/interfaces"
	"docqa/internal/rag/schema"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrInvalidK is returned for a non-positive result count.
	ErrInvalidK = errors.New("k must be positive")
)

// FlatIndex is an exact cosine-similarity index over normalized vectors.
// It is immutable after construction and safe for concurrent searches.
type FlatIndex struct {
	chunks  []schema.Chunk
	vectors [][]float32
	dim     int
}

// NewFlatIndex copies and normalizes vectors. All vectors must share one dimension.
func NewFlatIndex(chunks []schema.Chunk, vectors [][]float32) (*FlatIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	idx := &FlatIndex{
		chunks:  append([]schema.Chunk(nil), chunks...),
		vectors: make([][]float32, len(vectors)),
	}
	for i, v := range vectors {
		if i == 0 {
			idx.dim = len(v)
		}
		if len(v) == 0 || len(v) != idx.dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), idx.dim)
		}
		idx.vectors[i] = normalize(v)
	}
	return idx, nil
}

func (f *FlatIndex) Len() int       { return len(f.chunks) }
func (f *FlatIndex) Dimension() int { return f.dim }

// Search returns up to k chunks by descending cosine similarity; ties keep insertion order.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) (schema.RetrievalResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), f.dim)
	}
	q := normalize(query)

	scored := make(schema.RetrievalResult, len(f.chunks))
	for i, v := range f.vectors {
		scored[i] = schema.ScoredChunk{Chunk: f.chunks[i], Score: dot(q, v)}
	}
	return topK(scored, k), nil
}

// topK stable-sorts by score so equal scores keep their insertion order.
func topK(scored schema.RetrievalResult, k int) schema.RetrievalResult {
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalize returns a unit-length copy; the zero vector stays zero.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

var _ interfaces.VectorIndex = (*FlatIndex)(nil)
