package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"docqa/internal/rag/interfaces"
	"docqa/internal/rag/schema"
	"docqa/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	BackendFlat    = "flat"
	BackendChromem = "chromem"

	defaultBatchSize   = 32
	defaultConcurrency = 4
)

// ErrNoChunks is returned when Build is called without chunks.
var ErrNoChunks = errors.New("no chunks to index")

// Builder embeds chunks in batches and loads them into a fresh index per call.
type Builder struct {
	embedder    interfaces.Embedder
	backend     string
	batchSize   int
	concurrency int
	log         *logger.Logger
}

// NewBuilder returns a Builder. Unknown backends are rejected; non-positive sizes fall back to defaults.
func NewBuilder(embedder interfaces.Embedder, backend string, batchSize, concurrency int, log *logger.Logger) (*Builder, error) {
	if embedder == nil {
		return nil, errors.New("vectorstore: embedder is required")
	}
	switch backend {
	case "":
		backend = BackendFlat
	case BackendFlat, BackendChromem:
	default:
		return nil, fmt.Errorf("vectorstore: unknown backend %q", backend)
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		embedder:    embedder,
		backend:     backend,
		batchSize:   batchSize,
		concurrency: concurrency,
		log:         log,
	}, nil
}

// Build embeds every chunk and returns a searchable index. Batches run concurrently;
// the first failure cancels the rest.
func (b *Builder) Build(ctx context.Context, chunks []schema.Chunk) (interfaces.VectorIndex, error) {
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for start := 0; start < len(chunks); start += b.batchSize {
		start, end := start, min(start+b.batchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Text
			}
			embs, err := b.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(embs) != len(texts) {
				return fmt.Errorf("embed chunks %d-%d: got %d embeddings for %d texts", start, end-1, len(embs), len(texts))
			}
			copy(vectors[start:end], embs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		idx interfaces.VectorIndex
		err error
	)
	switch b.backend {
	case BackendChromem:
		idx, err = NewChromemIndex(ctx, chunks, vectors, b.concurrency)
	default:
		idx, err = NewFlatIndex(chunks, vectors)
	}
	if err != nil {
		return nil, err
	}

	b.log.WithFields(map[string]interface{}{
		"backend":   b.backend,
		"chunks":    idx.Len(),
		"dimension": idx.Dimension(),
	}).Debug("index built")
	return idx, nil
}

var _ interfaces.IndexBuilder = (*Builder)(nil)
