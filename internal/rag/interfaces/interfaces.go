package interfaces

import (
	"context"

	"docqa/internal/rag/schema"
)

// Fetcher retrieves a remote document into local storage.
// The caller owns the returned document and must call Release on it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*schema.SourceDocument, error)
}

// Splitter cuts extracted text into ordered, overlapping chunks.
type Splitter interface {
	Split(ctx context.Context, text *schema.ExtractedText) ([]schema.Chunk, error)
}

// Embedder turns text into vectors. EmbedBatch returns one vector per input, in order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is an ephemeral nearest-neighbour index over the chunks of one document.
type VectorIndex interface {
	Search(ctx context.Context, query []float32, k int) (schema.RetrievalResult, error)
	Len() int
	Dimension() int
}

// IndexBuilder embeds chunks and loads them into a fresh index.
type IndexBuilder interface {
	Build(ctx context.Context, chunks []schema.Chunk) (VectorIndex, error)
}

// Retriever returns the chunks most relevant to a question.
type Retriever interface {
	Search(ctx context.Context, index VectorIndex, query string, k int) (schema.RetrievalResult, error)
}

// Reranker re-orders retrieved chunks by relevance to the query.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks schema.RetrievalResult) (schema.RetrievalResult, error)
}

// Synthesizer produces a structured answer from a question and its context.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, passages schema.RetrievalResult) (*schema.StructuredAnswer, error)
}

// LLM is a large language model that generates text from a prompt.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
