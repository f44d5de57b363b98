package domain

import (
	"context"
	"iter"
)

// UploadedDocument is a document handed over by the user before ingestion.
type UploadedDocument struct {
	Name string
	Data []byte
}

// Chunk is a bounded substring of the ingested corpus used for indexing.
// Offset is the position of Text in the corpus, counted in runes.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
	Offset     int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// BatchEmbedder is implemented by embedders that can embed several texts
// in one backend round-trip.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Chunker lazily splits text into offset-carrying chunks suitable for
// retrieval indexing. Ranging over the sequence again starts over.
type Chunker interface {
	Split(text string) iter.Seq[Chunk]
}

// VectorStore persists vectors and supports similarity search.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Clear(ctx context.Context) error
}

// ChatModel is a hosted generative model answering an ordered message list.
type ChatModel interface {
	Generate(ctx context.Context, messages []ChatMessage) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
