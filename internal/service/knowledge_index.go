package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/embedding"
	"ragchat/internal/embedding/tfidf"
)

// KnowledgeIndex pairs the chunks of one ingested document set with their
// embeddings. It is owned by a single session.
type KnowledgeIndex struct {
	embedder domain.Embedder
	store    domain.VectorStore
	chunks   []domain.Chunk
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Build embeds every non-blank chunk and loads the pairs into store.
// Embedding failures match domain.ErrEmbedding; a set without any usable
// chunk fails with domain.ErrNoDocuments and leaves store untouched.
func Build(ctx context.Context, embedder domain.Embedder, store domain.VectorStore, chunks []domain.Chunk, log *zap.Logger) (*KnowledgeIndex, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var kept []domain.Chunk
	var texts []string
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Text) == "" {
			continue
		}
		kept = append(kept, ch)
		texts = append(texts, ch.Text)
	}
	if len(kept) == 0 {
		return nil, domain.ErrNoDocuments
	}

	if err := embedder.Prepare(ctx, texts); err != nil {
		return nil, domain.EmbeddingFailure(err)
	}
	vectors, err := embedAll(ctx, embedder, texts)
	if err != nil {
		return nil, domain.EmbeddingFailure(err)
	}

	// Remote embedders only learn their dimension from the first response.
	if err := store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clear vector store: %w", err)
	}
	if err := store.Init(ctx, len(vectors[0])); err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	if err := store.Upsert(ctx, kept, vectors); err != nil {
		return nil, fmt.Errorf("upsert vectors: %w", err)
	}
	log.Info("knowledge index built",
		zap.String("embedder", embedder.Name()),
		zap.Int("chunks", len(kept)),
		zap.Int("dimension", len(vectors[0])))
	return &KnowledgeIndex{embedder: embedder, store: store, chunks: kept, log: log}, nil
}

func embedAll(ctx context.Context, embedder domain.Embedder, texts []string) ([][]float64, error) {
	if b, ok := embedder.(domain.BatchEmbedder); ok {
		vectors, err := b.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		return vectors, nil
	}
	vectors := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := embedder.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Len returns the number of indexed chunks.
func (ix *KnowledgeIndex) Len() int { return len(ix.chunks) }

// Retrieve returns the k chunks most similar to query, ties in insertion
// order. When the query shares no vocabulary with the index (zero vector or
// all-zero scores) it falls back to lexical overlap ranking.
func (ix *KnowledgeIndex) Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return nil, domain.ErrIndexClosed
	}
	if k <= 0 {
		k = 4
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.EmbeddingFailure(err)
	}
	if embedding.IsZero(vec) {
		return ix.lexicalSearch(query, k), nil
	}
	res, err := ix.store.Search(ctx, vec, k)
	if err != nil {
		return nil, domain.EmbeddingFailure(err)
	}
	allZero := true
	for _, r := range res {
		if r.Score > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		ix.log.Debug("vector scores vanished, using lexical ranking", zap.String("query", query))
		return ix.lexicalSearch(query, k), nil
	}
	return res, nil
}

// Close drops the stored vectors. The index cannot be queried afterwards.
func (ix *KnowledgeIndex) Close(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}
	ix.closed = true
	ix.chunks = nil
	return ix.store.Clear(ctx)
}

func (ix *KnowledgeIndex) lexicalSearch(query string, topK int) []domain.SearchResult {
	qset := toTokenSet(query)
	scores := make([]domain.SearchResult, len(ix.chunks))
	for i, ch := range ix.chunks {
		scores[i] = domain.SearchResult{Chunk: ch, Score: overlapOchiai(qset, ch.Text)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if topK > len(scores) {
		topK = len(scores)
	}
	return scores[:topK]
}

func toTokenSet(s string) map[string]struct{} {
	tokens := tfidf.Tokenize(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over the distinct tokens of the
// query and the text.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	seen := toTokenSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
