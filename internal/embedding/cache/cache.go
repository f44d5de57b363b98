// Package cache memoizes embeddings so repeated queries skip the backend.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"ragchat/internal/domain"
)

// Embedder wraps another embedder with an in-memory TTL cache keyed by the
// text hash. The cache is flushed whenever the vector space changes.
type Embedder struct {
	next  domain.Embedder
	cache *gocache.Cache
}

func New(next domain.Embedder, ttl time.Duration) *Embedder {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Embedder{next: next, cache: gocache.New(ttl, 2*ttl)}
}

func (e *Embedder) Name() string   { return e.next.Name() }
func (e *Embedder) Dimension() int { return e.next.Dimension() }

// Prepare re-trains the wrapped embedder and drops every cached vector.
func (e *Embedder) Prepare(ctx context.Context, corpus []string) error {
	e.cache.Flush()
	return e.next.Prepare(ctx, corpus)
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := hash(text)
	if v, ok := e.cache.Get(key); ok {
		return v.([]float64), nil
	}
	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.SetDefault(key, vec)
	return vec, nil
}

// EmbedBatch embeds the uncached texts in one call when the wrapped
// embedder supports batching.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []int
	for i, t := range texts {
		if v, ok := e.cache.Get(hash(t)); ok {
			out[i] = v.([]float64)
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	batcher, ok := e.next.(domain.BatchEmbedder)
	if !ok {
		for _, i := range missing {
			v, err := e.Embed(ctx, texts[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	vecs, err := batcher.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(pending) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(pending))
	}
	for j, i := range missing {
		out[i] = vecs[j]
		e.cache.SetDefault(hash(texts[i]), vecs[j])
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (e *Embedder) Len() int { return e.cache.ItemCount() }

func hash(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
