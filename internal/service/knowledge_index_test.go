package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ragchat/internal/domain"
	"ragchat/internal/embedding/tfidf"
	"ragchat/internal/vectorstore/memory"
)

type brokenEmbedder struct{ tfidf.Embedder }

func (brokenEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("backend unreachable")
}

func corpus(texts ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		out[i] = domain.Chunk{Text: t, Index: i, ChunkID: "c:" + t}
	}
	return out
}

func TestBuildRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	_, err := Build(ctx, tfidf.NewEmbedder(), store, nil, nil)
	assert.ErrorIs(t, err, domain.ErrNoDocuments)

	_, err = Build(ctx, tfidf.NewEmbedder(), store, corpus("  ", "\n"), nil)
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
	assert.Zero(t, store.Len())
}

func TestBuildEmbeddingFailure(t *testing.T) {
	_, err := Build(context.Background(), &brokenEmbedder{Embedder: *tfidf.NewEmbedder()}, memory.NewStorage(), corpus("hello"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestRetrieveRanksAndIsDeterministic(t *testing.T) {
	ctx := context.Background()
	ix, err := Build(ctx, tfidf.NewEmbedder(), memory.NewStorage(), corpus(
		"bus routes across the city",
		"train timetable for weekends",
		"bus fares and bus passes",
		"airport shuttle schedule",
	), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 4, ix.Len())

	res, err := ix.Retrieve(ctx, "bus fares", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "bus fares and bus passes", res[0].Chunk.Text)
	assert.Equal(t, "bus routes across the city", res[1].Chunk.Text)

	for i := 0; i < 5; i++ {
		again, err := ix.Retrieve(ctx, "bus fares", 2)
		require.NoError(t, err)
		assert.Equal(t, res, again)
	}
}

func TestRetrieveDuplicateChunksKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	dup := "terms and conditions apply to every ticket sold by the operator"
	for i := 0; i < 100; i++ {
		ix, err := Build(ctx, tfidf.NewEmbedder(), memory.NewStorage(), corpus(
			"bus routes across the city and the harbour",
			dup,
			"museum opening hours on weekends and holidays",
			dup,
		), nil)
		require.NoError(t, err)

		res, err := ix.Retrieve(ctx, "ticket terms and conditions", 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		require.Equal(t, 1, res[0].Chunk.Index, "build %d", i)
		require.Equal(t, 3, res[1].Chunk.Index, "build %d", i)
		require.Equal(t, res[0].Score, res[1].Score)
	}
}

func TestRetrieveLexicalFallback(t *testing.T) {
	ctx := context.Background()
	ix, err := Build(ctx, tfidf.NewEmbedder(), memory.NewStorage(), corpus("alpha beta", "gamma delta"), nil)
	require.NoError(t, err)

	res, err := ix.Retrieve(ctx, "unknown words only", 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "alpha beta", res[0].Chunk.Text)
	assert.Zero(t, res[0].Score)
}

func TestCloseMakesChunksUnreachable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	ix, err := Build(ctx, tfidf.NewEmbedder(), store, corpus("alpha beta"), nil)
	require.NoError(t, err)

	require.NoError(t, ix.Close(ctx))
	require.NoError(t, ix.Close(ctx))
	assert.Zero(t, store.Len())
	_, err = ix.Retrieve(ctx, "alpha", 1)
	assert.ErrorIs(t, err, domain.ErrIndexClosed)
}

func TestOverlapOchiai(t *testing.T) {
	q := toTokenSet("red car")
	assert.InDelta(t, 0.5, overlapOchiai(q, "red bus"), 1e-9)
	assert.Zero(t, overlapOchiai(q, ""))
	assert.InDelta(t, 1.0, overlapOchiai(q, "car red"), 1e-9)
}
