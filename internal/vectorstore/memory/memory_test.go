package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func chunks(texts ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		out[i] = domain.Chunk{Text: t, Index: i}
	}
	return out
}

func TestSearchOrdersByScoreThenInsertion(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, chunks("a", "b", "c", "d"), [][]float64{
		{0, 1},
		{1, 0},
		{0, 1},
		{1, 0},
	}))

	res, err := s.Search(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "b", res[0].Chunk.Text)
	assert.Equal(t, "d", res[1].Chunk.Text)
	assert.Equal(t, "a", res[2].Chunk.Text)

	again, err := s.Search(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, res, again)
}

func TestUpsertValidates(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	assert.Error(t, s.Init(ctx, 0))
	require.NoError(t, s.Init(ctx, 2))
	assert.Error(t, s.Upsert(ctx, chunks("a"), nil))
	assert.Error(t, s.Upsert(ctx, chunks("a"), [][]float64{{1, 2, 3}}))
}

func TestClearEmptiesStore(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 1))
	require.NoError(t, s.Upsert(ctx, chunks("a"), [][]float64{{1}}))
	assert.Equal(t, 1, s.Len())
	require.NoError(t, s.Clear(ctx))
	res, err := s.Search(ctx, []float64{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}
