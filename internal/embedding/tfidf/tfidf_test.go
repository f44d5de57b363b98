package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedBeforePrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestPrepareRejectsEmptyCorpus(t *testing.T) {
	e := NewEmbedder()
	assert.Error(t, e.Prepare(context.Background(), nil))
	assert.Error(t, e.Prepare(context.Background(), []string{"the and of"}))
}

func TestEmbedIsNormalisedAndStable(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	require.NoError(t, e.Prepare(ctx, []string{"bus schedules in Jakarta", "train tickets 2024", "bus fares"}))
	assert.Equal(t, 7, e.Dimension())

	v1, err := e.Embed(ctx, "bus fares in Jakarta")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "bus fares in Jakarta")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	norm := 0.0
	for _, x := range v1 {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedIsBitIdenticalAcrossCalls(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	require.NoError(t, e.Prepare(ctx, []string{
		"alpha beta gamma delta epsilon", "zeta eta theta iota kappa", "lambda mu nu xi omicron pi rho",
	}))
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa lambda mu nu xi omicron pi rho alpha"
	want, err := e.Embed(ctx, text)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		got, err := e.Embed(ctx, text)
		require.NoError(t, err)
		for j := range want {
			require.Equal(t, math.Float64bits(want[j]), math.Float64bits(got[j]), "call %d, component %d", i, j)
		}
	}
}

func TestEmbedUnknownWordsIsZero(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	require.NoError(t, e.Prepare(ctx, []string{"hello world"}))
	v, err := e.Embed(ctx, "completely different")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"gebrak", "dobrak", "ai", "2025", "don't"}, Tokenize("GEBRAK Dobrak-AI 2025, don't!"))
}
