package chunker

import (
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

// reconstruct joins chunks, dropping the prefix each chunk shares with its
// predecessor.
func reconstruct(t *testing.T, chunks []domain.Chunk) string {
	t.Helper()
	var b strings.Builder
	end := 0
	for i, ch := range chunks {
		runes := []rune(ch.Text)
		if i > 0 {
			require.LessOrEqual(t, ch.Offset, end, "gap before chunk %d", i)
			require.Greater(t, ch.Offset, chunks[i-1].Offset, "chunk %d does not advance", i)
		}
		skip := end - ch.Offset
		b.WriteString(string(runes[skip:]))
		end = ch.Offset + len(runes)
	}
	return b.String()
}

func sampleText() string {
	para := "Retrieval augmented generation pairs an index with a model. " +
		"Each chunk keeps some context from its neighbour so answers stay coherent.\n" +
		"Sentences end with periods. Words are separated by spaces."
	var parts []string
	for i := 0; i < 40; i++ {
		parts = append(parts, para)
	}
	return strings.Join(parts, "\n\n")
}

func TestSplitRespectsSizeAndReconstructs(t *testing.T) {
	cases := []struct {
		name          string
		text          string
		size, overlap int
	}{
		{"defaults", sampleText(), 1000, 200},
		{"small windows", sampleText(), 80, 20},
		{"no overlap", sampleText(), 120, 0},
		{"no separators", strings.Repeat("x", 2500), 1000, 200},
		{"multibyte", strings.Repeat("héllo wörld ünïcode ", 200), 64, 16},
		{"short", "Hello world", 1000, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewRecursiveChunker(tc.size, tc.overlap)
			chunks := slices.Collect(c.Split(tc.text))
			require.NotEmpty(t, chunks)
			for _, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), tc.size)
			}
			assert.Equal(t, tc.text, reconstruct(t, chunks))
		})
	}
}

func TestSplitEmptyText(t *testing.T) {
	c := NewRecursiveChunker(100, 10)
	assert.Empty(t, slices.Collect(c.Split("")))
}

func TestSplitIsRestartable(t *testing.T) {
	c := NewRecursiveChunker(100, 20)
	seq := c.Split(sampleText())
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
}

func TestSplitStopsEarly(t *testing.T) {
	c := NewRecursiveChunker(50, 10)
	n := 0
	for range c.Split(sampleText()) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	text := strings.Repeat("a", 70) + "\n\n" + strings.Repeat("b", 70)
	c := NewRecursiveChunker(100, 0)
	chunks := slices.Collect(c.Split(text))
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 70)+"\n\n", chunks[0].Text)
	assert.Equal(t, strings.Repeat("b", 70), chunks[1].Text)
}

func TestSplitFallsBackToWordBoundary(t *testing.T) {
	text := strings.Repeat("word ", 50)
	c := NewRecursiveChunker(32, 0)
	for ch := range c.Split(text) {
		if ch.Offset+utf8.RuneCountInString(ch.Text) < utf8.RuneCountInString(text) {
			assert.True(t, strings.HasSuffix(ch.Text, " "), "chunk %q not cut at a word", ch.Text)
		}
	}
}

func TestOverlapStartsAtWord(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 30)
	c := NewRecursiveChunker(60, 15)
	chunks := slices.Collect(c.Split(text))
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks[1:] {
		assert.NotEqual(t, ' ', []rune(ch.Text)[0])
		assert.NotEmpty(t, ch.Text)
	}
}

func TestOverlapClamped(t *testing.T) {
	c := NewRecursiveChunker(100, 150)
	assert.Equal(t, 20, c.Overlap())
	d := NewRecursiveChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, d.Size())
	assert.Equal(t, 0, d.Overlap())
}

var _ domain.Chunker = (*RecursiveChunker)(nil)
