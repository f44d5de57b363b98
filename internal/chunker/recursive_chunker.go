package chunker

import (
	"iter"
	"slices"
	"unicode"

	"ragchat/internal/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// RecursiveChunker splits text into windows of at most size runes that
// overlap their predecessor by roughly overlap runes. Every chunk is an
// exact substring of the input and remembers where it starts.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators [][]rune
}

func NewRecursiveChunker(size, overlap int, separators ...string) *RecursiveChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	if len(separators) == 0 {
		separators = DefaultSeparators
	}
	seps := make([][]rune, 0, len(separators))
	for _, s := range separators {
		if s != "" {
			seps = append(seps, []rune(s))
		}
	}
	return &RecursiveChunker{size: size, overlap: overlap, separators: seps}
}

// Size returns the maximum chunk length in runes.
func (c *RecursiveChunker) Size() int { return c.size }

// Overlap returns the target overlap in runes.
func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Split lazily yields the chunks of text. Each range over the returned
// sequence starts again from the beginning.
func (c *RecursiveChunker) Split(text string) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		runes := []rune(text)
		n := len(runes)
		start, idx := 0, 0
		for start < n {
			end := n
			if n-start > c.size {
				end = c.cut(runes, start)
			}
			chunk := domain.Chunk{Text: string(runes[start:end]), Index: idx, Offset: start}
			if !yield(chunk) || end == n {
				return
			}
			start = c.nextStart(runes, start, end)
			idx++
		}
	}
}

// cut picks the end of the chunk beginning at start. The last occurrence of
// the highest-priority separator that keeps the chunk at least half full
// wins; without one the window is cut hard at size runes.
func (c *RecursiveChunker) cut(runes []rune, start int) int {
	limit := start + c.size
	minEnd := start + max(c.overlap, c.size/2) + 1
	for _, sep := range c.separators {
		for p := limit; p >= minEnd; p-- {
			if p-len(sep) >= start && slices.Equal(runes[p-len(sep):p], sep) {
				return p
			}
		}
	}
	return limit
}

// nextStart backs up overlap runes from end, then moves forward to the
// first word start inside the overlap if there is one.
// end-start always exceeds overlap, so the result is past start.
func (c *RecursiveChunker) nextStart(runes []rune, start, end int) int {
	if c.overlap == 0 {
		return end
	}
	next := end - c.overlap
	for p := next; p < end; p++ {
		if unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p]) {
			return p
		}
	}
	if next <= start {
		return end
	}
	return next
}
