// Package summarizer gives a short extractive preview of ingested documents.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"ragchat/internal/embedding/tfidf"
)

var (
	sentenceRe = regexp.MustCompile(`(?s)[^.!?]+[.!?]`)
	headerRe   = regexp.MustCompile(`(?m)^=== Document: .* ===$`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// FrequencySummarizer ranks sentences by the normalised frequency of their
// content words and keeps the best ones in document order.
type FrequencySummarizer struct{}

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{}
}

// Summarize returns at most maxSentences sentences of text. Document header
// lines are ignored and PDF line breaks are folded into spaces.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	text = headerRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	if text == "" {
		return "", nil
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return text, nil
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}

	freq := map[string]float64{}
	maxF := 0.0
	for _, sent := range sentences {
		for _, tok := range contentWords(sent) {
			freq[tok]++
			maxF = math.Max(maxF, freq[tok])
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		words := contentWords(sent)
		total := 0.0
		for _, tok := range words {
			total += freq[tok] / maxF
		}
		// Normalize by sentence length to avoid bias
		if len(words) > 0 {
			total /= math.Sqrt(float64(len(words)))
		}
		scores[i] = scored{i, total}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(maxSentences, len(scores))
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, n)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

func contentWords(sentence string) []string {
	toks := tfidf.Tokenize(sentence)
	out := toks[:0]
	for _, t := range toks {
		if !tfidf.IsStopword(t) {
			out = append(out, t)
		}
	}
	return out
}
