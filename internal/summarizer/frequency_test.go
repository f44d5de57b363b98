package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeKeepsDocumentOrder(t *testing.T) {
	text := "=== Document: routes.pdf ===\n\n" +
		"Buses run daily. Buses serve the airport and the\ncity centre. " +
		"Tickets cost little. Buses leave the airport hourly."
	out, err := NewFrequencySummarizer().Summarize(text, 2)
	require.NoError(t, err)
	assert.NotContains(t, out, "Document:")
	assert.Equal(t, "Buses serve the airport and the city centre. Buses leave the airport hourly.", out)
}

func TestSummarizeShortInputs(t *testing.T) {
	s := NewFrequencySummarizer()
	out, err := s.Summarize("   ", 3)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = s.Summarize("no terminal punctuation here", 3)
	require.NoError(t, err)
	assert.Equal(t, "no terminal punctuation here", out)
}
