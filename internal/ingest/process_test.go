package ingest

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

// fakeExtractor treats the document bytes as the page text; bytes starting
// with "BAD" fail.
type fakeExtractor struct{}

func (fakeExtractor) ExtractText(src io.ReadSeeker) (string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(string(data), "BAD") {
		return "", errors.New("not a pdf")
	}
	return string(data), nil
}

func TestProcessAllHeadersInUploadOrder(t *testing.T) {
	docs := []domain.UploadedDocument{
		{Name: "A.pdf", Data: []byte("Hello world")},
		{Name: "B.pdf", Data: []byte("Goodbye world")},
	}
	corpus, err := ProcessAll(fakeExtractor{}, docs)
	require.NoError(t, err)

	want := "=== Document: A.pdf ===\n\nHello world\n\n=== Document: B.pdf ===\n\nGoodbye world"
	assert.Equal(t, want, corpus.Text)
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, corpus.Names())

	a := strings.Index(corpus.Text, "Hello world")
	b := strings.Index(corpus.Text, "Goodbye world")
	assert.Less(t, strings.Index(corpus.Text, Header("A.pdf")), a)
	assert.Less(t, a, strings.Index(corpus.Text, Header("B.pdf")))
	assert.Less(t, strings.Index(corpus.Text, Header("B.pdf")), b)

	assert.Equal(t, "A.pdf", corpus.SourceAt(a))
	assert.Equal(t, "B.pdf", corpus.SourceAt(b))
	assert.Equal(t, "", corpus.SourceAt(len([]rune(corpus.Text))))
}

func TestProcessAllNoDocuments(t *testing.T) {
	corpus, err := ProcessAll(fakeExtractor{}, nil)
	require.NoError(t, err)
	assert.True(t, corpus.Empty())
	assert.Equal(t, "", corpus.Text)
}

func TestProcessAllNamesFailingFile(t *testing.T) {
	docs := []domain.UploadedDocument{
		{Name: "good.pdf", Data: []byte("fine")},
		{Name: "broken.pdf", Data: []byte("BAD bytes")},
	}
	_, err := ProcessAll(fakeExtractor{}, docs)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtraction)

	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "broken.pdf", extErr.File)
}

func TestProcessAllRejectsEmptyText(t *testing.T) {
	_, err := ProcessAll(fakeExtractor{}, []domain.UploadedDocument{{Name: "scan.pdf", Data: []byte("  \n ")}})
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "scan.pdf", extErr.File)
}

func TestPDFExtractorRejectsGarbage(t *testing.T) {
	ext, err := NewPDFExtractor("", nil)
	require.NoError(t, err)

	_, err = ExtractBytes(ext, "junk.pdf", []byte("definitely not a pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("page one"), 0o644))

	text, err := ExtractFile(fakeExtractor{}, path)
	require.NoError(t, err)
	assert.Equal(t, "page one", text)

	_, err = ExtractFile(fakeExtractor{}, filepath.Join(t.TempDir(), "missing.pdf"))
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "missing.pdf", extErr.File)
}
