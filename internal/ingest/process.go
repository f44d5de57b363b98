// Package ingest turns uploaded documents into one labelled text corpus.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"ragchat/internal/domain"
)

type ExtractionError = domain.ExtractionError

var errNoText = errors.New("no extractable text")

// Span is the rune range a document occupies in the corpus, header included.
type Span struct {
	Name  string
	Start int
	End   int
}

// Corpus is the combined text of an uploaded document set.
type Corpus struct {
	Text  string
	Spans []Span
}

// Empty reports whether no document contributed text.
func (c Corpus) Empty() bool { return len(c.Spans) == 0 }

// SourceAt returns the document name covering the rune offset.
func (c Corpus) SourceAt(offset int) string {
	for _, s := range c.Spans {
		if offset >= s.Start && offset < s.End {
			return s.Name
		}
	}
	return ""
}

// Names lists the documents in corpus order.
func (c Corpus) Names() []string {
	names := make([]string, len(c.Spans))
	for i, s := range c.Spans {
		names[i] = s.Name
	}
	return names
}

// Header is the line that precedes each document's text.
func Header(name string) string {
	return fmt.Sprintf("=== Document: %s ===", name)
}

// ProcessAll extracts every document in order and concatenates the results,
// each preceded by its header and separated by blank lines. The first
// document that cannot be extracted aborts the batch.
func ProcessAll(ext TextExtractor, docs []domain.UploadedDocument) (Corpus, error) {
	var (
		b      strings.Builder
		spans  []Span
		offset int
	)
	for i, doc := range docs {
		text, err := ExtractBytes(ext, doc.Name, doc.Data)
		if err != nil {
			return Corpus{}, err
		}
		if strings.TrimSpace(text) == "" {
			return Corpus{}, &ExtractionError{File: doc.Name, Err: errNoText}
		}
		var part strings.Builder
		if i > 0 {
			part.WriteString("\n\n")
		}
		part.WriteString(Header(doc.Name))
		part.WriteString("\n\n")
		part.WriteString(text)

		n := utf8.RuneCountInString(part.String())
		spans = append(spans, Span{Name: doc.Name, Start: offset, End: offset + n})
		offset += n
		b.WriteString(part.String())
	}
	return Corpus{Text: b.String(), Spans: spans}, nil
}
