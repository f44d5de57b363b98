package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCredential   = errors.New("api key rejected")
	ErrUnauthorized = errors.New("unauthorized")
	ErrExtraction   = errors.New("document extraction failed")
	ErrEmbedding    = errors.New("embedding backend unavailable")
	ErrGeneration   = errors.New("generation failed")
	ErrNoDocuments  = errors.New("no documents to ingest")
	ErrLocked       = errors.New("session locked: submit a valid API key first")
	ErrIndexClosed  = errors.New("knowledge index closed")
)

// CredentialError reports a key that failed validation. Unauthorized is set
// when the backend explicitly refused the key, as opposed to a network or
// generic failure during the probe.
type CredentialError struct {
	Unauthorized bool
	Err          error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return ErrCredential.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCredential, e.Err)
}

func (e *CredentialError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCredential}
	}
	return []error{ErrCredential, e.Err}
}

// ExtractionError names the document whose text could not be extracted.
type ExtractionError struct {
	File string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExtraction, e.File, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}

// EmbeddingFailure wraps err so it matches ErrEmbedding.
func EmbeddingFailure(err error) error {
	if err == nil || errors.Is(err, ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbedding, err)
}

// GenerationFailure wraps err so it matches ErrGeneration.
func GenerationFailure(err error) error {
	if err == nil || errors.Is(err, ErrGeneration) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrGeneration, err)
}
