package models

import (
	"errors"
	"fmt"
)

var (
	ErrExtraction        = errors.New("document extraction returned no usable content")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrChatNotFound      = errors.New("chat not found")
)

// EmbeddingError is returned when every embedding endpoint failed for a text.
type EmbeddingError struct {
	Preview string
	Err     error
}

func NewEmbeddingError(text string, err error) *EmbeddingError {
	return &EmbeddingError{Preview: Preview(text), Err: err}
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("failed to generate embedding for %q: %v", e.Preview, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// ExtractionError reports a document whose content could not be extracted.
type ExtractionError struct {
	Filename string
	Reason   string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to process document '%s': %s", e.Filename, e.Reason)
}

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// DimensionMismatchError reports a query vector whose length disagrees with the indexed vectors.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: index has %d dimensions, query has %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// Preview returns at most PreviewLength runes of text.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= PreviewLength {
		return text
	}
	return string(r[:PreviewLength])
}
