package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange signals a selection past the end of the source dataset.
	ErrOutOfRange = errors.New("index out of range")
	// ErrMissingColumn signals that a required column is absent from a source file.
	ErrMissingColumn = errors.New("missing column")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrInvalidConfig signals missing or malformed configuration.
	ErrInvalidConfig = errors.New("invalid config")
)

// OutOfRangeError reports how many records were available when more were requested.
type OutOfRangeError struct {
	Requested int
	Available int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s: requested %d records, dataset has %d",
		ErrOutOfRange.Error(), e.Requested, e.Available)
}

func (e *OutOfRangeError) Unwrap() error { return ErrOutOfRange }
