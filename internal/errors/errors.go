package errors

import (
	"errors"
)

// Upload validation failures. Both abort the whole batch.
var (
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// IsValidation reports whether err rejects an upload before any side effect.
func IsValidation(err error) bool {
	return errors.Is(err, ErrFileTooLarge) || errors.Is(err, ErrUnsupportedFormat)
}

// Retrieval failures.
var (
	ErrInvalidSize = errors.New("invalid size")
	ErrNotFound    = errors.New("not found")
)

// Internal failures. Never shown to clients verbatim.
var (
	ErrDecodeFailure = errors.New("image decode failed")
	ErrMetadataParse = errors.New("metadata parse failed")
	ErrStorage       = errors.New("storage failure")
)
