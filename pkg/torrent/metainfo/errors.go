package metainfo

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation.
var (
	ErrInvalidTorrentStructure = errors.New("invalid torrent structure")
	ErrMissingField            = errors.New("missing field")
	ErrWrongType               = errors.New("wrong field type")
	ErrMalformedPieces         = errors.New("malformed pieces")
	ErrInvalidValue            = errors.New("invalid value")
	ErrInconsistentData        = errors.New("inconsistent data")
	ErrPieceIndex              = errors.New("piece index out of range")
)

// ValidationError wraps sentinel errors with the offending field.
type ValidationError struct {
	Type    error  // Sentinel error type
	Field   string // Field that caused the error
	Message string // Custom message
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v in field '%s': %s", e.Type, e.Field, e.Message)
	}

	return fmt.Sprintf("%v: %s", e.Type, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Type
}

func newValidationError(errType error, field, message string) *ValidationError {
	return &ValidationError{
		Type:    errType,
		Field:   field,
		Message: message,
	}
}
