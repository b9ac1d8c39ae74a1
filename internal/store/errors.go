package store

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a memory id or folder with no matching record.
var ErrNotFound = errors.New("memory not found")

// StoreUnavailableError means the store was opened without vector
// capability; only metadata and trigger matching work. Callers get this
// instead of an empty result so degraded mode is never silent.
type StoreUnavailableError struct {
	Op string
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: store is running in lexical-only mode", e.Op)
}

// ValidationError rejects malformed input before any I/O happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnavailable reports whether err signals lexical-only degradation.
func IsUnavailable(err error) bool {
	var ue *StoreUnavailableError
	return errors.As(err, &ue)
}
