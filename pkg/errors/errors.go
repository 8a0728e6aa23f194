package errors

import (
	"errors"
	"fmt"
)

// Sentinels for domain errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation error")
	ErrUnavailable   = errors.New("service unavailable")
	ErrQuotaExceeded = errors.New("quota exceeded")
)

var kinds = []error{ErrValidation, ErrNotFound, ErrConflict, ErrQuotaExceeded, ErrUnavailable}

// Newf builds an error matching kind under errors.Is.
func Newf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Kind returns the first sentinel err matches, or nil for unclassified errors.
// Validation wins over the others when an error carries several kinds.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
