package domain

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks failures that retrying cannot fix.
var ErrConfiguration = errors.New("configuration error")

var (
	ErrDimensionMismatch  = fmt.Errorf("%w: vector dimension mismatch", ErrConfiguration)
	ErrMissingCredential  = fmt.Errorf("%w: missing credential", ErrConfiguration)
	ErrCollectionNotFound = errors.New("collection not found")
)

// IsFatal reports whether err is a configuration failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// CheckDimension returns ErrDimensionMismatch when got != want.
func CheckDimension(got, want int) error {
	if got != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, got, want)
	}
	return nil
}
