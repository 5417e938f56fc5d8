// Package pointid normalizes point identifiers to the forms a vector store
// accepts: a UUID or an unsigned integer.
package pointid

import (
	"strconv"

	"github.com/google/uuid"
)

// Normalize returns id unchanged when it parses as a UUID or a non-negative
// integer, and a freshly generated UUID otherwise. Callers must not assume
// their submitted id survives.
func Normalize(id string) string {
	if Valid(id) {
		return id
	}
	return uuid.NewString()
}

// Valid reports whether id is accepted as-is. Integers must be plain decimal
// digits: "+5", "1_000" and " 7" get a fresh UUID since Qdrant rejects them too.
func Valid(id string) bool {
	if _, err := uuid.Parse(id); err == nil {
		return true
	}
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}

// Value returns the JSON representation of a normalized id: a number for
// integers, a string for UUIDs.
func Value(id string) any {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return n
	}
	return id
}
