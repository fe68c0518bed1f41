package search

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotReady is returned while the engine cannot serve queries. It wraps
	// the bootstrap failure when there was one.
	ErrNotReady = errors.New("search engine not ready")
	// ErrNotFound is returned by explorer lookups for unknown references.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports an invalid request argument.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func unwrapReason(err error) string {
	return strings.TrimPrefix(err.Error(), ErrNotReady.Error()+": ")
}
