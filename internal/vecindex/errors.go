package vecindex

import (
	"errors"
	"fmt"
)

// ErrIncompatibleVersion is returned when a persisted index was written in another format version.
var ErrIncompatibleVersion = errors.New("incompatible index format version")

// IndexBuildError reports that an index could not be built from a matrix.
type IndexBuildError struct {
	Reason string
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("cannot build index: %s", e.Reason)
}

// StaleError reports why a persisted index does not match the current matrix.
type StaleError struct {
	Reason string
}

func (e *StaleError) Error() string {
	return "stale index: " + e.Reason
}
