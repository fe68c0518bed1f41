package corpus

import (
	"errors"
	"fmt"
)

// ErrNoPartitions indicates that no partition file could be read.
var ErrNoPartitions = errors.New("no readable partitions")

// DataLoadError is returned when the corpus cannot be loaded at all.
type DataLoadError struct {
	Dir     string
	Skipped []*PartitionError
	Err     error
}

func (e *DataLoadError) Error() string {
	if len(e.Skipped) > 0 {
		return fmt.Sprintf("cannot load corpus from %s: %v (%d partition(s) skipped)", e.Dir, e.Err, len(e.Skipped))
	}
	return fmt.Sprintf("cannot load corpus from %s: %v", e.Dir, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// PartitionError records why a single partition file was skipped.
type PartitionError struct {
	Path string
	Err  error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %s: %v", e.Path, e.Err)
}

func (e *PartitionError) Unwrap() error { return e.Err }
