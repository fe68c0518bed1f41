package embeddings

import "fmt"

// EncodingError reports that one text could not be encoded. Index is the
// position of the text within the batch, or -1 for single encodes.
type EncodingError struct {
	Index int
	Err   error
}

func (e *EncodingError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("encoding failed: %v", e.Err)
	}
	return fmt.Sprintf("encoding item %d failed: %v", e.Index, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// DimensionMismatchError reports vectors from a different embedding space.
type DimensionMismatchError struct {
	Got    int
	Want   int
	Source string
}

func (e *DimensionMismatchError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("dimension mismatch: got %d, want %d", e.Got, e.Want)
	}
	return fmt.Sprintf("dimension mismatch in %s: got %d, want %d", e.Source, e.Got, e.Want)
}
