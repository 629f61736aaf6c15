package codec

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTruncated is returned when data ends inside an entity.
	ErrTruncated = errors.New("unexpected end of data")
	// ErrTrailingData is returned when bytes remain after the last entity.
	ErrTrailingData = errors.New("trailing data after last entity")
	// ErrCountMismatch is returned when a declared count disagrees with the data.
	ErrCountMismatch = errors.New("entity count mismatch")
)

// ParseError describes a decoding failure. Binary errors carry the byte offset of the failing field,
// text errors the 1-based line number.
type ParseError struct {
	// Kind is the file being decoded, such as "cameras".
	Kind   string
	Offset int64
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %v", e.Kind, e.Line, e.Err)
	}
	return fmt.Sprintf("%s: offset %d: %v", e.Kind, e.Offset, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
