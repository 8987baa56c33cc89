package faidx

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories returned by this package. Test with errors.Is.
var (
	// ErrPath is returned when a source is missing or cannot be opened.
	ErrPath = errors.New("faidx: cannot open source")

	// ErrFormat is returned for malformed archives. The concrete error is a
	// *FormatError naming the offending record.
	ErrFormat = errors.New("faidx: malformed source")

	// ErrIndexStale is reported when a persisted index predates or does not
	// match its source. Load rebuilds instead of returning it.
	ErrIndexStale = errors.New("faidx: persisted index is stale")

	// ErrSequenceNotFound is returned for names absent from the index.
	ErrSequenceNotFound = errors.New("faidx: sequence not found")

	// ErrOutOfRange is returned when a start coordinate falls outside a record.
	ErrOutOfRange = errors.New("faidx: coordinate out of range")

	// ErrFormatMismatch is returned when quality is requested from a source
	// that carries none.
	ErrFormatMismatch = errors.New("faidx: source has no quality data")

	// ErrIO is returned when reading source bytes fails during a fetch.
	ErrIO = errors.New("faidx: I/O failure")

	// ErrInvalidRegion is returned when a region string cannot be resolved.
	ErrInvalidRegion = errors.New("faidx: invalid region")

	// ErrClosed is returned when a closed Session, Index or Registry is used.
	ErrClosed = errors.New("faidx: use of closed handle")
)

// FormatError describes where a source violates the wrapped-record layout.
type FormatError struct {
	Path   string
	Record string // empty when the problem precedes any record
	Line   int    // 1-based line number in the decompressed stream
	Reason string
}

func (e *FormatError) Error() string {
	var b strings.Builder
	b.WriteString("faidx: ")
	if e.Path != "" {
		b.WriteString(e.Path)
	} else {
		b.WriteString("<input>")
	}
	if e.Record != "" {
		fmt.Fprintf(&b, ": record %q", e.Record)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, ", line %d", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// Is makes errors.Is(err, ErrFormat) true for every *FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}
