package seekgz

import (
	"errors"
	"fmt"
	"io"

	"github.com/biogo/hts/bgzf"
)

// ErrOutOfBounds is returned when seeking past the end of the stream.
var ErrOutOfBounds = errors.New("seekgz: position out of bounds")

// Seeker provides checkpoint-bounded random access into a BGZF stream.
// It holds private decompression state and must not be used concurrently.
type Seeker struct {
	bg     *bgzf.Reader
	points *Checkpoints
	pos    int64 // current decompressed position, -1 when unknown
}

// NewSeeker opens a BGZF reader over r using a previously built table.
func NewSeeker(r io.ReadSeeker, points *Checkpoints) (*Seeker, error) {
	bg, err := bgzf.NewReader(r, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to open BGZF reader: %w", err)
	}
	return &Seeker{bg: bg, points: points}, nil
}

// SeekTo positions the stream at decompressed offset pos and returns the
// number of bytes decompressed and discarded to get there. When the current
// position lies between the nearest checkpoint and pos, reading continues
// from it instead of reseeking.
func (s *Seeker) SeekTo(pos int64) (int64, error) {
	if pos < 0 || pos > s.points.Size {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", ErrOutOfBounds, pos, s.points.Size)
	}
	if pos == s.pos {
		return 0, nil
	}
	cp, ok := s.points.Lookup(pos)
	if !ok {
		// Only an empty stream has no checkpoints.
		s.pos = pos
		return 0, nil
	}

	if s.pos < cp.Pos || s.pos > pos {
		if err := s.bg.Seek(cp.Offset()); err != nil {
			s.pos = -1
			return 0, fmt.Errorf("failed to seek to block %d: %w", cp.Block, err)
		}
		s.pos = cp.Pos
	}

	skip := pos - s.pos
	if skip > 0 {
		n, err := io.CopyN(io.Discard, s.bg, skip)
		if err != nil {
			s.pos = -1
			return n, fmt.Errorf("failed to skip %d bytes: %w", skip, err)
		}
		s.pos += n
	}
	return skip, nil
}

// Read reads decompressed bytes from the current position.
func (s *Seeker) Read(p []byte) (int, error) {
	n, err := s.bg.Read(p)
	if s.pos >= 0 {
		s.pos += int64(n)
	}
	if err != nil && err != io.EOF {
		s.pos = -1
	}
	return n, err
}

// Position returns the current decompressed position, or -1 if unknown.
func (s *Seeker) Position() int64 {
	return s.pos
}

// Close releases the decompressor.
func (s *Seeker) Close() error {
	return s.bg.Close()
}
