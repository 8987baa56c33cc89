package faidx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/scttfrdmn/faigz-go/pkg/seekgz"
)

// maxRetainedBuffer caps the scratch buffer a session keeps between fetches.
const maxRetainedBuffer = 4 * MB

// Session reads sequence and quality data through its own file handle and
// decompressor. A Session must not be used from more than one goroutine at
// a time; open one Session per goroutine from a shared *Index.
type Session struct {
	id      uuid.UUID
	index   *Index
	file    File
	seeker  *seekgz.Seeker // nil for uncompressed sources
	scratch []byte
	logger  *slog.Logger
	metrics *Metrics
	closed  bool
}

// Open creates a session over idx. The session holds its own reference to
// the index, so idx may be closed while the session is in use.
func Open(idx *Index) (*Session, error) {
	if idx.state() == nil {
		return nil, fmt.Errorf("%w: index is closed", ErrClosed)
	}
	ref := idx.Ref()
	sh := ref.shared

	f, err := sh.storage.Open(sh.path)
	if err != nil {
		ref.Close()
		return nil, fmt.Errorf("%w: %w", ErrPath, err)
	}

	s := &Session{
		id:      uuid.New(),
		index:   ref,
		file:    f,
		metrics: sh.metrics,
	}
	s.logger = sh.logger.With("session", s.id.String())

	if sh.compressed {
		sk, err := seekgz.NewSeeker(io.NewSectionReader(f, 0, f.Size()), ref.Checkpoints())
		if err != nil {
			f.Close()
			ref.Close()
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
		s.seeker = sk
	}

	s.metrics.sessions(1)
	s.logger.Debug("session opened")
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// clampRange applies the coordinate policy shared by all fetches: a start
// outside [0, length] is ErrOutOfRange, an end past length is clamped, and
// start >= end yields an empty range.
func clampRange(name string, length, start, end int64) (int64, int64, error) {
	if start < 0 || start > length {
		return 0, 0, fmt.Errorf("%w: start %d not in [0, %d] for %q", ErrOutOfRange, start, length, name)
	}
	end = min(end, length)
	if start >= end {
		return start, start, nil
	}
	return start, end, nil
}

// FetchSequence returns bases [start, end) of the named record, zero-based
// and half-open. start must lie in [0, length]; end is clamped to length;
// start >= end returns "" without error.
func (s *Session) FetchSequence(name string, start, end int64) (string, error) {
	seq, err := s.fetch(name, start, end, false)
	s.metrics.fetch("sequence", len(seq), err)
	return seq, err
}

// FetchQuality returns the quality string for bases [start, end) of a FASTQ
// record, under the same coordinate policy as FetchSequence.
func (s *Session) FetchQuality(name string, start, end int64) (string, error) {
	qual, err := s.fetch(name, start, end, true)
	s.metrics.fetch("quality", len(qual), err)
	return qual, err
}

// FetchSequenceAll returns the whole named record.
func (s *Session) FetchSequenceAll(name string) (string, error) {
	length, _ := s.index.SequenceLength(name)
	return s.FetchSequence(name, 0, length)
}

// FetchRegion resolves a region string under mode and fetches its bases.
func (s *Session) FetchRegion(region string, mode CoordinateMode) (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	r, err := ParseRegion(s.index, region, mode)
	if err != nil {
		s.metrics.fetch("sequence", 0, err)
		return "", err
	}
	return s.FetchSequence(r.Name, r.Start, r.End)
}

func (s *Session) fetch(name string, start, end int64, quality bool) (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	rec, ok := s.index.Record(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSequenceNotFound, name)
	}
	if quality && s.index.Format() != FormatFASTQ {
		return "", fmt.Errorf("%w: %s is %s", ErrFormatMismatch, s.index.Path(), s.index.Format())
	}
	start, end, err := clampRange(name, rec.Length, start, end)
	if err != nil {
		return "", err
	}
	if start == end {
		return "", nil
	}
	if quality {
		rec.Offset = rec.QualityOffset
		rec.LineBytes = rec.QualityLineBytes
	}

	first := rec.bytePos(start)
	raw := s.buffer(rec.bytePos(end-1) + 1 - first)
	if err := s.readAt(raw, first); err != nil {
		return "", fmt.Errorf("%w: %s %q at %d: %w", ErrIO, s.index.Path(), name, first, err)
	}

	// Copy line segments, skipping terminators between them.
	var out strings.Builder
	out.Grow(int(end - start))
	i := int64(0)
	for p := start; p < end; {
		n := min(rec.LineBases-p%rec.LineBases, end-p)
		out.Write(raw[i : i+n])
		p += n
		i += n + rec.LineBytes - rec.LineBases
	}
	return out.String(), nil
}

func (s *Session) buffer(n int64) []byte {
	if int64(cap(s.scratch)) < n {
		buf := make([]byte, n)
		if n <= maxRetainedBuffer {
			s.scratch = buf
		}
		return buf
	}
	return s.scratch[:n]
}

// readAt fills p from decompressed position off.
func (s *Session) readAt(p []byte, off int64) error {
	if s.seeker == nil {
		n, err := s.file.ReadAt(p, off)
		if n == len(p) {
			return nil
		}
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	skipped, err := s.seeker.SeekTo(off)
	if err != nil {
		return err
	}
	s.metrics.seeked(skipped)
	s.logger.Debug("seek", "pos", off, "residual", skipped)
	_, err = io.ReadFull(s.seeker, p)
	return err
}

// Close releases the session's file, decompressor and index reference.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.seeker != nil {
		errs = append(errs, s.seeker.Close())
	}
	errs = append(errs, s.file.Close())
	errs = append(errs, s.index.Close())
	s.metrics.sessions(-1)
	s.logger.Debug("session closed")
	return errors.Join(errs...)
}
