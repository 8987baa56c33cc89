package seekgz

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/biogo/hts/bgzf"
)

// Reader decompresses a BGZF stream sequentially and records a checkpoint
// at every multiple of the interval.
type Reader struct {
	bg       *bgzf.Reader
	interval int64

	total int64 // decompressed bytes returned so far
	next  int64 // position of the next checkpoint
	table []Checkpoint
	err   error
}

// NewReader creates a checkpointing reader. interval must be positive.
// Streams that are not BGZF, plain gzip included, fail with ErrNotBGZF.
func NewReader(r io.Reader, interval int64) (*Reader, error) {
	if interval <= 0 {
		panic("seekgz: non-positive checkpoint interval")
	}
	br := bufio.NewReader(r)
	head, _ := br.Peek(SniffSize)
	if !IsBGZF(head) {
		return nil, ErrNotBGZF
	}
	bg, err := bgzf.NewReader(br, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	// One Read never crosses a block boundary, so LastChunk names the
	// block every returned byte came from.
	bg.Blocked = true
	return &Reader{bg: bg, interval: interval}, nil
}

// Read implements io.Reader over the decompressed stream.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.bg.Read(p)
	if n > 0 {
		begin := r.bg.LastChunk().Begin
		end := r.total + int64(n)
		for ; r.next < end; r.next += r.interval {
			r.table = append(r.table, Checkpoint{
				Pos:    r.next,
				Block:  begin.File,
				Within: begin.Block + uint16(r.next-r.total),
			})
		}
		r.total = end
	}
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		// Blocked reads report io.EOF at every block end.
		if n > 0 {
			err = nil
		}
	default:
		r.err = fmt.Errorf("%w: %v", ErrCorrupt, err)
		err = r.err
	}
	return n, err
}

// Close releases the decompressor.
func (r *Reader) Close() error {
	return r.bg.Close()
}

// Checkpoints returns the table recorded so far. It is complete once Read
// has returned io.EOF.
func (r *Reader) Checkpoints() *Checkpoints {
	points := make([]Checkpoint, len(r.table))
	copy(points, r.table)
	return &Checkpoints{
		Interval: r.interval,
		Size:     r.total,
		Points:   points,
	}
}
