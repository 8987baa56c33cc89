package seekgz

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/biogo/hts/bgzf"
)

// Checkpoint table file format constants
const (
	CheckpointMagic   uint32 = 0x504B4346 // "FCKP"
	CheckpointVersion uint16 = 0x0100     // v1.0

	checkpointHeaderSize = 32
	checkpointEntrySize  = 18
)

// ErrBadCheckpoints is returned when a persisted checkpoint table is invalid.
var ErrBadCheckpoints = errors.New("seekgz: invalid checkpoint table")

// Checkpoint maps a decompressed position to a virtual offset.
type Checkpoint struct {
	Pos    int64  // decompressed position
	Block  int64  // file offset of the compressed block holding Pos
	Within uint16 // offset of Pos inside the decompressed block
}

// Offset returns the checkpoint as a BGZF virtual offset.
func (c Checkpoint) Offset() bgzf.Offset {
	return bgzf.Offset{File: c.Block, Block: c.Within}
}

// Checkpoints is an immutable table of checkpoints taken every Interval
// decompressed bytes, strictly increasing in Pos.
type Checkpoints struct {
	Interval int64
	Size     int64 // total decompressed size of the stream
	Points   []Checkpoint
}

// Len returns the number of checkpoints.
func (c *Checkpoints) Len() int {
	return len(c.Points)
}

// Lookup returns the checkpoint with the greatest Pos <= pos.
func (c *Checkpoints) Lookup(pos int64) (Checkpoint, bool) {
	i := sort.Search(len(c.Points), func(i int) bool {
		return c.Points[i].Pos > pos
	}) - 1
	if i < 0 {
		return Checkpoint{}, false
	}
	return c.Points[i], true
}

// WriteTo writes the table in its binary little-endian form. The encoding
// is a pure function of the table, so equal tables produce equal bytes.
func (c *Checkpoints) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)

	header := make([]byte, checkpointHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], CheckpointMagic)
	binary.LittleEndian.PutUint16(header[4:6], CheckpointVersion)
	// header[6:8] reserved
	binary.LittleEndian.PutUint64(header[8:16], uint64(c.Interval))
	binary.LittleEndian.PutUint64(header[16:24], uint64(c.Size))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(c.Points)))

	written := int64(0)
	n, err := bw.Write(header)
	written += int64(n)
	if err != nil {
		return written, err
	}

	entry := make([]byte, checkpointEntrySize)
	for _, p := range c.Points {
		binary.LittleEndian.PutUint64(entry[0:8], uint64(p.Pos))
		binary.LittleEndian.PutUint64(entry[8:16], uint64(p.Block))
		binary.LittleEndian.PutUint16(entry[16:18], p.Within)
		n, err := bw.Write(entry)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	return written, bw.Flush()
}

// ReadCheckpoints parses a table written by WriteTo and validates its
// ordering invariants.
func ReadCheckpoints(r io.Reader) (*Checkpoints, error) {
	br := bufio.NewReader(r)

	header := make([]byte, checkpointHeaderSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrBadCheckpoints, err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != CheckpointMagic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrBadCheckpoints, magic)
	}
	if version := binary.LittleEndian.Uint16(header[4:6]); version != CheckpointVersion {
		return nil, fmt.Errorf("%w: unsupported version %#x", ErrBadCheckpoints, version)
	}

	c := &Checkpoints{
		Interval: int64(binary.LittleEndian.Uint64(header[8:16])),
		Size:     int64(binary.LittleEndian.Uint64(header[16:24])),
	}
	count := binary.LittleEndian.Uint64(header[24:32])
	if c.Interval <= 0 || c.Size < 0 {
		return nil, fmt.Errorf("%w: interval %d size %d", ErrBadCheckpoints, c.Interval, c.Size)
	}
	// A table never holds more than one point per interval.
	if count > uint64(c.Size/c.Interval)+1 {
		return nil, fmt.Errorf("%w: %d points for size %d", ErrBadCheckpoints, count, c.Size)
	}

	c.Points = make([]Checkpoint, 0, count)
	entry := make([]byte, checkpointEntrySize)
	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(br, entry); err != nil {
			return nil, fmt.Errorf("%w: truncated at entry %d", ErrBadCheckpoints, i)
		}
		p := Checkpoint{
			Pos:    int64(binary.LittleEndian.Uint64(entry[0:8])),
			Block:  int64(binary.LittleEndian.Uint64(entry[8:16])),
			Within: binary.LittleEndian.Uint16(entry[16:18]),
		}
		if p.Pos != int64(i)*c.Interval {
			return nil, fmt.Errorf("%w: entry %d at position %d", ErrBadCheckpoints, i, p.Pos)
		}
		if i > 0 && p.Block < c.Points[i-1].Block {
			return nil, fmt.Errorf("%w: entry %d goes backwards", ErrBadCheckpoints, i)
		}
		c.Points = append(c.Points, p)
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrBadCheckpoints)
	}

	return c, nil
}
