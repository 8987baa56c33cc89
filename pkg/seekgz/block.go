// Package seekgz provides random access into BGZF (blocked gzip) streams.
//
// A BGZF file is a series of independent gzip members, each holding at most
// 64 KiB of decompressed data. While an index is built the stream is read
// once through a Reader, which records a Checkpoint every fixed number of
// decompressed bytes. A Seeker later uses those checkpoints to jump to the
// compressed block containing a target position and decompress only the
// residual distance.
package seekgz

import (
	"encoding/binary"
	"errors"
)

// Block layout constants
const (
	gzipID1     = 0x1f
	gzipID2     = 0x8b
	gzipDeflate = 8
	flagExtra   = 1 << 2

	fixedHeaderSize = 12 // ID1..XLEN

	// SniffSize covers a BGZF header with its BC subfield.
	SniffSize = 18
)

var (
	// ErrNotBGZF is returned when a stream is not BGZF (plain gzip included).
	ErrNotBGZF = errors.New("seekgz: not a BGZF stream")

	// ErrCorrupt is returned when a BGZF block fails to parse or verify.
	ErrCorrupt = errors.New("seekgz: corrupt BGZF block")
)

// IsGzip reports whether header starts with the gzip magic bytes.
func IsGzip(header []byte) bool {
	return len(header) >= 2 && header[0] == gzipID1 && header[1] == gzipID2
}

// IsBGZF reports whether header starts a BGZF block, i.e. a gzip member
// carrying the "BC" extra subfield with the block size.
func IsBGZF(header []byte) bool {
	if len(header) < fixedHeaderSize || !IsGzip(header) {
		return false
	}
	if header[2] != gzipDeflate || header[3]&flagExtra == 0 {
		return false
	}
	xlen := int(binary.LittleEndian.Uint16(header[10:12]))
	if len(header) < fixedHeaderSize+xlen {
		return false
	}
	_, ok := blockSize(header[fixedHeaderSize : fixedHeaderSize+xlen])
	return ok
}

// blockSize finds the BC subfield in a gzip extra field and returns the
// total compressed block size.
func blockSize(extra []byte) (int, bool) {
	for len(extra) >= 4 {
		si1, si2 := extra[0], extra[1]
		slen := int(binary.LittleEndian.Uint16(extra[2:4]))
		if len(extra) < 4+slen {
			return 0, false
		}
		if si1 == 'B' && si2 == 'C' && slen == 2 {
			return int(binary.LittleEndian.Uint16(extra[4:6])) + 1, true
		}
		extra = extra[4+slen:]
	}
	return 0, false
}
