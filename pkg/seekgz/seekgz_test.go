package seekgz

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compressBGZF writes data as BGZF, flushing a block every blockSize bytes.
func compressBGZF(t *testing.T, data []byte, blockSize int) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := bgzf.NewWriter(&buf, 1)
	for len(data) > 0 {
		n := min(blockSize, len(data))
		_, err := w.Write(data[:n])
		require.NoError(t, err)
		require.NoError(t, w.Flush())
		data = data[n:]
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func testPayload(size int) []byte {
	rng := rand.New(rand.NewSource(42))
	const alphabet = "ACGTN\n"
	p := make([]byte, size)
	for i := range p {
		p[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return p
}

func TestIsBGZF(t *testing.T) {
	t.Parallel()

	blocked := compressBGZF(t, []byte("ACGT\n"), 16)
	assert.True(t, IsGzip(blocked))
	assert.True(t, IsBGZF(blocked))

	var plain bytes.Buffer
	zw := gzip.NewWriter(&plain)
	_, err := zw.Write([]byte("ACGT\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	assert.True(t, IsGzip(plain.Bytes()))
	assert.False(t, IsBGZF(plain.Bytes()))

	assert.False(t, IsBGZF([]byte(">seq1\nACGT\n")))
	assert.False(t, IsBGZF(nil))
}

func TestReaderCheckpointsAddressBlocks(t *testing.T) {
	t.Parallel()

	data := testPayload(10000)
	compressed := compressBGZF(t, data, 1000)

	r, err := NewReader(bytes.NewReader(compressed), 700)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	cps := r.Checkpoints()
	require.NotEmpty(t, cps.Points)
	assert.Equal(t, int64(0), cps.Points[0].Block)

	bg, err := bgzf.NewReader(bytes.NewReader(compressed), 1)
	require.NoError(t, err)
	defer bg.Close()

	var prev int64
	buf := make([]byte, 50)
	for _, p := range cps.Points {
		assert.GreaterOrEqual(t, p.Block, prev)
		prev = p.Block
		assert.True(t, IsBGZF(compressed[p.Block:]), "pos %d", p.Pos)
		assert.Equal(t, uint16(p.Pos%1000), p.Within)

		require.NoError(t, bg.Seek(p.Offset()))
		n, err := io.ReadFull(bg, buf[:min(len(buf), len(data)-int(p.Pos))])
		require.NoError(t, err)
		assert.Equal(t, data[p.Pos:p.Pos+int64(n)], buf[:n], "pos %d", p.Pos)
	}
}

func TestReaderRejectsPlainGzip(t *testing.T) {
	t.Parallel()

	var plain bytes.Buffer
	zw := gzip.NewWriter(&plain)
	_, err := zw.Write([]byte("ACGT"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = NewReader(bytes.NewReader(plain.Bytes()), 64)
	assert.ErrorIs(t, err, ErrNotBGZF)

	_, err = NewReader(bytes.NewReader([]byte(">seq1\nACGT\n")), 64)
	assert.ErrorIs(t, err, ErrNotBGZF)
}

func TestReaderDetectsCorruption(t *testing.T) {
	t.Parallel()

	compressed := compressBGZF(t, testPayload(1000), 500)
	first, ok := blockSize(compressed[fixedHeaderSize:SniffSize])
	require.True(t, ok)
	second, ok := blockSize(compressed[first+fixedHeaderSize : first+SniffSize])
	require.True(t, ok)

	// CRC of the first block fails before any data is returned.
	bad := append([]byte(nil), compressed...)
	bad[first-8] ^= 0xff
	_, err := NewReader(bytes.NewReader(bad), 64)
	assert.ErrorIs(t, err, ErrCorrupt)

	// CRC of the second block fails mid-stream and stays failed.
	bad = append([]byte(nil), compressed...)
	bad[first+second-8] ^= 0xff
	r, err := NewReader(bytes.NewReader(bad), 64)
	require.NoError(t, err)
	defer r.Close()
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = NewReader(bytes.NewReader(compressed[:first-3]), 64)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReaderRecordsCheckpoints(t *testing.T) {
	t.Parallel()

	data := testPayload(20000)
	compressed := compressBGZF(t, data, 3000)

	r, err := NewReader(bytes.NewReader(compressed), 1024)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	cps := r.Checkpoints()
	assert.Equal(t, int64(1024), cps.Interval)
	assert.Equal(t, int64(len(data)), cps.Size)
	assert.Equal(t, (len(data)+1023)/1024, cps.Len())

	for i, p := range cps.Points {
		assert.Equal(t, int64(i)*1024, p.Pos)
		// Blocks hold 3000 bytes each and follow one another in the file.
		assert.Equal(t, uint16(p.Pos%3000), p.Within)
	}
}

func TestCheckpointsLookup(t *testing.T) {
	t.Parallel()

	cps := &Checkpoints{
		Interval: 10,
		Size:     35,
		Points: []Checkpoint{
			{Pos: 0, Block: 0},
			{Pos: 10, Block: 0, Within: 10},
			{Pos: 20, Block: 50, Within: 2},
			{Pos: 30, Block: 90, Within: 1},
		},
	}

	cases := []struct {
		pos  int64
		want int64
	}{
		{0, 0}, {9, 0}, {10, 10}, {19, 10}, {20, 20}, {34, 30}, {35, 30},
	}
	for _, tc := range cases {
		cp, ok := cps.Lookup(tc.pos)
		require.True(t, ok, "pos %d", tc.pos)
		assert.Equal(t, tc.want, cp.Pos, "pos %d", tc.pos)
	}

	_, ok := cps.Lookup(-1)
	assert.False(t, ok)
}

func TestCheckpointsPersistence(t *testing.T) {
	t.Parallel()

	compressed := compressBGZF(t, testPayload(50000), 7000)
	r, err := NewReader(bytes.NewReader(compressed), 4096)
	require.NoError(t, err)
	defer r.Close()
	_, err = io.Copy(io.Discard, r)
	require.NoError(t, err)
	cps := r.Checkpoints()

	var first, second bytes.Buffer
	_, err = cps.WriteTo(&first)
	require.NoError(t, err)
	_, err = cps.WriteTo(&second)
	require.NoError(t, err)
	assert.Equal(t, first.Bytes(), second.Bytes())

	loaded, err := ReadCheckpoints(bytes.NewReader(first.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, cps, loaded)

	_, err = ReadCheckpoints(bytes.NewReader(first.Bytes()[:40]))
	assert.ErrorIs(t, err, ErrBadCheckpoints)

	bad := append([]byte(nil), first.Bytes()...)
	bad[0] = 'X'
	_, err = ReadCheckpoints(bytes.NewReader(bad))
	assert.ErrorIs(t, err, ErrBadCheckpoints)

	_, err = ReadCheckpoints(bytes.NewReader(append(first.Bytes(), 0)))
	assert.ErrorIs(t, err, ErrBadCheckpoints)
}

func TestSeekerRandomAccess(t *testing.T) {
	t.Parallel()

	data := testPayload(200000)
	compressed := compressBGZF(t, data, 20000)

	const interval = 8192
	r, err := NewReader(bytes.NewReader(compressed), interval)
	require.NoError(t, err)
	defer r.Close()
	_, err = io.Copy(io.Discard, r)
	require.NoError(t, err)

	s, err := NewSeeker(bytes.NewReader(compressed), r.Checkpoints())
	require.NoError(t, err)
	defer s.Close()

	rng := rand.New(rand.NewSource(7))
	buf := make([]byte, 300)
	for i := 0; i < 200; i++ {
		pos := rng.Int63n(int64(len(data) - len(buf)))
		skipped, err := s.SeekTo(pos)
		require.NoError(t, err)
		assert.Less(t, skipped, int64(interval))
		assert.Equal(t, pos, s.Position())

		_, err = io.ReadFull(s, buf)
		require.NoError(t, err)
		require.Equal(t, data[pos:pos+int64(len(buf))], buf, "pos %d", pos)
	}
}

func TestSeekerContinuesForward(t *testing.T) {
	t.Parallel()

	data := testPayload(40000)
	compressed := compressBGZF(t, data, 10000)
	r, err := NewReader(bytes.NewReader(compressed), 16384)
	require.NoError(t, err)
	defer r.Close()
	_, err = io.Copy(io.Discard, r)
	require.NoError(t, err)

	s, err := NewSeeker(bytes.NewReader(compressed), r.Checkpoints())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SeekTo(17000)
	require.NoError(t, err)
	buf := make([]byte, 100)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)

	// 17100 -> 17200 is ahead of the checkpoint at 16384, so only the gap
	// between the current position and the target is skipped.
	skipped, err := s.SeekTo(17200)
	require.NoError(t, err)
	assert.Equal(t, int64(100), skipped)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, data[17200:17300], buf)

	_, err = s.SeekTo(int64(len(data)) + 1)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}
