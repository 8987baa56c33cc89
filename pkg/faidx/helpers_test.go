package faidx

import (
	"bytes"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/stretchr/testify/require"
)

const (
	seq1 = "ATCGATCGATCGATCG"
	seq2 = "GGGGCCCCAAAATTTT" + "ACGTACGTACGTACGT"
)

// fixtureFASTA is the two-record example: seq1 on one line, seq2 wrapped
// at 16 bases.
const fixtureFASTA = ">seq1\n" + seq1 + "\n>seq2 second record\n" +
	"GGGGCCCCAAAATTTT\n" +
	"ACGTACGTACGTACGT\n"

type testRecord struct {
	name string
	seq  string
	qual string
}

func wrap(b *strings.Builder, s string, width int, eol string) {
	for len(s) > 0 {
		n := min(width, len(s))
		b.WriteString(s[:n])
		b.WriteString(eol)
		s = s[n:]
	}
}

func formatFASTA(records []testRecord, width int, eol string) []byte {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(">" + r.name + eol)
		wrap(&b, r.seq, width, eol)
	}
	return []byte(b.String())
}

func formatFASTQ(records []testRecord, width int, eol string) []byte {
	var b strings.Builder
	for _, r := range records {
		b.WriteString("@" + r.name + eol)
		wrap(&b, r.seq, width, eol)
		b.WriteString("+" + eol)
		wrap(&b, r.qual, width, eol)
	}
	return []byte(b.String())
}

func randomRecords(seed int64, n, minLen, maxLen int) []testRecord {
	rng := rand.New(rand.NewSource(seed))
	records := make([]testRecord, n)
	for i := range records {
		size := minLen + rng.Intn(maxLen-minLen+1)
		seq := make([]byte, size)
		qual := make([]byte, size)
		for j := range seq {
			seq[j] = "ACGTN"[rng.Intn(5)]
			qual[j] = byte('!' + rng.Intn(40))
		}
		records[i] = testRecord{
			name: "chr" + string(rune('A'+i%26)) + strings.Repeat("x", i/26),
			seq:  string(seq),
			qual: string(qual),
		}
	}
	return records
}

// bgzip compresses data as BGZF, closing a block every blockSize bytes.
func bgzip(t *testing.T, data []byte, blockSize int) []byte {
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

func writeSource(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.CheckpointInterval = MinCheckpointInterval
	opts.Logger = slog.New(slog.DiscardHandler)
	return opts
}

func loadIndex(t *testing.T, path string, opts Options) *Index {
	t.Helper()

	idx, err := Load(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func openSession(t *testing.T, idx *Index) *Session {
	t.Helper()

	s, err := Open(idx)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
