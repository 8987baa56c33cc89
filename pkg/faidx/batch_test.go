package faidx

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchBatch(t *testing.T) {
	t.Parallel()

	records := randomRecords(21, 4, 2000, 9000)
	path := writeSource(t, t.TempDir(), "batch.fa.gz", bgzip(t, formatFASTA(records, 60, "\n"), 2500))
	idx := loadIndex(t, path, testOptions())

	var regions []string
	var want []string
	for i := 0; i < 200; i++ {
		r := records[i%len(records)]
		start := (i * 37) % len(r.seq)
		end := min(start+1+i%150, len(r.seq))
		regions = append(regions, fmt.Sprintf("%s:%d-%d", r.name, start+1, end))
		want = append(want, r.seq[start:end])
	}

	results, err := FetchBatch(context.Background(), idx, regions, BatchOptions{Mode: OneBased, Workers: 6})
	require.NoError(t, err)
	require.Len(t, results, len(regions))
	for i, res := range results {
		require.NoError(t, res.Err, res.Spec)
		assert.Equal(t, regions[i], res.Spec)
		assert.Equal(t, regions[i], res.Region.String())
		assert.Equal(t, want[i], res.Sequence, res.Spec)
	}

	// Worker sessions are released.
	assert.Equal(t, int64(1), idx.RefCount())
}

func TestFetchBatchReportsPerRegionErrors(t *testing.T) {
	t.Parallel()

	path := writeSource(t, t.TempDir(), "fixture.fa", []byte(fixtureFASTA))
	idx := loadIndex(t, path, testOptions())

	regions := []string{"seq1:1-4", "nope:1-4", "seq2:x-y", "seq1:20-30", "seq2:15-18", "seq1:0-4"}
	results, err := FetchBatch(context.Background(), idx, regions, BatchOptions{Mode: OneBased})
	require.NoError(t, err)
	require.Len(t, results, len(regions))

	assert.Equal(t, "ATCG", results[0].Sequence)
	assert.ErrorIs(t, results[1].Err, ErrSequenceNotFound)
	assert.ErrorIs(t, results[2].Err, ErrInvalidRegion)
	assert.ErrorIs(t, results[3].Err, ErrOutOfRange)
	assert.NoError(t, results[4].Err)
	assert.Equal(t, "TTAC", results[4].Sequence)
	assert.ErrorIs(t, results[5].Err, ErrInvalidRegion)

	results, err = FetchBatch(context.Background(), idx, nil, BatchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFetchBatchQuality(t *testing.T) {
	t.Parallel()

	records := randomRecords(22, 3, 50, 200)
	path := writeSource(t, t.TempDir(), "reads.fq", formatFASTQ(records, 40, "\n"))
	idx := loadIndex(t, path, testOptions())

	regions := []string{records[0].name, records[1].name + ":11-20", records[2].name + ":5"}
	results, err := FetchBatch(context.Background(), idx, regions, BatchOptions{Mode: OneBased, Quality: true})
	require.NoError(t, err)

	assert.Equal(t, records[0].seq, results[0].Sequence)
	assert.Equal(t, records[0].qual, results[0].Quality)
	assert.Equal(t, records[1].seq[10:20], results[1].Sequence)
	assert.Equal(t, records[1].qual[10:20], results[1].Quality)
	assert.Equal(t, records[2].qual[4:5], results[2].Quality)

	// Quality is refused for FASTA sources.
	fasta := loadIndex(t, writeSource(t, t.TempDir(), "fixture.fa", []byte(fixtureFASTA)), testOptions())
	results, err = FetchBatch(context.Background(), fasta, []string{"seq1"}, BatchOptions{Quality: true})
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, ErrFormatMismatch)
}

func TestFetchBatchCanceled(t *testing.T) {
	t.Parallel()

	path := writeSource(t, t.TempDir(), "fixture.fa", []byte(fixtureFASTA))
	idx := loadIndex(t, path, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FetchBatch(ctx, idx, []string{"seq1", "seq2"}, BatchOptions{Workers: 1})
	assert.ErrorIs(t, err, context.Canceled)

	closed, err := Load(path, testOptions())
	require.NoError(t, err)
	require.NoError(t, closed.Close())
	_, err = FetchBatch(context.Background(), closed, []string{"seq1"}, BatchOptions{})
	assert.ErrorIs(t, err, ErrClosed)
}
