package faidx

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const maxBatchWorkers = 32

// BatchOptions controls FetchBatch.
type BatchOptions struct {
	Mode    CoordinateMode
	Workers int  // default: runtime.NumCPU(), at most 32
	Quality bool // also fetch quality strings (FASTQ only)
}

// BatchResult is the outcome for one region of a batch.
type BatchResult struct {
	Spec     string // region string as given
	Region   Region
	Sequence string
	Quality  string
	Err      error
}

// FetchBatch resolves and fetches regions in parallel, one Session per
// worker, and returns results in input order. Per-region failures are
// reported in BatchResult.Err; the returned error is set only when the
// batch as a whole could not run.
func FetchBatch(ctx context.Context, idx *Index, regions []string, opts BatchOptions) ([]BatchResult, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = max(1, min(workers, maxBatchWorkers, len(regions)))

	results := make([]BatchResult, len(regions))
	if len(regions) == 0 {
		return results, nil
	}

	jobs := make(chan int, workers*2)
	eg, ctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			s, err := Open(idx)
			if err != nil {
				return err
			}
			defer s.Close()

			for i := range jobs {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = s.fetchOne(regions[i], opts)
			}
			return nil
		})
	}

	eg.Go(func() error {
		defer close(jobs)
		for i := range regions {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Session) fetchOne(spec string, opts BatchOptions) BatchResult {
	res := BatchResult{Spec: spec}
	r, err := ParseRegion(s.index, spec, opts.Mode)
	if err != nil {
		res.Err = err
		return res
	}
	res.Region = r
	if res.Sequence, err = s.FetchSequence(r.Name, r.Start, r.End); err != nil {
		res.Err = err
		return res
	}
	if opts.Quality {
		res.Quality, res.Err = s.FetchQuality(r.Name, r.Start, r.End)
	}
	return res
}
