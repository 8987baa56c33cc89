package main

import (
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scttfrdmn/faigz-go/pkg/faidx"
)

var (
	benchSessions int
	benchOps      int
	benchMaxLen   int64
	benchSeed     int64
	benchVerify   bool
	benchMetrics  bool
)

// benchOp is one planned fetch.
type benchOp struct {
	name       string
	start, end int64
}

var benchCmd = &cobra.Command{
	Use:   "bench <source>",
	Short: "Measure concurrent random access",
	Long: `Run random fetches from many sessions sharing one index.

Each session gets its own reader and a fixed plan of random regions derived
from --seed. With --verify every result is compared with the same fetch made
sequentially through a single session.

Examples:
  faigz bench hg38.fa.gz
  faigz bench hg38.fa.gz --sessions 32 --ops 10000 --max-len 500
  faigz bench reads.fq.gz --verify --metrics`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if benchSessions < 1 || benchOps < 1 || benchMaxLen < 1 {
			return fmt.Errorf("--sessions, --ops and --max-len must be positive")
		}
		opts, err := indexOptions(cmd)
		if err != nil {
			return err
		}
		promReg := prometheus.NewRegistry()
		opts.Metrics = faidx.NewMetrics(promReg)

		registry := faidx.NewRegistry(opts)
		defer registry.Close()

		idx, err := registry.Acquire(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer idx.Close()

		plans := planBench(idx, benchSessions, benchOps, benchMaxLen, benchSeed)
		if plans == nil {
			return fmt.Errorf("%s has no non-empty records", args[0])
		}

		var want [][]string
		if benchVerify {
			want, err = runSequential(idx, plans)
			if err != nil {
				return err
			}
		}

		var bases atomic.Int64
		got := make([][]string, len(plans))
		start := time.Now()
		eg, ctx := errgroup.WithContext(cmd.Context())
		for i, plan := range plans {
			eg.Go(func() error {
				s, err := faidx.Open(idx)
				if err != nil {
					return err
				}
				defer s.Close()
				for _, op := range plan {
					if err := ctx.Err(); err != nil {
						return err
					}
					seq, err := s.FetchSequence(op.name, op.start, op.end)
					if err != nil {
						return fmt.Errorf("session %s: %s:%d-%d: %w", s.ID(), op.name, op.start, op.end, err)
					}
					bases.Add(int64(len(seq)))
					if benchVerify {
						got[i] = append(got[i], seq)
					}
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
		elapsed := time.Since(start)

		total := benchSessions * benchOps
		fmt.Printf("Sessions: %d\n", benchSessions)
		fmt.Printf("Fetches: %d\n", total)
		fmt.Printf("Bases: %d\n", bases.Load())
		fmt.Printf("Time: %s\n", elapsed.Round(time.Millisecond))
		fmt.Printf("Throughput: %.0f fetches/s\n", float64(total)/elapsed.Seconds())

		if benchVerify {
			mismatches := 0
			for i := range plans {
				for j := range plans[i] {
					if got[i][j] != want[i][j] {
						mismatches++
					}
				}
			}
			if mismatches > 0 {
				return fmt.Errorf("verify failed: %d of %d fetches differ from sequential reads", mismatches, total)
			}
			fmt.Println("Verify: OK")
		}

		if benchMetrics {
			families, err := promReg.Gather()
			if err != nil {
				return fmt.Errorf("failed to gather metrics: %w", err)
			}
			for _, mf := range families {
				if _, err := expfmt.MetricFamilyToText(os.Stderr, mf); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

// planBench draws random regions per session from the non-empty records.
func planBench(idx *faidx.Index, sessions, ops int, maxLen, seed int64) [][]benchOp {
	type target struct {
		name   string
		length int64
	}
	var targets []target
	for _, name := range idx.Names() {
		if n, _ := idx.SequenceLength(name); n > 0 {
			targets = append(targets, target{name, n})
		}
	}
	if len(targets) == 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(seed))
	plans := make([][]benchOp, sessions)
	for i := range plans {
		plans[i] = make([]benchOp, ops)
		for j := range plans[i] {
			t := targets[rng.Intn(len(targets))]
			start := rng.Int63n(t.length)
			end := min(start+1+rng.Int63n(maxLen), t.length)
			plans[i][j] = benchOp{t.name, start, end}
		}
	}
	return plans
}

// runSequential executes every plan through one session.
func runSequential(idx *faidx.Index, plans [][]benchOp) ([][]string, error) {
	s, err := faidx.Open(idx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	out := make([][]string, len(plans))
	for i, plan := range plans {
		out[i] = make([]string, len(plan))
		for j, op := range plan {
			if out[i][j], err = s.FetchSequence(op.name, op.start, op.end); err != nil {
				return nil, fmt.Errorf("%s:%d-%d: %w", op.name, op.start, op.end, err)
			}
		}
	}
	return out, nil
}

func init() {
	benchCmd.Flags().IntVar(&benchSessions, "sessions", 8,
		"Number of concurrent sessions")
	benchCmd.Flags().IntVar(&benchOps, "ops", 1000,
		"Fetches per session")
	benchCmd.Flags().Int64Var(&benchMaxLen, "max-len", 1000,
		"Maximum region length")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 1,
		"Random seed for the fetch plan")
	benchCmd.Flags().BoolVar(&benchVerify, "verify", false,
		"Compare results with sequential reads")
	benchCmd.Flags().BoolVar(&benchMetrics, "metrics", false,
		"Print Prometheus metrics to stderr when done")
	addLoadFlags(benchCmd)
}
