package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/faigz-go/pkg/faidx"
)

var (
	namesOnly  bool
	maxRecords int
)

var infoCmd = &cobra.Command{
	Use:   "info <source>",
	Short: "Show the records of an indexed FASTA/FASTQ file",
	Long: `Show index information: format, compression, per-record layout, the
checkpoint table of BGZF sources and a digest of the index contents.

The index is built first if it is missing or stale.

Examples:
  faigz info hg38.fa.gz
  faigz info hg38.fa.gz --names
  faigz info reads.fq --max 0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := indexOptions(cmd)
		if err != nil {
			return err
		}
		idx, err := faidx.Load(args[0], opts)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer idx.Close()

		if namesOnly {
			for _, name := range idx.Names() {
				fmt.Println(name)
			}
			return nil
		}

		table := idx.Table()
		fmt.Printf("Source: %s\n", idx.Path())
		fmt.Printf("Format: %s\n", idx.Format())
		fmt.Printf("Compressed: %v\n", idx.Compressed())
		fmt.Printf("Records: %d\n", table.Len())
		fmt.Printf("Digest: %016x\n", table.Digest())
		if points := idx.Checkpoints(); points != nil {
			fmt.Printf("Checkpoints: %d (interval %s, %s decompressed)\n",
				points.Len(), faidx.FormatSize(points.Interval), faidx.FormatSize(points.Size))
		}

		n := table.Len()
		if maxRecords > 0 && maxRecords < n {
			n = maxRecords
		}
		if n == 0 {
			return nil
		}

		fmt.Println()
		fmt.Printf("%-24s %12s %14s %6s %6s\n", "Name", "Length", "Offset", "Bases", "Bytes")
		fmt.Println("------------------------------------------------------------------")
		for i := 0; i < n; i++ {
			rec, _ := table.At(i)
			fmt.Printf("%-24s %12d %14d %6d %6d\n",
				rec.Name, rec.Length, rec.Offset, rec.LineBases, rec.LineBytes)
		}
		if n < table.Len() {
			fmt.Printf("... %d more (use --max 0 to show all)\n", table.Len()-n)
		}
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolVar(&namesOnly, "names", false,
		"Only print record names")
	infoCmd.Flags().IntVar(&maxRecords, "max", 25,
		"Number of records to display (0 for all)")
	addLoadFlags(infoCmd)
}
