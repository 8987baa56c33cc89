package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/scttfrdmn/faigz-go/pkg/faidx"
)

const version = "0.1.0"

var (
	configPath string
	logLevel   string
	s3Region   string

	// Loaded by the root command before any subcommand runs.
	fileConfig = &faidx.Config{}
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "faigz",
	Short: "faigz - Random access to FASTA/FASTQ, plain or BGZF compressed",
	Long: `faigz indexes FASTA and FASTQ files and extracts subsequences by name
and coordinates without reading the rest of the file.

Sources may be plain text or BGZF compressed (bgzip), on local disk or in S3
(s3://bucket/key). Indexes are kept next to the source as samtools-compatible
.fai files, with a .ckp checkpoint table for compressed sources.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			c, err := faidx.LoadConfig(configPath)
			if err != nil {
				return err
			}
			fileConfig = c
		}
		levelName := fileConfig.LogLevel
		if cmd.Flags().Changed("log-level") || levelName == "" {
			levelName = logLevel
		}
		level, err := faidx.ParseLevel(levelName)
		if err != nil {
			return err
		}
		logger = newLogger(level)
		slog.SetDefault(logger)
		return nil
	},
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

// loadOptions merges the config file with command-line overrides.
func loadOptions() (faidx.Options, error) {
	opts, err := fileConfig.Options()
	if err != nil {
		return opts, fmt.Errorf("invalid config: %w", err)
	}
	if s3Region != "" {
		opts.S3Region = s3Region
	}
	opts.Logger = logger
	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&s3Region, "s3-region", "",
		"AWS region for s3:// sources")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("faigz version %s\n", version)
		fmt.Println("Reentrant FASTA/FASTQ random access with BGZF checkpoints")
	},
}
