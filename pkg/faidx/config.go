package faidx

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Size units
const (
	KB int64 = 1024
	MB       = 1024 * KB
	GB       = 1024 * MB
)

// Checkpoint interval bounds
const (
	DefaultCheckpointInterval = 256 * KB
	MinCheckpointInterval     = 4 * KB
	MaxCheckpointInterval     = 64 * MB
)

// Options controls how an index is loaded or built.
type Options struct {
	// CheckpointInterval is the spacing of decompressed-byte checkpoints
	// recorded for BGZF sources (default: 256K)
	CheckpointInterval int64

	// PersistIndex writes .fai (and .ckp) next to the source after a build
	PersistIndex bool

	// Rebuild ignores any persisted index
	Rebuild bool

	// Format forces FASTA or FASTQ parsing (default: detect)
	Format Format

	// S3Region is used when Storage is nil and the path is s3://
	S3Region string

	// Storage backend (default: chosen from the path)
	Storage Storage

	Logger  *slog.Logger
	Metrics *Metrics
}

// DefaultOptions returns Options with smart defaults
func DefaultOptions() Options {
	return Options{
		CheckpointInterval: DefaultCheckpointInterval,
		PersistIndex:       true,
		Format:             FormatAuto,
	}
}

// Validate checks configuration
func (o *Options) Validate() error {
	if o.CheckpointInterval < MinCheckpointInterval || o.CheckpointInterval > MaxCheckpointInterval {
		return fmt.Errorf("checkpoint interval must be between %s and %s, got %s",
			FormatSize(MinCheckpointInterval), FormatSize(MaxCheckpointInterval), FormatSize(o.CheckpointInterval))
	}
	if o.Format < FormatAuto || o.Format > FormatFASTQ {
		return fmt.Errorf("invalid format %d", o.Format)
	}
	return nil
}

// resolve fills unset fields for loading path.
func (o Options) resolve(path string) (Options, error) {
	if o.CheckpointInterval == 0 {
		o.CheckpointInterval = DefaultCheckpointInterval
	}
	if err := o.Validate(); err != nil {
		return o, err
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Storage == nil {
		s, err := NewStorage(path, o.S3Region)
		if err != nil {
			return o, err
		}
		o.Storage = s
	}
	return o, nil
}

// ShowConfig prints the effective configuration
func (o *Options) ShowConfig(w io.Writer) {
	fmt.Fprintf(w, "Configuration:\n")
	fmt.Fprintf(w, "  Checkpoint interval: %s\n", FormatSize(o.CheckpointInterval))
	fmt.Fprintf(w, "  Persist index: %v\n", o.PersistIndex)
	fmt.Fprintf(w, "  Rebuild: %v\n", o.Rebuild)
	fmt.Fprintf(w, "  Format: %s\n", o.Format)
	if o.S3Region != "" {
		fmt.Fprintf(w, "  S3 region: %s\n", o.S3Region)
	}
}

// Config is the YAML configuration file.
type Config struct {
	CheckpointInterval string `yaml:"checkpoint_interval"`
	PersistIndex       *bool  `yaml:"persist_index"`
	Format             string `yaml:"format"`
	LogLevel           string `yaml:"log_level"`
	Workers            int    `yaml:"workers"`
	S3Region           string `yaml:"s3_region"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if c.Workers < 0 {
		return nil, fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	return &c, nil
}

// Options converts the file form to Options, starting from DefaultOptions.
func (c *Config) Options() (Options, error) {
	o := DefaultOptions()
	if c.CheckpointInterval != "" {
		n, err := ParseSize(c.CheckpointInterval)
		if err != nil {
			return o, fmt.Errorf("checkpoint_interval: %w", err)
		}
		o.CheckpointInterval = n
	}
	if c.PersistIndex != nil {
		o.PersistIndex = *c.PersistIndex
	}
	f, err := ParseFormat(c.Format)
	if err != nil {
		return o, fmt.Errorf("format: %w", err)
	}
	o.Format = f
	o.S3Region = c.S3Region
	return o, o.Validate()
}

// ParseLevel converts a log level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// ParseSize parses size string (e.g., "1M", "512K", "8G") to bytes
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.ToUpper(strings.TrimSpace(sizeStr))
	sizeStr = strings.TrimSuffix(sizeStr, "B")

	var multiplier int64 = 1
	if strings.HasSuffix(sizeStr, "K") {
		multiplier = KB
		sizeStr = sizeStr[:len(sizeStr)-1]
	} else if strings.HasSuffix(sizeStr, "M") {
		multiplier = MB
		sizeStr = sizeStr[:len(sizeStr)-1]
	} else if strings.HasSuffix(sizeStr, "G") {
		multiplier = GB
		sizeStr = sizeStr[:len(sizeStr)-1]
	}

	value, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid size: %s", sizeStr)
	}
	if value > math.MaxInt64/multiplier {
		return 0, fmt.Errorf("size too large: %s", sizeStr)
	}

	return value * multiplier, nil
}

// FormatSize formats bytes as human-readable size
func FormatSize(bytes int64) string {
	switch {
	case bytes >= GB && bytes%GB == 0:
		return fmt.Sprintf("%dG", bytes/GB)
	case bytes >= MB && bytes%MB == 0:
		return fmt.Sprintf("%dM", bytes/MB)
	case bytes >= KB && bytes%KB == 0:
		return fmt.Sprintf("%dK", bytes/KB)
	case bytes >= MB:
		return fmt.Sprintf("%.1fM", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1fK", float64(bytes)/float64(KB))
	}
	return fmt.Sprintf("%d", bytes)
}
