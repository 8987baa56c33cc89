package faidx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/scttfrdmn/faigz-go/pkg/seekgz"
)

// Index sidecar suffixes
const (
	IndexSuffix      = ".fai"
	CheckpointSuffix = ".ckp"
)

// sniffSize covers a BGZF header with its BC subfield.
const sniffSize = 18

type loader struct {
	path   string
	opts   Options
	logger *slog.Logger
}

// Load returns a handle to the index of the FASTA or FASTQ source at path,
// which may be plain text or BGZF compressed. A persisted index is used when
// it is current; otherwise the source is scanned and, if opts.PersistIndex is
// set, the result is written next to it. No handle is returned on error.
func Load(path string, opts Options) (*Index, error) {
	opts, err := opts.resolve(path)
	if err != nil {
		return nil, err
	}
	l := &loader{
		path:   path,
		opts:   opts,
		logger: opts.Logger.With("path", path),
	}

	st, compressed, err := l.load()
	if err != nil {
		return nil, err
	}

	sh := &shared{
		path:       path,
		storage:    opts.Storage,
		compressed: compressed,
		logger:     l.logger,
		metrics:    opts.Metrics,
	}
	return newIndex(sh, st), nil
}

func (l *loader) load() (*indexState, bool, error) {
	info, err := l.opts.Storage.Stat(l.path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPath, err)
	}
	f, err := l.opts.Storage.Open(l.path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPath, err)
	}
	defer f.Close()

	compressed, err := l.sniff(f)
	if err != nil {
		return nil, false, err
	}

	if !l.opts.Rebuild {
		st, err := l.loadPersisted(info, compressed)
		if err == nil {
			l.opts.Metrics.loaded("persisted")
			l.logger.Info("loaded index", "records", st.table.Len(), "compressed", compressed)
			return st, compressed, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Debug("no persisted index", "err", err)
		} else {
			l.logger.Warn("rebuilding index", "err", err)
		}
	}

	start := time.Now()
	st, err := l.build(f, compressed)
	if err != nil {
		return nil, false, err
	}
	elapsed := time.Since(start)
	l.opts.Metrics.built(elapsed)
	l.opts.Metrics.loaded("built")
	l.logger.Info("built index", "records", st.table.Len(), "compressed", compressed, "elapsed", elapsed)

	if l.opts.PersistIndex {
		if err := l.persist(st); err != nil {
			l.logger.Warn("failed to persist index", "err", err)
		}
	}
	return st, compressed, nil
}

// sniff reports whether f is BGZF. Plain gzip is rejected.
func (l *loader) sniff(f File) (bool, error) {
	head := make([]byte, sniffSize)
	n, err := f.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("%w: failed to read %s: %w", ErrPath, l.path, err)
	}
	head = head[:n]
	if seekgz.IsBGZF(head) {
		return true, nil
	}
	if seekgz.IsGzip(head) {
		return false, &FormatError{Path: l.path, Reason: "gzip source is not BGZF; recompress it with bgzip"}
	}
	return false, nil
}

func (l *loader) build(f File, compressed bool) (*indexState, error) {
	var r io.Reader = io.NewSectionReader(f, 0, f.Size())
	var ckr *seekgz.Reader
	if compressed {
		var err error
		if ckr, err = seekgz.NewReader(r, l.opts.CheckpointInterval); err != nil {
			return nil, &FormatError{Path: l.path, Reason: err.Error()}
		}
		defer ckr.Close()
		r = ckr
	}

	table, err := buildTable(r, l.path, l.opts.Format)
	if err != nil {
		var fe *FormatError
		switch {
		case errors.As(err, &fe):
			return nil, err
		case errors.Is(err, seekgz.ErrCorrupt), errors.Is(err, seekgz.ErrNotBGZF):
			return nil, &FormatError{Path: l.path, Reason: err.Error()}
		}
		return nil, fmt.Errorf("%w: %w", ErrPath, err)
	}

	st := &indexState{table: table}
	if ckr != nil {
		st.points = ckr.Checkpoints()
	}
	return st, nil
}

func (l *loader) stale(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIndexStale, fmt.Sprintf(format, args...))
}

// loadPersisted reads the .fai (and .ckp) sidecars if they are current.
func (l *loader) loadPersisted(source FileInfo, compressed bool) (*indexState, error) {
	store := l.opts.Storage
	faiPath := l.path + IndexSuffix
	fai, err := store.Stat(faiPath)
	if err != nil {
		return nil, err
	}
	if fai.ModTime.Before(source.ModTime) {
		return nil, l.stale("%s is older than the source", faiPath)
	}
	data, err := store.ReadFile(faiPath)
	if err != nil {
		return nil, l.stale("failed to read %s: %v", faiPath, err)
	}
	table, err := parseTable(data)
	if err != nil {
		return nil, l.stale("%s: %v", faiPath, err)
	}
	if l.opts.Format != FormatAuto && table.Format() != l.opts.Format {
		return nil, l.stale("%s describes %s, want %s", faiPath, table.Format(), l.opts.Format)
	}

	st := &indexState{table: table}
	size := source.Size
	if compressed {
		points, err := l.loadCheckpoints(source)
		if err != nil {
			return nil, err
		}
		st.points = points
		size = points.Size
	}

	for i := 0; i < table.Len(); i++ {
		rec, _ := table.At(i)
		if recordEnd(rec, table.Format()) > size {
			return nil, l.stale("record %q extends past the end of the source", rec.Name)
		}
	}
	return st, nil
}

func (l *loader) loadCheckpoints(source FileInfo) (*seekgz.Checkpoints, error) {
	store := l.opts.Storage
	ckpPath := l.path + CheckpointSuffix
	ckp, err := store.Stat(ckpPath)
	if err != nil {
		return nil, l.stale("missing checkpoints: %v", err)
	}
	if ckp.ModTime.Before(source.ModTime) {
		return nil, l.stale("%s is older than the source", ckpPath)
	}
	data, err := store.ReadFile(ckpPath)
	if err != nil {
		return nil, l.stale("failed to read %s: %v", ckpPath, err)
	}
	points, err := seekgz.ReadCheckpoints(bytes.NewReader(data))
	if err != nil {
		return nil, l.stale("%s: %v", ckpPath, err)
	}
	if points.Interval != l.opts.CheckpointInterval {
		return nil, l.stale("%s uses interval %s, want %s", ckpPath,
			FormatSize(points.Interval), FormatSize(l.opts.CheckpointInterval))
	}
	for _, p := range points.Points {
		if p.Block >= source.Size {
			return nil, l.stale("%s points past the end of the source", ckpPath)
		}
	}
	return points, nil
}

// recordEnd returns the stream position just past the record's last
// sequence or quality byte.
func recordEnd(rec Record, format Format) int64 {
	if rec.Length == 0 {
		return max(rec.Offset, rec.QualityOffset)
	}
	end := rec.bytePos(rec.Length-1) + 1
	if format == FormatFASTQ {
		q := rec
		q.Offset = rec.QualityOffset
		end = q.bytePos(rec.Length-1) + 1
	}
	return end
}

// persist writes the .ckp sidecar, then the .fai.
func (l *loader) persist(st *indexState) error {
	store := l.opts.Storage
	if st.points != nil {
		var buf bytes.Buffer
		if _, err := st.points.WriteTo(&buf); err != nil {
			return err
		}
		if err := store.WriteFile(l.path+CheckpointSuffix, buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write checkpoints: %w", err)
		}
	}
	var buf bytes.Buffer
	if _, err := st.table.WriteTo(&buf); err != nil {
		return err
	}
	if err := store.WriteFile(l.path+IndexSuffix, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	l.logger.Debug("persisted index", "bytes", buf.Len())
	return nil
}
