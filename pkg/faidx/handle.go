package faidx

import (
	"log/slog"
	"sync/atomic"

	"github.com/scttfrdmn/faigz-go/pkg/seekgz"
)

// indexState is the immutable payload shared by every handle of one source.
type indexState struct {
	table  *Table
	points *seekgz.Checkpoints // nil for uncompressed sources
}

type shared struct {
	refs  atomic.Int64
	state atomic.Pointer[indexState]

	path       string
	storage    Storage
	compressed bool
	logger     *slog.Logger
	metrics    *Metrics
}

// tryRef adds a reference only while the payload is still alive.
func (sh *shared) tryRef() *Index {
	for {
		n := sh.refs.Load()
		if n <= 0 {
			return nil
		}
		if sh.refs.CompareAndSwap(n, n+1) {
			return &Index{shared: sh}
		}
	}
}

func (sh *shared) unref() {
	if sh.refs.Add(-1) == 0 {
		sh.state.Store(nil)
		sh.metrics.indexes(-1)
		sh.logger.Debug("index released")
	}
}

// Index is a reference-counted, read-only view of a source's index. It is
// safe for concurrent use. Every handle, including those returned by Ref,
// must be closed; the table is freed when the last one is.
type Index struct {
	shared   *shared
	released atomic.Bool
}

func newIndex(sh *shared, st *indexState) *Index {
	sh.state.Store(st)
	sh.refs.Store(1)
	sh.metrics.indexes(1)
	return &Index{shared: sh}
}

// Ref returns a new handle aliasing the same table. Calling Ref on a closed
// handle panics.
func (x *Index) Ref() *Index {
	if x.released.Load() {
		panic("faidx: Ref of closed Index")
	}
	x.shared.refs.Add(1)
	return &Index{shared: x.shared}
}

// Close drops this handle's reference. It is idempotent.
func (x *Index) Close() error {
	if x.released.CompareAndSwap(false, true) {
		x.shared.unref()
	}
	return nil
}

// RefCount returns the number of live handles sharing the table.
func (x *Index) RefCount() int64 {
	return x.shared.refs.Load()
}

func (x *Index) state() *indexState {
	if x.released.Load() {
		return nil
	}
	return x.shared.state.Load()
}

// NumSequences returns the number of records.
func (x *Index) NumSequences() int {
	st := x.state()
	if st == nil {
		return 0
	}
	return st.table.Len()
}

// SequenceName returns the name of the i-th record in source order.
func (x *Index) SequenceName(i int) (string, bool) {
	st := x.state()
	if st == nil {
		return "", false
	}
	rec, ok := st.table.At(i)
	return rec.Name, ok
}

// SequenceLength returns the length in bases of the named record.
func (x *Index) SequenceLength(name string) (int64, bool) {
	rec, ok := x.Record(name)
	return rec.Length, ok
}

// HasSequence reports whether the named record exists.
func (x *Index) HasSequence(name string) bool {
	_, ok := x.Record(name)
	return ok
}

// Record returns the full layout of the named record.
func (x *Index) Record(name string) (Record, bool) {
	st := x.state()
	if st == nil {
		return Record{}, false
	}
	return st.table.Lookup(name)
}

// Names returns record names in source order.
func (x *Index) Names() []string {
	st := x.state()
	if st == nil {
		return nil
	}
	return st.table.Names()
}

// Table returns the underlying table, or nil after Close. The table must
// not be modified.
func (x *Index) Table() *Table {
	st := x.state()
	if st == nil {
		return nil
	}
	return st.table
}

// Checkpoints returns the checkpoint table of a BGZF source, or nil.
func (x *Index) Checkpoints() *seekgz.Checkpoints {
	st := x.state()
	if st == nil {
		return nil
	}
	return st.points
}

func (x *Index) Format() Format {
	st := x.state()
	if st == nil {
		return FormatAuto
	}
	return st.table.Format()
}

func (x *Index) Compressed() bool {
	return x.shared.compressed
}

func (x *Index) Path() string {
	return x.shared.path
}
