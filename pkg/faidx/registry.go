package faidx

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

// Registry shares one loaded index per source among all callers in a
// process. Concurrent Acquire calls for the same path load it once.
type Registry struct {
	opts    Options
	logger  *slog.Logger
	indexes *xsync.MapOf[string, *Index] // registry-owned handle per source
	loads   singleflight.Group
	watcher atomic.Pointer[fsnotify.Watcher]
	closed  atomic.Bool
}

// NewRegistry creates an empty registry that loads sources with opts.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		opts:    opts,
		logger:  logger,
		indexes: xsync.NewMapOf[string, *Index](),
	}
}

func registryKey(path string) string {
	if IsS3URI(path) {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Acquire returns a new handle to the index of path, loading it on first
// use. The caller must Close the handle.
func (r *Registry) Acquire(path string) (*Index, error) {
	key := registryKey(path)
	for attempt := 0; attempt < 3; attempt++ {
		if r.closed.Load() {
			return nil, fmt.Errorf("%w: registry is closed", ErrClosed)
		}
		if idx, ok := r.indexes.Load(key); ok {
			if ref := idx.shared.tryRef(); ref != nil {
				return ref, nil
			}
			// Evicted and released between Load and tryRef.
			r.indexes.Compute(key, func(cur *Index, loaded bool) (*Index, bool) {
				return cur, !loaded || cur == idx
			})
			continue
		}

		v, err, _ := r.loads.Do(key, func() (any, error) {
			if idx, ok := r.indexes.Load(key); ok {
				return idx, nil
			}
			idx, err := Load(key, r.opts)
			if err != nil {
				return nil, err
			}
			if !r.store(key, idx) {
				return nil, fmt.Errorf("%w: registry is closed", ErrClosed)
			}
			r.watchSource(key)
			return idx, nil
		})
		if err != nil {
			return nil, err
		}
		if ref := v.(*Index).shared.tryRef(); ref != nil {
			return ref, nil
		}
	}
	return nil, fmt.Errorf("failed to acquire %s: index evicted repeatedly", path)
}

// store caches a freshly loaded index. It reports false, releasing idx,
// when the registry was closed during the load.
func (r *Registry) store(key string, idx *Index) bool {
	if r.closed.Load() {
		idx.Close()
		return false
	}
	r.indexes.Store(key, idx)
	if !r.closed.Load() {
		return true
	}
	// Close may have swept the map before the Store landed.
	if cur, ok := r.indexes.LoadAndDelete(key); ok {
		cur.Close()
	}
	return false
}

// Evict drops the registry's handle for path. Handles already acquired stay
// valid; the next Acquire reloads the source.
func (r *Registry) Evict(path string) bool {
	idx, ok := r.indexes.LoadAndDelete(registryKey(path))
	if !ok {
		return false
	}
	idx.Close()
	r.logger.Debug("evicted index", "path", path)
	return true
}

// Len returns the number of cached indexes.
func (r *Registry) Len() int {
	return r.indexes.Size()
}

// Watch evicts cached local sources when they are written, replaced or
// removed, until ctx is done or the registry is closed.
func (r *Registry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if !r.watcher.CompareAndSwap(nil, w) {
		_ = w.Close()
		return fmt.Errorf("registry is already watching")
	}
	r.indexes.Range(func(key string, _ *Index) bool {
		r.watchSource(key)
		return true
	})

	go func() {
		defer func() {
			r.watcher.CompareAndSwap(w, nil)
			_ = w.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) &&
					!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Create) {
					continue
				}
				if r.Evict(filepath.Clean(event.Name)) {
					r.logger.Info("source changed, index evicted", "path", event.Name, "op", event.Op.String())
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("error watching sources", "err", err)
			}
		}
	}()
	return nil
}

// watchSource adds the directory of a local source to the active watcher.
func (r *Registry) watchSource(key string) {
	w := r.watcher.Load()
	if w == nil || IsS3URI(key) {
		return
	}
	if err := w.Add(filepath.Dir(key)); err != nil {
		r.logger.Warn("failed to watch source", "path", key, "err", err)
	}
}

// Close releases every cached handle and stops watching.
func (r *Registry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if w := r.watcher.Swap(nil); w != nil {
		_ = w.Close()
	}
	r.indexes.Range(func(key string, _ *Index) bool {
		if idx, ok := r.indexes.LoadAndDelete(key); ok {
			idx.Close()
		}
		return true
	})
	return nil
}
