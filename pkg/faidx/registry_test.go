package faidx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAcquireSharesOneIndex(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	opts := testOptions()
	opts.Metrics = m
	reg := NewRegistry(opts)
	t.Cleanup(func() { reg.Close() })

	dir := t.TempDir()
	path := writeSource(t, dir, "fixture.fa", []byte(fixtureFASTA))

	const callers = 16
	handles := make([]*Index, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = reg.Acquire(path)
		}(i)
	}
	wg.Wait()

	for i := range handles {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0].shared, handles[i].shared)
	}
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, int64(callers+1), handles[0].RefCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Loads.WithLabelValues("built")))

	// A relative spelling of the same path hits the cache.
	wd, err := os.Getwd()
	require.NoError(t, err)
	if rel, err := filepath.Rel(wd, path); err == nil {
		idx, err := reg.Acquire(rel)
		require.NoError(t, err)
		assert.Same(t, handles[0].shared, idx.shared)
		idx.Close()
	}

	for _, h := range handles {
		require.NoError(t, h.Close())
	}
	assert.Equal(t, int64(1), handles[0].RefCount())
}

func TestRegistryEvict(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testOptions())
	t.Cleanup(func() { reg.Close() })

	path := writeSource(t, t.TempDir(), "fixture.fa", []byte(fixtureFASTA))
	held, err := reg.Acquire(path)
	require.NoError(t, err)
	defer held.Close()

	assert.True(t, reg.Evict(path))
	assert.False(t, reg.Evict(path))
	assert.Equal(t, 0, reg.Len())

	// The held handle outlives the eviction.
	assert.Equal(t, int64(1), held.RefCount())
	s := openSession(t, held)
	got, err := s.FetchSequence("seq1", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "ATCG", got)

	fresh, err := reg.Acquire(path)
	require.NoError(t, err)
	defer fresh.Close()
	assert.NotSame(t, held.shared, fresh.shared)
}

func TestRegistryClose(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testOptions())
	dir := t.TempDir()
	a := writeSource(t, dir, "a.fa", []byte(fixtureFASTA))
	b := writeSource(t, dir, "b.fa", []byte(">b\nACGT\n"))

	held, err := reg.Acquire(a)
	require.NoError(t, err)
	other, err := reg.Acquire(b)
	require.NoError(t, err)
	require.NoError(t, other.Close())
	assert.Equal(t, 2, reg.Len())

	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, int64(1), held.RefCount())
	assert.Equal(t, int64(0), other.shared.refs.Load())
	require.NoError(t, held.Close())

	_, err = reg.Acquire(a)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = NewRegistry(testOptions()).Acquire(filepath.Join(dir, "missing.fa"))
	assert.ErrorIs(t, err, ErrPath)
}

func TestRegistryCloseDuringLoad(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testOptions())
	path := writeSource(t, t.TempDir(), "late.fa", []byte(fixtureFASTA))
	key := registryKey(path)

	// A load that finishes after Close must not leave a cached handle.
	idx, err := Load(path, testOptions())
	require.NoError(t, err)
	require.NoError(t, reg.Close())
	assert.False(t, reg.store(key, idx))
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, int64(0), idx.RefCount())

	live := NewRegistry(testOptions())
	t.Cleanup(func() { live.Close() })
	idx, err = Load(path, testOptions())
	require.NoError(t, err)
	require.True(t, live.store(key, idx))
	assert.Equal(t, 1, live.Len())
	assert.Equal(t, int64(1), idx.RefCount())
}

func TestRegistryConcurrentAcquireAndClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := make([]string, 8)
	for i := range paths {
		paths[i] = writeSource(t, dir, fmt.Sprintf("r%d.fa", i), []byte(fixtureFASTA))
	}

	for round := 0; round < 20; round++ {
		reg := NewRegistry(testOptions())
		var wg sync.WaitGroup
		handles := make([]*Index, len(paths))
		for i, path := range paths {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if idx, err := reg.Acquire(path); err == nil {
					handles[i] = idx
				} else {
					assert.ErrorIs(t, err, ErrClosed)
				}
			}()
		}
		require.NoError(t, reg.Close())
		wg.Wait()

		assert.Equal(t, 0, reg.Len(), "round %d", round)
		for _, idx := range handles {
			if idx != nil {
				assert.Equal(t, int64(1), idx.RefCount(), "round %d", round)
				require.NoError(t, idx.Close())
			}
		}
	}
}

func TestRegistryWatchEvictsChangedSources(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(testOptions())
	t.Cleanup(func() { reg.Close() })

	dir := t.TempDir()
	path := writeSource(t, dir, "fixture.fa", []byte(fixtureFASTA))
	idx, err := reg.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, reg.Watch(ctx))
	assert.Error(t, reg.Watch(ctx))

	writeSource(t, dir, "fixture.fa", []byte(">other\nACGT\n"))
	require.Eventually(t, func() bool { return reg.Len() == 0 }, 5*time.Second, 10*time.Millisecond)

	idx, err = reg.Acquire(path)
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, []string{"other"}, idx.Names())
}
