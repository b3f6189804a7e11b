package loader

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirForCachesByIdentity(t *testing.T) {
	dir := t.TempDir()
	l := NewFilesystemManifestLoader(NewFetcher(t.TempDir()))
	source := Source{Path: dir}

	first, err := l.dirFor(source)
	require.NoError(t, err)
	require.Equal(t, dir, first)
	require.EqualValues(t, 0, l.Hits())
	require.EqualValues(t, 1, l.Misses())

	second, err := l.dirFor(source)
	require.NoError(t, err)
	require.Equal(t, dir, second)
	require.EqualValues(t, 1, l.Hits())
	require.EqualValues(t, 1, l.Misses())
}

func TestDirForCollapsesConcurrentResolvesForSameSource(t *testing.T) {
	dir := t.TempDir()
	l := NewFilesystemManifestLoader(NewFetcher(t.TempDir()))
	source := Source{Path: dir}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := l.dirFor(source)
			require.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		require.Equal(t, dir, got)
	}
	// singleflight collapses whichever of these calls overlap in time; local
	// path resolution is cheap enough that it is not guaranteed all workers
	// overlap, so only the aggregate accounting is asserted here.
	require.EqualValues(t, workers, l.Hits()+l.Misses())
}

func TestPrefetchAllResolvesEverySource(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	l := NewFilesystemManifestLoader(NewFetcher(t.TempDir()))
	sources := []Source{{Path: dirA}, {Path: dirB}, {Path: dirA}}

	err := PrefetchAll(context.Background(), l, sources, 2)
	require.NoError(t, err)
	require.EqualValues(t, len(sources), l.Hits()+l.Misses())

	gotA, err := l.dirFor(Source{Path: dirA})
	require.NoError(t, err)
	require.Equal(t, dirA, gotA)
	gotB, err := l.dirFor(Source{Path: dirB})
	require.NoError(t, err)
	require.Equal(t, dirB, gotB)
}
