package loader

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// FilesystemManifestLoader implements ManifestLoader against a Fetcher,
// tracking cache hit/miss counts (supplemental to §4.4; no such counters are
// named in the resolver algorithm itself, but operators need them to judge
// whether a cold start is re-cloning everything).
type FilesystemManifestLoader struct {
	fetch *Fetcher

	mu       sync.Mutex
	resolved map[string]string // source identity -> resolved directory
	hits     int64
	misses   int64

	group singleflight.Group
}

func NewFilesystemManifestLoader(fetch *Fetcher) *FilesystemManifestLoader {
	return &FilesystemManifestLoader{
		fetch:    fetch,
		resolved: make(map[string]string),
	}
}

func (l *FilesystemManifestLoader) Load(source Source) (*Manifest, error) {
	dir, err := l.dirFor(source)
	if err != nil {
		return nil, err
	}
	return LoadManifestFile(dir + "/" + ManifestFilename)
}

// dirFor resolves source to a local directory, collapsing concurrent
// requests for the same source identity (two dependents of the same actor,
// or two PrefetchAll workers) into a single Fetcher.Resolve call via
// singleflight rather than letting both race to clone the same repo.
func (l *FilesystemManifestLoader) dirFor(source Source) (string, error) {
	key := source.Identity()

	l.mu.Lock()
	if dir, ok := l.resolved[key]; ok {
		l.hits++
		l.mu.Unlock()
		return dir, nil
	}
	l.mu.Unlock()

	v, err, shared := l.group.Do(key, func() (interface{}, error) {
		return l.fetch.Resolve(source)
	})
	if err != nil {
		return "", err
	}
	dir := v.(string)

	l.mu.Lock()
	if _, already := l.resolved[key]; !already {
		l.resolved[key] = dir
		l.misses++
	} else if shared {
		l.hits++
	} else {
		l.misses++
	}
	l.mu.Unlock()
	return dir, nil
}

// Hits returns the number of Load calls served from the in-process
// source-identity cache without touching disk or network.
func (l *FilesystemManifestLoader) Hits() int64 { return atomic.LoadInt64(&l.hits) }

// Misses returns the number of Load calls that fetched or re-read a source.
func (l *FilesystemManifestLoader) Misses() int64 { return atomic.LoadInt64(&l.misses) }

// PrefetchAll resolves every given source, path or git, up front, bounded to
// maxParallel concurrent dirFor calls; a source identity seen more than once
// is served from the cache or shares one in-flight fetch (§9's note that fetch/build should not
// serialize one source at a time). It does not walk dependency manifests —
// Resolve still does that serially, since the dependency graph is unknown
// until each manifest is read — but it warms the cache for the common case
// of many independent root sources.
func PrefetchAll(ctx context.Context, l *FilesystemManifestLoader, sources []Source, maxParallel int) error {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for _, s := range sources {
		s := s
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			_, err := l.dirFor(s)
			return err
		})
	}
	return g.Wait()
}
