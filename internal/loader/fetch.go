package loader

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wasmind-go/wasmind/internal/retry"
)

// Fetcher materializes a Source onto local disk and returns the directory
// actually holding its wasmind.toml, caching git clones by (url, ref, subdir)
// identity so repeated resolutions skip re-cloning (§5).
type Fetcher struct {
	cacheDir string
}

func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{cacheDir: cacheDir}
}

// Resolve returns the on-disk directory for source, fetching it if
// necessary. Local path sources are returned verbatim (no copy: the loader
// only reads from them).
func (f *Fetcher) Resolve(source Source) (string, error) {
	if !source.IsGit() {
		if source.Path == "" {
			return "", &LoaderError{Kind: InvalidManifest, Detail: "source has neither path nor git set"}
		}
		dir := source.Path
		if source.Subdir != "" {
			dir = filepath.Join(dir, source.Subdir)
		}
		return dir, nil
	}
	return f.fetchGit(source)
}

func (f *Fetcher) fetchGit(source Source) (string, error) {
	key := cacheKey(source.Identity())
	dest := filepath.Join(f.cacheDir, key)

	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dir := dest
		if source.Subdir != "" {
			dir = filepath.Join(dir, source.Subdir)
		}
		return dir, nil
	}

	// Clone into a temp sibling directory, then rename into place so
	// concurrent resolvers either see a complete checkout or none at all.
	tmp := dest + ".tmp-" + randomSuffix()
	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		return "", &LoaderError{Kind: FetchFailed, LogicalName: source.Git, Detail: err.Error()}
	}
	defer os.RemoveAll(tmp)

	// Clone over a network, which can fail transiently (DNS blips, a git
	// remote briefly refusing connections); retry a bounded number of times
	// before surfacing FetchFailed.
	cloneArgs := []string{"clone", "--quiet", source.Git, tmp}
	cloneResult := retry.Do(context.Background(), retry.DefaultConfig(), func() error {
		out, err := exec.Command("git", cloneArgs...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s", strings.TrimSpace(string(out)))
		}
		return nil
	})
	if cloneResult.Err != nil {
		return "", &LoaderError{Kind: FetchFailed, LogicalName: source.Git, Detail: cloneResult.Err.Error()}
	}

	if source.Ref != "" {
		checkoutArgs := []string{"-C", tmp, "checkout", "--quiet", source.Ref}
		if out, err := exec.Command("git", checkoutArgs...).CombinedOutput(); err != nil {
			return "", &LoaderError{Kind: FetchFailed, LogicalName: source.Git, Detail: strings.TrimSpace(string(out))}
		}
	}

	if err := os.Rename(tmp, dest); err != nil {
		// Another resolver may have won the race; treat an existing dest
		// as success rather than failing the whole resolution.
		if info, statErr := os.Stat(dest); statErr == nil && info.IsDir() {
			dir := dest
			if source.Subdir != "" {
				dir = filepath.Join(dir, source.Subdir)
			}
			return dir, nil
		}
		return "", &LoaderError{Kind: FetchFailed, LogicalName: source.Git, Detail: err.Error()}
	}

	dir := dest
	if source.Subdir != "" {
		dir = filepath.Join(dir, source.Subdir)
	}
	return dir, nil
}

func cacheKey(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

// randomSuffix picks a scratch directory name; collisions only matter for
// clone-tempdir naming, never for security.
func randomSuffix() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(buf[:])
}
