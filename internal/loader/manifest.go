// Package loader implements the Dependency-Resolved Actor Loader (§4.4):
// manifest parsing, recursive dependency resolution with cycle detection,
// configuration/field precedence merging, and fetching/caching of actor
// sources. It does not compile actor sources into component binaries.
package loader

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ManifestFilename is the well-known manifest name at the root of an actor
// source tree (§6.5).
const ManifestFilename = "wasmind.toml"

// Source names where an actor's code lives: a filesystem path or a git
// reference (§6.4, §6.5). Exactly one of Path/Git is set.
type Source struct {
	Path   string `toml:"path,omitempty"`
	Git    string `toml:"git,omitempty"`
	Ref    string `toml:"ref,omitempty"`
	Subdir string `toml:"subdir,omitempty"`
}

func (s Source) IsGit() bool { return s.Git != "" }

func (s Source) IsZero() bool { return s.Path == "" && s.Git == "" }

// Identity is the cache/equivalence key for a source: (url, ref, subdir) for
// git, with an empty ref read as HEAD; for local sources, the path exactly as
// written (not cleaned, and without Subdir).
func (s Source) Identity() string {
	if s.IsGit() {
		ref := s.Ref
		if ref == "" {
			ref = "HEAD"
		}
		id := s.Git + "@" + ref
		if s.Subdir != "" {
			id += "#" + s.Subdir
		}
		return id
	}
	return s.Path
}

// Equivalent reports whether two sources name the same code (§4.4 step 3
// ConflictingSources check).
func (s Source) Equivalent(other Source) bool {
	return s.Identity() == other.Identity()
}

func (s Source) String() string {
	if s.IsGit() {
		return fmt.Sprintf("git:%s", s.Identity())
	}
	return fmt.Sprintf("path:%s", s.Path)
}

// DependencyDecl is one entry in a manifest's [dependencies.NAME] table
// (§6.5).
type DependencyDecl struct {
	Source            Source         `toml:"source"`
	Config            map[string]any `toml:"config,omitempty"`
	AutoSpawn         *bool          `toml:"auto_spawn,omitempty"`
	RequiredSpawnWith []string       `toml:"required_spawn_with,omitempty"`
}

// Manifest is the TOML descriptor every actor source must contain (§4.4,
// §6.5). Config is the actor's own default configuration table, merged at
// the lowest precedence tier (§4.4 step 5; needed to reproduce S5).
type Manifest struct {
	ActorID           string                    `toml:"actor_id"`
	RequiredSpawnWith []string                  `toml:"required_spawn_with,omitempty"`
	Config            map[string]any            `toml:"config,omitempty"`
	ConfigSchema      map[string]any            `toml:"config_schema,omitempty"`
	Dependencies      map[string]DependencyDecl `toml:"dependencies,omitempty"`
}

// ParseManifest decodes manifest TOML. A missing actor_id is a hard error
// (§4.4 "Missing manifest is a hard error" extends to an incomplete one).
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, &LoaderError{Kind: InvalidManifest, Detail: err.Error()}
	}
	if m.ActorID == "" {
		return nil, &LoaderError{Kind: InvalidManifest, Detail: "manifest missing required actor_id"}
	}
	return &m, nil
}

// LoadManifestFile reads and parses the manifest at path.
func LoadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &LoaderError{Kind: MissingManifest, Detail: path}
		}
		return nil, fmt.Errorf("loader: read manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}
