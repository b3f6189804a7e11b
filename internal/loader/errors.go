package loader

import (
	"fmt"
	"strings"
)

// ErrorKind enumerates the loader's failure taxonomy (§4.4, §7).
type ErrorKind string

const (
	MissingManifest          ErrorKind = "missing_manifest"
	InvalidManifest          ErrorKind = "invalid_manifest"
	ConflictingSources       ErrorKind = "conflicting_sources"
	CircularDependency       ErrorKind = "circular_dependency"
	ActorAndOverrideConflict ErrorKind = "actor_and_override_conflict"
	BuildFailed              ErrorKind = "build_failed"
	ToolchainMissing         ErrorKind = "toolchain_missing"
	FetchFailed              ErrorKind = "fetch_failed"
)

// LoaderError is a typed, human-readable startup failure. Resolver and
// build errors never partially start actors (§7 "Resolver errors
// short-circuit before any actor starts").
type LoaderError struct {
	Kind ErrorKind

	LogicalName string
	Detail      string
	Cycle       []string // CircularDependency
	SourceA     string   // ConflictingSources
	SourceB     string   // ConflictingSources
	ExitStatus  int      // BuildFailed
	Stderr      string   // BuildFailed
}

func (e *LoaderError) Error() string {
	switch e.Kind {
	case MissingManifest:
		return fmt.Sprintf("missing manifest: %s", e.Detail)
	case InvalidManifest:
		return fmt.Sprintf("invalid manifest: %s", e.Detail)
	case ConflictingSources:
		return fmt.Sprintf("conflicting sources for %q: %s vs %s", e.LogicalName, e.SourceA, e.SourceB)
	case CircularDependency:
		return fmt.Sprintf("circular dependency: %s", strings.Join(e.Cycle, " -> "))
	case ActorAndOverrideConflict:
		return fmt.Sprintf("actor_overrides entry %q conflicts with a root actor of the same name", e.LogicalName)
	case BuildFailed:
		return fmt.Sprintf("build failed for %q (exit %d): %s", e.LogicalName, e.ExitStatus, e.Stderr)
	case ToolchainMissing:
		return fmt.Sprintf("required toolchain missing: %s", e.Detail)
	case FetchFailed:
		return fmt.Sprintf("fetch failed for %q: %s", e.LogicalName, e.Detail)
	default:
		return fmt.Sprintf("loader error: %s", e.Detail)
	}
}
