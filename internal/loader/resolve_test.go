package loader

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeManifests struct {
	byPath map[string]*Manifest
}

func (f *fakeManifests) Load(source Source) (*Manifest, error) {
	m, ok := f.byPath[source.Identity()]
	if !ok {
		return nil, &LoaderError{Kind: MissingManifest, Detail: source.Identity()}
	}
	return m, nil
}

// S4 - dependency cycle.
func TestResolveDetectsCircularDependency(t *testing.T) {
	fm := &fakeManifests{byPath: map[string]*Manifest{
		"/a": {ActorID: "ns:a", Dependencies: map[string]DependencyDecl{
			"b": {Source: Source{Path: "/b"}},
		}},
		"/b": {ActorID: "ns:b", Dependencies: map[string]DependencyDecl{
			"c": {Source: Source{Path: "/c"}},
		}},
		"/c": {ActorID: "ns:c", Dependencies: map[string]DependencyDecl{
			"a": {Source: Source{Path: "/a"}},
		}},
	}}
	r := NewResolver(fm)

	_, err := r.Resolve(Input{Roots: []RootActorEntry{
		{LogicalName: "a", Source: Source{Path: "/a"}},
	}})
	require.Error(t, err)
	var loaderErr *LoaderError
	require.ErrorAs(t, err, &loaderErr)
	require.Equal(t, CircularDependency, loaderErr.Kind)
	require.Equal(t, []string{"a", "b", "c", "a"}, loaderErr.Cycle)
}

// S5 - override precedence.
func TestResolveOverridePrecedence(t *testing.T) {
	fm := &fakeManifests{byPath: map[string]*Manifest{
		"/root": {ActorID: "ns:root", Config: map[string]any{"level": "warn", "format": "json"}},
	}}
	r := NewResolver(fm)

	out, err := r.Resolve(Input{
		Roots: []RootActorEntry{
			{LogicalName: "root", Source: Source{Path: "/root"}, Config: map[string]any{"level": "info"}},
		},
		Overrides: map[string]OverrideEntry{
			"root": {LogicalName: "root", Config: map[string]any{"level": "debug"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"level": "debug", "format": "json"}, out["root"].Config)
}

func TestResolveRejectsActorAndOverrideConflict(t *testing.T) {
	fm := &fakeManifests{byPath: map[string]*Manifest{
		"/root": {ActorID: "ns:root"},
	}}
	r := NewResolver(fm)

	_, err := r.Resolve(Input{
		Roots: []RootActorEntry{{LogicalName: "root", Source: Source{Path: "/root"}}},
		Overrides: map[string]OverrideEntry{
			"root": {LogicalName: "root"},
		},
	})
	require.Error(t, err)
	var loaderErr *LoaderError
	require.ErrorAs(t, err, &loaderErr)
	require.Equal(t, ActorAndOverrideConflict, loaderErr.Kind)
}

func TestResolveConflictingSources(t *testing.T) {
	fm := &fakeManifests{byPath: map[string]*Manifest{
		"/a":  {ActorID: "ns:a", Dependencies: map[string]DependencyDecl{"shared": {Source: Source{Path: "/s1"}}}},
		"/b":  {ActorID: "ns:b", Dependencies: map[string]DependencyDecl{"shared": {Source: Source{Path: "/s2"}}}},
		"/s1": {ActorID: "ns:shared"},
	}}
	r := NewResolver(fm)

	_, err := r.Resolve(Input{Roots: []RootActorEntry{
		{LogicalName: "a", Source: Source{Path: "/a"}},
		{LogicalName: "b", Source: Source{Path: "/b"}},
	}})
	require.Error(t, err)
	var loaderErr *LoaderError
	require.ErrorAs(t, err, &loaderErr)
	require.Equal(t, ConflictingSources, loaderErr.Kind)
}

func TestResolveNoDuplicateLogicalNames(t *testing.T) {
	fm := &fakeManifests{byPath: map[string]*Manifest{
		"/a": {ActorID: "ns:a", RequiredSpawnWith: []string{"b"}, Dependencies: map[string]DependencyDecl{
			"b": {Source: Source{Path: "/b"}},
		}},
		"/b": {ActorID: "ns:b"},
	}}
	r := NewResolver(fm)

	out, err := r.Resolve(Input{Roots: []RootActorEntry{{LogicalName: "a", Source: Source{Path: "/a"}}}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, ra := range out {
		for _, req := range ra.RequiredSpawnWith {
			_, present := out[req]
			require.True(t, present, fmt.Sprintf("required_spawn_with %q for %q must itself be resolved", req, ra.LogicalName))
		}
	}
}

func TestResolveMissingManifestIsHardError(t *testing.T) {
	fm := &fakeManifests{byPath: map[string]*Manifest{}}
	r := NewResolver(fm)

	_, err := r.Resolve(Input{Roots: []RootActorEntry{{LogicalName: "a", Source: Source{Path: "/missing"}}}})
	require.Error(t, err)
	var loaderErr *LoaderError
	require.ErrorAs(t, err, &loaderErr)
	require.Equal(t, MissingManifest, loaderErr.Kind)
}

func TestMergeConfigDeepMerge(t *testing.T) {
	low := map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": "low"}
	high := map[string]any{"a": map[string]any{"y": 3, "z": 4}, "b": "high"}
	out := mergeConfig(low, high)
	require.Equal(t, "high", out["b"])
	require.Equal(t, map[string]any{"x": 1, "y": 3, "z": 4}, out["a"])
}
