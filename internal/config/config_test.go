package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadParsesActorsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wasmind.toml")
	contents := `
starting_actors = ["root"]

[actors.root]
source = { path = "./actors/root" }
config = { level = "info" }

[actor_overrides.root]
config = { level = "debug" }

[logging]
level = "debug"
format = "console"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"root"}, cfg.StartingActors)
	require.Equal(t, "./actors/root", cfg.Actors["root"].Source.Path)
	require.Equal(t, "info", cfg.Actors["root"].Config["level"])
	require.Equal(t, "debug", cfg.ActorOverrides["root"].Config["level"])
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "console", cfg.Logging.Format)
}

func TestLoaderInputConvertsActorsToRoots(t *testing.T) {
	cfg := &Config{
		Actors: map[string]ActorEntry{
			"root": {Config: map[string]any{"level": "info"}},
		},
		ActorOverrides: map[string]OverrideActorEntry{
			"root": {Config: map[string]any{"level": "debug"}},
		},
	}
	input := cfg.LoaderInput()
	require.Len(t, input.Roots, 1)
	require.Equal(t, "root", input.Roots[0].LogicalName)
	require.Contains(t, input.Overrides, "root")
}
