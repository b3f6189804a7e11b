// Package config loads the wasmind.toml process configuration (§6.4): the
// actors/actor_overrides/starting_actors tables the loader resolves against,
// plus the ambient [logging] table every wasmindd process reads regardless
// of which actors it starts.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/wasmind-go/wasmind/internal/loader"
	"github.com/wasmind-go/wasmind/internal/logging"
)

// ActorEntry is a `[actors.NAME]` table.
type ActorEntry struct {
	Source            loader.Source  `toml:"source"`
	Config            map[string]any `toml:"config,omitempty"`
	AutoSpawn         *bool          `toml:"auto_spawn,omitempty"`
	RequiredSpawnWith []string       `toml:"required_spawn_with,omitempty"`
}

// OverrideActorEntry is a `[actor_overrides.NAME]` table; every field is
// optional, presence means override.
type OverrideActorEntry struct {
	Source            *loader.Source `toml:"source,omitempty"`
	Config            map[string]any `toml:"config,omitempty"`
	AutoSpawn         *bool          `toml:"auto_spawn,omitempty"`
	RequiredSpawnWith []string       `toml:"required_spawn_with,omitempty"`
}

// Config is the root of wasmind.toml (§6.4).
type Config struct {
	Actors         map[string]ActorEntry         `toml:"actors,omitempty"`
	ActorOverrides map[string]OverrideActorEntry `toml:"actor_overrides,omitempty"`
	StartingActors []string                      `toml:"starting_actors,omitempty"`
	Logging        logging.Config                `toml:"logging,omitempty"`
}

// Load reads and parses a wasmind.toml process config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LoaderInput converts the parsed config into the loader's resolution
// input: one RootActorEntry per `[actors.NAME]`, keyed by its logical name.
func (c *Config) LoaderInput() loader.Input {
	roots := make([]loader.RootActorEntry, 0, len(c.Actors))
	for name, entry := range c.Actors {
		roots = append(roots, loader.RootActorEntry{
			LogicalName:       name,
			Source:            entry.Source,
			Config:            entry.Config,
			AutoSpawn:         entry.AutoSpawn,
			RequiredSpawnWith: entry.RequiredSpawnWith,
		})
	}

	overrides := make(map[string]loader.OverrideEntry, len(c.ActorOverrides))
	for name, entry := range c.ActorOverrides {
		overrides[name] = loader.OverrideEntry{
			LogicalName:       name,
			Source:            entry.Source,
			Config:            entry.Config,
			AutoSpawn:         entry.AutoSpawn,
			RequiredSpawnWith: entry.RequiredSpawnWith,
		}
	}

	return loader.Input{Roots: roots, Overrides: overrides}
}
