package loader

// RootActorEntry is a user-declared root actor (§6.4 [actors.NAME]).
type RootActorEntry struct {
	LogicalName       string
	Source            Source
	Config            map[string]any
	AutoSpawn         *bool
	RequiredSpawnWith []string
}

// OverrideEntry is a user override (§6.4 [actor_overrides.NAME]); every
// field is optional, presence means override.
type OverrideEntry struct {
	LogicalName       string
	Source            *Source
	Config            map[string]any
	AutoSpawn         *bool
	RequiredSpawnWith []string
}

// Input is the resolver's input: root actors plus overrides keyed by
// logical_name.
type Input struct {
	Roots     []RootActorEntry
	Overrides map[string]OverrideEntry
}

// ResolvedActor is the loader's per-actor output (§3).
type ResolvedActor struct {
	LogicalName       string
	ActorID           string
	Source            Source
	Config            map[string]any
	AutoSpawn         bool
	RequiredSpawnWith []string
	IsDependency      bool
	Manifest          *Manifest
}

// ManifestLoader fetches (if needed) and parses the manifest at a source.
// The default implementation (NewFilesystemManifestLoader) reads path sources
// in place and clones git sources; tests substitute an in-memory fake.
type ManifestLoader interface {
	Load(source Source) (*Manifest, error)
}

type colour int

const (
	white colour = iota
	gray
	black
)

// Resolver implements §4.4's algorithm.
type Resolver struct {
	manifests ManifestLoader
}

func NewResolver(manifests ManifestLoader) *Resolver {
	return &Resolver{manifests: manifests}
}

type node struct {
	logicalName       string
	source            Source
	parentConfig      map[string]any
	parentAutoSpawn   *bool
	parentRequired    []string
	rootConfig        map[string]any
	rootAutoSpawn     *bool
	rootRequired      []string
	isDependency      bool
}

// Resolve implements the full algorithm (§4.4 steps 1-7). An
// actor_overrides entry whose name matches no resolved actor is ignored; no
// warning is logged for it.
func (r *Resolver) Resolve(input Input) (map[string]*ResolvedActor, error) {
	// Step 7 (first half): actor_overrides entries conflicting with roots
	// are rejected up front.
	rootByName := make(map[string]RootActorEntry, len(input.Roots))
	for _, root := range input.Roots {
		rootByName[root.LogicalName] = root
	}
	for name := range input.Overrides {
		if _, isRoot := rootByName[name]; isRoot {
			return nil, &LoaderError{Kind: ActorAndOverrideConflict, LogicalName: name}
		}
	}

	resolved := make(map[string]*ResolvedActor)
	colours := make(map[string]colour)

	// Step 1: seed the worklist with root actors, is_dependency = false.
	for _, root := range input.Roots {
		n := node{
			logicalName:   root.LogicalName,
			source:        root.Source,
			rootConfig:    root.Config,
			rootAutoSpawn: root.AutoSpawn,
			rootRequired:  root.RequiredSpawnWith,
			isDependency:  false,
		}
		if err := r.visit(n, input, resolved, colours, nil); err != nil {
			return nil, err
		}
	}

	return resolved, nil
}

// visit implements steps 2-6 for one node, recursing into its dependencies
// (step 3) with DFS cycle detection (step 4).
func (r *Resolver) visit(n node, input Input, resolved map[string]*ResolvedActor, colours map[string]colour, chain []string) error {
	switch colours[n.logicalName] {
	case gray:
		cycle := append(append([]string{}, chain...), n.logicalName)
		return &LoaderError{Kind: CircularDependency, Cycle: cycle}
	case black:
		existing := resolved[n.logicalName]
		if existing != nil && !n.source.IsZero() && !existing.Source.Equivalent(n.source) {
			return &LoaderError{
				Kind:        ConflictingSources,
				LogicalName: n.logicalName,
				SourceA:     existing.Source.String(),
				SourceB:     n.source.String(),
			}
		}
		return nil
	}

	colours[n.logicalName] = gray
	chain = append(chain, n.logicalName)

	// Step 2: load the manifest (filesystem path or after cloning git ref).
	manifest, err := r.manifests.Load(n.source)
	if err != nil {
		return err
	}

	// Step 3: enqueue/verify dependencies, recursing depth-first.
	for depName, dep := range manifest.Dependencies {
		child := node{
			logicalName:     depName,
			source:          dep.Source,
			parentConfig:    dep.Config,
			parentAutoSpawn: dep.AutoSpawn,
			parentRequired:  dep.RequiredSpawnWith,
			isDependency:    true,
		}
		if err := r.visit(child, input, resolved, colours, chain); err != nil {
			return err
		}
	}

	override := input.Overrides[n.logicalName]

	cfg := mergeConfig(manifest.Config, n.parentConfig)
	cfg = mergeConfig(cfg, n.rootConfig)
	cfg = mergeConfig(cfg, override.Config)

	autoSpawn := true
	if n.parentAutoSpawn != nil {
		autoSpawn = *n.parentAutoSpawn
	}
	if n.rootAutoSpawn != nil {
		autoSpawn = *n.rootAutoSpawn
	}
	if override.AutoSpawn != nil {
		autoSpawn = *override.AutoSpawn
	}

	requiredSpawnWith := manifest.RequiredSpawnWith
	if n.parentRequired != nil {
		requiredSpawnWith = n.parentRequired
	}
	if n.rootRequired != nil {
		requiredSpawnWith = n.rootRequired
	}
	if override.RequiredSpawnWith != nil {
		requiredSpawnWith = override.RequiredSpawnWith
	}

	source := n.source
	if override.Source != nil {
		source = *override.Source
	}

	if existing, ok := resolved[n.logicalName]; ok && !existing.Source.Equivalent(source) {
		return &LoaderError{
			Kind:        ConflictingSources,
			LogicalName: n.logicalName,
			SourceA:     existing.Source.String(),
			SourceB:     source.String(),
		}
	}

	resolved[n.logicalName] = &ResolvedActor{
		LogicalName:       n.logicalName,
		ActorID:           manifest.ActorID,
		Source:            source,
		Config:            cfg,
		AutoSpawn:         autoSpawn,
		RequiredSpawnWith: requiredSpawnWith,
		IsDependency:      n.isDependency,
		Manifest:          manifest,
	}

	colours[n.logicalName] = black
	return nil
}

// mergeConfig deep-merges TOML tables, last-writer-wins for scalars
// (§4.4 step 5). high may be nil.
func mergeConfig(low, high map[string]any) map[string]any {
	if low == nil && high == nil {
		return nil
	}
	out := make(map[string]any, len(low)+len(high))
	for k, v := range low {
		out[k] = v
	}
	for k, v := range high {
		if existing, ok := out[k]; ok {
			existingMap, existingIsMap := existing.(map[string]any)
			incomingMap, incomingIsMap := v.(map[string]any)
			if existingIsMap && incomingIsMap {
				out[k] = mergeConfig(existingMap, incomingMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}
