package loader

import (
	"github.com/wasmind-go/wasmind/internal/actorapi"
)

// NativeRegistry maps actor_id to an in-process Constructor, for actors
// compiled directly into this binary (the Assistant, the LLM client driver,
// and any other first-party actor). Resolved actors whose actor_id is not
// registered here are handed to a SandboxLoader instead.
type NativeRegistry struct {
	constructors map[string]actorapi.Constructor
}

func NewNativeRegistry() *NativeRegistry {
	return &NativeRegistry{constructors: make(map[string]actorapi.Constructor)}
}

func (r *NativeRegistry) Register(actorID string, ctor actorapi.Constructor) {
	r.constructors[actorID] = ctor
}

// SandboxLoader builds a Constructor for a resolved actor whose code is not
// compiled into this binary — a wasmind.toml source tree built and run out
// of process. internal/sandbox implements this against plugin.Open for
// locally-built native plugins and Daytona-backed isolation for anything
// wanting stronger containment.
type SandboxLoader interface {
	Load(actor *ResolvedActor) (actorapi.Constructor, error)
}

// DescriptorProvider bridges loader.Resolve's output to the bus's
// DescriptorProvider contract: native actor_ids resolve instantly, anything
// else goes through the sandbox loader on first use and is cached.
type DescriptorProvider struct {
	resolved  map[string]*ResolvedActor // keyed by logical_name
	byActorID map[string]*ResolvedActor
	native    *NativeRegistry
	sandbox   SandboxLoader

	built map[string]actorapi.Constructor
}

func NewDescriptorProvider(resolved map[string]*ResolvedActor, native *NativeRegistry, sandbox SandboxLoader) *DescriptorProvider {
	byActorID := make(map[string]*ResolvedActor, len(resolved))
	for _, ra := range resolved {
		byActorID[ra.ActorID] = ra
	}
	return &DescriptorProvider{
		resolved:  resolved,
		byActorID: byActorID,
		native:    native,
		sandbox:   sandbox,
		built:     make(map[string]actorapi.Constructor),
	}
}

// Resolve implements internal/bus.DescriptorProvider.
func (p *DescriptorProvider) Resolve(actorID string) (actorapi.Descriptor, bool) {
	if ctor, ok := p.native.constructors[actorID]; ok {
		return actorapi.Descriptor{ActorID: actorID, Kind: actorapi.Native, New: ctor}, true
	}

	if ctor, ok := p.built[actorID]; ok {
		return actorapi.Descriptor{ActorID: actorID, Kind: actorapi.Sandboxed, New: ctor}, true
	}

	ra, ok := p.byActorID[actorID]
	if !ok || p.sandbox == nil {
		return actorapi.Descriptor{}, false
	}
	ctor, err := p.sandbox.Load(ra)
	if err != nil {
		return actorapi.Descriptor{}, false
	}
	p.built[actorID] = ctor
	return actorapi.Descriptor{ActorID: actorID, Kind: actorapi.Sandboxed, New: ctor}, true
}
