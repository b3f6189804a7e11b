// Package actorapi defines the three-operation actor contract (§4.2) and the
// native/sandboxed dispatch split (§9 "Dynamic dispatch across trust
// boundaries"). Actors never hold direct references to each other; they
// only know their own scope and the bus handed to them at construction.
package actorapi

import (
	"context"

	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

// Kind distinguishes how an actor's handle_message panics are contained
// (§4.2).
type Kind int

const (
	// Native actors are linked in-process and trusted; a panic in
	// handle_message aborts the whole process.
	Native Kind = iota
	// Sandboxed actors run with restricted host access; a panic is caught,
	// logged with the actor's identity, and only that actor is terminated.
	Sandboxed
)

// Publisher is the subset of bus operations an actor needs to act: publish
// on its own scope, spawn children, and answer hierarchy/host queries. The
// bus implements this; actorapi depends only on the interface to avoid an
// import cycle with internal/bus.
type Publisher interface {
	Broadcast(ctx context.Context, from busmsg.Scope, msgType busmsg.MessageType, payload any) error
	SpawnActorSet(ctx context.Context, parent busmsg.Scope, actorIDs []string, role string) (busmsg.Scope, error)
	ParentScope(s busmsg.Scope) (busmsg.Scope, bool)
	HostWorkingDirectory() string
	MarkScopeClosed(s busmsg.Scope)
}

// Actor is the contract every actor implementation satisfies, whether
// compiled in natively or loaded as a sandboxed component. new/handle_message
// correspond exactly to §4.2: construction, serial message handling, and
// teardown with no envelope and no ability to broadcast.
type Actor interface {
	// HandleMessage processes one envelope to completion before the next
	// is delivered to this actor instance (§4.1 per-actor serial
	// execution). Implementations must not block on I/O; long-running work
	// is owned by task pools outside the actor (§5).
	HandleMessage(ctx context.Context, env busmsg.MessageEnvelope) error

	// Destructor runs on scope termination. It receives no envelope and
	// cannot broadcast - any final state must have been flushed earlier.
	Destructor(ctx context.Context)
}

// Constructor builds a new Actor instance bound to scope, given its
// resolved configuration text (a TOML table re-serialized to bytes, or
// empty for actors with no config) and a handle to the bus.
type Constructor func(ctx context.Context, scope busmsg.Scope, configText []byte, bus Publisher) (Actor, error)

// Descriptor names one loadable actor kind, as produced by the loader and
// consumed by the bus when spawning.
type Descriptor struct {
	ActorID string
	Kind    Kind
	New     Constructor
}
