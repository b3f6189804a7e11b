package bus

import "fmt"

// SpawnErrorKind enumerates the ways spawn_actor_set can fail (§4.1 Failure
// semantics).
type SpawnErrorKind string

const (
	UnknownActor SpawnErrorKind = "unknown_actor"
	ScopeClosed  SpawnErrorKind = "scope_closed"
	EmptyActors  SpawnErrorKind = "empty_actors"
)

// SpawnError reports why spawn_actor_set was rejected.
type SpawnError struct {
	Kind    SpawnErrorKind
	ActorID string // set for UnknownActor
}

func (e *SpawnError) Error() string {
	switch e.Kind {
	case UnknownActor:
		return fmt.Sprintf("bus: unknown actor id %q", e.ActorID)
	case ScopeClosed:
		return "bus: scope is closed (assistant already reported Done)"
	case EmptyActors:
		return "bus: spawn_actor_set requires at least one actor id"
	default:
		return "bus: spawn error"
	}
}
