// Package busmsg defines the wire-level types actors exchange over the
// message bus: scope identifiers and message envelopes.
package busmsg

import (
	"github.com/google/uuid"
)

// Scope is an opaque 128-bit identifier naming one agent's scope, shared by
// every actor spawned into it. Scopes
// carry no structure of their own - the parent/child relationship between
// scopes is tracked by the bus, not encoded in the identifier.
type Scope uuid.UUID

// NewScope allocates a fresh, globally unique Scope.
func NewScope() Scope {
	return Scope(uuid.New())
}

// Nil is the zero Scope, used to mean "no scope" (e.g. a root actor's
// parent).
var Nil = Scope(uuid.Nil)

func (s Scope) String() string {
	return uuid.UUID(s).String()
}

func (s Scope) IsNil() bool {
	return uuid.UUID(s) == uuid.Nil
}

// ParseScope parses the canonical string form of a Scope.
func ParseScope(s string) (Scope, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Scope{}, err
	}
	return Scope(u), nil
}

func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Scope) UnmarshalText(b []byte) error {
	parsed, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
