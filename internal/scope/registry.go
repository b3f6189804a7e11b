// Package scope owns the bus's parent-of map: scope hierarchy is not
// encoded in the Scope identifier itself (pkg/busmsg.Scope is opaque), it is
// tracked here as the bus allocates and retires scopes.
package scope

import (
	"fmt"
	"sync"

	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

// Registry tracks parent/child relationships between scopes and which
// scopes are still alive. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	parent   map[busmsg.Scope]busmsg.Scope
	children map[busmsg.Scope][]busmsg.Scope
	alive    map[busmsg.Scope]bool
}

func NewRegistry() *Registry {
	return &Registry{
		parent:   make(map[busmsg.Scope]busmsg.Scope),
		children: make(map[busmsg.Scope][]busmsg.Scope),
		alive:    make(map[busmsg.Scope]bool),
	}
}

// Root registers the root scope, which has no parent. Calling Root twice
// with different scopes is a programmer error and panics.
func (r *Registry) Root(s busmsg.Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.alive) != 0 {
		panic("scope: Root called after scopes already registered")
	}
	r.alive[s] = true
}

// Allocate registers a new child scope of parent. Every spawned scope has
// exactly one parent (§3 invariant).
func (r *Registry) Allocate(parent, child busmsg.Scope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.alive[parent] {
		return fmt.Errorf("scope: parent %s is not a live scope", parent)
	}
	if _, exists := r.parent[child]; exists {
		return fmt.Errorf("scope: child %s already has a parent", child)
	}
	r.parent[child] = parent
	r.children[parent] = append(r.children[parent], child)
	r.alive[child] = true
	return nil
}

// ParentOf returns the parent scope and true, or the zero Scope and false if
// s is the root or unknown.
func (r *Registry) ParentOf(s busmsg.Scope) (busmsg.Scope, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parent[s]
	return p, ok
}

// ChildrenOf returns a snapshot of s's direct children.
func (r *Registry) ChildrenOf(s busmsg.Scope) []busmsg.Scope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]busmsg.Scope, len(r.children[s]))
	copy(out, r.children[s])
	return out
}

// IsAlive reports whether s has been allocated and not yet retired.
func (r *Registry) IsAlive(s busmsg.Scope) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alive[s]
}

// Retire marks a scope's lifetime as ended (bus received Exit for it, or its
// last actor terminated). Retiring a scope does not recursively retire its
// children; the bus is responsible for cascading Exit if it chooses to.
func (r *Registry) Retire(s busmsg.Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.alive, s)
}
