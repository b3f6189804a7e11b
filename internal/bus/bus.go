// Package bus implements the Message Bus (§4.1): scoped broadcast of typed
// envelopes to in-process and sandboxed actors, parent/child scope
// hierarchy, and actor lifecycle.
//
// Delivery model: every published envelope goes to every currently live
// actor mailbox (subscription is implicit on actor start). Each mailbox is
// drained by its own goroutine, one message handled to completion before
// the next is delivered (per-actor serial execution, §4.1 Concurrency).
// Broadcast blocks until the envelope has been enqueued on every mailbox,
// so a full mailbox applies backpressure to the publisher rather than
// dropping messages.
package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wasmind-go/wasmind/internal/actorapi"
	"github.com/wasmind-go/wasmind/internal/scope"
	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

// mailboxCapacity bounds the per-actor inbox. A full inbox blocks the
// publisher (§4.1): messages are never dropped silently.
const mailboxCapacity = 256

// DescriptorProvider resolves an actor id to its loadable descriptor. The
// loader package implements this; bus depends only on the interface.
type DescriptorProvider interface {
	Resolve(actorID string) (actorapi.Descriptor, bool)
}

type mailbox struct {
	scope   busmsg.Scope
	actorID string
	actor   actorapi.Actor
	kind    actorapi.Kind
	inbox   chan busmsg.MessageEnvelope
	done    chan struct{}
}

// Bus is the process-wide actor/message bus singleton (§9 "Global state").
//
// A scope ordinarily holds several actors at once (an agent's Assistant
// alongside its llmclient Driver and any tool actors, all spawned into the
// same child scope by SpawnActorSet, §3/§4.1), so mailboxes are keyed by
// (scope, actor id), not by scope alone - keying by scope alone would let
// each new Register in a scope silently replace the previous actor's
// mailbox.
type Bus struct {
	mu        sync.RWMutex
	mailboxes map[busmsg.Scope]map[string]*mailbox
	closed    map[busmsg.Scope]bool

	scopes      *scope.Registry
	descriptors DescriptorProvider
	hostWD      string
	log         *zap.Logger
}

// New constructs the bus with a root scope already registered. descriptors
// may be nil and set later via SetDescriptorProvider once the loader has
// resolved the actor set (the loader itself needs a bus reference to
// construct actors, so the two are wired together after both exist).
func New(root busmsg.Scope, hostWorkingDirectory string, log *zap.Logger) *Bus {
	reg := scope.NewRegistry()
	reg.Root(root)
	return &Bus{
		mailboxes: make(map[busmsg.Scope]map[string]*mailbox),
		closed:    make(map[busmsg.Scope]bool),
		scopes:    reg,
		hostWD:    hostWorkingDirectory,
		log:       log,
	}
}

func (b *Bus) SetDescriptorProvider(p DescriptorProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.descriptors = p
}

// Register starts a mailbox for actorID bound to scope s, and dispatches its
// first delivered envelope set. Used both for the root actor set and for
// children created via SpawnActorSet. Registering a second actorID into a
// scope that already holds one adds a sibling mailbox; it never replaces an
// existing one.
func (b *Bus) Register(s busmsg.Scope, actorID string, actor actorapi.Actor, kind actorapi.Kind) {
	mb := &mailbox{
		scope:   s,
		actorID: actorID,
		actor:   actor,
		kind:    kind,
		inbox:   make(chan busmsg.MessageEnvelope, mailboxCapacity),
		done:    make(chan struct{}),
	}
	b.mu.Lock()
	byActor, ok := b.mailboxes[s]
	if !ok {
		byActor = make(map[string]*mailbox)
		b.mailboxes[s] = byActor
	}
	byActor[actorID] = mb
	b.mu.Unlock()

	go b.run(mb)
}

func (b *Bus) run(mb *mailbox) {
	defer close(mb.done)
	for env := range mb.inbox {
		b.deliver(mb, env)
	}
}

func (b *Bus) deliver(mb *mailbox, env busmsg.MessageEnvelope) {
	if mb.kind == actorapi.Native {
		// Native actors are trusted; a panic aborts the process (§4.2
		// policy choice for the trust boundary). No recover here.
		_ = mb.actor.HandleMessage(context.Background(), env)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("sandboxed actor panicked; terminating actor, siblings survive",
				zap.Stringer("scope", mb.scope), zap.String("actor_id", mb.actorID), zap.Any("recover", r))
			b.terminateActor(mb.scope, mb.actorID)
		}
	}()
	if err := mb.actor.HandleMessage(context.Background(), env); err != nil {
		b.log.Warn("actor returned error from handle_message",
			zap.Stringer("scope", mb.scope), zap.String("actor_id", mb.actorID), zap.Error(err))
	}
}

// terminateActor removes and tears down a single actor's mailbox, leaving
// any sibling actors in the same scope running.
func (b *Bus) terminateActor(s busmsg.Scope, actorID string) {
	b.mu.Lock()
	var mb *mailbox
	if byActor, ok := b.mailboxes[s]; ok {
		mb = byActor[actorID]
		delete(byActor, actorID)
		if len(byActor) == 0 {
			delete(b.mailboxes, s)
		}
	}
	b.mu.Unlock()
	if mb != nil {
		mb.actor.Destructor(context.Background())
		close(mb.inbox)
	}
}

// Broadcast publishes from the given scope to every currently live mailbox,
// across every scope. Returns once enqueued everywhere (§4.1). It returns an
// error only when the payload cannot be encoded or ctx is done before every
// mailbox has taken the envelope.
func (b *Bus) Broadcast(ctx context.Context, from busmsg.Scope, msgType busmsg.MessageType, payload any) error {
	env, err := busmsg.NewEnvelope(from, msgType, payload)
	if err != nil {
		return fmt.Errorf("bus: encode payload for %s: %w", msgType, err)
	}

	b.mu.RLock()
	targets := make([]*mailbox, 0, len(b.mailboxes))
	for _, byActor := range b.mailboxes {
		for _, mb := range byActor {
			targets = append(targets, mb)
		}
	}
	b.mu.RUnlock()

	for _, mb := range targets {
		select {
		case mb.inbox <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// SpawnActorSet allocates a new child scope of parent, instantiates each
// named actor bound to it, and returns the new scope (§4.1).
func (b *Bus) SpawnActorSet(ctx context.Context, parent busmsg.Scope, actorIDs []string, role string) (busmsg.Scope, error) {
	if len(actorIDs) == 0 {
		return busmsg.Scope{}, &SpawnError{Kind: EmptyActors}
	}

	b.mu.RLock()
	closed := b.closed[parent]
	provider := b.descriptors
	b.mu.RUnlock()
	if closed {
		return busmsg.Scope{}, &SpawnError{Kind: ScopeClosed}
	}

	descs := make([]actorapi.Descriptor, 0, len(actorIDs))
	for _, id := range actorIDs {
		if provider == nil {
			return busmsg.Scope{}, &SpawnError{Kind: UnknownActor, ActorID: id}
		}
		d, ok := provider.Resolve(id)
		if !ok {
			return busmsg.Scope{}, &SpawnError{Kind: UnknownActor, ActorID: id}
		}
		descs = append(descs, d)
	}

	child := busmsg.NewScope()
	if err := b.scopes.Allocate(parent, child); err != nil {
		return busmsg.Scope{}, fmt.Errorf("bus: %w", err)
	}

	for _, d := range descs {
		actor, err := d.New(ctx, child, nil, b)
		if err != nil {
			return busmsg.Scope{}, fmt.Errorf("bus: construct actor %s: %w", d.ActorID, err)
		}
		b.Register(child, d.ActorID, actor, d.Kind)
	}

	b.log.Info("spawned actor set", zap.Stringer("parent", parent), zap.Stringer("child", child),
		zap.Strings("actors", actorIDs), zap.String("role", role))
	return child, nil
}

// ParentScope implements the get_parent_scope host capability.
func (b *Bus) ParentScope(s busmsg.Scope) (busmsg.Scope, bool) {
	return b.scopes.ParentOf(s)
}

// HostWorkingDirectory implements the get_host_working_directory host
// capability.
func (b *Bus) HostWorkingDirectory() string {
	return b.hostWD
}

// MarkScopeClosed records that a scope's assistant has reported Done, so
// later spawn attempts into it fail with ScopeClosed.
func (b *Bus) MarkScopeClosed(s busmsg.Scope) {
	b.mu.Lock()
	b.closed[s] = true
	b.mu.Unlock()
}

// Exit terminates every actor registered in scope s, running each
// destructor and removing it from delivery, then retires the scope itself.
// Used for explicit actors.Exit handling (§4.1).
func (b *Bus) Exit(s busmsg.Scope) {
	b.mu.RLock()
	actorIDs := make([]string, 0, len(b.mailboxes[s]))
	for actorID := range b.mailboxes[s] {
		actorIDs = append(actorIDs, actorID)
	}
	b.mu.RUnlock()

	for _, actorID := range actorIDs {
		b.terminateActor(s, actorID)
	}
	b.scopes.Retire(s)
}
