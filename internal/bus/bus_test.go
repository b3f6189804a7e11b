package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wasmind-go/wasmind/internal/actorapi"
	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

// recordingActor is a minimal actorapi.Actor that hands every delivered
// envelope to a channel so a test can observe delivery without polling, and
// optionally panics on a chosen message type to exercise sandboxed-actor
// termination.
type recordingActor struct {
	received   chan busmsg.MessageEnvelope
	destructed chan struct{}
	panicOn    busmsg.MessageType
}

func newRecordingActor() *recordingActor {
	return &recordingActor{
		received:   make(chan busmsg.MessageEnvelope, 8),
		destructed: make(chan struct{}),
	}
}

func (a *recordingActor) HandleMessage(_ context.Context, env busmsg.MessageEnvelope) error {
	if a.panicOn != "" && env.MessageType == a.panicOn {
		panic("boom")
	}
	a.received <- env
	return nil
}

func (a *recordingActor) Destructor(context.Context) { close(a.destructed) }

func (a *recordingActor) requireReceives(t *testing.T, msgType busmsg.MessageType) {
	t.Helper()
	select {
	case env := <-a.received:
		require.Equal(t, msgType, env.MessageType)
	case <-time.After(time.Second):
		t.Fatalf("actor never received %s", msgType)
	}
}

func (a *recordingActor) requireSilent(t *testing.T) {
	t.Helper()
	select {
	case env := <-a.received:
		t.Fatalf("actor unexpectedly received %s", env.MessageType)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeProvider map[string]actorapi.Descriptor

func (p fakeProvider) Resolve(actorID string) (actorapi.Descriptor, bool) {
	d, ok := p[actorID]
	return d, ok
}

func newTestBus(t *testing.T, provider fakeProvider) (*Bus, busmsg.Scope) {
	t.Helper()
	root := busmsg.NewScope()
	b := New(root, "/work", zap.NewNop())
	b.SetDescriptorProvider(provider)
	return b, root
}

// TestBroadcastReachesEveryActorSharingAScope is the regression test for the
// mailbox-eviction bug: an agent's Assistant and its llmclient Driver (or any
// two actors) spawned together into one scope must both keep receiving
// broadcasts, not just whichever one registered last.
func TestBroadcastReachesEveryActorSharingAScope(t *testing.T) {
	actorA := newRecordingActor()
	actorB := newRecordingActor()
	provider := fakeProvider{
		"wasmind:a": {ActorID: "wasmind:a", Kind: actorapi.Native, New: func(context.Context, busmsg.Scope, []byte, actorapi.Publisher) (actorapi.Actor, error) {
			return actorA, nil
		}},
		"wasmind:b": {ActorID: "wasmind:b", Kind: actorapi.Native, New: func(context.Context, busmsg.Scope, []byte, actorapi.Publisher) (actorapi.Actor, error) {
			return actorB, nil
		}},
	}
	b, root := newTestBus(t, provider)

	child, err := b.SpawnActorSet(context.Background(), root, []string{"wasmind:a", "wasmind:b"}, "test")
	require.NoError(t, err)

	require.NoError(t, b.Broadcast(context.Background(), child, busmsg.Response, map[string]string{"k": "v"}))
	actorA.requireReceives(t, busmsg.Response)
	actorB.requireReceives(t, busmsg.Response)

	// A second broadcast must still reach both - actorA's mailbox must not
	// have been evicted when actorB registered.
	require.NoError(t, b.Broadcast(context.Background(), child, busmsg.StatusUpdate, map[string]string{"k": "v2"}))
	actorA.requireReceives(t, busmsg.StatusUpdate)
	actorB.requireReceives(t, busmsg.StatusUpdate)
}

// TestSandboxedActorPanicTerminatesOnlyThatActor confirms that a panic
// recovered from one sandboxed actor's mailbox destructs only that actor -
// its sibling in the same scope keeps its mailbox and keeps receiving.
func TestSandboxedActorPanicTerminatesOnlyThatActor(t *testing.T) {
	actorA := newRecordingActor()
	actorB := newRecordingActor()
	actorB.panicOn = busmsg.ToolCallStatusUpdate
	provider := fakeProvider{
		"wasmind:a": {ActorID: "wasmind:a", Kind: actorapi.Native, New: func(context.Context, busmsg.Scope, []byte, actorapi.Publisher) (actorapi.Actor, error) {
			return actorA, nil
		}},
		"wasmind:b": {ActorID: "wasmind:b", Kind: actorapi.Sandboxed, New: func(context.Context, busmsg.Scope, []byte, actorapi.Publisher) (actorapi.Actor, error) {
			return actorB, nil
		}},
	}
	b, root := newTestBus(t, provider)

	child, err := b.SpawnActorSet(context.Background(), root, []string{"wasmind:a", "wasmind:b"}, "test")
	require.NoError(t, err)

	require.NoError(t, b.Broadcast(context.Background(), child, busmsg.ToolCallStatusUpdate, map[string]string{}))
	actorA.requireReceives(t, busmsg.ToolCallStatusUpdate)

	select {
	case <-actorB.destructed:
	case <-time.After(time.Second):
		t.Fatal("panicking actor was never destructed")
	}

	require.NoError(t, b.Broadcast(context.Background(), child, busmsg.Response, map[string]string{}))
	actorA.requireReceives(t, busmsg.Response)
	actorB.requireSilent(t)
}

// TestExitTerminatesEveryActorInScope confirms actors.Exit tears down every
// actor registered in a scope, not just one.
func TestExitTerminatesEveryActorInScope(t *testing.T) {
	actorA := newRecordingActor()
	actorB := newRecordingActor()
	provider := fakeProvider{
		"wasmind:a": {ActorID: "wasmind:a", Kind: actorapi.Native, New: func(context.Context, busmsg.Scope, []byte, actorapi.Publisher) (actorapi.Actor, error) {
			return actorA, nil
		}},
		"wasmind:b": {ActorID: "wasmind:b", Kind: actorapi.Native, New: func(context.Context, busmsg.Scope, []byte, actorapi.Publisher) (actorapi.Actor, error) {
			return actorB, nil
		}},
	}
	b, root := newTestBus(t, provider)

	child, err := b.SpawnActorSet(context.Background(), root, []string{"wasmind:a", "wasmind:b"}, "test")
	require.NoError(t, err)

	b.Exit(child)

	for _, actor := range []*recordingActor{actorA, actorB} {
		select {
		case <-actor.destructed:
		case <-time.After(time.Second):
			t.Fatal("actor was never destructed on scope exit")
		}
	}

	require.False(t, b.scopes.IsAlive(child))
}
