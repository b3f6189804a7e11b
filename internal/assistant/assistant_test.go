package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmind-go/wasmind/internal/actorapi"
	"github.com/wasmind-go/wasmind/pkg/busmsg"
	"github.com/wasmind-go/wasmind/pkg/chatmsg"
)

// fakeBus records every broadcast so tests can inspect what the assistant
// emitted, without pulling in the real bus package.
type fakeBus struct {
	scope     busmsg.Scope
	broadcasts []busmsg.MessageEnvelope
	closed    map[busmsg.Scope]bool
}

func newFakeBus(scope busmsg.Scope) *fakeBus {
	return &fakeBus{scope: scope, closed: make(map[busmsg.Scope]bool)}
}

func (f *fakeBus) Broadcast(ctx context.Context, from busmsg.Scope, msgType busmsg.MessageType, payload any) error {
	env, err := busmsg.NewEnvelope(from, msgType, payload)
	if err != nil {
		return err
	}
	f.broadcasts = append(f.broadcasts, env)
	return nil
}

func (f *fakeBus) SpawnActorSet(ctx context.Context, parent busmsg.Scope, actorIDs []string, role string) (busmsg.Scope, error) {
	return busmsg.NewScope(), nil
}

func (f *fakeBus) ParentScope(s busmsg.Scope) (busmsg.Scope, bool) { return busmsg.Scope{}, false }
func (f *fakeBus) HostWorkingDirectory() string                   { return "/work" }
func (f *fakeBus) MarkScopeClosed(s busmsg.Scope)                  { f.closed[s] = true }

func (f *fakeBus) last(msgType busmsg.MessageType) (busmsg.MessageEnvelope, bool) {
	for i := len(f.broadcasts) - 1; i >= 0; i-- {
		if f.broadcasts[i].MessageType == msgType {
			return f.broadcasts[i], true
		}
	}
	return busmsg.MessageEnvelope{}, false
}

func newTestAssistant(t *testing.T) (*Assistant, *fakeBus) {
	t.Helper()
	s := busmsg.NewScope()
	bus := newFakeBus(s)
	actor, err := New(context.Background(), s, nil, bus)
	require.NoError(t, err)
	a := actor.(*Assistant)
	// Skip the AllActorsReady gate for tests that exercise the
	// request/response cycle directly.
	a.status = chatmsg.Wait(chatmsg.ReasonUserInput())
	return a, bus
}

func envelope(t *testing.T, scope busmsg.Scope, msgType busmsg.MessageType, payload any) busmsg.MessageEnvelope {
	t.Helper()
	env, err := busmsg.NewEnvelope(scope, msgType, payload)
	require.NoError(t, err)
	return env
}

// S1 - single tool round-trip.
func TestSingleToolRoundTrip(t *testing.T) {
	a, bus := newTestAssistant(t)
	ctx := context.Background()

	require.NoError(t, a.HandleMessage(ctx, envelope(t, a.scope, busmsg.AddMessage, AddMessagePayload{
		Agent:   a.scope,
		Message: chatmsg.User("Read /tmp/a.txt"),
	})))
	require.Equal(t, chatmsg.StatusProcessing, a.status.Kind)

	reqEnv, ok := bus.last(busmsg.Request)
	require.True(t, ok)
	var req RequestPayload
	require.NoError(t, reqEnv.Decode(&req))

	require.NoError(t, a.HandleMessage(ctx, envelope(t, a.scope, busmsg.Response, ResponsePayload{
		OriginatingRequestID: req.RequestID,
		Message: chatmsg.Assistant("", []chatmsg.ToolCall{
			{ID: "t1", Name: "read_file", Arguments: `{"path":"/tmp/a.txt"}`},
		}),
	})))
	require.True(t, a.status.IsWaitingFor(chatmsg.WaitingForTools))

	require.NoError(t, a.HandleMessage(ctx, envelope(t, a.scope, busmsg.ToolCallStatusUpdate, ToolCallStatusUpdatePayload{
		ToolCallID: "t1",
		ToolName:   "read_file",
		Done:       true,
		Result:     &chatmsg.ToolCallResult{ToolCallID: "t1", Content: "hello"},
	})))

	history := a.ChatHistory()
	require.Len(t, history, 3)
	require.Equal(t, chatmsg.RoleUser, history[0].Role)
	require.Equal(t, chatmsg.RoleAssistant, history[1].Role)
	require.Equal(t, chatmsg.RoleTool, history[2].Role)
	require.Equal(t, "hello", history[2].Content)
	require.True(t, a.status.IsWaitingFor(chatmsg.WaitingForUserInput) || a.status.Kind == chatmsg.StatusProcessing)
}

// S2 - multiple tools, out-of-order completion must drain in original order.
func TestMultipleToolsOutOfOrderCompletion(t *testing.T) {
	a, bus := newTestAssistant(t)
	ctx := context.Background()

	require.NoError(t, a.HandleMessage(ctx, envelope(t, a.scope, busmsg.AddMessage, AddMessagePayload{
		Agent: a.scope, Message: chatmsg.User("do two things"),
	})))
	reqEnv, _ := bus.last(busmsg.Request)
	var req RequestPayload
	require.NoError(t, reqEnv.Decode(&req))

	require.NoError(t, a.HandleMessage(ctx, envelope(t, a.scope, busmsg.Response, ResponsePayload{
		OriginatingRequestID: req.RequestID,
		Message: chatmsg.Assistant("", []chatmsg.ToolCall{
			{ID: "t1", Name: "a"},
			{ID: "t2", Name: "b"},
		}),
	})))

	// t2 resolves first.
	require.NoError(t, a.HandleMessage(ctx, envelope(t, a.scope, busmsg.ToolCallStatusUpdate, ToolCallStatusUpdatePayload{
		ToolCallID: "t2", Done: true, Result: &chatmsg.ToolCallResult{Content: "second"},
	})))
	// Not all resolved yet - no Tool messages appended.
	require.Len(t, a.ChatHistory(), 2)

	require.NoError(t, a.HandleMessage(ctx, envelope(t, a.scope, busmsg.ToolCallStatusUpdate, ToolCallStatusUpdatePayload{
		ToolCallID: "t1", Done: true, Result: &chatmsg.ToolCallResult{Content: "first"},
	})))

	history := a.ChatHistory()
	require.Len(t, history, 4)
	require.Equal(t, "t1", history[2].ToolCallID)
	require.Equal(t, "first", history[2].Content)
	require.Equal(t, "t2", history[3].ToolCallID)
	require.Equal(t, "second", history[3].Content)
}

// S3 - user interrupts a system wait.
func TestUserInterruptsSystemWait(t *testing.T) {
	a, _ := newTestAssistant(t)
	ctx := context.Background()

	a.status = chatmsg.Wait(chatmsg.ReasonSystemInput(nil, true, ""))

	require.NoError(t, a.HandleMessage(ctx, envelope(t, a.scope, busmsg.AddMessage, AddMessagePayload{
		Agent: a.scope, Message: chatmsg.User("actually, stop"),
	})))
	require.Equal(t, chatmsg.StatusProcessing, a.status.Kind)
}

// S6 - stale response dropped after a forced status change.
func TestStaleResponseDropped(t *testing.T) {
	a, _ := newTestAssistant(t)
	ctx := context.Background()

	a.status = chatmsg.Processing("r1")
	require.NoError(t, a.forceStatus(ctx, chatmsg.Wait(chatmsg.ReasonUserInput())))

	require.NoError(t, a.HandleMessage(ctx, envelope(t, a.scope, busmsg.Response, ResponsePayload{
		OriginatingRequestID: "r1",
		Message:              chatmsg.Assistant("too late", nil),
	})))

	require.True(t, a.status.IsWaitingFor(chatmsg.WaitingForUserInput))
	require.Empty(t, a.ChatHistory())
}

func TestUnknownToolCallIDRecordedButNoTransition(t *testing.T) {
	a, _ := newTestAssistant(t)
	ctx := context.Background()
	a.status = chatmsg.Wait(chatmsg.ReasonTools("r1", []chatmsg.ToolCall{{ID: "t1", Name: "a"}}))

	require.NoError(t, a.HandleMessage(ctx, envelope(t, a.scope, busmsg.ToolCallStatusUpdate, ToolCallStatusUpdatePayload{
		ToolCallID: "unknown", Done: true, Result: &chatmsg.ToolCallResult{Content: "x"},
	})))

	require.True(t, a.status.IsWaitingFor(chatmsg.WaitingForTools))
	require.Contains(t, a.toolCallUpdates, "unknown")
	require.Empty(t, a.ChatHistory())
}

func TestAddMessageIgnoredForOtherScope(t *testing.T) {
	a, _ := newTestAssistant(t)
	ctx := context.Background()
	other := busmsg.NewScope()

	err := a.HandleMessage(ctx, envelope(t, other, busmsg.AddMessage, AddMessagePayload{
		Agent:   other,
		Message: chatmsg.User("not for you"),
	}))
	require.NoError(t, err)
	require.True(t, a.pending.IsEmpty())
}

var _ actorapi.Publisher = (*fakeBus)(nil)
