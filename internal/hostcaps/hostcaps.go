// Package hostcaps is the named host capability table §6.3 exposes to
// sandboxed actors: messaging.broadcast, agent.spawn_agent,
// agent.get_parent_scope, host_info.get_host_working_directory, and
// logger.log. A native actor can call Table's methods directly through its
// actorapi.Publisher. A sandboxed actor cannot: it runs in a separate
// process with no live connection back to the bus, so it records the calls
// it wants to make as a Call log (see Context and Call) and the host
// replays that log once the sandboxed process exits (internal/sandbox).
package hostcaps

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/wasmind-go/wasmind/internal/actorapi"
	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

// Kind names one of the five host capability operations.
type Kind string

const (
	MessagingBroadcast              Kind = "messaging.broadcast"
	AgentSpawnAgent                 Kind = "agent.spawn_agent"
	AgentGetParentScope             Kind = "agent.get_parent_scope"
	HostInfoGetHostWorkingDirectory Kind = "host_info.get_host_working_directory"
	LoggerLog                       Kind = "logger.log"
)

// Call is one host capability invocation, in wire form so a sandboxed
// process can record it without holding a live bus connection.
type Call struct {
	Kind        Kind               `json:"kind"`
	MessageType busmsg.MessageType `json:"message_type,omitempty"`
	Payload     json.RawMessage    `json:"payload,omitempty"`
	ActorIDs    []string           `json:"actor_ids,omitempty"`
	Role        string             `json:"role,omitempty"`
	Level       string             `json:"level,omitempty"`
	Message     string             `json:"message,omitempty"`
}

// Context carries the two read-only capability answers a sandboxed process
// can be told up front - its parent scope and the host's working directory
// - so agent.get_parent_scope and host_info.get_host_working_directory
// resolve locally inside the sandbox without a mid-exec round trip back to
// the host. messaging.broadcast and agent.spawn_agent have no such
// precomputed answer: they are recorded as Calls and replayed by Table
// after the sandboxed process exits (see Replay's doc comment for the one
// consequence of that design).
type Context struct {
	ParentScope *busmsg.Scope `json:"parent_scope,omitempty"`
	WorkingDir  string        `json:"host_working_directory"`
}

// Resolve answers the two precomputable capabilities locally; ok is false
// for any Kind that must instead be recorded and replayed by the host.
func (c Context) Resolve(kind Kind) (json.RawMessage, bool) {
	switch kind {
	case AgentGetParentScope:
		data, _ := json.Marshal(c.ParentScope)
		return data, true
	case HostInfoGetHostWorkingDirectory:
		data, _ := json.Marshal(c.WorkingDir)
		return data, true
	default:
		return nil, false
	}
}

// Table is the native-side implementation of the §6.3 capability table,
// bound to one actor's scope. Native actors may use it directly instead of
// calling actorapi.Publisher by its Go method names; internal/sandbox uses
// it to replay a sandboxed actor's recorded Calls.
type Table struct {
	scope busmsg.Scope
	bus   actorapi.Publisher
	log   *zap.Logger
}

func NewTable(scope busmsg.Scope, bus actorapi.Publisher, log *zap.Logger) *Table {
	return &Table{scope: scope, bus: bus, log: log}
}

func (t *Table) Broadcast(ctx context.Context, msgType busmsg.MessageType, payload json.RawMessage) error {
	return t.bus.Broadcast(ctx, t.scope, msgType, payload)
}

func (t *Table) SpawnAgent(ctx context.Context, actorIDs []string, role string) (busmsg.Scope, error) {
	return t.bus.SpawnActorSet(ctx, t.scope, actorIDs, role)
}

func (t *Table) GetParentScope() (busmsg.Scope, bool) {
	return t.bus.ParentScope(t.scope)
}

func (t *Table) GetHostWorkingDirectory() string {
	return t.bus.HostWorkingDirectory()
}

func (t *Table) Log(level, message string) {
	if t.log == nil {
		return
	}
	switch level {
	case "trace", "debug":
		t.log.Debug(message)
	case "warn":
		t.log.Warn(message)
	case "error":
		t.log.Error(message)
	default:
		t.log.Info(message)
	}
}

// Replay executes a sandboxed actor's recorded Calls against the real bus
// after its process has exited. messaging.broadcast and logger.log replay
// with their real, intended effect - broadcast is fire-and-forget, so
// replaying it a moment later than the call site is no different from
// replaying it at the call site. agent.spawn_agent is the one capability
// this degrades: the sandboxed actor cannot learn the new scope it created
// within the same HandleMessage invocation that requested it (the process
// has already exited by the time Replay runs the spawn), so an actor that
// needs the spawned scope for follow-up work must look for it in a later
// message instead of using the return value synchronously. This is an
// accepted simplification of running sandboxed actors as one-shot
// subprocess execs rather than long-lived sessions (see DESIGN.md).
func (t *Table) Replay(ctx context.Context, calls []Call) error {
	for _, call := range calls {
		switch call.Kind {
		case MessagingBroadcast:
			if err := t.Broadcast(ctx, call.MessageType, call.Payload); err != nil {
				return fmt.Errorf("hostcaps: replay broadcast: %w", err)
			}
		case AgentSpawnAgent:
			if _, err := t.SpawnAgent(ctx, call.ActorIDs, call.Role); err != nil {
				return fmt.Errorf("hostcaps: replay spawn_agent: %w", err)
			}
		case LoggerLog:
			t.Log(call.Level, call.Message)
		case AgentGetParentScope, HostInfoGetHostWorkingDirectory:
			// Answered synchronously from Context inside the sandbox;
			// nothing to replay.
		default:
			return fmt.Errorf("hostcaps: replay: unknown call kind %q", call.Kind)
		}
	}
	return nil
}
