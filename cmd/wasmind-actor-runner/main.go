// Command wasmind-actor-runner is the out-of-process entrypoint a Daytona
// sandbox invokes to run one sandboxed actor call (§6.3, §4.2). It loads a
// Go plugin built from the actor's source tree, reconstructs the actor for
// this invocation, and dispatches exactly one handle-message or destructor
// call before exiting — state that must survive between calls belongs in
// the config text the constructor is re-handed each time, not in process
// memory (a sandboxed actor that needs long-lived in-memory state should
// run native instead; see DESIGN.md).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"plugin"
	"strings"

	"github.com/wasmind-go/wasmind/internal/actorapi"
	"github.com/wasmind-go/wasmind/internal/hostcaps"
	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

const pluginConstructorSymbol = "WasmindActor"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "handle-message":
		runHandleMessage(os.Args[2:])
	case "destructor":
		runDestructor(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: wasmind-actor-runner <handle-message|destructor> [options]")
}

func runHandleMessage(args []string) {
	flags := flag.NewFlagSet("handle-message", flag.ExitOnError)
	pluginPath := flags.String("plugin", "", "path to the built actor plugin (.so)")
	actorID := flags.String("actor", "", "actor_id being invoked")
	configFile := flags.String("config-file", "", "path to the resolved config JSON")
	envelopeFile := flags.String("envelope-file", "", "path to the envelope JSON to deliver")
	contextFile := flags.String("context-file", "", "path to the precomputed hostcaps.Context JSON")
	_ = flags.Parse(args)

	configText, err := readOptional(*configFile)
	if err != nil {
		fail(err)
	}
	envelopeData, err := readOptional(*envelopeFile)
	if err != nil {
		fail(err)
	}
	if len(envelopeData) == 0 {
		fail(fmt.Errorf("handle-message: --envelope-file is required"))
	}
	var env busmsg.MessageEnvelope
	if err := json.Unmarshal(envelopeData, &env); err != nil {
		fail(fmt.Errorf("handle-message: decode envelope: %w", err))
	}

	hcctx, err := readContext(*contextFile)
	if err != nil {
		fail(err)
	}

	ctor, err := loadActorPlugin(*pluginPath)
	if err != nil {
		fail(err)
	}

	host := &loopbackHost{ctx: hcctx}
	actor, err := ctor(context.Background(), env.FromScope, configText, host)
	if err != nil {
		fail(fmt.Errorf("handle-message: construct %s: %w", *actorID, err))
	}

	if err := actor.HandleMessage(context.Background(), env); err != nil {
		fail(fmt.Errorf("handle-message: %s: %w", *actorID, err))
	}
	writeJSON(runnerResult{OK: true, Calls: host.calls})
}

func runDestructor(args []string) {
	flags := flag.NewFlagSet("destructor", flag.ExitOnError)
	pluginPath := flags.String("plugin", "", "path to the built actor plugin (.so)")
	actorID := flags.String("actor", "", "actor_id being invoked")
	contextFile := flags.String("context-file", "", "path to the precomputed hostcaps.Context JSON")
	_ = flags.Parse(args)

	hcctx, err := readContext(*contextFile)
	if err != nil {
		fail(err)
	}

	ctor, err := loadActorPlugin(*pluginPath)
	if err != nil {
		fail(err)
	}
	host := &loopbackHost{ctx: hcctx}
	actor, err := ctor(context.Background(), busmsg.Scope{}, nil, host)
	if err != nil {
		fail(fmt.Errorf("destructor: construct %s: %w", *actorID, err))
	}
	actor.Destructor(context.Background())
	writeJSON(runnerResult{OK: true, Calls: host.calls})
}

func loadActorPlugin(path string) (actorapi.Constructor, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("--plugin is required")
	}
	plug, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}
	symbol, err := plug.Lookup(pluginConstructorSymbol)
	if err != nil {
		return nil, fmt.Errorf("lookup %s in %s: %w", pluginConstructorSymbol, path, err)
	}
	switch ctor := symbol.(type) {
	case actorapi.Constructor:
		return ctor, nil
	case *actorapi.Constructor:
		return *ctor, nil
	default:
		return nil, fmt.Errorf("plugin symbol %s in %s is not an actorapi.Constructor", pluginConstructorSymbol, path)
	}
}

func readOptional(path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

func readContext(path string) (hostcaps.Context, error) {
	data, err := readOptional(path)
	if err != nil {
		return hostcaps.Context{}, err
	}
	if len(data) == 0 {
		return hostcaps.Context{}, nil
	}
	var ctx hostcaps.Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return hostcaps.Context{}, fmt.Errorf("decode context file: %w", err)
	}
	return ctx, nil
}

// loopbackHost stands in for the real bus inside the sandbox process: it
// cannot reach the real mailboxes directly, so messaging.broadcast and
// agent.spawn_agent calls are recorded as hostcaps.Calls for the host to
// replay after this process exits, while agent.get_parent_scope and
// host_info.get_host_working_directory are answered immediately from the
// precomputed hostcaps.Context handed to this process on the command line.
type loopbackHost struct {
	ctx   hostcaps.Context
	calls []hostcaps.Call
}

func (h *loopbackHost) Broadcast(_ context.Context, _ busmsg.Scope, msgType busmsg.MessageType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	h.calls = append(h.calls, hostcaps.Call{Kind: hostcaps.MessagingBroadcast, MessageType: msgType, Payload: data})
	return nil
}

func (h *loopbackHost) SpawnActorSet(_ context.Context, _ busmsg.Scope, actorIDs []string, role string) (busmsg.Scope, error) {
	h.calls = append(h.calls, hostcaps.Call{Kind: hostcaps.AgentSpawnAgent, ActorIDs: actorIDs, Role: role})
	return busmsg.Scope{}, fmt.Errorf("agent.spawn_agent: the spawned scope is only available to a later invocation, not this one (see internal/hostcaps.Table.Replay)")
}

func (h *loopbackHost) ParentScope(busmsg.Scope) (busmsg.Scope, bool) {
	if h.ctx.ParentScope == nil {
		return busmsg.Scope{}, false
	}
	return *h.ctx.ParentScope, true
}

func (h *loopbackHost) HostWorkingDirectory() string { return h.ctx.WorkingDir }

func (h *loopbackHost) MarkScopeClosed(busmsg.Scope) {}

type runnerResult struct {
	OK    bool            `json:"ok"`
	Calls []hostcaps.Call `json:"calls,omitempty"`
	Error string          `json:"error,omitempty"`
}

func fail(err error) {
	writeJSON(runnerResult{OK: false, Error: err.Error()})
	os.Exit(1)
}

func writeJSON(payload any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
