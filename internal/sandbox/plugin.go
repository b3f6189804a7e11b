//go:build !windows

package sandbox

import (
	"fmt"
	"plugin"

	"github.com/wasmind-go/wasmind/internal/actorapi"
	"github.com/wasmind-go/wasmind/internal/loader"
)

// pluginConstructorSymbol is the exported symbol name a locally-built actor
// plugin must provide (§6.3: native-compiled actor components loaded from a
// resolved source tree rather than linked into this binary at build time).
const pluginConstructorSymbol = "WasmindActor"

// NativePluginLoader builds a Constructor out of a Go plugin (.so) built
// from a resolved actor's source tree, for actors that want native-process
// performance without being compiled into wasmindd itself.
type NativePluginLoader struct {
	// BinaryPath maps an actor_id to its already-built plugin path (a
	// go build -buildmode=plugin output). Nothing in this module produces
	// that file; the loader package only fetches sources.
	BinaryPath func(actorID string) (string, error)
}

var _ loader.SandboxLoader = (*NativePluginLoader)(nil)

func (l *NativePluginLoader) Load(actor *loader.ResolvedActor) (actorapi.Constructor, error) {
	path, err := l.BinaryPath(actor.ActorID)
	if err != nil {
		return nil, fmt.Errorf("sandbox: locate plugin for %s: %w", actor.ActorID, err)
	}

	plug, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sandbox: open plugin %s: %w", path, err)
	}
	symbol, err := plug.Lookup(pluginConstructorSymbol)
	if err != nil {
		return nil, fmt.Errorf("sandbox: lookup %s in %s: %w", pluginConstructorSymbol, path, err)
	}

	switch ctor := symbol.(type) {
	case actorapi.Constructor:
		return ctor, nil
	case *actorapi.Constructor:
		return *ctor, nil
	default:
		return nil, fmt.Errorf("sandbox: plugin symbol %s in %s is not an actorapi.Constructor", pluginConstructorSymbol, path)
	}
}
