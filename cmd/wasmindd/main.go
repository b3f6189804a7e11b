// Command wasmindd is the actor-orchestration host process: it loads
// wasmind.toml, resolves the declared actor dependency graph, wires the
// bus and the built-in native actors, and starts the configured starting
// actors (§6.4, §6.6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wasmind-go/wasmind/internal/assistant"
	"github.com/wasmind-go/wasmind/internal/bus"
	"github.com/wasmind-go/wasmind/internal/config"
	"github.com/wasmind-go/wasmind/internal/llmclient"
	"github.com/wasmind-go/wasmind/internal/loader"
	"github.com/wasmind-go/wasmind/internal/logging"
	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

const (
	assistantActorID = "wasmind:assistant"
	llmclientActorID = "wasmind:llmclient"
)

var configPath string

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wasmindd",
		Short:         "Actor-based orchestration runtime for LLM-driven agents",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "wasmind.toml", "path to the process config file")
	rootCmd.AddCommand(buildRunCmd(), buildCheckCmd(), buildActorsCmd())
	return rootCmd
}

func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Resolve the configured actors and run the host process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context())
		},
	}
}

func buildCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Resolve the configured actors and report readiness without starting them",
		RunE: func(cmd *cobra.Command, args []string) error {
			code := runCheck(cmd.Context())
			if code != ExitOK {
				os.Exit(code)
			}
			return nil
		},
	}
}

func buildActorsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "actors", Short: "Inspect the resolved actor graph"}
	cmd.AddCommand(buildActorsListCmd(), buildActorsBuildCmd())
	return cmd
}

func buildActorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every resolved actor, its source, and its config",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, _, err := resolveActors()
			if err != nil {
				return err
			}
			for name, actor := range resolved {
				fmt.Printf("%-24s %-28s %s\n", name, actor.ActorID, actor.Source.String())
			}
			return nil
		},
	}
}

func buildActorsBuildCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Pre-fetch every root actor source in parallel, warming the loader cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cacheDir := filepath.Join(os.TempDir(), "wasmind-loader-cache")
			if force {
				if err := os.RemoveAll(cacheDir); err != nil {
					return fmt.Errorf("actors build --force: clear cache: %w", err)
				}
			}
			fetcher := loader.NewFetcher(cacheDir)
			manifests := loader.NewFilesystemManifestLoader(fetcher)

			sources := make([]loader.Source, 0, len(cfg.Actors))
			for _, entry := range cfg.Actors {
				sources = append(sources, entry.Source)
			}
			if err := loader.PrefetchAll(cmd.Context(), manifests, sources, 4); err != nil {
				return fmt.Errorf("actors build: %w", err)
			}
			fmt.Printf("actors build: %d hits, %d misses\n", manifests.Hits(), manifests.Misses())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "clear the on-disk fetch cache before building")
	return cmd
}

// resolveActors loads wasmind.toml and runs the dependency resolver,
// returning the resolved set and the parsed config for downstream use.
func resolveActors() (map[string]*loader.ResolvedActor, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	cacheDir := filepath.Join(os.TempDir(), "wasmind-loader-cache")
	fetcher := loader.NewFetcher(cacheDir)
	manifests := loader.NewFilesystemManifestLoader(fetcher)
	resolver := loader.NewResolver(manifests)

	resolved, err := resolver.Resolve(cfg.LoaderInput())
	if err != nil {
		return nil, cfg, err
	}
	if err := loader.ValidateAll(resolved); err != nil {
		return nil, cfg, err
	}
	return resolved, cfg, nil
}

func runCheck(ctx context.Context) int {
	resolved, cfg, err := resolveActors()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitResolverFailure
	}
	if len(cfg.StartingActors) == 0 {
		fmt.Fprintln(os.Stderr, "check: no starting_actors configured")
		return ExitNoStartingActors
	}
	for _, name := range cfg.StartingActors {
		if _, ok := resolved[name]; !ok {
			fmt.Fprintf(os.Stderr, "check: starting actor %q did not resolve\n", name)
			return ExitResolverFailure
		}
	}
	fmt.Printf("check: %d actors resolved, %d starting actors ready\n", len(resolved), len(cfg.StartingActors))
	return ExitOK
}

func runHost(ctx context.Context) error {
	resolved, cfg, err := resolveActors()
	if err != nil {
		return fmt.Errorf("resolve actors: %w", err)
	}
	if len(cfg.StartingActors) == 0 {
		return fmt.Errorf("no starting_actors configured")
	}

	log := logging.MustNew(cfg.Logging)
	defer log.Sync()
	defer zap.ReplaceGlobals(log)()

	hostWD, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine host working directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := busmsg.NewScope()
	b := bus.New(root, hostWD, log)

	native := loader.NewNativeRegistry()
	registerNativeActors(native, apiKeyFromEnv())
	provider := loader.NewDescriptorProvider(resolved, native, nil)
	b.SetDescriptorProvider(provider)

	// starting_actors names root actors by their wasmind.toml logical name;
	// spawn_actor_set itself dispatches on actor_id, so translate here.
	actorIDs := make([]string, 0, len(cfg.StartingActors))
	for _, name := range cfg.StartingActors {
		ra, ok := resolved[name]
		if !ok {
			return fmt.Errorf("starting actor %q did not resolve", name)
		}
		actorIDs = append(actorIDs, ra.ActorID)
	}

	if _, err := b.SpawnActorSet(ctx, root, actorIDs, "root"); err != nil {
		return fmt.Errorf("spawn starting actors: %w", err)
	}

	log.Info("wasmindd started", zap.Int("resolved_actors", len(resolved)), zap.Strings("starting_actors", cfg.StartingActors))
	<-ctx.Done()
	return nil
}

// registerNativeActors wires the actor implementations compiled into this
// binary. Any resolved actor_id not registered here is handed to the
// sandbox loader instead (none configured by default: see
// loader.NewDescriptorProvider's nil sandbox argument above).
func registerNativeActors(reg *loader.NativeRegistry, apiKey string) {
	reg.Register(assistantActorID, assistant.New)
	reg.Register(llmclientActorID, llmclient.NewConstructor(llmclient.Config{APIKey: apiKey}))
}

func apiKeyFromEnv() string {
	return os.Getenv("WASMIND_LLM_API_KEY")
}
