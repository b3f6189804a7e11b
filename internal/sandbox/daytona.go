// Package sandbox provides the two ways a resolved actor whose code is not
// compiled into this binary gets turned into an actorapi.Constructor: a
// local native plugin.Open (plugin.go) and out-of-process Daytona-backed
// isolation (this file). Which one handles an actor is decided by the
// loader.SandboxLoader the caller passes in; manifests carry no field that
// selects it (§4.2, §6.3 host capability boundary).
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	apiclient "github.com/daytonaio/daytona/libs/api-client-go"
	toolbox "github.com/daytonaio/daytona/libs/toolbox-api-client-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wasmind-go/wasmind/internal/actorapi"
	"github.com/wasmind-go/wasmind/internal/hostcaps"
	"github.com/wasmind-go/wasmind/internal/loader"
	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

const defaultDaytonaAPIURL = "https://app.daytona.io/api"
const sourceHeader = "wasmind"

// Config configures the Daytona sandbox backend.
type Config struct {
	APIKey         string
	JWTToken       string
	OrganizationID string
	APIURL         string
	Target         string
	Snapshot       string
	Image          string
	SandboxClass   string
	ReuseSandbox   bool
	Timeout        time.Duration
}

func resolveConfig(cfg Config) (Config, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv("DAYTONA_API_KEY"))
	}
	if cfg.JWTToken == "" {
		cfg.JWTToken = strings.TrimSpace(os.Getenv("DAYTONA_JWT_TOKEN"))
	}
	if cfg.OrganizationID == "" {
		cfg.OrganizationID = strings.TrimSpace(os.Getenv("DAYTONA_ORGANIZATION_ID"))
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultDaytonaAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.APIKey == "" && cfg.JWTToken == "" {
		return cfg, errors.New("sandbox: daytona api key or jwt token is required")
	}
	return cfg, nil
}

// DaytonaSandbox implements loader.SandboxLoader by running the actor's
// built binary inside a Daytona sandbox and relaying envelopes to it over
// the toolbox exec API (§4.2 sandboxed actors run with restricted host
// access; panics there never cross the process boundary in the first
// place).
type DaytonaSandbox struct {
	cfg Config
	log *zap.Logger

	apiClient  *apiclient.APIClient
	httpClient *http.Client

	mu            sync.Mutex
	sandboxID     string
	sandboxTarget string
	toolboxClient *toolbox.APIClient
}

var _ loader.SandboxLoader = (*DaytonaSandbox)(nil)

func NewDaytonaSandbox(cfg Config, log *zap.Logger) (*DaytonaSandbox, error) {
	resolved, err := resolveConfig(cfg)
	if err != nil {
		return nil, err
	}

	scheme, host, basePath, err := parseBaseURL(resolved.APIURL)
	if err != nil {
		return nil, err
	}
	apiCfg := apiclient.NewConfiguration()
	apiCfg.Host = host
	apiCfg.Scheme = scheme
	apiCfg.HTTPClient = &http.Client{}
	apiCfg.AddDefaultHeader("X-Daytona-Source", sourceHeader)
	if resolved.JWTToken != "" && resolved.OrganizationID != "" {
		apiCfg.AddDefaultHeader("X-Daytona-Organization-ID", resolved.OrganizationID)
	}
	apiCfg.Servers = apiclient.ServerConfigurations{{URL: fmt.Sprintf("%s://%s%s", scheme, host, basePath)}}

	return &DaytonaSandbox{
		cfg:        resolved,
		log:        log,
		apiClient:  apiclient.NewAPIClient(apiCfg),
		httpClient: apiCfg.HTTPClient,
	}, nil
}

func (d *DaytonaSandbox) authContext(ctx context.Context) context.Context {
	token := d.cfg.APIKey
	if token == "" {
		token = d.cfg.JWTToken
	}
	return context.WithValue(ctx, apiclient.ContextAccessToken, token)
}

// Load builds a Constructor that prepares one sandbox workspace per actor
// scope and returns a handle which relays each HandleMessage/Destructor
// call to the resolved actor's wasmind-actor-runner binary as a fresh
// toolbox exec (§6.3: host capabilities are exposed to the sandboxed
// process through this same boundary, not native Go calls).
func (d *DaytonaSandbox) Load(actor *loader.ResolvedActor) (actorapi.Constructor, error) {
	binaryDir := actor.Source.Path
	if actor.Source.Subdir != "" {
		binaryDir = path.Join(binaryDir, actor.Source.Subdir)
	}

	return func(ctx context.Context, scope busmsg.Scope, configText []byte, bus actorapi.Publisher) (actorapi.Actor, error) {
		toolboxClient, runDir, err := d.ensureWorkspace(ctx, binaryDir)
		if err != nil {
			return nil, fmt.Errorf("sandbox: prepare actor %s: %w", actor.ActorID, err)
		}
		return &sandboxedActor{
			actorID:    actor.ActorID,
			scope:      scope,
			configText: configText,
			bus:        bus,
			client:     toolboxClient,
			runDir:     runDir,
			log:        d.log,
		}, nil
	}, nil
}

// runnerBinary and pluginFile are the build artifacts expected to already
// exist alongside an actor's fetched source: the shared wasmind-actor-runner
// binary and the actor's own compiled plugin. NativePluginLoader (plugin.go)
// does not use this layout; it takes one plugin path from BinaryPath.
const (
	runnerBinary = "wasmind-actor-runner"
	pluginFile   = "actor.so"
)

func (d *DaytonaSandbox) ensureWorkspace(ctx context.Context, binaryDir string) (*toolbox.APIClient, string, error) {
	d.mu.Lock()
	toolboxClient := d.toolboxClient
	reuse := toolboxClient != nil && d.cfg.ReuseSandbox
	d.mu.Unlock()

	if !reuse {
		sandboxID, target, err := d.createSandbox(ctx)
		if err != nil {
			return nil, "", err
		}
		toolboxClient, err = d.toolboxClientFor(ctx, sandboxID, target)
		if err != nil {
			return nil, "", err
		}

		d.mu.Lock()
		d.sandboxID, d.sandboxTarget, d.toolboxClient = sandboxID, target, toolboxClient
		d.mu.Unlock()
	}

	runDir := path.Join("/home/daytona", "wasmind-"+uuid.NewString())
	if err := d.createFolder(ctx, toolboxClient, runDir); err != nil {
		return nil, "", err
	}
	if err := d.uploadBuildArtifact(ctx, toolboxClient, binaryDir, runDir, runnerBinary); err != nil {
		return nil, "", err
	}
	if err := d.uploadBuildArtifact(ctx, toolboxClient, binaryDir, runDir, pluginFile); err != nil {
		return nil, "", err
	}
	if _, err := d.exec(ctx, toolboxClient, runDir, fmt.Sprintf("chmod +x %s", runnerBinary), d.cfg.Timeout); err != nil {
		return nil, "", err
	}
	return toolboxClient, runDir, nil
}

func (d *DaytonaSandbox) uploadBuildArtifact(ctx context.Context, client *toolbox.APIClient, binaryDir, runDir, name string) error {
	data, err := os.ReadFile(path.Join(binaryDir, name))
	if err != nil {
		return fmt.Errorf("read local build artifact %s: %w", name, err)
	}
	_, httpResp, err := client.FsAPI.UploadFile(ctx).Path(path.Join(runDir, name)).File(data).Execute()
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, formatToolboxError(err, httpResp))
	}
	return nil
}

func (d *DaytonaSandbox) createSandbox(ctx context.Context) (string, string, error) {
	createReq := apiclient.NewCreateSandbox()
	createReq.SetName(fmt.Sprintf("wasmind-%s", uuid.NewString()))
	if d.cfg.Target != "" {
		createReq.SetTarget(d.cfg.Target)
	}
	if d.cfg.Snapshot != "" {
		createReq.SetSnapshot(d.cfg.Snapshot)
	} else if d.cfg.Image != "" {
		createReq.SetBuildInfo(apiclient.CreateBuildInfo{DockerfileContent: fmt.Sprintf("FROM %s", d.cfg.Image)})
	}
	if d.cfg.SandboxClass != "" {
		createReq.SetClass(d.cfg.SandboxClass)
	}

	sandboxObj, httpResp, err := d.apiClient.SandboxAPI.CreateSandbox(d.authContext(ctx)).CreateSandbox(*createReq).Execute()
	if err != nil {
		return "", "", fmt.Errorf("create sandbox: %w", formatAPIError(err, httpResp))
	}
	return sandboxObj.GetId(), sandboxObj.GetTarget(), nil
}

func (d *DaytonaSandbox) toolboxClientFor(ctx context.Context, sandboxID, target string) (*toolbox.APIClient, error) {
	result, httpResp, err := d.apiClient.SandboxAPI.GetToolboxProxyUrl(d.authContext(ctx), sandboxID).Execute()
	if err != nil {
		return nil, fmt.Errorf("get toolbox proxy url: %w", formatAPIError(err, httpResp))
	}
	proxyURL := strings.TrimRight(result.GetUrl(), "/")
	toolboxURL := fmt.Sprintf("%s/%s", proxyURL, sandboxID)

	scheme, host, basePath, err := parseBaseURL(toolboxURL)
	if err != nil {
		return nil, err
	}
	cfg := toolbox.NewConfiguration()
	cfg.Host = host
	cfg.Scheme = scheme
	cfg.HTTPClient = d.httpClient
	token := d.cfg.APIKey
	if token == "" {
		token = d.cfg.JWTToken
	}
	cfg.AddDefaultHeader("Authorization", "Bearer "+token)
	cfg.AddDefaultHeader("X-Daytona-Source", sourceHeader)
	cfg.Servers = toolbox.ServerConfigurations{{URL: fmt.Sprintf("%s://%s%s", scheme, host, basePath)}}
	return toolbox.NewAPIClient(cfg), nil
}

func (d *DaytonaSandbox) createFolder(ctx context.Context, client *toolbox.APIClient, dir string) error {
	_, httpResp, err := client.FsAPI.CreateFolder(ctx).Path(dir).Mode("0755").Execute()
	if err != nil {
		return fmt.Errorf("create run dir %s: %w", dir, formatToolboxError(err, httpResp))
	}
	return nil
}

// exec runs one command inside runDir and returns trimmed stdout.
func (d *DaytonaSandbox) exec(ctx context.Context, client *toolbox.APIClient, runDir, command string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = d.cfg.Timeout
	}
	req := toolbox.NewExecuteRequest(command)
	req.SetCwd(runDir)
	req.SetTimeout(int32(timeout.Seconds()))

	resp, httpResp, err := client.ProcessAPI.ExecuteCommand(ctx).Request(*req).Execute()
	if err != nil {
		return "", fmt.Errorf("execute command: %w", formatToolboxError(err, httpResp))
	}
	exitCode := 0
	if resp.ExitCode != nil {
		exitCode = int(*resp.ExitCode)
	}
	out := strings.TrimSpace(resp.Result)
	if exitCode != 0 {
		return out, fmt.Errorf("command exited %d: %s", exitCode, out)
	}
	return out, nil
}

func parseBaseURL(raw string) (scheme, host, basePath string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	return u.Scheme, u.Host, u.Path, nil
}

func formatAPIError(err error, resp *http.Response) error {
	if resp == nil {
		return err
	}
	return fmt.Errorf("%w (http %d)", err, resp.StatusCode)
}

func formatToolboxError(err error, resp *http.Response) error {
	return formatAPIError(err, resp)
}

// sandboxedActor is the in-process Actor handle that proxies each call to
// the out-of-process wasmind-actor-runner via one toolbox exec per message
// (§4.2 three-operation contract: new/handle_message/destructor).
type sandboxedActor struct {
	actorID    string
	scope      busmsg.Scope
	configText []byte
	bus        actorapi.Publisher
	client     *toolbox.APIClient
	runDir     string
	log        *zap.Logger
}

func (a *sandboxedActor) HandleMessage(ctx context.Context, env busmsg.MessageEnvelope) error {
	envJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("sandbox: marshal envelope: %w", err)
	}
	if err := a.writeFile(ctx, "envelope.json", envJSON); err != nil {
		return err
	}
	if err := a.writeFile(ctx, "config.json", a.configText); err != nil {
		return err
	}
	if err := a.writeContext(ctx); err != nil {
		return err
	}
	command := fmt.Sprintf("./%s handle-message --plugin ./%s --actor %s --config-file config.json --envelope-file envelope.json --context-file context.json", runnerBinary, pluginFile, a.actorID)
	out, err := a.exec(ctx, command)
	if err != nil {
		return err
	}
	return a.replay(ctx, out)
}

func (a *sandboxedActor) Destructor(ctx context.Context) {
	if err := a.writeContext(ctx); err != nil {
		return
	}
	command := fmt.Sprintf("./%s destructor --plugin ./%s --actor %s --context-file context.json", runnerBinary, pluginFile, a.actorID)
	out, err := a.exec(ctx, command)
	if err != nil {
		return
	}
	_ = a.replay(ctx, out)
}

// writeContext precomputes the two read-only capability answers
// (agent.get_parent_scope, host_info.get_host_working_directory) a
// sandboxed actor cannot otherwise resolve without a live bus connection
// (§6.3, internal/hostcaps.Context).
func (a *sandboxedActor) writeContext(ctx context.Context) error {
	hcCtx := hostcaps.Context{WorkingDir: a.bus.HostWorkingDirectory()}
	if parent, ok := a.bus.ParentScope(a.scope); ok {
		hcCtx.ParentScope = &parent
	}
	data, err := json.Marshal(hcCtx)
	if err != nil {
		return fmt.Errorf("sandbox: marshal hostcaps context: %w", err)
	}
	return a.writeFile(ctx, "context.json", data)
}

// replay decodes the runner's JSON result and replays any recorded
// messaging.broadcast/agent.spawn_agent calls against the real bus
// (§6.3; see internal/hostcaps.Table.Replay for agent.spawn_agent's one
// accepted limitation).
func (a *sandboxedActor) replay(ctx context.Context, out string) error {
	var result struct {
		OK    bool            `json:"ok"`
		Calls []hostcaps.Call `json:"calls,omitempty"`
		Error string          `json:"error,omitempty"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return fmt.Errorf("sandbox: decode runner result: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("sandbox: %s: %s", a.actorID, result.Error)
	}
	table := hostcaps.NewTable(a.scope, a.bus, a.log)
	return table.Replay(ctx, result.Calls)
}

func (a *sandboxedActor) writeFile(ctx context.Context, name string, data []byte) error {
	_, httpResp, err := a.client.FsAPI.UploadFile(ctx).Path(path.Join(a.runDir, name)).File(data).Execute()
	if err != nil {
		return fmt.Errorf("sandbox: upload %s: %w", name, formatToolboxError(err, httpResp))
	}
	return nil
}

func (a *sandboxedActor) exec(ctx context.Context, command string) (string, error) {
	req := toolbox.NewExecuteRequest(command)
	req.SetCwd(a.runDir)
	resp, httpResp, err := a.client.ProcessAPI.ExecuteCommand(ctx).Request(*req).Execute()
	if err != nil {
		return "", fmt.Errorf("sandbox: exec %s: %w", a.actorID, formatToolboxError(err, httpResp))
	}
	exitCode := 0
	if resp.ExitCode != nil {
		exitCode = int(*resp.ExitCode)
	}
	out := strings.TrimSpace(resp.Result)
	if exitCode != 0 {
		if a.log != nil {
			a.log.Warn("sandboxed actor command failed", zap.String("actor_id", a.actorID), zap.Int("exit_code", exitCode))
		}
		return out, fmt.Errorf("sandbox: %s exited %d: %s", a.actorID, exitCode, out)
	}
	return out, nil
}
