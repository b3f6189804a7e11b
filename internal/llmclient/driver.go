// Package llmclient is the chat-completion driver (§6.2): the external
// collaborator that turns an assembled RequestPayload into an OpenAI-
// compatible completion call and reports the result back as an
// assistant.Response envelope. The wire format itself is treated as a black
// box - this package does not interpret reasoning_content, thinking_blocks,
// or provider_specific_fields. Responses carry reasoning_content and
// provider_specific_fields back; thinking_blocks are not captured (see
// fromOpenAIMessage).
package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/wasmind-go/wasmind/internal/actorapi"
	"github.com/wasmind-go/wasmind/internal/assistant"
	"github.com/wasmind-go/wasmind/internal/backoff"
	"github.com/wasmind-go/wasmind/pkg/busmsg"
	"github.com/wasmind-go/wasmind/pkg/chatmsg"
)

// maxCompletionAttempts bounds the retries complete makes against transient
// transport failures before it falls back to a synthetic error Response.
const maxCompletionAttempts = 3

// Config configures one Driver instance. A Driver is spawned alongside each
// agent's Assistant, sharing its scope.
type Config struct {
	APIKey  string
	BaseURL string // empty uses the OpenAI default; set for LiteLLM/compatible proxies
	Model   string
}

// Driver is a native actor that answers assistant.Request with
// assistant.Response (or a synthetic error Response on failure, §5
// Timeouts). It never blocks handle_message on the HTTP call - each request
// is handled in its own goroutine.
type Driver struct {
	scope  busmsg.Scope
	bus    actorapi.Publisher
	client *openai.Client
	model  string
	log    *zap.Logger
}

// NewConstructor returns an actorapi.Constructor bound to cfg, so the loader
// can spawn a Driver the same way it spawns any other native actor.
func NewConstructor(cfg Config) actorapi.Constructor {
	return func(ctx context.Context, scope busmsg.Scope, configText []byte, bus actorapi.Publisher) (actorapi.Actor, error) {
		resolved := cfg
		if len(configText) > 0 {
			var override Config
			if err := json.Unmarshal(configText, &override); err == nil {
				if override.APIKey != "" {
					resolved.APIKey = override.APIKey
				}
				if override.BaseURL != "" {
					resolved.BaseURL = override.BaseURL
				}
				if override.Model != "" {
					resolved.Model = override.Model
				}
			}
		}

		oaiCfg := openai.DefaultConfig(resolved.APIKey)
		if resolved.BaseURL != "" {
			oaiCfg.BaseURL = resolved.BaseURL
		}

		return &Driver{
			scope:  scope,
			bus:    bus,
			client: openai.NewClientWithConfig(oaiCfg),
			model:  resolved.Model,
			log:    zap.L().With(zap.String("component", "llmclient"), zap.Stringer("scope", scope)),
		}, nil
	}
}

func (d *Driver) HandleMessage(ctx context.Context, env busmsg.MessageEnvelope) error {
	if env.MessageType != busmsg.Request || env.FromScope != d.scope {
		return nil
	}
	var req assistant.RequestPayload
	if err := env.Decode(&req); err != nil {
		return fmt.Errorf("llmclient: decode Request: %w", err)
	}

	// Long-running work happens off the dispatch goroutine (§5): the bus
	// must not be blocked waiting on this HTTP call.
	go d.complete(req)
	return nil
}

func (d *Driver) Destructor(ctx context.Context) {}

func (d *Driver) complete(req assistant.RequestPayload) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	oaiReq := buildRequest(d.model, req)
	result, err := backoff.RetryWithBackoff(ctx, backoff.DefaultPolicy(), maxCompletionAttempts,
		func(attempt int) (openai.ChatCompletionResponse, error) {
			resp, err := d.client.CreateChatCompletion(ctx, oaiReq)
			if err != nil {
				return openai.ChatCompletionResponse{}, err
			}
			if len(resp.Choices) == 0 {
				return openai.ChatCompletionResponse{}, fmt.Errorf("llmclient: empty choices in completion response")
			}
			return resp, nil
		})
	if err != nil {
		if result.Attempts > 1 {
			d.log.Warn("chat completion retried before failing", zap.String("request_id", req.RequestID), zap.Int("attempts", result.Attempts))
		}
		d.reportError(ctx, req.RequestID, err)
		return
	}

	msg := fromOpenAIMessage(result.Value.Choices[0].Message)
	d.report(ctx, req.RequestID, msg)
}

// reportError synthesizes an error Response per §5: on timeout or transport
// failure, the driver broadcasts a normal content-bearing Response whose
// content describes the failure, so the assistant's history stays
// consistent - it is not a distinct error path in the envelope.
func (d *Driver) reportError(ctx context.Context, requestID string, cause error) {
	d.log.Warn("chat completion failed", zap.String("request_id", requestID), zap.Error(cause))
	d.report(ctx, requestID, chatmsg.Assistant(fmt.Sprintf("chat-completion request failed: %s", cause), nil))
}

func (d *Driver) report(ctx context.Context, requestID string, msg chatmsg.ChatMessage) {
	if err := d.bus.Broadcast(ctx, d.scope, busmsg.Response, assistant.ResponsePayload{
		OriginatingRequestID: requestID,
		Message:              msg,
	}); err != nil {
		d.log.Error("failed to broadcast Response", zap.Error(err))
	}
}
