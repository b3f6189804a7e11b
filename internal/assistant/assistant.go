// Package assistant implements the per-agent conversation state machine
// (§4.3): aggregating user/system inputs, issuing chat-completion requests,
// dispatching tool calls, coordinating multi-tool completion, and handling
// suspension/resume.
package assistant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wasmind-go/wasmind/internal/actorapi"
	"github.com/wasmind-go/wasmind/internal/sysprompt"
	"github.com/wasmind-go/wasmind/pkg/busmsg"
	"github.com/wasmind-go/wasmind/pkg/chatmsg"
)

// Assistant is the actor running the conversation state machine for one
// agent. It is not safe for concurrent use - the bus guarantees per-actor
// serial delivery, so no internal locking is needed.
type Assistant struct {
	scope busmsg.Scope
	bus   actorapi.Publisher
	log   *zap.Logger

	pending       chatmsg.PendingMessage
	chatHistory   []chatmsg.ChatMessage
	availableTools []chatmsg.ToolDescriptor
	status        chatmsg.Status
	toolCallUpdates map[string]ToolCallStatusUpdatePayload
	contributions *sysprompt.Set
}

// New constructs an Assistant actor bound to scope. It satisfies
// actorapi.Constructor and is registered as a Native actor - the assistant
// is core runtime, not a sandboxed component.
func New(ctx context.Context, scope busmsg.Scope, _ []byte, bus actorapi.Publisher) (actorapi.Actor, error) {
	a := &Assistant{
		scope:           scope,
		bus:             bus,
		log:             zap.L().With(zap.String("component", "assistant"), zap.Stringer("scope", scope)),
		status:          chatmsg.Wait(chatmsg.ReasonAllActorsReady()),
		toolCallUpdates: make(map[string]ToolCallStatusUpdatePayload),
		contributions:   sysprompt.NewSet(),
	}
	return a, nil
}

// Status returns the assistant's current activity state, for tests and
// diagnostics.
func (a *Assistant) Status() chatmsg.Status { return a.status }

// ChatHistory returns a copy of the conversation so far.
func (a *Assistant) ChatHistory() []chatmsg.ChatMessage {
	out := make([]chatmsg.ChatMessage, len(a.chatHistory))
	copy(out, a.chatHistory)
	return out
}

func (a *Assistant) HandleMessage(ctx context.Context, env busmsg.MessageEnvelope) error {
	switch env.MessageType {
	case busmsg.ToolsAvailable:
		if env.FromScope != a.scope {
			return nil
		}
		var p ToolsAvailablePayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("assistant: decode ToolsAvailable: %w", err)
		}
		a.availableTools = append(a.availableTools, p.Tools...)
		return a.broadcastChatStateUpdated(ctx)

	case busmsg.SystemPromptContribution:
		var p SystemPromptContributionPayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("assistant: decode SystemPromptContribution: %w", err)
		}
		if p.Agent != a.scope {
			return nil
		}
		a.contributions.Upsert(sysprompt.Contribution{
			Key:             p.Key,
			Section:         sysprompt.Section(p.Section),
			CustomName:      p.CustomName,
			Priority:        p.Priority,
			Content:         p.Content,
			Data:            p.Data,
			DefaultTemplate: p.DefaultTemplate,
		})
		return a.broadcastChatStateUpdated(ctx)

	case busmsg.AddMessage:
		var p AddMessagePayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("assistant: decode AddMessage: %w", err)
		}
		if p.Agent != a.scope {
			return nil
		}
		return a.handleAddMessage(ctx, p.Message, env.FromScope)

	case busmsg.ToolCallStatusUpdate:
		if env.FromScope != a.scope {
			return nil
		}
		var p ToolCallStatusUpdatePayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("assistant: decode ToolCallStatusUpdate: %w", err)
		}
		return a.handleToolCallStatusUpdate(ctx, p)

	case busmsg.RequestStatusUpdate:
		if env.FromScope != a.scope {
			return nil
		}
		var p RequestStatusUpdatePayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("assistant: decode RequestStatusUpdate: %w", err)
		}
		return a.handleRequestStatusUpdate(ctx, p)

	case busmsg.InterruptAndForceStatus:
		if env.FromScope != a.scope {
			return nil
		}
		var p InterruptAndForceStatusPayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("assistant: decode InterruptAndForceStatus: %w", err)
		}
		return a.forceStatus(ctx, p.NewStatus)

	case busmsg.Response:
		if env.FromScope != a.scope {
			return nil
		}
		var p ResponsePayload
		if err := env.Decode(&p); err != nil {
			return fmt.Errorf("assistant: decode Response: %w", err)
		}
		return a.handleResponse(ctx, p)

	case busmsg.AllActorsReady:
		if a.status.IsWaitingFor(chatmsg.WaitingForAllActorsReady) {
			a.status = chatmsg.Wait(chatmsg.ReasonUserInput())
			return a.broadcastChatStateUpdated(ctx)
		}
		return nil

	default:
		// Unknown message type: ignored (§7 taxonomy).
		return nil
	}
}

func (a *Assistant) Destructor(ctx context.Context) {
	a.log.Debug("assistant destructed")
}

// handleAddMessage implements §4.3.4.
func (a *Assistant) handleAddMessage(ctx context.Context, msg chatmsg.ChatMessage, fromScope busmsg.Scope) error {
	switch msg.Role {
	case chatmsg.RoleSystem:
		a.pending.AddSystem(msg.Content)
		if a.status.IsWaitingFor(chatmsg.WaitingForSystemInput) {
			rs := a.status.Reason.RequiredScope
			if rs == nil || *rs == fromScope {
				if err := a.submit(ctx, false); err != nil {
					return err
				}
			}
		}
	case chatmsg.RoleUser:
		a.pending.SetUser(msg.Content)
		if a.status.IsWaitingFor(chatmsg.WaitingForUserInput) || a.status.IsWaitingFor(chatmsg.WaitingForSystemInput) {
			if err := a.submit(ctx, false); err != nil {
				return err
			}
		}
	default:
		// Assistant/Tool messages are ignored at this entry point.
		return nil
	}
	return a.broadcastChatStateUpdated(ctx)
}

// handleToolCallStatusUpdate implements §4.3.5.
func (a *Assistant) handleToolCallStatusUpdate(ctx context.Context, p ToolCallStatusUpdatePayload) error {
	a.toolCallUpdates[p.ToolCallID] = p

	if a.status.Kind != chatmsg.StatusWait {
		return a.broadcastChatStateUpdated(ctx)
	}

	switch a.status.Reason.Kind {
	case chatmsg.WaitingForTools:
		if !p.Done || p.Result == nil {
			return a.broadcastChatStateUpdated(ctx)
		}
		reason := a.status.Reason
		if _, tracked := reason.ToolCalls[p.ToolCallID]; !tracked {
			return a.broadcastChatStateUpdated(ctx)
		}
		return a.resolveToolCall(ctx, &reason, p)

	case chatmsg.WaitingForAgentCoordination:
		reason := a.status.Reason
		if reason.SuspendedTools == nil {
			return a.broadcastChatStateUpdated(ctx)
		}
		if _, tracked := reason.SuspendedTools.ToolCalls[p.ToolCallID]; !tracked || !p.Done || p.Result == nil {
			return a.broadcastChatStateUpdated(ctx)
		}
		// Resume the suspended WaitingForTools state, then resolve as normal.
		suspended := *reason.SuspendedTools
		a.status = chatmsg.Wait(suspended)
		return a.resolveToolCall(ctx, &suspended, p)

	case chatmsg.WaitingForSystemInput:
		reason := a.status.Reason
		if reason.ToolCallID != p.ToolCallID || !p.Done || p.Result == nil {
			return a.broadcastChatStateUpdated(ctx)
		}
		name := p.ToolName
		if name == "" {
			name = "system_tool"
		}
		a.chatHistory = append(a.chatHistory, chatmsg.Tool(p.ToolCallID, name, p.Result.Render()))
		if err := a.submit(ctx, true); err != nil {
			return err
		}
		return a.broadcastChatStateUpdated(ctx)

	default:
		return a.broadcastChatStateUpdated(ctx)
	}
}

// resolveToolCall stores a result on the matching pending call and, once
// every tracked call has resolved, drains Tool messages in original
// response order (never arrival order, see S2) and issues a new request.
func (a *Assistant) resolveToolCall(ctx context.Context, reason *chatmsg.WaitReason, p ToolCallStatusUpdatePayload) error {
	reason.ToolCalls[p.ToolCallID].Result = p.Result
	a.status = chatmsg.Wait(*reason)

	if !reason.AllResolved() {
		return a.broadcastChatStateUpdated(ctx)
	}

	for _, id := range reason.Order {
		pending := reason.ToolCalls[id]
		a.chatHistory = append(a.chatHistory, chatmsg.Tool(id, pending.Call.Name, pending.Result.Render()))
	}
	a.chatHistory = append(a.chatHistory, a.pending.Drain()...)

	return a.issueRequest(ctx)
}

// handleRequestStatusUpdate implements §4.3.6: accepted only when the
// caller's tool_call_id matches an id currently in WaitingForTools.
func (a *Assistant) handleRequestStatusUpdate(ctx context.Context, p RequestStatusUpdatePayload) error {
	if !a.status.IsWaitingFor(chatmsg.WaitingForTools) {
		return nil
	}
	current := a.status.Reason
	if _, ok := current.ToolCalls[p.ToolCallID]; !ok {
		return nil
	}
	newStatus := p.NewStatus
	if newStatus.IsWaitingFor(chatmsg.WaitingForAgentCoordination) && newStatus.Reason.SuspendedTools == nil {
		newStatus.Reason.SuspendedTools = &current
	}
	a.status = newStatus
	return a.broadcastChatStateUpdated(ctx)
}

// forceStatus implements §4.3.9: unconditional status replacement. If a
// WaitingForTools state is abandoned, notify tool actors so they can free
// resources (supplemented feature 3).
func (a *Assistant) forceStatus(ctx context.Context, newStatus chatmsg.Status) error {
	prev := a.status
	a.status = newStatus

	if prev.Kind == chatmsg.StatusWait && prev.Reason.Kind == chatmsg.WaitingForTools {
		var unresolved []string
		for _, id := range prev.Reason.Order {
			if !prev.Reason.ToolCalls[id].Resolved() {
				unresolved = append(unresolved, id)
			}
		}
		if len(unresolved) > 0 {
			if err := a.bus.Broadcast(ctx, a.scope, busmsg.ToolCallsCancelled, ToolCallsCancelledPayload{ToolCallIDs: unresolved}); err != nil {
				a.log.Warn("failed to broadcast ToolCallsCancelled", zap.Error(err))
			}
		}
	}

	if newStatus.Kind == chatmsg.StatusDone {
		a.bus.MarkScopeClosed(a.scope)
	}

	return a.broadcastChatStateUpdated(ctx)
}

// handleResponse implements §4.3.7. A stale response (originating_request_id
// mismatch) is dropped silently (§8 boundary behavior).
func (a *Assistant) handleResponse(ctx context.Context, p ResponsePayload) error {
	if a.status.Kind != chatmsg.StatusProcessing || a.status.RequestID != p.OriginatingRequestID {
		return nil
	}

	a.chatHistory = append(a.chatHistory, p.Message)

	if p.Message.HasToolCalls() {
		for _, tc := range p.Message.ToolCalls {
			if err := a.bus.Broadcast(ctx, a.scope, busmsg.ExecuteToolCall, ExecuteToolCallPayload{
				ToolCall:             tc,
				OriginatingRequestID: p.OriginatingRequestID,
			}); err != nil {
				return fmt.Errorf("assistant: broadcast ExecuteToolCall: %w", err)
			}
		}
		a.status = chatmsg.Wait(chatmsg.ReasonTools(p.OriginatingRequestID, p.Message.ToolCalls))
	} else {
		a.status = chatmsg.Wait(chatmsg.ReasonUserInput())
	}

	return a.broadcastChatStateUpdated(ctx)
}

// submit implements §4.3.8. No-op when nothing is buffered and allowEmpty
// is false.
func (a *Assistant) submit(ctx context.Context, allowEmpty bool) error {
	if a.pending.IsEmpty() && !allowEmpty {
		return nil
	}
	a.chatHistory = append(a.chatHistory, a.pending.Drain()...)
	return a.issueRequest(ctx)
}

// issueRequest computes the system prompt, allocates a fresh request id,
// broadcasts Request, and transitions to Processing.
func (a *Assistant) issueRequest(ctx context.Context) error {
	system, err := a.contributions.Assemble()
	if err != nil {
		return fmt.Errorf("assistant: assemble system prompt: %w", err)
	}

	requestID := uuid.NewString()
	req := RequestPayload{
		RequestID: requestID,
		System:    system,
		Tools:     a.availableTools,
		Messages:  a.chatHistory,
	}
	if err := a.bus.Broadcast(ctx, a.scope, busmsg.Request, req); err != nil {
		return fmt.Errorf("assistant: broadcast Request: %w", err)
	}

	a.status = chatmsg.Processing(requestID)
	return a.broadcastChatStateUpdated(ctx)
}

func (a *Assistant) broadcastChatStateUpdated(ctx context.Context) error {
	return a.bus.Broadcast(ctx, a.scope, busmsg.ChatStateUpdated, ChatStateUpdatedPayload{
		Status:  a.status,
		History: a.chatHistory,
	})
}
