package chatmsg

import (
	"time"

	"github.com/wasmind-go/wasmind/pkg/busmsg"
)

// WaitKind discriminates the WaitReason sum type.
type WaitKind string

const (
	WaitingForAllActorsReady    WaitKind = "waiting_for_all_actors_ready"
	WaitingForUserInput         WaitKind = "waiting_for_user_input"
	WaitingForSystemInput       WaitKind = "waiting_for_system_input"
	WaitingForAgentCoordination WaitKind = "waiting_for_agent_coordination"
	WaitingForTools             WaitKind = "waiting_for_tools"
	WaitingForLiteLLM           WaitKind = "waiting_for_lite_llm"
	CompactingConversation      WaitKind = "compacting_conversation"
)

// WaitReason narrows Status_Wait to why the assistant is idle. Only the
// fields relevant to Kind are populated; the rest are zero.
type WaitReason struct {
	Kind WaitKind

	// WaitingForSystemInput. ToolCallID identifies the tool call that
	// triggered the wait, if any (§4.3.5 "update.id == tool_call_id").
	RequiredScope       *busmsg.Scope
	InterruptibleByUser bool
	ToolCallID          string

	// WaitingForAgentCoordination. SuspendedTools holds the WaitingForTools
	// reason this coordination wait suspended, so a matching
	// ToolCallStatusUpdate{Done} can resume normal tool completion
	// (§4.3.6).
	OriginatingRequestID string
	CoordinatingToolName string
	TargetAgentScope     *busmsg.Scope
	UserCanInterrupt     bool
	SuspendedTools       *WaitReason

	// WaitingForTools. Keyed by tool_call_id; insertion order is recorded
	// separately in Order since Go maps do not preserve it, and the
	// Tool-message drain in §4.3.5 must replay it in original response
	// order, not completion order.
	ToolCalls map[string]*PendingToolCall
	Order     []string
}

func ReasonAllActorsReady() WaitReason { return WaitReason{Kind: WaitingForAllActorsReady} }
func ReasonUserInput() WaitReason      { return WaitReason{Kind: WaitingForUserInput} }
func ReasonLiteLLM() WaitReason        { return WaitReason{Kind: WaitingForLiteLLM} }
func ReasonCompacting() WaitReason     { return WaitReason{Kind: CompactingConversation} }

func ReasonSystemInput(requiredScope *busmsg.Scope, interruptible bool, toolCallID string) WaitReason {
	return WaitReason{Kind: WaitingForSystemInput, RequiredScope: requiredScope, InterruptibleByUser: interruptible, ToolCallID: toolCallID}
}

func ReasonAgentCoordination(requestID, toolName string, target *busmsg.Scope, userCanInterrupt bool, suspended *WaitReason) WaitReason {
	return WaitReason{
		Kind:                 WaitingForAgentCoordination,
		OriginatingRequestID: requestID,
		CoordinatingToolName: toolName,
		TargetAgentScope:     target,
		UserCanInterrupt:     userCanInterrupt,
		SuspendedTools:       suspended,
	}
}

// ReasonTools builds a WaitingForTools reason from tool calls in response
// order. Order is preserved independently of the map so draining can replay
// original order regardless of completion order (see S2).
func ReasonTools(requestID string, calls []ToolCall) WaitReason {
	m := make(map[string]*PendingToolCall, len(calls))
	order := make([]string, 0, len(calls))
	now := time.Now()
	for _, c := range calls {
		m[c.ID] = &PendingToolCall{Call: c, DispatchedAt: now}
		order = append(order, c.ID)
	}
	return WaitReason{Kind: WaitingForTools, OriginatingRequestID: requestID, ToolCalls: m, Order: order}
}

// AllResolved reports whether every tracked tool call has a result.
func (r WaitReason) AllResolved() bool {
	if r.Kind != WaitingForTools {
		return false
	}
	for _, id := range r.Order {
		if !r.ToolCalls[id].Resolved() {
			return false
		}
	}
	return true
}

// StatusKind discriminates the Status sum type.
type StatusKind string

const (
	StatusProcessing StatusKind = "processing"
	StatusWait       StatusKind = "wait"
	StatusDone       StatusKind = "done"
)

// AgentTaskResponse is the Ok payload of a Done status.
type AgentTaskResponse struct {
	Summary string `json:"summary"`
	Success bool   `json:"success"`
}

// Status is the assistant's externally-visible activity state.
type Status struct {
	Kind StatusKind

	// StatusProcessing.
	RequestID string

	// StatusWait.
	Reason WaitReason

	// StatusDone. Exactly one of Result/Err is set.
	Result *AgentTaskResponse
	Err    *string
}

func Processing(requestID string) Status {
	return Status{Kind: StatusProcessing, RequestID: requestID}
}

func Wait(reason WaitReason) Status {
	return Status{Kind: StatusWait, Reason: reason}
}

func DoneOk(result AgentTaskResponse) Status {
	return Status{Kind: StatusDone, Result: &result}
}

func DoneErr(reason string) Status {
	return Status{Kind: StatusDone, Err: &reason}
}

func (s Status) IsWaitingFor(kind WaitKind) bool {
	return s.Kind == StatusWait && s.Reason.Kind == kind
}

func (s Status) IsDone() bool {
	return s.Kind == StatusDone
}

// ToolCallResult is the outcome of one dispatched tool call, as reported back
// by a tool actor via ToolCallStatusUpdate. IsError distinguishes Ok from Err
// in the sum type described by the spec as Result<ToolCallResult,ToolCallResult>.
type ToolCallResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`

	// UICollapsed/UIExpanded let a tool actor offer two renderings of its
	// result: a short default line and an opt-in expanded view. Either may
	// be empty, in which case Content is used for both.
	UICollapsed string `json:"ui_collapsed,omitempty"`
	UIExpanded  string `json:"ui_expanded,omitempty"`
}

// Render implements §4.3.5's render(): Ok yields the content verbatim, Err is
// prefixed for the model to see.
func (r ToolCallResult) Render() string {
	if r.IsError {
		return "Error: " + r.Content
	}
	return r.Content
}

// PendingToolCall tracks a tool call the assistant has emitted and is
// awaiting a ToolCallResult for.
type PendingToolCall struct {
	Call         ToolCall
	DispatchedAt time.Time
	Result       *ToolCallResult // nil until resolved
}

func (p *PendingToolCall) Resolved() bool { return p != nil && p.Result != nil }
