package assistant

import (
	"github.com/wasmind-go/wasmind/pkg/busmsg"
	"github.com/wasmind-go/wasmind/pkg/chatmsg"
)

// AddMessagePayload is the body of busmsg.AddMessage. Agent names which
// assistant the message targets - the handler ignores envelopes where
// Agent != its own scope.
type AddMessagePayload struct {
	Agent   busmsg.Scope      `json:"agent"`
	Message chatmsg.ChatMessage `json:"message"`
}

// ToolsAvailablePayload is the body of busmsg.ToolsAvailable, broadcast by a
// tool actor in the assistant's own scope.
type ToolsAvailablePayload struct {
	Tools []chatmsg.ToolDescriptor `json:"tools"`
}

// SystemPromptContributionPayload is the body of
// busmsg.SystemPromptContribution.
type SystemPromptContributionPayload struct {
	Agent           busmsg.Scope `json:"agent"`
	Key             string       `json:"key"`
	Section         int          `json:"section"`
	CustomName      string       `json:"custom_name,omitempty"`
	Priority        int          `json:"priority"`
	Content         string       `json:"content,omitempty"`
	Data            any          `json:"data,omitempty"`
	DefaultTemplate string       `json:"default_template,omitempty"`
}

// ToolCallStatusUpdatePayload is the body of busmsg.ToolCallStatusUpdate.
type ToolCallStatusUpdatePayload struct {
	ToolCallID string               `json:"tool_call_id"`
	ToolName   string               `json:"tool_name,omitempty"`
	Done       bool                 `json:"done"`
	Result     *chatmsg.ToolCallResult `json:"result,omitempty"`
}

// RequestStatusUpdatePayload is the body of busmsg.RequestStatusUpdate:
// a conditional status change, accepted only while ToolCallID names an id
// currently tracked in WaitingForTools (§4.3.6).
type RequestStatusUpdatePayload struct {
	ToolCallID string         `json:"tool_call_id"`
	NewStatus  chatmsg.Status `json:"new_status"`
}

// InterruptAndForceStatusPayload is the body of
// busmsg.InterruptAndForceStatus: an unconditional status change.
type InterruptAndForceStatusPayload struct {
	NewStatus chatmsg.Status `json:"new_status"`
}

// ResponsePayload is the body of busmsg.Response, produced by the
// chat-completion driver. A transport timeout or permanent failure is
// represented as a normal content-bearing Assistant message describing the
// failure (§5 Timeouts) - there is no separate error field.
type ResponsePayload struct {
	OriginatingRequestID string            `json:"originating_request_id"`
	Message              chatmsg.ChatMessage `json:"message"`
}

// ExecuteToolCallPayload is the body of busmsg.ExecuteToolCall, broadcast by
// the assistant for each tool_call in a tool-bearing Response.
type ExecuteToolCallPayload struct {
	ToolCall             chatmsg.ToolCall `json:"tool_call"`
	OriginatingRequestID string           `json:"originating_request_id"`
}

// ToolCallsCancelledPayload is broadcast when InterruptAndForceStatus
// cancels a WaitingForTools status, so tool actors holding resources for
// those calls can free them (SPEC_FULL.md supplemented feature 3; additive,
// not one of the §6.1 stable identifiers).
type ToolCallsCancelledPayload struct {
	ToolCallIDs []string `json:"tool_call_ids"`
}

// RequestPayload is the body of busmsg.Request: the assembled chat-
// completion request the driver (internal/llmclient) should issue.
type RequestPayload struct {
	RequestID string                  `json:"request_id"`
	System    string                  `json:"system"`
	Tools     []chatmsg.ToolDescriptor `json:"tools"`
	Messages  []chatmsg.ChatMessage   `json:"messages"`
}

// ChatStateUpdatedPayload is broadcast whenever chat_history, available
// tools, or the rendered system prompt changes (§4.3.3, supplemented
// feature 1).
type ChatStateUpdatedPayload struct {
	Status  chatmsg.Status        `json:"status"`
	History []chatmsg.ChatMessage `json:"history"`
}
