// Package chatmsg defines the wire-level conversation types shared between
// the assistant state machine and the chat-completion driver: chat messages,
// tool calls, and their JSON encodings.
package chatmsg

import "encoding/json"

// Role identifies which side of the conversation a ChatMessage represents.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request produced by the LLM naming a function and
// JSON-string arguments. Ids are unique within one assistant response.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-string, opaque to the core
}

// ThinkingBlock is a provider-specific reasoning block round-tripped verbatim.
type ThinkingBlock struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ChatMessage is a sum type over the four conversation roles. Exactly one of
// the role-specific fields is populated; Role discriminates which.
//
// Tool-role messages must appear after an Assistant message that references
// the same ToolCallID - the assistant state machine enforces this ordering,
// it is not validated here.
type ChatMessage struct {
	Role Role `json:"role"`

	// System / User / Assistant text content. Empty for pure tool-call
	// assistant messages.
	Content string `json:"content,omitempty"`

	// Assistant-only.
	ToolCalls              []ToolCall      `json:"tool_calls,omitempty"`
	Reasoning              string          `json:"reasoning,omitempty"`
	ThinkingBlocks         []ThinkingBlock `json:"thinking_blocks,omitempty"`
	ProviderSpecificFields json.RawMessage `json:"provider_specific_fields,omitempty"`

	// Tool-only.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// System builds a System ChatMessage.
func System(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// User builds a User ChatMessage.
func User(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// Assistant builds an Assistant ChatMessage carrying optional tool calls.
func Assistant(content string, toolCalls []ToolCall) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, ToolCalls: toolCalls}
}

// Tool builds a Tool-role ChatMessage referencing the originating tool call.
func Tool(toolCallID, name, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, ToolCallID: toolCallID, Name: name, Content: content}
}

// HasToolCalls reports whether an Assistant message carries tool calls.
func (m ChatMessage) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// ToolDescriptor is a function the model may call, as advertised by a tool
// actor's ToolsAvailable broadcast.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}
