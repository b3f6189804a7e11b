package busmsg

import (
	"encoding/json"
	"strings"
)

// MessageType names one of the fixed message shapes actors publish and
// subscribe to. Identifiers are stable dotted strings; the wire form carries
// the "wasmind.common." prefix (see TypeName), renaming any of these breaks
// every sandboxed actor built against the ABI.
type MessageType string

const (
	ActorReady       MessageType = "actors.ActorReady"
	Exit             MessageType = "actors.Exit"
	AllActorsReady   MessageType = "actors.AllActorsReady"
	AgentSpawned     MessageType = "actors.AgentSpawned"

	AddMessage              MessageType = "assistant.AddMessage"
	Request                 MessageType = "assistant.Request"
	Response                MessageType = "assistant.Response"
	StatusUpdate            MessageType = "assistant.StatusUpdate"
	RequestStatusUpdate     MessageType = "assistant.RequestStatusUpdate"
	InterruptAndForceStatus MessageType = "assistant.InterruptAndForceStatus"
	ChatStateUpdated        MessageType = "assistant.ChatStateUpdated"
	SystemPromptContribution MessageType = "assistant.SystemPromptContribution"
	CompactedConversation   MessageType = "assistant.CompactedConversation"

	// ToolCallsCancelled is additive (not one of the original stable
	// identifiers): it notifies tool actors that their in-flight calls were
	// abandoned by an InterruptAndForceStatus, so they can free resources
	// (see SPEC_FULL.md supplemented feature 3).
	ToolCallsCancelled MessageType = "assistant.ToolCallsCancelled"

	ToolsAvailable       MessageType = "tools.ToolsAvailable"
	ExecuteToolCall      MessageType = "tools.ExecuteToolCall"
	ToolCallStatusUpdate MessageType = "tools.ToolCallStatusUpdate"

	BaseUrlUpdate MessageType = "litellm.BaseUrlUpdate"
)

// wirePrefix is prepended to every MessageType in its encoded form (see
// MarshalText), matching the ABI the original runtime's sandboxed actors
// were compiled against.
const wirePrefix = "wasmind.common."

// TypeName returns the full wire identifier for a MessageType.
func (t MessageType) TypeName() string {
	return wirePrefix + string(t)
}

// MarshalText encodes the full wire identifier, so JSON envelopes carry the
// prefixed form.
func (t MessageType) MarshalText() ([]byte, error) {
	return []byte(t.TypeName()), nil
}

// UnmarshalText strips the wire prefix, so decoded values compare equal to
// the constants above.
func (t *MessageType) UnmarshalText(b []byte) error {
	*t = MessageType(strings.TrimPrefix(string(b), wirePrefix))
	return nil
}

// MessageEnvelope is the unit of transport on the bus. Payload is opaque to
// the bus itself - only the publisher and subscribers agree on its shape,
// keyed by MessageType. Envelopes are immutable once broadcast.
type MessageEnvelope struct {
	FromScope   Scope           `json:"from_scope"`
	MessageType MessageType     `json:"message_type"`
	Payload     json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and wraps it with the given origin scope and
// type. Marshal errors indicate a programmer error in the payload type and
// are returned rather than panicking.
func NewEnvelope(from Scope, msgType MessageType, payload any) (MessageEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return MessageEnvelope{}, err
	}
	return MessageEnvelope{FromScope: from, MessageType: msgType, Payload: raw}, nil
}

// Decode unmarshals the envelope payload into dst.
func (e MessageEnvelope) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}
