package llmclient

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/wasmind-go/wasmind/internal/assistant"
	"github.com/wasmind-go/wasmind/pkg/chatmsg"
)

// buildRequest converts an assembled RequestPayload into the OpenAI wire
// request (§6.2): system first, then history verbatim, then tool
// descriptors.
func buildRequest(model string, req assistant.RequestPayload) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	return openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Tools:    toOpenAITools(req.Tools),
	}
}

func toOpenAIMessage(m chatmsg.ChatMessage) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{Content: m.Content}
	switch m.Role {
	case chatmsg.RoleSystem:
		out.Role = openai.ChatMessageRoleSystem
	case chatmsg.RoleUser:
		out.Role = openai.ChatMessageRoleUser
	case chatmsg.RoleAssistant:
		out.Role = openai.ChatMessageRoleAssistant
		out.ReasoningContent = m.Reasoning
		for _, tc := range m.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
	case chatmsg.RoleTool:
		out.Role = openai.ChatMessageRoleTool
		out.ToolCallID = m.ToolCallID
		out.Name = m.Name
	}
	return out
}

func toOpenAITools(tools []chatmsg.ToolDescriptor) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		})
	}
	return out
}

// fromOpenAIMessage converts an OpenAI response message back into a
// ChatMessage without interpreting provider extensions (§6.2):
// reasoning_content is copied into Reasoning, and ProviderSpecificFields
// holds the JSON encoding of the whole response message. ThinkingBlocks is
// not set.
func fromOpenAIMessage(m openai.ChatCompletionMessage) chatmsg.ChatMessage {
	out := chatmsg.ChatMessage{
		Role:      chatmsg.RoleAssistant,
		Content:   m.Content,
		Reasoning: m.ReasoningContent,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, chatmsg.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if raw, err := json.Marshal(m); err == nil {
		out.ProviderSpecificFields = raw
	}
	return out
}
