package llmclient

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/wasmind-go/wasmind/internal/assistant"
	"github.com/wasmind-go/wasmind/pkg/chatmsg"
)

func TestBuildRequestOrdersSystemFirst(t *testing.T) {
	req := assistant.RequestPayload{
		System: "be helpful",
		Messages: []chatmsg.ChatMessage{
			chatmsg.User("hi"),
		},
	}
	out := buildRequest("gpt-4o", req)
	require.Len(t, out.Messages, 2)
	require.Equal(t, openai.ChatMessageRoleSystem, out.Messages[0].Role)
	require.Equal(t, "be helpful", out.Messages[0].Content)
	require.Equal(t, openai.ChatMessageRoleUser, out.Messages[1].Role)
}

func TestToOpenAIMessageRoundTripsToolCalls(t *testing.T) {
	msg := chatmsg.Assistant("", []chatmsg.ToolCall{
		{ID: "t1", Name: "read_file", Arguments: `{"path":"a.txt"}`},
	})
	out := toOpenAIMessage(msg)
	require.Len(t, out.ToolCalls, 1)
	require.Equal(t, "t1", out.ToolCalls[0].ID)
	require.Equal(t, "read_file", out.ToolCalls[0].Function.Name)
}

func TestFromOpenAIMessagePreservesReasoning(t *testing.T) {
	in := openai.ChatCompletionMessage{
		Role:             openai.ChatMessageRoleAssistant,
		Content:          "the answer is 4",
		ReasoningContent: "2+2=4",
	}
	out := fromOpenAIMessage(in)
	require.Equal(t, "the answer is 4", out.Content)
	require.Equal(t, "2+2=4", out.Reasoning)
	require.NotEmpty(t, out.ProviderSpecificFields)
}

func TestToOpenAIToolsSkipsEmpty(t *testing.T) {
	require.Nil(t, toOpenAITools(nil))
	out := toOpenAITools([]chatmsg.ToolDescriptor{{Name: "x", Description: "y"}})
	require.Len(t, out, 1)
	require.Equal(t, "x", out[0].Function.Name)
}
