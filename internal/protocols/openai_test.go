package protocols

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

func marshalBody(t *testing.T, body interface{}) map[string]json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &obj))
	return obj
}

func intPtr(v int) *int                          { return &v }
func floatPtr(v float64) *float64                { return &v }
func choicePtr(v llm.ToolChoice) *llm.ToolChoice { return &v }

// ============================================================================
// OpenAI Request Building Tests
// ============================================================================

// TestOpenAIEndpoints tests URL construction for both operations.
func TestOpenAIEndpoints(t *testing.T) {
	p := NewOpenAIProtocol()

	chat, err := p.Endpoint("https://api.openai.com/v1", llm.OperationChat)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", chat)

	models, err := p.Endpoint("https://api.openai.com/v1/", llm.OperationModels)
	require.NoError(t, err)
	assert.Equal(t, "https://api.openai.com/v1/models", models)
}

// TestOpenAIAuthHeaders tests the Bearer scheme and the Content-Type
// contract: auth headers must never include it.
func TestOpenAIAuthHeaders(t *testing.T) {
	p := NewOpenAIProtocol()
	headers := p.AuthHeaders(llm.ProviderConfig{APIKey: "sk-test"})

	got, ok := headers.Get("Authorization")
	require.True(t, ok)
	assert.Equal(t, "Bearer sk-test", got)

	_, ok = headers.Get("Content-Type")
	assert.False(t, ok)
}

// TestOpenAIBuildRequestBody tests the wire shape for a plain text
// conversation with sampling knobs.
func TestOpenAIBuildRequestBody(t *testing.T) {
	p := NewOpenAIProtocol()
	req := llm.ChatRequest{
		Model: "gpt-4o",
		Messages: []llm.Message{
			llm.NewSystemMessage("be terse"),
			llm.NewUserMessage("hi"),
		},
		MaxTokens:   intPtr(100),
		Temperature: floatPtr(0.5),
	}

	body, err := p.BuildRequestBody(req, true)
	require.NoError(t, err)
	obj := marshalBody(t, body)

	assert.JSONEq(t, `"gpt-4o"`, string(obj["model"]))
	assert.JSONEq(t, `true`, string(obj["stream"]))
	assert.JSONEq(t, `100`, string(obj["max_tokens"]))

	var messages []map[string]interface{}
	require.NoError(t, json.Unmarshal(obj["messages"], &messages))
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0]["role"])
	assert.Equal(t, "be terse", messages[0]["content"])
	assert.Equal(t, "user", messages[1]["role"])
}

// TestOpenAIBuildToolMessage tests that tool-role messages keep
// tool_call_id on the wire.
func TestOpenAIBuildToolMessage(t *testing.T) {
	p := NewOpenAIProtocol()
	req := llm.ChatRequest{
		Model: "gpt-4o",
		Messages: []llm.Message{
			llm.NewUserMessage("weather?"),
			llm.NewAssistantToolCallMessage([]llm.ToolCall{{
				ID:       "call_1",
				Type:     "function",
				Function: llm.FunctionCall{Name: "get_weather", Arguments: `{"city":"Beijing"}`},
			}}),
			llm.NewToolMessage("call_1", `{"temp":21}`),
		},
	}

	body, err := p.BuildRequestBody(req, false)
	require.NoError(t, err)
	obj := marshalBody(t, body)

	var messages []map[string]interface{}
	require.NoError(t, json.Unmarshal(obj["messages"], &messages))
	require.Len(t, messages, 3)

	asst := messages[1]
	calls, ok := asst["tool_calls"].([]interface{})
	require.True(t, ok)
	require.Len(t, calls, 1)

	toolMsg := messages[2]
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
}

// TestOpenAIBuildMultiModalMessage tests the content-blocks array form for
// image-bearing messages.
func TestOpenAIBuildMultiModalMessage(t *testing.T) {
	p := NewOpenAIProtocol()
	req := llm.ChatRequest{
		Model: "gpt-4o",
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: []llm.MessageBlock{
				llm.TextBlock("what is this?"),
				llm.ImageURLBlock("https://example.com/cat.png", "low"),
			},
		}},
	}

	body, err := p.BuildRequestBody(req, false)
	require.NoError(t, err)
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"image_url"`)
	assert.Contains(t, string(raw), `https://example.com/cat.png`)
}

// TestOpenAIToolChoiceVariants tests the tool_choice encodings.
func TestOpenAIToolChoiceVariants(t *testing.T) {
	tests := []struct {
		name   string
		choice llm.ToolChoice
		want   string
	}{
		{name: "auto", choice: llm.ToolChoiceAuto(), want: `"auto"`},
		{name: "none", choice: llm.ToolChoiceNone(), want: `"none"`},
		{name: "required", choice: llm.ToolChoiceRequired(), want: `"required"`},
		{name: "named", choice: llm.ToolChoiceNamed("get_weather"), want: `{"type":"function","function":{"name":"get_weather"}}`},
	}

	p := NewOpenAIProtocol()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := llm.ChatRequest{
				Model:      "gpt-4o",
				Messages:   []llm.Message{llm.NewUserMessage("hi")},
				Tools:      []llm.Tool{llm.NewTool("get_weather", "", []byte(`{"type":"object"}`))},
				ToolChoice: choicePtr(tt.choice),
			}
			body, err := p.BuildRequestBody(req, false)
			require.NoError(t, err)
			obj := marshalBody(t, body)
			assert.JSONEq(t, tt.want, string(obj["tool_choice"]))
		})
	}
}

// ============================================================================
// OpenAI Response Parsing Tests
// ============================================================================

// TestOpenAIParseResponse tests the unary fixture round-trip, including the
// convenience content projection and usage.
func TestOpenAIParseResponse(t *testing.T) {
	fixture := `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"created": 1700000000,
		"model": "gpt-4o",
		"system_fingerprint": "fp_abc",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "Hello."},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
	}`

	p := NewOpenAIProtocol()
	resp, err := p.ParseResponse([]byte(fixture))
	require.NoError(t, err)

	assert.Equal(t, "chatcmpl-1", resp.ID)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello.", resp.Choices[0].Message.TextContent())
	assert.Equal(t, llm.FinishReasonStop, resp.Choices[0].FinishReason)
	assert.Equal(t, "Hello.", resp.Content, "content projects choices[0]")
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Equal(t, "fp_abc", resp.SystemFingerprint)
}

// TestOpenAIParseResponseReasoningSynonyms tests the synonym scan on the
// message object.
func TestOpenAIParseResponseReasoningSynonyms(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "reasoning_content", key: "reasoning_content"},
		{name: "reasoning", key: "reasoning"},
		{name: "thought", key: "thought"},
		{name: "thinking", key: "thinking"},
	}

	p := NewOpenAIProtocol()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := `{
				"id": "chatcmpl-2",
				"choices": [{
					"index": 0,
					"message": {"role": "assistant", "content": "answer", "` + tt.key + `": "chain of thought"},
					"finish_reason": "stop"
				}]
			}`
			resp, err := p.ParseResponse([]byte(fixture))
			require.NoError(t, err)
			assert.Equal(t, "chain of thought", resp.ReasoningContent)
		})
	}
}

// TestOpenAIParseResponseNoChoices tests the empty-choices rejection.
func TestOpenAIParseResponseNoChoices(t *testing.T) {
	p := NewOpenAIProtocol()
	_, err := p.ParseResponse([]byte(`{"id":"x","choices":[]}`))
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrorParse, llmErr.Kind)
}

// TestOpenAIParseStreamResponse tests a delta chunk with tool-call
// fragment and a terminal [DONE] sentinel.
func TestOpenAIParseStreamResponse(t *testing.T) {
	p := NewOpenAIProtocol()

	chunk, err := p.ParseStreamResponse(llm.StreamFrame{Data: `{
		"id": "chatcmpl-3",
		"object": "chat.completion.chunk",
		"model": "gpt-4o",
		"choices": [{
			"index": 0,
			"delta": {"tool_calls": [{"index": 0, "id": "call_1", "function": {"name": "get_weather", "arguments": "{\"lo"}}]}
		}]
	}`})
	require.NoError(t, err)
	require.NotNil(t, chunk)
	require.Len(t, chunk.Choices[0].Delta.ToolCalls, 1)
	assert.Equal(t, `{"lo`, chunk.Choices[0].Delta.ToolCalls[0].Function.Arguments)

	done, err := p.ParseStreamResponse(llm.StreamFrame{Data: "[DONE]"})
	require.NoError(t, err)
	assert.Nil(t, done)
}

// TestOpenAIParseStreamReasoningDelta tests the delta synonym scan and the
// content projection fallback.
func TestOpenAIParseStreamReasoningDelta(t *testing.T) {
	p := NewOpenAIProtocol()
	chunk, err := p.ParseStreamResponse(llm.StreamFrame{Data: `{
		"id": "chatcmpl-4",
		"choices": [{"index": 0, "delta": {"reasoning_content": "hmm"}}]
	}`})
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "hmm", chunk.Choices[0].Delta.ReasoningContent)
	assert.Equal(t, "hmm", chunk.Content, "reasoning backs the content projection when content is empty")
	assert.Equal(t, "hmm", chunk.ReasoningContent)
}
