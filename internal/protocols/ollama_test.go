package protocols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// TestOllamaEndpoints tests the daemon's chat and tags paths.
func TestOllamaEndpoints(t *testing.T) {
	p := NewOllamaProtocol()

	chat, err := p.Endpoint("http://localhost:11434", llm.OperationChat)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/api/chat", chat)

	models, err := p.Endpoint("http://localhost:11434", llm.OperationModels)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/api/tags", models)
}

// TestOllamaNoAuthHeaders tests that a local daemon gets no credentials.
func TestOllamaNoAuthHeaders(t *testing.T) {
	p := NewOllamaProtocol()
	assert.Empty(t, p.AuthHeaders(llm.ProviderConfig{APIKey: "ignored"}))
}

// TestOllamaBuildRequestBody tests options nesting and inline images.
func TestOllamaBuildRequestBody(t *testing.T) {
	p := NewOllamaProtocol()
	temp := 0.7
	maxTokens := 128

	body, err := p.BuildRequestBody(llm.ChatRequest{
		Model: "llama3.2",
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: []llm.MessageBlock{
				llm.TextBlock("what is this?"),
				llm.ImageBase64Block("image/png", "aGVsbG8="),
			},
		}},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}, true)
	require.NoError(t, err)

	wire := body.(ollamaRequest)
	assert.Equal(t, "llama3.2", wire.Model)
	assert.True(t, wire.Stream)
	require.NotNil(t, wire.Options)
	assert.Equal(t, 128, *wire.Options.NumPredict)
	require.Len(t, wire.Messages, 1)
	assert.Equal(t, "what is this?", wire.Messages[0].Content)
	require.Len(t, wire.Messages[0].Images, 1)
	assert.Equal(t, "aGVsbG8=", wire.Messages[0].Images[0])
}

// TestOllamaRejectsRemoteImages tests that URL images are refused rather
// than silently dropped.
func TestOllamaRejectsRemoteImages(t *testing.T) {
	p := NewOllamaProtocol()
	_, err := p.BuildRequestBody(llm.ChatRequest{
		Model: "llava",
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: []llm.MessageBlock{llm.ImageURLBlock("https://example.com/x.png", "")},
		}},
	}, false)

	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrorInvalidRequest, llmErr.Kind)
}

// TestOllamaParseStreamResponse tests NDJSON chunks: mid-stream lines carry
// deltas, the done:true line carries finish and usage.
func TestOllamaParseStreamResponse(t *testing.T) {
	p := NewOllamaProtocol()

	mid, err := p.ParseStreamResponse(llm.StreamFrame{Data: `{"model":"llama3.2","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"Hel"},"done":false}`})
	require.NoError(t, err)
	require.NotNil(t, mid)
	assert.Equal(t, "Hel", mid.Content)
	assert.Nil(t, mid.Choices[0].FinishReason)
	assert.Nil(t, mid.Usage)

	last, err := p.ParseStreamResponse(llm.StreamFrame{Data: `{"model":"llama3.2","created_at":"2024-01-01T00:00:05Z","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":2}`})
	require.NoError(t, err)
	require.NotNil(t, last)
	require.NotNil(t, last.Choices[0].FinishReason)
	assert.Equal(t, llm.FinishReasonStop, *last.Choices[0].FinishReason)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 5, last.Usage.TotalTokens)
}

// TestOllamaParseResponse tests the unary path, including whole tool calls.
func TestOllamaParseResponse(t *testing.T) {
	p := NewOllamaProtocol()
	fixture := `{
		"model": "llama3.2",
		"created_at": "2024-01-01T00:00:00Z",
		"message": {
			"role": "assistant",
			"content": "",
			"tool_calls": [{"function": {"name": "get_weather", "arguments": {"city": "Beijing"}}}]
		},
		"done": true,
		"done_reason": "stop",
		"prompt_eval_count": 7,
		"eval_count": 4
	}`

	resp, err := p.ParseResponse([]byte(fixture))
	require.NoError(t, err)

	require.Len(t, resp.Choices, 1)
	require.Len(t, resp.Choices[0].Message.ToolCalls, 1)
	call := resp.Choices[0].Message.ToolCalls[0]
	assert.Equal(t, "get_weather", call.Function.Name)
	assert.JSONEq(t, `{"city":"Beijing"}`, call.Function.Arguments)
	assert.Equal(t, llm.FinishReasonToolCalls, resp.Choices[0].FinishReason,
		"a stop with tool calls present normalizes to tool_calls")
	assert.Equal(t, 11, resp.Usage.TotalTokens)
}

// TestOllamaParseModelsResponse tests the /api/tags listing shape.
func TestOllamaParseModelsResponse(t *testing.T) {
	p := NewOllamaProtocol()
	names, err := p.ParseModelsResponse([]byte(`{"models":[{"name":"llama3.2:latest"},{"name":"qwen2.5:7b"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:latest", "qwen2.5:7b"}, names)
}
