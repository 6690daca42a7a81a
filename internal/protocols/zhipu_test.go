package protocols

import (
	"context"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// TestZhipuFramingSelection tests that the protocol asks for single-newline
// SSE framing.
func TestZhipuFramingSelection(t *testing.T) {
	p := NewZhipuProtocol()
	assert.Equal(t, FrameSplitterSSESingleNewline, p.FrameSplitter())
	assert.Equal(t, FrameSplitterSSEDoubleNewline, SplitterFor(NewOpenAIProtocol()))
	assert.Equal(t, FrameSplitterSSESingleNewline, SplitterFor(p))
}

// TestZhipuSingleNewlineStream tests scenario S6 end to end through the
// framing and the per-stream parser: the single-newline byte stream yields
// exactly two normalized chunks spelling "Hello".
func TestZhipuSingleNewlineStream(t *testing.T) {
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n" +
		"data: [DONE]\n"

	p := NewZhipuProtocol()
	parser := p.NewStreamParser()

	var chunks []*llm.StreamingResponse
	for frame := range Split(context.Background(), p.FrameSplitter(), io.NopCloser(strings.NewReader(input))) {
		out, err := parser.Parse(frame)
		require.NoError(t, err)
		chunks = append(chunks, out...)
	}
	chunks = append(chunks, parser.Finish()...)

	require.Len(t, chunks, 2)
	assert.Equal(t, "He", chunks[0].Content)
	assert.Equal(t, "llo", chunks[1].Content)
}

// TestZhipuInlineThinkingStream tests the ###Thinking/###Response split
// across arbitrary chunk boundaries: markers are stripped, reasoning and
// content land in their own fields.
func TestZhipuInlineThinkingStream(t *testing.T) {
	fragments := []string{"###Thi", "nking\nab", "c\n###Resp", "onse\nx", "yz"}

	p := NewZhipuProtocol()
	parser := p.NewStreamParser()

	var reasoning, content string
	for _, fragment := range fragments {
		data := `{"id":"glm-3","choices":[{"index":0,"delta":{"content":` + strconv.Quote(fragment) + `}}]}`
		out, err := parser.Parse(llm.StreamFrame{Data: data})
		require.NoError(t, err)
		for _, c := range out {
			reasoning += c.Choices[0].Delta.ReasoningContent
			content += c.Choices[0].Delta.Content
		}
	}

	assert.Equal(t, "abc", reasoning)
	assert.Equal(t, "xyz", content)
}

// TestZhipuUnaryInlineThinking tests the marker split on a unary response.
func TestZhipuUnaryInlineThinking(t *testing.T) {
	fixture := `{
		"id": "glm-1",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "###Thinking\nabc\n###Response\nxyz"},
			"finish_reason": "stop"
		}]
	}`

	p := NewZhipuProtocol()
	resp, err := p.ParseResponse([]byte(fixture))
	require.NoError(t, err)

	assert.Equal(t, "abc", resp.ReasoningContent)
	assert.Equal(t, "xyz", resp.Content)
	assert.Equal(t, "xyz", resp.Choices[0].Message.TextContent())
}

// TestZhipuToolAccumulationInStream tests that the per-stream parser holds
// tool fragments until the finish signal.
func TestZhipuToolAccumulationInStream(t *testing.T) {
	frames := []string{
		`{"id":"glm-2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":"{\"ci"}}]}}]}`,
		`{"id":"glm-2","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ty\":\"Beijing\"}"}}]}}]}`,
		`{"id":"glm-2","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	}

	p := NewZhipuProtocol()
	parser := p.NewStreamParser()

	var emitted []*llm.StreamingResponse
	for _, data := range frames {
		out, err := parser.Parse(llm.StreamFrame{Data: data})
		require.NoError(t, err)
		emitted = append(emitted, out...)
	}
	emitted = append(emitted, parser.Finish()...)

	var withCalls []*llm.StreamingResponse
	for _, c := range emitted {
		if len(c.Choices) > 0 && len(c.Choices[0].Delta.ToolCalls) > 0 {
			withCalls = append(withCalls, c)
		}
	}
	require.Len(t, withCalls, 1, "the completed call is emitted exactly once")
	call := withCalls[0].Choices[0].Delta.ToolCalls[0]
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, `{"city":"Beijing"}`, call.Function.Arguments)
}
