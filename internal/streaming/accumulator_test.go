package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// ============================================================================
// Tool-Call Accumulator Tests
// ============================================================================

// TestAccumulatorMergesFragments tests that argument fragments concatenate
// by index and id/name stick from first observation.
func TestAccumulatorMergesFragments(t *testing.T) {
	acc := NewToolCallAccumulator()

	acc.Merge(llm.ToolCall{Index: 0, ID: "call_abc", Function: llm.FunctionCall{Name: "get_weather", Arguments: `{"lo`}})
	acc.Merge(llm.ToolCall{Index: 0, Function: llm.FunctionCall{Arguments: `cation":"Bei`}})
	acc.Merge(llm.ToolCall{Index: 0, Function: llm.FunctionCall{Arguments: `jing"}`}})

	done := acc.Complete(0)
	require.NotNil(t, done)
	assert.Equal(t, "call_abc", done.ID)
	assert.Equal(t, "get_weather", done.Function.Name)
	assert.Equal(t, `{"location":"Beijing"}`, done.Function.Arguments)
}

// TestAccumulatorCompletesAtMostOnce tests the exactly-once emission rule.
func TestAccumulatorCompletesAtMostOnce(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Merge(llm.ToolCall{Index: 0, ID: "call_1", Function: llm.FunctionCall{Name: "f", Arguments: "{}"}})

	first := acc.Complete(0)
	require.NotNil(t, first)
	assert.Nil(t, acc.Complete(0))
	assert.Nil(t, acc.Complete(3), "unknown index completes to nothing")
}

// TestAccumulatorCompleteAllPreservesOrder tests flush ordering and that
// already-emitted calls aren't re-emitted.
func TestAccumulatorCompleteAllPreservesOrder(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Merge(llm.ToolCall{Index: 1, ID: "call_b", Function: llm.FunctionCall{Name: "b"}})
	acc.Merge(llm.ToolCall{Index: 0, ID: "call_a", Function: llm.FunctionCall{Name: "a"}})

	require.NotNil(t, acc.Complete(1))

	rest := acc.CompleteAll()
	require.Len(t, rest, 1)
	assert.Equal(t, "call_a", rest[0].ID)
}

// ============================================================================
// Stream Normalizer Tests
// ============================================================================

func textChunk(content string) *llm.StreamingResponse {
	return &llm.StreamingResponse{
		Choices: []llm.StreamChoice{{Index: 0, Delta: llm.Delta{Content: content}}},
		Content: content,
	}
}

// TestNormalizerSuppressesFragmentChunks tests that chunks carrying only
// tool-call fragments are withheld and the completed call is attached to
// the finish_reason=tool_calls chunk exactly once. This is the scenario of
// three fragment frames ending in a tool_calls finish.
func TestNormalizerSuppressesFragmentChunks(t *testing.T) {
	n := NewNormalizer()

	fragment := func(id, name, args string) *llm.StreamingResponse {
		return &llm.StreamingResponse{
			Choices: []llm.StreamChoice{{Index: 0, Delta: llm.Delta{ToolCalls: []llm.ToolCall{{
				Index:    0,
				ID:       id,
				Function: llm.FunctionCall{Name: name, Arguments: args},
			}}}}},
		}
	}

	assert.Nil(t, n.Apply(fragment("call_abc", "get_weather", `{"lo`)))
	assert.Nil(t, n.Apply(fragment("", "", `cation":"Bei`)))

	finish := llm.FinishReasonToolCalls
	last := fragment("", "", `jing"}`)
	last.Choices[0].FinishReason = &finish

	out := n.Apply(last)
	require.NotNil(t, out)
	require.Len(t, out.Choices[0].Delta.ToolCalls, 1)
	call := out.Choices[0].Delta.ToolCalls[0]
	assert.Equal(t, "call_abc", call.ID)
	assert.Equal(t, "get_weather", call.Function.Name)
	assert.Equal(t, `{"location":"Beijing"}`, call.Function.Arguments)

	// Nothing left for the flush.
	assert.Nil(t, n.Flush("id", "model"))
}

// TestNormalizerPassesTextThrough tests that ordinary content chunks are
// untouched.
func TestNormalizerPassesTextThrough(t *testing.T) {
	n := NewNormalizer()

	out := n.Apply(textChunk("hello"))
	require.NotNil(t, out)
	assert.Equal(t, "hello", out.Choices[0].Delta.Content)
}

// TestNormalizerFlushesWithoutFinishSignal tests the last-chunk-overall
// completion path for backends that never send finish_reason=tool_calls.
func TestNormalizerFlushesWithoutFinishSignal(t *testing.T) {
	n := NewNormalizer()

	chunk := &llm.StreamingResponse{
		Choices: []llm.StreamChoice{{Index: 0, Delta: llm.Delta{ToolCalls: []llm.ToolCall{{
			Index:    0,
			ID:       "call_x",
			Function: llm.FunctionCall{Name: "f", Arguments: `{"a":1}`},
		}}}}},
	}
	assert.Nil(t, n.Apply(chunk))

	flush := n.Flush("resp-1", "m")
	require.NotNil(t, flush)
	assert.Equal(t, "resp-1", flush.ID)
	require.Len(t, flush.Choices[0].Delta.ToolCalls, 1)
	assert.Equal(t, `{"a":1}`, flush.Choices[0].Delta.ToolCalls[0].Function.Arguments)
}

// TestNormalizerKeepsUsageOnlyChunks tests that a trailing usage chunk
// isn't suppressed.
func TestNormalizerKeepsUsageOnlyChunks(t *testing.T) {
	n := NewNormalizer()
	chunk := &llm.StreamingResponse{
		Choices: []llm.StreamChoice{{Index: 0}},
		Usage:   &llm.Usage{TotalTokens: 5},
	}
	assert.NotNil(t, n.Apply(chunk))
}
