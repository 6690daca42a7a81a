package tokencount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// TestNewCounterFallsBack tests the unknown-encoding fallback.
func TestNewCounterFallsBack(t *testing.T) {
	c, err := NewCounter("not-a-real-encoding")
	require.NoError(t, err)
	assert.Equal(t, "cl100k_base", c.Encoding())

	c, err = NewCounter("")
	require.NoError(t, err)
	assert.Equal(t, "cl100k_base", c.Encoding())
}

// TestNewCounterForModel tests the model-to-encoding pairing.
func TestNewCounterForModel(t *testing.T) {
	c, err := NewCounterForModel("gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "o200k_base", c.Encoding())

	c, err = NewCounterForModel("qwen-plus")
	require.NoError(t, err)
	assert.Equal(t, "cl100k_base", c.Encoding())
}

// TestCount tests basic counting behavior.
func TestCount(t *testing.T) {
	c, err := NewCounter("cl100k_base")
	require.NoError(t, err)

	assert.Zero(t, c.Count(""))
	assert.Positive(t, c.Count("hello world"))
	assert.Greater(t, c.Count("a much longer sentence with many more words in it"), c.Count("short"))
}

// TestCountMessages tests per-message overhead and tool-call accounting.
func TestCountMessages(t *testing.T) {
	c, err := NewCounter("cl100k_base")
	require.NoError(t, err)

	assert.Zero(t, c.CountMessages(nil))

	plain := []llm.Message{llm.NewUserMessage("hello")}
	base := c.CountMessages(plain)
	assert.Greater(t, base, c.Count("hello"), "overhead is added per message")

	withCalls := []llm.Message{
		llm.NewUserMessage("hello"),
		llm.NewAssistantToolCallMessage([]llm.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: llm.FunctionCall{Name: "get_weather", Arguments: `{"city":"Beijing"}`},
		}}),
	}
	assert.Greater(t, c.CountMessages(withCalls), base)
}

// TestWouldExceedContext tests the pre-flight context check with the
// max_tokens reservation included.
func TestWouldExceedContext(t *testing.T) {
	c, err := NewCounter("cl100k_base")
	require.NoError(t, err)

	maxTokens := 100
	req := llm.ChatRequest{
		Model:     "gpt-4o",
		Messages:  []llm.Message{llm.NewUserMessage("hello")},
		MaxTokens: &maxTokens,
	}

	assert.False(t, c.WouldExceedContext(req, 4096))
	assert.True(t, c.WouldExceedContext(req, 50), "reservation alone overruns a 50-token window")
	assert.False(t, c.WouldExceedContext(req, 0), "zero window disables the check")
}

// TestTruncate tests the token-bounded cut.
func TestTruncate(t *testing.T) {
	c, err := NewCounter("cl100k_base")
	require.NoError(t, err)

	text := "one two three four five six seven eight nine ten"
	assert.Equal(t, text, c.Truncate(text, 1000))
	assert.Empty(t, c.Truncate(text, 0))

	cut := c.Truncate(text, 3)
	assert.Less(t, len(cut), len(text))
	assert.LessOrEqual(t, c.Count(cut), 3)
}

// TestEstimateTokens tests the encoding-free heuristic.
func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hey"))
	assert.Equal(t, 3, EstimateTokens("twelve chars"))
}
