package streaming

import "github.com/lipish/llm-connector-sub002/pkg/llm"

// Normalizer enforces the at-most-one-emission rule for tool calls on an
// already-parsed chunk stream: fragments are absorbed into the accumulator
// and stripped from the chunks they arrived on; each completed call is
// attached exactly once, either to the chunk that carried
// finish_reason=tool_calls or to a final flush chunk when the stream ends
// without one. Like the accumulator it wraps, a Normalizer is strictly
// per-stream.
type Normalizer struct {
	tools *ToolCallAccumulator
}

// NewNormalizer returns a fresh per-stream Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{tools: NewToolCallAccumulator()}
}

// Apply folds one parsed chunk through the accumulator. It returns the chunk
// to deliver downstream, or nil when the chunk carried nothing but tool-call
// fragments and should be suppressed.
func (n *Normalizer) Apply(chunk *llm.StreamingResponse) *llm.StreamingResponse {
	if chunk == nil {
		return nil
	}

	meaningful := chunk.Usage != nil
	for i := range chunk.Choices {
		choice := &chunk.Choices[i]

		for _, tc := range choice.Delta.ToolCalls {
			n.tools.Merge(tc)
		}
		choice.Delta.ToolCalls = nil

		if choice.FinishReason != nil && *choice.FinishReason == llm.FinishReasonToolCalls {
			choice.Delta.ToolCalls = n.tools.CompleteAll()
		}

		if choice.Delta.Content != "" || choice.Delta.ReasoningContent != "" ||
			choice.Delta.Role != "" || len(choice.Delta.ToolCalls) > 0 || choice.FinishReason != nil {
			meaningful = true
		}
	}

	if !meaningful {
		return nil
	}
	return chunk
}

// Flush returns a final chunk carrying any tool calls still held when the
// stream ended without a finish_reason=tool_calls signal, or nil when there
// is nothing left to emit.
func (n *Normalizer) Flush(id, model string) *llm.StreamingResponse {
	remaining := n.tools.CompleteAll()
	if len(remaining) == 0 {
		return nil
	}
	return &llm.StreamingResponse{
		ID:      id,
		Model:   model,
		Object:  "chat.completion.chunk",
		Choices: []llm.StreamChoice{{Index: 0, Delta: llm.Delta{ToolCalls: remaining}}},
	}
}
