package streaming

import "github.com/lipish/llm-connector-sub002/pkg/llm"

// AnthropicBlockKind is the type tag captured at content_block_start.
type AnthropicBlockKind string

const (
	AnthropicBlockText    AnthropicBlockKind = "text"
	AnthropicBlockToolUse AnthropicBlockKind = "tool_use"
	AnthropicBlockThink   AnthropicBlockKind = "thinking"
)

// AnthropicStateMachine is the finite-state machine driving Anthropic's
// event-named SSE stream: message_start, content_block_start,
// content_block_delta, content_block_stop, message_delta, message_stop. The
// Anthropic Protocol adapter decodes each event's JSON and calls the
// matching method here with already-extracted fields, keeping wire-shape
// knowledge out of this package while the accumulation/state-tracking
// discipline the design notes require lives here.
type AnthropicStateMachine struct {
	id    string
	model string

	blockKinds map[int]AnthropicBlockKind
	tools      *ToolCallAccumulator

	usage        *llm.Usage
	finishReason *llm.FinishReason
}

// NewAnthropicStateMachine returns a machine ready to receive message_start.
func NewAnthropicStateMachine() *AnthropicStateMachine {
	return &AnthropicStateMachine{
		blockKinds: make(map[int]AnthropicBlockKind),
		tools:      NewToolCallAccumulator(),
	}
}

// MessageStart captures the message id/model and initial usage. It emits no
// chunk.
func (m *AnthropicStateMachine) MessageStart(id, model string, usage *llm.Usage) {
	m.id = id
	m.model = model
	m.usage = usage
}

// ContentBlockStart marks the active content block at index. toolID/toolName
// are only meaningful when kind == AnthropicBlockToolUse.
func (m *AnthropicStateMachine) ContentBlockStart(index int, kind AnthropicBlockKind, toolID, toolName string) {
	m.blockKinds[index] = kind
	if kind == AnthropicBlockToolUse {
		m.tools.Merge(llm.ToolCall{Index: index, Type: "function", ID: toolID, Function: llm.FunctionCall{Name: toolName}})
	}
}

// ContentBlockDelta extracts delta.text / delta.partial_json / delta.thinking
// for the block at index. Text and thinking deltas yield a chunk carrying
// the projected content or reasoning; tool_use argument fragments are only
// accumulated and yield nil.
func (m *AnthropicStateMachine) ContentBlockDelta(index int, textDelta, partialJSON, thinkingDelta string) *llm.StreamingResponse {
	kind := m.blockKinds[index]

	delta := llm.Delta{}
	switch kind {
	case AnthropicBlockToolUse:
		if partialJSON != "" {
			m.tools.Merge(llm.ToolCall{Index: index, Function: llm.FunctionCall{Arguments: partialJSON}})
		}
		// Tool argument fragments are surfaced only once the call completes
		// (see ContentBlockStop), never as partial deltas, per the
		// at-most-one-emission invariant.
		return nil
	case AnthropicBlockThink:
		delta.ReasoningContent = thinkingDelta
	default:
		delta.Content = textDelta
	}

	if delta.Content == "" && delta.ReasoningContent == "" {
		return nil
	}

	return &llm.StreamingResponse{
		ID:               m.id,
		Model:            m.model,
		Object:           "chat.completion.chunk",
		Choices:          []llm.StreamChoice{{Index: 0, Delta: delta}},
		Content:          delta.Content,
		ReasoningContent: delta.ReasoningContent,
	}
}

// ContentBlockStop finalizes the block at index. For a tool_use block this
// is where the completed call is emitted exactly once; other block kinds
// emit nothing here (their content already went out via deltas).
func (m *AnthropicStateMachine) ContentBlockStop(index int) *llm.StreamingResponse {
	if m.blockKinds[index] != AnthropicBlockToolUse {
		return nil
	}
	tc := m.tools.Complete(index)
	if tc == nil {
		return nil
	}
	return &llm.StreamingResponse{
		ID:      m.id,
		Model:   m.model,
		Object:  "chat.completion.chunk",
		Choices: []llm.StreamChoice{{Index: 0, Delta: llm.Delta{ToolCalls: []llm.ToolCall{*tc}}}},
	}
}

// MessageDelta captures the normalized finish reason and cumulative usage
// reported partway through the stream.
func (m *AnthropicStateMachine) MessageDelta(finishReason llm.FinishReason, usage *llm.Usage) {
	m.finishReason = &finishReason
	if usage != nil {
		m.usage = usage
	}
}

// MessageStop emits the terminal chunk carrying the finish reason and final
// usage, and finalizes any tool calls that never saw an explicit
// content_block_stop.
func (m *AnthropicStateMachine) MessageStop() []*llm.StreamingResponse {
	var out []*llm.StreamingResponse
	for _, tc := range m.tools.CompleteAll() {
		out = append(out, &llm.StreamingResponse{
			ID:      m.id,
			Model:   m.model,
			Object:  "chat.completion.chunk",
			Choices: []llm.StreamChoice{{Index: 0, Delta: llm.Delta{ToolCalls: []llm.ToolCall{tc}}}},
		})
	}

	choice := llm.StreamChoice{Index: 0, FinishReason: m.finishReason}
	out = append(out, &llm.StreamingResponse{
		ID:      m.id,
		Model:   m.model,
		Object:  "chat.completion.chunk",
		Choices: []llm.StreamChoice{choice},
		Usage:   m.usage,
	})
	return out
}
