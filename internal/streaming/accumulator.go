package streaming

import "github.com/lipish/llm-connector-sub002/pkg/llm"

// ToolCallAccumulator merges fragmented tool-call argument strings by index
// and emits each completed call exactly once. It is strictly per-stream:
// callers construct a fresh one for every ChatStream/Stream call and never
// share it across concurrent streams (see the concurrency model).
type ToolCallAccumulator struct {
	order    []int
	partials map[int]*llm.ToolCall
	emitted  map[int]bool
}

// NewToolCallAccumulator returns an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{
		partials: make(map[int]*llm.ToolCall),
		emitted:  make(map[int]bool),
	}
}

// Merge folds one delta fragment into the partial call at delta.Index,
// appending to Arguments and setting ID/Name the first time they're seen.
func (a *ToolCallAccumulator) Merge(delta llm.ToolCall) {
	p, ok := a.partials[delta.Index]
	if !ok {
		p = &llm.ToolCall{Index: delta.Index, Type: "function"}
		a.partials[delta.Index] = p
		a.order = append(a.order, delta.Index)
	}
	if delta.ID != "" {
		p.ID = delta.ID
	}
	if delta.Type != "" {
		p.Type = delta.Type
	}
	if delta.Function.Name != "" {
		p.Function.Name = delta.Function.Name
	}
	p.Function.Arguments += delta.Function.Arguments
}

// Complete marks the partial at index as finished and returns a copy of it
// the first time it's called for that index; subsequent calls (or calls for
// an index never merged) return nil, guaranteeing at-most-one emission.
func (a *ToolCallAccumulator) Complete(index int) *llm.ToolCall {
	if a.emitted[index] {
		return nil
	}
	p, ok := a.partials[index]
	if !ok {
		return nil
	}
	a.emitted[index] = true
	done := *p
	return &done
}

// CompleteAll finalizes every partial not yet emitted, in the order their
// indices were first observed. Used when the stream ends (the last
// streaming chunk overall) and no per-index completion signal arrived.
func (a *ToolCallAccumulator) CompleteAll() []llm.ToolCall {
	var out []llm.ToolCall
	for _, idx := range a.order {
		if tc := a.Complete(idx); tc != nil {
			out = append(out, *tc)
		}
	}
	return out
}
