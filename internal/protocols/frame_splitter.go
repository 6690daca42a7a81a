package protocols

import (
	"context"
	"io"

	"github.com/lipish/llm-connector-sub002/internal/streaming"
	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// FrameSplitterKind selects which of the streaming engine's framing variants
// a protocol's byte stream uses.
type FrameSplitterKind int

const (
	// FrameSplitterSSEDoubleNewline is OpenAI-family SSE: "data: <json>\n\n",
	// terminated by "data: [DONE]".
	FrameSplitterSSEDoubleNewline FrameSplitterKind = iota
	// FrameSplitterSSESingleNewline is Zhipu's SSE variant with one event
	// per line.
	FrameSplitterSSESingleNewline
	// FrameSplitterNDJSON is Ollama's line-delimited JSON.
	FrameSplitterNDJSON
	// FrameSplitterEventNamedSSE is Anthropic's "event: <name>\ndata:
	// <json>\n\n" form.
	FrameSplitterEventNamedSSE
)

// Split dispatches body to the streaming engine's splitter for kind.
func Split(ctx context.Context, kind FrameSplitterKind, body io.ReadCloser) <-chan llm.StreamFrame {
	switch kind {
	case FrameSplitterSSESingleNewline:
		return streaming.SplitSSESingleNewline(ctx, body)
	case FrameSplitterNDJSON:
		return streaming.SplitNDJSON(ctx, body)
	case FrameSplitterEventNamedSSE:
		return streaming.SplitEventNamedSSE(ctx, body)
	default:
		return streaming.SplitSSEDoubleNewline(ctx, body)
	}
}

// StreamFramer is implemented by protocols whose framing differs from the
// default SSE double-newline variant.
type StreamFramer interface {
	FrameSplitter() FrameSplitterKind
}

// SplitterFor returns the framing variant for p, defaulting to SSE
// double-newline for protocols that don't declare one.
func SplitterFor(p llm.Protocol) FrameSplitterKind {
	if f, ok := p.(StreamFramer); ok {
		return f.FrameSplitter()
	}
	return FrameSplitterSSEDoubleNewline
}

// StreamHeaderer is implemented by protocols that require extra headers on
// streaming requests only (DashScope's X-DashScope-SSE).
type StreamHeaderer interface {
	StreamHeaders() llm.Headers
}

// StreamParser consumes framed events for one stream and produces zero or
// more normalized chunks per frame. A StreamParser holds per-stream state
// (block maps, tool accumulators, marker machines) and is never shared
// across streams.
type StreamParser interface {
	Parse(frame llm.StreamFrame) ([]*llm.StreamingResponse, error)
	// Finish is called once after the last frame; it flushes anything the
	// parser is still holding (tool calls that never saw an explicit
	// completion signal).
	Finish() []*llm.StreamingResponse
}

// StreamParserFactory is implemented by protocols whose streaming
// interpretation is stateful across frames (Anthropic's event machine,
// Zhipu's inline-thinking split). Providers call NewStreamParser once per
// stream; protocols without this interface are parsed frame-by-frame via
// ParseStreamResponse with the generic tool-call normalizer layered on top.
type StreamParserFactory interface {
	NewStreamParser() StreamParser
}

// ModelsParser is implemented by protocols whose models-listing response
// isn't the OpenAI `{"data":[{"id":...}]}` shape.
type ModelsParser interface {
	ParseModelsResponse(body []byte) ([]string, error)
}
