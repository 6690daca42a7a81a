package llm

import "context"

// Capability names a probe a Protocol or Provider can be asked about.
type Capability string

const (
	CapabilityModelsListing Capability = "models_listing"
	CapabilityVision        Capability = "vision"
	CapabilityTools         Capability = "tools"
	CapabilityReasoning     Capability = "reasoning"
	CapabilityStreaming     Capability = "streaming"
)

// Operation names which endpoint Protocol.Endpoint is building a URL for.
type Operation string

const (
	OperationChat   Operation = "chat"
	OperationModels Operation = "models"
)

// Protocol adapts the neutral ChatRequest to one backend's wire format and
// parses its responses back. A Protocol is immutable after construction and
// safely shared by reference across concurrent calls; it holds no
// per-request state.
type Protocol interface {
	// Name is a short tag used in errors and diagnostics.
	Name() string

	// Endpoint produces a fully-qualified URL for the given operation
	// against baseURL. Returns an UnsupportedOperation Error if this
	// Protocol has no endpoint for op (e.g. Anthropic has no models
	// listing).
	Endpoint(baseURL string, op Operation) (string, error)

	// AuthHeaders returns the headers required for authentication against
	// cfg. It must never set Content-Type; the transport owns that header.
	AuthHeaders(cfg ProviderConfig) Headers

	// BuildRequestBody constructs the wire payload for req. stream
	// indicates whether the caller intends to read this as a streaming
	// response, since several protocols toggle wire fields on that basis
	// (e.g. DashScope's incremental_output).
	BuildRequestBody(req ChatRequest, stream bool) (interface{}, error)

	// ParseResponse parses one unary response body into a ChatResponse.
	ParseResponse(body []byte) (*ChatResponse, error)

	// ParseStreamResponse parses a single framed event (as delivered by the
	// streaming engine) into a normalized chunk. It returns (nil, nil) for
	// sentinel/blank frames that carry no chunk (e.g. "[DONE]").
	ParseStreamResponse(frame StreamFrame) (*StreamingResponse, error)

	// Supports probes whether this Protocol implements capability.
	Supports(capability Capability) bool
}

// StreamFrame is one delivery unit handed from the streaming engine to a
// Protocol's ParseStreamResponse. Most framings populate only Data; the
// event-named SSE framing (Anthropic) also populates Event.
type StreamFrame struct {
	Event string
	Data  string
}

// Provider ties a Protocol to transport calls, applying per-request
// overrides and exposing the facade-level operations. Implementations must
// be safe for concurrent use: two concurrent calls never share state beyond
// what the Protocol and Transport already share immutably.
type Provider interface {
	Name() string
	Capabilities() Capabilities

	// ListModels returns the backend's available model names, or an
	// UnsupportedOperation Error if this Provider has no such endpoint.
	ListModels(ctx context.Context) ([]string, error)

	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ChatStream returns a channel of normalized chunks. The channel is
	// closed when the stream ends, whether by completion, cancellation, or
	// error; a terminal error is delivered as the final StreamEvent's Err.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)
}

// StreamEvent is one item delivered on a Provider's ChatStream channel:
// either a chunk or a terminal error, never both.
type StreamEvent struct {
	Chunk *StreamingResponse
	Err   error
}

// Capabilities describes what a Provider supports.
type Capabilities struct {
	SupportsTools     bool
	SupportsStreaming bool
	SupportsVision    bool
	MaxContextTokens  int
	MaxOutputTokens   int
	Models            []string
}
