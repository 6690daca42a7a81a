// Package llm defines the provider-neutral data model shared by every
// backend this module talks to: requests, messages, tool calls, streaming
// chunks, and the error taxonomy. It has no knowledge of any one backend's
// wire format — that lives in the protocol adapters — and no knowledge of
// HTTP — that lives in the transport. Everything here is plain data plus
// the two contracts (Protocol, Provider) that the rest of the module
// implements against.
package llm

import "encoding/json"

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason is the neutral projection of why a choice stopped generating.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonFunctionCall  FinishReason = "function_call"
)

// FinishReasonOther wraps a backend-specific finish reason that doesn't map
// onto one of the known variants, preserving the raw string.
func FinishReasonOther(raw string) FinishReason {
	return FinishReason(raw)
}

// Header is one entry of an ordered, case-insensitive header set. Using a
// slice instead of a map keeps insertion order observable and makes
// last-write-wins explicit rather than an accident of map iteration.
type Header struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// Headers is an ordered collection of Header with case-insensitive lookup
// and last-write-wins Set semantics.
type Headers []Header

// Set inserts or overwrites (case-insensitively) the named header, keeping
// its original position if it already existed.
func (h *Headers) Set(name, value string) {
	for i := range *h {
		if equalFoldASCII((*h)[i].Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Get returns the value for name and whether it was present.
func (h Headers) Get(name string) (string, bool) {
	for _, entry := range h {
		if equalFoldASCII(entry.Name, name) {
			return entry.Value, true
		}
	}
	return "", false
}

// Merge returns a new Headers with each entry of overlay applied on top of
// h in order, following last-write-wins semantics. Neither input is mutated.
func Merge(base Headers, overlay Headers) Headers {
	merged := make(Headers, len(base))
	copy(merged, base)
	for _, entry := range overlay {
		merged.Set(entry.Name, entry.Value)
	}
	return merged
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// MessageBlock is a tagged union of the content a Message can carry. Exactly
// one of the Text/ImageURL/ImageBase64 shapes is populated per the Kind tag.
type MessageBlock struct {
	Kind MessageBlockKind

	// Text holds the block's text when Kind == BlockText.
	Text string

	// ImageURL holds the remote image location when Kind == BlockImageURL.
	ImageURL string
	// ImageDetail is optional: "low" | "high" | "auto".
	ImageDetail string

	// ImageMediaType and ImageData hold an inline image when
	// Kind == BlockImageBase64. ImageMediaType must be a valid image/* token.
	ImageMediaType string
	ImageData      string
}

// MessageBlockKind discriminates MessageBlock's variants.
type MessageBlockKind string

const (
	BlockText        MessageBlockKind = "text"
	BlockImageURL    MessageBlockKind = "image_url"
	BlockImageBase64 MessageBlockKind = "image_base64"
)

// TextBlock constructs a plain-text MessageBlock.
func TextBlock(text string) MessageBlock {
	return MessageBlock{Kind: BlockText, Text: text}
}

// ImageURLBlock constructs a remote-image MessageBlock. detail may be empty.
func ImageURLBlock(url, detail string) MessageBlock {
	return MessageBlock{Kind: BlockImageURL, ImageURL: url, ImageDetail: detail}
}

// ImageBase64Block constructs an inline-image MessageBlock.
func ImageBase64Block(mediaType, data string) MessageBlock {
	return MessageBlock{Kind: BlockImageBase64, ImageMediaType: mediaType, ImageData: data}
}

// Message is a single turn in a conversation. Messages are created by the
// caller and consumed, never mutated, by Protocol adapters.
type Message struct {
	Role Role

	// Content is an ordered sequence of blocks. It may be empty on an
	// Assistant message that carries ToolCalls instead.
	Content []MessageBlock

	// Name optionally names the message author.
	Name string

	// ToolCalls is only set on Assistant messages.
	ToolCalls []ToolCall

	// ToolCallID is required when Role == RoleTool.
	ToolCallID string
}

// TextContent concatenates every text block's text, the form most Protocol
// adapters need when a message carries no images.
func (m Message) TextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Kind == BlockText {
			out += b.Text
		}
	}
	return out
}

// HasOnlyText reports whether every block in the message is BlockText, so a
// Protocol can choose the plain-string wire form over the blocks-array form.
func (m Message) HasOnlyText() bool {
	for _, b := range m.Content {
		if b.Kind != BlockText {
			return false
		}
	}
	return true
}

// NewSystemMessage builds a single-text-block System message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []MessageBlock{TextBlock(text)}}
}

// NewUserMessage builds a single-text-block User message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []MessageBlock{TextBlock(text)}}
}

// NewAssistantMessage builds a single-text-block Assistant message.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []MessageBlock{TextBlock(text)}}
}

// NewAssistantToolCallMessage builds an Assistant message carrying tool
// calls and no text content.
func NewAssistantToolCallMessage(calls []ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// NewToolMessage builds a Tool-role message responding to toolCallID.
func NewToolMessage(toolCallID, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    []MessageBlock{TextBlock(content)},
		ToolCallID: toolCallID,
	}
}

// Tool is a callable function declaration. Parameters is a JSON Schema
// document passed through opaquely — the library never interprets it.
type Tool struct {
	Type     string // always "function"
	Function FunctionDef
}

// FunctionDef describes a callable function.
type FunctionDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// NewTool builds a function Tool from a JSON Schema parameters document.
func NewTool(name, description string, parameters json.RawMessage) Tool {
	return Tool{Type: "function", Function: FunctionDef{
		Name:        name,
		Description: description,
		Parameters:  parameters,
	}}
}

// ToolChoiceKind discriminates the ToolChoice tagged union.
type ToolChoiceKind string

const (
	ToolChoiceKindAuto     ToolChoiceKind = "auto"
	ToolChoiceKindNone     ToolChoiceKind = "none"
	ToolChoiceKindRequired ToolChoiceKind = "required"
	ToolChoiceKindNamed    ToolChoiceKind = "named"
)

// ToolChoice controls how the model is allowed to use tools.
type ToolChoice struct {
	Kind ToolChoiceKind
	Name string // set only when Kind == ToolChoiceKindNamed
}

func ToolChoiceAuto() ToolChoice     { return ToolChoice{Kind: ToolChoiceKindAuto} }
func ToolChoiceNone() ToolChoice     { return ToolChoice{Kind: ToolChoiceKindNone} }
func ToolChoiceRequired() ToolChoice { return ToolChoice{Kind: ToolChoiceKindRequired} }
func ToolChoiceNamed(name string) ToolChoice {
	return ToolChoice{Kind: ToolChoiceKindNamed, Name: name}
}

// ResponseFormatKind discriminates the ResponseFormat tagged union.
type ResponseFormatKind string

const (
	ResponseFormatText       ResponseFormatKind = "text"
	ResponseFormatJSONObject ResponseFormatKind = "json_object"
	ResponseFormatJSONSchema ResponseFormatKind = "json_schema"
)

// ResponseFormat constrains the shape of the model's output.
type ResponseFormat struct {
	Kind ResponseFormatKind

	// The following apply only when Kind == ResponseFormatJSONSchema.
	SchemaName        string
	SchemaDescription string
	Schema            json.RawMessage
	Strict            bool
}

// ReasoningEffort is a coarse hint some backends accept in place of a raw
// thinking-token budget.
type ReasoningEffort string

const (
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// ToolCall is a model-emitted invocation of a declared Tool. Arguments is
// always a string of JSON, never a parsed object — callers decode it
// themselves against the schema they declared.
type ToolCall struct {
	ID   string
	Type string // always "function"

	Function FunctionCall

	// Index is set only on streaming deltas; it identifies which partial
	// call a fragment belongs to and is stable within one response.
	Index int
}

// FunctionCall is the name/arguments pair inside a ToolCall.
type FunctionCall struct {
	Name      string
	Arguments string // JSON-encoded, built incrementally while streaming
}

// ChatRequest is the request at the neutral boundary. Messages must be
// non-empty. ApiKey/BaseURL/ExtraHeaders are per-request overrides that
// supersede the Provider's static configuration for this call only.
type ChatRequest struct {
	Model    string
	Messages []Message

	MaxTokens        *int
	Temperature      *float64
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Stop             []string
	Seed             *int64
	Stream           bool

	Tools      []Tool
	ToolChoice *ToolChoice

	ResponseFormat *ResponseFormat

	EnableThinking  *bool
	ReasoningEffort *ReasoningEffort
	BudgetTokens    *int

	// Per-request overrides. Zero values mean "use the Provider's default".
	APIKey       string
	BaseURL      string
	ExtraHeaders Headers
}

// NamedToolChoiceValid reports whether r.ToolChoice names a function that
// is actually declared in r.Tools, per the data-model invariant in §3.
func (r ChatRequest) NamedToolChoiceValid() bool {
	if r.ToolChoice == nil || r.ToolChoice.Kind != ToolChoiceKindNamed {
		return true
	}
	for _, t := range r.Tools {
		if t.Function.Name == r.ToolChoice.Name {
			return true
		}
	}
	return false
}

// Usage reports token accounting for a request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Choice is one candidate completion in a ChatResponse.
type Choice struct {
	Index        int
	Message      Message
	FinishReason FinishReason
	Logprobs     json.RawMessage
}

// ChatResponse is the non-streaming result of a chat call.
type ChatResponse struct {
	ID      string
	Object  string
	Created int64
	Model   string

	Choices []Choice

	// Content is choices[0].message's text, flattened for convenience.
	Content string
	// ReasoningContent is populated from any reasoning-synonym key found in
	// the raw response; see the reasoning normalizer.
	ReasoningContent string

	Usage             *Usage
	SystemFingerprint string
}

// Delta is the incremental content of one streaming choice.
type Delta struct {
	Role             Role
	Content          string
	ReasoningContent string
	ToolCalls        []ToolCall
}

// StreamChoice is one choice slot within a StreamingResponse.
type StreamChoice struct {
	Index        int
	Delta        Delta
	FinishReason *FinishReason
}

// StreamingResponse is one normalized streaming chunk, provider-agnostic.
type StreamingResponse struct {
	ID      string
	Object  string
	Created int64
	Model   string

	Choices []StreamChoice

	// Content is choices[0].delta.content (or the reasoning-synonym
	// fallback chain — see the reasoning normalizer), projected for
	// convenience.
	Content string
	// ReasoningContent is back-filled from the first chunk that carried a
	// non-empty reasoning-synonym value.
	ReasoningContent string

	// Usage is present on the last chunk when the backend reports it.
	Usage *Usage
}

// ProviderConfig is the static, shared configuration for one Provider
// instance. BaseURL is the backend's base address; a Configurable Protocol
// substitutes it for the "{base_url}" placeholder in its endpoint templates.
type ProviderConfig struct {
	APIKey         string
	BaseURL        string
	TimeoutMillis  int
	Proxy          string
	DefaultHeaders Headers
}

// AuthKind discriminates ProtocolConfig's Auth tagged union.
type AuthKind string

const (
	AuthBearer        AuthKind = "bearer"
	AuthAPIKeyHeader  AuthKind = "api_key_header"
	AuthNone          AuthKind = "none"
	AuthCustomHeaders AuthKind = "custom"
)

// Auth describes how a Configurable Protocol authenticates its requests.
type Auth struct {
	Kind AuthKind `yaml:"kind"`

	// HeaderName is used when Kind == AuthAPIKeyHeader (the header carrying
	// the raw key, e.g. "x-api-key").
	HeaderName string `yaml:"header_name"`

	// CustomHeaders is used when Kind == AuthCustomHeaders: a set of
	// name -> value templates, each value may contain "{api_key}".
	CustomHeaders Headers `yaml:"custom_headers"`
}

// Endpoints holds the URL templates a Configurable Protocol fills in with
// "{base_url}" substitution.
type Endpoints struct {
	ChatTemplate string `yaml:"chat_template"`
	// ModelsTemplate is optional; empty means models listing is unsupported.
	ModelsTemplate string `yaml:"models_template"`
}

// ProtocolConfig fully describes an OpenAI-compatible clone: no code, only
// data. A ProtocolConfig document is typically unmarshaled from YAML by the
// caller using these fields' struct tags.
type ProtocolConfig struct {
	Name                string    `yaml:"name"`
	Endpoints           Endpoints `yaml:"endpoints"`
	Auth                Auth      `yaml:"auth"`
	ExtraDefaultHeaders Headers   `yaml:"extra_default_headers"`
	// AnthropicWireFormat selects the Anthropic-shaped request/response body
	// instead of the OpenAI-shaped one, for clones (e.g. some LongCat
	// deployments) that speak Anthropic's Messages API with Bearer auth.
	AnthropicWireFormat bool `yaml:"anthropic_wire_format"`
}
