package protocols

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lipish/llm-connector-sub002/internal/streaming"
	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

const (
	anthropicAPIVersion    = "2023-06-01"
	anthropicDefaultMaxTok = 1024
	anthropicMessagesPath  = "/v1/messages"
)

// AnthropicProtocol speaks Anthropic's Messages API. System messages are
// promoted to the top-level system string, Tool-role messages are demoted to
// User text blocks carrying the tool-call id, and max_tokens is always sent
// (the API requires it).
type AnthropicProtocol struct{}

// NewAnthropicProtocol returns the Anthropic protocol adapter.
func NewAnthropicProtocol() *AnthropicProtocol { return &AnthropicProtocol{} }

func (p *AnthropicProtocol) Name() string { return "anthropic" }

func (p *AnthropicProtocol) Endpoint(baseURL string, op llm.Operation) (string, error) {
	switch op {
	case llm.OperationChat:
		return strings.TrimSuffix(baseURL, "/") + anthropicMessagesPath, nil
	case llm.OperationModels:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), "model listing is not available")
	default:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), fmt.Sprintf("unknown operation %q", op))
	}
}

func (p *AnthropicProtocol) AuthHeaders(cfg llm.ProviderConfig) llm.Headers {
	return llm.Headers{
		{Name: "x-api-key", Value: cfg.APIKey},
		{Name: "anthropic-version", Value: anthropicAPIVersion},
	}
}

// Wire shapes for the Messages API.

type anthropicRequest struct {
	Model         string                 `json:"model"`
	MaxTokens     int                    `json:"max_tokens"`
	System        string                 `json:"system,omitempty"`
	Messages      []anthropicMessage     `json:"messages"`
	Temperature   *float64               `json:"temperature,omitempty"`
	TopP          *float64               `json:"top_p,omitempty"`
	StopSequences []string               `json:"stop_sequences,omitempty"`
	Stream        bool                   `json:"stream,omitempty"`
	Tools         []anthropicTool        `json:"tools,omitempty"`
	ToolChoice    *anthropicToolChoice   `json:"tool_choice,omitempty"`
	Thinking      *anthropicThinkingConf `json:"thinking,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Source *anthropicImageSource `json:"source,omitempty"`

	// tool_use fields.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// thinking field on response blocks.
	Thinking string `json:"thinking,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type anthropicThinkingConf struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

func (p *AnthropicProtocol) BuildRequestBody(req llm.ChatRequest, stream bool) (interface{}, error) {
	body := anthropicRequest{
		Model:     req.Model,
		MaxTokens: anthropicDefaultMaxTok,
		Stream:    stream,
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}
	body.Temperature = req.Temperature
	body.TopP = req.TopP
	body.StopSequences = req.Stop

	var systemParts []string
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, m.TextContent())
		case llm.RoleTool:
			// The Messages API has no tool role; the result rides along as a
			// user text block carrying the originating call's id.
			body.Messages = append(body.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type: "text",
					Text: fmt.Sprintf("[%s] %s", m.ToolCallID, m.TextContent()),
				}},
			})
		case llm.RoleAssistant:
			am := anthropicMessage{Role: "assistant"}
			am.Content = append(am.Content, convertAnthropicBlocks(m.Content)...)
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				am.Content = append(am.Content, anthropicContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: input,
				})
			}
			body.Messages = append(body.Messages, am)
		default:
			body.Messages = append(body.Messages, anthropicMessage{
				Role:    "user",
				Content: convertAnthropicBlocks(m.Content),
			})
		}
	}
	if len(systemParts) > 0 {
		body.System = strings.Join(systemParts, "\n\n")
	}

	for _, t := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Kind {
		case llm.ToolChoiceKindAuto:
			body.ToolChoice = &anthropicToolChoice{Type: "auto"}
		case llm.ToolChoiceKindNone:
			body.ToolChoice = &anthropicToolChoice{Type: "none"}
		case llm.ToolChoiceKindRequired:
			body.ToolChoice = &anthropicToolChoice{Type: "any"}
		case llm.ToolChoiceKindNamed:
			body.ToolChoice = &anthropicToolChoice{Type: "tool", Name: req.ToolChoice.Name}
		}
	}

	if req.EnableThinking != nil && *req.EnableThinking {
		conf := &anthropicThinkingConf{Type: "enabled"}
		if req.BudgetTokens != nil {
			conf.BudgetTokens = *req.BudgetTokens
		}
		body.Thinking = conf
	}

	return body, nil
}

func convertAnthropicBlocks(blocks []llm.MessageBlock) []anthropicContentBlock {
	out := make([]anthropicContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case llm.BlockText:
			out = append(out, anthropicContentBlock{Type: "text", Text: b.Text})
		case llm.BlockImageURL:
			out = append(out, anthropicContentBlock{
				Type:   "image",
				Source: &anthropicImageSource{Type: "url", URL: b.ImageURL},
			})
		case llm.BlockImageBase64:
			out = append(out, anthropicContentBlock{
				Type: "image",
				Source: &anthropicImageSource{
					Type:      "base64",
					MediaType: b.ImageMediaType,
					Data:      b.ImageData,
				},
			})
		}
	}
	return out
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (p *AnthropicProtocol) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llm.NewParseError(p.Name(), "decoding messages response", string(body))
	}

	msg := llm.Message{Role: llm.RoleAssistant}
	var reasoning string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content = append(msg.Content, llm.TextBlock(block.Text))
		case "thinking":
			reasoning += block.Thinking
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:       block.ID,
				Type:     "function",
				Function: llm.FunctionCall{Name: block.Name, Arguments: args},
			})
		}
	}

	choice := llm.Choice{
		Index:        0,
		Message:      msg,
		FinishReason: mapAnthropicStopReason(resp.StopReason),
	}

	usage := toUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.InputTokens+resp.Usage.OutputTokens)

	return &llm.ChatResponse{
		ID:               resp.ID,
		Object:           "chat.completion",
		Model:            resp.Model,
		Choices:          []llm.Choice{choice},
		Content:          projectContent(msg.TextContent(), reasoning),
		ReasoningContent: reasoning,
		Usage:            usage,
	}, nil
}

func mapAnthropicStopReason(raw string) llm.FinishReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return llm.FinishReasonStop
	case "max_tokens":
		return llm.FinishReasonLength
	case "tool_use":
		return llm.FinishReasonToolCalls
	case "":
		return ""
	default:
		return llm.FinishReasonOther(raw)
	}
}

// Streaming event payloads.

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message struct {
		ID    string         `json:"id"`
		Model string         `json:"model"`
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		Thinking    string `json:"thinking"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage anthropicUsage `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseStreamResponse handles a single event with a throwaway state machine.
// Providers use NewStreamParser instead, which keeps one machine for the
// whole stream — required for correct tool-call accumulation and block-type
// tracking across events.
func (p *AnthropicProtocol) ParseStreamResponse(frame llm.StreamFrame) (*llm.StreamingResponse, error) {
	parser := p.NewStreamParser()
	chunks, err := parser.Parse(frame)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

// NewStreamParser returns a fresh per-stream parser driving the event state
// machine.
func (p *AnthropicProtocol) NewStreamParser() StreamParser {
	return &anthropicStreamParser{
		name:    p.Name(),
		machine: streaming.NewAnthropicStateMachine(),
	}
}

type anthropicStreamParser struct {
	name    string
	machine *streaming.AnthropicStateMachine
	stopped bool
}

func (s *anthropicStreamParser) Parse(frame llm.StreamFrame) ([]*llm.StreamingResponse, error) {
	if frame.Data == "" {
		return nil, nil
	}

	var ev anthropicStreamEvent
	if err := json.Unmarshal([]byte(frame.Data), &ev); err != nil {
		return nil, llm.NewParseError(s.name, "decoding stream event", frame.Data)
	}
	eventName := frame.Event
	if eventName == "" {
		eventName = ev.Type
	}

	switch eventName {
	case "message_start":
		usage := toUsage(ev.Message.Usage.InputTokens, ev.Message.Usage.OutputTokens,
			ev.Message.Usage.InputTokens+ev.Message.Usage.OutputTokens)
		s.machine.MessageStart(ev.Message.ID, ev.Message.Model, usage)
		return nil, nil

	case "content_block_start":
		s.machine.ContentBlockStart(ev.Index, streaming.AnthropicBlockKind(ev.ContentBlock.Type),
			ev.ContentBlock.ID, ev.ContentBlock.Name)
		return nil, nil

	case "content_block_delta":
		chunk := s.machine.ContentBlockDelta(ev.Index, ev.Delta.Text, ev.Delta.PartialJSON, ev.Delta.Thinking)
		if chunk == nil {
			return nil, nil
		}
		return []*llm.StreamingResponse{chunk}, nil

	case "content_block_stop":
		chunk := s.machine.ContentBlockStop(ev.Index)
		if chunk == nil {
			return nil, nil
		}
		return []*llm.StreamingResponse{chunk}, nil

	case "message_delta":
		usage := toUsage(ev.Usage.InputTokens, ev.Usage.OutputTokens,
			ev.Usage.InputTokens+ev.Usage.OutputTokens)
		s.machine.MessageDelta(mapAnthropicStopReason(ev.Delta.StopReason), usage)
		return nil, nil

	case "message_stop":
		s.stopped = true
		return s.machine.MessageStop(), nil

	case "error":
		return nil, llm.NewError(llm.ErrorServer, s.name, ev.Error.Message)

	default:
		// ping and future event types carry nothing the neutral stream needs.
		return nil, nil
	}
}

func (s *anthropicStreamParser) Finish() []*llm.StreamingResponse {
	if s.stopped {
		return nil
	}
	// Stream ended without message_stop (connection cut short after the last
	// delta); flush what the machine holds so tool calls aren't lost.
	return s.machine.MessageStop()
}

func (p *AnthropicProtocol) Supports(capability llm.Capability) bool {
	switch capability {
	case llm.CapabilityVision, llm.CapabilityTools, llm.CapabilityStreaming, llm.CapabilityReasoning:
		return true
	default:
		return false
	}
}

// FrameSplitter selects the event-named SSE framing.
func (p *AnthropicProtocol) FrameSplitter() FrameSplitterKind { return FrameSplitterEventNamedSSE }

var _ llm.Protocol = (*AnthropicProtocol)(nil)
var _ StreamParserFactory = (*AnthropicProtocol)(nil)
