package protocols

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// OllamaProtocol speaks the local Ollama daemon's chat API. Responses are
// line-delimited JSON rather than SSE: every line is a complete chunk and
// the one with done:true terminates the stream. No authentication.
type OllamaProtocol struct{}

// NewOllamaProtocol returns the Ollama protocol adapter.
func NewOllamaProtocol() *OllamaProtocol { return &OllamaProtocol{} }

func (p *OllamaProtocol) Name() string { return "ollama" }

func (p *OllamaProtocol) Endpoint(baseURL string, op llm.Operation) (string, error) {
	base := strings.TrimSuffix(baseURL, "/")
	switch op {
	case llm.OperationChat:
		return base + "/api/chat", nil
	case llm.OperationModels:
		return base + "/api/tags", nil
	default:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), fmt.Sprintf("unknown operation %q", op))
	}
}

// AuthHeaders is empty: a local daemon has no credentials.
func (p *OllamaProtocol) AuthHeaders(cfg llm.ProviderConfig) llm.Headers {
	return nil
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Think    *bool           `json:"think,omitempty"`
	Format   json.RawMessage `json:"format,omitempty"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
	Seed        *int64   `json:"seed,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

func (p *OllamaProtocol) BuildRequestBody(req llm.ChatRequest, stream bool) (interface{}, error) {
	body := ollamaRequest{
		Model:  req.Model,
		Stream: stream,
		Think:  req.EnableThinking,
	}

	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil || req.Seed != nil || len(req.Stop) > 0 {
		body.Options = &ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
			Seed:        req.Seed,
			Stop:        req.Stop,
		}
	}

	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Kind {
		case llm.ResponseFormatJSONObject:
			body.Format = json.RawMessage(`"json"`)
		case llm.ResponseFormatJSONSchema:
			body.Format = req.ResponseFormat.Schema
		}
	}

	for _, m := range req.Messages {
		om := ollamaMessage{Role: string(m.Role)}
		for _, b := range m.Content {
			switch b.Kind {
			case llm.BlockText:
				om.Content += b.Text
			case llm.BlockImageBase64:
				om.Images = append(om.Images, b.ImageData)
			case llm.BlockImageURL:
				return nil, llm.NewError(llm.ErrorInvalidRequest, p.Name(), "remote image URLs are not supported; inline the image as base64")
			}
		}
		for _, tc := range m.ToolCalls {
			call := ollamaToolCall{}
			call.Function.Name = tc.Function.Name
			args := tc.Function.Arguments
			if args == "" {
				args = "{}"
			}
			call.Function.Arguments = json.RawMessage(args)
			om.ToolCalls = append(om.ToolCalls, call)
		}
		body.Messages = append(body.Messages, om)
	}

	for _, t := range req.Tools {
		ot := ollamaTool{Type: "function"}
		ot.Function.Name = t.Function.Name
		ot.Function.Description = t.Function.Description
		ot.Function.Parameters = t.Function.Parameters
		body.Tools = append(body.Tools, ot)
	}

	return body, nil
}

// OllamaChunk is the daemon's native chat payload, shared by unary and
// streaming responses. It is exported so the Ollama provider's pure-stream
// mode can hand these to consumers unconverted.
type OllamaChunk struct {
	Model     string        `json:"model"`
	CreatedAt time.Time     `json:"created_at"`
	Message   ollamaMessage `json:"message"`
	Thinking  string        `json:"thinking,omitempty"`

	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// DecodeOllamaChunk parses one NDJSON line into the native chunk shape.
func DecodeOllamaChunk(data string) (*OllamaChunk, error) {
	var chunk OllamaChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil, llm.NewParseError("ollama", "decoding chat line", data)
	}
	return &chunk, nil
}

func (p *OllamaProtocol) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	chunk, err := DecodeOllamaChunk(string(body))
	if err != nil {
		return nil, err
	}

	msg := llm.Message{Role: llm.RoleAssistant}
	if chunk.Message.Content != "" {
		msg.Content = []llm.MessageBlock{llm.TextBlock(chunk.Message.Content)}
	}
	for i, tc := range chunk.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:       fmt.Sprintf("call_%s_%d", tc.Function.Name, i),
			Type:     "function",
			Function: llm.FunctionCall{Name: tc.Function.Name, Arguments: string(tc.Function.Arguments)},
		})
	}

	finish := mapOllamaDoneReason(chunk.DoneReason, len(msg.ToolCalls) > 0)
	reasoning := chunk.Thinking

	return &llm.ChatResponse{
		Object:           "chat.completion",
		Created:          chunk.CreatedAt.Unix(),
		Model:            chunk.Model,
		Choices:          []llm.Choice{{Index: 0, Message: msg, FinishReason: finish}},
		Content:          projectContent(msg.TextContent(), reasoning),
		ReasoningContent: reasoning,
		Usage:            toUsage(chunk.PromptEvalCount, chunk.EvalCount, chunk.PromptEvalCount+chunk.EvalCount),
	}, nil
}

func mapOllamaDoneReason(raw string, sawToolCalls bool) llm.FinishReason {
	switch raw {
	case "stop", "":
		if sawToolCalls {
			return llm.FinishReasonToolCalls
		}
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonLength
	default:
		return llm.FinishReasonOther(raw)
	}
}

func (p *OllamaProtocol) ParseStreamResponse(frame llm.StreamFrame) (*llm.StreamingResponse, error) {
	if frame.Data == "" {
		return nil, nil
	}

	chunk, err := DecodeOllamaChunk(frame.Data)
	if err != nil {
		return nil, err
	}

	delta := llm.Delta{
		Content:          chunk.Message.Content,
		ReasoningContent: chunk.Thinking,
	}
	for i, tc := range chunk.Message.ToolCalls {
		// Ollama emits tool calls whole, never fragmented; the index is
		// positional within this chunk.
		delta.ToolCalls = append(delta.ToolCalls, llm.ToolCall{
			Index:    i,
			ID:       fmt.Sprintf("call_%s_%d", tc.Function.Name, i),
			Type:     "function",
			Function: llm.FunctionCall{Name: tc.Function.Name, Arguments: string(tc.Function.Arguments)},
		})
	}

	var finish *llm.FinishReason
	var usage *llm.Usage
	if chunk.Done {
		fr := mapOllamaDoneReason(chunk.DoneReason, len(delta.ToolCalls) > 0)
		finish = &fr
		usage = toUsage(chunk.PromptEvalCount, chunk.EvalCount, chunk.PromptEvalCount+chunk.EvalCount)
	}

	return &llm.StreamingResponse{
		Object:           "chat.completion.chunk",
		Created:          chunk.CreatedAt.Unix(),
		Model:            chunk.Model,
		Choices:          []llm.StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		Content:          projectContent(delta.Content, delta.ReasoningContent),
		ReasoningContent: delta.ReasoningContent,
		Usage:            usage,
	}, nil
}

// ParseModelsResponse reads the /api/tags listing shape.
func (p *OllamaProtocol) ParseModelsResponse(body []byte) ([]string, error) {
	var listing struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, llm.NewParseError(p.Name(), "decoding model listing", string(body))
	}
	names := make([]string, 0, len(listing.Models))
	for _, m := range listing.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (p *OllamaProtocol) Supports(capability llm.Capability) bool {
	switch capability {
	case llm.CapabilityModelsListing, llm.CapabilityTools, llm.CapabilityStreaming, llm.CapabilityVision, llm.CapabilityReasoning:
		return true
	default:
		return false
	}
}

// FrameSplitter selects the NDJSON framing the daemon emits.
func (p *OllamaProtocol) FrameSplitter() FrameSplitterKind { return FrameSplitterNDJSON }

var _ llm.Protocol = (*OllamaProtocol)(nil)
var _ StreamFramer = (*OllamaProtocol)(nil)
var _ ModelsParser = (*OllamaProtocol)(nil)
