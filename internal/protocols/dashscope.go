package protocols

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

const dashScopeGenerationPath = "/api/v1/services/aigc/text-generation/generation"

// DashScopeProtocol speaks Aliyun's DashScope text-generation envelope:
// messages nested under input, tuning knobs under parameters, and the
// result_format pinned to "message" so responses come back with choices.
// Streaming additionally needs the X-DashScope-SSE header and
// parameters.incremental_output, both of which this adapter supplies.
type DashScopeProtocol struct{}

// NewDashScopeProtocol returns the DashScope protocol adapter.
func NewDashScopeProtocol() *DashScopeProtocol { return &DashScopeProtocol{} }

func (p *DashScopeProtocol) Name() string { return "dashscope" }

func (p *DashScopeProtocol) Endpoint(baseURL string, op llm.Operation) (string, error) {
	switch op {
	case llm.OperationChat:
		return strings.TrimSuffix(baseURL, "/") + dashScopeGenerationPath, nil
	case llm.OperationModels:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), "model listing is not available")
	default:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), fmt.Sprintf("unknown operation %q", op))
	}
}

func (p *DashScopeProtocol) AuthHeaders(cfg llm.ProviderConfig) llm.Headers {
	return llm.Headers{{Name: "Authorization", Value: "Bearer " + cfg.APIKey}}
}

// StreamHeaders enables DashScope's SSE mode; without it the backend
// answers streaming requests with a unary body.
func (p *DashScopeProtocol) StreamHeaders() llm.Headers {
	return llm.Headers{{Name: "X-DashScope-SSE", Value: "enable"}}
}

type dashScopeRequest struct {
	Model      string              `json:"model"`
	Input      dashScopeInput      `json:"input"`
	Parameters dashScopeParameters `json:"parameters"`
}

type dashScopeInput struct {
	Messages []dashScopeMessage `json:"messages"`
}

type dashScopeMessage struct {
	Role       string              `json:"role"`
	Content    string              `json:"content"`
	Name       string              `json:"name,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	ToolCalls  []dashScopeToolCall `json:"tool_calls,omitempty"`
}

type dashScopeToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Index    int    `json:"index,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type dashScopeParameters struct {
	ResultFormat      string             `json:"result_format"`
	MaxTokens         *int               `json:"max_tokens,omitempty"`
	Temperature       *float64           `json:"temperature,omitempty"`
	TopP              *float64           `json:"top_p,omitempty"`
	Seed              *int64             `json:"seed,omitempty"`
	Stop              []string           `json:"stop,omitempty"`
	IncrementalOutput bool               `json:"incremental_output,omitempty"`
	EnableThinking    *bool              `json:"enable_thinking,omitempty"`
	Thinking          *dashScopeThinking `json:"thinking,omitempty"`
	Tools             []json.RawMessage  `json:"tools,omitempty"`
	ToolChoice        interface{}        `json:"tool_choice,omitempty"`
}

type dashScopeThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

func (p *DashScopeProtocol) BuildRequestBody(req llm.ChatRequest, stream bool) (interface{}, error) {
	body := dashScopeRequest{
		Model: req.Model,
		Parameters: dashScopeParameters{
			ResultFormat: "message",
			MaxTokens:    req.MaxTokens,
			Temperature:  req.Temperature,
			TopP:         req.TopP,
			Seed:         req.Seed,
			Stop:         req.Stop,
			// Streaming without incremental output replays the whole
			// accumulated text on every event; always ask for deltas.
			IncrementalOutput: stream,
		},
	}

	for _, m := range req.Messages {
		dm := dashScopeMessage{
			Role:       string(m.Role),
			Content:    m.TextContent(),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			call := dashScopeToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Function.Name
			call.Function.Arguments = tc.Function.Arguments
			dm.ToolCalls = append(dm.ToolCalls, call)
		}
		body.Input.Messages = append(body.Input.Messages, dm)
	}

	for _, t := range req.Tools {
		raw, err := json.Marshal(map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  json.RawMessage(t.Function.Parameters),
			},
		})
		if err != nil {
			return nil, llm.NewError(llm.ErrorInvalidRequest, p.Name(), fmt.Sprintf("encoding tool %q: %v", t.Function.Name, err))
		}
		body.Parameters.Tools = append(body.Parameters.Tools, raw)
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Kind {
		case llm.ToolChoiceKindAuto:
			body.Parameters.ToolChoice = "auto"
		case llm.ToolChoiceKindNone:
			body.Parameters.ToolChoice = "none"
		case llm.ToolChoiceKindRequired:
			body.Parameters.ToolChoice = "required"
		case llm.ToolChoiceKindNamed:
			body.Parameters.ToolChoice = map[string]interface{}{
				"type":     "function",
				"function": map[string]string{"name": req.ToolChoice.Name},
			}
		}
	}

	// Thinking arrives in two generations of wire shape; send the top-level
	// boolean always, and the nested object when a budget is given, so either
	// model generation finds the form it expects.
	if req.EnableThinking != nil {
		body.Parameters.EnableThinking = req.EnableThinking
		if *req.EnableThinking && req.BudgetTokens != nil {
			body.Parameters.Thinking = &dashScopeThinking{Type: "enabled", BudgetTokens: *req.BudgetTokens}
		}
	}

	return body, nil
}

type dashScopeResponse struct {
	RequestID string `json:"request_id"`
	Output    struct {
		Choices []struct {
			Message struct {
				Role             string              `json:"role"`
				Content          string              `json:"content"`
				ReasoningContent string              `json:"reasoning_content"`
				ToolCalls        []dashScopeToolCall `json:"tool_calls"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *DashScopeProtocol) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	var resp dashScopeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llm.NewParseError(p.Name(), "decoding generation response", string(body))
	}
	if len(resp.Output.Choices) == 0 {
		return nil, llm.NewError(llm.ErrorParse, p.Name(), "response contained no choices")
	}

	choices := make([]llm.Choice, 0, len(resp.Output.Choices))
	var reasoning string
	for i, c := range resp.Output.Choices {
		msg := llm.Message{Role: llm.RoleAssistant}
		if c.Message.Content != "" {
			msg.Content = []llm.MessageBlock{llm.TextBlock(c.Message.Content)}
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: llm.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
			})
		}
		if i == 0 {
			reasoning = c.Message.ReasoningContent
		}
		choices = append(choices, llm.Choice{
			Index:        i,
			Message:      msg,
			FinishReason: mapFinishReason(c.FinishReason),
		})
	}

	return &llm.ChatResponse{
		ID:               resp.RequestID,
		Object:           "chat.completion",
		Choices:          choices,
		Content:          projectContent(choices[0].Message.TextContent(), reasoning),
		ReasoningContent: reasoning,
		Usage:            toUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.TotalTokens),
	}, nil
}

func (p *DashScopeProtocol) ParseStreamResponse(frame llm.StreamFrame) (*llm.StreamingResponse, error) {
	if frame.Data == "" || frame.Data == "[DONE]" {
		return nil, nil
	}

	var ev dashScopeResponse
	if err := json.Unmarshal([]byte(frame.Data), &ev); err != nil {
		return nil, llm.NewParseError(p.Name(), "decoding stream event", frame.Data)
	}
	if len(ev.Output.Choices) == 0 {
		return nil, nil
	}

	c := ev.Output.Choices[0]
	delta := llm.Delta{
		Content:          c.Message.Content,
		ReasoningContent: c.Message.ReasoningContent,
	}
	for _, tc := range c.Message.ToolCalls {
		delta.ToolCalls = append(delta.ToolCalls, llm.ToolCall{
			Index:    tc.Index,
			ID:       tc.ID,
			Type:     "function",
			Function: llm.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}

	var finish *llm.FinishReason
	// DashScope reports finish_reason "null" (the literal string) until the
	// terminal event.
	if c.FinishReason != "" && c.FinishReason != "null" {
		fr := mapFinishReason(c.FinishReason)
		finish = &fr
	}

	return &llm.StreamingResponse{
		ID:               ev.RequestID,
		Object:           "chat.completion.chunk",
		Choices:          []llm.StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		Content:          projectContent(delta.Content, delta.ReasoningContent),
		ReasoningContent: delta.ReasoningContent,
		Usage:            toUsage(ev.Usage.InputTokens, ev.Usage.OutputTokens, ev.Usage.TotalTokens),
	}, nil
}

func (p *DashScopeProtocol) Supports(capability llm.Capability) bool {
	switch capability {
	case llm.CapabilityTools, llm.CapabilityStreaming, llm.CapabilityReasoning:
		return true
	default:
		return false
	}
}

var _ llm.Protocol = (*DashScopeProtocol)(nil)
var _ StreamHeaderer = (*DashScopeProtocol)(nil)
