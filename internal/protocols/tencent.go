package protocols

import (
	"encoding/json"
	"fmt"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// Tencent Cloud API coordinates for the native Hunyuan chat endpoint.
const (
	TencentService = "hunyuan"
	TencentAction  = "ChatCompletions"
	TencentVersion = "2023-09-01"
)

// TencentProtocol speaks Tencent Cloud's native Hunyuan API (v3). Field
// names are PascalCase on the wire in both directions and every request is
// TC3-HMAC-SHA256 signed — the signature depends on the exact body bytes
// and timestamp, so it is computed by the Tencent provider per request
// rather than by AuthHeaders here.
type TencentProtocol struct{}

// NewTencentProtocol returns the Tencent protocol adapter.
func NewTencentProtocol() *TencentProtocol { return &TencentProtocol{} }

func (p *TencentProtocol) Name() string { return "tencent" }

// Endpoint is the service host itself; Tencent Cloud actions are selected
// by header, not path.
func (p *TencentProtocol) Endpoint(baseURL string, op llm.Operation) (string, error) {
	switch op {
	case llm.OperationChat:
		return baseURL, nil
	case llm.OperationModels:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), "model listing is not available")
	default:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), fmt.Sprintf("unknown operation %q", op))
	}
}

// AuthHeaders is empty; see the provider's request signing.
func (p *TencentProtocol) AuthHeaders(cfg llm.ProviderConfig) llm.Headers {
	return nil
}

type tencentRequest struct {
	Model          string           `json:"Model"`
	Messages       []tencentMessage `json:"Messages"`
	Stream         bool             `json:"Stream"`
	Temperature    *float64         `json:"Temperature,omitempty"`
	TopP           *float64         `json:"TopP,omitempty"`
	Stop           []string         `json:"Stop,omitempty"`
	Seed           *int64           `json:"Seed,omitempty"`
	Tools          []tencentTool    `json:"Tools,omitempty"`
	ToolChoice     string           `json:"ToolChoice,omitempty"`
	EnableThinking *bool            `json:"EnableThinking,omitempty"`
}

type tencentMessage struct {
	Role       string            `json:"Role"`
	Content    string            `json:"Content,omitempty"`
	ToolCallID string            `json:"ToolCallId,omitempty"`
	ToolCalls  []tencentToolCall `json:"ToolCalls,omitempty"`
}

type tencentToolCall struct {
	ID       string `json:"Id,omitempty"`
	Type     string `json:"Type,omitempty"`
	Index    int    `json:"Index,omitempty"`
	Function struct {
		Name      string `json:"Name,omitempty"`
		Arguments string `json:"Arguments,omitempty"`
	} `json:"Function"`
}

type tencentTool struct {
	Type     string `json:"Type"`
	Function struct {
		Name        string `json:"Name"`
		Description string `json:"Description,omitempty"`
		// Parameters is a JSON Schema document carried as a string.
		Parameters string `json:"Parameters"`
	} `json:"Function"`
}

func (p *TencentProtocol) BuildRequestBody(req llm.ChatRequest, stream bool) (interface{}, error) {
	body := tencentRequest{
		Model:          req.Model,
		Stream:         stream,
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		Stop:           req.Stop,
		Seed:           req.Seed,
		EnableThinking: req.EnableThinking,
	}

	for _, m := range req.Messages {
		tm := tencentMessage{
			Role:       string(m.Role),
			Content:    m.TextContent(),
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			call := tencentToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Function.Name
			call.Function.Arguments = tc.Function.Arguments
			tm.ToolCalls = append(tm.ToolCalls, call)
		}
		body.Messages = append(body.Messages, tm)
	}

	for _, t := range req.Tools {
		tt := tencentTool{Type: "function"}
		tt.Function.Name = t.Function.Name
		tt.Function.Description = t.Function.Description
		tt.Function.Parameters = string(t.Function.Parameters)
		body.Tools = append(body.Tools, tt)
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Kind {
		case llm.ToolChoiceKindAuto:
			body.ToolChoice = "auto"
		case llm.ToolChoiceKindNone:
			body.ToolChoice = "none"
		case llm.ToolChoiceKindNamed, llm.ToolChoiceKindRequired:
			body.ToolChoice = "custom"
		}
	}

	return body, nil
}

type tencentChoice struct {
	Message struct {
		Role             string            `json:"Role"`
		Content          string            `json:"Content"`
		ReasoningContent string            `json:"ReasoningContent"`
		ToolCalls        []tencentToolCall `json:"ToolCalls"`
	} `json:"Message"`
	Delta struct {
		Role             string            `json:"Role"`
		Content          string            `json:"Content"`
		ReasoningContent string            `json:"ReasoningContent"`
		ToolCalls        []tencentToolCall `json:"ToolCalls"`
	} `json:"Delta"`
	FinishReason string `json:"FinishReason"`
}

type tencentUsage struct {
	PromptTokens     int `json:"PromptTokens"`
	CompletionTokens int `json:"CompletionTokens"`
	TotalTokens      int `json:"TotalTokens"`
}

type tencentResponseBody struct {
	RequestID string          `json:"RequestId"`
	ID        string          `json:"Id"`
	Created   int64           `json:"Created"`
	Choices   []tencentChoice `json:"Choices"`
	Usage     tencentUsage    `json:"Usage"`
	Error     *struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	} `json:"Error"`
}

func (p *TencentProtocol) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	var envelope struct {
		Response tencentResponseBody `json:"Response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, llm.NewParseError(p.Name(), "decoding chat completions response", string(body))
	}
	resp := envelope.Response

	if resp.Error != nil {
		return nil, p.mapAPIError(resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewError(llm.ErrorParse, p.Name(), "response contained no choices")
	}

	choices := make([]llm.Choice, 0, len(resp.Choices))
	var reasoning string
	for i, c := range resp.Choices {
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

	id := resp.ID
	if id == "" {
		id = resp.RequestID
	}

	return &llm.ChatResponse{
		ID:               id,
		Object:           "chat.completion",
		Created:          resp.Created,
		Choices:          choices,
		Content:          projectContent(choices[0].Message.TextContent(), reasoning),
		ReasoningContent: reasoning,
		Usage:            toUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens),
	}, nil
}

// mapAPIError translates Tencent's in-body error codes, which arrive with a
// 200 status, into the neutral taxonomy.
func (p *TencentProtocol) mapAPIError(code, message string) *llm.Error {
	switch code {
	case "AuthFailure", "AuthFailure.SignatureFailure", "AuthFailure.SecretIdNotFound", "AuthFailure.SignatureExpire":
		return llm.NewError(llm.ErrorAuthentication, p.Name(), "credentials were rejected; check the configured secret id/key")
	case "RequestLimitExceeded":
		return llm.NewError(llm.ErrorRateLimit, p.Name(), message)
	case "InternalError":
		return llm.NewError(llm.ErrorServer, p.Name(), message)
	default:
		return llm.NewError(llm.ErrorInvalidRequest, p.Name(), fmt.Sprintf("%s: %s", code, message))
	}
}

func (p *TencentProtocol) ParseStreamResponse(frame llm.StreamFrame) (*llm.StreamingResponse, error) {
	if frame.Data == "" || frame.Data == "[DONE]" {
		return nil, nil
	}

	var ev tencentResponseBody
	if err := json.Unmarshal([]byte(frame.Data), &ev); err != nil {
		return nil, llm.NewParseError(p.Name(), "decoding stream event", frame.Data)
	}
	if ev.Error != nil {
		return nil, p.mapAPIError(ev.Error.Code, ev.Error.Message)
	}
	if len(ev.Choices) == 0 {
		return nil, nil
	}

	c := ev.Choices[0]
	delta := llm.Delta{
		Role:             llm.Role(c.Delta.Role),
		Content:          c.Delta.Content,
		ReasoningContent: c.Delta.ReasoningContent,
	}
	for _, tc := range c.Delta.ToolCalls {
		delta.ToolCalls = append(delta.ToolCalls, llm.ToolCall{
			Index:    tc.Index,
			ID:       tc.ID,
			Type:     "function",
			Function: llm.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}

	var finish *llm.FinishReason
	if c.FinishReason != "" {
		fr := mapFinishReason(c.FinishReason)
		finish = &fr
	}

	var usage *llm.Usage
	if finish != nil {
		usage = toUsage(ev.Usage.PromptTokens, ev.Usage.CompletionTokens, ev.Usage.TotalTokens)
	}

	return &llm.StreamingResponse{
		ID:               ev.ID,
		Object:           "chat.completion.chunk",
		Created:          ev.Created,
		Choices:          []llm.StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		Content:          projectContent(delta.Content, delta.ReasoningContent),
		ReasoningContent: delta.ReasoningContent,
		Usage:            usage,
	}, nil
}

func (p *TencentProtocol) Supports(capability llm.Capability) bool {
	switch capability {
	case llm.CapabilityTools, llm.CapabilityStreaming, llm.CapabilityReasoning:
		return true
	default:
		return false
	}
}

var _ llm.Protocol = (*TencentProtocol)(nil)
