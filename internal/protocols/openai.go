package protocols

import (
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// OpenAIProtocol speaks OpenAI's Chat Completions wire format. It borrows
// go-openai's request/message/response types for wire-shape fidelity (the
// same package the teacher imports in adapters/openai.go) but never uses
// the SDK's own HTTP client: bytes are produced here and handed to
// internal/transport, matching this module's single-Transport design.
type OpenAIProtocol struct{}

// NewOpenAIProtocol returns the OpenAI protocol adapter.
func NewOpenAIProtocol() *OpenAIProtocol { return &OpenAIProtocol{} }

func (p *OpenAIProtocol) Name() string { return "openai" }

func (p *OpenAIProtocol) Endpoint(baseURL string, op llm.Operation) (string, error) {
	base := strings.TrimSuffix(baseURL, "/")
	switch op {
	case llm.OperationChat:
		return base + "/chat/completions", nil
	case llm.OperationModels:
		return base + "/models", nil
	default:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), fmt.Sprintf("unknown operation %q", op))
	}
}

func (p *OpenAIProtocol) AuthHeaders(cfg llm.ProviderConfig) llm.Headers {
	return llm.Headers{{Name: "Authorization", Value: "Bearer " + cfg.APIKey}}
}

func (p *OpenAIProtocol) BuildRequestBody(req llm.ChatRequest, stream bool) (interface{}, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		cm, err := buildOpenAIMessage(m)
		if err != nil {
			return nil, err
		}
		messages = append(messages, cm)
	}

	body := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   stream,
	}
	if req.MaxTokens != nil {
		body.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		body.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		body.TopP = float32(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		body.FrequencyPenalty = float32(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		body.PresencePenalty = float32(*req.PresencePenalty)
	}
	if len(req.Stop) > 0 {
		body.Stop = req.Stop
	}
	if req.Seed != nil {
		seed := int(*req.Seed)
		body.Seed = &seed
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			var params interface{}
			_ = json.Unmarshal(t.Function.Parameters, &params)
			tools = append(tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Function.Name,
					Description: t.Function.Description,
					Parameters:  params,
				},
			})
		}
		body.Tools = tools
	}

	if req.ToolChoice != nil {
		switch req.ToolChoice.Kind {
		case llm.ToolChoiceKindAuto:
			body.ToolChoice = "auto"
		case llm.ToolChoiceKindNone:
			body.ToolChoice = "none"
		case llm.ToolChoiceKindRequired:
			body.ToolChoice = "required"
		case llm.ToolChoiceKindNamed:
			body.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: req.ToolChoice.Name},
			}
		}
	}

	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Kind {
		case llm.ResponseFormatJSONObject:
			body.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
		case llm.ResponseFormatJSONSchema:
			body.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:        req.ResponseFormat.SchemaName,
					Description: req.ResponseFormat.SchemaDescription,
					Schema:      json.RawMessage(req.ResponseFormat.Schema),
					Strict:      req.ResponseFormat.Strict,
				},
			}
		}
	}

	return body, nil
}

func buildOpenAIMessage(m llm.Message) (openai.ChatCompletionMessage, error) {
	cm := openai.ChatCompletionMessage{
		Role: string(m.Role),
		Name: m.Name,
	}

	if m.Role == llm.RoleTool {
		cm.ToolCallID = m.ToolCallID
	}

	switch {
	case len(m.ToolCalls) > 0:
		cm.Content = m.TextContent()
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	case m.HasOnlyText():
		cm.Content = m.TextContent()
	default:
		parts := make([]openai.ChatMessagePart, 0, len(m.Content))
		for _, b := range m.Content {
			switch b.Kind {
			case llm.BlockText:
				parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: b.Text})
			case llm.BlockImageURL:
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: b.ImageURL, Detail: openai.ImageURLDetail(b.ImageDetail)},
				})
			case llm.BlockImageBase64:
				dataURL := fmt.Sprintf("data:%s;base64,%s", b.ImageMediaType, b.ImageData)
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
				})
			}
		}
		cm.MultiContent = parts
	}

	return cm, nil
}

func (p *OpenAIProtocol) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, llm.NewParseError(p.Name(), "decoding chat completion response", string(body))
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewError(llm.ErrorParse, p.Name(), "response contained no choices")
	}

	reasoning := extractMessageReasoning(body)

	choices := make([]llm.Choice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		choices = append(choices, llm.Choice{
			Index:        c.Index,
			Message:      fromOpenAIMessage(c.Message),
			FinishReason: mapFinishReason(string(c.FinishReason)),
		})
	}

	return &llm.ChatResponse{
		ID:               resp.ID,
		Object:           resp.Object,
		Created:          resp.Created,
		Model:            resp.Model,
		Choices:          choices,
		Content:          projectContent(choices[0].Message.TextContent(), reasoning),
		ReasoningContent: reasoning,
		Usage:            toUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens),
		SystemFingerprint: resp.SystemFingerprint,
	}, nil
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) llm.Message {
	out := llm.Message{Role: llm.Role(m.Role), Name: m.Name, ToolCallID: m.ToolCallID}
	if m.Content != "" {
		out.Content = []llm.MessageBlock{llm.TextBlock(m.Content)}
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

func (p *OpenAIProtocol) ParseStreamResponse(frame llm.StreamFrame) (*llm.StreamingResponse, error) {
	if frame.Data == "" || frame.Data == "[DONE]" {
		return nil, nil
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(frame.Data), &chunk); err != nil {
		return nil, llm.NewParseError(p.Name(), "decoding stream chunk", frame.Data)
	}
	if len(chunk.Choices) == 0 {
		return nil, nil
	}

	choices := make([]llm.StreamChoice, 0, len(chunk.Choices))
	for i, c := range chunk.Choices {
		delta := llm.Delta{
			Role:             llm.Role(c.Delta.Role),
			Content:          c.Delta.Content,
			ReasoningContent: extractDeltaReasoning([]byte(frame.Data), i),
		}
		for _, tc := range c.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			delta.ToolCalls = append(delta.ToolCalls, llm.ToolCall{
				Index: idx,
				ID:    tc.ID,
				Type:  "function",
				Function: llm.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}

		var finish *llm.FinishReason
		if c.FinishReason != "" {
			fr := mapFinishReason(string(c.FinishReason))
			finish = &fr
		}

		choices = append(choices, llm.StreamChoice{Index: c.Index, Delta: delta, FinishReason: finish})
	}

	var usage *llm.Usage
	if chunk.Usage != nil {
		usage = toUsage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens, chunk.Usage.TotalTokens)
	}

	return &llm.StreamingResponse{
		ID:               chunk.ID,
		Object:           chunk.Object,
		Created:          chunk.Created,
		Model:            chunk.Model,
		Choices:          choices,
		Content:          projectContent(choices[0].Delta.Content, choices[0].Delta.ReasoningContent),
		ReasoningContent: choices[0].Delta.ReasoningContent,
		Usage:            usage,
	}, nil
}

func (p *OpenAIProtocol) Supports(capability llm.Capability) bool {
	switch capability {
	case llm.CapabilityModelsListing, llm.CapabilityVision, llm.CapabilityTools, llm.CapabilityStreaming, llm.CapabilityReasoning:
		return true
	default:
		return false
	}
}

var _ llm.Protocol = (*OpenAIProtocol)(nil)

// FrameSplitter reports the streaming engine's framing variant OpenAI-family
// backends use, consulted by internal/providers when wiring a stream.
func (p *OpenAIProtocol) FrameSplitter() FrameSplitterKind { return FrameSplitterSSEDoubleNewline }
