package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// geminiModelCapabilities maps known model names to their limits.
var geminiModelCapabilities = map[string]llm.Capabilities{
	"gemini-2.0-flash": {
		SupportsTools:     true,
		SupportsStreaming: true,
		SupportsVision:    true,
		MaxContextTokens:  1048576,
		MaxOutputTokens:   8192,
	},
	"gemini-2.5-pro": {
		SupportsTools:     true,
		SupportsStreaming: true,
		SupportsVision:    true,
		MaxContextTokens:  1048576,
		MaxOutputTokens:   65536,
	},
	"gemini-2.5-flash": {
		SupportsTools:     true,
		SupportsStreaming: true,
		SupportsVision:    true,
		MaxContextTokens:  1048576,
		MaxOutputTokens:   65536,
	},
}

var defaultGeminiCapabilities = llm.Capabilities{
	SupportsTools:     true,
	SupportsStreaming: true,
	SupportsVision:    true,
	MaxContextTokens:  128000,
	MaxOutputTokens:   8192,
}

// GeminiProvider speaks Google's Gemini API through the official genai SDK,
// which owns the alt=sse streaming transport and the x-goog-api-key auth
// header. It implements llm.Provider directly: the SDK's client replaces
// the module's generic transport composition for this one backend.
type GeminiProvider struct {
	client *genai.Client
	apiKey string
}

// NewGemini builds a Gemini provider from an API key.
func NewGemini(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, llm.NewError(llm.ErrorAuthentication, "gemini", "an API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llm.NewError(llm.ErrorConnection, "gemini", fmt.Sprintf("creating client: %v", err))
	}
	return &GeminiProvider{client: client, apiKey: apiKey}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Capabilities() llm.Capabilities {
	return defaultGeminiCapabilities
}

// CapabilitiesFor looks up the limits of one model.
func (p *GeminiProvider) CapabilitiesFor(model string) llm.Capabilities {
	if caps, ok := geminiModelCapabilities[model]; ok {
		return caps
	}
	for prefix, caps := range geminiModelCapabilities {
		if strings.HasPrefix(model, prefix) {
			return caps
		}
	}
	return defaultGeminiCapabilities
}

func (p *GeminiProvider) ListModels(ctx context.Context) ([]string, error) {
	return nil, llm.NewError(llm.ErrorUnsupportedOp, "gemini", "model listing is not available")
}

// clientFor honors the per-request overrides: an api_key or base_url
// override gets a request-scoped client; otherwise the shared one is used.
// Nothing on p changes either way.
func (p *GeminiProvider) clientFor(ctx context.Context, req llm.ChatRequest) (*genai.Client, error) {
	if req.APIKey == "" && req.BaseURL == "" && len(req.ExtraHeaders) == 0 {
		return p.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if req.APIKey != "" {
		cfg.APIKey = req.APIKey
	}
	if req.BaseURL != "" || len(req.ExtraHeaders) > 0 {
		headers := http.Header{}
		for _, h := range req.ExtraHeaders {
			headers.Set(h.Name, h.Value)
		}
		cfg.HTTPOptions = genai.HTTPOptions{
			BaseURL: req.BaseURL,
			Headers: headers,
		}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, llm.NewError(llm.ErrorConnection, "gemini", fmt.Sprintf("creating client: %v", err))
	}
	return client, nil
}

func (p *GeminiProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "gemini", "request has no messages")
	}

	client, err := p.clientFor(ctx, req)
	if err != nil {
		return nil, err
	}

	contents, system := convertGeminiMessages(req.Messages)
	config := buildGeminiConfig(req, system)

	result, err := client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, wrapGeminiError(err)
	}
	return convertGeminiResponse(req.Model, result)
}

func (p *GeminiProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	if len(req.Messages) == 0 {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "gemini", "request has no messages")
	}

	client, err := p.clientFor(ctx, req)
	if err != nil {
		return nil, err
	}

	contents, system := convertGeminiMessages(req.Messages)
	config := buildGeminiConfig(req, system)

	events := make(chan llm.StreamEvent)
	go func() {
		defer close(events)
		for result, err := range client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
			if err != nil {
				select {
				case events <- llm.StreamEvent{Err: wrapGeminiError(err)}:
				case <-ctx.Done():
				}
				return
			}
			chunk := convertGeminiStreamChunk(req.Model, result)
			if chunk == nil {
				continue
			}
			select {
			case events <- llm.StreamEvent{Chunk: chunk}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// convertGeminiMessages maps the neutral conversation onto Gemini contents,
// splitting out the system instruction.
func convertGeminiMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = &genai.Content{Parts: []*genai.Part{{Text: msg.TextContent()}}}

		case llm.RoleAssistant:
			content := &genai.Content{Role: "model"}
			if text := msg.TextContent(); text != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: text})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Function.Name, Args: args},
				})
			}
			contents = append(contents, content)

		case llm.RoleTool:
			var response map[string]any
			if err := json.Unmarshal([]byte(msg.TextContent()), &response); err != nil {
				response = map[string]any{"output": msg.TextContent()}
			}
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{Name: msg.Name, Response: response},
				}},
			})

		default:
			content := &genai.Content{Role: "user"}
			for _, b := range msg.Content {
				switch b.Kind {
				case llm.BlockText:
					content.Parts = append(content.Parts, &genai.Part{Text: b.Text})
				case llm.BlockImageBase64:
					// Blob carries raw bytes; the SDK re-encodes on the wire.
					data, err := base64.StdEncoding.DecodeString(b.ImageData)
					if err != nil {
						data = []byte(b.ImageData)
					}
					content.Parts = append(content.Parts, &genai.Part{
						InlineData: &genai.Blob{MIMEType: b.ImageMediaType, Data: data},
					})
				case llm.BlockImageURL:
					content.Parts = append(content.Parts, &genai.Part{
						FileData: &genai.FileData{FileURI: b.ImageURL},
					})
				}
			}
			contents = append(contents, content)
		}
	}

	return contents, system
}

func buildGeminiConfig(req llm.ChatRequest, system *genai.Content) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if system != nil {
		config.SystemInstruction = system
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.TopP != nil {
		config.TopP = genai.Ptr(float32(*req.TopP))
	}
	if len(req.Stop) > 0 {
		config.StopSequences = req.Stop
	}

	for _, tool := range req.Tools {
		decl := &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if tool.Function.Parameters != nil {
			decl.ParametersJsonSchema = tool.Function.Parameters
		}
		config.Tools = append(config.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{decl},
		})
	}

	return config
}

func convertGeminiResponse(model string, result *genai.GenerateContentResponse) (*llm.ChatResponse, error) {
	if len(result.Candidates) == 0 {
		return nil, llm.NewError(llm.ErrorParse, "gemini", "response contained no candidates")
	}
	candidate := result.Candidates[0]

	msg := llm.Message{Role: llm.RoleAssistant}
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				msg.Content = append(msg.Content, llm.TextBlock(part.Text))
			}
			if part.FunctionCall != nil {
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:       "call_" + uuid.NewString(),
					Type:     "function",
					Function: llm.FunctionCall{Name: part.FunctionCall.Name, Arguments: string(argsJSON)},
				})
			}
		}
	}

	resp := &llm.ChatResponse{
		ID:      "gemini-" + uuid.NewString(),
		Object:  "chat.completion",
		Model:   model,
		Choices: []llm.Choice{{Index: 0, Message: msg, FinishReason: convertGeminiFinishReason(candidate.FinishReason)}},
	}
	resp.Content = msg.TextContent()
	if result.UsageMetadata != nil {
		resp.Usage = &llm.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	return resp, nil
}

func convertGeminiStreamChunk(model string, result *genai.GenerateContentResponse) *llm.StreamingResponse {
	if len(result.Candidates) == 0 {
		return nil
	}
	candidate := result.Candidates[0]

	delta := llm.Delta{}
	if candidate.Content != nil {
		for i, part := range candidate.Content.Parts {
			if part.Text != "" {
				delta.Content += part.Text
			}
			if part.FunctionCall != nil {
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				delta.ToolCalls = append(delta.ToolCalls, llm.ToolCall{
					Index:    i,
					ID:       "call_" + uuid.NewString(),
					Type:     "function",
					Function: llm.FunctionCall{Name: part.FunctionCall.Name, Arguments: string(argsJSON)},
				})
			}
		}
	}

	var finish *llm.FinishReason
	if candidate.FinishReason != "" {
		fr := convertGeminiFinishReason(candidate.FinishReason)
		finish = &fr
	}

	var usage *llm.Usage
	if result.UsageMetadata != nil {
		usage = &llm.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}

	return &llm.StreamingResponse{
		Object:  "chat.completion.chunk",
		Model:   model,
		Choices: []llm.StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		Content: delta.Content,
		Usage:   usage,
	}
}

func convertGeminiFinishReason(reason genai.FinishReason) llm.FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return llm.FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return llm.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist:
		return llm.FinishReasonContentFilter
	default:
		if reason != "" {
			return llm.FinishReasonOther(string(reason))
		}
		return ""
	}
}

func wrapGeminiError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key"):
		return &llm.Error{Kind: llm.ErrorAuthentication, Protocol: "gemini", Message: "credentials were rejected; check the configured API key", Wrapped: err}
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return &llm.Error{Kind: llm.ErrorRateLimit, Protocol: "gemini", Message: msg, Wrapped: err}
	case strings.Contains(msg, "context") && strings.Contains(msg, "token"):
		return &llm.Error{Kind: llm.ErrorContextLength, Protocol: "gemini", Message: msg, Wrapped: err}
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return &llm.Error{Kind: llm.ErrorTimeout, Protocol: "gemini", Message: "request timed out; increase timeout for long streams", Wrapped: err}
	default:
		return &llm.Error{Kind: llm.ErrorServer, Protocol: "gemini", Message: msg, Wrapped: err}
	}
}

var _ llm.Provider = (*GeminiProvider)(nil)
