package protocols

import (
	"fmt"
	"strings"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// ConfigurableProtocol is an OpenAI-compatible (or Anthropic-compatible)
// adapter defined entirely by data: endpoint templates with {base_url}
// substitution and an auth scheme. New providers whose only differences
// from the reference wire format are URL shape and auth headers are
// declared as a ProtocolConfig — typically unmarshaled from YAML — rather
// than coded.
type ConfigurableProtocol struct {
	cfg       llm.ProtocolConfig
	openai    OpenAIProtocol
	anthropic AnthropicProtocol
}

// NewConfigurable builds a protocol from cfg. The config's name must be
// non-empty; it becomes the protocol's error/log tag.
func NewConfigurable(cfg llm.ProtocolConfig) (*ConfigurableProtocol, error) {
	if cfg.Name == "" {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "configurable", "protocol config requires a name")
	}
	if cfg.Endpoints.ChatTemplate == "" {
		return nil, llm.NewError(llm.ErrorInvalidRequest, cfg.Name, "protocol config requires a chat endpoint template")
	}
	return &ConfigurableProtocol{cfg: cfg}, nil
}

func (p *ConfigurableProtocol) Name() string { return p.cfg.Name }

func (p *ConfigurableProtocol) Endpoint(baseURL string, op llm.Operation) (string, error) {
	base := strings.TrimSuffix(baseURL, "/")
	switch op {
	case llm.OperationChat:
		return strings.ReplaceAll(p.cfg.Endpoints.ChatTemplate, "{base_url}", base), nil
	case llm.OperationModels:
		if p.cfg.Endpoints.ModelsTemplate == "" {
			return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), "model listing is not available")
		}
		return strings.ReplaceAll(p.cfg.Endpoints.ModelsTemplate, "{base_url}", base), nil
	default:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), fmt.Sprintf("unknown operation %q", op))
	}
}

func (p *ConfigurableProtocol) AuthHeaders(cfg llm.ProviderConfig) llm.Headers {
	var headers llm.Headers
	switch p.cfg.Auth.Kind {
	case llm.AuthBearer:
		headers.Set("Authorization", "Bearer "+cfg.APIKey)
	case llm.AuthAPIKeyHeader:
		headers.Set(p.cfg.Auth.HeaderName, cfg.APIKey)
	case llm.AuthCustomHeaders:
		for _, h := range p.cfg.Auth.CustomHeaders {
			headers.Set(h.Name, strings.ReplaceAll(h.Value, "{api_key}", cfg.APIKey))
		}
	case llm.AuthNone:
	}
	for _, h := range p.cfg.ExtraDefaultHeaders {
		headers.Set(h.Name, h.Value)
	}
	return headers
}

func (p *ConfigurableProtocol) BuildRequestBody(req llm.ChatRequest, stream bool) (interface{}, error) {
	if p.cfg.AnthropicWireFormat {
		return p.anthropic.BuildRequestBody(req, stream)
	}
	return p.openai.BuildRequestBody(req, stream)
}

func (p *ConfigurableProtocol) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	if p.cfg.AnthropicWireFormat {
		return p.retag(p.anthropic.ParseResponse(body))
	}
	return p.retag(p.openai.ParseResponse(body))
}

func (p *ConfigurableProtocol) retag(resp *llm.ChatResponse, err error) (*llm.ChatResponse, error) {
	if err != nil {
		if e, ok := err.(*llm.Error); ok {
			e.Protocol = p.Name()
		}
		return nil, err
	}
	return resp, nil
}

func (p *ConfigurableProtocol) ParseStreamResponse(frame llm.StreamFrame) (*llm.StreamingResponse, error) {
	var chunk *llm.StreamingResponse
	var err error
	if p.cfg.AnthropicWireFormat {
		chunk, err = p.anthropic.ParseStreamResponse(frame)
	} else {
		chunk, err = p.openai.ParseStreamResponse(frame)
	}
	if err != nil {
		if e, ok := err.(*llm.Error); ok {
			e.Protocol = p.Name()
		}
		return nil, err
	}
	return chunk, nil
}

// NewStreamParser delegates to the Anthropic event machine for
// Anthropic-format clones; OpenAI-format clones are stateless per frame and
// get the generic tool-call normalization from the provider layer.
func (p *ConfigurableProtocol) NewStreamParser() StreamParser {
	return p.anthropic.NewStreamParser()
}

func (p *ConfigurableProtocol) Supports(capability llm.Capability) bool {
	switch capability {
	case llm.CapabilityModelsListing:
		return p.cfg.Endpoints.ModelsTemplate != ""
	case llm.CapabilityTools, llm.CapabilityStreaming, llm.CapabilityReasoning, llm.CapabilityVision:
		return true
	default:
		return false
	}
}

// FrameSplitter follows the wire format: Anthropic clones use event-named
// SSE, OpenAI clones the double-newline form.
func (p *ConfigurableProtocol) FrameSplitter() FrameSplitterKind {
	if p.cfg.AnthropicWireFormat {
		return FrameSplitterEventNamedSSE
	}
	return FrameSplitterSSEDoubleNewline
}

// StatefulStreaming reports whether this clone needs the per-stream parser.
// The provider layer consults this before a blind StreamParserFactory type
// assertion, since only the Anthropic wire format is stateful; OpenAI-format
// clones take the frame-by-frame path with generic tool-call normalization.
func (p *ConfigurableProtocol) StatefulStreaming() bool { return p.cfg.AnthropicWireFormat }

var _ llm.Protocol = (*ConfigurableProtocol)(nil)
var _ StreamParserFactory = (*ConfigurableProtocol)(nil)
var _ StreamFramer = (*ConfigurableProtocol)(nil)

// Predefined clone configurations. Default base URLs live with the facade's
// named constructors; templates here only shape the path.

// DeepSeekConfig describes DeepSeek's OpenAI-compatible API.
func DeepSeekConfig() llm.ProtocolConfig {
	return llm.ProtocolConfig{
		Name: "deepseek",
		Endpoints: llm.Endpoints{
			ChatTemplate:   "{base_url}/chat/completions",
			ModelsTemplate: "{base_url}/models",
		},
		Auth: llm.Auth{Kind: llm.AuthBearer},
	}
}

// MoonshotConfig describes Moonshot's OpenAI-compatible API.
func MoonshotConfig() llm.ProtocolConfig {
	return llm.ProtocolConfig{
		Name: "moonshot",
		Endpoints: llm.Endpoints{
			ChatTemplate:   "{base_url}/chat/completions",
			ModelsTemplate: "{base_url}/models",
		},
		Auth: llm.Auth{Kind: llm.AuthBearer},
	}
}

// XiaomiMiMoConfig describes Xiaomi MiMo's OpenAI-compatible API.
func XiaomiMiMoConfig() llm.ProtocolConfig {
	return llm.ProtocolConfig{
		Name: "xiaomi-mimo",
		Endpoints: llm.Endpoints{
			ChatTemplate: "{base_url}/chat/completions",
		},
		Auth: llm.Auth{Kind: llm.AuthBearer},
	}
}

// VolcengineConfig describes Volcengine Ark's OpenAI-compatible API.
func VolcengineConfig() llm.ProtocolConfig {
	return llm.ProtocolConfig{
		Name: "volcengine",
		Endpoints: llm.Endpoints{
			ChatTemplate: "{base_url}/chat/completions",
		},
		Auth: llm.Auth{Kind: llm.AuthBearer},
	}
}

// LongCatConfig describes LongCat's OpenAI-format deployment.
func LongCatConfig() llm.ProtocolConfig {
	return llm.ProtocolConfig{
		Name: "longcat",
		Endpoints: llm.Endpoints{
			ChatTemplate: "{base_url}/chat/completions",
		},
		Auth: llm.Auth{Kind: llm.AuthBearer},
	}
}

// LongCatAnthropicConfig describes LongCat's Anthropic-format deployment,
// which keeps Bearer auth rather than x-api-key.
func LongCatAnthropicConfig() llm.ProtocolConfig {
	return llm.ProtocolConfig{
		Name: "longcat-anthropic",
		Endpoints: llm.Endpoints{
			ChatTemplate: "{base_url}/v1/messages",
		},
		Auth:                llm.Auth{Kind: llm.AuthBearer},
		ExtraDefaultHeaders: llm.Headers{{Name: "anthropic-version", Value: "2023-06-01"}},
		AnthropicWireFormat: true,
	}
}
