// Package llmconnector is a unified client for LLM chat services: one
// provider-neutral request and response model, synchronous or streamed,
// against heterogeneous backends whose wire formats, authentication,
// streaming framing, and error taxonomies all differ. The neutral types and
// contracts live in pkg/llm; this package is the facade that wires protocol
// adapters to the HTTP transport and hands back a ready Client.
package llmconnector

import (
	"context"
	"os"
	"time"

	"github.com/lipish/llm-connector-sub002/internal/protocols"
	"github.com/lipish/llm-connector-sub002/internal/providers"
	"github.com/lipish/llm-connector-sub002/internal/transport"
	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// Default base URLs per provider.
const (
	OpenAIBaseURL           = "https://api.openai.com/v1"
	AnthropicBaseURL        = "https://api.anthropic.com"
	DashScopeBaseURL        = "https://dashscope.aliyuncs.com"
	ZhipuBaseURL            = "https://open.bigmodel.cn/api/paas/v4"
	DeepSeekBaseURL         = "https://api.deepseek.com/v1"
	MoonshotBaseURL         = "https://api.moonshot.cn/v1"
	XiaomiMiMoBaseURL       = "https://api.xiaomimimo.com/v1"
	VolcengineBaseURL       = "https://ark.cn-beijing.volces.com/api/v3"
	LongCatBaseURL          = "https://api.longcat.chat/openai/v1"
	LongCatAnthropicBaseURL = "https://api.longcat.chat/anthropic"
)

// Aliases for the provider-specific surfaces reachable through the
// down-cast accessors.
type (
	OllamaProvider  = providers.OllamaProvider
	GeminiProvider  = providers.GeminiProvider
	TencentProvider = providers.TencentProvider
	MockProvider    = providers.MockProvider
)

// Client is the facade over one configured Provider.
type Client struct {
	provider llm.Provider
}

// NewClient wraps an already-constructed Provider.
func NewClient(provider llm.Provider) *Client {
	return &Client{provider: provider}
}

// Provider returns the underlying provider.
func (c *Client) Provider() llm.Provider { return c.provider }

// Name returns the provider's tag.
func (c *Client) Name() string { return c.provider.Name() }

// Capabilities reports what the provider supports.
func (c *Client) Capabilities() llm.Capabilities { return c.provider.Capabilities() }

// Chat issues a unary chat call.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return c.provider.Chat(ctx, req)
}

// ChatStream issues a streaming chat call; the returned channel closes when
// the stream ends.
func (c *Client) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	return c.provider.ChatStream(ctx, req)
}

// ListModels lists the backend's models, when the provider supports it.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	return c.provider.ListModels(ctx)
}

// Down-cast accessors. Each returns (nil, false) when the client wraps a
// different provider.

func (c *Client) AsOllama() (*OllamaProvider, bool) {
	p, ok := c.provider.(*providers.OllamaProvider)
	return p, ok
}

func (c *Client) AsGemini() (*GeminiProvider, bool) {
	p, ok := c.provider.(*providers.GeminiProvider)
	return p, ok
}

func (c *Client) AsTencent() (*TencentProvider, bool) {
	p, ok := c.provider.(*providers.TencentProvider)
	return p, ok
}

func (c *Client) AsMock() (*MockProvider, bool) {
	p, ok := c.provider.(*providers.MockProvider)
	return p, ok
}

// Option adjusts the provider configuration a named constructor starts
// from.
type Option func(*options)

type options struct {
	baseURL string
	timeout time.Duration
	proxy   string
	headers llm.Headers
}

// WithBaseURL overrides the provider's default endpoint.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithTimeout sets the unary request deadline. Streaming calls are bounded
// by the caller's context instead and should generally be allowed longer.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// WithProxy opts into an explicit proxy; proxying is otherwise disabled,
// including system-environment proxy detection.
func WithProxy(proxyURL string) Option {
	return func(o *options) { o.proxy = proxyURL }
}

// WithHeader adds a default header sent on every request from this client.
func WithHeader(name, value string) Option {
	return func(o *options) { o.headers.Set(name, value) }
}

func buildOptions(defaultBaseURL string, opts []Option) (llm.ProviderConfig, transport.Config) {
	o := options{baseURL: defaultBaseURL}
	for _, opt := range opts {
		opt(&o)
	}
	cfg := llm.ProviderConfig{
		BaseURL:        o.baseURL,
		DefaultHeaders: o.headers,
	}
	tc := transport.Config{
		Timeout:  o.timeout,
		ProxyURL: o.proxy,
	}
	return cfg, tc
}

func newGenericClient(name string, protocol llm.Protocol, apiKey, defaultBaseURL string, caps llm.Capabilities, opts []Option) (*Client, error) {
	cfg, tc := buildOptions(defaultBaseURL, opts)
	cfg.APIKey = apiKey
	tr, err := transport.NewDefaultTransport(tc)
	if err != nil {
		return nil, err
	}
	return NewClient(providers.NewGeneric(name, protocol, tr, cfg, caps)), nil
}

func openAIFamilyCaps() llm.Capabilities {
	return llm.Capabilities{
		SupportsTools:     true,
		SupportsStreaming: true,
		SupportsVision:    true,
		MaxContextTokens:  128000,
		MaxOutputTokens:   16384,
	}
}

// NewOpenAI builds a client for OpenAI's Chat Completions API.
func NewOpenAI(apiKey string, opts ...Option) (*Client, error) {
	return newGenericClient("openai", protocols.NewOpenAIProtocol(), apiKey, OpenAIBaseURL, openAIFamilyCaps(), opts)
}

// NewAnthropic builds a client for Anthropic's Messages API.
func NewAnthropic(apiKey string, opts ...Option) (*Client, error) {
	caps := llm.Capabilities{
		SupportsTools:     true,
		SupportsStreaming: true,
		SupportsVision:    true,
		MaxContextTokens:  200000,
		MaxOutputTokens:   8192,
	}
	return newGenericClient("anthropic", protocols.NewAnthropicProtocol(), apiKey, AnthropicBaseURL, caps, opts)
}

// NewDashScope builds a client for Aliyun DashScope.
func NewDashScope(apiKey string, opts ...Option) (*Client, error) {
	caps := llm.Capabilities{
		SupportsTools:     true,
		SupportsStreaming: true,
		MaxContextTokens:  131072,
		MaxOutputTokens:   8192,
	}
	return newGenericClient("dashscope", protocols.NewDashScopeProtocol(), apiKey, DashScopeBaseURL, caps, opts)
}

// NewZhipu builds a client for Zhipu GLM.
func NewZhipu(apiKey string, opts ...Option) (*Client, error) {
	caps := llm.Capabilities{
		SupportsTools:     true,
		SupportsStreaming: true,
		SupportsVision:    true,
		MaxContextTokens:  128000,
		MaxOutputTokens:   8192,
	}
	return newGenericClient("zhipu", protocols.NewZhipuProtocol(), apiKey, ZhipuBaseURL, caps, opts)
}

// NewOllama builds a client for a local Ollama daemon.
func NewOllama(opts ...Option) (*Client, error) {
	cfg, tc := buildOptions(providers.OllamaDefaultBaseURL, opts)
	tr, err := transport.NewDefaultTransport(tc)
	if err != nil {
		return nil, err
	}
	return NewClient(providers.NewOllama(tr, cfg)), nil
}

// NewGemini builds a client for Google's Gemini API via the official SDK.
func NewGemini(ctx context.Context, apiKey string) (*Client, error) {
	provider, err := providers.NewGemini(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return NewClient(provider), nil
}

// NewTencent builds a client for Tencent Cloud's native Hunyuan API.
func NewTencent(secretID, secretKey, region string, opts ...Option) (*Client, error) {
	cfg, tc := buildOptions(providers.TencentDefaultEndpoint, opts)
	tr, err := transport.NewDefaultTransport(tc)
	if err != nil {
		return nil, err
	}
	return NewClient(providers.NewTencent(secretID, secretKey, region, tr, cfg)), nil
}

// NewMock builds a client over a scripted mock provider for tests.
func NewMock() (*Client, *MockProvider) {
	mock := providers.NewMock()
	return NewClient(mock), mock
}

// NewConfigurable builds a client for any OpenAI- or Anthropic-compatible
// clone described by cfg; see llm.ProtocolConfig.
func NewConfigurable(cfg llm.ProtocolConfig, apiKey, baseURL string, opts ...Option) (*Client, error) {
	protocol, err := protocols.NewConfigurable(cfg)
	if err != nil {
		return nil, err
	}
	return newGenericClient(cfg.Name, protocol, apiKey, baseURL, openAIFamilyCaps(), opts)
}

// NewDeepSeek builds a client for DeepSeek.
func NewDeepSeek(apiKey string, opts ...Option) (*Client, error) {
	return NewConfigurable(protocols.DeepSeekConfig(), apiKey, DeepSeekBaseURL, opts...)
}

// NewMoonshot builds a client for Moonshot.
func NewMoonshot(apiKey string, opts ...Option) (*Client, error) {
	return NewConfigurable(protocols.MoonshotConfig(), apiKey, MoonshotBaseURL, opts...)
}

// NewXiaomiMiMo builds a client for Xiaomi MiMo.
func NewXiaomiMiMo(apiKey string, opts ...Option) (*Client, error) {
	return NewConfigurable(protocols.XiaomiMiMoConfig(), apiKey, XiaomiMiMoBaseURL, opts...)
}

// NewVolcengine builds a client for Volcengine Ark.
func NewVolcengine(apiKey string, opts ...Option) (*Client, error) {
	return NewConfigurable(protocols.VolcengineConfig(), apiKey, VolcengineBaseURL, opts...)
}

// NewLongCat builds a client for LongCat's OpenAI-format deployment.
func NewLongCat(apiKey string, opts ...Option) (*Client, error) {
	return NewConfigurable(protocols.LongCatConfig(), apiKey, LongCatBaseURL, opts...)
}

// NewLongCatAnthropic builds a client for LongCat's Anthropic-format
// deployment, which keeps Bearer auth.
func NewLongCatAnthropic(apiKey string, opts ...Option) (*Client, error) {
	return NewConfigurable(protocols.LongCatAnthropicConfig(), apiKey, LongCatAnthropicBaseURL, opts...)
}

// FromEnv convenience constructors. Each reads the provider's conventional
// environment variable and fails with an AuthenticationError when unset.

func fromEnv(name, envVar string, build func(string) (*Client, error)) (*Client, error) {
	key := os.Getenv(envVar)
	if key == "" {
		return nil, llm.NewError(llm.ErrorAuthentication, name, envVar+" is not set")
	}
	return build(key)
}

// OpenAIFromEnv reads OPENAI_API_KEY.
func OpenAIFromEnv(opts ...Option) (*Client, error) {
	return fromEnv("openai", "OPENAI_API_KEY", func(key string) (*Client, error) { return NewOpenAI(key, opts...) })
}

// AnthropicFromEnv reads ANTHROPIC_API_KEY.
func AnthropicFromEnv(opts ...Option) (*Client, error) {
	return fromEnv("anthropic", "ANTHROPIC_API_KEY", func(key string) (*Client, error) { return NewAnthropic(key, opts...) })
}

// DashScopeFromEnv reads DASHSCOPE_API_KEY.
func DashScopeFromEnv(opts ...Option) (*Client, error) {
	return fromEnv("dashscope", "DASHSCOPE_API_KEY", func(key string) (*Client, error) { return NewDashScope(key, opts...) })
}

// ZhipuFromEnv reads ZHIPU_API_KEY.
func ZhipuFromEnv(opts ...Option) (*Client, error) {
	return fromEnv("zhipu", "ZHIPU_API_KEY", func(key string) (*Client, error) { return NewZhipu(key, opts...) })
}

// DeepSeekFromEnv reads DEEPSEEK_API_KEY.
func DeepSeekFromEnv(opts ...Option) (*Client, error) {
	return fromEnv("deepseek", "DEEPSEEK_API_KEY", func(key string) (*Client, error) { return NewDeepSeek(key, opts...) })
}

// MoonshotFromEnv reads MOONSHOT_API_KEY.
func MoonshotFromEnv(opts ...Option) (*Client, error) {
	return fromEnv("moonshot", "MOONSHOT_API_KEY", func(key string) (*Client, error) { return NewMoonshot(key, opts...) })
}

// GeminiFromEnv reads GEMINI_API_KEY.
func GeminiFromEnv(ctx context.Context) (*Client, error) {
	return fromEnv("gemini", "GEMINI_API_KEY", func(key string) (*Client, error) { return NewGemini(ctx, key) })
}
