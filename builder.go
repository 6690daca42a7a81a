package llmconnector

import (
	"context"
	"time"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// Builder assembles a Client fluently: pick exactly one provider, then any
// shared options, then Build.
//
//	client, err := llmconnector.NewBuilder().DeepSeek(key).Timeout(60 * time.Second).Build()
type Builder struct {
	construct func(opts []Option) (*Client, error)
	opts      []Option
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) provider(construct func(opts []Option) (*Client, error)) *Builder {
	b.construct = construct
	return b
}

func (b *Builder) OpenAI(apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewOpenAI(apiKey, opts...) })
}

func (b *Builder) Anthropic(apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewAnthropic(apiKey, opts...) })
}

func (b *Builder) DashScope(apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewDashScope(apiKey, opts...) })
}

func (b *Builder) Zhipu(apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewZhipu(apiKey, opts...) })
}

func (b *Builder) DeepSeek(apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewDeepSeek(apiKey, opts...) })
}

func (b *Builder) Moonshot(apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewMoonshot(apiKey, opts...) })
}

func (b *Builder) XiaomiMiMo(apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewXiaomiMiMo(apiKey, opts...) })
}

func (b *Builder) Volcengine(apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewVolcengine(apiKey, opts...) })
}

func (b *Builder) LongCat(apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewLongCat(apiKey, opts...) })
}

func (b *Builder) LongCatAnthropic(apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewLongCatAnthropic(apiKey, opts...) })
}

func (b *Builder) Ollama() *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewOllama(opts...) })
}

func (b *Builder) Gemini(ctx context.Context, apiKey string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewGemini(ctx, apiKey) })
}

func (b *Builder) Tencent(secretID, secretKey, region string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewTencent(secretID, secretKey, region, opts...) })
}

func (b *Builder) Configurable(cfg llm.ProtocolConfig, apiKey, baseURL string) *Builder {
	return b.provider(func(opts []Option) (*Client, error) { return NewConfigurable(cfg, apiKey, baseURL, opts...) })
}

// BaseURL overrides the provider's default endpoint.
func (b *Builder) BaseURL(baseURL string) *Builder {
	b.opts = append(b.opts, WithBaseURL(baseURL))
	return b
}

// Timeout sets the unary request deadline.
func (b *Builder) Timeout(timeout time.Duration) *Builder {
	b.opts = append(b.opts, WithTimeout(timeout))
	return b
}

// Proxy opts into an explicit proxy.
func (b *Builder) Proxy(proxyURL string) *Builder {
	b.opts = append(b.opts, WithProxy(proxyURL))
	return b
}

// Header adds a default header sent on every request.
func (b *Builder) Header(name, value string) *Builder {
	b.opts = append(b.opts, WithHeader(name, value))
	return b
}

// Build constructs the Client, failing if no provider was selected.
func (b *Builder) Build() (*Client, error) {
	if b.construct == nil {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "builder", "no provider selected")
	}
	return b.construct(b.opts)
}
