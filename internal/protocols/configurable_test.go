package protocols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// TestConfigurableEndpointTemplates tests {base_url} substitution and the
// unsupported models listing when no template is declared.
func TestConfigurableEndpointTemplates(t *testing.T) {
	p, err := NewConfigurable(DeepSeekConfig())
	require.NoError(t, err)

	chat, err := p.Endpoint("https://api.deepseek.com/v1", llm.OperationChat)
	require.NoError(t, err)
	assert.Equal(t, "https://api.deepseek.com/v1/chat/completions", chat)

	models, err := p.Endpoint("https://api.deepseek.com/v1/", llm.OperationModels)
	require.NoError(t, err)
	assert.Equal(t, "https://api.deepseek.com/v1/models", models)

	noModels, err := NewConfigurable(VolcengineConfig())
	require.NoError(t, err)
	_, err = noModels.Endpoint("https://ark.example.com", llm.OperationModels)
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrorUnsupportedOp, llmErr.Kind)
	assert.False(t, noModels.Supports(llm.CapabilityModelsListing))
}

// TestConfigurableAuthVariants tests each auth scheme's header output.
func TestConfigurableAuthVariants(t *testing.T) {
	tests := []struct {
		name      string
		auth      llm.Auth
		wantName  string
		wantValue string
	}{
		{
			name:      "bearer",
			auth:      llm.Auth{Kind: llm.AuthBearer},
			wantName:  "Authorization",
			wantValue: "Bearer sk-x",
		},
		{
			name:      "api key header",
			auth:      llm.Auth{Kind: llm.AuthAPIKeyHeader, HeaderName: "x-api-key"},
			wantName:  "x-api-key",
			wantValue: "sk-x",
		},
		{
			name: "custom template",
			auth: llm.Auth{Kind: llm.AuthCustomHeaders, CustomHeaders: llm.Headers{
				{Name: "X-Auth", Value: "token {api_key} v2"},
			}},
			wantName:  "X-Auth",
			wantValue: "token sk-x v2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewConfigurable(llm.ProtocolConfig{
				Name:      "clone",
				Endpoints: llm.Endpoints{ChatTemplate: "{base_url}/chat/completions"},
				Auth:      tt.auth,
			})
			require.NoError(t, err)

			headers := p.AuthHeaders(llm.ProviderConfig{APIKey: "sk-x"})
			got, ok := headers.Get(tt.wantName)
			require.True(t, ok)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}

// TestConfigurableAuthNone tests that the none scheme emits nothing.
func TestConfigurableAuthNone(t *testing.T) {
	p, err := NewConfigurable(llm.ProtocolConfig{
		Name:      "local",
		Endpoints: llm.Endpoints{ChatTemplate: "{base_url}/chat/completions"},
		Auth:      llm.Auth{Kind: llm.AuthNone},
	})
	require.NoError(t, err)
	assert.Empty(t, p.AuthHeaders(llm.ProviderConfig{APIKey: "unused"}))
}

// TestConfigurableValidation tests the required-field checks.
func TestConfigurableValidation(t *testing.T) {
	_, err := NewConfigurable(llm.ProtocolConfig{})
	require.Error(t, err)

	_, err = NewConfigurable(llm.ProtocolConfig{Name: "x"})
	require.Error(t, err)
}

// TestConfigurableAnthropicWireFormat tests the LongCat Anthropic-format
// variant: Anthropic body shape with Bearer auth and the pinned version
// header.
func TestConfigurableAnthropicWireFormat(t *testing.T) {
	p, err := NewConfigurable(LongCatAnthropicConfig())
	require.NoError(t, err)

	headers := p.AuthHeaders(llm.ProviderConfig{APIKey: "lc-key"})
	got, ok := headers.Get("Authorization")
	require.True(t, ok)
	assert.Equal(t, "Bearer lc-key", got)
	got, ok = headers.Get("anthropic-version")
	require.True(t, ok)
	assert.Equal(t, "2023-06-01", got)

	body, err := p.BuildRequestBody(llm.ChatRequest{
		Model:    "longcat-large",
		Messages: []llm.Message{llm.NewSystemMessage("terse"), llm.NewUserMessage("hi")},
	}, false)
	require.NoError(t, err)
	wire := body.(anthropicRequest)
	assert.Equal(t, "terse", wire.System)

	assert.True(t, p.StatefulStreaming())
	assert.Equal(t, FrameSplitterEventNamedSSE, p.FrameSplitter())
}

// TestConfigurableOpenAIFormatIsStateless tests the frame-by-frame path for
// OpenAI clones.
func TestConfigurableOpenAIFormatIsStateless(t *testing.T) {
	p, err := NewConfigurable(MoonshotConfig())
	require.NoError(t, err)

	assert.False(t, p.StatefulStreaming())
	assert.Equal(t, FrameSplitterSSEDoubleNewline, p.FrameSplitter())

	chunk, err := p.ParseStreamResponse(llm.StreamFrame{Data: `{"id":"m1","choices":[{"index":0,"delta":{"content":"hi"}}]}`})
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, "hi", chunk.Content)
}

// TestConfigurableFromYAML tests that a clone can be declared entirely as a
// YAML document — the data-not-code contract.
func TestConfigurableFromYAML(t *testing.T) {
	doc := `
name: internal-gateway
endpoints:
  chat_template: "{base_url}/llm/v1/chat/completions"
  models_template: "{base_url}/llm/v1/models"
auth:
  kind: api_key_header
  header_name: X-Gateway-Key
extra_default_headers:
  - name: X-Team
    value: platform
`
	var cfg llm.ProtocolConfig
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))

	p, err := NewConfigurable(cfg)
	require.NoError(t, err)
	assert.Equal(t, "internal-gateway", p.Name())

	chat, err := p.Endpoint("https://gw.internal", llm.OperationChat)
	require.NoError(t, err)
	assert.Equal(t, "https://gw.internal/llm/v1/chat/completions", chat)

	headers := p.AuthHeaders(llm.ProviderConfig{APIKey: "gw-key"})
	got, ok := headers.Get("X-Gateway-Key")
	require.True(t, ok)
	assert.Equal(t, "gw-key", got)
	got, ok = headers.Get("X-Team")
	require.True(t, ok)
	assert.Equal(t, "platform", got)
	assert.True(t, p.Supports(llm.CapabilityModelsListing))
}
