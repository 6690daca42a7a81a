package providers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// ============================================================================
// TC3-HMAC-SHA256 Signing Tests
// ============================================================================

// TestSignTC3Deterministic tests that the signature is a pure function of
// its inputs: fixed timestamp and body reproduce the same header.
func TestSignTC3Deterministic(t *testing.T) {
	const timestamp = int64(1700000000)
	payload := []byte(`{"Model":"hunyuan-turbo","Messages":[{"Role":"user","Content":"hi"}]}`)

	first := SignTC3("AKIDexample", "secretkey", "hunyuan.tencentcloudapi.com", "hunyuan", "ChatCompletions", timestamp, payload)
	second := SignTC3("AKIDexample", "secretkey", "hunyuan.tencentcloudapi.com", "hunyuan", "ChatCompletions", timestamp, payload)

	assert.Equal(t, first, second)
}

// TestSignTC3Shape tests the header's structure: algorithm tag, date-scoped
// credential, fixed signed-header list, hex signature.
func TestSignTC3Shape(t *testing.T) {
	auth := SignTC3("AKIDexample", "secretkey", "hunyuan.tencentcloudapi.com", "hunyuan", "ChatCompletions", 1700000000, []byte(`{}`))

	assert.True(t, strings.HasPrefix(auth, "TC3-HMAC-SHA256 "))
	// 1700000000 is 2023-11-14 UTC.
	assert.Contains(t, auth, "Credential=AKIDexample/2023-11-14/hunyuan/tc3_request")
	assert.Contains(t, auth, "SignedHeaders=content-type;host;x-tc-action")

	idx := strings.LastIndex(auth, "Signature=")
	require.Positive(t, idx)
	signature := auth[idx+len("Signature="):]
	assert.Len(t, signature, 64, "hex-encoded sha256 digest")
	assert.NotContains(t, signature, " ")
}

// TestSignTC3SensitiveToInputs tests that every signing input perturbs the
// signature — a deviation would otherwise pass silently.
func TestSignTC3SensitiveToInputs(t *testing.T) {
	base := SignTC3("AKIDexample", "secretkey", "hunyuan.tencentcloudapi.com", "hunyuan", "ChatCompletions", 1700000000, []byte(`{}`))

	tests := []struct {
		name string
		got  string
	}{
		{name: "different key", got: SignTC3("AKIDexample", "otherkey", "hunyuan.tencentcloudapi.com", "hunyuan", "ChatCompletions", 1700000000, []byte(`{}`))},
		{name: "different body", got: SignTC3("AKIDexample", "secretkey", "hunyuan.tencentcloudapi.com", "hunyuan", "ChatCompletions", 1700000000, []byte(`{"a":1}`))},
		{name: "different timestamp", got: SignTC3("AKIDexample", "secretkey", "hunyuan.tencentcloudapi.com", "hunyuan", "ChatCompletions", 1700003600, []byte(`{}`))},
		{name: "different host", got: SignTC3("AKIDexample", "secretkey", "other.tencentcloudapi.com", "hunyuan", "ChatCompletions", 1700000000, []byte(`{}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sigOf := func(s string) string { return s[strings.LastIndex(s, "Signature="):] }
			assert.NotEqual(t, sigOf(base), sigOf(tt.got))
		})
	}
}

// TestSignTC3EmptyBody tests the empty-payload corner: the digest of ""
// still signs cleanly.
func TestSignTC3EmptyBody(t *testing.T) {
	auth := SignTC3("AKIDexample", "secretkey", "hunyuan.tencentcloudapi.com", "hunyuan", "ChatCompletions", 1700000000, nil)
	assert.True(t, strings.HasPrefix(auth, "TC3-HMAC-SHA256 "))
}

// ============================================================================
// Tencent Provider Tests
// ============================================================================

// TestTencentProviderChatSignsRequest tests that a chat call carries the
// full signed header set and the exact payload bytes the signature covers.
func TestTencentProviderChatSignsRequest(t *testing.T) {
	tr := &fakeTransport{unaryBody: []byte(`{"Response":{"RequestId":"r1","Id":"c1","Choices":[{"Message":{"Role":"assistant","Content":"ok"},"FinishReason":"stop"}],"Usage":{"TotalTokens":2}}}`)}

	p := NewTencent("AKIDexample", "secretkey", "ap-guangzhou", tr, llm.ProviderConfig{})
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Model:    "hunyuan-turbo",
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)

	calls := tr.recorded()
	require.Len(t, calls, 1)
	headers := calls[0].Headers

	auth, ok := headers.Get("Authorization")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(auth, "TC3-HMAC-SHA256 Credential=AKIDexample/"))

	action, _ := headers.Get("X-TC-Action")
	assert.Equal(t, "ChatCompletions", action)
	version, _ := headers.Get("X-TC-Version")
	assert.Equal(t, "2023-09-01", version)
	ts, _ := headers.Get("X-TC-Timestamp")
	assert.Equal(t, "1700000000", ts)
	region, _ := headers.Get("X-TC-Region")
	assert.Equal(t, "ap-guangzhou", region)

	_, ok = headers.Get("Content-Type")
	assert.False(t, ok, "the transport owns Content-Type")
	assert.Equal(t, TencentDefaultEndpoint, calls[0].URL)
}

// TestTencentProviderCredentialOverride tests the secret_id:secret_key
// per-request override form.
func TestTencentProviderCredentialOverride(t *testing.T) {
	tr := &fakeTransport{unaryBody: []byte(`{"Response":{"Id":"c1","Choices":[{"Message":{"Role":"assistant","Content":"ok"},"FinishReason":"stop"}]}}`)}

	p := NewTencent("AKIDstatic", "statickey", "", tr, llm.ProviderConfig{})
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	_, err := p.Chat(context.Background(), llm.ChatRequest{
		Model:    "hunyuan-turbo",
		Messages: []llm.Message{llm.NewUserMessage("hi")},
		APIKey:   "AKIDtenant:tenantkey",
	})
	require.NoError(t, err)

	auth, _ := tr.recorded()[0].Headers.Get("Authorization")
	assert.Contains(t, auth, "Credential=AKIDtenant/")
}

// TestTencentProviderStream tests the streaming path end to end through
// SSE framing and PascalCase parsing.
func TestTencentProviderStream(t *testing.T) {
	tr := &fakeTransport{streamBody: "data: {\"Id\":\"c2\",\"Choices\":[{\"Delta\":{\"Role\":\"assistant\",\"Content\":\"He\"},\"FinishReason\":\"\"}]}\n\n" +
		"data: {\"Id\":\"c2\",\"Choices\":[{\"Delta\":{\"Content\":\"llo\"},\"FinishReason\":\"stop\"}],\"Usage\":{\"TotalTokens\":4}}\n\n"}

	p := NewTencent("AKIDexample", "secretkey", "ap-guangzhou", tr, llm.ProviderConfig{})
	p.now = func() time.Time { return time.Unix(1700000000, 0) }

	events, err := p.ChatStream(context.Background(), llm.ChatRequest{
		Model:    "hunyuan-turbo",
		Messages: []llm.Message{llm.NewUserMessage("hi")},
	})
	require.NoError(t, err)

	var content string
	var last *llm.StreamingResponse
	for ev := range events {
		require.NoError(t, ev.Err)
		content += ev.Chunk.Content
		last = ev.Chunk
	}
	assert.Equal(t, "Hello", content)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 4, last.Usage.TotalTokens)
}
