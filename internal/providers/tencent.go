package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lipish/llm-connector-sub002/internal/protocols"
	"github.com/lipish/llm-connector-sub002/internal/streaming"
	"github.com/lipish/llm-connector-sub002/internal/transport"
	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// TencentDefaultEndpoint is the Hunyuan service host.
const TencentDefaultEndpoint = "https://hunyuan.tencentcloudapi.com"

// tc3SignedHeaders is the fixed signed-header list, lower-case and
// semicolon-joined per Tencent's published algorithm.
const tc3SignedHeaders = "content-type;host;x-tc-action"

// TencentProvider implements llm.Provider directly rather than through
// GenericProvider: every request's Authorization header is a TC3-HMAC-SHA256
// signature over the exact body bytes and timestamp, which the static
// AuthHeaders contract cannot express.
type TencentProvider struct {
	secretID  string
	secretKey string
	region    string

	protocol  *protocols.TencentProtocol
	transport transport.Transport
	config    llm.ProviderConfig

	// now is the clock used for X-TC-Timestamp; swappable in tests so
	// signatures are reproducible.
	now func() time.Time
}

// NewTencent builds a Hunyuan provider. An empty cfg.BaseURL falls back to
// the public service host.
func NewTencent(secretID, secretKey, region string, tr transport.Transport, cfg llm.ProviderConfig) *TencentProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = TencentDefaultEndpoint
	}
	return &TencentProvider{
		secretID:  secretID,
		secretKey: secretKey,
		region:    region,
		protocol:  protocols.NewTencentProtocol(),
		transport: tr,
		config:    cfg,
		now:       time.Now,
	}
}

func (p *TencentProvider) Name() string { return "tencent" }

func (p *TencentProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsTools:     true,
		SupportsStreaming: true,
		MaxContextTokens:  32000,
		MaxOutputTokens:   4096,
	}
}

func (p *TencentProvider) ListModels(ctx context.Context) ([]string, error) {
	return nil, llm.NewError(llm.ErrorUnsupportedOp, p.protocol.Name(), "model listing is not available")
}

// effective applies the per-request overrides. An APIKey override carries
// both halves of the credential as "secret_id:secret_key".
func (p *TencentProvider) effective(req llm.ChatRequest) (secretID, secretKey, baseURL string, extra llm.Headers) {
	secretID, secretKey = p.secretID, p.secretKey
	if req.APIKey != "" {
		if id, key, ok := strings.Cut(req.APIKey, ":"); ok {
			secretID, secretKey = id, key
		}
	}
	baseURL = p.config.BaseURL
	if req.BaseURL != "" {
		baseURL = req.BaseURL
	}
	return secretID, secretKey, baseURL, req.ExtraHeaders
}

// signedHeaders marshals the request body and computes the full signed
// header set for one wire request. The returned payload is the exact bytes
// the signature covers; it is handed to the transport as json.RawMessage so
// re-marshaling cannot perturb them.
func (p *TencentProvider) signedHeaders(body interface{}, secretID, secretKey, baseURL string, extra llm.Headers) (json.RawMessage, llm.Headers, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, llm.NewError(llm.ErrorInvalidRequest, p.protocol.Name(), fmt.Sprintf("marshaling request body: %v", err))
	}

	host := baseURL
	if parsed, err := url.Parse(baseURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}

	timestamp := p.now().Unix()
	authorization := SignTC3(secretID, secretKey, host, protocols.TencentService, protocols.TencentAction, timestamp, payload)

	headers := llm.Headers{
		{Name: "Authorization", Value: authorization},
		{Name: "X-TC-Action", Value: protocols.TencentAction},
		{Name: "X-TC-Version", Value: protocols.TencentVersion},
		{Name: "X-TC-Timestamp", Value: fmt.Sprintf("%d", timestamp)},
	}
	if p.region != "" {
		headers.Set("X-TC-Region", p.region)
	}
	headers = llm.Merge(p.config.DefaultHeaders, headers)
	headers = llm.Merge(headers, extra)
	return payload, headers, nil
}

func (p *TencentProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, llm.NewError(llm.ErrorInvalidRequest, p.protocol.Name(), "request has no messages")
	}

	secretID, secretKey, baseURL, extra := p.effective(req)
	endpoint, err := p.protocol.Endpoint(baseURL, llm.OperationChat)
	if err != nil {
		return nil, err
	}
	body, err := p.protocol.BuildRequestBody(req, false)
	if err != nil {
		return nil, err
	}
	payload, headers, err := p.signedHeaders(body, secretID, secretKey, baseURL, extra)
	if err != nil {
		return nil, err
	}

	raw, err := p.transport.PostJSON(ctx, endpoint, headers, payload)
	if err != nil {
		return nil, err
	}
	return p.protocol.ParseResponse(raw)
}

func (p *TencentProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	if len(req.Messages) == 0 {
		return nil, llm.NewError(llm.ErrorInvalidRequest, p.protocol.Name(), "request has no messages")
	}

	secretID, secretKey, baseURL, extra := p.effective(req)
	endpoint, err := p.protocol.Endpoint(baseURL, llm.OperationChat)
	if err != nil {
		return nil, err
	}
	body, err := p.protocol.BuildRequestBody(req, true)
	if err != nil {
		return nil, err
	}
	payload, headers, err := p.signedHeaders(body, secretID, secretKey, baseURL, extra)
	if err != nil {
		return nil, err
	}

	respBody, err := p.transport.PostStreaming(ctx, endpoint, headers, payload)
	if err != nil {
		return nil, err
	}

	frames := streaming.SplitSSEDoubleNewline(ctx, respBody)
	events := make(chan llm.StreamEvent)
	go func() {
		defer close(events)
		normalizer := streaming.NewNormalizer()
		var lastID, lastModel string
		for frame := range frames {
			chunk, err := p.protocol.ParseStreamResponse(frame)
			if err != nil {
				select {
				case events <- llm.StreamEvent{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if chunk == nil {
				continue
			}
			lastID, lastModel = chunk.ID, chunk.Model
			if normalized := normalizer.Apply(chunk); normalized != nil {
				select {
				case events <- llm.StreamEvent{Chunk: normalized}:
				case <-ctx.Done():
					return
				}
			}
		}
		if flush := normalizer.Flush(lastID, lastModel); flush != nil {
			select {
			case events <- llm.StreamEvent{Chunk: flush}:
			case <-ctx.Done():
			}
		}
	}()
	return events, nil
}

// SignTC3 computes the TC3-HMAC-SHA256 Authorization header value per
// Tencent Cloud's published algorithm: canonical request over the fixed
// content-type/host/x-tc-action header list, a date-scoped string to sign,
// and the TC3 key derivation chain. An empty payload digests the empty
// string; canonical header names are lower-case.
func SignTC3(secretID, secretKey, host, service, action string, timestamp int64, payload []byte) string {
	payloadHash := sha256Hex(payload)

	canonicalHeaders := "content-type:application/json\n" +
		"host:" + strings.ToLower(host) + "\n" +
		"x-tc-action:" + strings.ToLower(action) + "\n"

	canonicalRequest := strings.Join([]string{
		"POST",
		"/",
		"",
		canonicalHeaders,
		tc3SignedHeaders,
		payloadHash,
	}, "\n")

	date := time.Unix(timestamp, 0).UTC().Format("2006-01-02")
	credentialScope := date + "/" + service + "/tc3_request"
	stringToSign := strings.Join([]string{
		"TC3-HMAC-SHA256",
		fmt.Sprintf("%d", timestamp),
		credentialScope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	secretDate := hmacSHA256([]byte("TC3"+secretKey), date)
	secretService := hmacSHA256(secretDate, service)
	secretSigning := hmacSHA256(secretService, "tc3_request")
	signature := hex.EncodeToString(hmacSHA256(secretSigning, stringToSign))

	return fmt.Sprintf("TC3-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		secretID, credentialScope, tc3SignedHeaders, signature)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

var _ llm.Provider = (*TencentProvider)(nil)
