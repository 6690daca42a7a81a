// Package transport is the opaque HTTP collaborator the rest of the module
// talks through. Per the scope notes, its implementation (pooling, TLS,
// proxy) is not part of the core the protocol/provider layers exercise —
// only the Transport interface's shape is. DefaultTransport is a concrete,
// reasonable net/http-backed implementation grounded on the teacher's
// LocalAdapter, which reaches for a plain *http.Client rather than any
// third-party HTTP library — no example in the retrieval pack imports one,
// so the stdlib is the only grounded choice for this concern.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// Transport is the interface the rest of this module depends on. It is
// safe for concurrent use; its connection pool is shared across all calls.
type Transport interface {
	// PostJSON issues a JSON POST to url with the given headers (the
	// Content-Type header is always set by this call and must not appear
	// in headers) and returns the raw response body, or a mapped *llm.Error
	// on any failure.
	PostJSON(ctx context.Context, url string, headers llm.Headers, body interface{}) ([]byte, error)

	// GetJSON issues a JSON GET.
	GetJSON(ctx context.Context, url string, headers llm.Headers) ([]byte, error)

	// PostStreaming issues a JSON POST and returns the open response body
	// for the caller to frame incrementally. The caller owns closing it.
	PostStreaming(ctx context.Context, url string, headers llm.Headers, body interface{}) (io.ReadCloser, error)
}

// Config configures a DefaultTransport.
type Config struct {
	// Timeout bounds unary calls (PostJSON/GetJSON). Streaming calls rely
	// solely on context cancellation, per the concurrency model's guidance
	// that streaming deadlines should be set by the caller's context and
	// typically longer than the unary default.
	Timeout time.Duration

	// ProxyURL opts into a specific proxy. Left empty, proxying is
	// disabled entirely — the transport does not consult environment
	// proxy variables, avoiding the hazard of a stale OS proxy setting
	// causing unrelated timeouts.
	ProxyURL string
}

// DefaultTransport is the stdlib net/http-backed Transport implementation.
type DefaultTransport struct {
	unaryClient     *http.Client
	streamingClient *http.Client
}

// NewDefaultTransport builds a DefaultTransport from cfg. A zero Config
// disables proxying and uses a 60s unary timeout.
func NewDefaultTransport(cfg Config) (*DefaultTransport, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	roundTripper, err := buildRoundTripper(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}

	return &DefaultTransport{
		unaryClient: &http.Client{
			Timeout:   timeout,
			Transport: roundTripper,
		},
		// Streaming relies on context cancellation rather than a fixed
		// client timeout, since a slow-but-alive stream must not be cut
		// off at an arbitrary deadline.
		streamingClient: &http.Client{
			Transport: roundTripper,
		},
	}, nil
}

func buildRoundTripper(proxyURL string) (http.RoundTripper, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = nil // disabled by default, per the transport's proxy policy

	if proxyURL == "" {
		return base, nil
	}

	parsed, err := parseProxyURL(proxyURL)
	if err != nil {
		return nil, err
	}
	base.Proxy = http.ProxyURL(parsed)
	return base, nil
}

func (t *DefaultTransport) PostJSON(ctx context.Context, url string, headers llm.Headers, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "transport", fmt.Sprintf("marshaling request body: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "transport", fmt.Sprintf("building request: %v", err))
	}
	applyHeaders(req, headers)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.unaryClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.NewError(llm.ErrorConnection, "transport", fmt.Sprintf("reading response body: %v", err))
	}

	if resp.StatusCode >= 300 {
		return nil, NewHTTPStatusError("transport", resp.StatusCode, resp.Header.Get("Retry-After"), respBody)
	}

	return respBody, nil
}

func (t *DefaultTransport) GetJSON(ctx context.Context, url string, headers llm.Headers) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "transport", fmt.Sprintf("building request: %v", err))
	}
	applyHeaders(req, headers)

	resp, err := t.unaryClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.NewError(llm.ErrorConnection, "transport", fmt.Sprintf("reading response body: %v", err))
	}

	if resp.StatusCode >= 300 {
		return nil, NewHTTPStatusError("transport", resp.StatusCode, resp.Header.Get("Retry-After"), respBody)
	}

	return respBody, nil
}

func (t *DefaultTransport) PostStreaming(ctx context.Context, url string, headers llm.Headers, body interface{}) (io.ReadCloser, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "transport", fmt.Sprintf("marshaling request body: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "transport", fmt.Sprintf("building request: %v", err))
	}
	applyHeaders(req, headers)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.streamingClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, NewHTTPStatusError("transport", resp.StatusCode, resp.Header.Get("Retry-After"), respBody)
	}

	return resp.Body, nil
}

// DeleteJSON issues a JSON DELETE with a body. It is not part of the core
// Transport interface — only the Ollama management surface needs the verb —
// so callers type-assert for it.
func (t *DefaultTransport) DeleteJSON(ctx context.Context, url string, headers llm.Headers, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "transport", fmt.Sprintf("marshaling request body: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(raw))
	if err != nil {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "transport", fmt.Sprintf("building request: %v", err))
	}
	applyHeaders(req, headers)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.unaryClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.NewError(llm.ErrorConnection, "transport", fmt.Sprintf("reading response body: %v", err))
	}

	if resp.StatusCode >= 300 {
		return nil, NewHTTPStatusError("transport", resp.StatusCode, resp.Header.Get("Retry-After"), respBody)
	}

	return respBody, nil
}

// applyHeaders writes an ordered Headers set onto an *http.Request. It does
// not filter Content-Type; PostJSON, PostStreaming and DeleteJSON set that
// header after calling it, replacing any value from headers, so their
// requests carry exactly one.
func applyHeaders(req *http.Request, headers llm.Headers) {
	for _, h := range headers {
		req.Header.Set(h.Name, h.Value)
	}
}
