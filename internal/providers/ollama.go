package providers

import (
	"context"
	"encoding/json"

	"github.com/lipish/llm-connector-sub002/internal/protocols"
	"github.com/lipish/llm-connector-sub002/internal/streaming"
	"github.com/lipish/llm-connector-sub002/internal/transport"
	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// OllamaDefaultBaseURL is the local daemon's address.
const OllamaDefaultBaseURL = "http://localhost:11434"

// jsonDeleter is the optional transport surface the model-management
// DELETE verb needs; the default transport implements it.
type jsonDeleter interface {
	DeleteJSON(ctx context.Context, url string, headers llm.Headers, body interface{}) ([]byte, error)
}

// OllamaProvider wraps the generic composition with two surfaces the
// generic contract doesn't cover: a native streaming mode that hands the
// daemon's own chunk shape to the consumer unconverted, and the local
// model-management CRUD (pull, push, delete, show, list).
type OllamaProvider struct {
	*GenericProvider

	protocol  *protocols.OllamaProtocol
	transport transport.Transport
	config    llm.ProviderConfig
}

// NewOllama builds a provider against the local daemon. An empty
// cfg.BaseURL falls back to localhost:11434.
func NewOllama(tr transport.Transport, cfg llm.ProviderConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OllamaDefaultBaseURL
	}
	protocol := protocols.NewOllamaProtocol()
	caps := llm.Capabilities{
		SupportsTools:     true,
		SupportsStreaming: true,
		SupportsVision:    true,
	}
	return &OllamaProvider{
		GenericProvider: NewGeneric("ollama", protocol, tr, cfg, caps),
		protocol:        protocol,
		transport:       tr,
		config:          cfg,
	}
}

// ChatStreamNative streams the daemon's own chunks without normalization,
// for consumers that want Ollama's full surface (eval timings, done_reason)
// rather than the neutral shape.
func (p *OllamaProvider) ChatStreamNative(ctx context.Context, req llm.ChatRequest) (<-chan protocols.OllamaChunk, <-chan error, error) {
	url, err := p.protocol.Endpoint(p.baseURL(req), llm.OperationChat)
	if err != nil {
		return nil, nil, err
	}
	body, err := p.protocol.BuildRequestBody(req, true)
	if err != nil {
		return nil, nil, err
	}

	respBody, err := p.transport.PostStreaming(ctx, url, req.ExtraHeaders, body)
	if err != nil {
		return nil, nil, err
	}

	chunks := make(chan protocols.OllamaChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for frame := range streaming.SplitNDJSON(ctx, respBody) {
			chunk, err := protocols.DecodeOllamaChunk(frame.Data)
			if err != nil {
				errs <- err
				return
			}
			select {
			case chunks <- *chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}
	}()
	return chunks, errs, nil
}

func (p *OllamaProvider) baseURL(req llm.ChatRequest) string {
	if req.BaseURL != "" {
		return req.BaseURL
	}
	return p.config.BaseURL
}

// Model management. These calls are orthogonal to chat; they speak the
// daemon's CRUD endpoints directly.

type ollamaModelRef struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// PullModel downloads a model into the local daemon, blocking until the
// daemon reports completion.
func (p *OllamaProvider) PullModel(ctx context.Context, model string) error {
	_, err := p.transport.PostJSON(ctx, p.config.BaseURL+"/api/pull", nil, ollamaModelRef{Model: model})
	return err
}

// PushModel uploads a local model to a registry.
func (p *OllamaProvider) PushModel(ctx context.Context, model string) error {
	_, err := p.transport.PostJSON(ctx, p.config.BaseURL+"/api/push", nil, ollamaModelRef{Model: model})
	return err
}

// DeleteModel removes a local model.
func (p *OllamaProvider) DeleteModel(ctx context.Context, model string) error {
	deleter, ok := p.transport.(jsonDeleter)
	if !ok {
		return llm.NewError(llm.ErrorUnsupportedOp, "ollama", "transport does not support DELETE")
	}
	_, err := deleter.DeleteJSON(ctx, p.config.BaseURL+"/api/delete", nil, map[string]string{"model": model})
	return err
}

// ModelDetails is the daemon's /api/show payload, passed through with the
// fields chat callers actually consult.
type ModelDetails struct {
	License    string          `json:"license"`
	Modelfile  string          `json:"modelfile"`
	Parameters string          `json:"parameters"`
	Template   string          `json:"template"`
	Details    json.RawMessage `json:"details"`
}

// ShowModel fetches a local model's metadata.
func (p *OllamaProvider) ShowModel(ctx context.Context, model string) (*ModelDetails, error) {
	raw, err := p.transport.PostJSON(ctx, p.config.BaseURL+"/api/show", nil, map[string]string{"model": model})
	if err != nil {
		return nil, err
	}
	var details ModelDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, llm.NewParseError("ollama", "decoding model details", string(raw))
	}
	return &details, nil
}

var _ llm.Provider = (*OllamaProvider)(nil)
