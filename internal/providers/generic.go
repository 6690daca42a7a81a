// Package providers binds protocol adapters to the HTTP transport. The
// GenericProvider composes any llm.Protocol with the standard transport;
// backends whose needs don't fit that composition (Ollama's native chunk
// mode and management surface, Tencent's request signing, Gemini's official
// SDK) implement llm.Provider directly alongside it.
package providers

import (
	"context"
	"encoding/json"

	"github.com/lipish/llm-connector-sub002/internal/protocols"
	"github.com/lipish/llm-connector-sub002/internal/streaming"
	"github.com/lipish/llm-connector-sub002/internal/transport"
	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// GenericProvider ties one Protocol to the transport with static provider
// configuration. It is safe for concurrent use: the protocol and transport
// are immutable and shared, and all per-request state (effective config,
// accumulators, parsers) lives on each call's stack.
type GenericProvider struct {
	name      string
	protocol  llm.Protocol
	transport transport.Transport
	config    llm.ProviderConfig
	caps      llm.Capabilities
}

// NewGeneric composes protocol with tr under the given static config.
func NewGeneric(name string, protocol llm.Protocol, tr transport.Transport, cfg llm.ProviderConfig, caps llm.Capabilities) *GenericProvider {
	if name == "" {
		name = protocol.Name()
	}
	return &GenericProvider{
		name:      name,
		protocol:  protocol,
		transport: tr,
		config:    cfg,
		caps:      caps,
	}
}

func (p *GenericProvider) Name() string { return p.name }

func (p *GenericProvider) Capabilities() llm.Capabilities { return p.caps }

// Protocol exposes the underlying protocol, for the facade's capability
// probes.
func (p *GenericProvider) Protocol() llm.Protocol { return p.protocol }

// effective overlays the request's per-call overrides onto the static
// config and computes the merged header set. Nothing on p is mutated; the
// overrides last exactly as long as this call. Merge order, lowest priority
// first: provider default headers, protocol auth headers, request extra
// headers. Content-Type never appears here — the transport owns it.
func (p *GenericProvider) effective(req llm.ChatRequest) (llm.ProviderConfig, llm.Headers) {
	cfg := p.config
	if req.APIKey != "" {
		cfg.APIKey = req.APIKey
	}
	if req.BaseURL != "" {
		cfg.BaseURL = req.BaseURL
	}

	headers := llm.Merge(cfg.DefaultHeaders, p.protocol.AuthHeaders(cfg))
	headers = llm.Merge(headers, req.ExtraHeaders)
	return cfg, headers
}

func (p *GenericProvider) validate(req llm.ChatRequest) error {
	if len(req.Messages) == 0 {
		return llm.NewError(llm.ErrorInvalidRequest, p.protocol.Name(), "request has no messages")
	}
	if !req.NamedToolChoiceValid() {
		return llm.NewError(llm.ErrorInvalidRequest, p.protocol.Name(), "tool_choice names a function not present in tools")
	}
	return nil
}

func (p *GenericProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	cfg, headers := p.effective(req)
	url, err := p.protocol.Endpoint(cfg.BaseURL, llm.OperationChat)
	if err != nil {
		return nil, err
	}
	body, err := p.protocol.BuildRequestBody(req, false)
	if err != nil {
		return nil, err
	}

	raw, err := p.transport.PostJSON(ctx, url, headers, body)
	if err != nil {
		return nil, err
	}
	return p.protocol.ParseResponse(raw)
}

func (p *GenericProvider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}
	if !p.protocol.Supports(llm.CapabilityStreaming) {
		return nil, llm.NewError(llm.ErrorUnsupportedOp, p.protocol.Name(), "streaming is not supported")
	}

	cfg, headers := p.effective(req)
	if sh, ok := p.protocol.(protocols.StreamHeaderer); ok {
		headers = llm.Merge(headers, sh.StreamHeaders())
	}

	url, err := p.protocol.Endpoint(cfg.BaseURL, llm.OperationChat)
	if err != nil {
		return nil, err
	}
	body, err := p.protocol.BuildRequestBody(req, true)
	if err != nil {
		return nil, err
	}

	respBody, err := p.transport.PostStreaming(ctx, url, headers, body)
	if err != nil {
		return nil, err
	}

	frames := protocols.Split(ctx, protocols.SplitterFor(p.protocol), respBody)
	events := make(chan llm.StreamEvent)
	go p.pump(ctx, frames, events)
	return events, nil
}

// pump drains framed events through the protocol's parser into the
// consumer-facing channel. Per-stream state (the stateful parser or the
// generic normalizer) is created here and dies with this goroutine.
func (p *GenericProvider) pump(ctx context.Context, frames <-chan llm.StreamFrame, events chan<- llm.StreamEvent) {
	defer close(events)

	deliver := func(ev llm.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if parser, ok := p.statefulParser(); ok {
		for frame := range frames {
			chunks, err := parser.Parse(frame)
			if err != nil {
				deliver(llm.StreamEvent{Err: err})
				return
			}
			for _, chunk := range chunks {
				if !deliver(llm.StreamEvent{Chunk: chunk}) {
					return
				}
			}
		}
		for _, chunk := range parser.Finish() {
			if !deliver(llm.StreamEvent{Chunk: chunk}) {
				return
			}
		}
		return
	}

	normalizer := streaming.NewNormalizer()
	var lastID, lastModel string
	for frame := range frames {
		chunk, err := p.protocol.ParseStreamResponse(frame)
		if err != nil {
			deliver(llm.StreamEvent{Err: err})
			return
		}
		if chunk == nil {
			continue
		}
		lastID, lastModel = chunk.ID, chunk.Model

		if normalized := normalizer.Apply(chunk); normalized != nil {
			if !deliver(llm.StreamEvent{Chunk: normalized}) {
				return
			}
		}
	}
	if flush := normalizer.Flush(lastID, lastModel); flush != nil {
		deliver(llm.StreamEvent{Chunk: flush})
	}
}

// statefulParser returns a fresh per-stream parser when the protocol's
// streaming interpretation carries cross-frame state.
func (p *GenericProvider) statefulParser() (protocols.StreamParser, bool) {
	factory, ok := p.protocol.(protocols.StreamParserFactory)
	if !ok {
		return nil, false
	}
	if probe, ok := p.protocol.(interface{ StatefulStreaming() bool }); ok && !probe.StatefulStreaming() {
		return nil, false
	}
	return factory.NewStreamParser(), true
}

// openAIModelsListing is the default `{"data":[{"id":...}]}` shape.
type openAIModelsListing struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *GenericProvider) ListModels(ctx context.Context) ([]string, error) {
	if !p.protocol.Supports(llm.CapabilityModelsListing) {
		return nil, llm.NewError(llm.ErrorUnsupportedOp, p.protocol.Name(), "model listing is not available")
	}

	url, err := p.protocol.Endpoint(p.config.BaseURL, llm.OperationModels)
	if err != nil {
		return nil, err
	}
	headers := llm.Merge(p.config.DefaultHeaders, p.protocol.AuthHeaders(p.config))

	raw, err := p.transport.GetJSON(ctx, url, headers)
	if err != nil {
		return nil, err
	}

	if mp, ok := p.protocol.(protocols.ModelsParser); ok {
		return mp.ParseModelsResponse(raw)
	}

	var listing openAIModelsListing
	if err := json.Unmarshal(raw, &listing); err != nil {
		return nil, llm.NewParseError(p.protocol.Name(), "decoding model listing", string(raw))
	}
	names := make([]string, 0, len(listing.Data))
	for _, m := range listing.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

var _ llm.Provider = (*GenericProvider)(nil)
