package protocols

import (
	"fmt"
	"strings"

	"github.com/lipish/llm-connector-sub002/internal/streaming"
	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// ZhipuProtocol speaks Zhipu GLM's API, which is OpenAI-shaped on the wire
// with two quirks this adapter owns: streaming events are separated by
// single newlines rather than blank lines, and some GLM models interleave
// reasoning into content behind ###Thinking/###Response markers, which the
// per-stream parser splits back out into reasoning_content vs content.
type ZhipuProtocol struct {
	inner OpenAIProtocol
}

// NewZhipuProtocol returns the Zhipu protocol adapter.
func NewZhipuProtocol() *ZhipuProtocol { return &ZhipuProtocol{} }

func (p *ZhipuProtocol) Name() string { return "zhipu" }

func (p *ZhipuProtocol) Endpoint(baseURL string, op llm.Operation) (string, error) {
	base := strings.TrimSuffix(baseURL, "/")
	switch op {
	case llm.OperationChat:
		return base + "/chat/completions", nil
	case llm.OperationModels:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), "model listing is not available")
	default:
		return "", llm.NewError(llm.ErrorUnsupportedOp, p.Name(), fmt.Sprintf("unknown operation %q", op))
	}
}

func (p *ZhipuProtocol) AuthHeaders(cfg llm.ProviderConfig) llm.Headers {
	return llm.Headers{{Name: "Authorization", Value: "Bearer " + cfg.APIKey}}
}

// BuildRequestBody reuses the OpenAI body; GLM's multi-round tool use
// depends on tool messages carrying tool_call_id and name, which the OpenAI
// message conversion already preserves.
func (p *ZhipuProtocol) BuildRequestBody(req llm.ChatRequest, stream bool) (interface{}, error) {
	return p.inner.BuildRequestBody(req, stream)
}

func (p *ZhipuProtocol) ParseResponse(body []byte) (*llm.ChatResponse, error) {
	resp, err := p.inner.ParseResponse(body)
	if err != nil {
		if e, ok := err.(*llm.Error); ok {
			e.Protocol = p.Name()
		}
		return nil, err
	}

	// Unary responses can carry the inline markers too; split them here so
	// callers never see the raw marker text.
	if strings.Contains(resp.Content, zhipuThinkingLead) {
		machine := streaming.NewZhipuThinkingMachine()
		reasoning, content := machine.Feed(resp.Content)
		resp.ReasoningContent = reasoning
		resp.Content = content
		if len(resp.Choices) > 0 {
			resp.Choices[0].Message.Content = nil
			if content != "" {
				resp.Choices[0].Message.Content = []llm.MessageBlock{llm.TextBlock(content)}
			}
		}
	}
	return resp, nil
}

// zhipuThinkingLead is the first marker's text, used only to cheaply detect
// whether a unary response needs the split at all.
const zhipuThinkingLead = "###Thinking"

func (p *ZhipuProtocol) ParseStreamResponse(frame llm.StreamFrame) (*llm.StreamingResponse, error) {
	chunk, err := p.inner.ParseStreamResponse(frame)
	if err != nil {
		if e, ok := err.(*llm.Error); ok {
			e.Protocol = p.Name()
		}
		return nil, err
	}
	return chunk, nil
}

// NewStreamParser returns the per-stream parser that layers the inline
// thinking split and tool-call accumulation over the OpenAI chunk shape.
func (p *ZhipuProtocol) NewStreamParser() StreamParser {
	return &zhipuStreamParser{
		protocol:   p,
		thinking:   streaming.NewZhipuThinkingMachine(),
		normalizer: streaming.NewNormalizer(),
	}
}

type zhipuStreamParser struct {
	protocol   *ZhipuProtocol
	thinking   *streaming.ZhipuThinkingMachine
	normalizer *streaming.Normalizer

	id    string
	model string
}

func (s *zhipuStreamParser) Parse(frame llm.StreamFrame) ([]*llm.StreamingResponse, error) {
	chunk, err := s.protocol.ParseStreamResponse(frame)
	if err != nil {
		return nil, err
	}
	if chunk == nil {
		return nil, nil
	}
	s.id, s.model = chunk.ID, chunk.Model

	// Route raw content through the marker machine. When the model isn't
	// using inline thinking the machine passes everything straight through
	// as content.
	if len(chunk.Choices) > 0 {
		delta := &chunk.Choices[0].Delta
		if delta.Content != "" {
			reasoning, content := s.thinking.Feed(delta.Content)
			delta.Content = content
			if delta.ReasoningContent == "" {
				delta.ReasoningContent = reasoning
			} else {
				delta.ReasoningContent += reasoning
			}
		}
		chunk.Content = delta.Content
		chunk.ReasoningContent = delta.ReasoningContent
		if chunk.Content == "" {
			chunk.Content = chunk.ReasoningContent
		}
	}

	normalized := s.normalizer.Apply(chunk)
	if normalized == nil {
		return nil, nil
	}
	return []*llm.StreamingResponse{normalized}, nil
}

func (s *zhipuStreamParser) Finish() []*llm.StreamingResponse {
	if flush := s.normalizer.Flush(s.id, s.model); flush != nil {
		return []*llm.StreamingResponse{flush}
	}
	return nil
}

func (p *ZhipuProtocol) Supports(capability llm.Capability) bool {
	switch capability {
	case llm.CapabilityTools, llm.CapabilityStreaming, llm.CapabilityReasoning, llm.CapabilityVision:
		return true
	default:
		return false
	}
}

// FrameSplitter selects the single-newline SSE framing GLM emits.
func (p *ZhipuProtocol) FrameSplitter() FrameSplitterKind { return FrameSplitterSSESingleNewline }

var _ llm.Protocol = (*ZhipuProtocol)(nil)
var _ StreamParserFactory = (*ZhipuProtocol)(nil)
var _ StreamFramer = (*ZhipuProtocol)(nil)
