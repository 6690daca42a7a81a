// Package tokencount estimates token usage for chat requests, so callers
// can size max_tokens and budget_tokens against a model's context window
// before paying for the wire round-trip. This is estimation only — no cost
// arithmetic, no persistence.
package tokencount

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

const defaultEncoding = "cl100k_base"

// Per-message overhead constants, following OpenAI's chat-format counting
// convention.
const (
	messageOverhead = 4
	replyPriming    = 2
)

// Counter wraps a tiktoken encoder for token counting operations.
type Counter struct {
	encoder  *tiktoken.Tiktoken
	encoding string
}

// NewCounter creates a counter with the named encoding ("cl100k_base",
// "o200k_base", "p50k_base", ...), falling back to cl100k_base when the
// encoding is unknown or empty.
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}

	encoder, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		encoder, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return nil, err
		}
		encoding = defaultEncoding
	}

	return &Counter{encoder: encoder, encoding: encoding}, nil
}

// NewCounterForModel picks the encoding conventionally paired with model.
// Exact tokenizers only exist for OpenAI models; for other providers the
// result is an approximation, which is all context-window sizing needs.
func NewCounterForModel(model string) (*Counter, error) {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return NewCounter("o200k_base")
	default:
		return NewCounter(defaultEncoding)
	}
}

// Encoding returns the counter's encoding name.
func (c *Counter) Encoding() string { return c.encoding }

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// CountMessages counts the tokens a message sequence occupies, including
// per-message formatting overhead and tool-call argument payloads.
func (c *Counter) CountMessages(messages []llm.Message) int {
	if len(messages) == 0 {
		return 0
	}

	total := 0
	for _, msg := range messages {
		total += messageOverhead
		total += c.Count(msg.TextContent())
		if msg.Name != "" {
			total += c.Count(msg.Name) + 1
		}
		for _, tc := range msg.ToolCalls {
			total += c.Count(tc.Function.Name)
			total += c.Count(tc.Function.Arguments)
		}
	}
	total += replyPriming

	return total
}

// CountRequest estimates the prompt-side tokens of req, messages plus tool
// declarations.
func (c *Counter) CountRequest(req llm.ChatRequest) int {
	total := c.CountMessages(req.Messages)
	for _, t := range req.Tools {
		total += c.Count(t.Function.Name)
		total += c.Count(t.Function.Description)
		total += c.Count(string(t.Function.Parameters))
	}
	return total
}

// WouldExceedContext reports whether req's prompt plus its max_tokens
// reservation overruns a context window of contextTokens. Callers can use
// this to pre-empt the backend's ContextLengthExceeded rejection.
func (c *Counter) WouldExceedContext(req llm.ChatRequest, contextTokens int) bool {
	if contextTokens <= 0 {
		return false
	}
	reserved := 0
	if req.MaxTokens != nil {
		reserved = *req.MaxTokens
	}
	return c.CountRequest(req)+reserved > contextTokens
}

// Truncate cuts text down to at most maxTokens tokens.
func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoder.Decode(tokens[:maxTokens])
}

// EstimateTokens is a quick heuristic (~4 characters per token) for callers
// that don't want to pay for encoding.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	runeCount := utf8.RuneCountInString(text)
	return (runeCount + 3) / 4
}
