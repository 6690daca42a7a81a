// Package protocols holds one adapter per backend wire format, plus the
// Configurable Protocol that describes OpenAI-compatible clones as data.
// Each adapter implements llm.Protocol: translating a neutral ChatRequest
// into that backend's JSON body and auth headers, and parsing its unary and
// streaming responses back into the neutral shapes. None of them own an
// HTTP client — they're handed raw bytes by internal/providers, which is
// the layer that actually calls internal/transport.
package protocols

import (
	"encoding/json"

	"github.com/lipish/llm-connector-sub002/internal/streaming"
	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// choiceContainers pulls the raw choices[*].message / choices[*].delta
// objects out of an OpenAI-family body so the reasoning-synonym scan can
// look where backends actually put their chain-of-thought keys.
type choiceContainers struct {
	Choices []struct {
		Message json.RawMessage `json:"message"`
		Delta   json.RawMessage `json:"delta"`
	} `json:"choices"`
}

// extractMessageReasoning scans choices[0].message (then the top level, for
// backends that hoist the key) of a unary response body.
func extractMessageReasoning(body []byte) string {
	var cc choiceContainers
	if err := json.Unmarshal(body, &cc); err == nil && len(cc.Choices) > 0 && cc.Choices[0].Message != nil {
		if s, ok := streaming.ExtractReasoningSynonym(cc.Choices[0].Message); ok {
			return s
		}
	}
	if s, ok := streaming.ExtractReasoningSynonym(body); ok {
		return s
	}
	return ""
}

// extractDeltaReasoning scans choices[i].delta of a streaming chunk body.
func extractDeltaReasoning(body []byte, i int) string {
	var cc choiceContainers
	if err := json.Unmarshal(body, &cc); err != nil || i >= len(cc.Choices) || cc.Choices[i].Delta == nil {
		return ""
	}
	s, _ := streaming.ExtractReasoningSynonym(cc.Choices[i].Delta)
	return s
}

// projectContent implements the convenience-field fallback priority:
// content first, then whatever reasoning synonym was extracted.
func projectContent(content, reasoningContent string) string {
	if content != "" {
		return content
	}
	return reasoningContent
}

// mapFinishReason maps the common OpenAI-family finish_reason strings onto
// the neutral enum, passing through anything unrecognized verbatim.
func mapFinishReason(raw string) llm.FinishReason {
	switch raw {
	case "stop":
		return llm.FinishReasonStop
	case "length":
		return llm.FinishReasonLength
	case "tool_calls":
		return llm.FinishReasonToolCalls
	case "content_filter":
		return llm.FinishReasonContentFilter
	case "function_call":
		return llm.FinishReasonFunctionCall
	case "":
		return ""
	default:
		return llm.FinishReasonOther(raw)
	}
}

func toUsage(prompt, completion, total int) *llm.Usage {
	if prompt == 0 && completion == 0 && total == 0 {
		return nil
	}
	return &llm.Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}
