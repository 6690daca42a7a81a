package streaming

import "strings"

const (
	zhipuThinkingMarker = "###Thinking\n"
	// The response marker consumes the newline that terminates the
	// reasoning text, so neither marker text nor separator newlines leak
	// into the output.
	zhipuResponseMarker = "\n###Response\n"
	zhipuResponseBare   = "###Response\n"
)

// ZhipuThinkingState is the explicit state enum driving the inline
// ###Thinking/###Response split, per the design note that these state
// machines should be modeled as a state + transition table rather than ad
// hoc conditionals.
type ZhipuThinkingState int

const (
	ZhipuThinkingInitial ZhipuThinkingState = iota
	ZhipuThinkingThinking
	ZhipuThinkingResponse
)

// ZhipuThinkingMachine splits content arriving with embedded
// "###Thinking\n<reasoning>\n###Response\n<answer>" markers into separate
// reasoning/content streams, correctly handling markers split arbitrarily
// across Feed calls. Content with no marker at the head of the stream
// passes through untouched.
type ZhipuThinkingMachine struct {
	state  ZhipuThinkingState
	buffer string
}

// NewZhipuThinkingMachine returns a machine in its Initial state.
func NewZhipuThinkingMachine() *ZhipuThinkingMachine {
	return &ZhipuThinkingMachine{state: ZhipuThinkingInitial}
}

// Feed consumes one raw content fragment and returns the reasoning and
// content text it resolves to so far. Either return value may be empty.
// Markers are never included in the output.
func (m *ZhipuThinkingMachine) Feed(fragment string) (reasoning string, content string) {
	m.buffer += fragment

	for {
		switch m.state {
		case ZhipuThinkingInitial:
			if strings.HasPrefix(m.buffer, zhipuThinkingMarker) {
				m.buffer = m.buffer[len(zhipuThinkingMarker):]
				m.state = ZhipuThinkingThinking
				continue
			}
			if strings.HasPrefix(zhipuThinkingMarker, m.buffer) {
				// Could still turn into the marker once more input arrives.
				return reasoning, content
			}
			// No marker at the head of the stream: this model isn't using
			// inline thinking, everything is plain content from here on.
			m.state = ZhipuThinkingResponse

		case ZhipuThinkingThinking:
			// Empty reasoning: the response marker directly follows the
			// thinking marker, with no separator newline to anchor on.
			if strings.HasPrefix(m.buffer, zhipuResponseBare) {
				m.buffer = m.buffer[len(zhipuResponseBare):]
				m.state = ZhipuThinkingResponse
				continue
			}
			if idx := strings.Index(m.buffer, zhipuResponseMarker); idx >= 0 {
				reasoning += m.buffer[:idx]
				m.buffer = m.buffer[idx+len(zhipuResponseMarker):]
				m.state = ZhipuThinkingResponse
				continue
			}
			hold := overlapWithPrefix(m.buffer, zhipuResponseMarker)
			if len(m.buffer) < len(zhipuResponseBare) && strings.HasPrefix(zhipuResponseBare, m.buffer) {
				hold = len(m.buffer)
			}
			safe := len(m.buffer) - hold
			reasoning += m.buffer[:safe]
			m.buffer = m.buffer[safe:]
			return reasoning, content

		case ZhipuThinkingResponse:
			content += m.buffer
			m.buffer = ""
			return reasoning, content
		}
	}
}

// overlapWithPrefix returns the length of the longest suffix of s that is
// also a prefix of marker, so a caller can hold back exactly the bytes that
// might still turn into the marker once more input arrives.
func overlapWithPrefix(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}
