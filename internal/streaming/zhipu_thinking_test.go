package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// feedAll pushes every fragment through a fresh machine and returns the
// concatenated reasoning and content outputs.
func feedAll(fragments []string) (string, string) {
	m := NewZhipuThinkingMachine()
	var reasoning, content string
	for _, f := range fragments {
		r, c := m.Feed(f)
		reasoning += r
		content += c
	}
	return reasoning, content
}

// TestZhipuThinkingSplit tests the marker split across a range of chunk
// boundaries, including boundaries landing mid-marker.
func TestZhipuThinkingSplit(t *testing.T) {
	tests := []struct {
		name          string
		fragments     []string
		wantReasoning string
		wantContent   string
	}{
		{
			name:          "whole payload in one fragment",
			fragments:     []string{"###Thinking\nabc\n###Response\nxyz"},
			wantReasoning: "abc",
			wantContent:   "xyz",
		},
		{
			name:          "split inside thinking marker",
			fragments:     []string{"###Thi", "nking\nabc\n###Response\nxyz"},
			wantReasoning: "abc",
			wantContent:   "xyz",
		},
		{
			name:          "split inside response marker",
			fragments:     []string{"###Thinking\nabc\n###Resp", "onse\nxyz"},
			wantReasoning: "abc",
			wantContent:   "xyz",
		},
		{
			name:          "one byte at a time",
			fragments:     splitBytes("###Thinking\nabc\n###Response\nxyz"),
			wantReasoning: "abc",
			wantContent:   "xyz",
		},
		{
			name:          "no markers passes through as content",
			fragments:     []string{"plain ", "answer"},
			wantReasoning: "",
			wantContent:   "plain answer",
		},
		{
			name:          "hash-prefixed content without marker",
			fragments:     []string{"### heading\nbody"},
			wantReasoning: "",
			wantContent:   "### heading\nbody",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasoning, content := feedAll(tt.fragments)
			assert.Equal(t, tt.wantReasoning, reasoning)
			assert.Equal(t, tt.wantContent, content)
		})
	}
}

func splitBytes(s string) []string {
	out := make([]string, 0, len(s))
	for i := 0; i < len(s); i++ {
		out = append(out, s[i:i+1])
	}
	return out
}

// TestZhipuThinkingHeldPrefixEventuallyFlushes tests that bytes held back
// as a potential marker prefix are released once the next fragment rules
// the marker out.
func TestZhipuThinkingHeldPrefixEventuallyFlushes(t *testing.T) {
	m := NewZhipuThinkingMachine()

	r, c := m.Feed("##")
	assert.Empty(t, r)
	assert.Empty(t, c)

	r, c = m.Feed("# not the marker")
	assert.Empty(t, r)
	assert.Equal(t, "### not the marker", c)
}
