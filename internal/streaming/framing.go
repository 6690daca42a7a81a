// Package streaming implements framing only — turning the raw byte stream
// of a backend's HTTP response into a sequence of llm.StreamFrame values.
// It has no opinion on what those frames mean; that's the Protocol's job
// (see internal/protocols). This mirrors the split the teacher's
// LocalAdapter.processStream embeds inline, generalized into four
// reusable framing variants plus the accumulation/normalization helpers
// that sit on top of them.
package streaming

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

const doneSentinel = "[DONE]"

// SplitSSEDoubleNewline frames an OpenAI-family SSE body: events are
// separated by a blank line, each line prefixed "data: ". It terminates
// the returned channel on EOF, context cancellation, or the "[DONE]"
// sentinel frame (which is not forwarded).
func SplitSSEDoubleNewline(ctx context.Context, body io.ReadCloser) <-chan llm.StreamFrame {
	frames := make(chan llm.StreamFrame)
	go func() {
		defer close(frames)
		defer body.Close()

		reader := bufio.NewReader(body)
		var dataLines []string

		flush := func() bool {
			if len(dataLines) == 0 {
				return true
			}
			data := strings.Join(dataLines, "\n")
			dataLines = dataLines[:0]
			if data == doneSentinel {
				return false
			}
			select {
			case frames <- llm.StreamFrame{Data: data}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			trimmed := strings.TrimRight(line, "\r\n")

			switch {
			case strings.HasPrefix(trimmed, "data:"):
				dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(trimmed, "data:"), " "))
			case trimmed == "":
				if !flush() {
					return
				}
			default:
				// event:, id:, retry: and other SSE fields are ignored by
				// this generic framing; event-named streams use
				// SplitEventNamedSSE instead.
			}

			if err != nil {
				if err == io.EOF {
					flush()
				}
				return
			}
		}
	}()
	return frames
}

// SplitSSESingleNewline frames Zhipu's variant of SSE, where each event is
// its own line (no blank-line separator) and "data:" may or may not be
// followed by a space.
func SplitSSESingleNewline(ctx context.Context, body io.ReadCloser) <-chan llm.StreamFrame {
	frames := make(chan llm.StreamFrame)
	go func() {
		defer close(frames)
		defer body.Close()

		reader := bufio.NewReader(body)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			trimmed := strings.TrimRight(line, "\r\n")

			if strings.HasPrefix(trimmed, "data:") {
				data := strings.TrimPrefix(strings.TrimPrefix(trimmed, "data:"), " ")
				if data != "" && data != doneSentinel {
					select {
					case frames <- llm.StreamFrame{Data: data}:
					case <-ctx.Done():
						return
					}
				} else if data == doneSentinel {
					return
				}
			}

			if err != nil {
				return
			}
		}
	}()
	return frames
}

// SplitNDJSON frames Ollama's line-delimited JSON body: each line is a
// complete JSON object and is forwarded as one frame.
func SplitNDJSON(ctx context.Context, body io.ReadCloser) <-chan llm.StreamFrame {
	frames := make(chan llm.StreamFrame)
	go func() {
		defer close(frames)
		defer body.Close()

		reader := bufio.NewReader(body)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			trimmed := strings.TrimSpace(line)
			if trimmed != "" {
				select {
				case frames <- llm.StreamFrame{Data: trimmed}:
				case <-ctx.Done():
					return
				}
			}

			if err != nil {
				return
			}
		}
	}()
	return frames
}

// SplitEventNamedSSE frames Anthropic-style SSE: "event: <name>\ndata:
// <json>\n\n". Each delivered frame carries both the event name and its
// JSON payload.
func SplitEventNamedSSE(ctx context.Context, body io.ReadCloser) <-chan llm.StreamFrame {
	frames := make(chan llm.StreamFrame)
	go func() {
		defer close(frames)
		defer body.Close()

		reader := bufio.NewReader(body)
		var event string
		var dataLines []string

		flush := func() bool {
			if len(dataLines) == 0 && event == "" {
				return true
			}
			data := strings.Join(dataLines, "\n")
			frame := llm.StreamFrame{Event: event, Data: data}
			event = ""
			dataLines = dataLines[:0]
			select {
			case frames <- frame:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadString('\n')
			trimmed := strings.TrimRight(line, "\r\n")

			switch {
			case strings.HasPrefix(trimmed, "event:"):
				event = strings.TrimPrefix(strings.TrimPrefix(trimmed, "event:"), " ")
			case strings.HasPrefix(trimmed, "data:"):
				dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(trimmed, "data:"), " "))
			case trimmed == "":
				if !flush() {
					return
				}
			default:
				// id:, retry: and comments ignored.
			}

			if err != nil {
				if err == io.EOF {
					flush()
				}
				return
			}
		}
	}()
	return frames
}
