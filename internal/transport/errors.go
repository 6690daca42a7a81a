package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/lipish/llm-connector-sub002/pkg/llm"
)

// NewHTTPStatusError maps an HTTP status code plus response body into the
// neutral error taxonomy, applying the body-pattern refinements in the
// error mapper's status table. Protocol adapters that parse their own
// error body shape (to extract a cleaner message) should prefer
// constructing an *llm.Error directly; this helper is the generic fallback
// every Transport call uses when it has nothing more specific to say.
func NewHTTPStatusError(protocol string, status int, retryAfterHeader string, body []byte) *llm.Error {
	bodyStr := string(body)
	lower := strings.ToLower(bodyStr)

	switch {
	case status == 400:
		if containsAny(lower, "context length", "maximum context", "too long") {
			return &llm.Error{Kind: llm.ErrorContextLength, Protocol: protocol, Status: status, Message: "request exceeds the model's context window", Raw: truncate(bodyStr)}
		}
		return &llm.Error{Kind: llm.ErrorInvalidRequest, Protocol: protocol, Status: status, Message: "the request was rejected as malformed", Raw: truncate(bodyStr)}

	case status == 401 || status == 403:
		return &llm.Error{Kind: llm.ErrorAuthentication, Protocol: protocol, Status: status, Message: "credentials were rejected; check the configured API key", Raw: truncate(stripURLs(bodyStr))}

	case status == 404:
		if containsAny(lower, "model", "models") {
			return &llm.Error{Kind: llm.ErrorUnsupportedOp, Protocol: protocol, Status: status, Message: "this operation is not available for the requested endpoint", Raw: truncate(bodyStr)}
		}
		return &llm.Error{Kind: llm.ErrorInvalidRequest, Protocol: protocol, Status: status, Message: "endpoint not found", Raw: truncate(bodyStr)}

	case status == 408:
		return &llm.Error{Kind: llm.ErrorTimeout, Protocol: protocol, Status: status, Message: "request timed out; increase timeout for long streams", Raw: truncate(bodyStr)}

	case status == 429:
		retryAfter := parseRetryAfter(retryAfterHeader)
		msg := "rate limit exceeded"
		if retryAfter > 0 {
			msg = fmt.Sprintf("rate limit exceeded; retry after %ds", retryAfter)
		}
		return &llm.Error{Kind: llm.ErrorRateLimit, Protocol: protocol, Status: status, RetryAfter: retryAfter, Message: msg, Raw: truncate(bodyStr)}

	case status >= 500:
		return &llm.Error{Kind: llm.ErrorServer, Protocol: protocol, Status: status, Message: fmt.Sprintf("server returned status %d", status), Raw: truncate(bodyStr)}

	default:
		return &llm.Error{Kind: llm.ErrorInvalidRequest, Protocol: protocol, Status: status, Message: fmt.Sprintf("unexpected status %d", status), Raw: truncate(bodyStr)}
	}
}

// classifyTransportError maps a transport-level Go error (context
// cancellation, DNS failure, connection refused, ...) into the taxonomy.
func classifyTransportError(err error) *llm.Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &llm.Error{Kind: llm.ErrorTimeout, Protocol: "transport", Message: "request timed out; increase timeout for long streams", Wrapped: err}
	case errors.Is(err, context.Canceled):
		return &llm.Error{Kind: llm.ErrorConnection, Protocol: "transport", Message: "request canceled", Wrapped: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &llm.Error{Kind: llm.ErrorTimeout, Protocol: "transport", Message: "network timeout; increase timeout for long streams", Wrapped: err}
	}

	return &llm.Error{Kind: llm.ErrorConnection, Protocol: "transport", Message: fmt.Sprintf("connection failed: %v", err), Wrapped: err}
}

func parseProxyURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, llm.NewError(llm.ErrorInvalidRequest, "transport", fmt.Sprintf("invalid proxy URL: %v", err))
	}
	return parsed, nil
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// stripURLs removes http(s):// URLs from an error message before surfacing
// it, per the auth-error refinement's requirement to not leak
// provider-specific URLs.
func stripURLs(s string) string {
	var out strings.Builder
	for _, word := range strings.Fields(s) {
		if strings.HasPrefix(word, "http://") || strings.HasPrefix(word, "https://") {
			continue
		}
		if out.Len() > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(word)
	}
	return out.String()
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		return 0
	}
	return n
}

func truncate(s string) string {
	const max = 512
	if len(s) <= max {
		return s
	}
	return s[:max]
}
