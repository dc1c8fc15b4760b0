// Package provider translates the wire formats of the supported model
// vendors into one canonical event stream.
//
// Adapters are stateless. They build the outgoing request, decode the
// response body, read the vendor's rate-limit headers and turn error
// responses into failures. They never retry; that is the executor's job.
package provider

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"figmento/internal/executor"
	"figmento/internal/ratelimit"
)

// ID names a vendor.
type ID string

const (
	Anthropic ID = "anthropic"
	OpenAI    ID = "openai"
	Gemini    ID = "gemini"
)

// IDs lists every supported vendor.
var IDs = []ID{Anthropic, OpenAI, Gemini}

// ParseID accepts a vendor id or one of its common aliases.
func ParseID(s string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anthropic", "claude":
		return Anthropic, nil
	case "openai", "gpt", "chatgpt":
		return OpenAI, nil
	case "gemini", "google":
		return Gemini, nil
	}
	return "", fmt.Errorf("provider: unknown provider %q", s)
}

// Image is an optional picture sent alongside the prompt.
type Image struct {
	MIMEType string
	Data     []byte
}

// Input is everything an adapter needs to build one request.
type Input struct {
	System      string
	Prompt      string
	Image       *Image
	MaxTokens   int
	Temperature *float64
}

// Settings configure one adapter.
type Settings struct {
	Model     string
	BaseURL   string
	MaxTokens int
}

// Adapter is one vendor's wire format.
type Adapter interface {
	ID() ID
	// Name is the human-facing vendor name used in messages.
	Name() string
	// Settings returns the effective settings, defaults filled in.
	Settings() Settings
	BuildRequest(in Input, credential string) (executor.RequestSpec, error)
	// Decode reads the body to its end and emits events in arrival order.
	// When buffered is true the body did not arrive as an event stream.
	Decode(r io.Reader, buffered bool, emit func(Event)) error
	RateLimits(h http.Header) ratelimit.Snapshot
	Failure(status int, body []byte) error
}

// IsEventStream reports whether a response content type is an SSE stream.
func IsEventStream(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/event-stream")
}

func maxTokens(in Input, s Settings) int {
	if in.MaxTokens > 0 {
		return in.MaxTokens
	}
	if s.MaxTokens > 0 {
		return s.MaxTokens
	}
	return DefaultMaxTokens
}

// DefaultMaxTokens is the output budget when neither the input nor the
// adapter settings carry one.
const DefaultMaxTokens = 8192
