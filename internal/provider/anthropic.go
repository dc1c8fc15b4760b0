package provider

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"figmento/internal/executor"
	"figmento/internal/ratelimit"
	"figmento/internal/sse"
)

const (
	anthropicURL     = "https://api.anthropic.com/v1/messages"
	anthropicModel   = "claude-sonnet-4-20250514"
	anthropicVersion = "2023-06-01"
)

var anthropicHeaders = ratelimit.HeaderSet{
	RequestsLimit:     "anthropic-ratelimit-requests-limit",
	RequestsRemaining: "anthropic-ratelimit-requests-remaining",
	RequestsReset:     "anthropic-ratelimit-requests-reset",
	TokensLimit:       "anthropic-ratelimit-tokens-limit",
	TokensRemaining:   "anthropic-ratelimit-tokens-remaining",
	TokensReset:       "anthropic-ratelimit-tokens-reset",
	RetryAfter:        "retry-after",
}

// AnthropicAdapter speaks the Messages API.
// See: https://docs.anthropic.com/en/api/messages-streaming
type AnthropicAdapter struct {
	settings Settings
}

func NewAnthropic(s Settings) *AnthropicAdapter {
	if s.Model == "" {
		s.Model = anthropicModel
	}
	if s.BaseURL == "" {
		s.BaseURL = anthropicURL
	}
	return &AnthropicAdapter{settings: s}
}

func (a *AnthropicAdapter) ID() ID       { return Anthropic }
func (a *AnthropicAdapter) Name() string { return "Anthropic" }

func (a *AnthropicAdapter) Settings() Settings {
	s := a.settings
	s.MaxTokens = maxTokens(Input{}, s)
	return s
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func (a *AnthropicAdapter) BuildRequest(in Input, credential string) (executor.RequestSpec, error) {
	var content []anthropicContent
	if in.Image != nil && len(in.Image.Data) > 0 {
		content = append(content, anthropicContent{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: in.Image.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(in.Image.Data),
			},
		})
	}
	content = append(content, anthropicContent{Type: "text", Text: in.Prompt})

	body, err := json.Marshal(anthropicRequest{
		Model:       a.settings.Model,
		MaxTokens:   maxTokens(in, a.settings),
		Stream:      true,
		System:      in.System,
		Temperature: in.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return executor.RequestSpec{}, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "text/event-stream")
	h.Set("x-api-key", credential)
	h.Set("anthropic-version", anthropicVersion)
	return executor.RequestSpec{Method: http.MethodPost, URL: a.settings.BaseURL, Header: h, Body: body}, nil
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error *anthropicError `json:"error"`
}

type anthropicMessageResponse struct {
	Type    string `json:"type"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (a *AnthropicAdapter) Decode(r io.Reader, buffered bool, emit func(Event)) error {
	return decodeEvents(r, buffered, a.decodeWhole, a.decodeRecord, emit)
}

func (a *AnthropicAdapter) decodeRecord(rec sse.Record, payload string, emit func(Event)) error {
	var ev anthropicStreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return malformed(err)
	}
	typ := ev.Type
	if typ == "" {
		typ = rec.Event()
	}
	switch typ {
	case "content_block_delta":
		if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
			emit(AppendText{Delta: ev.Delta.Text})
		}
	case "message_delta":
		if ev.Delta.StopReason == "max_tokens" {
			emit(Truncated{})
		}
	case "error":
		var e anthropicError
		if ev.Error != nil {
			e = *ev.Error
		}
		return streamFailure(a.ID(), a.Name(), e.Type, e.Message)
	}
	return nil
}

func (a *AnthropicAdapter) decodeWhole(body []byte, emit func(Event)) bool {
	var msg anthropicMessageResponse
	if err := json.Unmarshal(body, &msg); err != nil || msg.Type != "message" {
		return false
	}
	var b strings.Builder
	for _, c := range msg.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	if b.Len() > 0 {
		emit(AppendText{Delta: b.String()})
	}
	if msg.StopReason == "max_tokens" {
		emit(Truncated{})
	}
	return true
}

func (a *AnthropicAdapter) RateLimits(h http.Header) ratelimit.Snapshot {
	return ratelimit.Parse(h, anthropicHeaders, time.Now())
}

func (a *AnthropicAdapter) Failure(status int, body []byte) error {
	var env struct {
		Error anthropicError `json:"error"`
	}
	_ = json.Unmarshal(body, &env)
	return apiFailure(a.ID(), a.Name(), status, env.Error.Message)
}
