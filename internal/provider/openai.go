package provider

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"figmento/internal/executor"
	"figmento/internal/ratelimit"
	"figmento/internal/sse"
)

const (
	openAIURL   = "https://api.openai.com/v1/chat/completions"
	openAIModel = "gpt-4o"
)

var openAIHeaders = ratelimit.HeaderSet{
	RequestsLimit:     "x-ratelimit-limit-requests",
	RequestsRemaining: "x-ratelimit-remaining-requests",
	RequestsReset:     "x-ratelimit-reset-requests",
	TokensLimit:       "x-ratelimit-limit-tokens",
	TokensRemaining:   "x-ratelimit-remaining-tokens",
	TokensReset:       "x-ratelimit-reset-tokens",
	RetryAfter:        "retry-after",
}

// OpenAIAdapter speaks the Chat Completions API.
type OpenAIAdapter struct {
	settings Settings
}

func NewOpenAI(s Settings) *OpenAIAdapter {
	if s.Model == "" {
		s.Model = openAIModel
	}
	if s.BaseURL == "" {
		s.BaseURL = openAIURL
	}
	return &OpenAIAdapter{settings: s}
}

func (o *OpenAIAdapter) ID() ID       { return OpenAI }
func (o *OpenAIAdapter) Name() string { return "OpenAI" }

func (o *OpenAIAdapter) Settings() Settings {
	s := o.settings
	s.MaxTokens = maxTokens(Input{}, s)
	return s
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Stream      bool            `json:"stream"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	Messages    []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

func (o *OpenAIAdapter) BuildRequest(in Input, credential string) (executor.RequestSpec, error) {
	var msgs []openAIMessage
	if in.System != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: in.System})
	}
	parts := []openAIPart{{Type: "text", Text: in.Prompt}}
	if in.Image != nil && len(in.Image.Data) > 0 {
		parts = append(parts, openAIPart{
			Type: "image_url",
			ImageURL: &openAIImageURL{
				URL: "data:" + in.Image.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(in.Image.Data),
			},
		})
	}
	msgs = append(msgs, openAIMessage{Role: "user", Content: parts})

	body, err := json.Marshal(openAIRequest{
		Model:       o.settings.Model,
		Stream:      true,
		MaxTokens:   maxTokens(in, o.settings),
		Temperature: in.Temperature,
		Messages:    msgs,
	})
	if err != nil {
		return executor.RequestSpec{}, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "text/event-stream")
	h.Set("Authorization", "Bearer "+credential)
	return executor.RequestSpec{Method: http.MethodPost, URL: o.settings.BaseURL, Header: h, Body: body}, nil
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *openAIError `json:"error"`
}

func (o *OpenAIAdapter) Decode(r io.Reader, buffered bool, emit func(Event)) error {
	return decodeEvents(r, buffered, o.decodeWhole, o.decodeRecord, emit)
}

func (o *OpenAIAdapter) decodeRecord(_ sse.Record, payload string, emit func(Event)) error {
	var c openAIChunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return malformed(err)
	}
	if c.Error != nil {
		return streamFailure(o.ID(), o.Name(), c.Error.Type, c.Error.Message)
	}
	for _, ch := range c.Choices {
		if ch.Delta.Content != "" {
			emit(AppendText{Delta: ch.Delta.Content})
		}
		if ch.FinishReason == "length" {
			emit(Truncated{})
		}
	}
	return nil
}

func (o *OpenAIAdapter) decodeWhole(body []byte, emit func(Event)) bool {
	var c openAIChunk
	if err := json.Unmarshal(body, &c); err != nil || len(c.Choices) == 0 {
		return false
	}
	ch := c.Choices[0]
	if ch.Message.Content != "" {
		emit(AppendText{Delta: ch.Message.Content})
	}
	if ch.FinishReason == "length" {
		emit(Truncated{})
	}
	return true
}

func (o *OpenAIAdapter) RateLimits(h http.Header) ratelimit.Snapshot {
	return ratelimit.Parse(h, openAIHeaders, time.Now())
}

func (o *OpenAIAdapter) Failure(status int, body []byte) error {
	var env struct {
		Error openAIError `json:"error"`
	}
	_ = json.Unmarshal(body, &env)
	return apiFailure(o.ID(), o.Name(), status, env.Error.Message)
}
