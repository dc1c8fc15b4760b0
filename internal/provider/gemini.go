package provider

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"figmento/internal/executor"
	"figmento/internal/ratelimit"
	"figmento/internal/sse"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiModel   = "gemini-2.5-flash"
)

// The Gemini API reports quota only through error responses.
var geminiHeaders = ratelimit.HeaderSet{
	RetryAfter: "retry-after",
}

// GeminiAdapter speaks the streamGenerateContent REST endpoint. Request
// and response bodies use the genai SDK's wire types.
type GeminiAdapter struct {
	settings Settings
}

func NewGemini(s Settings) *GeminiAdapter {
	if s.Model == "" {
		s.Model = geminiModel
	}
	if s.BaseURL == "" {
		s.BaseURL = geminiBaseURL
	}
	return &GeminiAdapter{settings: s}
}

func (g *GeminiAdapter) ID() ID       { return Gemini }
func (g *GeminiAdapter) Name() string { return "Gemini" }

func (g *GeminiAdapter) Settings() Settings {
	s := g.settings
	s.MaxTokens = maxTokens(Input{}, s)
	return s
}

type geminiRequest struct {
	Contents          []*genai.Content        `json:"contents"`
	SystemInstruction *genai.Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *genai.GenerationConfig `json:"generationConfig,omitempty"`
}

func (g *GeminiAdapter) BuildRequest(in Input, credential string) (executor.RequestSpec, error) {
	parts := []*genai.Part{genai.NewPartFromText(in.Prompt)}
	if in.Image != nil && len(in.Image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(in.Image.Data, in.Image.MIMEType))
	}
	cfg := &genai.GenerationConfig{MaxOutputTokens: int32(maxTokens(in, g.settings))}
	if in.Temperature != nil {
		t := float32(*in.Temperature)
		cfg.Temperature = &t
	}
	req := geminiRequest{
		Contents:         []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		GenerationConfig: cfg,
	}
	if in.System != "" {
		req.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(in.System)}}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return executor.RequestSpec{}, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("x-goog-api-key", credential)
	url := strings.TrimRight(g.settings.BaseURL, "/") + "/models/" + g.settings.Model + ":streamGenerateContent?alt=sse"
	return executor.RequestSpec{Method: http.MethodPost, URL: url, Header: h, Body: body}, nil
}

type geminiErrorEnvelope struct {
	Error *genai.APIError `json:"error"`
}

func (g *GeminiAdapter) Decode(r io.Reader, buffered bool, emit func(Event)) error {
	return decodeEvents(r, buffered, g.decodeWhole, g.decodeRecord, emit)
}

func (g *GeminiAdapter) decodeRecord(_ sse.Record, payload string, emit func(Event)) error {
	var env geminiErrorEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return malformed(err)
	}
	if env.Error != nil {
		return streamFailure(g.ID(), g.Name(), env.Error.Status, env.Error.Message)
	}
	var resp genai.GenerateContentResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return malformed(err)
	}
	emitCandidates(&resp, emit)
	return nil
}

// decodeWhole accepts a single response object or the JSON array the
// endpoint returns when SSE was not negotiated.
func (g *GeminiAdapter) decodeWhole(body []byte, emit func(Event)) bool {
	body = bytes.TrimSpace(body)
	var list []*genai.GenerateContentResponse
	if len(body) > 0 && body[0] == '[' {
		if err := json.Unmarshal(body, &list); err != nil {
			return false
		}
	} else {
		var one genai.GenerateContentResponse
		if err := json.Unmarshal(body, &one); err != nil || len(one.Candidates) == 0 {
			return false
		}
		list = append(list, &one)
	}
	var text strings.Builder
	truncated := false
	for _, resp := range list {
		emitCandidates(resp, func(ev Event) {
			switch e := ev.(type) {
			case AppendText:
				text.WriteString(e.Delta)
			case Truncated:
				truncated = true
			}
		})
	}
	if text.Len() > 0 {
		emit(AppendText{Delta: text.String()})
	}
	if truncated {
		emit(Truncated{})
	}
	return true
}

func emitCandidates(resp *genai.GenerateContentResponse, emit func(Event)) {
	if resp == nil {
		return
	}
	for _, c := range resp.Candidates {
		if c == nil {
			continue
		}
		if c.Content != nil {
			for _, p := range c.Content.Parts {
				if p != nil && !p.Thought && p.Text != "" {
					emit(AppendText{Delta: p.Text})
				}
			}
		}
		if c.FinishReason == genai.FinishReasonMaxTokens {
			emit(Truncated{})
		}
	}
}

func (g *GeminiAdapter) RateLimits(h http.Header) ratelimit.Snapshot {
	return ratelimit.Parse(h, geminiHeaders, time.Now())
}

func (g *GeminiAdapter) Failure(status int, body []byte) error {
	var env geminiErrorEnvelope
	msg := ""
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		msg = env.Error.Message
	} else {
		// Some proxies wrap the envelope in an array.
		var list []geminiErrorEnvelope
		if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 && list[0].Error != nil {
			msg = list[0].Error.Message
		}
	}
	return apiFailure(g.ID(), g.Name(), status, msg)
}
