package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"figmento/internal/design"
	"figmento/internal/failure"
	"figmento/internal/metric"
	"figmento/internal/progress"
	"figmento/internal/provider"
)

func newTestAnalyzer(t *testing.T, srv *httptest.Server, opts Options) *Analyzer {
	t.Helper()
	opts.Registry = provider.NewRegistry(
		provider.NewOpenAI(provider.Settings{BaseURL: srv.URL}),
		provider.NewAnthropic(provider.Settings{BaseURL: srv.URL}),
		provider.NewGemini(provider.Settings{BaseURL: srv.URL}),
	)
	opts.Client = srv.Client()
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(opts)
}

// writeSSE sends each payload as one record, flushing between them.
func writeSSE(w http.ResponseWriter, payloads ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	f, _ := w.(http.Flusher)
	for _, p := range payloads {
		_, _ = fmt.Fprintf(w, "data: %s\n\n", p)
		if f != nil {
			f.Flush()
		}
	}
}

func openAIDelta(text string) string {
	b, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": text}}}})
	return string(b)
}

func anthropicDelta(text string) string {
	b, _ := json.Marshal(map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": text}})
	return string(b)
}

type progressLog struct {
	mu       sync.Mutex
	percents []int
	messages []string
}

func (p *progressLog) record(percent int, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.percents = append(p.percents, percent)
	p.messages = append(p.messages, msg)
}

func (p *progressLog) assertMonotonic(t *testing.T, lo, hi int) {
	t.Helper()
	prev := lo
	for _, pc := range p.percents {
		assert.GreaterOrEqual(t, pc, prev)
		assert.LessOrEqual(t, pc, hi)
		prev = pc
	}
}

func TestAnalyze_StreamedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		writeSSE(w,
			openAIDelta(`{"width":400,`),
			openAIDelta(`"height":300,"backgroundColor":"#fff",`),
			openAIDelta(`"elements":[]}`),
			"[DONE]",
		)
	}))
	defer srv.Close()

	var prog progressLog
	a := newTestAnalyzer(t, srv, Options{})
	res, err := a.Analyze(context.Background(), provider.Input{Prompt: "poster"}, "openai", "sk-test", prog.record)
	require.NoError(t, err)

	assert.Equal(t, design.Document{Width: 400, Height: 300, BackgroundColor: "#fff", Elements: []design.Element{}}, res.Document)
	assert.False(t, res.Truncated)
	assert.False(t, res.Repaired)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.Attempts)

	require.NotEmpty(t, prog.percents)
	prog.assertMonotonic(t, progress.DefaultMin, progress.DefaultMax)
	assert.Equal(t, progress.DefaultMax, prog.percents[len(prog.percents)-1])
}

func TestAnalyze_TruncatedResponseIsRepaired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"type":"message_start","message":{}}`,
			anthropicDelta(`{"width":400,"height":300,`),
			anthropicDelta(`"elements":[{"id":"a","width":50`),
			`{"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`,
			`{"type":"message_stop"}`,
		)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m, err := metric.New(reg)
	require.NoError(t, err)
	a := newTestAnalyzer(t, srv, Options{Metrics: m})
	res, err := a.Analyze(context.Background(), provider.Input{Prompt: "poster"}, "claude", "key", nil)
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.True(t, res.Repaired)
	require.Len(t, res.Document.Elements, 1)
	el := res.Document.Elements[0]
	assert.Equal(t, "a", el.ID)
	assert.Equal(t, 50.0, el.Width)
	assert.Equal(t, float64(design.DefaultElemSize), el.Height)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, failure.KindTokenLimit, res.Warnings[0].Kind)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Truncations.WithLabelValues("anthropic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Repairs.WithLabelValues("anthropic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("anthropic", metric.OutcomeRepaired)))
}

func TestAnalyze_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
			return
		}
		writeSSE(w, openAIDelta(`{"width":200,"height":200,"elements":[]}`), "[DONE]")
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m, err := metric.New(reg)
	require.NoError(t, err)
	var prog progressLog
	a := newTestAnalyzer(t, srv, Options{MaxAttempts: 3, Metrics: m})
	res, err := a.Analyze(context.Background(), provider.Input{Prompt: "x"}, "openai", "k", prog.record)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 200.0, res.Document.Width)
	var retries []string
	for _, msg := range prog.messages {
		if strings.HasPrefix(msg, "retrying in") {
			retries = append(retries, msg)
		}
	}
	assert.Equal(t, []string{"retrying in 1s…", "retrying in 1s…"}, retries)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Retries.WithLabelValues("openai")))
	prog.assertMonotonic(t, progress.DefaultMin, progress.DefaultMax)
}

func TestAnalyze_StallAfterHeadersIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeSSE(w, openAIDelta(`{"width":`))
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	var prog progressLog
	a := newTestAnalyzer(t, srv, Options{MaxAttempts: 3, AttemptTimeout: 50 * time.Millisecond})
	_, err := a.Analyze(context.Background(), provider.Input{Prompt: "x"}, "openai", "k", prog.record)
	require.Error(t, err)
	assert.Equal(t, failure.KindTimeout, failure.KindOf(err))
	assert.Contains(t, err.Error(), "reduce the input size")
	assert.EqualValues(t, 1, calls.Load())
	for _, msg := range prog.messages {
		assert.NotContains(t, msg, "retrying")
	}
}

func TestAnalyze_CancelledBeforeResponse(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	var prog progressLog
	a := newTestAnalyzer(t, srv, Options{MaxAttempts: 3})
	_, err := a.Analyze(ctx, provider.Input{Prompt: "x"}, "openai", "k", prog.record)
	require.Error(t, err)
	assert.Equal(t, failure.KindCancelled, failure.KindOf(err))
	assert.EqualValues(t, 1, calls.Load())
	for _, msg := range prog.messages {
		assert.NotContains(t, msg, "retrying")
	}
}

func TestAnalyze_LowRateLimitWarns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-limit-requests", "100")
		w.Header().Set("x-ratelimit-remaining-requests", "0")
		writeSSE(w, openAIDelta(`{"elements":[]}`), "[DONE]")
	}))
	defer srv.Close()

	a := newTestAnalyzer(t, srv, Options{})
	res, err := a.Analyze(context.Background(), provider.Input{Prompt: "x"}, "gpt", "k", nil)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, failure.KindRateLimit, res.Warnings[0].Kind)
	assert.Contains(t, res.Warnings[0].Message, "0 of 100")

	snap, ok := a.RateLimit("openai")
	require.True(t, ok)
	require.NotNil(t, snap.RequestsRemaining)
	assert.Equal(t, 0, *snap.RequestsRemaining)
	_, ok = a.RateLimit("gemini")
	assert.False(t, ok)
}

func TestAnalyze_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"choices":[{"delta":{"role":"assistant"}}]}`, "[DONE]")
	}))
	defer srv.Close()

	_, err := newTestAnalyzer(t, srv, Options{}).Analyze(context.Background(), provider.Input{Prompt: "x"}, "openai", "k", nil)
	require.Error(t, err)
	assert.Equal(t, "no response content from OpenAI", err.Error())
	assert.Equal(t, failure.KindUnknown, failure.KindOf(err))
}

func TestAnalyze_ProviderErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"Number of requests has exceeded your rate limit"}}`)
	}))
	defer srv.Close()

	_, err := newTestAnalyzer(t, srv, Options{}).Analyze(context.Background(), provider.Input{Prompt: "x"}, "anthropic", "k", nil)
	require.Error(t, err)
	var fe *failure.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, failure.KindRateLimit, fe.Kind)
	assert.Equal(t, "anthropic", fe.Provider)
	assert.Contains(t, fe.Message, "exceeded your rate limit")
}

func TestAnalyze_UnparseableResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, openAIDelta(`I cannot help with that.`), "[DONE]")
	}))
	defer srv.Close()

	_, err := newTestAnalyzer(t, srv, Options{}).Analyze(context.Background(), provider.Input{Prompt: "x"}, "openai", "k", nil)
	require.Error(t, err)
	assert.Equal(t, failure.KindParse, failure.KindOf(err))
	var fe *failure.Error
	require.ErrorAs(t, err, &fe)
	assert.True(t, fe.Retryable())
}

func TestAnalyze_BufferedGeminiResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":streamGenerateContent")
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"`+
			"```json\\n{\\\"width\\\":640,\\\"height\\\":480,\\\"elements\\\":[{\\\"type\\\":\\\"TEXT\\\",\\\"text\\\":{\\\"content\\\":\\\"Hi\\\"}}]}\\n```"+
			`"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	res, err := newTestAnalyzer(t, srv, Options{}).Analyze(context.Background(), provider.Input{Prompt: "x"}, "google", "g-key", nil)
	require.NoError(t, err)
	assert.Equal(t, 640.0, res.Document.Width)
	require.Len(t, res.Document.Elements, 1)
	assert.Equal(t, "Hi", res.Document.Elements[0].Text.Content)
}

func TestAnalyze_CustomProgressRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, openAIDelta(`{"elements":[]}`), "[DONE]")
	}))
	defer srv.Close()

	var prog progressLog
	a := newTestAnalyzer(t, srv, Options{Progress: progress.Range{Min: 0, Max: 100, ExpectedBytes: 1 << 20}})
	_, err := a.Analyze(context.Background(), provider.Input{Prompt: "x"}, "openai", "k", prog.record)
	require.NoError(t, err)
	require.NotEmpty(t, prog.percents)
	assert.Equal(t, 0, prog.percents[0])
	assert.Equal(t, 100, prog.percents[len(prog.percents)-1])
	prog.assertMonotonic(t, 0, 100)
}

func TestAnalyze_RejectsBadInput(t *testing.T) {
	a := New(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	_, err := a.Analyze(context.Background(), provider.Input{}, "mistral", "k", nil)
	assert.Equal(t, failure.KindUnknown, failure.KindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, provider.Input{}, "openai", "k", nil)
	assert.Equal(t, failure.KindCancelled, failure.KindOf(err))
}

func TestDecodeDocument(t *testing.T) {
	v, repaired, err := decodeDocument("Here it is:\n```json\n{\"width\":10}\n```", false)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.EqualValues(t, 10, v["width"])

	_, _, err = decodeDocument(`{"width":`, true)
	require.NoError(t, err)

	_, _, err = decodeDocument(`[1,2,3]`, false)
	assert.Equal(t, failure.KindParse, failure.KindOf(err))

	_, _, err = decodeDocument(`{"a":1,}`, true)
	assert.Equal(t, failure.KindTokenLimit, failure.KindOf(err))
}
