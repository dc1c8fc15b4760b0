// Package analysis runs one design analysis end to end: it sends the
// request to a vendor, streams the answer, recovers the JSON document and
// validates it into a render-ready tree.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"figmento/internal/design"
	"figmento/internal/executor"
	"figmento/internal/failure"
	"figmento/internal/metric"
	"figmento/internal/progress"
	"figmento/internal/provider"
	"figmento/internal/ratelimit"
	"figmento/internal/util/jsonutil"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// ProgressFunc receives a percentage within the configured range and a
// short status line. Percentages never decrease within one call.
type ProgressFunc func(percent int, message string)

// Options configure an Analyzer. Zero values take defaults.
type Options struct {
	Client   *http.Client
	Registry *provider.Registry
	Store    *ratelimit.Store
	Metrics  *metric.Metrics
	Logger   *slog.Logger

	MaxAttempts    int
	AttemptTimeout time.Duration
	BaseDelay      time.Duration
	Progress       progress.Range
}

// Result is a validated document plus what happened while producing it.
type Result struct {
	Document  design.Document
	Warnings  []failure.Warning
	Truncated bool
	Repaired  bool
	Attempts  int
	RateLimit ratelimit.Snapshot
}

// Analyzer is safe for concurrent use; calls share nothing but the
// rate-limit store.
type Analyzer struct {
	exec     *executor.Executor
	registry *provider.Registry
	store    *ratelimit.Store
	metrics  *metric.Metrics
	log      *slog.Logger
	execOpts executor.Options
	progress progress.Range
}

func New(opts Options) *Analyzer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = provider.DefaultRegistry(nil)
	}
	if opts.Store == nil {
		opts.Store = ratelimit.NewStore()
	}
	if opts.Progress == (progress.Range{}) {
		opts.Progress = progress.DefaultRange()
	}
	return &Analyzer{
		exec:     executor.New(opts.Client, opts.Logger),
		registry: opts.Registry,
		store:    opts.Store,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		execOpts: executor.Options{
			MaxAttempts:    opts.MaxAttempts,
			AttemptTimeout: opts.AttemptTimeout,
			BaseDelay:      opts.BaseDelay,
		},
		progress: opts.Progress,
	}
}

// RateLimit returns the last snapshot seen for a provider.
func (a *Analyzer) RateLimit(providerID string) (ratelimit.Snapshot, bool) {
	id, err := provider.ParseID(providerID)
	if err != nil {
		return ratelimit.Snapshot{}, false
	}
	return a.store.Get(string(id))
}

// Analyze sends in to the provider and returns the validated document.
// Errors are *failure.Error values. onProgress may be nil.
func (a *Analyzer) Analyze(ctx context.Context, in provider.Input, providerID, credential string, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, failure.Cancelled(err)
	}
	adapter, err := a.registry.Get(providerID)
	if err != nil {
		return nil, failure.Wrap(failure.KindUnknown, err)
	}
	id := string(adapter.ID())
	log := a.log.With("provider", id)

	res, err := a.run(ctx, adapter, in, credential, newReporter(a.progress, onProgress), log)
	outcome := metric.OutcomeOK
	switch {
	case failure.IsCancelled(err):
		outcome = metric.OutcomeCancelled
	case err != nil:
		outcome = metric.OutcomeError
	case res.Repaired:
		outcome = metric.OutcomeRepaired
	}
	a.metrics.ObserveRequest(id, outcome, time.Since(start))

	if err != nil {
		err = withProvider(err, id)
		log.Warn("analysis failed", "kind", failure.KindOf(err), "error", err, "elapsed", time.Since(start))
		return nil, err
	}
	log.Info("analysis complete",
		"elements", len(res.Document.Elements),
		"attempts", res.Attempts,
		"truncated", res.Truncated,
		"repaired", res.Repaired,
		"warnings", len(res.Warnings),
		"elapsed", time.Since(start),
	)
	return res, nil
}

func (a *Analyzer) run(ctx context.Context, adapter provider.Adapter, in provider.Input, credential string, report *reporter, log *slog.Logger) (*Result, error) {
	id := string(adapter.ID())
	spec, err := adapter.BuildRequest(in, credential)
	if err != nil {
		return nil, failure.Wrap(failure.KindUnknown, fmt.Errorf("build request: %w", err))
	}
	log.Debug("sending request", "url", spec.URL, "body", provider.RedactBody(spec.Body))
	report.start("waiting for " + adapter.Name() + "…")

	opts := a.execOpts
	opts.OnRetry = func(n executor.Notice) {
		a.metrics.IncRetry(id)
		report.notice(n.Message())
	}
	resp, err := a.exec.Execute(ctx, spec, opts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := &Result{Attempts: resp.Attempts}
	res.RateLimit = adapter.RateLimits(resp.Header)
	a.store.Put(id, res.RateLimit)
	if low, msg := res.RateLimit.Low(); low {
		log.Warn("rate limit nearly exhausted", "detail", msg)
		res.Warnings = append(res.Warnings, failure.Warning{Kind: failure.KindRateLimit, Message: msg})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, adapter.Failure(resp.StatusCode, body)
	}

	var (
		text      strings.Builder
		truncated bool
	)
	body := &countingReader{r: resp.Body, onRead: func(total int64) {
		report.at(report.rng.Percent(total), "receiving design…")
	}}
	buffered := !provider.IsEventStream(resp.Header.Get("Content-Type"))
	err = adapter.Decode(body, buffered, func(ev provider.Event) {
		switch e := ev.(type) {
		case provider.AppendText:
			text.WriteString(e.Delta)
		case provider.Truncated:
			truncated = true
		case provider.Finished:
		}
	})
	if err != nil {
		return nil, streamError(ctx, err)
	}

	res.Truncated = truncated
	if truncated {
		a.metrics.IncTruncation(id)
	}
	raw := text.String()
	if strings.TrimSpace(raw) == "" {
		kind := failure.KindUnknown
		if truncated {
			kind = failure.KindTokenLimit
		}
		return nil, failure.New(kind, "no response content from %s", adapter.Name())
	}

	value, repaired, err := decodeDocument(raw, truncated)
	if err != nil {
		log.Debug("unrecoverable response", "bytes", len(raw), "error", err)
		return nil, err
	}
	res.Repaired = repaired
	if repaired {
		a.metrics.IncRepair(id)
	}
	switch {
	case truncated:
		log.Warn("response truncated by token limit", "repaired", repaired)
		res.Warnings = append(res.Warnings, failure.Warning{
			Kind:    failure.KindTokenLimit,
			Message: "output token limit reached; the design may be incomplete",
		})
	case repaired:
		log.Warn("response was incomplete and has been repaired")
		res.Warnings = append(res.Warnings, failure.Warning{
			Kind:    failure.KindTokenLimit,
			Message: "response was cut off; showing a best-effort design",
		})
	}

	res.Document = design.ValidateDocument(value)
	report.done("design received")
	return res, nil
}

// decodeDocument locates and parses the JSON document in raw, repairing
// it when it was cut off.
func decodeDocument(raw string, truncated bool) (map[string]any, bool, error) {
	body := jsonutil.Extract(raw)
	parsed := jsonutil.Parse(body)
	switch parsed.Status {
	case jsonutil.ParseOK:
		return parsed.Value, false, nil
	case jsonutil.ParseFailed:
		return nil, false, &failure.Error{Kind: failure.KindParse, Message: "response is not a design document", Err: parsed.Err}
	}

	if fixed, ok := jsonutil.Repair(body); ok {
		if again := jsonutil.Parse(fixed); again.Status == jsonutil.ParseOK {
			return again.Value, true, nil
		}
	}
	kind := failure.KindParse
	msg := "could not parse the design returned by the model"
	if truncated {
		kind = failure.KindTokenLimit
		msg = "the response hit the output token limit before any usable design was produced"
	}
	return nil, false, &failure.Error{Kind: kind, Message: msg, Err: parsed.Err}
}

// streamError classifies a failure while reading the body. A deadline
// here is the attempt timeout firing mid-stream.
func streamError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return failure.Cancelled(ctx.Err())
	}
	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Timeout(err)
	}
	return failure.Wrap(failure.KindUnknown, err)
}

func withProvider(err error, id string) error {
	var fe *failure.Error
	if errors.As(err, &fe) && fe.Provider == "" {
		fe.Provider = id
	}
	return err
}
