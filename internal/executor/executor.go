// Package executor issues one logical HTTP call with a per-attempt timeout,
// exponential backoff on transient failures, and caller cancellation.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"figmento/internal/failure"
)

const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 120 * time.Second
	DefaultBaseDelay      = time.Second
)

// RequestSpec describes a request; a fresh *http.Request is built from it on
// every attempt.
type RequestSpec struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Notice is the advisory emitted before waiting for the next attempt.
type Notice struct {
	Attempt int
	Wait    time.Duration
	Err     error
}

// Message renders the notice for end users.
func (n Notice) Message() string {
	secs := int(math.Ceil(n.Wait.Seconds()))
	return fmt.Sprintf("retrying in %ds…", secs)
}

// Options tune one Execute call. Zero values take the package defaults.
type Options struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BaseDelay      time.Duration
	OnRetry        func(Notice)
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	return o
}

// Response is the final attempt's response. The attempt's timeout keeps
// running until Body is closed.
type Response struct {
	*http.Response
	Attempts int
}

// Executor runs requests against a shared client.
type Executor struct {
	client *http.Client
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New returns an Executor. A nil client uses http.DefaultClient and a nil
// logger uses slog.Default().
func New(client *http.Client, logger *slog.Logger) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, log: logger, sleep: sleepCtx}
}

// Execute sends spec until it gets a non-5xx response or runs out of
// attempts. Cancellation of ctx is never retried. When the last attempt
// still answers 5xx, that response is returned so the caller can read the
// vendor's error body.
func (e *Executor) Execute(ctx context.Context, spec RequestSpec, opts Options) (*Response, error) {
	opts = opts.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, failure.Cancelled(err)
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		resp, err := e.attempt(ctx, spec, opts.AttemptTimeout)
		if ctx.Err() != nil {
			if resp != nil {
				_ = resp.Body.Close()
			}
			return nil, failure.Cancelled(ctx.Err())
		}

		last := attempt == opts.MaxAttempts
		switch {
		case err != nil:
			var fe *failure.Error
			if errors.As(err, &fe) && fe.Kind == failure.KindUnknown {
				// Malformed request; no point in sending it again.
				return nil, err
			}
			lastErr = err
			e.log.Debug("request attempt failed", "url", spec.URL, "attempt", attempt, "error", err)
		case resp.StatusCode >= 500:
			if last {
				return &Response{Response: resp, Attempts: attempt}, nil
			}
			lastErr = fmt.Errorf("server error %s", resp.Status)
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			e.log.Debug("request attempt got server error", "url", spec.URL, "attempt", attempt, "status", resp.StatusCode)
		default:
			return &Response{Response: resp, Attempts: attempt}, nil
		}

		if last {
			break
		}
		wait := opts.BaseDelay * time.Duration(1<<(attempt-1))
		notice := Notice{Attempt: attempt, Wait: wait, Err: lastErr}
		e.log.Info("retrying request", "url", spec.URL, "attempt", attempt, "wait", wait, "error", lastErr)
		if opts.OnRetry != nil {
			opts.OnRetry(notice)
		}
		if err := e.sleep(ctx, wait); err != nil {
			return nil, failure.Cancelled(err)
		}
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, failure.Timeout(lastErr)
	}
	return nil, &failure.Error{
		Kind:    failure.KindUnknown,
		Message: fmt.Sprintf("request failed after %d attempts: %v", opts.MaxAttempts, lastErr),
		Err:     lastErr,
	}
}

func (e *Executor) attempt(ctx context.Context, spec RequestSpec, timeout time.Duration) (*http.Response, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	method := spec.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(actx, method, spec.URL, bytes.NewReader(spec.Body))
	if err != nil {
		cancel()
		return nil, failure.Wrap(failure.KindUnknown, fmt.Errorf("create request: %w", err))
	}
	for k, vs := range spec.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		cancel()
		if actx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
