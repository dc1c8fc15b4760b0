package analysis

import (
	"io"

	"figmento/internal/progress"
)

// reporter forwards progress, holding the percentage at its high-water
// mark and skipping repeats of the same line.
type reporter struct {
	rng     progress.Range
	fn      ProgressFunc
	last    int
	lastMsg string
	sent    bool
}

func newReporter(rng progress.Range, fn ProgressFunc) *reporter {
	return &reporter{rng: rng, fn: fn, last: rng.Percent(0)}
}

func (r *reporter) start(msg string) {
	lo, _ := r.rng.Bounds()
	r.at(lo, msg)
}

func (r *reporter) done(msg string) {
	_, hi := r.rng.Bounds()
	r.at(hi, msg)
}

func (r *reporter) at(percent int, msg string) {
	if percent < r.last {
		percent = r.last
	}
	if r.sent && percent == r.last && msg == r.lastMsg {
		return
	}
	r.last, r.lastMsg, r.sent = percent, msg, true
	if r.fn != nil {
		r.fn(percent, msg)
	}
}

// notice forwards a one-off message at the current percentage. Retry
// notices go through here so equal waits are each reported.
func (r *reporter) notice(msg string) {
	r.lastMsg, r.sent = msg, true
	if r.fn != nil {
		r.fn(r.last, msg)
	}
}

type countingReader struct {
	r      io.Reader
	total  int64
	onRead func(total int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.total += int64(n)
		c.onRead(c.total)
	}
	return n, err
}
