package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Snapshot is the normalized rate-limit state a provider reported on its
// most recent response. Nil fields are unknown.
type Snapshot struct {
	RequestsLimit     *int
	RequestsRemaining *int
	TokensLimit       *int
	TokensRemaining   *int

	RequestsReset *time.Time
	TokensReset   *time.Time
	RetryAfter    *time.Duration

	UpdatedAt time.Time
}

// HeaderSet names the response headers a provider uses for each field.
// Empty names are not read.
type HeaderSet struct {
	RequestsLimit     string
	RequestsRemaining string
	RequestsReset     string
	TokensLimit       string
	TokensRemaining   string
	TokensReset       string
	RetryAfter        string
}

// Parse reads set from h. A header that is present but not numeric leaves
// its field unknown.
func Parse(h http.Header, set HeaderSet, now time.Time) Snapshot {
	out := Snapshot{UpdatedAt: now}

	readInt := func(key string) *int {
		if key == "" {
			return nil
		}
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil
		}
		return &n
	}
	readReset := func(key string) *time.Time {
		if key == "" {
			return nil
		}
		v := strings.TrimSpace(h.Get(key))
		if v == "" {
			return nil
		}
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return &ts
		}
		if d, err := time.ParseDuration(v); err == nil {
			ts := now.Add(d)
			return &ts
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			ts := now.Add(time.Duration(secs * float64(time.Second)))
			return &ts
		}
		return nil
	}

	out.RequestsLimit = readInt(set.RequestsLimit)
	out.RequestsRemaining = readInt(set.RequestsRemaining)
	out.TokensLimit = readInt(set.TokensLimit)
	out.TokensRemaining = readInt(set.TokensRemaining)
	out.RequestsReset = readReset(set.RequestsReset)
	out.TokensReset = readReset(set.TokensReset)
	if secs := readInt(set.RetryAfter); secs != nil {
		d := time.Duration(*secs) * time.Second
		out.RetryAfter = &d
	}
	return out
}

// Known reports whether any field was read.
func (s Snapshot) Known() bool {
	return s.RequestsLimit != nil || s.RequestsRemaining != nil ||
		s.TokensLimit != nil || s.TokensRemaining != nil ||
		s.RequestsReset != nil || s.TokensReset != nil || s.RetryAfter != nil
}

// LowThreshold is the remaining/limit fraction at or below which quota is
// considered low.
const LowThreshold = 0.10

// Low reports whether the snapshot shows exhausted or nearly exhausted quota,
// with a human-readable description.
func (s Snapshot) Low() (bool, string) {
	var parts []string
	check := func(name string, remaining, limit *int, reset *time.Time) {
		if remaining == nil {
			return
		}
		low := *remaining <= 0
		if !low && limit != nil && *limit > 0 {
			low = float64(*remaining) <= float64(*limit)*LowThreshold
		}
		if !low {
			return
		}
		msg := fmt.Sprintf("%s: %d remaining", name, *remaining)
		if limit != nil {
			msg = fmt.Sprintf("%s: %d of %d remaining", name, *remaining, *limit)
		}
		if reset != nil {
			if wait := reset.Sub(s.UpdatedAt); wait > 0 {
				msg += fmt.Sprintf(", resets in %s", wait.Round(time.Second))
			}
		}
		parts = append(parts, msg)
	}
	check("requests", s.RequestsRemaining, s.RequestsLimit, s.RequestsReset)
	check("tokens", s.TokensRemaining, s.TokensLimit, s.TokensReset)
	if len(parts) == 0 {
		return false, ""
	}
	return true, strings.Join(parts, "; ")
}

// NextWait converts the snapshot into a suggested wait before the next call.
func (s Snapshot) NextWait(now time.Time) time.Duration {
	if s.RetryAfter != nil && *s.RetryAfter > 0 {
		return *s.RetryAfter
	}
	if s.TokensRemaining != nil && *s.TokensRemaining == 0 && s.TokensReset != nil {
		if d := s.TokensReset.Sub(now); d > 0 {
			return d
		}
	}
	if s.RequestsRemaining != nil && *s.RequestsRemaining == 0 && s.RequestsReset != nil {
		if d := s.RequestsReset.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
