// Package progress maps bytes received from a streaming response onto a
// bounded percentage range.
package progress

// Default sub-range reserved for the streaming stage. The remainder of the
// 0..100 scale belongs to stages that run after analysis.
const (
	DefaultMin = 10
	DefaultMax = 58

	// DefaultExpectedBytes approximates the size of a complete design
	// document; responses larger than this pin progress at Max.
	DefaultExpectedBytes = 16 * 1024
)

// Range describes the percentage window and the byte count that fills it.
type Range struct {
	Min           int
	Max           int
	ExpectedBytes int64
}

// DefaultRange returns the 10..58 window.
func DefaultRange() Range {
	return Range{Min: DefaultMin, Max: DefaultMax, ExpectedBytes: DefaultExpectedBytes}
}

func (r Range) normalized() Range {
	if r.Min < 0 {
		r.Min = 0
	}
	if r.Max > 100 {
		r.Max = 100
	}
	if r.Max < r.Min {
		r.Max = r.Min
	}
	if r.ExpectedBytes <= 0 {
		r.ExpectedBytes = DefaultExpectedBytes
	}
	return r
}

// Bounds returns the effective window after clamping to 0..100.
func (r Range) Bounds() (lo, hi int) {
	r = r.normalized()
	return r.Min, r.Max
}

// Percent returns the progress for received bytes. It is monotonically
// non-decreasing in received and always within [Min, Max].
func (r Range) Percent(received int64) int {
	r = r.normalized()
	if received <= 0 {
		return r.Min
	}
	if received >= r.ExpectedBytes {
		return r.Max
	}
	span := int64(r.Max - r.Min)
	return r.Min + int(span*received/r.ExpectedBytes)
}
