package design

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asList wraps a lone value so a single fill written as an object still
// counts as one layer.
func asList(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	default:
		return []any{x}
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// asNumber accepts JSON numbers and numeric strings such as "24" or "24px".
// NaN and infinities are rejected.
func asNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(x), "px")
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func numberOr(v any, def float64) float64 {
	if f, ok := asNumber(v); ok {
		return f
	}
	return def
}

func optNumber(v any) *float64 {
	if f, ok := asNumber(v); ok {
		return &f
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// first returns the first of keys present in m.
func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func upper(v any) string {
	return strings.ToUpper(asString(v))
}

// oneOf returns v upper-cased when it is allowed, else def.
func oneOf(v any, def string, allowed ...string) string {
	s := strings.ReplaceAll(upper(v), "-", "_")
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	return def
}

var (
	hexRe = regexp.MustCompile(`^#?([0-9a-fA-F]{3,8})$`)
	rgbRe = regexp.MustCompile(`(?i)^rgba?\(\s*([\d.]+)\s*,\s*([\d.]+)\s*,\s*([\d.]+)`)
)

// NormalizeColor returns a '#'-prefixed hex color. Three and six digit
// forms are kept as written; alpha digits are dropped; rgb()/rgba() is
// converted. Anything else yields def.
func NormalizeColor(v any, def string) string {
	s := asString(v)
	if m := hexRe.FindStringSubmatch(s); m != nil {
		hex := m[1]
		switch len(hex) {
		case 3, 6:
			return "#" + hex
		case 4:
			return "#" + hex[:3]
		case 8:
			return "#" + hex[:6]
		}
		return def
	}
	if m := rgbRe.FindStringSubmatch(s); m != nil {
		var rgb [3]int
		for i := range rgb {
			f, err := strconv.ParseFloat(m[i+1], 64)
			if err != nil {
				return def
			}
			rgb[i] = int(clamp(math.Round(f), 0, 255))
		}
		return fmt.Sprintf("#%02X%02X%02X", rgb[0], rgb[1], rgb[2])
	}
	return def
}
