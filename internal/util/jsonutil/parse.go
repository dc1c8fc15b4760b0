package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseStatus is the outcome of Parse.
type ParseStatus int

const (
	// ParseOK means Value holds the decoded object.
	ParseOK ParseStatus = iota
	// ParseNeedsRepair means the text is not valid JSON; Err holds the
	// decoder error and the caller should try Repair.
	ParseNeedsRepair
	// ParseFailed means the text is valid JSON but not an object.
	ParseFailed
)

func (s ParseStatus) String() string {
	switch s {
	case ParseOK:
		return "ok"
	case ParseNeedsRepair:
		return "needs_repair"
	case ParseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseResult carries the decoded object or the reason there is none.
type ParseResult struct {
	Status ParseStatus
	Value  map[string]any
	Err    error
}

// Parse decodes s as a JSON object. A syntax error never fails outright; it
// is reported as ParseNeedsRepair. An object that was encoded a second time
// as a JSON string is unwrapped.
func Parse(s string) ParseResult {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return ParseResult{Status: ParseNeedsRepair, Err: err}
	}
	if str, ok := v.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(strings.TrimSpace(str)), &inner); err == nil {
			v = inner
		}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return ParseResult{Status: ParseFailed, Err: fmt.Errorf("jsonutil: top-level value is %s, want object", kindName(v))}
	}
	return ParseResult{Status: ParseOK, Value: obj}
}

func kindName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
