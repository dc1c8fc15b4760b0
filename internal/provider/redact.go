package provider

import (
	"encoding/base64"
	"encoding/json"
	"regexp"

	"figmento/internal/util/jsonutil"
)

const redacted = "[REDACTED media]"

var reDataURL = regexp.MustCompile(`(?is)\bdata:(image|video|audio)/[a-z0-9+.-]+;base64,[a-z0-9+/=\r\n]+`)

// RedactBody renders a request body for logging with inline media
// replaced by a marker. Bodies that are not JSON are summarized by size.
func RedactBody(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return "[unparsed body]"
	}
	out, err := jsonutil.MarshalNoEscape(redactMedia(v))
	if err != nil {
		return "[unparsed body]"
	}
	return string(out)
}

func redactMedia(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = redactMedia(vv)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = redactMedia(vv)
		}
		return out
	case string:
		if reDataURL.MatchString(x) || looksLikeBase64(x) {
			return redacted
		}
		return x
	default:
		return v
	}
}

func looksLikeBase64(s string) bool {
	if len(s) < 512 {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}
