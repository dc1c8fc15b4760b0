package jsonutil

import (
	"regexp"
	"strings"
)

// An unterminated fence runs to the end of the text.
var fenceRe = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)(?:```|$)")

// Extract returns the JSON-looking part of model output: the first fenced
// code block if there is one, else the text from the first '{' to the last
// '}', else the trimmed text itself. When the object opened at the first
// '{' never closes, the stream was cut off and everything after it is kept
// for repair.
func Extract(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		if body := strings.TrimSpace(m[1]); body != "" {
			return body
		}
	}
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return strings.TrimSpace(text)
	}
	if !objectCloses(text[start:]) {
		return strings.TrimSpace(text[start:])
	}
	end := strings.LastIndexByte(text, '}')
	return text[start : end+1]
}

// objectCloses reports whether the object starting at text[0] reaches depth
// zero again, ignoring braces inside strings.
func objectCloses(text string) bool {
	depth := 0
	inString := false
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return true
			}
		}
	}
	return false
}
