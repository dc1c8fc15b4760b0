package jsonutil

import (
	"encoding/json"
	"strings"
)

type scanState int

const (
	stateKeyOrEnd   scanState = iota // just after '{'
	stateKey                         // after ',' in an object
	stateColon                       // after a key
	stateValueOrEnd                  // just after '['
	stateValue                       // after ':' or after ',' in an array
	stateAfterValue                  // after a complete member or element
)

type frame struct {
	open  byte
	state scanState
}

// safePoint is a prefix length at which the text, followed by the closers
// of the recorded stack, is valid JSON.
type safePoint struct {
	at    int
	stack []frame
}

// Repair closes a document that was cut off mid-stream. It returns false
// when the brackets outside strings are already balanced, since such text
// is not a truncation and the original parse error should stand.
//
// Otherwise the text is scanned left to right. An open value string is
// closed with a quote, a dangling comma, key or partial token is dropped,
// and every open bracket is closed in reverse order. The result always
// parses as JSON.
func Repair(s string) (string, bool) {
	if balanced(s) {
		return "", false
	}

	var (
		stack    []frame
		safe     = safePoint{at: -1}
		inString bool
		isKey    bool
		escape   bool
		hexLeft  int
		escStart int
		tokStart = -1
		stopped  bool
		rootDone bool
	)
	mark := func(at int) {
		safe = safePoint{at: at, stack: append([]frame(nil), stack...)}
	}
	top := func() *frame { return &stack[len(stack)-1] }
	// completeValue moves the enclosing container past a finished value.
	completeValue := func(end int) {
		if len(stack) == 0 {
			rootDone = true
			return
		}
		top().state = stateAfterValue
		mark(end)
	}
	expectsValue := func() bool {
		if len(stack) == 0 {
			return false
		}
		st := top().state
		return st == stateValue || st == stateValueOrEnd
	}
	// endToken validates a bare scalar ending before index end.
	endToken := func(end int) bool {
		tok := s[tokStart:end]
		tokStart = -1
		if !json.Valid([]byte(tok)) {
			return false
		}
		completeValue(end)
		return true
	}

scan:
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case hexLeft > 0:
				if !isHex(c) {
					stopped = true
					break scan
				}
				hexLeft--
			case escape:
				escape = false
				switch c {
				case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
				case 'u':
					hexLeft = 4
				default:
					stopped = true
					break scan
				}
			case c == '\\':
				escape = true
				escStart = i
			case c == '"':
				inString = false
				if isKey {
					top().state = stateColon
				} else {
					completeValue(i + 1)
				}
			case c < 0x20:
				stopped = true
				break scan
			}
			continue
		}

		if tokStart >= 0 {
			if isTokenByte(c) {
				continue
			}
			if !endToken(i) {
				stopped = true
				break scan
			}
		}
		if rootDone {
			break
		}

		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			if len(stack) > 0 && !expectsValue() {
				stopped = true
				break scan
			}
			st := stateKeyOrEnd
			if c == '[' {
				st = stateValueOrEnd
			}
			stack = append(stack, frame{open: c, state: st})
			mark(i + 1)
		case '}', ']':
			if len(stack) == 0 {
				stopped = true
				break scan
			}
			f := top()
			ok := (c == '}' && f.open == '{' && (f.state == stateKeyOrEnd || f.state == stateAfterValue)) ||
				(c == ']' && f.open == '[' && (f.state == stateValueOrEnd || f.state == stateAfterValue))
			if !ok {
				stopped = true
				break scan
			}
			stack = stack[:len(stack)-1]
			completeValue(i + 1)
		case '"':
			if len(stack) == 0 {
				stopped = true
				break scan
			}
			switch top().state {
			case stateKeyOrEnd, stateKey:
				isKey = true
			case stateValue, stateValueOrEnd:
				isKey = false
			default:
				stopped = true
				break scan
			}
			inString = true
		case ':':
			if len(stack) == 0 || top().state != stateColon {
				stopped = true
				break scan
			}
			top().state = stateValue
		case ',':
			if len(stack) == 0 || top().state != stateAfterValue {
				stopped = true
				break scan
			}
			if top().open == '{' {
				top().state = stateKey
			} else {
				top().state = stateValue
			}
		default:
			if !isTokenByte(c) || !expectsValue() {
				stopped = true
				break scan
			}
			tokStart = i
		}
	}

	if !stopped && !rootDone {
		switch {
		case inString && !isKey:
			cut := len(s)
			if escape || hexLeft > 0 {
				cut = escStart
			}
			return finish(s[:cut]+`"`, stack)
		case tokStart >= 0 && json.Valid([]byte(s[tokStart:])):
			return finish(s, stack)
		}
	}
	if safe.at < 0 {
		return "", false
	}
	return finish(s[:safe.at], safe.stack)
}

func finish(prefix string, stack []frame) (string, bool) {
	var b strings.Builder
	b.Grow(len(prefix) + len(stack))
	b.WriteString(prefix)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].open == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	out := b.String()
	if !json.Valid([]byte(out)) {
		return "", false
	}
	return out, true
}

// balanced reports whether every '{' and '[' outside strings is matched.
func balanced(s string) bool {
	depth := 0
	inString := false
	escape := false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		}
	}
	return depth <= 0
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isTokenByte(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') ||
		c == '-' || c == '+' || c == '.'
}
