package sse

import (
	"bytes"
	"strings"
)

// DoneToken is the end-of-stream marker some vendors send as a data payload.
const DoneToken = "[DONE]"

const dataPrefix = "data:"

// Record is one blank-line terminated server-sent event.
type Record struct {
	Lines []string
}

// Event returns the value of the record's "event:" field, if any.
func (r Record) Event() string {
	for _, line := range r.Lines {
		if v, ok := strings.CutPrefix(line, "event:"); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Payload joins the record's data lines. A record without data lines, or
// whose payload is the DoneToken, has no payload.
func (r Record) Payload() (string, bool) {
	var parts []string
	for _, line := range r.Lines {
		v, ok := strings.CutPrefix(line, dataPrefix)
		if !ok {
			continue
		}
		parts = append(parts, strings.TrimPrefix(v, " "))
	}
	if len(parts) == 0 {
		return "", false
	}
	payload := strings.Join(parts, "\n")
	if strings.TrimSpace(payload) == DoneToken {
		return "", false
	}
	return payload, true
}

// Framer assembles arbitrary read fragments into whole records.
// It is not safe for concurrent use; one Framer serves one response body.
type Framer struct {
	buf []byte
}

// Feed appends a fragment and returns every record completed by it.
func (f *Framer) Feed(fragment []byte) []Record {
	f.buf = append(f.buf, fragment...)
	f.buf = normalizeNewlines(f.buf)

	var out []Record
	for {
		idx := bytes.Index(f.buf, []byte("\n\n"))
		if idx < 0 {
			break
		}
		block := string(f.buf[:idx])
		f.buf = f.buf[idx+2:]
		if rec, ok := parseRecord(block); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Flush returns the trailing partial record, if any, and resets the buffer.
func (f *Framer) Flush() []Record {
	block := strings.TrimRight(string(normalizeNewlines(f.buf)), "\r\n")
	f.buf = nil
	if rec, ok := parseRecord(block); ok {
		return []Record{rec}
	}
	return nil
}

// Frame splits a fully buffered body into records.
func Frame(body []byte) []Record {
	var f Framer
	recs := f.Feed(body)
	return append(recs, f.Flush()...)
}

func parseRecord(block string) (Record, bool) {
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		// Comment lines carry keep-alives only.
		if strings.HasPrefix(line, ":") {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return Record{}, false
	}
	return Record{Lines: lines}, true
}

// normalizeNewlines rewrites CRLF and lone CR line endings to LF. A CR at the
// very end is kept because its LF may arrive in the next fragment.
func normalizeNewlines(b []byte) []byte {
	if bytes.IndexByte(b, '\r') < 0 {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != '\r' {
			out = append(out, c)
			continue
		}
		if i+1 == len(b) {
			out = append(out, c)
			break
		}
		if b[i+1] == '\n' {
			continue
		}
		out = append(out, '\n')
	}
	return out
}
