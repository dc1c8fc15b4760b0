package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"figmento/internal/failure"
	"figmento/internal/sse"
)

const readChunk = 4 << 10

// errMalformed marks a record that could not be decoded. Such records are
// skipped; anything else a recordDecoder returns aborts the stream.
var errMalformed = errors.New("malformed record")

type recordDecoder func(rec sse.Record, payload string, emit func(Event)) error

// wholeDecoder tries the entire buffered body as a single vendor object.
type wholeDecoder func(body []byte, emit func(Event)) bool

func decodeEvents(r io.Reader, buffered bool, whole wholeDecoder, decode recordDecoder, emit func(Event)) error {
	if buffered {
		body, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if whole != nil && whole(body, emit) {
			emit(Finished{})
			return nil
		}
		for _, rec := range sse.Frame(body) {
			if err := decodeRecord(rec, decode, emit); err != nil {
				return err
			}
		}
		emit(Finished{})
		return nil
	}

	var f sse.Framer
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, rec := range f.Feed(buf[:n]) {
				if derr := decodeRecord(rec, decode, emit); derr != nil {
					return derr
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
	}
	for _, rec := range f.Flush() {
		if err := decodeRecord(rec, decode, emit); err != nil {
			return err
		}
	}
	emit(Finished{})
	return nil
}

func decodeRecord(rec sse.Record, decode recordDecoder, emit func(Event)) error {
	payload, ok := rec.Payload()
	if !ok {
		return nil
	}
	err := decode(rec, payload, emit)
	if errors.Is(err, errMalformed) {
		return nil
	}
	return err
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", errMalformed, err)
}

// apiFailure builds the failure for an error response or an in-stream
// error envelope. An empty message falls back to the status code.
func apiFailure(id ID, name string, status int, message string) error {
	kind := failure.KindUnknown
	if status == http.StatusTooManyRequests {
		kind = failure.KindRateLimit
	}
	var fe *failure.Error
	if message != "" {
		fe = failure.New(kind, "%s", message)
	} else {
		fe = failure.New(kind, "%s API error %d", name, status)
	}
	fe.Provider = string(id)
	return fe
}

// streamFailure is an error envelope received inside a 200 response.
func streamFailure(id ID, name, errType, message string) error {
	kind := failure.KindUnknown
	if errType == "rate_limit_error" || errType == "rate_limit_exceeded" {
		kind = failure.KindRateLimit
	}
	if message == "" {
		message = errType
	}
	fe := failure.New(kind, "%s stream error: %s", name, message)
	fe.Provider = string(id)
	return fe
}
