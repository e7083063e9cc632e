package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// ErrDisconnected is returned by a relay that stopped because its caller went away.
var ErrDisconnected = errors.New("caller disconnected")

// EventType is the kind of a stream event.
type EventType string

const (
	EventChunk        EventType = "chunk"
	EventDone         EventType = "done"
	EventError        EventType = "error"
	EventDisconnected EventType = "disconnected"
)

// Event is one message delivered to a streaming caller.
// A stream is zero or more chunks followed by exactly one of done, error or disconnected.
type Event struct {
	Type  EventType       `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Sink receives stream events. A Send error means the caller is gone.
type Sink interface {
	Send(Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

// Send calls f(e).
func (f SinkFunc) Send(e Event) error { return f(e) }

// LineBuffer reassembles newline-delimited records from arbitrary fragments.
// Splitting happens on raw bytes, so a UTF-8 sequence cut between two fragments
// comes out whole.
type LineBuffer struct {
	buf   []byte
	ended bool
}

// Write appends a fragment and returns every record it completed.
// Records are trimmed; blank ones are skipped.
func (b *LineBuffer) Write(p []byte) [][]byte {
	if b.ended {
		return nil
	}
	b.buf = append(b.buf, p...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(b.buf[:i])
		if len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
		b.buf = b.buf[i+1:]
	}
	return lines
}

// Flush returns the unterminated remainder, or nil if there is none.
// Only the first call can return data.
func (b *LineBuffer) Flush() []byte {
	if b.ended {
		return nil
	}
	b.ended = true
	rest := bytes.TrimSpace(b.buf)
	b.buf = nil
	if len(rest) == 0 {
		return nil
	}
	return append([]byte(nil), rest...)
}

// Ended reports whether Flush has been called.
func (b *LineBuffer) Ended() bool {
	return b.ended
}

// Stream sends req and relays Ollama's NDJSON response to sink.
func (c *OllamaClient) Stream(ctx context.Context, req Request, sink Sink) error {
	body, err := req.Body()
	if err != nil {
		msg := fmt.Sprintf("encode request body: %v", err)
		_ = sink.Send(Event{Type: EventError, Error: msg})
		return errors.New(msg)
	}
	return c.StreamExchange(ctx, req.Endpoint(), req.Method(), req.Header(), body, sink)
}

// StreamExchange performs one streaming HTTP exchange.
// Failures before the body starts produce a single error event.
func (c *OllamaClient) StreamExchange(ctx context.Context, endpoint, method string, header http.Header, body []byte, sink Sink) error {
	resp, err := c.open(ctx, endpoint, method, header, body)
	if err != nil {
		if ctx.Err() != nil {
			return disconnect(sink, c.logger)
		}
		c.logger.Debug("Ollama stream failed to open", zap.String("endpoint", endpoint), zap.Error(err))
		_ = sink.Send(Event{Type: EventError, Error: ErrorMessage(err)})
		return err
	}
	defer resp.Body.Close()

	return Relay(ctx, resp.Body, sink, c.logger)
}

// Relay copies NDJSON records from r to sink until EOF, a read error,
// a sink error or ctx cancellation.
//
// Lines that are not valid JSON are dropped. At EOF any unterminated remainder
// gets one last parse before done is sent. When the caller goes away the relay
// stops reading and sends disconnected instead.
func Relay(ctx context.Context, r io.Reader, sink Sink, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var lb LineBuffer
	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return disconnect(sink, logger)
		}

		n, readErr := r.Read(buf)
		for _, line := range lb.Write(buf[:n]) {
			if err := emit(sink, line, logger); err != nil {
				return disconnect(sink, logger)
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return disconnect(sink, logger)
			}
			logger.Debug("Ollama stream read failed", zap.Error(readErr))
			if err := sink.Send(Event{Type: EventError, Error: ErrorMessage(readErr)}); err != nil {
				return disconnect(sink, logger)
			}
			return fmt.Errorf("read stream: %w", readErr)
		}
	}

	if rest := lb.Flush(); rest != nil {
		if err := emit(sink, rest, logger); err != nil {
			return disconnect(sink, logger)
		}
	}
	if err := sink.Send(Event{Type: EventDone}); err != nil {
		return disconnect(sink, logger)
	}
	return nil
}

func emit(sink Sink, line []byte, logger *zap.Logger) error {
	if !json.Valid(line) {
		logger.Debug("Dropping malformed stream line", zap.ByteString("line", line))
		return nil
	}
	return sink.Send(Event{Type: EventChunk, Data: json.RawMessage(line)})
}

// disconnect sends a best-effort disconnected event.
func disconnect(sink Sink, logger *zap.Logger) error {
	if err := sink.Send(Event{Type: EventDisconnected}); err != nil {
		logger.Debug("Stream caller already gone", zap.Error(err))
	}
	return ErrDisconnected
}
