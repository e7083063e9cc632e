package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/billie-coop/ollamagate/internal/events"
	"github.com/billie-coop/ollamagate/internal/llm"
	"github.com/billie-coop/ollamagate/internal/llm/queue"
)

const (
	writeWait        = 10 * time.Second
	firstMessageWait = 30 * time.Second
)

// handleRequest runs a one-shot request. Failures are answered with 200 and a
// Result so callers only ever parse one shape; only undecodable input gets 400.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, llm.Failure(err.Error()))
		return
	}
	req, err := llm.DecodeRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, llm.Failure(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, s.app.Service.Handle(r.Context(), req, callerOrigin(r)))
}

// wsSink writes stream events to a websocket. Writes after close fail.
type wsSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (s *wsSink) Send(e llm.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(e)
}

// close sends a normal closure and stops further writes.
func (s *wsSink) close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// handleStream serves one streamed request per connection. The caller sends a
// single request message; the server answers with events and closes after the
// terminal one. Closing the socket early cancels the upstream exchange.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	caller := callerOrigin(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxBodyBytes)

	id := uuid.NewString()
	logger := s.logger.With(zap.String("stream", id), zap.String("origin", caller))
	sink := &wsSink{conn: conn}
	defer sink.close("")

	_ = conn.SetReadDeadline(time.Now().Add(firstMessageWait))
	_, data, err := conn.ReadMessage()
	if err != nil {
		logger.Debug("Stream closed before request", zap.Error(err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	req, err := llm.DecodeRequest(data)
	if err != nil {
		_ = sink.Send(llm.Event{Type: llm.EventError, Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.streams.Set(id, &Stream{
		ID:      id,
		Origin:  caller,
		Request: llm.Name(req),
		Started: time.Now(),
		cancel:  cancel,
	})
	defer s.streams.Delete(id)

	// Anything read after the request, including a close frame, ends the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	logger.Debug("Stream opened", zap.String("request", llm.Name(req)))
	err = s.app.Service.OpenStream(ctx, req, caller, sink)
	if err != nil && !errors.Is(err, llm.ErrDisconnected) {
		logger.Debug("Stream ended with error", zap.Error(err))
	}
}

// statusObserver pushes queue snapshots to a websocket.
type statusObserver struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (o *statusObserver) Notify(s queue.Snapshot) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := o.conn.WriteJSON(s); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// handleStatus streams queue snapshots, starting with the current one, until
// the caller disconnects or a write fails.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	caller := callerOrigin(r)
	if caller != "" && !s.app.Origins.Authorize(r.Context(), caller) {
		writeError(w, http.StatusForbidden, fmt.Errorf("Unauthorized domain: %s", caller))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Status upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	obs := &statusObserver{conn: conn}
	h := s.app.Status.SubscribeFrom(events.Observer[queue.Snapshot](obs), s.app.Queue.Snapshot())
	defer s.app.Status.Unsubscribe(h)

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// statusMessage is what /admin/status returns.
type statusMessage struct {
	queue.Status
	Observers int `json:"observers"`
	Streams   int `json:"streams"`
}

func (s *Server) status() statusMessage {
	return statusMessage{
		Status:    s.app.QueueStatus(),
		Observers: s.app.Status.Len(),
		Streams:   s.streams.Len(),
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
