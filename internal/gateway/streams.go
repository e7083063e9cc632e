package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Stream is an open /v1/stream connection.
type Stream struct {
	ID      string    `json:"id"`
	Origin  string    `json:"origin"`
	Request string    `json:"request"`
	Started time.Time `json:"started"`

	cancel context.CancelFunc
}

func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	streams := s.streams.Values(func(a, b *Stream) bool {
		return a.Started.Before(b.Started)
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"streams": streams})
}

// handleCancelStream ends a stream as if its caller had hung up.
func (s *Server) handleCancelStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stream, ok := s.streams.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "error": "no such stream: " + id})
		return
	}
	stream.cancel()
	s.logger.Info("Stream cancelled by admin", zap.String("stream", id))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
