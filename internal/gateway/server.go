// Package gateway exposes the service to callers over HTTP and websockets.
//
// Routes:
//
//	POST /v1/request   one-shot request, answered with a Result
//	GET  /v1/stream    websocket: one request in, chunk/done/error events out
//	GET  /v1/status    websocket: queue snapshots as they change
//	     /admin/*      allow-list, endpoint, limits, queue, streams (loopback only)
//	GET  /healthz
//	GET  /metrics
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/billie-coop/ollamagate/internal/app"
	"github.com/billie-coop/ollamagate/internal/csync"
)

// DefaultAddr is the default listen address.
const DefaultAddr = "127.0.0.1:11435"

// Config controls the HTTP surface.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:11435"
	Addr string
	// RemoteAdmin allows /admin/* from non-loopback peers
	RemoteAdmin bool
	// Metrics exposes /metrics
	Metrics bool
	// MaxBodyBytes caps one-shot and stream request bodies
	MaxBodyBytes int64
}

// Server is the caller-facing HTTP server.
type Server struct {
	app      *app.App
	cfg      Config
	logger   *zap.Logger
	router   chi.Router
	upgrader websocket.Upgrader
	server   *http.Server

	// Open /v1/stream connections by id
	streams *csync.Map[string, *Stream]
}

// New builds the router for a.
func New(a *app.App, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}

	s := &Server{
		app:    a,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			// Origins are checked against the allow-list per request, not at upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		streams: csync.NewMap[string, *Stream](),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.cors)
		v1.Post("/request", s.handleRequest)
		v1.Get("/stream", s.handleStream)
		v1.Get("/status", s.handleStatus)
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(noBrowsers)
		if !cfg.RemoteAdmin {
			ar.Use(loopbackOnly)
		}
		s.adminRoutes(ar)
	})

	s.router = r
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gateway listening", zap.String("addr", ln.Addr().String()))
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Gateway shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
