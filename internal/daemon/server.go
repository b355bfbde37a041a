// Package daemon implements the HTTP ingest server: action intake,
// session lifecycle, rule and detection queries, and a server-sent
// event stream of live detections.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seqguard/seqguard/internal/config"
	"github.com/seqguard/seqguard/internal/logger"
	"github.com/seqguard/seqguard/internal/sink"
	"github.com/seqguard/seqguard/internal/tracker"
)

// Server is the seqguard ingest HTTP server.
type Server struct {
	httpServer  *http.Server
	handlers    *Handlers
	broadcaster *SSEBroadcaster
	addr        string
}

// NewServer wires the API around an existing tracker. store, metrics
// and gatherer may be nil when the corresponding feature is disabled.
func NewServer(cfg *config.Config, trk *tracker.Tracker, store *sink.Store, metrics *sink.Metrics, gatherer prometheus.Gatherer, version string) *Server {
	broadcaster := NewSSEBroadcaster()
	handlers := NewHandlers(trk, store, metrics, broadcaster, version)

	bind := cfg.Server.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8642
	}
	addr := fmt.Sprintf("%s:%d", bind, port)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health)
	mux.HandleFunc("POST /api/actions", handlers.IngestAction)
	mux.HandleFunc("GET /api/sessions", handlers.Sessions)
	mux.HandleFunc("POST /api/sessions/{id}/close", handlers.CloseSession)
	mux.HandleFunc("GET /api/sessions/{id}/recent", handlers.Recent)
	mux.HandleFunc("GET /api/rules", handlers.Rules)
	mux.HandleFunc("GET /api/detections", handlers.Detections)
	mux.HandleFunc("GET /api/stats", handlers.Stats)

	mux.HandleFunc("GET /sse/detections", broadcaster.ServeHTTP)

	if cfg.Server.Metrics && gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           corsMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
		handlers:    handlers,
		broadcaster: broadcaster,
		addr:        addr,
	}
}

// Broadcaster exposes the SSE fan-out so it can be registered as a
// detection sink.
func (s *Server) Broadcaster() *SSEBroadcaster {
	return s.broadcaster
}

// Start starts the server.
func (s *Server) Start(ctx context.Context) error {
	s.broadcaster.Start(ctx)

	logger.Info().
		Str("addr", s.addr).
		Str("url", fmt.Sprintf("http://%s", s.addr)).
		Msg("Starting seqguard ingest daemon")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	logger.Info().Msg("Stopping seqguard ingest daemon")

	s.broadcaster.Stop()

	return s.httpServer.Shutdown(ctx)
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
