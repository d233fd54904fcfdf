// Package http hosts the API on a stdlib server with health and metrics
// endpoints around it.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/messmate/messmate/internal/infra/metrics"
)

type Server struct {
	srv *http.Server
	log *slog.Logger
}

func New(addr string, api http.Handler, metricsEnabled bool, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	mux.Handle("/", api)

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Run blocks until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.log.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
