// Package api provides HTTP handlers and the API server for coachd.
//
// It exposes RESTful endpoints for coaching conversation turns, practice
// lifecycle actions, and decision metrics. The API integrates with the coach
// pipeline and the store modules.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Default server settings, overridable via options.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server hosts the coachd HTTP API over a coaching pipeline.
type Server struct {
	pipeline Pipeline
	addr     string
	httpSrv  *http.Server
}

// NewServer creates an API server around the given pipeline.
func NewServer(pipeline Pipeline, opts ...Option) *Server {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Addr == "" {
		o.Addr = DefaultAddr
	}
	return &Server{pipeline: pipeline, addr: o.Addr}
}

// Handler returns the routed handler for the API, exposed for testing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", s.messagesHandler)
	mux.HandleFunc("/v1/practice/", s.practiceHandler)
	mux.HandleFunc("/v1/metrics", s.metricsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run() error {
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	slog.Info("Server.Run: coachd API listening", "addr", s.addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
