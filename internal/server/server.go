// Package server exposes the task service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/nibzard/ordo/internal/metrics"
	"github.com/nibzard/ordo/internal/tasks"
)

// DefaultPageSize is used when a list request carries no limit.
const DefaultPageSize = 50

// MaxPageSize caps the limit of a list request.
const MaxPageSize = 500

const shutdownTimeout = 5 * time.Second

// Server serves the task API.
type Server struct {
	svc      *tasks.Service
	metrics  *metrics.Observer
	logger   *log.Logger
	access   *log.Logger
	pageSize int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger for lifecycle and error messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAccessLog sets the logger that receives one line per request.
func WithAccessLog(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.access = l
		}
	}
}

// WithMetrics records requests on m and serves it on /metrics.
func WithMetrics(m *metrics.Observer) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPageSize sets the default list limit.
func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// New returns a Server over svc.
func New(svc *tasks.Service, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		logger:   log.New(io.Discard),
		access:   log.New(io.Discard),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pageSize > MaxPageSize {
		s.pageSize = MaxPageSize
	}
	return s
}

// Handler returns the API routes wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/users", s.handleUsers)
	mux.HandleFunc("GET /v1/users/{user}/tasks", s.handleList)
	mux.HandleFunc("POST /v1/users/{user}/tasks", s.handleCreate)
	mux.HandleFunc("GET /v1/users/{user}/tasks/{id}", s.handleGet)
	mux.HandleFunc("PATCH /v1/users/{user}/tasks/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /v1/users/{user}/tasks/{id}", s.handleDelete)
	mux.HandleFunc("POST /v1/users/{user}/tasks/{id}/move", s.handleMove)
	mux.HandleFunc("POST /v1/users/{user}/rebalance", s.handleRebalance)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return s.withAccessLog(withSecurityHeaders(mux))
}

// Run listens on addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("serving", "addr", ln.Addr().String())
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, rec.status, elapsed)
		}
		s.access.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
