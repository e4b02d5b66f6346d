// Package diagnostics serves metrics and connection status over HTTP.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/klauspost/compress/gzip"

	"github.com/bitechdev/JobFeed/pkg/logger"
)

// Config holds configuration for the diagnostics server
type Config struct {
	// Addr is the listen address (e.g., ":9090")
	Addr string

	// Handler is the HTTP handler, usually from NewRouter
	Handler http.Handler

	// ShutdownTimeout bounds Shutdown. Default: 5 seconds
	ShutdownTimeout time.Duration

	// DrainTimeout is how long Shutdown waits for in-flight requests.
	// Default: 3 seconds
	DrainTimeout time.Duration

	// GZIP compresses responses for clients that accept it
	GZIP bool
}

// Server is an HTTP server with request draining on shutdown.
type Server struct {
	server          *http.Server
	shutdownTimeout time.Duration
	drainTimeout    time.Duration

	inFlight     atomic.Int64
	shuttingDown atomic.Bool
	shutdownOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// NewServer creates an unstarted server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 3 * time.Second
	}

	handler := cfg.Handler
	if handler == nil {
		return nil, errors.New("diagnostics: handler cannot be nil")
	}
	if cfg.GZIP {
		gz, err := gzhttp.NewWrapper(gzhttp.CompressionLevel(gzip.BestSpeed))
		if err != nil {
			return nil, fmt.Errorf("diagnostics: gzip wrapper: %w", err)
		}
		handler = gz(handler)
	}

	s := &Server{
		shutdownTimeout: cfg.ShutdownTimeout,
		drainTimeout:    cfg.DrainTimeout,
		serveErr:        make(chan error, 1),
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.trackRequests(handler),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("diagnostics: server already started")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("diagnostics: listen %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		logger.Info("[Diagnostics] Serving on %s", ln.Addr())
		err := s.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("[Diagnostics] Server failed: %v", err)
			s.serveErr <- err
		}
		close(s.serveErr)
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Err is closed when the server stops and carries a serve error, if any.
func (s *Server) Err() <-chan error {
	return s.serveErr
}

func (s *Server) trackRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.shuttingDown.Load() {
			http.Error(w, `{"error":"shutting_down"}`, http.StatusServiceUnavailable)
			return
		}
		s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops accepting requests, drains in-flight ones and closes the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.shuttingDown.Store(true)

		shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()

		drainCtx, drainCancel := context.WithTimeout(shutdownCtx, s.drainTimeout)
		defer drainCancel()
		if err := s.drain(drainCtx); err != nil {
			logger.Warn("[Diagnostics] %v", err)
		}

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			shutdownErr = err
		}
		logger.Info("[Diagnostics] Server stopped")
	})

	return shutdownErr
}

func (s *Server) drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		n := s.inFlight.Load()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain timeout exceeded: %d requests still in flight", n)
		case <-ticker.C:
		}
	}
}

// IsShuttingDown reports whether Shutdown has been called.
func (s *Server) IsShuttingDown() bool {
	return s.shuttingDown.Load()
}
