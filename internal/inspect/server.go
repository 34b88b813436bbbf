package inspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/indexkit/switchstore/internal/apperrors"
	"github.com/indexkit/switchstore/internal/store"
	"github.com/indexkit/switchstore/internal/version"
)

const (
	// HTTP server timeouts.
	readHeaderTimeout = 10 * time.Second // Timeout for reading request headers
	shutdownTimeout   = 30 * time.Second // Timeout for graceful shutdown
)

// Server is the inspection HTTP server.
type Server struct {
	handler    *Handler
	httpServer *http.Server
	config     *ServerConfig
	logger     *slog.Logger
	worker     *SnapshotWorker
	workerDone chan struct{}
	cancelFunc context.CancelFunc

	mu      sync.Mutex
	running bool
}

// NewServer creates a new inspection server over a composite store.
// If worker is not nil, it will be started alongside the HTTP server.
func NewServer(cfg *ServerConfig, st *store.SwitchStore, logger *slog.Logger, worker *SnapshotWorker) *Server {
	handler := NewHandler(st, logger, worker)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handler.HandleHealth)
	mux.HandleFunc("/api/version", handler.HandleVersion)
	mux.HandleFunc("/v1/files", handler.HandleFiles)
	mux.HandleFunc("/v1/files/", handler.HandleFile)
	mux.HandleFunc("/v1/pending", handler.HandlePending)
	mux.HandleFunc("/v1/stores", handler.HandleStores)
	mux.HandleFunc("/v1/snapshot", handler.HandleSnapshot)

	// Wrap with logging middleware
	loggedHandler := loggingMiddleware(mux, logger)

	return &Server{
		handler: handler,
		config:  cfg,
		logger:  logger,
		worker:  worker,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           loggedHandler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start starts the HTTP server. This method blocks until the server is stopped.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return apperrors.ErrServerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "starting inspection server",
		"port", s.config.Port,
		"snapshot_delay", s.config.SnapshotDelay,
		"version", version.Version,
		"commit", version.Commit,
		"build_time", version.BuildTime)

	// Create a cancellable context for the snapshot worker
	workerCtx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel

	// Start snapshot worker if configured
	if s.worker != nil {
		s.workerDone = make(chan struct{})
		go func() {
			defer close(s.workerDone)
			s.worker.Start(workerCtx)
		}()
	}

	// Start server in a goroutine so we can handle context cancellation
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "shutting down inspection server")
		// Detach the shutdown context so a canceled parent cannot cut the
		// graceful drain short
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the snapshot worker context
	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	// Wait for the snapshot worker to finish
	if s.workerDone != nil {
		s.logger.InfoContext(ctx, "waiting for snapshot worker to finish")
		<-s.workerDone
		s.logger.InfoContext(ctx, "snapshot worker finished")
	}

	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server's address. Useful for testing.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// loggingMiddleware logs all HTTP requests.
func loggingMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			written:        false,
		}

		next.ServeHTTP(wrapped, req)

		logger.Info("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", wrapped.statusCode,
			"remote_addr", req.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
