// Package api serves a read-only HTTP view of pipeline runs: the live
// status file, the run metadata and the run history.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/meshflow/internal/state"
	"github.com/leapstack-labs/meshflow/internal/status"
	"github.com/leapstack-labs/meshflow/internal/watch"
)

// Config holds configuration for the API server.
type Config struct {
	StatusDir   string
	MetadataDir string // defaults to StatusDir
	// History is optional; history routes answer 503 without it
	History state.Store
	Host    string
	Port    int
	Logger  *slog.Logger
}

// Server is the HTTP read API.
type Server struct {
	statusPath   string
	metadataPath string
	history      state.Store
	addr         string
	logger       *slog.Logger
	notifier     *watch.Notifier
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	metadataDir := cfg.MetadataDir
	if metadataDir == "" {
		metadataDir = cfg.StatusDir
	}
	return &Server{
		statusPath:   filepath.Join(cfg.StatusDir, status.StatusFileName),
		metadataPath: filepath.Join(metadataDir, status.MetadataFileName),
		history:      cfg.History,
		addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		logger:       logger,
		notifier:     watch.NewNotifier(),
	}
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *watch.Notifier {
	return s.notifier
}

// Handler returns the router with every API route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		s.requestLogger,
		middleware.Recoverer,
	)
	s.setupRoutes(r)
	return r
}

// Serve starts the server and the status watcher and blocks until the
// context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting API server", "addr", "http://"+s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	w := watch.NewWatcher(filepath.Dir(s.statusPath), []string{status.StatusFileName}, s.notifier, s.logger)
	eg.Go(func() error {
		if err := w.Run(egctx); err != nil {
			// Serving stays useful without live updates
			s.logger.Warn("status watcher stopped", "error", err)
		}
		return nil
	})

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down API server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// requestLogger logs each request through the structured logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
