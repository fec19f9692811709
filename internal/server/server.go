// Package server exposes the vault gateway and operation ledger over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/obsidian-tools/vaultbridge/internal/ledger"
	"github.com/obsidian-tools/vaultbridge/internal/vault"
	"github.com/obsidian-tools/vaultbridge/internal/version"
)

const (
	// HTTP server timeouts.
	readHeaderTimeout = 10 * time.Second // Timeout for reading request headers
	shutdownTimeout   = 30 * time.Second // Timeout for graceful shutdown
)

// Config holds the HTTP server configuration.
type Config struct {
	Host   string
	Port   int
	APIKey string // Shared secret; empty disables authentication
}

// Server is the HTTP server fronting the gateway.
type Server struct {
	handler    *Handler
	httpServer *http.Server
	config     *Config
	logger     *slog.Logger
}

// NewServer creates a new server around the gateway client and ledger.
func NewServer(cfg *Config, client *vault.Client, ledg *ledger.Ledger, logger *slog.Logger) *Server {
	handler := NewHandler(client, ledg, cfg.APIKey, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handler.HandleRoot)
	mux.HandleFunc("GET /health", handler.HandleHealth)
	mux.HandleFunc("GET /api/version", handler.HandleVersion)

	mux.HandleFunc("GET /vault", handler.auth(handler.HandleList))
	mux.HandleFunc("GET /vault/{path...}", handler.auth(handler.HandleGetFile))
	mux.HandleFunc("POST /vault/{path...}", handler.auth(handler.HandleWriteFile))
	mux.HandleFunc("PATCH /vault/{path...}", handler.auth(handler.HandlePatchFile))
	mux.HandleFunc("DELETE /vault/{path...}", handler.auth(handler.HandleDeleteFile))

	mux.HandleFunc("POST /search/simple/", handler.auth(handler.HandleSearchSimple))
	mux.HandleFunc("POST /search/", handler.auth(handler.HandleSearchAdvanced))

	mux.HandleFunc("GET /history", handler.auth(handler.HandleHistory))
	mux.HandleFunc("GET /history/{id}", handler.auth(handler.HandleHistoryByID))
	mux.HandleFunc("DELETE /history", handler.auth(handler.HandleHistoryClear))

	// Wrap with logging middleware
	loggedHandler := loggingMiddleware(mux, logger)

	return &Server{
		handler: handler,
		config:  cfg,
		logger:  logger,
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:           loggedHandler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start starts the HTTP server. This method blocks until the server is
// stopped or the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting server",
		"addr", s.httpServer.Addr,
		"auth", s.config.APIKey != "",
		"version", version.Version,
		"commit", version.Commit,
		"build_time", version.GitTime)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "shutting down server")
		// Detach from the canceled context so shutdown can complete.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
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
