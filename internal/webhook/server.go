// Package webhook receives Telegram updates pushed over HTTPS, the
// alternative to long polling.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/claudegram/internal/telegram"
)

// Server accepts pushed updates and hands them to the handler in order.
type Server struct {
	config Config
	handle telegram.Handler
	logger *slog.Logger
	server *http.Server

	// mu serializes handler calls; Telegram may push concurrently.
	mu     sync.Mutex
	lastID int64
}

func New(config Config, handle telegram.Handler, logger *slog.Logger) *Server {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.Path == "" {
		config.Path = "/"
	}
	return &Server{config: config, handle: handle, logger: logger}
}

// Start serves until ctx is canceled (blocking). It returns nil on a clean
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(ctx),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "path", s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes builds the router. Updates are handled under base, not the
// request context, which ends as soon as Telegram gets its 200.
func (s *Server) setupRoutes(base context.Context) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Post(s.config.Path, func(w http.ResponseWriter, req *http.Request) {
		s.handleUpdate(base, w, req)
	})
	return r
}

// loggingMiddleware logs requests without bodies.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleUpdate(base context.Context, w http.ResponseWriter, r *http.Request) {
	if !secretMatches(r.Header.Get(SecretHeader), s.config.Secret) {
		s.logger.Warn("webhook secret mismatch", "remote_addr", r.RemoteAddr)
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	var u telegram.Update
	if err := json.Unmarshal(body, &u); err != nil {
		// A 4xx makes Telegram drop the update instead of retrying it forever.
		s.respondError(w, http.StatusBadRequest, "invalid update")
		return
	}

	s.mu.Lock()
	if u.UpdateID <= s.lastID {
		s.mu.Unlock()
		s.logger.Debug("duplicate update ignored", "update_id", u.UpdateID)
		w.WriteHeader(http.StatusOK)
		return
	}
	s.lastID = u.UpdateID
	s.handle(base, u)
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
