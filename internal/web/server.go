// Package web serves the library's JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/notify"
	"github.com/kozaktomas/smart-library/internal/web/middleware"
)

// Request handling limits. Face and cover captures arrive as base64 bodies, so reads get
// more room than headers.
const (
	handlerTimeout    = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 90 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server owns the router and the state shared by the handlers: sessions, the face
// lockout and the notifier.
type Server struct {
	config         *config.Config
	router         *chi.Mux
	httpServer     *http.Server
	sessionManager *middleware.SessionManager
	lockout        *middleware.FaceLockout
	notifier       notify.Notifier
}

// NewServer builds the API server. sessionRepo and notifier may be nil; sessions then
// live in memory and notifications go to the log.
func NewServer(cfg *config.Config, sessionRepo middleware.SessionRepository, notifier notify.Notifier) *Server {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}

	s := &Server{
		config:         cfg,
		router:         chi.NewRouter(),
		sessionManager: middleware.NewSessionManager(cfg.Web.SessionSecret, sessionRepo),
		lockout:        middleware.NewFaceLockout(cfg.FaceAuth.MaxAttempts, cfg.FaceAuth.LockoutWindow),
		notifier:       notifier,
	}
	s.router.Use(
		chiMiddleware.RequestID,
		chiMiddleware.RealIP,
		chiMiddleware.Logger,
		chiMiddleware.Recoverer,
		chiMiddleware.Timeout(handlerTimeout),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Web.AllowedOrigins),
	)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              cfg.Web.ListenAddr(),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("API listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("serve: %w", err)
}

// Shutdown drains in-flight requests and stops the session sweeper.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("stopping API server")
	defer s.sessionManager.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("drain connections: %w", err)
	}
	return nil
}

// Router exposes the handler tree to tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
