// Package server assembles the HTTP transport: the Chi router, middleware
// chain, and graceful lifecycle around the key service.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/handler"
	"github.com/keygate/keygate/internal/license"
	"github.com/keygate/keygate/internal/openapi"
	"github.com/keygate/keygate/internal/server/middleware"
	"github.com/keygate/keygate/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	SessionTTL      time.Duration // lifetime of admin session tokens
}

// DefaultConfig returns a Config with sensible production defaults. The
// reference deployment serves game-client verify calls from arbitrary
// origins, so CORS defaults to permissive.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		SessionTTL:      24 * time.Hour,
	}
}

// Server is the top-level HTTP server. It owns the Chi router and delegates
// all business logic to the lifecycle engine and auth service.
type Server struct {
	cfg        Config
	router     chi.Router
	svc        *license.Service
	authSvc    *service.AuthService
	cfgStore   *config.Store
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, svc *license.Service, authSvc *service.AuthService, cfgStore *config.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		authSvc:  authSvc,
		cfgStore: cfgStore,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	keyHandler := handler.NewKeyHandler(s.svc, s.authSvc)
	sysHandler := handler.NewSystemHandler(s.svc, s.authSvc, s.cfgStore)
	sysHandler.SetSessionTTL(s.cfg.SessionTTL)

	// --- Status page and health checks ---
	r.Get("/", sysHandler.Home)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/openapi.json", openapi.Handler())

	// --- Key lifecycle (wire-compatible with the reference API) ---
	r.Post("/create", keyHandler.Create)
	r.Post("/create-bulk", keyHandler.CreateBulk)
	r.Post("/verify", keyHandler.Verify)
	r.Get("/info/{key}", keyHandler.Info)
	r.Post("/list", keyHandler.List)
	r.Post("/delete", keyHandler.Delete)

	// --- Supplemental admin API ---
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", sysHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(s.authSvc))
			r.Get("/stats", sysHandler.Stats)
			r.Get("/audit", sysHandler.Audit)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Key state is in-memory, so readiness
// reduces to liveness plus reachability of the settings store when one is
// attached.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.cfgStore != nil {
		if err := s.cfgStore.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"degraded","error":%q}`, err.Error())
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received, then drains in-flight requests before returning.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
