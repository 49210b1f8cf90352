// Package server is the composition root: it builds the sandbox core, the
// history store, the services and the handlers, and mounts them on a chi router.
//
// DEPENDENCY FLOW:
//
//	config.Config → sandbox.New     → ExecutionService → ExecuteHandler
//	             → sqlite.New       → HistoryService   → ExecutionsHandler
//
// Each layer only receives what it needs. Handlers never see the registry or
// the database; the service never sees HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/code-sandbox/internal/config"
	"github.com/sakif/code-sandbox/internal/handler"
	"github.com/sakif/code-sandbox/internal/middleware"
	"github.com/sakif/code-sandbox/internal/model"
	sqliteRepo "github.com/sakif/code-sandbox/internal/repository/sqlite"
	"github.com/sakif/code-sandbox/internal/sandbox"
	"github.com/sakif/code-sandbox/internal/service"
)

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	sandbox *sandbox.Sandbox
	db      *sqliteRepo.DB // nil when history is disabled
	limiter *middleware.RateLimiter
}

// New wires everything together. The caller owns the returned server and must
// call Close (Start does so on shutdown).
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	sb, err := sandbox.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building sandbox: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		sandbox: sb,
	}

	if cfg.DBPath != "" {
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		s.db = db
	} else {
		logger.Info("execution history disabled")
	}

	if cfg.RateLimitRPS > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	}

	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sandbox returns the execution core the server runs on.
func (s *Server) Sandbox() *sandbox.Sandbox {
	return s.sandbox
}

// Close releases the database.
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTES:
//
//	POST /run-cpp                 run C++ (body {"code": ...})
//	POST /run-python              run Python
//	POST /api/run/{language}      run any registered language
//	GET  /api/languages           registered languages
//	GET  /api/executions          execution history (when enabled)
//	GET  /api/executions/{id}     one history record
//	GET  /health                  liveness
//	GET  /metrics                 Prometheus
//
// Middleware order: RequestID, RealIP (so the rate limiter sees the client),
// Logger, Recoverer.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", promhttp.Handler())

	opts := []service.ExecutionOption{service.WithMaxConcurrent(s.config.MaxConcurrent)}
	if s.db != nil {
		opts = append(opts, service.WithHistory(s.db))
	}
	execService := service.NewExecutionService(s.sandbox.Registry, s.sandbox.Workspaces, s.logger, opts...)
	executeHandler := handler.NewExecuteHandler(execService, s.logger)

	s.router.Group(func(r chi.Router) {
		r.Use(gzip)

		// Execution endpoints are the expensive ones; only they are rate limited.
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			r.Post("/run-cpp", executeHandler.HandleRun(model.LanguageCPP))
			r.Post("/run-python", executeHandler.HandleRun(model.LanguagePython))
			r.Post("/api/run/{language}", executeHandler.HandleRunLanguage)
		})

		r.Get("/api/languages", executeHandler.HandleLanguages)

		if s.db != nil {
			historyHandler := handler.NewExecutionsHandler(service.NewHistoryService(s.db, s.logger), s.logger)
			r.Get("/api/executions", historyHandler.HandleList)
			r.Get("/api/executions/{id}", historyHandler.HandleGetByID)
		}
	})
}

// gzip compresses JSON responses for clients that accept it. Program output
// can be up to MaxOutputBytes and compresses well.
func gzip(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

// Start starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully and closes the database.
func (s *Server) Start() error {
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.limiter != nil {
		go s.limiter.Cleanup(ctx, time.Minute, 10*time.Minute)
	}

	// WriteTimeout must outlast the slowest execution: compile + run + slack.
	writeTimeout := s.config.CompileTimeout + s.config.RunTimeout + 15*time.Second

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("scratch_dir", s.sandbox.Workspaces.Root()),
			slog.String("database", s.config.DBPath),
			slog.Any("languages", s.sandbox.Registry.Languages()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// In-flight executions finish on their own timeouts; 30s covers them.
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelShutdown()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
