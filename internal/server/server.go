// Package server exposes the HTTP API: account management, project CRUD,
// the SQL pipeline endpoints and chat.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/quantum-lens/lens/internal/auth"
	"github.com/quantum-lens/lens/internal/chat"
	"github.com/quantum-lens/lens/internal/config"
	"github.com/quantum-lens/lens/internal/pipeline"
	"github.com/quantum-lens/lens/internal/project"
)

// Server is the HTTP API server.
type Server struct {
	cfg      config.ServerConfig
	auth     *auth.Service
	projects *project.Service
	chat     *chat.Service
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// Config holds the server's collaborators.
type Config struct {
	Server   config.ServerConfig
	Auth     *auth.Service
	Projects *project.Service
	Chat     *chat.Service
	Pipeline *pipeline.Pipeline
	Logger   *slog.Logger
}

// New creates an API server. If Logger is nil, a discard logger is used.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		cfg:      cfg.Server,
		auth:     cfg.Auth,
		projects: cfg.Projects,
		chat:     cfg.Chat,
		pipeline: cfg.Pipeline,
		logger:   logger,
	}
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.cfg.Addr()
	s.logger.Info("starting API server", slog.String("addr", addr))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return s.pipeline.Close()
	})

	return eg.Wait()
}

// Routes builds the full router. Exposed for handler tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAuth)

			r.Get("/auth/profile", s.handleProfile)
			r.Put("/auth/profile", s.handleUpdateProfile)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.handleListProjects)
				r.Post("/", s.handleCreateProject)
				r.Get("/{projectID}", s.handleGetProject)
				r.Put("/{projectID}", s.handleUpdateProject)
				r.Delete("/{projectID}", s.handleDeleteProject)
				r.Get("/{projectID}/database-info", s.handleDatabaseInfo)
			})

			r.Route("/sql", func(r chi.Router) {
				r.Post("/process", s.handleProcessMessage)
				r.Post("/execute", s.handleExecuteQuery)
				r.Get("/suggestions", s.handleQuerySuggestions)
				r.Post("/explain", s.handleExplainQuery)
				r.Post("/optimize", s.handleOptimizeQuery)
			})

			r.Route("/chat", func(r chi.Router) {
				r.Post("/completion", s.handleChatCompletion)
				r.Get("/sessions", s.handleChatSessions)
				r.Get("/sessions/{sessionID}/messages", s.handleChatMessages)
			})
		})
	})

	return r
}
