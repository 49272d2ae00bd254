// Package api provides the HTTP API server for diagram collaboration.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apidocs "github.com/narvanalabs/diagrams/api"
	"github.com/narvanalabs/diagrams/internal/api/handlers"
	"github.com/narvanalabs/diagrams/internal/api/health"
	"github.com/narvanalabs/diagrams/internal/api/middleware"
	"github.com/narvanalabs/diagrams/internal/auth"
	"github.com/narvanalabs/diagrams/internal/diagram"
	"github.com/narvanalabs/diagrams/internal/links"
	"github.com/narvanalabs/diagrams/internal/projects"
	"github.com/narvanalabs/diagrams/internal/store"
	"github.com/narvanalabs/diagrams/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Services bundles the domain services shared by the HTTP and gRPC servers.
type Services struct {
	Tokens    *auth.Service
	Accounts  *auth.Accounts
	Authority *auth.MembershipAuthority
	Invites   *auth.InviteIssuer
	Projects  *projects.Service
	Diagrams  *diagram.Service
	Locks     *diagram.LockManager
	Links     *links.Graph
}

// NewServices wires the domain services over st.
func NewServices(st store.Store, tokens *auth.Service, inviteExpiry time.Duration, logger *slog.Logger) *Services {
	authority := auth.NewMembershipAuthority(st, logger)
	return &Services{
		Tokens:    tokens,
		Accounts:  auth.NewAccounts(st, tokens, logger),
		Authority: authority,
		Invites:   auth.NewInviteIssuer(st, authority, logger, auth.WithDefaultExpiry(inviteExpiry)),
		Projects:  projects.NewService(st, authority, logger),
		Diagrams:  diagram.NewService(st, authority, logger),
		Locks:     diagram.NewLockManager(st, authority, logger),
		Links:     links.NewGraph(st, authority, logger),
	}
}

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	services      *Services
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies.
func NewServer(cfg *config.Config, services *Services, checker *health.Checker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		services:      services,
		config:        cfg,
		logger:        logger,
		healthChecker: checker,
	}
	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes. Every
// resource route is served under /api and, for older clients, without the
// prefix.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.StripSlashes)
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", s.healthChecker.Handler())

	docsHandler := handlers.NewDocsHandler(apidocs.OpenAPI, s.logger)
	r.Route("/api", func(r chi.Router) {
		r.Get("/docs", docsHandler.ServeSwaggerUI)
		r.Get("/docs/openapi.yaml", docsHandler.ServeOpenAPIYAML)
		r.Get("/docs/openapi.json", docsHandler.ServeOpenAPIJSON)
		s.mountResources(r)
	})
	s.mountResources(r)

	s.router = r
}

func (s *Server) mountResources(r chi.Router) {
	authHandler := handlers.NewAuthHandler(s.services.Accounts, s.logger)
	projectHandler := handlers.NewProjectHandler(s.services.Projects, s.logger)
	diagramHandler := handlers.NewDiagramHandler(s.services.Diagrams, s.services.Locks, s.logger)
	linkHandler := handlers.NewLinkHandler(s.services.Links, s.logger)
	inviteHandler := handlers.NewInviteHandler(s.services.Invites, s.logger)
	authMiddleware := middleware.NewAuthMiddleware(s.services.Tokens, s.logger)

	// Public routes
	r.Post("/auth/register", authHandler.Register)
	r.Post("/auth/token", authHandler.Token)
	r.Get("/invite/{token}", inviteHandler.Info)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Get("/auth/me", authHandler.Me)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projectHandler.List)
			r.Post("/", projectHandler.Create)
			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", projectHandler.Get)
				r.Put("/", projectHandler.Update)
				r.Patch("/", projectHandler.Update)
				r.Delete("/", projectHandler.Delete)
				r.Get("/members", projectHandler.Members)
				r.Get("/links", linkHandler.ForProject)

				r.Get("/diagrams", diagramHandler.List)
				r.Post("/diagrams", diagramHandler.Create)

				r.Post("/invite", inviteHandler.Create)
				r.Get("/invites", inviteHandler.List)
				r.Delete("/invites/{inviteID}", inviteHandler.Revoke)
			})
		})

		r.Route("/diagrams/{diagramID}", func(r chi.Router) {
			r.Get("/", diagramHandler.Get)
			r.Put("/", diagramHandler.Update)
			r.Patch("/", diagramHandler.Update)
			r.Delete("/", diagramHandler.Delete)

			r.Get("/lock", diagramHandler.GetLock)
			r.Post("/lock", diagramHandler.AcquireLock)
			r.Delete("/lock", diagramHandler.ReleaseLock)

			r.Get("/links", linkHandler.List)
			r.Post("/links", linkHandler.Create)
			r.Get("/elements/{elementID}/links", linkHandler.ForElement)
		})

		r.Route("/links/{linkID}", func(r chi.Router) {
			r.Get("/", linkHandler.Get)
			r.Patch("/", linkHandler.Update)
			r.Delete("/", linkHandler.Delete)
		})

		r.Get("/diagrams-for-linking", linkHandler.Linkable)
		r.Post("/invite/{token}/accept", inviteHandler.Accept)
	})
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.HTTPAddr()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
