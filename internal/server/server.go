// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer — the composition root where the whole
// dependency graph is assembled in one place:
//
//	sqlite.DB → implements repository.UserRepository
//	RegistrationService(repo, hashers, tokens, mailer, env)
//	IdentityService(repo, tokens)
//	handlers(services) → routes
//
// Each layer only receives what it needs: services get the repository
// interface (not the concrete sqlite.DB), handlers get the services, and
// nothing below the handlers knows HTTP exists.
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

	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/handler"
	"github.com/sakif/accounts/internal/mailer"
	"github.com/sakif/accounts/internal/middleware"
	sqliteRepo "github.com/sakif/accounts/internal/repository/sqlite"
	"github.com/sakif/accounts/internal/service"
)

// Config holds server configuration, assembled from the environment in
// cmd/server. Everything downstream receives explicit values from here —
// no package below this one reads environment variables except the mailer,
// which owns its SMTP_* block.
type Config struct {
	Port    int
	DBPath  string // path to the SQLite database file
	Env     string // deployment mode; "production" enables email delivery
	BaseURL string // public URL, used in confirmation links

	JWTSecret string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Server represents the HTTP server and the resources it owns.
//
// The Server owns the database connection; graceful shutdown closes it to
// flush the WAL and release the file lock.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server and wires the full dependency graph.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware, builds the services, and binds routes.
//
// ROUTE STRUCTURE:
//
//	POST /api/register          → create an unconfirmed account
//	GET  /api/confirm?token=    → consume a confirmation token
//	POST /api/login             → password login, sets JWT cookie
//	GET  /api/me                → current user (requires auth)
//	GET  /auth/github/login     → redirect to GitHub authorization
//	GET  /auth/github/callback  → OAuth callback, sets JWT cookie
//	POST /auth/logout           → clear the JWT cookie
//
// MIDDLEWARE ORDER MATTERS — RequestID and RealIP first so the logger and
// recoverer see them, Recoverer before handlers so panics become 500s.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// The notification gateway. Outside production the registration
	// service never calls Send, so missing SMTP settings are only an
	// error when delivery is actually on.
	mailCfg, err := mailer.ConfigFromEnv(s.config.BaseURL)
	if err != nil {
		return fmt.Errorf("reading mailer config: %w", err)
	}
	if s.config.Env == service.EnvProduction {
		if err := mailCfg.Validate(); err != nil {
			return fmt.Errorf("validating mailer config: %w", err)
		}
	}
	notifier := mailer.New(mailCfg)

	registrations := service.NewRegistrationService(
		s.db,
		auth.NewPasswordService(),
		auth.NewConfirmationTokenService(),
		tokens,
		notifier,
		s.config.Env,
		s.logger,
	)
	identities := service.NewIdentityService(s.db, tokens, s.logger)

	registrationHandler := handler.NewRegistrationHandler(registrations, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/register", registrationHandler.HandleRegister)
		r.Get("/confirm", registrationHandler.HandleConfirmEmail)
		r.Post("/login", registrationHandler.HandleLogin)
		r.With(auth.RequireAuth(tokens)).Get("/me", registrationHandler.HandleMe)
	})

	s.router.Post("/auth/logout", registrationHandler.HandleLogout)

	// GitHub OAuth routes only exist when the OAuth app is configured.
	if s.config.GitHubClientID != "" && s.config.GitHubClientSecret != "" {
		github := auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
		authHandler := handler.NewAuthHandler(github, identities, s.logger)

		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	} else {
		s.logger.Warn("GitHub OAuth not configured — /auth/github routes disabled")
	}

	return nil
}

// Start starts the HTTP server and handles graceful shutdown:
//  1. Stop accepting new connections on SIGINT/SIGTERM
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database connection (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
