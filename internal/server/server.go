// Package server is the composition root: it builds every dependency, wires
// handlers to routes and runs the HTTP server with graceful shutdown.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → sqlite.DB (repository.Store)
//	  → services (user, identity, vote, moderation, question, answer)
//	  → handlers
//	  → chi routes
//
// Handlers never touch the database and services never touch HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/rotos-forum/internal/auth"
	"github.com/sakif/rotos-forum/internal/config"
	"github.com/sakif/rotos-forum/internal/handler"
	"github.com/sakif/rotos-forum/internal/jobs"
	"github.com/sakif/rotos-forum/internal/middleware"
	"github.com/sakif/rotos-forum/internal/model"
	sqliteRepo "github.com/sakif/rotos-forum/internal/repository/sqlite"
	"github.com/sakif/rotos-forum/internal/service"
)

// Server owns the database connection and the scheduler; both are released
// when Start returns.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	db        *sqliteRepo.DB
	tokens    *auth.TokenService
	scheduler *jobs.Scheduler
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		tokens: tokens,
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes builds the services and registers every route.
//
// MIDDLEWARE ORDER:
//  1. RequestID: tags the request for the log line
//  2. RealIP: client address from proxy headers
//  3. Logger: one line per request
//  4. Recoverer: a panic becomes a 500 instead of killing the process
//
// Reads use OptionalAuth so a signed-in viewer is still attributed;
// everything that changes state sits behind RequireAuth.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	github := auth.NewGitHubProvider(auth.GitHubConfig{
		ClientID:     s.config.GitHub.ClientID,
		ClientSecret: s.config.GitHub.ClientSecret,
		CallbackURL:  s.config.GitHub.CallbackURL,
		APIToken:     s.config.GitHub.APIToken,
		APIBaseURL:   s.config.GitHub.APIBaseURL,
	})

	identity := service.NewIdentityService(s.db, github, s.tokens, s.logger)
	users := service.NewUserService(s.db, s.logger)
	votes := service.NewVoteService(s.db, s.logger)
	moderation := service.NewModerationService(s.db, s.logger)
	questions := service.NewQuestionService(s.db, s.logger)
	answers := service.NewAnswerService(s.db, s.logger)

	s.scheduler = jobs.NewScheduler(moderation, s.config.Moderation.BanSweepSchedule, s.logger)

	authHandler := handler.NewAuthHandler(github, identity, s.tokens.TTL(), s.config.Session.SecureCookie, s.logger)
	userHandler := handler.NewUserHandler(users, s.logger)
	contentHandler := handler.NewContentHandler(questions, answers, votes, s.logger)
	adminHandler := handler.NewAdminHandler(moderation, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(s.tokens))

			r.Get("/usernames/{username}/available", userHandler.HandleUsernameAvailable)
			r.Get("/users", userHandler.HandleListUsers)
			r.Get("/users/{id}", userHandler.HandleGetUser)
			r.Get("/users/{id}/questions", userHandler.HandleUserQuestions)
			r.Get("/users/{id}/answers", userHandler.HandleUserAnswers)
			r.Get("/questions/{id}", contentHandler.HandleGetQuestion)
			r.Get("/questions/{id}/answers", contentHandler.HandleListAnswers)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.tokens))

			r.Get("/me", userHandler.HandleMe)
			r.Patch("/me", userHandler.HandleUpdateMe)
			r.Post("/me/username", userHandler.HandleSetupUsername)
			r.Get("/me/saved", userHandler.HandleSaved)
			r.Post("/me/saved/{questionID}", userHandler.HandleToggleSave)

			r.Post("/questions", contentHandler.HandleCreateQuestion)
			r.Post("/questions/{id}/answers", contentHandler.HandleCreateAnswer)
			r.Post("/questions/{id}/upvote", contentHandler.HandleVote(model.KindQuestion, model.VoteUp))
			r.Post("/questions/{id}/downvote", contentHandler.HandleVote(model.KindQuestion, model.VoteDown))

			r.Post("/answers/{id}/upvote", contentHandler.HandleVote(model.KindAnswer, model.VoteUp))
			r.Post("/answers/{id}/downvote", contentHandler.HandleVote(model.KindAnswer, model.VoteDown))
			r.Delete("/answers/{id}", contentHandler.HandleDeleteAnswer)

			r.Route("/admin/users/{id}", func(r chi.Router) {
				r.Put("/role", adminHandler.HandleSetRole)
				r.Post("/ban", adminHandler.HandleBan)
				r.Delete("/ban", adminHandler.HandleUnban)
				r.Delete("/", adminHandler.HandleDeleteUser)
			})
		})
	})
}

// Start serves until SIGINT/SIGTERM, then shuts down in order:
//  1. stop accepting connections, let in-flight requests finish
//  2. stop the scheduler, waiting for a running sweep
//  3. close the database
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         s.config.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	if err := s.scheduler.Start(); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.config.Server.Addr),
			slog.String("database", s.config.Database.Path),
			slog.String("environment", s.config.Environment),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		s.stopScheduler()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.scheduler.Stop(ctx)
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) stopScheduler() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	s.scheduler.Stop(ctx)
}

// Close releases the database without serving. Start does this itself.
func (s *Server) Close() error {
	return s.db.Close()
}
