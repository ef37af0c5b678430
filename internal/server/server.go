// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: it opens the store, builds the
// services and handlers, and decides which middleware guards which routes.
// main.go only loads config and calls New and Start.
//
// DEPENDENCY INJECTION FLOW:
//
//	config → repository.Store (sqlite | postgres)
//	       → session.Store + session.Hub (+ RedisRelay)
//	       → AuthService, BookmarkService
//	       → handlers → chi routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/smart-bookmarks/internal/auth"
	"github.com/sakif/smart-bookmarks/internal/config"
	"github.com/sakif/smart-bookmarks/internal/handler"
	"github.com/sakif/smart-bookmarks/internal/middleware"
	"github.com/sakif/smart-bookmarks/internal/repository"
	"github.com/sakif/smart-bookmarks/internal/repository/postgres"
	sqliteRepo "github.com/sakif/smart-bookmarks/internal/repository/sqlite"
	"github.com/sakif/smart-bookmarks/internal/service"
	"github.com/sakif/smart-bookmarks/internal/session"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database handle, the session sweeper and, when Redis
// is configured, the relay. Start releases all of them on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Server
	logger  *slog.Logger
	store   repository.Store
	sweeper *session.Sweeper
	relay   *session.RedisRelay // nil without Redis
}

// New opens every external dependency named in cfg and wires the server.
// It talks to the network (OIDC discovery, Redis, Postgres), so startup
// fails fast when one of them is unreachable.
func New(ctx context.Context, cfg *config.Server, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	provider, err := auth.NewGoogleProvider(ctx, cfg.GoogleIssuer, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.CallbackURL())
	if err != nil {
		store.Close()
		return nil, err
	}

	hub := session.NewHub(logger)
	var publisher session.Publisher = hub
	var relay *session.RedisRelay
	if cfg.RedisAddr != "" {
		client, err := session.ConnectRedis(ctx, session.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		relay = session.NewRedisRelay(client, hub, logger)
		publisher = relay
	}

	s, err := build(cfg, logger, store, provider, hub, publisher)
	if err != nil {
		store.Close()
		if relay != nil {
			relay.Close()
		}
		return nil, err
	}
	s.relay = relay
	return s, nil
}

// openStore picks the repository backend.
func openStore(ctx context.Context, cfg *config.Server) (repository.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return db, nil
	default:
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}
}

// build assembles services, handlers and routes from already-open
// dependencies. Tests call it with an in-memory store and a fake provider.
func build(
	cfg *config.Server,
	logger *slog.Logger,
	store repository.Store,
	provider auth.IdentityProvider,
	hub *session.Hub,
	publisher session.Publisher,
) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewStore()
	if err != nil {
		return nil, err
	}

	authService := service.NewAuthService(store.Users(), sessions, publisher, tokens, cfg.SessionTTL, logger)
	bookmarkService := service.NewBookmarkService(store.Bookmarks(), logger)

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		sweeper: session.NewSweeper(sessions, publisher, cfg.SweepInterval, logger),
	}

	pageHandler, err := handler.NewPageHandler(bookmarkService, logger)
	if err != nil {
		return nil, fmt.Errorf("creating page handler: %w", err)
	}

	s.setupRoutes(
		pageHandler,
		handler.NewAuthHandler(provider, authService, cfg.CookieSecure, logger),
		handler.NewBookmarkHandler(bookmarkService, logger),
		handler.NewEventsHandler(hub, sessions, logger),
		authService,
	)
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /                          → page (sign-in prompt or bookmarks)
// POST   /bookmarks                 → page add form
// POST   /bookmarks/{id}/delete     → page delete button
// POST   /logout                    → page sign-out
// GET    /auth/v1/authorize         → start OAuth
// GET    /auth/v1/callback          → finish OAuth
// GET    /auth/v1/session           → current session (JSON)
// POST   /auth/v1/logout            → end session (JSON)    [auth]
// GET    /auth/v1/events            → session events (WS)   [auth]
// GET    /rest/v1/bookmarks         → list                  [auth]
// POST   /rest/v1/bookmarks         → insert, returns row   [auth]
// DELETE /rest/v1/bookmarks/{id}    → delete                [auth]
// GET    /healthz                   → liveness
//
// MIDDLEWARE ORDER MATTERS:
// RequestID first so the logger can print it; Recoverer inside Logger so a
// panic is still logged as a 500.
func (s *Server) setupRoutes(
	page *handler.PageHandler,
	authH *handler.AuthHandler,
	bookmarks *handler.BookmarkHandler,
	events *handler.EventsHandler,
	resolver auth.SessionResolver,
) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", handler.HandleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(resolver))
		r.Get("/", page.HandlePage)
		r.Post("/bookmarks", page.HandleAdd)
		r.Post("/bookmarks/{id}/delete", page.HandleDelete)
		r.Post("/logout", authH.HandlePageLogout)
	})

	s.router.Route("/auth/v1", func(r chi.Router) {
		r.Get("/authorize", authH.HandleAuthorize)
		r.Get("/callback", authH.HandleCallback)
		r.Get("/session", authH.HandleSession)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(resolver))
			r.Post("/logout", authH.HandleLogout)
			r.Get("/events", events.HandleEvents)
		})
	})

	s.router.Route("/rest/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth(resolver))
		r.Get("/bookmarks", bookmarks.HandleList)
		r.Post("/bookmarks", bookmarks.HandleCreate)
		r.Delete("/bookmarks/{id}", bookmarks.HandleDelete)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
//  1. Stop accepting new HTTP connections and drain in-flight requests (30s)
//  2. Stop the sweeper and the Redis relay
//  3. Close the database
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.sweeper.Start()
	defer s.sweeper.Stop()

	var wg sync.WaitGroup
	if s.relay != nil {
		defer s.relay.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.relay.Run(ctx); err != nil {
				s.logger.Error("redis relay stopped", slog.String("error", err.Error()))
			}
		}()
	}
	defer wg.Wait()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", s.config.PublicURL),
			slog.String("db_driver", s.config.DBDriver),
			slog.Bool("redis", s.relay != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		cancel()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
