package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/voicetory/apiserver/config"
	"github.com/voicetory/apiserver/internal/handlers"
)

// Server wraps the HTTP server, router and the session sweeper.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	services   *Services

	sweepInterval time.Duration
	sweepCtx      context.Context
	stopSweeper   context.CancelFunc
}

// New wires the services and routes for cfg.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.SessionSecret) == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}

	svc := NewServices(ctx, cfg)
	inventory := handlers.NewInventoryHandler(svc.Ledger, svc.Importer, svc.Backends.Products, cfg.MaxImportBytes)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, svc.Users, svc.Sessions)
	})
	router.Route("/api/inventory", func(r chi.Router) {
		handlers.InventoryRouter(r, inventory, svc.Sessions)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	return &Server{
		httpServer:    httpServer,
		router:        router,
		services:      svc,
		sweepInterval: cfg.SessionSweepInterval,
		sweepCtx:      sweepCtx,
		stopSweeper:   stopSweeper,
	}, nil
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the session sweeper and the HTTP server. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	go s.services.Sessions.RunSweeper(s.sweepCtx, s.sweepInterval)

	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopSweeper()
	err := s.httpServer.Shutdown(ctx)
	_ = s.services.Close()
	return err
}
