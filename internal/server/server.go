// Package server exposes the HTTP surface: the USSD gateway callback and
// the JSON API for resources, request lifecycle, and operations.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/reliefline/reliefline/internal/automatch"
	"github.com/reliefline/reliefline/internal/db/sqlite"
	"github.com/reliefline/reliefline/internal/notify"
	"github.com/reliefline/reliefline/internal/session"
	"github.com/reliefline/reliefline/internal/ussd"
)

// Config carries the server tunables.
type Config struct {
	ListenAddr    string
	GatewaySecret string // empty disables signature checks
	Version       string
}

// sweeper is the optional bulk-expiry hook a session backend may offer.
// The SQLite store implements it; Redis expires keys natively.
type sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Service owns the router and the handlers behind it.
type Service struct {
	cfg       Config
	router    chi.Router
	logger    zerolog.Logger
	store     *sqlite.Store
	resources *sqlite.ResourceStore
	requests  *sqlite.RequestStore
	activity  *sqlite.ActivityStore
	sessions  session.Store
	ussd      *ussd.Handler
	scheduler *automatch.Scheduler
	notifier  notify.Notifier
	startTime time.Time
}

// NewService builds the service and mounts all routes.
func NewService(
	cfg Config,
	store *sqlite.Store,
	resources *sqlite.ResourceStore,
	requests *sqlite.RequestStore,
	activity *sqlite.ActivityStore,
	sessions session.Store,
	ussdHandler *ussd.Handler,
	scheduler *automatch.Scheduler,
	notifier notify.Notifier,
	logger zerolog.Logger,
) *Service {
	s := &Service{
		cfg:       cfg,
		router:    chi.NewRouter(),
		logger:    logger,
		store:     store,
		resources: resources,
		requests:  requests,
		activity:  activity,
		sessions:  sessions,
		ussd:      ussdHandler,
		scheduler: scheduler,
		notifier:  notifier,
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Service) setupRoutes() {
	s.router.Use(s.requestLogger)

	s.router.Route("/ussd", func(r chi.Router) {
		if s.cfg.GatewaySecret != "" {
			r.Use(s.requireSignature)
		}
		r.Post("/callback", s.handleUSSDCallback)
		r.Post("/sessions/cleanup", s.handleSessionCleanup)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/resources", s.handleListResources)
		r.Get("/stats", s.handleStats)
		r.Post("/matching/auto-match", s.handleAutoMatch)
		r.Route("/requests/{reference}", func(r chi.Router) {
			r.Post("/confirm", s.handleConfirmRequest)
			r.Post("/complete", s.handleCompleteRequest)
			r.Post("/cancel", s.handleCancelRequest)
		})
	})
}

// Router exposes the mounted handler for tests and embedding.
func (s *Service) Router() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then drains connections.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
