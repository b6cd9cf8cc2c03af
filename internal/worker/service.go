// Package worker provides the caliber ops HTTP service: a thin surface over
// the learning engine for operators to preview and trigger batch runs,
// inspect target version chains, and edit the stored learning config.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/dialcraft/caliber/internal/config"
	"github.com/dialcraft/caliber/internal/db/gorm"
	"github.com/dialcraft/caliber/internal/learning"
	"gorm.io/gorm/logger"
)

// DefaultHTTPTimeout is the read/write timeout for the HTTP server.
const DefaultHTTPTimeout = 30 * time.Second

// Service wires the stores, the learning engine and the HTTP router.
type Service struct {
	log      zerolog.Logger
	config   *config.Config
	store    *gorm.Store
	targets  *gorm.TargetStore
	rewards  *gorm.RewardStore
	settings *gorm.SettingStore
	resolver *learning.Resolver
	engine   *learning.Engine
	router   *chi.Mux
	server   *http.Server
}

// NewService creates the service and opens the database.
func NewService(cfg *config.Config, log zerolog.Logger) (*Service, error) {
	store, err := gorm.NewStore(gorm.Config{
		DSN:      cfg.DatabaseDSN,
		MaxConns: cfg.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	targets := gorm.NewTargetStore(store)
	rewards := gorm.NewRewardStore(store)
	settings := gorm.NewSettingStore(store)

	cache := learning.NewSettingCache(cfg.ConfigTTL)
	resolver := learning.NewResolver(settings, cache, log)
	engine := learning.NewEngine(rewards, targets, resolver, log)

	s := &Service{
		log:      log.With().Str("component", "worker").Logger(),
		config:   cfg,
		store:    store,
		targets:  targets,
		rewards:  rewards,
		settings: settings,
		resolver: resolver,
		engine:   engine,
	}
	s.router = s.buildRouter()

	return s, nil
}

// buildRouter sets up the HTTP routes.
func (s *Service) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(DefaultHTTPTimeout))

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/learning/run", s.handleLearningRun)
	r.Get("/api/learning/preview", s.handleLearningPreview)
	r.Get("/api/learning/config", s.handleGetLearningConfig)
	r.Put("/api/learning/config", s.handlePutLearningConfig)
	r.Get("/api/targets/{parameterID}", s.handleGetTargets)

	return r
}

// Start begins serving HTTP on the configured port.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.WorkerPort),
		Handler:      s.router,
		ReadTimeout:  DefaultHTTPTimeout,
		WriteTimeout: DefaultHTTPTimeout,
	}

	s.log.Info().Int("port", s.config.WorkerPort).Msg("ops service listening")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()

	return nil
}

// Shutdown stops the HTTP server and closes the store.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	return s.store.Close()
}

// Router exposes the chi router for tests.
func (s *Service) Router() http.Handler {
	return s.router
}
