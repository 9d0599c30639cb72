package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"storefront/recommender/internal/affinity"
	"storefront/recommender/internal/config"
	"storefront/recommender/internal/domain"
	"storefront/recommender/internal/metrics"
	"storefront/recommender/internal/recommend"
)

// Recommender computes the on-page lists served by the API.
type Recommender interface {
	ProductPage(ctx context.Context, viewKey string, scope domain.Scope, focalID string) (*domain.ProductPage, error)
	BrowsePage(ctx context.Context, journal recommend.Journal, scope domain.Scope) domain.Sections
}

// ViewPublisher forwards tracked views to the popularity pipeline.
type ViewPublisher interface {
	PublishView(ctx context.Context, p domain.Product)
}

type Server struct {
	cfg        config.ServerConfig
	engine     Recommender
	sessions   *affinity.Manager
	publisher  ViewPublisher
	metrics    *metrics.Metrics
	httpServer *http.Server
}

// New builds the HTTP server. publisher may be nil when view events are not forwarded.
func New(cfg config.ServerConfig, engine Recommender, sessions *affinity.Manager, publisher ViewPublisher, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    engine,
		sessions:  sessions,
		publisher: publisher,
		metrics:   m,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(session)

		r.Get("/products/{id}/recommendations", s.handleProductPage)
		r.Get("/sections", s.handleSections)
		r.Post("/views", s.handleView)
		r.Post("/searches", s.handleSearch)
		r.Get("/affinity", s.handleAffinity)
		r.Delete("/affinity", s.handleClearAffinity)
	})

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("🌐 HTTP server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	log.Info("🛑 Shutting down HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return <-errCh
}
