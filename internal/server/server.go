// Package server exposes the transformation service over HTTP: stylesheet
// ingestion, transformation, auxiliary conversions, and operational routes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dans-labs/transformer/internal/config"
	"github.com/dans-labs/transformer/internal/fetch"
	"github.com/dans-labs/transformer/internal/logging"
	"github.com/dans-labs/transformer/internal/pipeline"
	"github.com/dans-labs/transformer/internal/registry"
	"github.com/dans-labs/transformer/internal/store"
)

// Server wires the registry, pipeline, store and conversion helpers into an
// HTTP handler and owns the listener lifecycle.
type Server struct {
	cfg      *config.Config
	logger   logging.Logger
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	store    *store.Store
	fetcher  *fetch.Fetcher
	metrics  *Metrics

	httpServer *http.Server
}

// New assembles a server from its collaborators. A nil logger logs nowhere.
func New(cfg *config.Config, logger logging.Logger, reg *registry.Registry,
	pipe *pipeline.Pipeline, st *store.Store, fetcher *fetch.Fetcher) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger.WithComponent("server"),
		registry: reg,
		pipeline: pipe,
		store:    st,
		fetcher:  fetcher,
		metrics:  NewMetrics(),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router builds the route tree. Public routes carry no auth; everything
// touching stylesheets or configuration sits behind the API key guard.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))

	r.Get("/", s.handleInfo)
	r.Get("/ping", s.handlePing)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(apiKeyAuth(s.cfg.Auth.APIKeys))

		r.Post("/upload-xsl/{name}/{save}", s.handleUpload)
		r.Post("/upload-xsl-url/{name}/{save}", s.handleUploadURL)
		r.Post("/transform/{name}", s.handleTransform)
		r.Post("/transform/{name}/{output}", s.handleTransform)
		r.Post("/transform-jsonld-to-rdf", s.handleJSONLDToRDF)
		r.Post("/transform-jsonld-to-rdf/{format}", s.handleJSONLDToRDF)
		r.Post("/transform-xml-to-json/{clean}", s.handleXMLToJSON)
		r.Get("/saved-xsl-list", s.handleList)
		r.Get("/refresh", s.handleRefresh)
		r.Get("/settings", s.handleSettings)
		r.Delete("/delete-saved-xsl/{name}", s.handleDelete)
	})

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if len(s.cfg.Auth.APIKeys) == 0 {
		s.logger.Warn(ctx, nil, "no API keys configured, protected routes are open")
	}
	s.metrics.SetRegistrySize(s.registry.Len())
	s.logger.Info(ctx, "listening", "addr", s.httpServer.Addr)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
