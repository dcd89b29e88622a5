// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the catalog, the HLS delivery gateway and the admin
// upload and delete routes.
package api

import (
	"net/http"
	"strings"

	"github.com/ManuGH/videocat/internal/api/middleware"
	"github.com/ManuGH/videocat/internal/audit"
	"github.com/ManuGH/videocat/internal/auth"
	"github.com/ManuGH/videocat/internal/catalog"
	"github.com/ManuGH/videocat/internal/health"
	xglog "github.com/ManuGH/videocat/internal/log"
	"github.com/ManuGH/videocat/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// DefaultMaxUploadBytes bounds a multipart upload.
const DefaultMaxUploadBytes int64 = 4 << 30

// Config holds the HTTP surface settings.
type Config struct {
	RateLimitRPM   int
	TracingService string // empty disables request spans
	MaxUploadBytes int64
	// MediaURL prefixes relative media paths in list responses and the
	// thumbnail route.
	MediaURL string
}

// Deps are the collaborators of the server.
type Deps struct {
	Catalog *catalog.Service
	Auth    auth.Authenticator
	Audit   *audit.Logger // nil logs through the global logger
	FS      FS            // nil serves from disk
	Logger  zerolog.Logger

	// Health backs /healthz and /livez; nil checks the catalog only.
	Health *health.Manager
}

// Server owns the router.
type Server struct {
	cfg     Config
	catalog *catalog.Service
	auth    auth.Authenticator
	audit   *audit.Logger
	health  *health.Manager
	gateway *Gateway
	logger  zerolog.Logger
	router  chi.Router
}

func New(cfg Config, deps Deps) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.MediaURL == "" {
		cfg.MediaURL = "/media/"
	}
	if !strings.HasPrefix(cfg.MediaURL, "/") {
		cfg.MediaURL = "/" + cfg.MediaURL
	}
	if !strings.HasSuffix(cfg.MediaURL, "/") {
		cfg.MediaURL += "/"
	}
	s := &Server{
		cfg:     cfg,
		catalog: deps.Catalog,
		auth:    deps.Auth,
		audit:   deps.Audit,
		health:  deps.Health,
		gateway: NewGateway(deps.Catalog, deps.FS),
		logger:  deps.Logger,
	}
	if s.audit == nil {
		s.audit = audit.NewLogger()
	}
	if s.health == nil {
		s.health = health.NewManager("")
		s.health.RegisterChecker(health.NewPingChecker("catalog", 0, deps.Catalog.Store().Ping))
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
		RateLimitRPM:          s.cfg.RateLimitRPM,
	})
	r.NotFound(s.handleUnmatched)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	r.Get("/healthz", s.health.ServeReady)
	r.Get("/livez", s.health.ServeHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/video/", s.handleList)
		r.Get("/video/{id}/{resolution}/index.m3u8", s.handleManifest)
		r.Get("/video/{id}/{resolution}/{segment}", s.handleSegment)
		r.Get("/video/{id}/{resolution}/{segment}/", s.handleSegment)
		r.Get(s.cfg.MediaURL+"thumbnails/{name}", s.handleThumbnail)

		r.Post("/api/videos", s.handleUpload)
		r.Delete("/api/videos/{id}", s.handleDelete)
	})
	return r
}

// handleUnmatched keeps 404 bodies uniform; deeper paths under /video/ are
// usually traversal probes and are logged as such.
func (s *Server) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/video/") || strings.HasPrefix(r.URL.Path, s.cfg.MediaURL) {
		metrics.RecordDeliveryDenied("unmatched_route")
		xglog.FromContext(r.Context()).Warn().
			Str(xglog.FieldEvent, "delivery.unmatched").
			Str(xglog.FieldPath, r.URL.EscapedPath()).
			Str(xglog.FieldRemote, r.RemoteAddr).
			Msg("unmatched delivery path")
	}
	writeNotFound(w)
}
