package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/agchavez/interlace/config"
	"github.com/agchavez/interlace/internal/api/handlers"
	"github.com/agchavez/interlace/internal/api/middleware"
	"github.com/agchavez/interlace/internal/metrics"
	"github.com/agchavez/interlace/internal/services"
)

// Sessions is what the server needs from the session manager
type Sessions interface {
	handlers.SessionManager
	middleware.SessionLookup
}

// Dependencies are the services behind the HTTP API
type Dependencies struct {
	// Context bounds long lived connections such as notification streams.
	// Shutdown also ends them.
	Context       context.Context
	Sessions      Sessions
	Profile       handlers.ProfileAPI
	Claims        *services.ClaimService
	Notifications *services.NotificationService
	Exports       *services.ExportService
	Lookups       handlers.LookupAPI
	Stream        handlers.StreamFunc
	Metrics       *metrics.Metrics
	HealthChecks  map[string]handlers.Pinger
}

// Server represents the HTTP server
type Server struct {
	config     config.Config
	deps       Dependencies
	router     *gin.Engine
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new HTTP server
func NewServer(cfg config.Config, deps Dependencies) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}

	parent := deps.Context
	if parent == nil {
		parent = context.Background()
	}

	server := &Server{
		config: cfg,
		deps:   deps,
	}
	server.ctx, server.cancel = context.WithCancel(parent)
	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Server.Mode != "" {
		gin.SetMode(s.config.Server.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging())
	router.Use(middleware.Metrics(s.deps.Metrics))
	if s.config.Server.CorsEnabled {
		router.Use(middleware.CORS(s.config.Server.CorsOrigins))
	}
	if s.config.Server.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = s.config.Server.MaxUploadBytes
	}

	handlers.NewMetricsHandler(s.deps.Metrics, s.deps.HealthChecks).RegisterRoutes(router)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.BodyLimit(s.config.Server.MaxUploadBytes))

	protected := v1.Group("")
	protected.Use(middleware.SessionAuth(s.deps.Sessions))

	handlers.NewAuthHandler(s.deps.Sessions, s.deps.Profile).RegisterRoutes(v1, protected)
	handlers.NewClaimHandler(s.deps.Claims).RegisterRoutes(protected)
	handlers.NewNotificationHandler(s.ctx, s.deps.Notifications, s.deps.Stream, s.config.Server.CorsOrigins).RegisterRoutes(protected)
	handlers.NewExportHandler(s.deps.Exports).RegisterRoutes(protected)
	handlers.NewLookupHandler(s.deps.Lookups).RegisterRoutes(protected)

	return router
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.Server.Address).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	// Hijacked websocket connections are not closed by http.Server.Shutdown
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
