package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tombeihofer23/Projekt/services/api/config"
	"github.com/tombeihofer23/Projekt/services/api/db"
	"github.com/tombeihofer23/Projekt/services/internal/forecast"
	"github.com/tombeihofer23/Projekt/services/internal/ingest"
	"github.com/tombeihofer23/Projekt/services/internal/live"
	"github.com/tombeihofer23/Projekt/services/internal/logging"
	"github.com/tombeihofer23/Projekt/services/internal/metrics"
	"github.com/tombeihofer23/Projekt/services/internal/models"
	"github.com/tombeihofer23/Projekt/services/internal/profile"
)

// BoxSource is the live SenseBox API as seen by the handlers.
type BoxSource interface {
	FetchBox(ctx context.Context) (models.BoxInfo, error)
	FetchRecent(ctx context.Context, sensorID string, lookback time.Duration) ([]models.SensorReading, error)
}

// Fetcher runs one live poll.
type Fetcher interface {
	PollOnce(ctx context.Context) (ingest.Result, error)
}

// Deps are the collaborators of the dashboard API. Forecast may be nil when
// no model is configured.
type Deps struct {
	Store    db.Store
	Profile  *profile.Profile
	Box      BoxSource
	Poller   Fetcher
	Hub      *live.Hub
	Forecast *forecast.Pipeline
	Logger   *zap.SugaredLogger
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg      config.Config
	store    db.Store
	profile  *profile.Profile
	box      BoxSource
	poller   Fetcher
	hub      *live.Hub
	forecast *forecast.Pipeline
	logger   *zap.SugaredLogger
	now      func() time.Time
	engine   *gin.Engine
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps) *Server {
	metrics.Init()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware(cfg.CORSOrigin))

	hub := deps.Hub
	if hub == nil {
		hub = live.NewHub(deps.Logger)
	}

	server := &Server{
		cfg:      cfg,
		store:    deps.Store,
		profile:  deps.Profile,
		box:      deps.Box,
		poller:   deps.Poller,
		hub:      hub,
		forecast: deps.Forecast,
		logger:   logging.OrNop(deps.Logger),
		now:      time.Now,
		engine:   engine,
	}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "box_id": s.profile.BoxID})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.registerV1Routes()
}

// authMiddleware picks JWT auth when a secret is configured, otherwise a
// static bearer token, otherwise nothing.
func (s *Server) authMiddleware() gin.HandlerFunc {
	switch {
	case s.cfg.JWTSecret != "":
		return jwtAuthMiddleware([]byte(s.cfg.JWTSecret))
	case s.cfg.BearerToken != "":
		return bearerAuthMiddleware(s.cfg.BearerToken)
	default:
		return func(c *gin.Context) { c.Next() }
	}
}

// bearerToken reads the token from the Authorization header. Browsers cannot
// set headers on websocket upgrades, so access_token is accepted as well.
func bearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")), true
	}
	if token := c.Query("access_token"); token != "" {
		return token, true
	}
	return "", false
}

func bearerAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok || token != expected {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
