// Package httpserver serves the operations API: health and readiness,
// Prometheus metrics, camera diagnostics, detection groups, effectiveness
// statistics and the redacted configuration.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/diagnostics"
	"github.com/tphakala/pestguard-go/internal/effectiveness"
	"github.com/tphakala/pestguard-go/internal/grouping"
	"github.com/tphakala/pestguard-go/internal/logging"
	"github.com/tphakala/pestguard-go/internal/observability"
)

const (
	defaultGroupLimit = 100
	maxGroupLimit     = 500
	recentErrorLimit  = 20
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("httpserver")
}

// Server is the operations HTTP server.
type Server struct {
	echo     *echo.Echo
	settings *conf.Settings
	tracker  *diagnostics.Tracker
	grouper  *grouping.Grouper
	stats    *effectiveness.Tracker
	metrics  *observability.Metrics
}

// New assembles the ops server and registers its routes.
func New(settings *conf.Settings, tracker *diagnostics.Tracker, grouper *grouping.Grouper, stats *effectiveness.Tracker, metrics *observability.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		settings: settings,
		tracker:  tracker,
		grouper:  grouper,
		stats:    stats,
		metrics:  metrics,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogRemoteIP: true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("Request handled",
				"remote_ip", v.RemoteIP,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"error", v.Error)
			return nil
		},
	}))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.echo.Group("/api/v1")
	api.GET("/diagnostics/:camera", s.handleDiagnostics)
	api.GET("/groups", s.handleGroups)
	api.GET("/stats", s.handleStats)
	api.GET("/config", s.handleConfig)
}

// Start serves on the configured listen address in a background goroutine.
func (s *Server) Start() {
	listen := s.settings.Ops.Listen
	if listen == "" {
		listen = "0.0.0.0:8090"
	}
	go func() {
		logger.Info("Ops server listening", "address", listen)
		if err := s.echo.Start(listen); err != nil && err != http.ErrServerClosed {
			logger.Error("Ops server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.settings.Version,
		"cameras": s.tracker.HealthStatus(),
	})
}

// diagnosticsResponse combines recent camera errors with fix suggestions.
type diagnosticsResponse struct {
	Camera      string                    `json:"camera"`
	Errors      []diagnostics.ErrorRecord `json:"errors"`
	Suggestions []string                  `json:"suggestions"`
}

func (s *Server) handleDiagnostics(c echo.Context) error {
	camera := c.Param("camera")
	return c.JSON(http.StatusOK, diagnosticsResponse{
		Camera:      camera,
		Errors:      s.tracker.RecentErrors(camera, recentErrorLimit),
		Suggestions: s.tracker.SuggestFixes(camera),
	})
}

func (s *Server) handleGroups(c echo.Context) error {
	limit := defaultGroupLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = min(parsed, maxGroupLimit)
	}

	groups, err := s.grouper.RecentGroups(limit)
	if err != nil {
		logger.Error("Failed to build detection groups", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load groups")
	}
	return c.JSON(http.StatusOK, groups)
}

// statsResponse carries either the global summary or the per-pest breakdown.
type statsResponse struct {
	Summary      any `json:"summary,omitempty"`
	Statistics   any `json:"statistics,omitempty"`
	TimePatterns any `json:"time_patterns,omitempty"`
}

func (s *Server) handleStats(c echo.Context) error {
	pest := c.QueryParam("pest")
	if pest == "" {
		summary, err := s.stats.Summary()
		if err != nil {
			logger.Error("Failed to load effectiveness summary", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to load statistics")
		}
		return c.JSON(http.StatusOK, statsResponse{Summary: summary})
	}

	statistics, err := s.stats.Statistics(pest)
	if err != nil {
		logger.Error("Failed to load sound statistics", "pest", pest, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load statistics")
	}
	patterns, err := s.stats.TimePatterns(pest)
	if err != nil {
		logger.Error("Failed to load time patterns", "pest", pest, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load statistics")
	}
	return c.JSON(http.StatusOK, statsResponse{Statistics: statistics, TimePatterns: patterns})
}

func (s *Server) handleConfig(c echo.Context) error {
	redacted, err := s.settings.RedactedYAML()
	if err != nil {
		logger.Error("Failed to render configuration", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render configuration")
	}
	return c.Blob(http.StatusOK, "application/yaml", redacted)
}
