// Package httpapi exposes every pipeline stage as an independent
// HTTP-triggered JSON endpoint.
package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftwoodlabs/triaged/internal/diagnosis"
	"github.com/driftwoodlabs/triaged/internal/fault"
	"github.com/driftwoodlabs/triaged/internal/knowledge"
	"github.com/driftwoodlabs/triaged/internal/patch"
	"github.com/driftwoodlabs/triaged/internal/patterns"
	"github.com/driftwoodlabs/triaged/internal/store"
	"github.com/driftwoodlabs/triaged/internal/tasks"
	"github.com/driftwoodlabs/triaged/internal/trends"
)

// systemHeader authenticates scheduled automation.
const systemHeader = "X-Triaged-System"

// Services bundles the pipeline stages the server dispatches to.
type Services struct {
	Patterns  patterns.Service
	Trends    trends.Service
	Diagnosis diagnosis.Service
	Patches   patch.Service
	Tasks     tasks.Service
	Knowledge knowledge.Service
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Token is the expected bearer token. SystemKey authenticates the
	// scheduled-automation principal via the X-Triaged-System header.
	// When both are empty, authentication is disabled (local mode).
	Token     string
	SystemKey string
}

// Server provides the triaged HTTP API.
type Server struct {
	echo     *echo.Echo
	services Services
	store    store.Store
	logger   *zap.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(cfg *Config, svcs Services, s store.Store, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9180,
		}
	}
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if svcs.Patterns == nil || svcs.Trends == nil || svcs.Diagnosis == nil ||
		svcs.Patches == nil || svcs.Tasks == nil || svcs.Knowledge == nil {
		return nil, fmt.Errorf("all stage services are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	srv := &Server{
		echo:     e,
		services: svcs,
		store:    s,
		logger:   logger,
		config:   cfg,
	}

	srv.registerRoutes()

	return srv, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", s.authenticate)
	v1.POST("/patterns/aggregate", s.handleAggregate)
	v1.POST("/trends/analyze", s.handleTrends)
	v1.POST("/errors/diagnose", s.handleDiagnose)
	v1.POST("/patches/generate", s.handlePatch)
	v1.POST("/tasks/orchestrate", s.handleOrchestrate)
	v1.POST("/knowledge/harvest", s.handleHarvest)
	v1.POST("/knowledge/consolidate", s.handleConsolidate)
}

// authenticate admits callers carrying the bearer token or the system
// principal header. With no credentials configured, all callers pass.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.Token == "" && s.config.SystemKey == "" {
			return next(c)
		}

		if s.config.Token != "" {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
				if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Token)) == 1 {
					return next(c)
				}
			}
		}

		if s.config.SystemKey != "" {
			if key := c.Request().Header.Get(systemHeader); key != "" {
				if subtle.ConstantTimeCompare([]byte(key), []byte(s.config.SystemKey)) == 1 {
					return next(c)
				}
			}
		}

		return s.fail(c, fault.New(fault.KindUnauthorized, "authentication required"))
	}
}

// fail writes the standard failure envelope for a classified error.
func (s *Server) fail(c echo.Context, err error) error {
	status := fault.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err),
		)
	}
	return c.JSON(status, errorResponse{Success: false, Error: err.Error()})
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
