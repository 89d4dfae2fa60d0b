// Package pipeline receives task-pipeline events over a loopback HTTP
// listener and forwards them into the approval store.
//
// The backend runner is the single producer: it posts a checkpoint event when
// execution pauses and a resume event when execution continues past an
// approval. The listener is the only collaborator that writes checkpoint
// identity into the store.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fernlabs/gateview/internal/approval"
)

// Config holds listener configuration.
type Config struct {
	Host string
	Port int
}

// Listener is the HTTP ingress for pipeline events.
type Listener struct {
	echo   *echo.Echo
	store  *approval.Store
	logger *zap.Logger
	config *Config
}

// ResumeEvent is the body for POST /api/v1/events/resume.
type ResumeEvent struct {
	TaskID string `json:"task_id,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// NewListener creates the event listener. cfg nil uses loopback defaults.
func NewListener(store *approval.Store, logger *zap.Logger, cfg *Config) (*Listener, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for event tracking")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8791,
		}
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

			logger.Debug("pipeline event request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	l := &Listener{
		echo:   e,
		store:  store,
		logger: logger,
		config: cfg,
	}

	l.registerRoutes()

	return l, nil
}

// registerRoutes sets up the HTTP endpoints.
func (l *Listener) registerRoutes() {
	l.echo.GET("/health", l.handleHealth)

	v1 := l.echo.Group("/api/v1")
	v1.POST("/events/checkpoint", l.handleCheckpoint)
	v1.POST("/events/resume", l.handleResume)
}

// handleHealth returns a simple health check response.
func (l *Listener) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleCheckpoint records a newly reached checkpoint. The store resets
// feedback and error state as part of the same update.
func (l *Listener) handleCheckpoint(c echo.Context) error {
	var info approval.CheckpointInfo
	if err := c.Bind(&info); err != nil {
		l.logger.Warn("invalid checkpoint event", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if info.CheckpointID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "checkpoint_id field is required")
	}

	l.store.SetCheckpoint(&info)

	l.logger.Info("checkpoint reached",
		zap.String("checkpoint_id", info.CheckpointID),
		zap.String("task_id", info.TaskID),
		zap.String("phase", string(info.Phase)),
		zap.Bool("requires_approval", info.RequiresApproval),
	)

	return c.JSON(http.StatusAccepted, HealthResponse{Status: "accepted"})
}

// handleResume clears the review state after the pipeline moved past the
// checkpoint. Idempotent: resuming with nothing active is fine.
func (l *Listener) handleResume(c echo.Context) error {
	var ev ResumeEvent
	if err := c.Bind(&ev); err != nil {
		l.logger.Warn("invalid resume event", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	l.store.Clear()

	l.logger.Info("pipeline resumed", zap.String("task_id", ev.TaskID))
	return c.JSON(http.StatusAccepted, HealthResponse{Status: "accepted"})
}

// Handler exposes the underlying handler, used by tests.
func (l *Listener) Handler() http.Handler {
	return l.echo
}

// Start starts the HTTP listener.
func (l *Listener) Start() error {
	addr := fmt.Sprintf("%s:%d", l.config.Host, l.config.Port)
	l.logger.Info("starting pipeline event listener", zap.String("addr", addr))
	return l.echo.Start(addr)
}

// Shutdown gracefully shuts down the listener.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.logger.Info("shutting down pipeline event listener")
	return l.echo.Shutdown(ctx)
}
