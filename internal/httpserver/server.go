// Package httpserver hosts the camera and viewer WebSocket endpoints, the
// pull-mode artifact API and the metrics endpoint on an echo server.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/karnali/wildguard-go/internal/artifact"
	"github.com/karnali/wildguard-go/internal/clip"
	"github.com/karnali/wildguard-go/internal/conf"
	"github.com/karnali/wildguard-go/internal/datastore"
	"github.com/karnali/wildguard-go/internal/inference"
	"github.com/karnali/wildguard-go/internal/logging"
	"github.com/karnali/wildguard-go/internal/observability"
	"github.com/karnali/wildguard-go/internal/session"
	"github.com/karnali/wildguard-go/internal/throttle"
)

// Server hosts the streaming relay's HTTP surface.
type Server struct {
	echo      *echo.Echo
	settings  *conf.Settings
	registry  *session.Registry
	assembler *clip.Assembler
	pool      *inference.Pool
	throttle  *throttle.Controller
	artifacts *artifact.Buffer
	annotator *inference.Annotator
	directory datastore.Store
	metrics   *observability.Metrics
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// New assembles the server. directory and metrics may be nil.
func New(settings *conf.Settings, registry *session.Registry, assembler *clip.Assembler, pool *inference.Pool, controller *throttle.Controller, artifacts *artifact.Buffer, annotator *inference.Annotator, directory datastore.Store, metrics *observability.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:      e,
		settings:  settings,
		registry:  registry,
		assembler: assembler,
		pool:      pool,
		throttle:  controller,
		artifacts: artifacts,
		annotator: annotator,
		directory: directory,
		metrics:   metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  settings.Stream.ReadBufferSize,
			WriteBufferSize: settings.Stream.WriteBufferSize,
			// Field cameras and dashboards connect from anywhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: serviceLogger("httpserver"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/ws/camera/:token", s.handleCameraSocket)
	s.echo.GET("/ws/view/:token", s.handleViewerSocket)

	api := s.echo.Group("/api/v1")
	api.GET("/cameras/:token/status", s.handleStatus)
	api.GET("/cameras/:token/artifacts/next", s.handleNextArtifact)
	api.GET("/cameras/:token/artifacts/:sequence", s.handleArtifactBySequence)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Start serves until ctx is cancelled, then closes all sessions and shuts
// the listener down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(":" + s.settings.WebServer.Port)
	}()
	s.logger.Info("web server started", "port", s.settings.WebServer.Port)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		s.registry.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// sendTimeout is the per-viewer write deadline for broadcasts.
func (s *Server) sendTimeout() time.Duration {
	return time.Duration(s.settings.Stream.SendTimeoutMs) * time.Millisecond
}

// serviceLogger falls back to the default logger so handlers can log before
// logging.Init runs, e.g. under test.
func serviceLogger(name string) *slog.Logger {
	if logger := logging.ForService(name); logger != nil {
		return logger
	}
	return slog.Default().With("service", name)
}

// controlMessage covers every JSON control shape cameras and viewers send.
type controlMessage struct {
	Type        string  `json:"type"`
	Timestamp   float64 `json:"timestamp"`
	FrameNumber int     `json:"frameNumber"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Format      string  `json:"format"`
	ClipNumber  int     `json:"clipNumber"`
	Size        int     `json:"size"`
	TotalChunks int     `json:"totalChunks"`
	LatencyMs   float64 `json:"latency"`
	FPS         float64 `json:"fps"`
	FrameDrops  int     `json:"frameDrops"`
	QueueDepth  int     `json:"queueDepth"`
}
