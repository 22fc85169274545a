// Package httpcontroller serves the control API: monitoring start/stop,
// status, a manual reaction trigger, stored notifications, a server-sent
// event stream and the Prometheus metrics endpoint.
package httpcontroller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayane-dev/zombiewatch-go/internal/conf"
	"github.com/ayane-dev/zombiewatch-go/internal/datastore"
	"github.com/ayane-dev/zombiewatch-go/internal/detector"
	"github.com/ayane-dev/zombiewatch-go/internal/logging"
	"github.com/ayane-dev/zombiewatch-go/internal/notification"
	"github.com/ayane-dev/zombiewatch-go/internal/observability"
	"github.com/ayane-dev/zombiewatch-go/internal/reaction"
)

// MonitorControl is the watcher surface the API needs.
type MonitorControl interface {
	Start(ctx context.Context)
	Stop()
	IsRunning() bool
}

// Server hosts the control API.
type Server struct {
	echo       *echo.Echo
	settings   *conf.Settings
	monitor    MonitorControl
	dispatcher *reaction.Dispatcher
	notifier   *notification.Service
	store      datastore.Store
	metrics    *observability.Metrics
	log        *slog.Logger

	// baseCtx governs monitoring sessions started through the API; request
	// contexts die with the request.
	baseCtx context.Context
}

// New creates the API server and registers all routes. A nil store disables
// the detections endpoint.
func New(settings *conf.Settings, monitor MonitorControl, dispatcher *reaction.Dispatcher, notifier *notification.Service, store datastore.Store, metrics *observability.Metrics) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		settings:   settings,
		monitor:    monitor,
		dispatcher: dispatcher,
		notifier:   notifier,
		store:      store,
		metrics:    metrics,
		log:        logging.ForService("httpcontroller"),
		baseCtx:    context.Background(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api/v1")

	api.GET("/status", s.handleStatus)
	api.POST("/control/start", s.handleStart)
	api.POST("/control/stop", s.handleStop)
	api.POST("/reaction/trigger", s.handleTrigger)
	api.GET("/notifications", s.handleNotifications)
	api.GET("/events", s.handleEvents)
	if s.store != nil {
		api.GET("/detections", s.handleDetections)
	}

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%s", s.settings.WebServer.Port)
		s.log.Info("control API listening", "addr", addr)
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

type statusResponse struct {
	Running     bool      `json:"running"`
	Subscribers int       `json:"subscribers"`
	Time        time.Time `json:"time"`
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Running:     s.monitor.IsRunning(),
		Subscribers: s.notifier.SubscriberCount(),
		Time:        time.Now(),
	})
}

func (s *Server) handleStart(c echo.Context) error {
	if s.monitor.IsRunning() {
		return c.JSON(http.StatusConflict, map[string]string{"error": "already running"})
	}
	s.monitor.Start(s.baseCtx)
	return c.JSON(http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(c echo.Context) error {
	if !s.monitor.IsRunning() {
		return c.JSON(http.StatusConflict, map[string]string{"error": "not running"})
	}
	s.monitor.Stop()
	return c.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

type triggerRequest struct {
	Count    int    `json:"count"`
	Distance string `json:"distance"`
	Force    bool   `json:"force"`
}

// handleTrigger fires the reaction pipeline with a synthetic detection. With
// force set, spoken output bypasses the alert cooldowns.
func (s *Server) handleTrigger(c echo.Context) error {
	var req triggerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Count < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "count must not be negative"})
	}

	dc := &detector.Context{
		Count:      req.Count,
		Distance:   req.Distance,
		Force:      req.Force,
		Source:     "manual",
		CapturedAt: time.Now(),
	}
	if req.Count == 0 {
		// A zero-count manual trigger exercises the presence path.
		dc.SceneProbability = 1.0
		dc.ScenePresence = true
	}

	go func() {
		if err := s.dispatcher.Dispatch(context.Background(), dc); err != nil {
			s.log.Error("manual trigger dispatch failed", "error", err)
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]any{
		"status": "triggered",
		"count":  req.Count,
		"force":  req.Force,
	})
}

func (s *Server) handleNotifications(c echo.Context) error {
	return c.JSON(http.StatusOK, s.notifier.List())
}

// handleDetections returns recent persisted detections plus a 24h count.
func (s *Server) handleDetections(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	recent, err := s.store.GetRecent(limit)
	if err != nil {
		s.log.Error("could not read recent detections", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "datastore unavailable"})
	}
	count, err := s.store.CountSince(time.Now().Add(-24 * time.Hour))
	if err != nil {
		s.log.Error("could not count detections", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "datastore unavailable"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"last_24h":   count,
		"detections": recent,
	})
}

// handleEvents streams notifications as server-sent events.
func (s *Server) handleEvents(c echo.Context) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	events, cancel := s.notifier.Subscribe()
	defer cancel()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case <-keepalive.C:
			if _, err := fmt.Fprint(resp, ": keepalive\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		case n, ok := <-events:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "event: notification\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
