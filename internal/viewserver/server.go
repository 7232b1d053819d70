package viewserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"curator/internal/backend"
	"curator/internal/logging"
	"curator/internal/metrics"
	"curator/internal/session"
)

// Options configures the server.
type Options struct {
	Bind    string
	Events  *Events
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Server serves the session over HTTP.
type Server struct {
	ctrl    *session.Controller
	events  *Events
	metrics *metrics.Collector
	logger  *slog.Logger
	bind    string
	engine  *gin.Engine

	listener net.Listener
	server   *http.Server
}

// New builds the router for ctrl.
func New(ctrl *session.Controller, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	events := opts.Events
	if events == nil {
		events = NewEvents(0)
	}
	s := &Server{
		ctrl:    ctrl,
		events:  events,
		metrics: opts.Metrics,
		logger:  logging.NewComponentLogger(logger, "viewserver"),
		bind:    strings.TrimSpace(opts.Bind),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestContext())
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: isLocalOrigin,
		AllowMethods:    []string{http.MethodGet, http.MethodPost},
		AllowHeaders:    []string{"Content-Type", "X-Request-ID"},
		ExposeHeaders:   []string{"X-Request-ID"},
		MaxAge:          10 * time.Minute,
	}))

	engine.GET("/health", s.handleHealth)
	api := engine.Group("/api")
	api.GET("/view", s.handleView)
	api.GET("/rows/:id", s.handleRow)
	api.GET("/job", s.handleJob)
	api.GET("/events", s.handleEvents)
	api.GET("/actions", s.handleActions)
	api.POST("/actions/:action", s.handleAction)
	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	s.engine = engine
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured bind address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("view listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("view server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("view server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		requestID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveView(c.Request.Method, route, c.Writer.Status(), elapsed)
		}
		s.logger.Debug("view request",
			logging.String("method", c.Request.Method),
			logging.String("route", route),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldRequestID, requestID),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "job": s.ctrl.Generator().Snapshot().State})
}

func (s *Server) handleView(c *gin.Context) {
	_, latest, _ := s.events.Since(0)
	c.JSON(http.StatusOK, gin.H{"view": s.ctrl.View(), "seq": latest})
}

func (s *Server) handleRow(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}
	row, ok := s.ctrl.Row(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not loaded"})
		return
	}
	c.JSON(http.StatusOK, row)
}

func (s *Server) handleJob(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Generator().Snapshot())
}

func (s *Server) handleEvents(c *gin.Context) {
	var since uint64
	if raw := c.Query("since"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		since = parsed
	}
	events, latest, truncated := s.events.Since(since)
	if events == nil {
		events = []Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "seq": latest, "truncated": truncated})
}

func (s *Server) handleActions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": s.ctrl.Actions()})
}

func (s *Server) handleAction(c *gin.Context) {
	var cmd session.Command
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid command body"})
			return
		}
	}
	cmd.Action = session.Action(c.Param("action"))

	outcome, err := s.ctrl.Dispatch(c.Request.Context(), cmd)
	if err != nil {
		status, message := classify(err)
		c.JSON(status, gin.H{"error": message, "outcome": outcome})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func classify(err error) (int, string) {
	switch {
	case session.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrUnknownAction):
		return http.StatusNotFound, err.Error()
	case backend.IsNetwork(err):
		return http.StatusServiceUnavailable, "backend unreachable"
	case backend.StatusCode(err) != 0:
		return http.StatusBadGateway, fmt.Sprintf("backend returned %d", backend.StatusCode(err))
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func isLocalOrigin(origin string) bool {
	for _, prefix := range []string{"http://127.0.0.1", "http://localhost", "http://[::1]"} {
		if origin == prefix || strings.HasPrefix(origin, prefix+":") {
			return true
		}
	}
	return false
}
