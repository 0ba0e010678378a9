package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/kgroute"
	"github.com/soundprediction/kgroute/pkg/config"
	"github.com/soundprediction/kgroute/pkg/server/handlers"
	"github.com/soundprediction/kgroute/pkg/types"
)

const readHeaderTimeout = 10 * time.Second

// Server exposes a kgroute client over gin.
type Server struct {
	config *config.Config
	router *gin.Engine
	client kgroute.KGRoute
	server *http.Server
	logger *slog.Logger
}

// New returns an unconfigured server; call Setup before Start or Handler.
// client may be nil, in which case every graph route reports unavailable.
func New(cfg *config.Config, client kgroute.KGRoute, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{config: cfg, client: client, logger: logger}
}

// Setup builds the router, its middleware chain and the http.Server.
func (s *Server) Setup() {
	if mode := s.config.Server.Mode; mode != "" {
		gin.SetMode(mode)
	}

	s.router = gin.New()
	s.router.Use(requestLogger(s.logger), gin.Recovery(), corsMiddleware(), contextMiddleware())
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port)),
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes sets up all the routes
func (s *Server) setupRoutes() {
	var (
		answerer  kgroute.Answerer
		inspector kgroute.GraphInspector
		runs      kgroute.RunLookup
	)
	if s.client != nil {
		answerer, inspector = s.client, s.client
		runs, _ = s.client.(kgroute.RunLookup)
	}
	healthHandler := handlers.NewHealthHandler(inspector)
	answerHandler := handlers.NewAnswerHandler(answerer, s.logger)
	graphHandler := handlers.NewGraphHandler(inspector)
	runHandler := handlers.NewRunHandler(runs)

	// Health endpoints
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/healthcheck", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)
	s.router.GET("/live", healthHandler.LivenessCheck)
	s.router.GET("/health/detailed", healthHandler.DetailedHealthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/answer", answerHandler.Answer)
		v1.GET("/entity-types", graphHandler.EntityTypes)
		v1.GET("/runs", runHandler.List)
		v1.GET("/runs/:id", runHandler.Run)
	}
}

// Start blocks serving requests. It returns nil after Stop.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("draining connections")
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request, at error level for 5xx.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":      "*",
	"Access-Control-Allow-Credentials": "true",
	"Access-Control-Allow-Methods":     "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers": strings.Join([]string{
		"Accept", "Authorization", "Cache-Control", "Content-Type", "Content-Length",
		"Origin", "X-Requested-With", "X-User-ID", "X-Session-ID",
	}, ", "),
}

// corsMiddleware allows any origin and answers preflight requests itself.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		for k, v := range corsHeaders {
			c.Header(k, v)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// contextMiddleware copies the caller identity headers into the request
// context, where token usage and error telemetry pick them up.
func contextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), types.ContextKeyRequestSource, "server")
		for header, key := range map[string]types.ContextKey{
			"X-User-ID":    types.ContextKeyUserID,
			"X-Session-ID": types.ContextKeySessionID,
		} {
			if v := c.GetHeader(header); v != "" {
				ctx = context.WithValue(ctx, key, v)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
