package server

import (
	"net/http"
	"time"

	"alpacastream/config"
	"alpacastream/internal/alpaca/clientcache"
	"alpacastream/internal/alpaca/stream"
	"alpacastream/internal/auth"
	"alpacastream/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server is the HTTP surface: the two streaming endpoints, credential updates
// and a health probe.
type Server struct {
	engine   *gin.Engine
	upgrader websocket.Upgrader

	resolver *auth.Resolver
	clients  *clientcache.Cache
	users    *users.Service
	sessions *stream.Supervisor
	defaults stream.Defaults
	logger   *zap.Logger
}

type Deps struct {
	Resolver *auth.Resolver
	Clients  *clientcache.Cache
	Users    *users.Service
	Sessions *stream.Supervisor
	Logger   *zap.Logger
}

// New wires the router, middleware and handlers.
func New(cfg *config.Config, deps Deps) *Server {
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		resolver: deps.Resolver,
		clients:  deps.Clients,
		users:    deps.Users,
		sessions: deps.Sessions,
		defaults: stream.Defaults{
			Interval:     cfg.Stream.DefaultInterval,
			MinInterval:  cfg.Stream.MinInterval,
			RelaySymbols: cfg.Stream.RelaySymbols,
		},
		logger: deps.Logger,
	}

	s.engine.Use(requestLogger(s.logger), gin.Recovery(), cors(cfg.Server.CORSOrigin))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.getHealth)

	s.engine.GET("/api/alpaca/stream/pnl", s.streamPnL)
	s.engine.GET("/api/alpaca/stream", s.streamTrades)

	authed := s.engine.Group("/api/auth", s.requireUser)
	authed.PUT("/credentials", s.putCredentials)
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func cors(allowed string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		h := c.Writer.Header()
		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		h.Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		h.Set("Access-Control-Max-Age", "86400")
		if allowed == "*" {
			h.Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && origin == allowed {
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
