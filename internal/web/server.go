// internal/web/server.go - HTTP API server
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"watchtower/internal/config"
	"watchtower/internal/database"
	"watchtower/internal/monitoring"
)

// Server hosts the REST API, the websocket endpoint, and the metrics
// endpoint.
type Server struct {
	cfg      *config.Config
	store    database.Store
	alerts   *monitoring.AlertManager
	liveness *monitoring.LivenessEvaluator
	hub      *Hub

	httpServer *http.Server
}

func NewServer(cfg *config.Config, store database.Store, alerts *monitoring.AlertManager, liveness *monitoring.LivenessEvaluator, hub *Hub) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		alerts:   alerts,
		liveness: liveness,
		hub:      hub,
	}
}

// Start begins serving and blocks until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery(), corsMiddleware())

	s.setupRoutes(router)

	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logrus.WithField("addr", s.httpServer.Addr).Info("Starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.hub.Handle)
	if s.cfg.Prometheus.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/heartbeat/:id", s.handleHeartbeat)
		api.GET("/heartbeat/:id/history", s.handleListHeartbeats)

		api.GET("/hosts", s.handleListHosts)
		api.POST("/hosts", s.handleCreateHost)
		api.GET("/hosts/:id", s.handleGetHost)
		api.PUT("/hosts/:id", s.handleUpdateHost)
		api.DELETE("/hosts/:id", s.handleDeleteHost)
		api.GET("/hosts/:id/heartbeats", s.handleListHeartbeats)
		api.POST("/hosts/:id/token", s.handleRotateHostToken)

		api.GET("/services", s.handleListServices)
		api.POST("/services", s.handleCreateService)
		api.GET("/services/:id", s.handleGetService)
		api.PUT("/services/:id", s.handleUpdateService)
		api.DELETE("/services/:id", s.handleDeleteService)
		api.GET("/services/:id/checks", s.handleListServiceChecks)

		api.GET("/alerts", s.handleListAlerts)
		api.GET("/alerts/:id", s.handleGetAlert)
		api.POST("/alerts/:id/acknowledge", s.handleAcknowledgeAlert)

		api.GET("/stats", s.handleStats)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}).Debug("HTTP request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
