// Package server exposes the control-plane HTTP API and the dashboard
// websocket feed. All state lives in the manager; handlers translate between
// HTTP and manager calls.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"kuma-grid-bot-go/internal/manager"
	"kuma-grid-bot-go/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server hosts the REST API and websocket hub on one listener.
type Server struct {
	logger *zap.SugaredLogger
	mgr    *manager.Manager
	hub    *Hub
	http   *http.Server

	// runCtx is the parent context handed to bots started over the API.
	runCtx context.Context
}

// New builds the server. runCtx bounds the lifetime of bots started through
// the API.
func New(runCtx context.Context, addr string, mgr *manager.Manager, logger *zap.SugaredLogger) *Server {
	s := &Server{
		logger: logger,
		mgr:    mgr,
		hub:    NewHub(mgr.Snapshots, logger),
		runCtx: runCtx,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/ws", func(c *gin.Context) { s.hub.Serve(c.Writer, c.Request) })

	api := router.Group("/api")
	{
		api.GET("/bots", s.handleListBots)
		api.POST("/bots", s.handleCreateBot)
		api.GET("/bots/:id", s.handleGetBot)
		api.DELETE("/bots/:id", s.handleDeleteBot)
		api.POST("/bots/:id/start", s.handleStartBot)
		api.POST("/bots/:id/stop", s.handleStopBot)
		api.POST("/bots/:id/reset", s.handleResetBot)
		api.GET("/bots/:id/trades", s.handleBotTrades)
		api.GET("/bots/:id/config", s.handleGetConfig)
		api.PUT("/bots/:id/config", s.handleUpdateConfig)
	}

	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

// Run serves HTTP and broadcasts dashboard stats until the context ends.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnf("http shutdown: %v", err)
		}
	}()

	s.logger.Infof("control API listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "bots": len(s.mgr.Snapshots())})
}

func (s *Server) handleListBots(c *gin.Context) {
	c.JSON(http.StatusOK, s.mgr.Snapshots())
}

func (s *Server) handleCreateBot(c *gin.Context) {
	var cfg models.BotConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.mgr.Create(cfg)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleGetBot(c *gin.Context) {
	snap, err := s.mgr.Snapshot(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleDeleteBot(c *gin.Context) {
	if err := s.mgr.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleStartBot(c *gin.Context) {
	if err := s.mgr.Start(s.runCtx, c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) handleStopBot(c *gin.Context) {
	if err := s.mgr.Stop(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handleResetBot(c *gin.Context) {
	if err := s.mgr.Reset(c.Param("id")); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) handleBotTrades(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.mgr.Trades(c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	cfg, err := s.mgr.Config(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(c *gin.Context) {
	var cfg models.BotConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mgr.UpdateConfig(c.Param("id"), cfg); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// statusFor maps validation failures to 400 and everything else to 409.
func statusFor(err error) int {
	var cfgErr *models.ConfigError
	if errors.As(err, &cfgErr) {
		return http.StatusBadRequest
	}
	return http.StatusConflict
}
