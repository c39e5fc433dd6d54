// Package api exposes the control surface: status, start/stop commands,
// next-run configuration, a websocket status stream and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"futures-grid-bot/internal/models"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Controller is the subset of the control loop the HTTP layer drives.
type Controller interface {
	TryStart(o models.ConfigOverrides) error
	Stop() bool
	Emergency() bool
	Status() *models.BotStatus
	Config() models.Config
	UpdateConfig(o models.ConfigOverrides) (models.Config, error)
}

// ConfigView is the next-run configuration as shown to clients.
type ConfigView struct {
	Symbol      string  `json:"symbol"`
	GridLevels  int     `json:"gridLevels"`
	GridSpacing float64 `json:"gridSpacing"`
	TotalUsdt   float64 `json:"totalUsdt"`
	Leverage    int     `json:"leverage"`
	StopLoss    float64 `json:"stopLoss"`
	TakeProfit  float64 `json:"takeProfit"`
	Testnet     bool    `json:"testnet"`
}

func viewOf(cfg models.Config) ConfigView {
	return ConfigView{
		Symbol:      cfg.Symbol,
		GridLevels:  cfg.GridLevels,
		GridSpacing: cfg.GridSpacing,
		TotalUsdt:   cfg.TotalCapital,
		Leverage:    cfg.Leverage,
		StopLoss:    cfg.StopLossPct,
		TakeProfit:  cfg.TakeProfitPct,
		Testnet:     cfg.IsTestnet,
	}
}

type okResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Server wraps a gin engine bound to one Controller.
type Server struct {
	ctrl           Controller
	logger         *zap.Logger
	engine         *gin.Engine
	httpServer     *http.Server
	streamInterval time.Duration
	upgrader       websocket.Upgrader
}

// NewServer builds the routes. streamInterval is how often /api/ws pushes a snapshot.
func NewServer(addr string, ctrl Controller, streamInterval time.Duration, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		ctrl:           ctrl,
		logger:         logger,
		engine:         gin.New(),
		streamInterval: streamInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.engine.Use(gin.Recovery(), requestLogger(logger))

	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	api.GET("/state", s.getState)
	api.POST("/start", s.start)
	api.POST("/stop", s.stop)
	api.POST("/emergency", s.emergency)
	api.GET("/config", s.getConfig)
	api.POST("/config", s.updateConfig)
	api.GET("/ws", s.stream)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("control surface listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// requestLogger logs each request with its latency.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// bindOverrides decodes an optional JSON body. An empty body yields no overrides.
func bindOverrides(c *gin.Context) (models.ConfigOverrides, error) {
	var o models.ConfigOverrides
	if err := c.ShouldBindJSON(&o); err != nil && !errors.Is(err, io.EOF) {
		return o, err
	}
	return o, nil
}

// GET /api/state
func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Status())
}

// POST /api/start
func (s *Server) start(c *gin.Context) {
	o, err := bindOverrides(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, okResponse{OK: false, Error: err.Error()})
		return
	}
	if err := s.ctrl.TryStart(o); err != nil {
		c.JSON(http.StatusOK, okResponse{OK: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResponse{OK: true})
}

// POST /api/stop
func (s *Server) stop(c *gin.Context) {
	c.JSON(http.StatusOK, okResponse{OK: s.ctrl.Stop()})
}

// POST /api/emergency
func (s *Server) emergency(c *gin.Context) {
	c.JSON(http.StatusOK, okResponse{OK: s.ctrl.Emergency()})
}

// GET /api/config
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, viewOf(s.ctrl.Config()))
}

// POST /api/config
func (s *Server) updateConfig(c *gin.Context) {
	o, err := bindOverrides(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, okResponse{OK: false, Error: err.Error()})
		return
	}
	if _, err := s.ctrl.UpdateConfig(o); err != nil {
		c.JSON(http.StatusBadRequest, okResponse{OK: false, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, okResponse{OK: true})
}

// GET /api/ws pushes the status snapshot every streamInterval until the client goes away.
func (s *Server) stream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read error", zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()
	for {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(s.ctrl.Status()); err != nil {
			return
		}
		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
