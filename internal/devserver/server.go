package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/config"
	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/metrics"
)

// Options 开发后端依赖；Store 与 Responder 为空时使用内存存储与按配置选择的 AI
type Options struct {
	Config      config.DevServerConfig
	ServiceName string
	Version     string
	Debug       bool
	Store       Store
	Responder   Responder
	Logger      *logrus.Logger
}

// Server RecoverEase 本地开发后端：REST + WebSocket
type Server struct {
	cfg    config.DevServerConfig
	engine *gin.Engine
	hub    *Hub
	store  Store
	logger *logrus.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	responder := opts.Responder
	if responder == nil {
		responder = NewResponder(opts.Config.AI, logger)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "recoverease-devserver"
	}

	dir := NewDirectory(opts.Config.Users, opts.Config.Links)
	hub := NewHub(dir, store, logger)
	uploads := NewUploads(opts.Config.UploadPath, opts.Config.MaxUpload)

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.LoggerWithWriter(logger.Writer()))
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(opts.ServiceName))
	r.Use(metricsMiddleware())
	r.Use(corsMiddleware(opts.Config.CORSOrigins))

	health := NewHealthHandler(opts.Version, store, hub, responder)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/ws", hub.HandleWebSocket)
	if opts.Config.UploadPath != "" {
		r.Static(UploadsURLPrefix, opts.Config.UploadPath)
	}

	api := r.Group("/api")
	authed := api.Group("", dir.authRequired())
	NewChatHandler(store, dir, hub, responder, uploads, logger).RegisterRoutes(api, authed)

	return &Server{cfg: opts.Config, engine: r, hub: hub, store: store, logger: logger}
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Hub() *Hub { return s.hub }

// Start 启动 Hub 事件循环，ctx 结束时停止
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	s.Start(hubCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting devserver on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("devserver listen: %w", err)
		}
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down devserver...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	stopHub()
	if cerr := s.store.Close(); cerr != nil {
		s.logger.WithError(cerr).Warn("Failed to close store")
	}
	s.logger.Info("Devserver exited")
	return err
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// corsMiddleware CORS 中间件
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
