package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"pomelo/internal/ai"
	"pomelo/internal/config"
	"pomelo/internal/handler"
	"pomelo/internal/pkg/ratelimit"
	"pomelo/internal/server/middleware"
)

// Server HTTP 服务器
type Server struct {
	cfg     *config.Config
	engine  *gin.Engine
	limiter *ratelimit.Limiter
}

// New 创建服务器实例
func New(cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	engine := gin.New()

	// 初始化 AI 客户端
	// 缺少 API key 时服务照常启动，聊天请求返回 500
	var streamer handler.ChatStreamer
	if cfg.AI.APIKey != "" {
		aiClient, err := ai.NewClient(context.Background(), &cfg.AI)
		if err != nil {
			return nil, err
		}
		streamer = aiClient
		log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("initialized AI client")
	} else {
		log.Warn().Msg("AI API key not configured, chat requests will be rejected")
	}

	srv := &Server{
		cfg:     cfg,
		engine:  engine,
		limiter: ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window),
	}

	// 设置路由
	srv.setupRoutes(streamer)

	return srv, nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(streamer handler.ChatStreamer) {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// Swagger 文档
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Chat 接口
	chatHandler := handler.NewChatHandler(streamer, s.cfg.Upload.MaxPDFBytes)
	api := s.engine.Group("/api")
	{
		api.POST("/chat", middleware.RateLimit(s.limiter), chatHandler.Chat)
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Engine 获取 Gin 引擎 (用于测试)
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
