package server

import (
	"wallet-session/internal/handler"
	"wallet-session/internal/handler/response"
	"wallet-session/internal/middleware"
	"wallet-session/pkg/monitor"
	"wallet-session/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RouterOptions 路由依赖
type RouterOptions struct {
	Auth handler.AuthService
	// Limiter 为 nil 时 nonce/verify 不限流
	Limiter *middleware.IPRateLimiter
	// Probes /health 检查的依赖，键为组件名
	Probes map[string]handler.Probe
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(opts RouterOptions) *gin.Engine {
	// 0. 初始化监控指标与自定义校验规则
	monitor.Init()
	validator.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck(opts.Probes))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	{
		api.GET("/ping", func(c *gin.Context) {
			response.Success(c, gin.H{"pong": true})
		})
	}

	// 4. 注册认证路由
	registerAuthRoutes(r, opts)

	return r
}

func registerAuthRoutes(r *gin.Engine, opts RouterOptions) {
	h := handler.NewAuthHandler(opts.Auth)

	authGroup := r.Group("/auth")
	{
		public := authGroup.Group("")
		if opts.Limiter != nil {
			public.Use(opts.Limiter.Handler())
		}
		public.GET("/nonce", h.Nonce)
		public.POST("/verify", h.Verify)

		private := authGroup.Group("", middleware.BearerAuth(opts.Auth))
		private.GET("/me", h.Me)
		private.POST("/logout", h.Logout)
	}
}
