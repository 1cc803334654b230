package api

import (
	"docqa/pkg/circuitbreaker"
	"docqa/pkg/httpmiddleware"
	"docqa/pkg/logger"
	"docqa/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RouterOptions 是路由的可选中间件，为 nil 的项不启用。
type RouterOptions struct {
	Logger      *logger.Logger
	RateLimiter ratelimiter.RateLimiter
	Breaker     circuitbreaker.CircuitBreaker
}

// SetupRouter 配置并返回一个 Gin 引擎实例。
func SetupRouter(h *Handler, bearerToken string, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.Logger != nil {
		r.Use(httpmiddleware.GinLogger(opts.Logger))
	}

	r.GET("/health", h.Health)

	// 使用 v1 版本对 API 进行分组
	apiV1 := r.Group("/api/v1")
	// 先鉴权再限流，未授权请求不消耗令牌
	apiV1.Use(AuthMiddleware(bearerToken))
	if opts.RateLimiter != nil {
		apiV1.Use(httpmiddleware.GinRateLimit(opts.RateLimiter))
	}
	if opts.Breaker != nil {
		apiV1.Use(httpmiddleware.GinCircuitBreak(opts.Breaker))
	}
	{
		apiV1.POST("/hackrx/run", h.Run)
	}
	return r
}
