package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docqa/internal/bootstrap"
	"docqa/internal/config"
	"docqa/internal/rag_service/api"
	"docqa/pkg/circuitbreaker"
	httpclient "docqa/pkg/http"
	"docqa/pkg/logger"
	"docqa/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

const ServiceName = "docqa_service"

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// 2. 初始化 Logger
	level, err := logger.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Printf("%v, falling back to info", err)
	}
	appLogger := logger.New(ServiceName, level, os.Stdout)
	if cfg.Auth.BearerToken == "" {
		appLogger.Warn("HACKRX_API_KEY is not set, /api/v1 will answer 503 until it is configured")
	}

	// 3. 组装流水线和服务
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("Failed to build pipeline: %v", err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			appLogger.WithError(err).Warn("closing external connections")
		}
	}()

	// 4. API 中间件
	var (
		limiter ratelimiter.RateLimiter
		breaker circuitbreaker.CircuitBreaker
	)
	if cfg.Middleware.RateLimiter.Enabled {
		if limiter, err = httpclient.NewRateLimiter(cfg.Middleware.RateLimiter); err != nil {
			appLogger.Fatal(fmt.Sprintf("Failed to create rate limiter: %v", err))
		}
	}
	if cfg.Middleware.CircuitBreaker.Enabled {
		if breaker, err = httpclient.NewCircuitBreaker(cfg.Middleware.CircuitBreaker); err != nil {
			appLogger.Fatal(fmt.Sprintf("Failed to create circuit breaker: %v", err))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(api.NewHandler(app.Service), cfg.Auth.BearerToken, api.RouterOptions{
		Logger:      appLogger,
		RateLimiter: limiter,
		Breaker:     breaker,
	})
	apiServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. 指标服务
	var metricsServer *httpclient.Server
	if cfg.Server.MetricsAddress != "" {
		metricsServer, err = httpclient.NewServer(cfg.Middleware, appLogger, httpclient.WithAddress(cfg.Server.MetricsAddress))
		if err != nil {
			appLogger.Fatal(fmt.Sprintf("Failed to create metrics server: %v", err))
		}
		metricsServer.Handle("/metrics", app.Metrics.Handler())
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				appLogger.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info(fmt.Sprintf("HTTP server listening at %s", cfg.Server.Address))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 6. 优雅退出
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down servers...")
	case err := <-errCh:
		appLogger.WithError(err).Error("HTTP server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("HTTP server shutdown")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.WithError(err).Warn("metrics server shutdown")
		}
	}
	appLogger.Info("Servers gracefully stopped")
}
