package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"
	adminhandlers "github.com/dujiao-next/discount-engine/internal/http/handlers/admin"
	proxyhandlers "github.com/dujiao-next/discount-engine/internal/http/handlers/proxy"
	webhookhandlers "github.com/dujiao-next/discount-engine/internal/http/handlers/webhook"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（前台代理 / Webhook / 后台）
	proxyHandler := proxyhandlers.New(c)
	webhookHandler := webhookhandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "dce"
	}
	proxyRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:proxy", redisPrefix),
		WindowSeconds: cfg.RateLimit.WindowSeconds,
		MaxRequests:   cfg.RateLimit.MaxRequests,
		MessageKey:    "error.rate_limited",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(TimeoutMiddleware(cfg.Server.RequestTimeout()))
	{
		// 店铺前台代理接口（按 IP + 活动限流）
		proxy := apiV1.Group("/proxy")
		proxy.Use(RateLimitMiddleware(c.Redis.Client(), proxyRule, KeyByIPAndParam("set_id")))
		{
			proxy.GET("/discounts/:set_id", proxyHandler.GetDiscount)
			proxy.GET("/discounts/:set_id/codes/:code", proxyHandler.GetDiscountByCode)
			proxy.GET("/discounts/:set_id/codes/:code/status", proxyHandler.GetCodeStatus)
			proxy.GET("/codes/:code/reveal", proxyHandler.SetRevealed)
			proxy.POST("/codes/:code/reveal", proxyHandler.SetRevealed)
		}

		// 平台 Webhook
		webhooks := apiV1.Group("/webhooks")
		{
			webhooks.POST("/orders/create", webhookHandler.OrderCreate)
		}

		// 管理接口（鉴权由部署侧网关负责）
		admin := apiV1.Group("/admin")
		{
			// 商户
			admin.POST("/merchants", adminHandler.UpsertMerchant)
			admin.POST("/merchants/:shop_domain/order-sync", adminHandler.SyncMerchantOrders)
			admin.GET("/merchants/:shop_domain/orders/:order_id", adminHandler.GetOrderAttribution)

			// 活动
			admin.GET("/discount-sets", adminHandler.GetDiscountSets)
			admin.POST("/discount-sets", adminHandler.CreateDiscountSet)
			admin.GET("/discount-sets/:id", adminHandler.GetDiscountSet)
			admin.PUT("/discount-sets/:id", adminHandler.UpdateDiscountSet)
			admin.DELETE("/discount-sets/:id", adminHandler.DeleteDiscountSet)
			admin.POST("/discount-sets/:id/activate", adminHandler.ActivateDiscountSet)
			admin.POST("/discount-sets/:id/deactivate", adminHandler.DeactivateDiscountSet)
			admin.GET("/discount-sets/:id/codes", adminHandler.GetDiscountCodes)
			admin.GET("/discount-sets/:id/batches", adminHandler.GetCodeBatches)
			admin.GET("/discount-sets/:id/replenishments", adminHandler.GetReplenishmentHistory)

			// 批次
			admin.POST("/batches/:batch_id/sync", adminHandler.RetryCodeBatchSync)
		}
	}

	// 健康检查
	r.GET("/healthz", healthHandler(c))

	// 指标
	if c.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})))
	}

	return r
}

func healthHandler(c *provider.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"status": "ok", "database": "ok", "redis": "disabled"}
		healthy := true
		if c.DB != nil {
			sqlDB, err := c.DB.DB()
			if err == nil {
				err = sqlDB.PingContext(checkCtx)
			}
			if err != nil {
				logger.Warnw("health_database_unreachable", "error", err)
				status["database"] = "unreachable"
				healthy = false
			}
		}
		if c.Redis.Enabled() {
			status["redis"] = "ok"
			if err := c.Redis.Ping(checkCtx); err != nil {
				logger.Warnw("health_redis_unreachable", "error", err)
				status["redis"] = "unreachable"
				healthy = false
			}
		}
		if !healthy {
			status["status"] = "degraded"
			ctx.JSON(http.StatusServiceUnavailable, status)
			return
		}
		ctx.JSON(http.StatusOK, status)
	}
}
