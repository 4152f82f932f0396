package provider

import (
	"github.com/dujiao-next/discount-engine/internal/cache"
	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/metrics"
	"github.com/dujiao-next/discount-engine/internal/platform"
	"github.com/dujiao-next/discount-engine/internal/queue"
	"github.com/dujiao-next/discount-engine/internal/repository"
	"github.com/dujiao-next/discount-engine/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       *cache.Redis
	QueueClient *queue.Client
	Registry    *prometheus.Registry
	Metrics     *metrics.EngineMetrics
	Platform    *platform.Client

	// Repositories
	MerchantRepo      repository.MerchantRepository
	SetRepo           repository.DiscountSetRepository
	CodeRepo          repository.DiscountCodeRepository
	BatchRepo         repository.CodeBatchRepository
	ReplenishmentRepo repository.ReplenishmentRepository
	AttributionRepo   repository.AttributionRepository

	// Services
	BatchService         *service.BatchService
	ReplenishmentService *service.ReplenishmentService
	RevealService        *service.RevealService
	RedemptionService    *service.RedemptionService
	OrderSyncService     *service.OrderSyncService
	DiscountSetService   *service.DiscountSetService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config, db *gorm.DB) *Container {
	// 初始化缓存
	redis := cache.NewRedis(&cfg.Redis)

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Container{
		Config:      cfg,
		DB:          db,
		Redis:       redis,
		QueueClient: queueClient,
		Registry:    registry,
		Metrics:     metrics.NewEngineMetrics(registry),
		Platform: platform.NewClient(platform.Options{
			BaseURLTemplate: cfg.Platform.BaseURLTemplate,
			APIVersion:      cfg.Platform.APIVersion,
			Timeout:         cfg.Platform.Timeout(),
			MaxRetries:      cfg.Platform.MaxRetries,
			ChunkSize:       cfg.Platform.BatchChunkSize,
		}),
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := c.DB
	c.MerchantRepo = repository.NewMerchantRepository(db)
	c.SetRepo = repository.NewDiscountSetRepository(db)
	c.CodeRepo = repository.NewDiscountCodeRepository(db)
	c.BatchRepo = repository.NewCodeBatchRepository(db)
	c.ReplenishmentRepo = repository.NewReplenishmentRepository(db)
	c.AttributionRepo = repository.NewAttributionRepository(db)
}

func (c *Container) initServices() {
	var enqueuer service.BatchSyncEnqueuer
	if c.QueueClient != nil {
		enqueuer = c.QueueClient
	}
	engineCfg := c.Config.Engine

	c.BatchService = service.NewBatchService(c.SetRepo, c.CodeRepo, c.BatchRepo, c.MerchantRepo, c.Platform, enqueuer, c.Metrics, engineCfg)
	c.ReplenishmentService = service.NewReplenishmentService(c.SetRepo, c.CodeRepo, c.ReplenishmentRepo, c.BatchService, c.Metrics, engineCfg)
	c.RevealService = service.NewRevealService(c.SetRepo, c.CodeRepo, c.ReplenishmentService, c.Redis, c.Metrics, engineCfg)
	c.RedemptionService = service.NewRedemptionService(c.SetRepo, c.CodeRepo, c.AttributionRepo, c.MerchantRepo, c.Metrics)
	c.OrderSyncService = service.NewOrderSyncService(c.MerchantRepo, c.Platform, c.RedemptionService, c.Config.OrderSync)
	c.DiscountSetService = service.NewDiscountSetService(c.SetRepo, c.CodeRepo, c.MerchantRepo, c.BatchService, c.Platform, c.Redis)
}

// Close 释放外部连接
func (c *Container) Close() {
	if c == nil {
		return
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_close_queue_client_failed", "error", err)
		}
	}
	if err := c.Redis.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
