package worker

import (
	"context"
	"errors"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	defaultReconcileInterval = 5 * time.Minute
	defaultOrderSyncInterval = 15 * time.Minute
	reconcileBatchLimit      = 50
)

// Service 异步队列服务（任务消费 + 批次补偿 + 订单轮询）
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil || consumer.Container == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	cfg := s.consumer.Config
	if cfg.Reconcile.Enabled && s.consumer.BatchService != nil {
		go s.runReconcileLoop(ctx, cfg.Reconcile)
	}
	if cfg.OrderSync.Enabled && s.consumer.OrderSyncService != nil {
		go s.runOrderSyncLoop(ctx, cfg.OrderSync)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runReconcileLoop 定期补推 pending/failed 批次
func (s *Service) runReconcileLoop(ctx context.Context, cfg config.ReconcileConfig) {
	interval := secondsOr(cfg.IntervalSeconds, defaultReconcileInterval)
	staleAfter := secondsOr(cfg.StaleAfterSeconds, 2*time.Minute)
	runEvery(ctx, interval, func() {
		synced, err := s.consumer.BatchService.ReconcilePending(ctx, staleAfter, cfg.MaxAttempts, reconcileBatchLimit)
		if err != nil {
			logger.Warnw("worker_reconcile_batches_failed", "error", err)
			return
		}
		if synced > 0 {
			logger.Infow("worker_reconcile_batches_done", "synced", synced)
		}
	})
}

// runOrderSyncLoop 定期轮询订单，作为 Webhook 的替代入口
func (s *Service) runOrderSyncLoop(ctx context.Context, cfg config.OrderSyncConfig) {
	interval := secondsOr(cfg.IntervalSeconds, defaultOrderSyncInterval)
	runEvery(ctx, interval, func() {
		summary, err := s.consumer.OrderSyncService.SyncAll(ctx)
		if err != nil {
			logger.Warnw("worker_order_sync_failed", "error", err)
			return
		}
		logger.Infow("worker_order_sync_done",
			"merchants", summary.Merchants,
			"failed", summary.Failed,
			"credited", summary.Credited,
		)
	})
}

func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	fn()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
