package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/provider"
	"github.com/dujiao-next/discount-engine/internal/queue"
	"github.com/dujiao-next/discount-engine/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskBatchSync, c.handleBatchSync)
	mux.HandleFunc(queue.TaskOrderRedeem, c.handleOrderRedeem)
}

func (c *Consumer) handleBatchSync(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || task == nil {
		logger.Debugw("worker_batch_sync_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.BatchSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_batch_sync_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if payload.BatchID == 0 {
		logger.Debugw("worker_batch_sync_skip_invalid_payload", "batch_no", payload.BatchNo)
		return nil
	}
	if c.BatchService == nil {
		logger.Warnw("worker_batch_sync_skip_service_nil", "batch_no", payload.BatchNo)
		return nil
	}
	result, err := c.BatchService.SyncBatch(ctx, payload.BatchID)
	if err != nil {
		return classifyTaskError("worker_batch_sync_failed", err, "batch_id", payload.BatchID, "batch_no", payload.BatchNo)
	}
	logger.Debugw("worker_batch_sync_done", "batch_no", payload.BatchNo, "pushed", result.Pushed)
	return nil
}

func (c *Consumer) handleOrderRedeem(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || task == nil {
		logger.Debugw("worker_order_redeem_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderRedeemPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_redeem_unmarshal_failed", "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if payload.MerchantID == "" || payload.OrderID == "" {
		logger.Debugw("worker_order_redeem_skip_invalid_payload", "merchant_id", payload.MerchantID, "order_id", payload.OrderID)
		return nil
	}
	if c.RedemptionService == nil {
		logger.Warnw("worker_order_redeem_skip_service_nil", "order_id", payload.OrderID)
		return nil
	}
	total, err := models.ParseMoney(payload.TotalPrice)
	if err != nil {
		logger.Warnw("worker_order_redeem_invalid_total", "order_id", payload.OrderID, "total_price", payload.TotalPrice)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	_, err = c.RedemptionService.RecordOrder(ctx, service.OrderEvent{
		MerchantID: payload.MerchantID,
		OrderID:    payload.OrderID,
		TotalPrice: total,
		Currency:   payload.Currency,
		Codes:      payload.Codes,
		Source:     payload.Source,
	})
	if err != nil {
		return classifyTaskError("worker_order_redeem_failed", err, "merchant_id", payload.MerchantID, "order_id", payload.OrderID)
	}
	return nil
}

// classifyTaskError 可重试错误交回 asynq 重试，其余错误记录后跳过重试
func classifyTaskError(event string, err error, kv ...interface{}) error {
	fields := append(kv, "error", err, "kind", string(service.KindOf(err)))
	switch {
	case errors.Is(err, service.ErrBatchNotFound),
		errors.Is(err, service.ErrSetNotFound),
		errors.Is(err, service.ErrMerchantNotFound):
		logger.Debugw(event+"_skip_not_found", fields...)
		return nil
	case service.IsRetryable(err):
		logger.Warnw(event, fields...)
		return err
	default:
		logger.Warnw(event+"_skip_retry", fields...)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
}
