package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 订单入账队列名称
	CriticalQueue = constants.QueueCritical

	defaultMaxRetry      = 8
	batchSyncUniqueTTL   = 30 * time.Second
	orderRedeemRetention = 24 * time.Hour
)

// Client 队列客户端封装
type Client struct {
	client   *asynq.Client
	enabled  bool
	maxRetry int
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{enabled: false}, nil
	}
	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	return &Client{
		client:   asynq.NewClient(buildRedisOpt(cfg)),
		enabled:  true,
		maxRetry: maxRetry,
	}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.enabled && c.client != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueBatchSync 推送批次同步任务，短时间内同一批次只保留一个任务
func (c *Client) EnqueueBatchSync(ctx context.Context, payload BatchSyncPayload) error {
	if !c.Enabled() {
		return errors.New("queue disabled")
	}
	task, err := NewBatchSyncTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(DefaultQueue),
		asynq.MaxRetry(c.maxRetry),
		asynq.Unique(batchSyncUniqueTTL),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// EnqueueOrderRedeem 推送订单核销任务，以 (商户, 订单) 作为任务 ID 合并重复投递
func (c *Client) EnqueueOrderRedeem(ctx context.Context, payload OrderRedeemPayload) error {
	if !c.Enabled() {
		return errors.New("queue disabled")
	}
	task, err := NewOrderRedeemTask(payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(CriticalQueue),
		asynq.MaxRetry(c.maxRetry),
		asynq.TaskID(OrderRedeemTaskID(payload.MerchantID, payload.OrderID)),
		asynq.Retention(orderRedeemRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// OrderRedeemTaskID 订单核销任务 ID
func OrderRedeemTaskID(merchantID, orderID string) string {
	return fmt.Sprintf("order-redeem:%s:%s", strings.ToLower(strings.TrimSpace(merchantID)), strings.TrimSpace(orderID))
}

// BuildServerConfig 生成队列服务配置
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	opt := buildRedisOpt(cfg)
	concurrency := 10
	if cfg != nil && cfg.Concurrency > 0 {
		concurrency = cfg.Concurrency
	}
	queues := map[string]int{DefaultQueue: 1, CriticalQueue: 2}
	if cfg != nil && len(cfg.Queues) > 0 {
		queues = cfg.Queues
	}
	return opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}
}

func buildRedisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	host := "127.0.0.1"
	port := 6379
	password := ""
	db := 0
	if cfg != nil {
		if strings.TrimSpace(cfg.Host) != "" {
			host = strings.TrimSpace(cfg.Host)
		}
		if cfg.Port > 0 {
			port = cfg.Port
		}
		password = cfg.Password
		db = cfg.DB
	}
	return asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	}
}
