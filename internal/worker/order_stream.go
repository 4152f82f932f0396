package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/constants"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/platform"
	"github.com/dujiao-next/discount-engine/internal/service"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// ShopDomainHeader 消息头中的店铺域名
const ShopDomainHeader = "X-Shop-Domain"

// OrderStreamMessage 订单创建事件消息体
type OrderStreamMessage struct {
	ShopDomain string         `json:"shop_domain"`
	Order      platform.Order `json:"order"`
}

// OrderRecorder 订单核销入口
type OrderRecorder interface {
	RecordOrder(ctx context.Context, event service.OrderEvent) (*service.RedemptionResult, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderStreamService Kafka 订单事件消费者，处理完成后提交位点
type OrderStreamService struct {
	reader     messageReader
	recorder   OrderRecorder
	maxElapsed time.Duration
}

// NewOrderStreamService 创建订单事件消费者
func NewOrderStreamService(cfg *config.KafkaConfig, recorder OrderRecorder) (*OrderStreamService, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("kafka disabled")
	}
	if len(cfg.Brokers) == 0 || strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka brokers or topic missing")
	}
	if recorder == nil {
		return nil, errors.New("order recorder is nil")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return newOrderStreamService(reader, recorder), nil
}

func newOrderStreamService(reader messageReader, recorder OrderRecorder) *OrderStreamService {
	return &OrderStreamService{
		reader:     reader,
		recorder:   recorder,
		maxElapsed: 30 * time.Second,
	}
}

// Name 服务名称
func (s *OrderStreamService) Name() string {
	return "order-stream"
}

// Start 持续消费直到 ctx 结束
func (s *OrderStreamService) Start(ctx context.Context) error {
	if s == nil || s.reader == nil {
		return errors.New("order stream not initialized")
	}
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warnw("order_stream_fetch_failed", "error", err)
			return err
		}
		s.handle(ctx, msg)
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warnw("order_stream_commit_failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

// Stop 关闭 reader
func (s *OrderStreamService) Stop(ctx context.Context) error {
	if s == nil || s.reader == nil {
		return nil
	}
	_ = ctx
	return s.reader.Close()
}

// handle 可重试错误按指数退避重试，最终失败的消息记录后跳过
func (s *OrderStreamService) handle(ctx context.Context, msg kafka.Message) {
	event, err := decodeOrderMessage(msg)
	if err != nil {
		logger.Warnw("order_stream_decode_failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return
	}
	if len(event.Codes) == 0 {
		return
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = s.maxElapsed
	err = backoff.Retry(func() error {
		_, err := s.recorder.RecordOrder(ctx, event)
		if err != nil && !service.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		logger.Warnw("order_stream_record_failed",
			"merchant_id", event.MerchantID,
			"order_id", event.OrderID,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

func decodeOrderMessage(msg kafka.Message) (service.OrderEvent, error) {
	var body OrderStreamMessage
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		return service.OrderEvent{}, err
	}
	shop := strings.TrimSpace(body.ShopDomain)
	if shop == "" {
		for _, header := range msg.Headers {
			if strings.EqualFold(header.Key, ShopDomainHeader) {
				shop = strings.TrimSpace(string(header.Value))
				break
			}
		}
	}
	if shop == "" {
		shop = strings.TrimSpace(string(msg.Key))
	}
	if shop == "" || body.Order.ID.String() == "" {
		return service.OrderEvent{}, service.ErrInvalidInput
	}
	return service.OrderEventFromPlatform(shop, body.Order, constants.AttributionSourceStream)
}
