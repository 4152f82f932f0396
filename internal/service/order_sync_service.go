package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/constants"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/platform"
	"github.com/dujiao-next/discount-engine/internal/repository"

	"golang.org/x/sync/errgroup"
)

// OrderSyncService 订单轮询同步（Webhook 权限不可用时的替代入口）
type OrderSyncService struct {
	merchantRepo repository.MerchantRepository
	orders       OrderSource
	redemption   *RedemptionService
	lookback     time.Duration
	attribute    string
	concurrency  int
	now          func() time.Time
}

// OrderSyncResult 单商户同步结果
type OrderSyncResult struct {
	MerchantID string `json:"merchant_id"`
	Fetched    int    `json:"fetched"`
	Matched    int    `json:"matched"`
	Credited   int    `json:"credited"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
}

// OrderSyncSummary 全量同步汇总
type OrderSyncSummary struct {
	Merchants int `json:"merchants"`
	Failed    int `json:"failed"`
	Credited  int `json:"credited"`
}

// NewOrderSyncService 创建订单同步服务
func NewOrderSyncService(merchantRepo repository.MerchantRepository, orders OrderSource, redemption *RedemptionService, cfg config.OrderSyncConfig) *OrderSyncService {
	lookbackDays := cfg.LookbackDays
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &OrderSyncService{
		merchantRepo: merchantRepo,
		orders:       orders,
		redemption:   redemption,
		lookback:     time.Duration(lookbackDays) * 24 * time.Hour,
		attribute:    strings.TrimSpace(cfg.SessionAttribute),
		concurrency:  concurrency,
		now:          time.Now,
	}
}

// SyncMerchant 拉取回溯窗口内的订单并逐笔入账，窗口重叠时依赖 (订单, 商户) 去重
func (s *OrderSyncService) SyncMerchant(ctx context.Context, merchant *models.Merchant) (*OrderSyncResult, error) {
	if merchant == nil || merchant.ShopDomain == "" {
		return nil, ErrInvalidInput
	}
	if !merchant.IsActive {
		return nil, ErrMerchantInactive
	}
	if s.orders == nil || s.redemption == nil {
		return nil, ErrOrderSyncFailed
	}
	until := s.now()
	since := until.Add(-s.lookback)
	orders, err := s.orders.ListOrders(ctx, merchantSession(merchant), since, until)
	if err != nil {
		logger.Warnw("order_sync_fetch_failed", "merchant_id", merchant.ShopDomain, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrOrderSyncFailed, err)
	}
	result := &OrderSyncResult{MerchantID: merchant.ShopDomain, Fetched: len(orders)}
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		codes := order.Codes()
		if len(codes) == 0 && !s.correlated(order) {
			continue
		}
		result.Matched++
		event, err := OrderEventFromPlatform(merchant.ShopDomain, order, constants.AttributionSourcePoll)
		if err != nil {
			logger.Warnw("order_sync_invalid_total", "merchant_id", merchant.ShopDomain, "order_id", order.ID.String(), "total_price", order.TotalPrice)
			result.Failed++
			continue
		}
		redeemed, err := s.redemption.RecordOrder(ctx, event)
		if redeemed != nil {
			result.Credited += redeemed.Credited
			result.Duplicates += redeemed.Duplicates
		}
		if err != nil {
			result.Failed++
		}
	}
	if err := s.merchantRepo.UpdateLastOrderSync(ctx, merchant.ID, until); err != nil {
		logger.Warnw("order_sync_update_cursor_failed", "merchant_id", merchant.ShopDomain, "error", err)
	}
	logger.Infow("order_sync_merchant_done",
		"merchant_id", merchant.ShopDomain,
		"fetched", result.Fetched,
		"matched", result.Matched,
		"credited", result.Credited,
		"duplicates", result.Duplicates,
		"failed", result.Failed,
	)
	return result, nil
}

// SyncAll 并发同步所有开启轮询的商户，单个商户失败不影响其他商户
func (s *OrderSyncService) SyncAll(ctx context.Context) (*OrderSyncSummary, error) {
	merchants, err := s.merchantRepo.ListOrderSyncEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMerchantFetchFailed, err)
	}
	summary := &OrderSyncSummary{Merchants: len(merchants)}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range merchants {
		merchant := merchants[i]
		g.Go(func() error {
			result, err := s.SyncMerchant(gctx, &merchant)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				return nil
			}
			summary.Credited += result.Credited
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *OrderSyncService) correlated(order platform.Order) bool {
	if s.attribute == "" {
		return false
	}
	return order.HasAttribute(s.attribute)
}

// OrderEventFromPlatform 将平台订单转换为核销事件（Webhook、轮询、消息流共用）
func OrderEventFromPlatform(merchantID string, order platform.Order, source string) (OrderEvent, error) {
	total, err := models.ParseMoney(order.TotalPrice)
	if err != nil {
		return OrderEvent{}, fmt.Errorf("%w: total_price %q", ErrInvalidInput, order.TotalPrice)
	}
	return OrderEvent{
		MerchantID: merchantID,
		OrderID:    order.ID.String(),
		TotalPrice: total,
		Currency:   order.Currency,
		Codes:      order.Codes(),
		Source:     source,
	}, nil
}
