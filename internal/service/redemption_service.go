package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/constants"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/metrics"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/repository"

	"gorm.io/gorm"
)

// 单码核销结果
const (
	RedemptionCredited  = "credited"
	RedemptionDuplicate = "duplicate"
	RedemptionSkipped   = "skipped"
	RedemptionFailed    = "failed"
)

// 跳过原因
const (
	SkipReasonUnknownCode    = "unknown_code"
	SkipReasonUsageExhausted = "usage_exhausted"
)

var errUsageExhausted = errors.New("usage exhausted")

// OrderEvent 订单创建事件（Webhook / 轮询 / 消息流）
type OrderEvent struct {
	MerchantID string       `json:"merchant_id"`
	OrderID    string       `json:"order_id"`
	TotalPrice models.Money `json:"total_price"`
	Currency   string       `json:"currency"`
	Codes      []string     `json:"codes"`
	Source     string       `json:"source"`
}

// CodeOutcome 单码处理结果
type CodeOutcome struct {
	Code   string `json:"code"`
	SetID  uint   `json:"set_id,omitempty"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// RedemptionResult 订单核销结果
type RedemptionResult struct {
	MerchantID string        `json:"merchant_id"`
	OrderID    string        `json:"order_id"`
	Credited   int           `json:"credited"`
	Duplicates int           `json:"duplicates"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Codes      []CodeOutcome `json:"codes"`
}

// RedemptionService 订单核销入账：码使用次数、码收入、活动使用次数与收入
type RedemptionService struct {
	setRepo      repository.DiscountSetRepository
	codeRepo     repository.DiscountCodeRepository
	attrRepo     repository.AttributionRepository
	merchantRepo repository.MerchantRepository
	metrics      *metrics.EngineMetrics
	now          func() time.Time
}

// NewRedemptionService 创建核销服务
func NewRedemptionService(
	setRepo repository.DiscountSetRepository,
	codeRepo repository.DiscountCodeRepository,
	attrRepo repository.AttributionRepository,
	merchantRepo repository.MerchantRepository,
	engineMetrics *metrics.EngineMetrics,
) *RedemptionService {
	return &RedemptionService{
		setRepo:      setRepo,
		codeRepo:     codeRepo,
		attrRepo:     attrRepo,
		merchantRepo: merchantRepo,
		metrics:      engineMetrics,
		now:          time.Now,
	}
}

// RecordOrder 处理一笔订单
// 每个码独立事务：写入 (商户, 订单, 码) 去重记录后再累加计数，重复投递的订单不会重复入账
// 单码失败不影响同一订单的其他码；存在失败时返回 ErrRedemptionIncomplete 以便整体重试
func (s *RedemptionService) RecordOrder(ctx context.Context, event OrderEvent) (*RedemptionResult, error) {
	event.MerchantID = strings.ToLower(strings.TrimSpace(event.MerchantID))
	event.OrderID = strings.TrimSpace(event.OrderID)
	if event.MerchantID == "" || event.OrderID == "" {
		return nil, ErrInvalidInput
	}
	if event.Source == "" {
		event.Source = constants.AttributionSourceWebhook
	}
	merchant, err := s.merchantRepo.GetByShopDomain(ctx, event.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMerchantFetchFailed, err)
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}

	codes := normalizeOrderCodes(event.Codes)
	result := &RedemptionResult{
		MerchantID: event.MerchantID,
		OrderID:    event.OrderID,
		Codes:      make([]CodeOutcome, 0, len(codes)),
	}
	for _, code := range codes {
		outcome := s.redeemCode(ctx, merchant, event, code)
		switch outcome.Status {
		case RedemptionCredited:
			result.Credited++
		case RedemptionDuplicate:
			result.Duplicates++
		case RedemptionSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		s.metrics.Redeemed(outcome.Status, 1)
		result.Codes = append(result.Codes, outcome)
	}

	now := s.now()
	if err := s.attrRepo.UpsertAttribution(ctx, &models.OrderAttribution{
		MerchantID: event.MerchantID,
		OrderID:    event.OrderID,
		TotalPrice: event.TotalPrice,
		Currency:   strings.ToUpper(strings.TrimSpace(event.Currency)),
		Source:     event.Source,
		CodeCount:  len(codes),
		Credited:   result.Credited,
		Skipped:    result.Skipped,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		logger.Warnw("order_attribution_upsert_failed", "merchant_id", event.MerchantID, "order_id", event.OrderID, "error", err)
	}

	if result.Credited > 0 || result.Failed > 0 {
		logger.Infow("order_redeemed",
			"merchant_id", event.MerchantID,
			"order_id", event.OrderID,
			"source", event.Source,
			"credited", result.Credited,
			"duplicates", result.Duplicates,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
	}
	if result.Failed > 0 {
		return result, ErrRedemptionIncomplete
	}
	return result, nil
}

func (s *RedemptionService) redeemCode(ctx context.Context, merchant *models.Merchant, event OrderEvent, code string) CodeOutcome {
	outcome := CodeOutcome{Code: code}
	row, err := s.codeRepo.GetByCodeForMerchant(ctx, code, merchant.ID)
	if err != nil {
		outcome.Status = RedemptionFailed
		outcome.Reason = err.Error()
		logger.Warnw("redemption_code_lookup_failed", "order_id", event.OrderID, "code", code, "error", err)
		return outcome
	}
	if row == nil {
		outcome.Status = RedemptionSkipped
		outcome.Reason = SkipReasonUnknownCode
		logger.Debugw("redemption_code_skipped", "merchant_id", event.MerchantID, "order_id", event.OrderID, "code", code)
		return outcome
	}
	outcome.SetID = row.SetID

	duplicate := false
	err = s.attrRepo.Transaction(ctx, func(tx *gorm.DB) error {
		created, err := s.attrRepo.WithTx(tx).CreateRedemption(ctx, &models.CodeRedemption{
			MerchantID: event.MerchantID,
			OrderID:    event.OrderID,
			Code:       row.Code,
			CodeID:     row.ID,
			SetID:      row.SetID,
			Revenue:    event.TotalPrice,
			CreatedAt:  s.now(),
		})
		if err != nil {
			return err
		}
		if !created {
			duplicate = true
			return nil
		}
		ok, err := s.codeRepo.WithTx(tx).IncrementUse(ctx, row.ID, event.TotalPrice)
		if err != nil {
			return err
		}
		if !ok {
			return errUsageExhausted
		}
		return s.setRepo.WithTx(tx).AddUsage(ctx, row.SetID, 1, event.TotalPrice)
	})
	switch {
	case errors.Is(err, errUsageExhausted):
		outcome.Status = RedemptionSkipped
		outcome.Reason = SkipReasonUsageExhausted
		logger.Warnw("redemption_code_usage_exhausted", "order_id", event.OrderID, "code", code, "set_id", row.SetID)
	case err != nil:
		outcome.Status = RedemptionFailed
		outcome.Reason = err.Error()
		logger.Errorw("redemption_code_failed", "order_id", event.OrderID, "code", code, "set_id", row.SetID, "error", err)
	case duplicate:
		outcome.Status = RedemptionDuplicate
	default:
		outcome.Status = RedemptionCredited
	}
	return outcome
}

// GetAttribution 订单归因查询
func (s *RedemptionService) GetAttribution(ctx context.Context, merchantID, orderID string) (*models.OrderAttribution, []models.CodeRedemption, error) {
	merchantID = strings.ToLower(strings.TrimSpace(merchantID))
	orderID = strings.TrimSpace(orderID)
	if merchantID == "" || orderID == "" {
		return nil, nil, ErrInvalidInput
	}
	attribution, err := s.attrRepo.GetAttribution(ctx, merchantID, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCodeFetchFailed, err)
	}
	if attribution == nil {
		return nil, nil, ErrOrderNotFound
	}
	redemptions, err := s.attrRepo.ListRedemptionsByOrder(ctx, merchantID, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCodeFetchFailed, err)
	}
	return attribution, redemptions, nil
}

func normalizeOrderCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
