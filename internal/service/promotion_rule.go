package service

import (
	"context"
	"time"

	"github.com/dujiao-next/discount-engine/internal/constants"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/platform"
	"github.com/dujiao-next/discount-engine/internal/queue"
)

// PromotionRuleClient 平台促销规则客户端
type PromotionRuleClient interface {
	CreatePriceRule(ctx context.Context, session platform.Session, rule platform.PriceRule) (string, error)
	UpdatePriceRule(ctx context.Context, session platform.Session, priceRuleID string, rule platform.PriceRule) error
	CreateDiscountCodes(ctx context.Context, session platform.Session, priceRuleID string, codes []string) error
}

// OrderSource 平台订单读取
type OrderSource interface {
	ListOrders(ctx context.Context, session platform.Session, since, until time.Time) ([]platform.Order, error)
}

// BatchSyncEnqueuer 批次同步任务投递
type BatchSyncEnqueuer interface {
	Enabled() bool
	EnqueueBatchSync(ctx context.Context, payload queue.BatchSyncPayload) error
}

func merchantSession(merchant *models.Merchant) platform.Session {
	if merchant == nil {
		return platform.Session{}
	}
	return platform.Session{
		ShopDomain:  merchant.ShopDomain,
		AccessToken: merchant.AccessToken,
	}
}

// buildPriceRule 将活动折扣形态转换为平台促销规则
func buildPriceRule(set *models.DiscountSet) platform.PriceRule {
	rule := platform.PriceRule{
		Title:           set.Title,
		ValueType:       platform.ValueTypePercentage,
		Value:           set.Value.String(),
		TargetSelection: platform.TargetSelectionAll,
		StartsAt:        set.StartsAt,
		EndsAt:          set.EndsAt,
		UsageLimit:      set.Quantity,
	}
	if set.DiscountType == constants.DiscountTypeFixed {
		rule.ValueType = platform.ValueTypeFixedAmount
	}
	switch set.TargetScope {
	case constants.TargetScopeCollections:
		rule.TargetSelection = platform.TargetSelectionSome
		rule.EntitledCollectionIDs = append([]string(nil), set.TargetIDs...)
	case constants.TargetScopeProducts:
		rule.TargetSelection = platform.TargetSelectionSome
		rule.EntitledProductIDs = append([]string(nil), set.TargetIDs...)
	}
	switch set.MinRequirement {
	case constants.MinRequirementSubtotal:
		rule.PrerequisiteSubtotal = set.MinRequirementValue.String()
	case constants.MinRequirementQuantity:
		rule.PrerequisiteQuantity = int(set.MinRequirementValue.Decimal.IntPart())
	}
	return rule
}
