package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttributionRepository 订单归因与单码核销仓储接口
type AttributionRepository interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AttributionRepository

	GetAttribution(ctx context.Context, merchantID, orderID string) (*models.OrderAttribution, error)
	UpsertAttribution(ctx context.Context, attribution *models.OrderAttribution) error
	CreateRedemption(ctx context.Context, redemption *models.CodeRedemption) (bool, error)
	ListRedemptionsByOrder(ctx context.Context, merchantID, orderID string) ([]models.CodeRedemption, error)
}

// GormAttributionRepository GORM 订单归因仓储实现
type GormAttributionRepository struct {
	db *gorm.DB
}

// NewAttributionRepository 创建订单归因仓储
func NewAttributionRepository(db *gorm.DB) *GormAttributionRepository {
	return &GormAttributionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAttributionRepository) WithTx(tx *gorm.DB) AttributionRepository {
	if tx == nil {
		return r
	}
	return &GormAttributionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormAttributionRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

// GetAttribution 按 (商户, 订单) 查询归因记录
func (r *GormAttributionRepository) GetAttribution(ctx context.Context, merchantID, orderID string) (*models.OrderAttribution, error) {
	merchantID = strings.TrimSpace(merchantID)
	orderID = strings.TrimSpace(orderID)
	if merchantID == "" || orderID == "" {
		return nil, nil
	}
	var row models.OrderAttribution
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND order_id = ?", merchantID, orderID).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// UpsertAttribution 按 (商户, 订单) 写入或累加归因记录
func (r *GormAttributionRepository) UpsertAttribution(ctx context.Context, attribution *models.OrderAttribution) error {
	if attribution == nil || attribution.MerchantID == "" || attribution.OrderID == "" {
		return errors.New("invalid order attribution")
	}
	now := time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "merchant_id"}, {Name: "order_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"credited":   gorm.Expr("order_attributions.credited + ?", attribution.Credited),
			"skipped":    attribution.Skipped,
			"code_count": attribution.CodeCount,
			"updated_at": now,
		}),
	}).Create(attribution).Error
}

// CreateRedemption 写入单码核销记录，返回 false 表示该订单已核销过此码
func (r *GormAttributionRepository) CreateRedemption(ctx context.Context, redemption *models.CodeRedemption) (bool, error) {
	if redemption == nil || redemption.Code == "" {
		return false, errors.New("invalid code redemption")
	}
	// ON CONFLICT DO NOTHING 避免唯一冲突中断外层事务
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "merchant_id"}, {Name: "order_id"}, {Name: "code"}},
		DoNothing: true,
	}).Create(redemption)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListRedemptionsByOrder 查询订单下的核销记录
func (r *GormAttributionRepository) ListRedemptionsByOrder(ctx context.Context, merchantID, orderID string) ([]models.CodeRedemption, error) {
	var rows []models.CodeRedemption
	if err := r.db.WithContext(ctx).
		Where("merchant_id = ? AND order_id = ?", merchantID, orderID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
