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

// MerchantRepository 商户仓储接口
type MerchantRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Merchant, error)
	GetByShopDomain(ctx context.Context, shopDomain string) (*models.Merchant, error)
	Upsert(ctx context.Context, merchant *models.Merchant) error
	ListOrderSyncEnabled(ctx context.Context) ([]models.Merchant, error)
	UpdateLastOrderSync(ctx context.Context, id uint, at time.Time) error
}

// GormMerchantRepository GORM 商户仓储实现
type GormMerchantRepository struct {
	db *gorm.DB
}

// NewMerchantRepository 创建商户仓储
func NewMerchantRepository(db *gorm.DB) *GormMerchantRepository {
	return &GormMerchantRepository{db: db}
}

// GetByID 根据 ID 查询商户
func (r *GormMerchantRepository) GetByID(ctx context.Context, id uint) (*models.Merchant, error) {
	if id == 0 {
		return nil, nil
	}
	var merchant models.Merchant
	if err := r.db.WithContext(ctx).First(&merchant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

// GetByShopDomain 根据店铺域名查询商户
func (r *GormMerchantRepository) GetByShopDomain(ctx context.Context, shopDomain string) (*models.Merchant, error) {
	shopDomain = strings.ToLower(strings.TrimSpace(shopDomain))
	if shopDomain == "" {
		return nil, nil
	}
	var merchant models.Merchant
	if err := r.db.WithContext(ctx).Where("shop_domain = ?", shopDomain).First(&merchant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

// Upsert 按店铺域名创建或更新商户凭据
func (r *GormMerchantRepository) Upsert(ctx context.Context, merchant *models.Merchant) error {
	if merchant == nil || strings.TrimSpace(merchant.ShopDomain) == "" {
		return errors.New("invalid merchant")
	}
	merchant.ShopDomain = strings.ToLower(strings.TrimSpace(merchant.ShopDomain))
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_domain"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "webhook_secret", "order_sync_enabled", "is_active", "updated_at"}),
	}).Create(merchant).Error; err != nil {
		return err
	}
	if merchant.ID == 0 {
		return r.db.WithContext(ctx).Where("shop_domain = ?", merchant.ShopDomain).First(merchant).Error
	}
	return nil
}

// ListOrderSyncEnabled 查询开启订单轮询同步的启用商户
func (r *GormMerchantRepository) ListOrderSyncEnabled(ctx context.Context) ([]models.Merchant, error) {
	var merchants []models.Merchant
	if err := r.db.WithContext(ctx).
		Where("order_sync_enabled = ? AND is_active = ?", true, true).
		Order("id asc").
		Find(&merchants).Error; err != nil {
		return nil, err
	}
	return merchants, nil
}

// UpdateLastOrderSync 记录最近一次订单同步时间
func (r *GormMerchantRepository) UpdateLastOrderSync(ctx context.Context, id uint, at time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Merchant{}).
		Where("id = ?", id).
		Update("last_order_synced_at", at).Error
}
