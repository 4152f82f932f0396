package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/models"

	"gorm.io/gorm"
)

// DiscountSetRepository 折扣活动仓储接口
type DiscountSetRepository interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) DiscountSetRepository

	Create(ctx context.Context, set *models.DiscountSet) error
	GetByID(ctx context.Context, id uint) (*models.DiscountSet, error)
	List(ctx context.Context, filter DiscountSetListFilter) ([]models.DiscountSet, int64, error)
	ListIDsByMerchant(ctx context.Context, merchantID uint) ([]uint, error)
	Update(ctx context.Context, set *models.DiscountSet) error
	BindPriceRuleID(ctx context.Context, id uint, priceRuleID string) (bool, error)
	SetActive(ctx context.Context, id uint, active bool) (int64, error)
	SoftDelete(ctx context.Context, id uint) (int64, error)
	ReplenishIfUnchanged(ctx context.Context, id uint, observedQuantity, delta int, now time.Time) (bool, error)
	AddUsage(ctx context.Context, id uint, uses int, revenue models.Money) error
}

// GormDiscountSetRepository GORM 折扣活动仓储实现
type GormDiscountSetRepository struct {
	db *gorm.DB
}

// NewDiscountSetRepository 创建折扣活动仓储
func NewDiscountSetRepository(db *gorm.DB) *GormDiscountSetRepository {
	return &GormDiscountSetRepository{db: db}
}

// WithTx 绑定事务
func (r *GormDiscountSetRepository) WithTx(tx *gorm.DB) DiscountSetRepository {
	if tx == nil {
		return r
	}
	return &GormDiscountSetRepository{db: tx}
}

// Transaction 执行事务
func (r *GormDiscountSetRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

// Create 创建折扣活动
func (r *GormDiscountSetRepository) Create(ctx context.Context, set *models.DiscountSet) error {
	if set == nil {
		return errors.New("invalid discount set")
	}
	return r.db.WithContext(ctx).Create(set).Error
}

// GetByID 根据 ID 查询折扣活动，已软删除的活动视为不存在
func (r *GormDiscountSetRepository) GetByID(ctx context.Context, id uint) (*models.DiscountSet, error) {
	if id == 0 {
		return nil, nil
	}
	var set models.DiscountSet
	if err := r.db.WithContext(ctx).First(&set, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &set, nil
}

// List 查询折扣活动列表
func (r *GormDiscountSetRepository) List(ctx context.Context, filter DiscountSetListFilter) ([]models.DiscountSet, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.DiscountSet{})
	if filter.MerchantID > 0 {
		query = query.Where("merchant_id = ?", filter.MerchantID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		query = query.Where("(title "+likeOperatorByDialect(dbDialectName(r.db))+" ? OR code_prefix = ?)", like, search)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var sets []models.DiscountSet
	if err := query.Order("id desc").Find(&sets).Error; err != nil {
		return nil, 0, err
	}
	return sets, total, nil
}

// ListIDsByMerchant 查询商户名下全部未删除活动 ID
func (r *GormDiscountSetRepository) ListIDsByMerchant(ctx context.Context, merchantID uint) ([]uint, error) {
	if merchantID == 0 {
		return []uint{}, nil
	}
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.DiscountSet{}).
		Where("merchant_id = ?", merchantID).
		Order("id asc").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Update 更新折扣规则与有效期，计数类字段不在此更新
func (r *GormDiscountSetRepository) Update(ctx context.Context, set *models.DiscountSet) error {
	if set == nil || set.ID == 0 {
		return errors.New("invalid discount set")
	}
	return r.db.WithContext(ctx).Model(&models.DiscountSet{}).
		Where("id = ?", set.ID).
		Updates(map[string]interface{}{
			"title":                 set.Title,
			"discount_type":         set.DiscountType,
			"value":                 set.Value,
			"target_scope":          set.TargetScope,
			"target_ids":            set.TargetIDs,
			"min_requirement":       set.MinRequirement,
			"min_requirement_value": set.MinRequirementValue,
			"starts_at":             set.StartsAt,
			"ends_at":               set.EndsAt,
			"auto_replenish":        set.AutoReplenish,
			"button_style":          set.ButtonStyle,
			"updated_at":            time.Now(),
		}).Error
}

// BindPriceRuleID 写入平台促销规则 ID，仅当活动尚未绑定规则时成功
func (r *GormDiscountSetRepository) BindPriceRuleID(ctx context.Context, id uint, priceRuleID string) (bool, error) {
	if id == 0 || priceRuleID == "" {
		return false, nil
	}
	result := r.db.WithContext(ctx).Model(&models.DiscountSet{}).
		Where("id = ? AND (price_rule_id = '' OR price_rule_id IS NULL)", id).
		Updates(map[string]interface{}{
			"price_rule_id": priceRuleID,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// SetActive 启用/停用折扣活动
func (r *GormDiscountSetRepository) SetActive(ctx context.Context, id uint, active bool) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Model(&models.DiscountSet{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// SoftDelete 软删除折扣活动
func (r *GormDiscountSetRepository) SoftDelete(ctx context.Context, id uint) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Delete(&models.DiscountSet{}, id)
	return result.RowsAffected, result.Error
}

// ReplenishIfUnchanged 以观测到的 quantity 作为水位线补码扩容，
// 只有 quantity 仍等于 observedQuantity 且活动启用时才会成功，同一耗尽周期只有一个调用方胜出
func (r *GormDiscountSetRepository) ReplenishIfUnchanged(ctx context.Context, id uint, observedQuantity, delta int, now time.Time) (bool, error) {
	if id == 0 || delta <= 0 {
		return false, nil
	}
	result := r.db.WithContext(ctx).Model(&models.DiscountSet{}).
		Where("id = ? AND quantity = ? AND is_active = ?", id, observedQuantity, true).
		Updates(map[string]interface{}{
			"quantity":            gorm.Expr("quantity + ?", delta),
			"replenish_count":     gorm.Expr("replenish_count + ?", 1),
			"last_replenished_at": now,
			"updated_at":          now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// AddUsage 原子累加使用次数与收入
func (r *GormDiscountSetRepository) AddUsage(ctx context.Context, id uint, uses int, revenue models.Money) error {
	if id == 0 || uses <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.DiscountSet{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + ?", uses),
			"revenue":     gorm.Expr("revenue + ?", revenue.Decimal.StringFixed(2)),
		}).Error
}
