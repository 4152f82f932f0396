package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/models"

	"gorm.io/gorm"
)

// CodeCounts 活动下折扣码统计
type CodeCounts struct {
	Total    int64 `json:"total"`
	Revealed int64 `json:"revealed"`
	Used     int64 `json:"used"`
}

// DiscountCodeRepository 折扣码仓储接口
type DiscountCodeRepository interface {
	WithTx(tx *gorm.DB) DiscountCodeRepository

	Create(ctx context.Context, code *models.DiscountCode) error
	GetByID(ctx context.Context, id uint) (*models.DiscountCode, error)
	GetBySetAndCode(ctx context.Context, setID uint, code string) (*models.DiscountCode, error)
	GetByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	GetByCodeForMerchant(ctx context.Context, code string, merchantID uint) (*models.DiscountCode, error)
	FirstUnrevealedID(ctx context.Context, setID uint, afterID uint) (uint, error)
	MarkRevealed(ctx context.Context, id uint, now time.Time) (bool, error)
	CountsBySet(ctx context.Context, setID uint) (CodeCounts, error)
	CountRevealed(ctx context.Context, setID uint) (int64, error)
	IncrementUse(ctx context.Context, id uint, revenue models.Money) (bool, error)
	ListByBatch(ctx context.Context, batchID uint) ([]models.DiscountCode, error)
	List(ctx context.Context, filter DiscountCodeListFilter) ([]models.DiscountCode, int64, error)
	SumRevenueBySet(ctx context.Context, setID uint) (models.Money, error)
}

// GormDiscountCodeRepository GORM 折扣码仓储实现
type GormDiscountCodeRepository struct {
	db *gorm.DB
}

// NewDiscountCodeRepository 创建折扣码仓储
func NewDiscountCodeRepository(db *gorm.DB) *GormDiscountCodeRepository {
	return &GormDiscountCodeRepository{db: db}
}

// WithTx 绑定事务
func (r *GormDiscountCodeRepository) WithTx(tx *gorm.DB) DiscountCodeRepository {
	if tx == nil {
		return r
	}
	return &GormDiscountCodeRepository{db: tx}
}

// Create 创建单个折扣码，唯一冲突原样返回由调用方重新生成
func (r *GormDiscountCodeRepository) Create(ctx context.Context, code *models.DiscountCode) error {
	if code == nil || strings.TrimSpace(code.Code) == "" {
		return errors.New("invalid discount code")
	}
	return r.db.WithContext(ctx).Create(code).Error
}

// GetByID 根据 ID 查询折扣码
func (r *GormDiscountCodeRepository) GetByID(ctx context.Context, id uint) (*models.DiscountCode, error) {
	if id == 0 {
		return nil, nil
	}
	var code models.DiscountCode
	if err := r.db.WithContext(ctx).First(&code, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &code, nil
}

// GetBySetAndCode 查询活动下的指定折扣码
func (r *GormDiscountCodeRepository) GetBySetAndCode(ctx context.Context, setID uint, code string) (*models.DiscountCode, error) {
	code = strings.TrimSpace(code)
	if setID == 0 || code == "" {
		return nil, nil
	}
	var row models.DiscountCode
	if err := r.db.WithContext(ctx).
		Where("set_id = ? AND code = ?", setID, code).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByCode 按码查找，所属活动已删除时视为不存在
func (r *GormDiscountCodeRepository) GetByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var row models.DiscountCode
	if err := r.db.WithContext(ctx).
		Joins("JOIN discount_sets ON discount_sets.id = discount_codes.set_id").
		Where("discount_codes.code = ? AND discount_sets.deleted_at IS NULL", code).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByCodeForMerchant 在商户名下未删除的活动中查找折扣码
func (r *GormDiscountCodeRepository) GetByCodeForMerchant(ctx context.Context, code string, merchantID uint) (*models.DiscountCode, error) {
	code = strings.TrimSpace(code)
	if code == "" || merchantID == 0 {
		return nil, nil
	}
	var row models.DiscountCode
	if err := r.db.WithContext(ctx).
		Joins("JOIN discount_sets ON discount_sets.id = discount_codes.set_id").
		Where("discount_codes.code = ? AND discount_sets.merchant_id = ? AND discount_sets.deleted_at IS NULL", code, merchantID).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// FirstUnrevealedID 查询活动下 ID 大于 afterID 的第一个未揭示码，不存在返回 0
func (r *GormDiscountCodeRepository) FirstUnrevealedID(ctx context.Context, setID uint, afterID uint) (uint, error) {
	if setID == 0 {
		return 0, nil
	}
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.DiscountCode{}).
		Where("set_id = ? AND revealed = ? AND id > ?", setID, false, afterID).
		Order("id asc").
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0], nil
}

// MarkRevealed 条件更新揭示状态，仅当码仍未揭示时成功
func (r *GormDiscountCodeRepository) MarkRevealed(ctx context.Context, id uint, now time.Time) (bool, error) {
	if id == 0 {
		return false, nil
	}
	result := r.db.WithContext(ctx).Model(&models.DiscountCode{}).
		Where("id = ? AND revealed = ?", id, false).
		Updates(map[string]interface{}{
			"revealed":    true,
			"revealed_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CountsBySet 统计活动下码总数、已揭示数、已使用数
func (r *GormDiscountCodeRepository) CountsBySet(ctx context.Context, setID uint) (CodeCounts, error) {
	var counts CodeCounts
	if setID == 0 {
		return counts, nil
	}
	row := struct {
		Total    int64
		Revealed int64
		Used     int64
	}{}
	if err := r.db.WithContext(ctx).Model(&models.DiscountCode{}).
		Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN revealed THEN 1 ELSE 0 END), 0) AS revealed, "+
				"COALESCE(SUM(CASE WHEN use_count > 0 THEN 1 ELSE 0 END), 0) AS used",
		).
		Where("set_id = ?", setID).
		Scan(&row).Error; err != nil {
		return counts, err
	}
	counts.Total = row.Total
	counts.Revealed = row.Revealed
	counts.Used = row.Used
	return counts, nil
}

// CountRevealed 统计活动下已揭示码数量
func (r *GormDiscountCodeRepository) CountRevealed(ctx context.Context, setID uint) (int64, error) {
	if setID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.DiscountCode{}).
		Where("set_id = ? AND revealed = ?", setID, true).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// IncrementUse 原子累加使用次数与收入，超过可用次数时不更新并返回 false
func (r *GormDiscountCodeRepository) IncrementUse(ctx context.Context, id uint, revenue models.Money) (bool, error) {
	if id == 0 {
		return false, nil
	}
	result := r.db.WithContext(ctx).Model(&models.DiscountCode{}).
		Where("id = ? AND use_count < usable_quantity", id).
		Updates(map[string]interface{}{
			"use_count":  gorm.Expr("use_count + ?", 1),
			"revenue":    gorm.Expr("revenue + ?", revenue.Decimal.StringFixed(2)),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListByBatch 查询批次下全部折扣码
func (r *GormDiscountCodeRepository) ListByBatch(ctx context.Context, batchID uint) ([]models.DiscountCode, error) {
	if batchID == 0 {
		return []models.DiscountCode{}, nil
	}
	var codes []models.DiscountCode
	if err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id asc").
		Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

// List 查询折扣码列表
func (r *GormDiscountCodeRepository) List(ctx context.Context, filter DiscountCodeListFilter) ([]models.DiscountCode, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.DiscountCode{})
	if filter.SetID > 0 {
		query = query.Where("set_id = ?", filter.SetID)
	}
	if filter.BatchID > 0 {
		query = query.Where("batch_id = ?", filter.BatchID)
	}
	if code := strings.TrimSpace(filter.Code); code != "" {
		query = query.Where("code "+likeOperatorByDialect(dbDialectName(r.db))+" ?", "%"+code+"%")
	}
	if filter.Revealed != nil {
		query = query.Where("revealed = ?", *filter.Revealed)
	}
	if filter.Used != nil {
		if *filter.Used {
			query = query.Where("use_count > 0")
		} else {
			query = query.Where("use_count = 0")
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var codes []models.DiscountCode
	if err := query.Order("id asc").Find(&codes).Error; err != nil {
		return nil, 0, err
	}
	return codes, total, nil
}

// SumRevenueBySet 汇总活动下所有码的归因收入
func (r *GormDiscountCodeRepository) SumRevenueBySet(ctx context.Context, setID uint) (models.Money, error) {
	var sum models.Money
	if setID == 0 {
		return sum, nil
	}
	var raw sql.NullString
	if err := r.db.WithContext(ctx).Model(&models.DiscountCode{}).
		Select("CAST(COALESCE(SUM(revenue), 0) AS TEXT)").
		Where("set_id = ?", setID).
		Row().Scan(&raw); err != nil {
		return sum, err
	}
	return models.ParseMoney(raw.String)
}
