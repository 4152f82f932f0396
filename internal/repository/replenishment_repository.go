package repository

import (
	"context"
	"errors"

	"github.com/dujiao-next/discount-engine/internal/models"

	"gorm.io/gorm"
)

// ReplenishmentRepository 补码记录仓储接口
type ReplenishmentRepository interface {
	WithTx(tx *gorm.DB) ReplenishmentRepository

	Create(ctx context.Context, event *models.ReplenishmentEvent) error
	AttachBatch(ctx context.Context, id uint, batchID uint) error
	ListBySet(ctx context.Context, setID uint) ([]models.ReplenishmentEvent, error)
	CountBySet(ctx context.Context, setID uint) (int64, error)
}

// GormReplenishmentRepository GORM 补码记录仓储实现
type GormReplenishmentRepository struct {
	db *gorm.DB
}

// NewReplenishmentRepository 创建补码记录仓储
func NewReplenishmentRepository(db *gorm.DB) *GormReplenishmentRepository {
	return &GormReplenishmentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormReplenishmentRepository) WithTx(tx *gorm.DB) ReplenishmentRepository {
	if tx == nil {
		return r
	}
	return &GormReplenishmentRepository{db: tx}
}

// Create 写入补码记录，同一耗尽周期重复写入返回唯一冲突
func (r *GormReplenishmentRepository) Create(ctx context.Context, event *models.ReplenishmentEvent) error {
	if event == nil || event.SetID == 0 {
		return errors.New("invalid replenishment event")
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// AttachBatch 关联补码批次
func (r *GormReplenishmentRepository) AttachBatch(ctx context.Context, id uint, batchID uint) error {
	if id == 0 || batchID == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.ReplenishmentEvent{}).
		Where("id = ?", id).
		Update("batch_id", batchID).Error
}

// ListBySet 查询活动补码记录
func (r *GormReplenishmentRepository) ListBySet(ctx context.Context, setID uint) ([]models.ReplenishmentEvent, error) {
	if setID == 0 {
		return []models.ReplenishmentEvent{}, nil
	}
	var events []models.ReplenishmentEvent
	if err := r.db.WithContext(ctx).
		Where("set_id = ?", setID).
		Order("id asc").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// CountBySet 统计活动补码次数
func (r *GormReplenishmentRepository) CountBySet(ctx context.Context, setID uint) (int64, error) {
	if setID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.ReplenishmentEvent{}).
		Where("set_id = ?", setID).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
