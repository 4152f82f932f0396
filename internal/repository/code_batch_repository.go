package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/constants"
	"github.com/dujiao-next/discount-engine/internal/models"

	"gorm.io/gorm"
)

// CodeBatchRepository 折扣码批次仓储接口
type CodeBatchRepository interface {
	WithTx(tx *gorm.DB) CodeBatchRepository

	Create(ctx context.Context, batch *models.CodeBatch) error
	GetByID(ctx context.Context, id uint) (*models.CodeBatch, error)
	GetByBatchNo(ctx context.Context, batchNo string) (*models.CodeBatch, error)
	ListBySet(ctx context.Context, setID uint) ([]models.CodeBatch, error)
	ListPendingSync(ctx context.Context, filter PendingBatchFilter) ([]models.CodeBatch, error)
	UpdateCreated(ctx context.Context, id uint, created int) error
	BeginSync(ctx context.Context, id uint) error
	MarkSynced(ctx context.Context, id uint, now time.Time) error
	MarkFailed(ctx context.Context, id uint, reason string) error
}

// GormCodeBatchRepository GORM 批次仓储实现
type GormCodeBatchRepository struct {
	db *gorm.DB
}

// NewCodeBatchRepository 创建批次仓储
func NewCodeBatchRepository(db *gorm.DB) *GormCodeBatchRepository {
	return &GormCodeBatchRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCodeBatchRepository) WithTx(tx *gorm.DB) CodeBatchRepository {
	if tx == nil {
		return r
	}
	return &GormCodeBatchRepository{db: tx}
}

// Create 创建批次
func (r *GormCodeBatchRepository) Create(ctx context.Context, batch *models.CodeBatch) error {
	if batch == nil {
		return errors.New("invalid code batch")
	}
	return r.db.WithContext(ctx).Create(batch).Error
}

// GetByID 根据 ID 查询批次
func (r *GormCodeBatchRepository) GetByID(ctx context.Context, id uint) (*models.CodeBatch, error) {
	if id == 0 {
		return nil, nil
	}
	var batch models.CodeBatch
	if err := r.db.WithContext(ctx).First(&batch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// GetByBatchNo 根据批次号查询批次
func (r *GormCodeBatchRepository) GetByBatchNo(ctx context.Context, batchNo string) (*models.CodeBatch, error) {
	batchNo = strings.TrimSpace(batchNo)
	if batchNo == "" {
		return nil, nil
	}
	var batch models.CodeBatch
	if err := r.db.WithContext(ctx).Where("batch_no = ?", batchNo).First(&batch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// ListBySet 查询活动下的全部批次
func (r *GormCodeBatchRepository) ListBySet(ctx context.Context, setID uint) ([]models.CodeBatch, error) {
	if setID == 0 {
		return []models.CodeBatch{}, nil
	}
	var batches []models.CodeBatch
	if err := r.db.WithContext(ctx).
		Where("set_id = ?", setID).
		Order("id asc").
		Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// ListPendingSync 查询需要补偿同步的批次（待同步或同步失败且未超过重试上限）
func (r *GormCodeBatchRepository) ListPendingSync(ctx context.Context, filter PendingBatchFilter) ([]models.CodeBatch, error) {
	query := r.db.WithContext(ctx).Model(&models.CodeBatch{}).
		Where("sync_status IN ?", []string{constants.BatchSyncPending, constants.BatchSyncFailed})
	if !filter.UpdatedBefore.IsZero() {
		query = query.Where("updated_at <= ?", filter.UpdatedBefore)
	}
	if filter.MaxAttempts > 0 {
		query = query.Where("sync_attempts < ?", filter.MaxAttempts)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var batches []models.CodeBatch
	if err := query.Order("id asc").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

// UpdateCreated 记录实际生成数量
func (r *GormCodeBatchRepository) UpdateCreated(ctx context.Context, id uint, created int) error {
	if id == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.CodeBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"created":    created,
			"updated_at": time.Now(),
		}).Error
}

// BeginSync 累加同步尝试次数
func (r *GormCodeBatchRepository) BeginSync(ctx context.Context, id uint) error {
	if id == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.CodeBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_attempts": gorm.Expr("sync_attempts + ?", 1),
			"updated_at":    time.Now(),
		}).Error
}

// MarkSynced 标记批次已同步到平台
func (r *GormCodeBatchRepository) MarkSynced(ctx context.Context, id uint, now time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.CodeBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_status":     constants.BatchSyncSynced,
			"last_sync_error": "",
			"synced_at":       now,
			"updated_at":      now,
		}).Error
}

// MarkFailed 标记批次同步失败，已同步的批次不会被降级
func (r *GormCodeBatchRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	if id == 0 {
		return nil
	}
	if len(reason) > 1000 {
		reason = reason[:1000]
	}
	return r.db.WithContext(ctx).Model(&models.CodeBatch{}).
		Where("id = ? AND sync_status <> ?", id, constants.BatchSyncSynced).
		Updates(map[string]interface{}{
			"sync_status":     constants.BatchSyncFailed,
			"last_sync_error": reason,
			"updated_at":      time.Now(),
		}).Error
}
