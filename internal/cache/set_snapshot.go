package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dujiao-next/discount-engine/internal/models"
)

// SetSnapshot 折扣活动展示快照，供店面揭示接口校验与展示使用
// 不包含 quantity、计数等频繁变化的字段
type SetSnapshot struct {
	ID            uint        `json:"id"`
	MerchantID    uint        `json:"merchant_id"`
	Title         string      `json:"title"`
	CodePrefix    string      `json:"code_prefix"`
	CodeLength    int         `json:"code_length"`
	IsActive      bool        `json:"is_active"`
	AutoReplenish bool        `json:"auto_replenish"`
	StartsAt      time.Time   `json:"starts_at"`
	EndsAt        *time.Time  `json:"ends_at"`
	ButtonStyle   models.JSON `json:"button_style"`
}

// SnapshotFromSet 由活动模型生成快照
func SnapshotFromSet(set *models.DiscountSet) *SetSnapshot {
	if set == nil {
		return nil
	}
	return &SetSnapshot{
		ID:            set.ID,
		MerchantID:    set.MerchantID,
		Title:         set.Title,
		CodePrefix:    set.CodePrefix,
		CodeLength:    set.CodeLength,
		IsActive:      set.IsActive,
		AutoReplenish: set.AutoReplenish,
		StartsAt:      set.StartsAt,
		EndsAt:        set.EndsAt,
		ButtonStyle:   set.ButtonStyle,
	}
}

// InWindow 判断是否处于有效期内
func (s *SetSnapshot) InWindow(now time.Time) bool {
	if s == nil {
		return false
	}
	if !s.StartsAt.IsZero() && now.Before(s.StartsAt) {
		return false
	}
	if s.EndsAt != nil && !now.Before(*s.EndsAt) {
		return false
	}
	return true
}

func setSnapshotKey(setID uint) string {
	return fmt.Sprintf("discount:set:%d", setID)
}

// GetSetSnapshot 读取活动快照
func (r *Redis) GetSetSnapshot(ctx context.Context, setID uint) (*SetSnapshot, bool, error) {
	if setID == 0 {
		return nil, false, nil
	}
	var snapshot SetSnapshot
	hit, err := r.GetJSON(ctx, setSnapshotKey(setID), &snapshot)
	if err != nil || !hit {
		return nil, false, err
	}
	return &snapshot, true, nil
}

// SetSetSnapshot 写入活动快照
func (r *Redis) SetSetSnapshot(ctx context.Context, snapshot *SetSnapshot, ttl time.Duration) error {
	if snapshot == nil || snapshot.ID == 0 || ttl <= 0 {
		return nil
	}
	return r.SetJSON(ctx, setSnapshotKey(snapshot.ID), snapshot, ttl)
}

// InvalidateSetSnapshot 删除活动快照
func (r *Redis) InvalidateSetSnapshot(ctx context.Context, setID uint) error {
	if setID == 0 {
		return nil
	}
	return r.Del(ctx, setSnapshotKey(setID))
}
