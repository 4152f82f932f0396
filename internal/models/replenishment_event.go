package models

import "time"

// ReplenishmentEvent 补码记录，(SetID, FromQuantity) 唯一标识一次耗尽周期
type ReplenishmentEvent struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                                         // 主键
	SetID         uint      `gorm:"uniqueIndex:idx_replenishment_epoch,priority:1;not null" json:"set_id"`        // 所属活动ID
	FromQuantity  int       `gorm:"uniqueIndex:idx_replenishment_epoch,priority:2;not null" json:"from_quantity"` // 补码前数量
	ToQuantity    int       `gorm:"not null" json:"to_quantity"`                                                  // 补码后数量
	RevealedCount int64     `gorm:"not null;default:0" json:"revealed_count"`                                     // 触发时已揭示数量
	BatchID       *uint     `gorm:"index" json:"batch_id"`                                                        // 补码批次ID
	CreatedAt     time.Time `gorm:"index" json:"created_at"`                                                      // 创建时间
}

// TableName 指定表名
func (ReplenishmentEvent) TableName() string {
	return "replenishment_events"
}
