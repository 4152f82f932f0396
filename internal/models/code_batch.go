package models

import "time"

// CodeBatch 折扣码批次（一次生成的一组码，包含首批与补码批次）
type CodeBatch struct {
	ID            uint       `gorm:"primarykey" json:"id"`                                                 // 主键
	BatchNo       string     `gorm:"type:varchar(48);uniqueIndex;not null" json:"batch_no"`                // 批次号
	SetID         uint       `gorm:"index;not null" json:"set_id"`                                         // 所属活动ID
	Kind          string     `gorm:"type:varchar(20);not null" json:"kind"`                                // 批次类型
	Requested     int        `gorm:"not null;default:0" json:"requested"`                                  // 请求生成数量
	Created       int        `gorm:"not null;default:0" json:"created"`                                    // 实际生成数量
	SyncStatus    string     `gorm:"type:varchar(20);index;not null;default:'pending'" json:"sync_status"` // 平台同步状态
	SyncAttempts  int        `gorm:"not null;default:0" json:"sync_attempts"`                              // 同步尝试次数
	LastSyncError string     `gorm:"type:text" json:"last_sync_error"`                                     // 最近同步错误
	SyncedAt      *time.Time `json:"synced_at"`                                                            // 同步完成时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                                              // 创建时间
	UpdatedAt     time.Time  `gorm:"index" json:"updated_at"`                                              // 更新时间
}

// TableName 指定表名
func (CodeBatch) TableName() string {
	return "code_batches"
}
