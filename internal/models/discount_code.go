package models

import "time"

// DiscountCode 折扣码
type DiscountCode struct {
	ID             uint       `gorm:"primarykey" json:"id"`                                                                    // 主键
	Code           string     `gorm:"type:varchar(96);uniqueIndex;not null" json:"code"`                                       // 码
	SetID          uint       `gorm:"index:idx_discount_codes_set_revealed,priority:1;not null" json:"set_id"`                 // 所属活动ID
	BatchID        uint       `gorm:"index;not null" json:"batch_id"`                                                          // 所属批次ID
	Revealed       bool       `gorm:"index:idx_discount_codes_set_revealed,priority:2;not null;default:false" json:"revealed"` // 是否已揭示
	RevealedAt     *time.Time `json:"revealed_at"`                                                                             // 揭示时间
	UseCount       int        `gorm:"not null;default:0" json:"use_count"`                                                     // 已使用次数
	UsableQuantity int        `gorm:"not null;default:1" json:"usable_quantity"`                                               // 可使用次数
	Revenue        Money      `gorm:"type:decimal(20,2);not null;default:0" json:"revenue"`                                    // 归因收入
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`                                                                 // 创建时间
	UpdatedAt      time.Time  `json:"updated_at"`                                                                              // 更新时间
}

// TableName 指定表名
func (DiscountCode) TableName() string {
	return "discount_codes"
}
