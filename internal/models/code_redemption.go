package models

import "time"

// CodeRedemption 单码核销记录，(商户, 订单, 码) 唯一，用于防重复入账
type CodeRedemption struct {
	ID         uint      `gorm:"primarykey" json:"id"`                                                                     // 主键
	MerchantID string    `gorm:"type:varchar(255);uniqueIndex:idx_code_redemption,priority:1;not null" json:"merchant_id"` // 商户ID
	OrderID    string    `gorm:"type:varchar(64);uniqueIndex:idx_code_redemption,priority:2;not null" json:"order_id"`     // 平台订单ID
	Code       string    `gorm:"type:varchar(96);uniqueIndex:idx_code_redemption,priority:3;not null" json:"code"`         // 码
	CodeID     uint      `gorm:"index;not null" json:"code_id"`                                                            // 折扣码ID
	SetID      uint      `gorm:"index;not null" json:"set_id"`                                                             // 所属活动ID
	Revenue    Money     `gorm:"type:decimal(20,2);not null;default:0" json:"revenue"`                                     // 入账金额
	CreatedAt  time.Time `gorm:"index" json:"created_at"`                                                                  // 创建时间
}

// TableName 指定表名
func (CodeRedemption) TableName() string {
	return "code_redemptions"
}
