package models

import "time"

// OrderAttribution 订单归因记录，按 (商户, 订单) 唯一
type OrderAttribution struct {
	ID         uint      `gorm:"primarykey" json:"id"`                                                                       // 主键
	MerchantID string    `gorm:"type:varchar(255);uniqueIndex:idx_order_attribution,priority:1;not null" json:"merchant_id"` // 商户ID（店铺域名）
	OrderID    string    `gorm:"type:varchar(64);uniqueIndex:idx_order_attribution,priority:2;not null" json:"order_id"`     // 平台订单ID
	TotalPrice Money     `gorm:"type:decimal(20,2);not null;default:0" json:"total_price"`                                   // 订单总额
	Currency   string    `gorm:"type:varchar(16)" json:"currency"`                                                           // 币种
	Source     string    `gorm:"type:varchar(20);not null" json:"source"`                                                    // 来源
	CodeCount  int       `gorm:"not null;default:0" json:"code_count"`                                                       // 订单携带码数量
	Credited   int       `gorm:"not null;default:0" json:"credited"`                                                         // 已入账码数量
	Skipped    int       `gorm:"not null;default:0" json:"skipped"`                                                          // 跳过码数量
	CreatedAt  time.Time `gorm:"index" json:"created_at"`                                                                    // 创建时间
	UpdatedAt  time.Time `json:"updated_at"`                                                                                 // 更新时间
}

// TableName 指定表名
func (OrderAttribution) TableName() string {
	return "order_attributions"
}
