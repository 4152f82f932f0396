package models

import (
	"time"

	"gorm.io/gorm"
)

// Merchant 商户（店铺），ShopDomain 即订单事件中的商户 ID
type Merchant struct {
	ID                uint           `gorm:"primarykey" json:"id"`                                      // 主键
	ShopDomain        string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"shop_domain"` // 店铺域名
	AccessToken       string         `gorm:"type:varchar(255);not null" json:"-"`                       // 平台 API 访问令牌
	WebhookSecret     string         `gorm:"type:varchar(255)" json:"-"`                                // Webhook 签名密钥
	OrderSyncEnabled  bool           `gorm:"not null;default:false" json:"order_sync_enabled"`          // 是否开启订单轮询同步
	LastOrderSyncedAt *time.Time     `json:"last_order_synced_at"`                                      // 最近一次订单同步时间
	IsActive          bool           `gorm:"index;not null" json:"is_active"`                           // 是否启用
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt         time.Time      `gorm:"index" json:"updated_at"`                                   // 更新时间
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`                                            // 软删除时间
}

// TableName 指定表名
func (Merchant) TableName() string {
	return "merchants"
}
