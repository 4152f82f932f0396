package models

import (
	"time"

	"gorm.io/gorm"
)

// DiscountSet 折扣活动（一组折扣码及其折扣规则）
type DiscountSet struct {
	ID                  uint           `gorm:"primarykey" json:"id"`                                               // 主键
	MerchantID          uint           `gorm:"index;not null" json:"merchant_id"`                                  // 商户ID
	Title               string         `gorm:"type:varchar(255);not null" json:"title"`                            // 标题
	CodePrefix          string         `gorm:"type:varchar(32);not null;default:''" json:"code_prefix"`            // 码前缀
	CodeLength          int            `gorm:"not null" json:"code_length"`                                        // 随机部分长度
	Quantity            int            `gorm:"not null;default:0" json:"quantity"`                                 // 应有码数量（只增不减）
	DiscountType        string         `gorm:"type:varchar(20);not null" json:"discount_type"`                     // 折扣类型
	Value               Money          `gorm:"type:decimal(20,2);not null" json:"value"`                           // 折扣值
	TargetScope         string         `gorm:"type:varchar(20);not null;default:'all'" json:"target_scope"`        // 适用范围
	TargetIDs           StringArray    `gorm:"type:text" json:"target_ids"`                                        // 适用集合/商品ID
	MinRequirement      string         `gorm:"type:varchar(20);not null;default:'none'" json:"min_requirement"`    // 最低门槛类型
	MinRequirementValue Money          `gorm:"type:decimal(20,2);not null;default:0" json:"min_requirement_value"` // 最低门槛值
	StartsAt            time.Time      `gorm:"index;not null" json:"starts_at"`                                    // 生效时间
	EndsAt              *time.Time     `gorm:"index" json:"ends_at"`                                               // 失效时间（为空表示长期有效）
	IsActive            bool           `gorm:"index;not null" json:"is_active"`                                    // 是否启用
	AutoReplenish       bool           `gorm:"not null" json:"auto_replenish"`                                     // 是否自动补码
	ReplenishCount      int            `gorm:"not null;default:0" json:"replenish_count"`                          // 已补码次数
	LastReplenishedAt   *time.Time     `json:"last_replenished_at"`                                                // 最近补码时间
	PriceRuleID         string         `gorm:"type:varchar(64);index" json:"price_rule_id"`                        // 平台促销规则ID
	UsageCount          int            `gorm:"not null;default:0" json:"usage_count"`                              // 累计使用次数
	Revenue             Money          `gorm:"type:decimal(20,2);not null;default:0" json:"revenue"`               // 累计归因收入
	ButtonStyle         JSON           `gorm:"type:json" json:"button_style"`                                      // 按钮展示样式
	CreatedAt           time.Time      `gorm:"index" json:"created_at"`                                            // 创建时间
	UpdatedAt           time.Time      `gorm:"index" json:"updated_at"`                                            // 更新时间
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`                                                     // 软删除时间
}

// TableName 指定表名
func (DiscountSet) TableName() string {
	return "discount_sets"
}

// InWindow 判断给定时间是否处于有效期内
func (s *DiscountSet) InWindow(now time.Time) bool {
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
