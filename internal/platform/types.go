package platform

import (
	"encoding/json"
	"strings"
	"time"
)

// 平台促销规则取值
const (
	ValueTypePercentage  = "percentage"
	ValueTypeFixedAmount = "fixed_amount"
	TargetSelectionAll   = "all"
	TargetSelectionSome  = "entitled"
)

// PriceRule 平台促销规则参数
type PriceRule struct {
	Title                 string
	ValueType             string // percentage / fixed_amount
	Value                 string // 正数，提交时转为平台要求的负值
	TargetSelection       string // all / entitled
	EntitledCollectionIDs []string
	EntitledProductIDs    []string
	PrerequisiteSubtotal  string
	PrerequisiteQuantity  int
	StartsAt              time.Time
	EndsAt                *time.Time
	UsageLimit            int
}

func (r PriceRule) payload() map[string]interface{} {
	value := strings.TrimSpace(r.Value)
	if value != "" && !strings.HasPrefix(value, "-") {
		value = "-" + value
	}
	targetSelection := r.TargetSelection
	if targetSelection == "" {
		targetSelection = TargetSelectionAll
	}
	payload := map[string]interface{}{
		"title":              r.Title,
		"value_type":         r.ValueType,
		"value":              value,
		"target_type":        "line_item",
		"target_selection":   targetSelection,
		"allocation_method":  "across",
		"customer_selection": "all",
		"once_per_customer":  false,
		"starts_at":          r.StartsAt.UTC().Format(time.RFC3339),
	}
	if r.ValueType == ValueTypeFixedAmount && targetSelection == TargetSelectionSome {
		payload["allocation_method"] = "each"
	}
	if r.EndsAt != nil {
		payload["ends_at"] = r.EndsAt.UTC().Format(time.RFC3339)
	} else {
		payload["ends_at"] = nil
	}
	if len(r.EntitledCollectionIDs) > 0 {
		payload["entitled_collection_ids"] = r.EntitledCollectionIDs
	}
	if len(r.EntitledProductIDs) > 0 {
		payload["entitled_product_ids"] = r.EntitledProductIDs
	}
	if strings.TrimSpace(r.PrerequisiteSubtotal) != "" {
		payload["prerequisite_subtotal_range"] = map[string]string{"greater_than_or_equal_to": r.PrerequisiteSubtotal}
	}
	if r.PrerequisiteQuantity > 0 {
		payload["prerequisite_quantity_range"] = map[string]int{"greater_than_or_equal_to": r.PrerequisiteQuantity}
	}
	if r.UsageLimit > 0 {
		payload["usage_limit"] = r.UsageLimit
	}
	return payload
}

// Order 平台订单（只读字段子集）
type Order struct {
	ID             json.Number     `json:"id"`
	Name           string          `json:"name"`
	TotalPrice     string          `json:"total_price"`
	Currency       string          `json:"currency"`
	CreatedAt      string          `json:"created_at"`
	DiscountCodes  []OrderDiscount `json:"discount_codes"`
	NoteAttributes []NoteAttribute `json:"note_attributes"`
	LineItems      []LineItem      `json:"line_items"`
}

// OrderDiscount 订单使用的折扣码
type OrderDiscount struct {
	Code   string `json:"code"`
	Amount string `json:"amount"`
	Type   string `json:"type"`
}

// NoteAttribute 订单附加属性
type NoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LineItem 订单行
type LineItem struct {
	ID        json.Number `json:"id"`
	ProductID json.Number `json:"product_id"`
	Quantity  int         `json:"quantity"`
	Price     string      `json:"price"`
}

// Codes 返回订单上的折扣码（去空去重，保持顺序）
func (o Order) Codes() []string {
	seen := make(map[string]struct{}, len(o.DiscountCodes))
	codes := make([]string, 0, len(o.DiscountCodes))
	for _, d := range o.DiscountCodes {
		code := strings.TrimSpace(d.Code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// HasAttribute 判断订单是否带有指定附加属性
func (o Order) HasAttribute(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, attr := range o.NoteAttributes {
		if strings.EqualFold(strings.TrimSpace(attr.Name), name) && strings.TrimSpace(attr.Value) != "" {
			return true
		}
	}
	return false
}
