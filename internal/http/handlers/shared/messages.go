package shared

import "fmt"

// messages 错误消息表，处理层只返回稳定的 key 对应文案，不透出内部错误
var messages = map[string]string{
	"error.bad_request":            "invalid request",
	"error.unauthorized":           "unauthorized",
	"error.not_found":              "resource not found",
	"error.internal":               "internal server error",
	"error.rate_limited":           "too many requests, retry in %d seconds",
	"error.rate_limit_unavailable": "rate limiter unavailable",
	"error.set_not_found":          "discount set not found",
	"error.set_inactive":           "discount set is not active",
	"error.set_out_of_window":      "discount set is outside its validity window",
	"error.codes_exhausted":        "no discount codes available",
	"error.code_not_found":         "discount code not found",
	"error.batch_not_found":        "code batch not found",
	"error.merchant_not_found":     "merchant not found",
	"error.merchant_inactive":      "merchant is not active",
	"error.order_not_found":        "order attribution not found",
	"error.discount_shape_invalid": "invalid discount shape",
	"error.window_invalid":         "invalid validity window",
	"error.code_template_invalid":  "invalid code template",
	"error.quantity_invalid":       "invalid quantity",
	"error.reveal_irreversible":    "revealed flag cannot be cleared",
	"error.reveal_contended":       "reveal contended, please retry",
	"error.signature_invalid":      "webhook signature invalid",
	"error.platform_unavailable":   "promotion platform unavailable",
	"error.redemption_incomplete":  "order redemption incomplete",
	"error.set_create_failed":      "discount set create failed",
	"error.set_update_failed":      "discount set update failed",
	"error.set_fetch_failed":       "discount set fetch failed",
	"error.batch_create_failed":    "code batch create failed",
	"error.merchant_save_failed":   "merchant save failed",
	"error.order_enqueue_failed":   "order event enqueue failed",
	"error.reveal_failed":          "reveal failed",
	"error.code_fetch_failed":      "discount code fetch failed",
	"error.payload_too_large":      "payload too large",
}

// Message 按 key 取文案，未知 key 原样返回
func Message(key string) string {
	if msg, ok := messages[key]; ok {
		return msg
	}
	return key
}

// Messagef 带参数的文案
func Messagef(key string, args ...interface{}) string {
	return fmt.Sprintf(Message(key), args...)
}
