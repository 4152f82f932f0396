package service

import (
	"context"
	"errors"

	"github.com/dujiao-next/discount-engine/internal/platform"
)

// ErrorKind 错误分类，处理层按分类映射响应
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindNotFound     ErrorKind = "not_found"
	KindExhausted    ErrorKind = "exhausted"
	KindInactive     ErrorKind = "inactive"
	KindConflict     ErrorKind = "conflict"
	KindUnauthorized ErrorKind = "unauthorized"
	KindExternal     ErrorKind = "external"
	KindInternal     ErrorKind = "internal"
)

type kindError struct {
	kind ErrorKind
	msg  string
}

func (e *kindError) Error() string {
	return e.msg
}

func newKindError(kind ErrorKind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	ErrInvalidInput          = newKindError(KindInvalidInput, "invalid input")
	ErrInvalidDiscountShape  = newKindError(KindInvalidInput, "invalid discount shape")
	ErrInvalidWindow         = newKindError(KindInvalidInput, "invalid validity window")
	ErrInvalidCodeTemplate   = newKindError(KindInvalidInput, "invalid code template")
	ErrInvalidQuantity       = newKindError(KindInvalidInput, "invalid quantity")
	ErrRevealIrreversible    = newKindError(KindInvalidInput, "revealed flag cannot be cleared")
	ErrSetNotFound           = newKindError(KindNotFound, "discount set not found")
	ErrCodeNotFound          = newKindError(KindNotFound, "discount code not found")
	ErrBatchNotFound         = newKindError(KindNotFound, "code batch not found")
	ErrMerchantNotFound      = newKindError(KindNotFound, "merchant not found")
	ErrOrderNotFound         = newKindError(KindNotFound, "order attribution not found")
	ErrNoCodesAvailable      = newKindError(KindExhausted, "no unrevealed codes remain")
	ErrSetInactive           = newKindError(KindInactive, "discount set inactive")
	ErrSetOutOfWindow        = newKindError(KindInactive, "discount set outside validity window")
	ErrMerchantInactive      = newKindError(KindInactive, "merchant inactive")
	ErrRevealContended       = newKindError(KindConflict, "reveal contended, retry")
	ErrCodeCollision         = newKindError(KindConflict, "code collision retries exhausted")
	ErrSignatureInvalid      = newKindError(KindUnauthorized, "webhook signature invalid")
	ErrPlatformSyncFailed    = newKindError(KindExternal, "promotion rule sync failed")
	ErrPlatformUnavailable   = newKindError(KindExternal, "promotion platform unavailable")
	ErrSetCreateFailed       = newKindError(KindInternal, "discount set create failed")
	ErrSetUpdateFailed       = newKindError(KindInternal, "discount set update failed")
	ErrSetFetchFailed        = newKindError(KindInternal, "discount set fetch failed")
	ErrCodeFetchFailed       = newKindError(KindInternal, "discount code fetch failed")
	ErrRevealFailed          = newKindError(KindInternal, "reveal failed")
	ErrBatchCreateFailed     = newKindError(KindInternal, "code batch create failed")
	ErrBatchFetchFailed      = newKindError(KindInternal, "code batch fetch failed")
	ErrRedemptionIncomplete  = newKindError(KindInternal, "redemption incomplete")
	ErrMerchantSaveFailed    = newKindError(KindInternal, "merchant save failed")
	ErrMerchantFetchFailed   = newKindError(KindInternal, "merchant fetch failed")
	ErrOrderSyncFailed       = newKindError(KindExternal, "order sync failed")
	ErrReplenishmentFailed   = newKindError(KindInternal, "replenishment failed")
)

// KindOf 返回错误分类，未知错误归为 internal
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindExternal
	case errors.Is(err, platform.ErrRequestFailed),
		errors.Is(err, platform.ErrResponseInvalid),
		errors.Is(err, platform.ErrRejected),
		errors.Is(err, platform.ErrSessionInvalid):
		return KindExternal
	}
	return KindInternal
}

// IsRetryable 判断错误是否值得稍后重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, platform.ErrRejected) || errors.Is(err, platform.ErrSessionInvalid) {
		return false
	}
	switch KindOf(err) {
	case KindExternal, KindInternal, KindConflict:
		return true
	}
	return false
}
