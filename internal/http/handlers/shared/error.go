package shared

import (
	"errors"

	"github.com/dujiao-next/discount-engine/internal/http/response"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if id := response.RequestID(c); id != "" {
		return logger.SW(response.RequestIDKey, id)
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, key string, err error) {
	appErr := response.WrapError(code, Message(key), err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.Error(c, appErr.Code, appErr.Message)
}

// RespondServiceError 按服务层错误分类映射响应码与文案
func RespondServiceError(c *gin.Context, err error) {
	code, key := MapServiceError(err)
	if code >= response.CodeInternal {
		RespondError(c, code, key, err)
		return
	}
	RequestLog(c).Debugw("handler_service_error", "code", code, "error", err)
	RespondError(c, code, key, nil)
}

// MapServiceError 服务层错误 -> (响应码, 文案 key)
func MapServiceError(err error) (int, string) {
	for _, item := range serviceErrorKeys {
		if errors.Is(err, item.err) {
			return item.code, item.key
		}
	}
	switch service.KindOf(err) {
	case service.KindInvalidInput:
		return response.CodeBadRequest, "error.bad_request"
	case service.KindNotFound:
		return response.CodeNotFound, "error.not_found"
	case service.KindExhausted:
		return response.CodeGone, "error.codes_exhausted"
	case service.KindInactive:
		return response.CodeLocked, "error.set_inactive"
	case service.KindConflict:
		return response.CodeConflict, "error.reveal_contended"
	case service.KindUnauthorized:
		return response.CodeUnauthorized, "error.unauthorized"
	case service.KindExternal:
		return response.CodeBadGateway, "error.platform_unavailable"
	default:
		return response.CodeInternal, "error.internal"
	}
}

var serviceErrorKeys = []struct {
	err  error
	code int
	key  string
}{
	{service.ErrSetNotFound, response.CodeNotFound, "error.set_not_found"},
	{service.ErrCodeNotFound, response.CodeNotFound, "error.code_not_found"},
	{service.ErrBatchNotFound, response.CodeNotFound, "error.batch_not_found"},
	{service.ErrMerchantNotFound, response.CodeNotFound, "error.merchant_not_found"},
	{service.ErrOrderNotFound, response.CodeNotFound, "error.order_not_found"},
	{service.ErrSetInactive, response.CodeLocked, "error.set_inactive"},
	{service.ErrSetOutOfWindow, response.CodeLocked, "error.set_out_of_window"},
	{service.ErrMerchantInactive, response.CodeLocked, "error.merchant_inactive"},
	{service.ErrNoCodesAvailable, response.CodeGone, "error.codes_exhausted"},
	{service.ErrInvalidDiscountShape, response.CodeBadRequest, "error.discount_shape_invalid"},
	{service.ErrInvalidWindow, response.CodeBadRequest, "error.window_invalid"},
	{service.ErrInvalidCodeTemplate, response.CodeBadRequest, "error.code_template_invalid"},
	{service.ErrInvalidQuantity, response.CodeBadRequest, "error.quantity_invalid"},
	{service.ErrRevealIrreversible, response.CodeBadRequest, "error.reveal_irreversible"},
	{service.ErrRevealContended, response.CodeConflict, "error.reveal_contended"},
	{service.ErrSignatureInvalid, response.CodeUnauthorized, "error.signature_invalid"},
	{service.ErrRedemptionIncomplete, response.CodeInternal, "error.redemption_incomplete"},
	{service.ErrBatchCreateFailed, response.CodeInternal, "error.batch_create_failed"},
	{service.ErrPlatformUnavailable, response.CodeBadGateway, "error.platform_unavailable"},
	{service.ErrSetCreateFailed, response.CodeInternal, "error.set_create_failed"},
	{service.ErrSetUpdateFailed, response.CodeInternal, "error.set_update_failed"},
	{service.ErrSetFetchFailed, response.CodeInternal, "error.set_fetch_failed"},
	{service.ErrRevealFailed, response.CodeInternal, "error.reveal_failed"},
	{service.ErrCodeFetchFailed, response.CodeInternal, "error.code_fetch_failed"},
	{service.ErrMerchantSaveFailed, response.CodeInternal, "error.merchant_save_failed"},
}
