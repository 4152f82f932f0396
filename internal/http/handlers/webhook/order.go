package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dujiao-next/discount-engine/internal/constants"
	handlershared "github.com/dujiao-next/discount-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/discount-engine/internal/http/response"
	"github.com/dujiao-next/discount-engine/internal/platform"
	"github.com/dujiao-next/discount-engine/internal/queue"
	"github.com/dujiao-next/discount-engine/internal/service"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = 1 << 20

// OrderCreateResult Webhook 处理结果
type OrderCreateResult struct {
	OrderID  string                    `json:"order_id"`
	Codes    int                       `json:"codes"`
	Queued   bool                      `json:"queued"`
	Recorded *service.RedemptionResult `json:"recorded,omitempty"`
}

// OrderCreate 订单创建 Webhook：验签后入队核销，队列不可用时同步入账
func (h *Handler) OrderCreate(c *gin.Context) {
	log := handlershared.RequestLog(c)
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlershared.RespondError(c, response.CodeBadRequest, "error.payload_too_large", nil)
			return
		}
		handlershared.RespondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	shop := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderShopDomain)))
	if shop == "" {
		handlershared.RespondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	log.Infow("order_webhook_received",
		"shop_domain", shop,
		"webhook_id", strings.TrimSpace(c.GetHeader(HeaderWebhookID)),
		"client_ip", c.ClientIP(),
		"body_size", len(body),
	)

	secret, err := h.webhookSecret(c, shop)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	if err := VerifySignature(body, secret, c.GetHeader(HeaderHmac)); err != nil {
		log.Warnw("order_webhook_signature_invalid", "shop_domain", shop)
		handlershared.RespondServiceError(c, err)
		return
	}

	var order platform.Order
	if err := json.Unmarshal(body, &order); err != nil {
		handlershared.RespondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if order.ID.String() == "" {
		handlershared.RespondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	event, err := service.OrderEventFromPlatform(shop, order, constants.AttributionSourceWebhook)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	result := OrderCreateResult{OrderID: event.OrderID, Codes: len(event.Codes)}
	if len(event.Codes) == 0 {
		response.Success(c, result)
		return
	}

	if h.QueueClient.Enabled() {
		err := h.QueueClient.EnqueueOrderRedeem(c.Request.Context(), queue.OrderRedeemPayload{
			MerchantID: event.MerchantID,
			OrderID:    event.OrderID,
			TotalPrice: event.TotalPrice.String(),
			Currency:   event.Currency,
			Codes:      event.Codes,
			Source:     event.Source,
		})
		if err == nil {
			result.Queued = true
			response.Success(c, result)
			return
		}
		log.Warnw("order_webhook_enqueue_failed", "shop_domain", shop, "order_id", event.OrderID, "error", err)
	}

	recorded, err := h.RedemptionService.RecordOrder(c.Request.Context(), event)
	if err != nil {
		handlershared.RespondServiceError(c, err)
		return
	}
	result.Recorded = recorded
	response.Success(c, result)
}

// webhookSecret 商户级密钥优先，未配置时回落到全局密钥
func (h *Handler) webhookSecret(c *gin.Context, shop string) (string, error) {
	merchant, err := h.MerchantRepo.GetByShopDomain(c.Request.Context(), shop)
	if err != nil {
		return "", fmt.Errorf("%w: %w", service.ErrMerchantFetchFailed, err)
	}
	if merchant != nil && strings.TrimSpace(merchant.WebhookSecret) != "" {
		return merchant.WebhookSecret, nil
	}
	if h.Config == nil {
		return "", nil
	}
	return h.Config.Platform.WebhookSecret, nil
}
