package admin

import (
	"strings"

	"github.com/dujiao-next/discount-engine/internal/http/response"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// UpsertMerchantRequest 商户写入请求
type UpsertMerchantRequest struct {
	ShopDomain       string `json:"shop_domain" binding:"required"`
	AccessToken      string `json:"access_token" binding:"required"`
	WebhookSecret    string `json:"webhook_secret"`
	OrderSyncEnabled bool   `json:"order_sync_enabled"`
	IsActive         *bool  `json:"is_active"`
}

// UpsertMerchant 按店铺域名创建或更新商户
func (h *Handler) UpsertMerchant(c *gin.Context) {
	var req UpsertMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	merchant, err := h.DiscountSetService.UpsertMerchant(c.Request.Context(), service.MerchantInput{
		ShopDomain:       req.ShopDomain,
		AccessToken:      req.AccessToken,
		WebhookSecret:    req.WebhookSecret,
		OrderSyncEnabled: req.OrderSyncEnabled,
		IsActive:         req.IsActive,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, merchant)
}

// SyncMerchantOrders 手动触发单商户订单轮询同步
func (h *Handler) SyncMerchantOrders(c *gin.Context) {
	shop := strings.ToLower(strings.TrimSpace(c.Param("shop_domain")))
	if shop == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	merchant, err := h.MerchantRepo.GetByShopDomain(c.Request.Context(), shop)
	if err != nil {
		respondError(c, response.CodeInternal, "error.internal", err)
		return
	}
	if merchant == nil {
		respondServiceError(c, service.ErrMerchantNotFound)
		return
	}
	result, err := h.OrderSyncService.SyncMerchant(c.Request.Context(), merchant)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	requestLog(c).Infow("admin_order_sync_done",
		"shop_domain", shop,
		"fetched", result.Fetched,
		"credited", result.Credited,
		"failed", result.Failed,
	)
	response.Success(c, result)
}

// OrderAttributionResult 订单归因详情
type OrderAttributionResult struct {
	Attribution *models.OrderAttribution `json:"attribution"`
	Redemptions []models.CodeRedemption  `json:"redemptions"`
}

// GetOrderAttribution 查询订单归因与逐码入账记录
func (h *Handler) GetOrderAttribution(c *gin.Context) {
	attribution, redemptions, err := h.RedemptionService.GetAttribution(
		c.Request.Context(),
		c.Param("shop_domain"),
		c.Param("order_id"),
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, OrderAttributionResult{
		Attribution: attribution,
		Redemptions: redemptions,
	})
}
