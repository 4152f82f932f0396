package proxy

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dujiao-next/discount-engine/internal/constants"
	handlershared "github.com/dujiao-next/discount-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/discount-engine/internal/http/response"
	"github.com/dujiao-next/discount-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// GetDiscount 首次访问：领取活动的下一个码
func (h *Handler) GetDiscount(c *gin.Context) {
	setID, ok := parseSetID(c)
	if !ok {
		return
	}
	result, err := h.RevealService.RevealNext(c.Request.Context(), setID)
	if err != nil {
		respondDiscountError(c, err)
		return
	}
	c.JSON(http.StatusOK, discountPayload(result))
}

// GetDiscountByCode 再次访问：按已揭示的码返回展示信息
func (h *Handler) GetDiscountByCode(c *gin.Context) {
	setID, ok := parseSetID(c)
	if !ok {
		return
	}
	result, err := h.RevealService.RevealCode(c.Request.Context(), setID, c.Param("code"))
	if err != nil {
		respondDiscountError(c, err)
		return
	}
	c.JSON(http.StatusOK, discountPayload(result))
}

// GetCodeStatus 码是否仍可使用，未找到视为不可用
func (h *Handler) GetCodeStatus(c *gin.Context) {
	setID, ok := parseSetID(c)
	if !ok {
		return
	}
	usable, err := h.RevealService.CodeStatus(c.Request.Context(), setID, c.Param("code"))
	if err != nil && service.KindOf(err) != service.KindNotFound {
		code, key := handlershared.MapServiceError(err)
		if code >= response.CodeInternal {
			handlershared.RequestLog(c).Errorw("proxy_code_status_failed", "set_id", setID, "error", err)
		}
		c.JSON(code, gin.H{"error": handlershared.Message(key), "codeStatus": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"codeStatus": usable})
}

// SetRevealed 按码设置揭示标记（仅允许 status=1）
func (h *Handler) SetRevealed(c *gin.Context) {
	status, err := strconv.Atoi(strings.TrimSpace(c.DefaultQuery("status", "1")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": handlershared.Message("error.bad_request"), "success": false})
		return
	}
	changed, err := h.RevealService.SetRevealed(c.Request.Context(), c.Param("code"), status)
	if err != nil {
		if service.KindOf(err) == service.KindNotFound {
			c.JSON(http.StatusOK, gin.H{"success": false})
			return
		}
		code, key := handlershared.MapServiceError(err)
		if code >= response.CodeInternal {
			handlershared.RequestLog(c).Errorw("proxy_set_revealed_failed", "error", err)
		}
		c.JSON(code, gin.H{"error": handlershared.Message(key), "success": false})
		return
	}
	handlershared.RequestLog(c).Debugw("proxy_set_revealed", "changed", changed)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// discountPayload 展示配置平铺到顶层，再写入码
func discountPayload(result *service.RevealResult) gin.H {
	payload := gin.H{}
	for key, value := range result.ButtonStyle {
		payload[key] = value
	}
	if _, ok := payload["button_style_type"]; !ok {
		payload["button_style_type"] = constants.ButtonStyleStandard
	}
	payload["discountCode"] = result.Code
	return payload
}

// respondDiscountError 前台只看到语义化结果，内部错误细节仅记录日志
func respondDiscountError(c *gin.Context, err error) {
	code, key := handlershared.MapServiceError(err)
	log := handlershared.RequestLog(c)
	if code >= response.CodeInternal {
		log.Errorw("proxy_discount_failed", "set_id", c.Param("set_id"), "error", err)
	} else {
		log.Debugw("proxy_discount_rejected", "set_id", c.Param("set_id"), "kind", string(service.KindOf(err)))
	}
	c.JSON(code, gin.H{"error": handlershared.Message(key), "discountCode": nil})
}

func parseSetID(c *gin.Context) (uint, bool) {
	raw := strings.TrimSpace(c.Param("set_id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": handlershared.Message("error.bad_request"), "discountCode": nil})
		return 0, false
	}
	return uint(id), true
}
