package admin

import (
	"strconv"
	"strings"
	"time"

	handlershared "github.com/dujiao-next/discount-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/discount-engine/internal/http/response"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/repository"
	"github.com/dujiao-next/discount-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateDiscountSetRequest 创建活动请求
type CreateDiscountSetRequest struct {
	MerchantID          uint         `json:"merchant_id" binding:"required"`
	Title               string       `json:"title" binding:"required"`
	CodePrefix          string       `json:"code_prefix"`
	CodeLength          int          `json:"code_length"`
	Quantity            int          `json:"quantity" binding:"required"`
	DiscountType        string       `json:"discount_type" binding:"required"`
	Value               models.Money `json:"value"`
	TargetScope         string       `json:"target_scope"`
	TargetIDs           []string     `json:"target_ids"`
	MinRequirement      string       `json:"min_requirement"`
	MinRequirementValue models.Money `json:"min_requirement_value"`
	StartsAt            string       `json:"starts_at"`
	EndsAt              string       `json:"ends_at"`
	IsActive            *bool        `json:"is_active"`
	AutoReplenish       *bool        `json:"auto_replenish"`
	ButtonStyle         models.JSON  `json:"button_style"`
}

// UpdateDiscountSetRequest 更新活动请求，未传字段保持不变
type UpdateDiscountSetRequest struct {
	Title               *string       `json:"title"`
	DiscountType        *string       `json:"discount_type"`
	Value               *models.Money `json:"value"`
	TargetScope         *string       `json:"target_scope"`
	TargetIDs           []string      `json:"target_ids"`
	MinRequirement      *string       `json:"min_requirement"`
	MinRequirementValue *models.Money `json:"min_requirement_value"`
	StartsAt            string        `json:"starts_at"`
	EndsAt              string        `json:"ends_at"`
	ClearEndsAt         bool          `json:"clear_ends_at"`
	AutoReplenish       *bool         `json:"auto_replenish"`
	ButtonStyle         models.JSON   `json:"button_style"`
}

// CreateDiscountSetResult 创建结果，首批码推送失败时 batch.success=false
type CreateDiscountSetResult struct {
	Set      *models.DiscountSet  `json:"set"`
	Batch    *service.BatchResult `json:"batch"`
	Failures []string             `json:"failures,omitempty"`
}

// CreateDiscountSet 创建活动并生成首批码
func (h *Handler) CreateDiscountSet(c *gin.Context) {
	var req CreateDiscountSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	startsAt, err := parseTimeNullable(req.StartsAt)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.window_invalid", nil)
		return
	}
	endsAt, err := parseTimeNullable(req.EndsAt)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.window_invalid", nil)
		return
	}

	set, batch, err := h.DiscountSetService.Create(c.Request.Context(), service.CreateSetInput{
		MerchantID:          req.MerchantID,
		Title:               req.Title,
		CodePrefix:          req.CodePrefix,
		CodeLength:          req.CodeLength,
		Quantity:            req.Quantity,
		DiscountType:        req.DiscountType,
		Value:               req.Value,
		TargetScope:         req.TargetScope,
		TargetIDs:           req.TargetIDs,
		MinRequirement:      req.MinRequirement,
		MinRequirementValue: req.MinRequirementValue,
		StartsAt:            startsAt,
		EndsAt:              endsAt,
		IsActive:            req.IsActive,
		AutoReplenish:       req.AutoReplenish,
		ButtonStyle:         req.ButtonStyle,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if batch != nil && !batch.Success {
		requestLog(c).Warnw("admin_discount_set_initial_batch_unsynced",
			"set_id", set.ID,
			"created", len(batch.Created),
			"failed", len(batch.Failures),
			"sync_error", batch.SyncError,
		)
	}
	response.Success(c, CreateDiscountSetResult{
		Set:      set,
		Batch:    batch,
		Failures: batch.FailureMessages(),
	})
}

// UpdateDiscountSet 更新活动折扣规则与有效期
func (h *Handler) UpdateDiscountSet(c *gin.Context) {
	setID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req UpdateDiscountSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	startsAt, err := parseTimeNullable(req.StartsAt)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.window_invalid", nil)
		return
	}
	endsAt, err := parseTimeNullable(req.EndsAt)
	if err != nil {
		respondError(c, response.CodeBadRequest, "error.window_invalid", nil)
		return
	}

	result, err := h.DiscountSetService.Update(c.Request.Context(), setID, service.UpdateSetInput{
		Title:               req.Title,
		DiscountType:        req.DiscountType,
		Value:               req.Value,
		TargetScope:         req.TargetScope,
		TargetIDs:           req.TargetIDs,
		MinRequirement:      req.MinRequirement,
		MinRequirementValue: req.MinRequirementValue,
		StartsAt:            startsAt,
		EndsAt:              endsAt,
		ClearEndsAt:         req.ClearEndsAt,
		AutoReplenish:       req.AutoReplenish,
		ButtonStyle:         req.ButtonStyle,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// GetDiscountSets 活动列表
func (h *Handler) GetDiscountSets(c *gin.Context) {
	page, pageSize := handlershared.QueryPagination(c)
	isActive, ok := handlershared.QueryBool(c, "is_active")
	if !ok {
		return
	}
	merchantID, _ := parseUintQuery(c.Query("merchant_id"))
	sets, total, err := h.DiscountSetService.List(c.Request.Context(), repository.DiscountSetListFilter{
		Page:       page,
		PageSize:   pageSize,
		MerchantID: merchantID,
		Search:     strings.TrimSpace(c.Query("search")),
		IsActive:   isActive,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, sets, handlershared.BuildPagination(page, pageSize, total))
}

// GetDiscountSet 活动详情
func (h *Handler) GetDiscountSet(c *gin.Context) {
	setID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	detail, err := h.DiscountSetService.Get(c.Request.Context(), setID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, detail)
}

// ActivateDiscountSet 启用活动
func (h *Handler) ActivateDiscountSet(c *gin.Context) {
	setID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	if err := h.DiscountSetService.Activate(c.Request.Context(), setID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"id": setID, "is_active": true})
}

// DeactivateDiscountSet 停用活动
func (h *Handler) DeactivateDiscountSet(c *gin.Context) {
	setID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	if err := h.DiscountSetService.Deactivate(c.Request.Context(), setID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"id": setID, "is_active": false})
}

// DeleteDiscountSet 软删除活动（不可恢复，已有码保留用于归因）
func (h *Handler) DeleteDiscountSet(c *gin.Context) {
	setID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	if err := h.DiscountSetService.Delete(c.Request.Context(), setID); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, nil)
}

// GetDiscountCodes 活动下的码列表
func (h *Handler) GetDiscountCodes(c *gin.Context) {
	setID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	page, pageSize := handlershared.QueryPagination(c)
	revealed, ok := handlershared.QueryBool(c, "revealed")
	if !ok {
		return
	}
	used, ok := handlershared.QueryBool(c, "used")
	if !ok {
		return
	}
	batchID, _ := parseUintQuery(c.Query("batch_id"))
	codes, total, err := h.DiscountSetService.ListCodes(c.Request.Context(), setID, repository.DiscountCodeListFilter{
		Page:     page,
		PageSize: pageSize,
		BatchID:  batchID,
		Code:     strings.TrimSpace(c.Query("code")),
		Revealed: revealed,
		Used:     used,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, codes, handlershared.BuildPagination(page, pageSize, total))
}

// GetCodeBatches 活动批次列表
func (h *Handler) GetCodeBatches(c *gin.Context) {
	setID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	batches, err := h.DiscountSetService.ListBatches(c.Request.Context(), setID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, batches)
}

// RetryCodeBatchSync 以原批次号重新推送批次
func (h *Handler) RetryCodeBatchSync(c *gin.Context) {
	batchID, ok := handlershared.ParseUintParam(c, "batch_id")
	if !ok {
		return
	}
	result, err := h.DiscountSetService.RetryBatchSync(c.Request.Context(), batchID)
	if err != nil {
		if result != nil && service.KindOf(err) == service.KindExternal {
			requestLog(c).Warnw("admin_batch_sync_retry_failed", "batch_id", batchID, "error", err)
			response.ErrorWithData(c, response.CodeBadGateway, handlershared.Message("error.platform_unavailable"), result)
			return
		}
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// GetReplenishmentHistory 活动补码记录
func (h *Handler) GetReplenishmentHistory(c *gin.Context) {
	setID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.DiscountSetService.Get(c.Request.Context(), setID); err != nil {
		respondServiceError(c, err)
		return
	}
	events, err := h.ReplenishmentService.History(c.Request.Context(), setID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, events)
}

func parseTimeNullable(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseUintQuery(raw string) (uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}
