package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/cache"
	"github.com/dujiao-next/discount-engine/internal/constants"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/repository"

	"github.com/shopspring/decimal"
)

// DiscountSetService 折扣活动管理
type DiscountSetService struct {
	setRepo      repository.DiscountSetRepository
	codeRepo     repository.DiscountCodeRepository
	merchantRepo repository.MerchantRepository
	batchSvc     *BatchService
	rules        PromotionRuleClient
	cache        *cache.Redis
	now          func() time.Time
}

// CreateSetInput 创建活动输入
type CreateSetInput struct {
	MerchantID          uint
	Title               string
	CodePrefix          string
	CodeLength          int
	Quantity            int
	DiscountType        string
	Value               models.Money
	TargetScope         string
	TargetIDs           []string
	MinRequirement      string
	MinRequirementValue models.Money
	StartsAt            *time.Time
	EndsAt              *time.Time
	IsActive            *bool
	AutoReplenish       *bool
	ButtonStyle         models.JSON
}

// UpdateSetInput 更新活动输入，nil 字段保持不变
type UpdateSetInput struct {
	Title               *string
	DiscountType        *string
	Value               *models.Money
	TargetScope         *string
	TargetIDs           []string
	MinRequirement      *string
	MinRequirementValue *models.Money
	StartsAt            *time.Time
	EndsAt              *time.Time
	ClearEndsAt         bool
	AutoReplenish       *bool
	ButtonStyle         models.JSON
}

// SetDetail 活动详情（含码统计）
type SetDetail struct {
	Set         *models.DiscountSet   `json:"set"`
	Counts      repository.CodeCounts `json:"counts"`
	CodeRevenue models.Money          `json:"code_revenue"` // 各码归因收入之和，正常应等于活动收入
}

// SetUpdateResult 活动更新结果，规则同步失败不回滚本地修改
type SetUpdateResult struct {
	Set        *models.DiscountSet `json:"set"`
	RuleSynced bool                `json:"rule_synced"`
	RuleError  string              `json:"rule_error,omitempty"`
}

// MerchantInput 商户写入输入
type MerchantInput struct {
	ShopDomain       string
	AccessToken      string
	WebhookSecret    string
	OrderSyncEnabled bool
	IsActive         *bool
}

// NewDiscountSetService 创建活动管理服务
func NewDiscountSetService(
	setRepo repository.DiscountSetRepository,
	codeRepo repository.DiscountCodeRepository,
	merchantRepo repository.MerchantRepository,
	batchSvc *BatchService,
	rules PromotionRuleClient,
	redis *cache.Redis,
) *DiscountSetService {
	return &DiscountSetService{
		setRepo:      setRepo,
		codeRepo:     codeRepo,
		merchantRepo: merchantRepo,
		batchSvc:     batchSvc,
		rules:        rules,
		cache:        redis,
		now:          time.Now,
	}
}

// Create 创建活动并生成首批 quantity 个码
// 首批码推送失败时活动与码仍然保留，BatchResult.Success=false，可通过批次重试补推
func (s *DiscountSetService) Create(ctx context.Context, input CreateSetInput) (*models.DiscountSet, *BatchResult, error) {
	if s == nil || s.setRepo == nil {
		return nil, nil, ErrSetCreateFailed
	}
	if input.MerchantID == 0 {
		return nil, nil, ErrInvalidInput
	}
	merchant, err := s.merchantRepo.GetByID(ctx, input.MerchantID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMerchantFetchFailed, err)
	}
	if merchant == nil {
		return nil, nil, ErrMerchantNotFound
	}
	if !merchant.IsActive {
		return nil, nil, ErrMerchantInactive
	}

	now := s.now()
	set := &models.DiscountSet{
		MerchantID:          input.MerchantID,
		Title:               strings.TrimSpace(input.Title),
		CodePrefix:          strings.TrimSpace(input.CodePrefix),
		CodeLength:          input.CodeLength,
		Quantity:            input.Quantity,
		DiscountType:        strings.ToLower(strings.TrimSpace(input.DiscountType)),
		Value:               input.Value,
		TargetScope:         strings.ToLower(strings.TrimSpace(input.TargetScope)),
		TargetIDs:           normalizeTargetIDs(input.TargetIDs),
		MinRequirement:      strings.ToLower(strings.TrimSpace(input.MinRequirement)),
		MinRequirementValue: input.MinRequirementValue,
		StartsAt:            now,
		EndsAt:              input.EndsAt,
		IsActive:            true,
		AutoReplenish:       true,
		ButtonStyle:         input.ButtonStyle,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if set.CodeLength == 0 {
		set.CodeLength = constants.DefaultCodeLength
	}
	if set.TargetScope == "" {
		set.TargetScope = constants.TargetScopeAll
	}
	if set.MinRequirement == "" {
		set.MinRequirement = constants.MinRequirementNone
	}
	if input.StartsAt != nil {
		set.StartsAt = *input.StartsAt
	}
	if input.IsActive != nil {
		set.IsActive = *input.IsActive
	}
	if input.AutoReplenish != nil {
		set.AutoReplenish = *input.AutoReplenish
	}
	if err := validateSet(set, s.maxBatchSize()); err != nil {
		return nil, nil, err
	}

	if err := s.setRepo.Create(ctx, set); err != nil {
		logger.Errorw("discount_set_create_failed", "merchant_id", input.MerchantID, "error", err)
		return nil, nil, fmt.Errorf("%w: %w", ErrSetCreateFailed, err)
	}
	logger.Infow("discount_set_created", "set_id", set.ID, "merchant_id", set.MerchantID, "quantity", set.Quantity)

	batch, err := s.batchSvc.CreateBatch(ctx, BatchInput{
		SetID:      set.ID,
		Prefix:     set.CodePrefix,
		CodeLength: set.CodeLength,
		Count:      set.Quantity,
		Kind:       constants.BatchKindInitial,
	})
	if err != nil {
		return set, nil, err
	}
	if latest, err := s.setRepo.GetByID(ctx, set.ID); err == nil && latest != nil {
		set = latest
	}
	return set, batch, nil
}

// Update 修改折扣形态与有效期并同步平台促销规则
func (s *DiscountSetService) Update(ctx context.Context, id uint, input UpdateSetInput) (*SetUpdateResult, error) {
	set, err := s.getSet(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		set.Title = strings.TrimSpace(*input.Title)
	}
	if input.DiscountType != nil {
		set.DiscountType = strings.ToLower(strings.TrimSpace(*input.DiscountType))
	}
	if input.Value != nil {
		set.Value = *input.Value
	}
	if input.TargetScope != nil {
		set.TargetScope = strings.ToLower(strings.TrimSpace(*input.TargetScope))
	}
	if input.TargetIDs != nil {
		set.TargetIDs = normalizeTargetIDs(input.TargetIDs)
	}
	if input.MinRequirement != nil {
		set.MinRequirement = strings.ToLower(strings.TrimSpace(*input.MinRequirement))
	}
	if input.MinRequirementValue != nil {
		set.MinRequirementValue = *input.MinRequirementValue
	}
	if input.StartsAt != nil {
		set.StartsAt = *input.StartsAt
	}
	if input.ClearEndsAt {
		set.EndsAt = nil
	} else if input.EndsAt != nil {
		set.EndsAt = input.EndsAt
	}
	if input.AutoReplenish != nil {
		set.AutoReplenish = *input.AutoReplenish
	}
	if input.ButtonStyle != nil {
		set.ButtonStyle = input.ButtonStyle
	}
	if err := validateSet(set, 0); err != nil {
		return nil, err
	}
	if err := s.setRepo.Update(ctx, set); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetUpdateFailed, err)
	}
	s.invalidate(ctx, set.ID)

	result := &SetUpdateResult{Set: set}
	if set.PriceRuleID == "" {
		// 尚未绑定规则，首次成功推送批次时按最新形态创建
		result.RuleSynced = true
		return result, nil
	}
	merchant, err := s.merchantRepo.GetByID(ctx, set.MerchantID)
	if err != nil || merchant == nil {
		result.RuleError = ErrMerchantNotFound.Error()
		return result, nil
	}
	if err := s.rules.UpdatePriceRule(ctx, merchantSession(merchant), set.PriceRuleID, buildPriceRule(set)); err != nil {
		logger.Warnw("price_rule_update_failed", "set_id", set.ID, "price_rule_id", set.PriceRuleID, "error", err)
		result.RuleError = err.Error()
		return result, nil
	}
	result.RuleSynced = true
	return result, nil
}

// Activate 启用活动
func (s *DiscountSetService) Activate(ctx context.Context, id uint) error {
	return s.setActive(ctx, id, true)
}

// Deactivate 停用活动，停用后拒绝新的揭示请求
func (s *DiscountSetService) Deactivate(ctx context.Context, id uint) error {
	return s.setActive(ctx, id, false)
}

func (s *DiscountSetService) setActive(ctx context.Context, id uint, active bool) error {
	if id == 0 {
		return ErrInvalidInput
	}
	rows, err := s.setRepo.SetActive(ctx, id, active)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetUpdateFailed, err)
	}
	if rows == 0 {
		return ErrSetNotFound
	}
	s.invalidate(ctx, id)
	logger.Infow("discount_set_active_changed", "set_id", id, "active", active)
	return nil
}

// Delete 软删除活动（终态），码记录保留用于审计与收入归因
func (s *DiscountSetService) Delete(ctx context.Context, id uint) error {
	if id == 0 {
		return ErrInvalidInput
	}
	rows, err := s.setRepo.SoftDelete(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSetUpdateFailed, err)
	}
	if rows == 0 {
		return ErrSetNotFound
	}
	s.invalidate(ctx, id)
	logger.Infow("discount_set_deleted", "set_id", id)
	return nil
}

// Get 活动详情
func (s *DiscountSetService) Get(ctx context.Context, id uint) (*SetDetail, error) {
	set, err := s.getSet(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.codeRepo.CountsBySet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodeFetchFailed, err)
	}
	codeRevenue, err := s.codeRepo.SumRevenueBySet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodeFetchFailed, err)
	}
	if !codeRevenue.Equal(set.Revenue.Decimal) {
		logger.Warnw("discount_set_revenue_mismatch", "set_id", id, "set_revenue", set.Revenue.String(), "code_revenue", codeRevenue.String())
	}
	return &SetDetail{Set: set, Counts: counts, CodeRevenue: codeRevenue}, nil
}

// List 活动列表
func (s *DiscountSetService) List(ctx context.Context, filter repository.DiscountSetListFilter) ([]models.DiscountSet, int64, error) {
	sets, total, err := s.setRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrSetFetchFailed, err)
	}
	return sets, total, nil
}

// ListCodes 活动下的码列表
func (s *DiscountSetService) ListCodes(ctx context.Context, setID uint, filter repository.DiscountCodeListFilter) ([]models.DiscountCode, int64, error) {
	if _, err := s.getSet(ctx, setID); err != nil {
		return nil, 0, err
	}
	filter.SetID = setID
	codes, total, err := s.codeRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrCodeFetchFailed, err)
	}
	return codes, total, nil
}

// ListBatches 活动批次列表
func (s *DiscountSetService) ListBatches(ctx context.Context, setID uint) ([]models.CodeBatch, error) {
	if _, err := s.getSet(ctx, setID); err != nil {
		return nil, err
	}
	return s.batchSvc.ListBySet(ctx, setID)
}

// RetryBatchSync 使用同一批次号重新推送
func (s *DiscountSetService) RetryBatchSync(ctx context.Context, batchID uint) (*BatchSyncResult, error) {
	return s.batchSvc.SyncBatch(ctx, batchID)
}

// UpsertMerchant 按店铺域名写入商户
func (s *DiscountSetService) UpsertMerchant(ctx context.Context, input MerchantInput) (*models.Merchant, error) {
	domain := strings.ToLower(strings.TrimSpace(input.ShopDomain))
	token := strings.TrimSpace(input.AccessToken)
	if domain == "" || token == "" {
		return nil, ErrInvalidInput
	}
	now := s.now()
	merchant := &models.Merchant{
		ShopDomain:       domain,
		AccessToken:      token,
		WebhookSecret:    strings.TrimSpace(input.WebhookSecret),
		OrderSyncEnabled: input.OrderSyncEnabled,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if input.IsActive != nil {
		merchant.IsActive = *input.IsActive
	}
	if err := s.merchantRepo.Upsert(ctx, merchant); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMerchantSaveFailed, err)
	}
	return merchant, nil
}

func (s *DiscountSetService) getSet(ctx context.Context, id uint) (*models.DiscountSet, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	set, err := s.setRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetFetchFailed, err)
	}
	if set == nil {
		return nil, ErrSetNotFound
	}
	return set, nil
}

func (s *DiscountSetService) invalidate(ctx context.Context, setID uint) {
	if err := s.cache.InvalidateSetSnapshot(ctx, setID); err != nil {
		logger.Warnw("set_snapshot_cache_invalidate_failed", "set_id", setID, "error", err)
	}
}

func (s *DiscountSetService) maxBatchSize() int {
	if s.batchSvc == nil {
		return 0
	}
	return s.batchSvc.cfg.MaxBatchSize
}

// validateSet 校验码模板、折扣形态与有效期；maxQuantity<=0 时不校验数量
func validateSet(set *models.DiscountSet, maxQuantity int) error {
	if set.Title == "" {
		return ErrInvalidInput
	}
	if len(set.CodePrefix) > constants.MaxCodePrefixLength || strings.ContainsAny(set.CodePrefix, " \t\r\n") {
		return ErrInvalidCodeTemplate
	}
	if set.CodeLength <= 0 || len(set.CodePrefix)+set.CodeLength > constants.MaxCodeLength {
		return ErrInvalidCodeTemplate
	}
	if maxQuantity > 0 && (set.Quantity <= 0 || set.Quantity > maxQuantity) {
		return ErrInvalidQuantity
	}

	value := set.Value.Decimal
	switch set.DiscountType {
	case constants.DiscountTypePercentage:
		if value.LessThanOrEqual(decimal.Zero) || value.GreaterThan(decimal.NewFromInt(100)) {
			return ErrInvalidDiscountShape
		}
	case constants.DiscountTypeFixed:
		if value.LessThanOrEqual(decimal.Zero) {
			return ErrInvalidDiscountShape
		}
	default:
		return ErrInvalidDiscountShape
	}

	switch set.TargetScope {
	case constants.TargetScopeAll:
		set.TargetIDs = nil
	case constants.TargetScopeCollections, constants.TargetScopeProducts:
		if len(set.TargetIDs) == 0 {
			return ErrInvalidDiscountShape
		}
	default:
		return ErrInvalidDiscountShape
	}

	minValue := set.MinRequirementValue.Decimal
	switch set.MinRequirement {
	case constants.MinRequirementNone:
		set.MinRequirementValue = models.Money{}
	case constants.MinRequirementSubtotal:
		if minValue.LessThanOrEqual(decimal.Zero) {
			return ErrInvalidDiscountShape
		}
	case constants.MinRequirementQuantity:
		if minValue.LessThan(decimal.NewFromInt(1)) || !minValue.Equal(minValue.Truncate(0)) {
			return ErrInvalidDiscountShape
		}
	default:
		return ErrInvalidDiscountShape
	}

	if set.StartsAt.IsZero() {
		return ErrInvalidWindow
	}
	if set.EndsAt != nil && !set.EndsAt.After(set.StartsAt) {
		return ErrInvalidWindow
	}
	return nil
}

func normalizeTargetIDs(ids []string) models.StringArray {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make(models.StringArray, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
