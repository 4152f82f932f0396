package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/codegen"
	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/constants"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/metrics"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/platform"
	"github.com/dujiao-next/discount-engine/internal/queue"
	"github.com/dujiao-next/discount-engine/internal/repository"

	"github.com/google/uuid"
)

// BatchService 折扣码批次服务：本地落库（待同步）-> 推送平台 -> 标记已同步
type BatchService struct {
	setRepo      repository.DiscountSetRepository
	codeRepo     repository.DiscountCodeRepository
	batchRepo    repository.CodeBatchRepository
	merchantRepo repository.MerchantRepository
	rules        PromotionRuleClient
	enqueuer     BatchSyncEnqueuer
	metrics      *metrics.EngineMetrics
	cfg          config.EngineConfig
	generate     codegen.Generator
	now          func() time.Time
}

// BatchInput 批次生成输入
type BatchInput struct {
	SetID      uint
	Prefix     string
	CodeLength int
	Count      int
	Kind       string
}

// BatchResult 批次生成结果，Failures 为单码失败，不影响已生成的码
type BatchResult struct {
	Success   bool                  `json:"success"`
	Batch     *models.CodeBatch     `json:"batch"`
	Created   []models.DiscountCode `json:"created"`
	Failures  []error               `json:"-"`
	Queued    bool                  `json:"queued"`
	SyncError string                `json:"error,omitempty"`
}

// FailureMessages 返回失败原因文本
func (r *BatchResult) FailureMessages() []string {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Failures))
	for _, err := range r.Failures {
		out = append(out, err.Error())
	}
	return out
}

// BatchSyncResult 批次推送结果
type BatchSyncResult struct {
	Success bool              `json:"success"`
	Batch   *models.CodeBatch `json:"batch"`
	Pushed  int               `json:"pushed"`
	Error   string            `json:"error,omitempty"`
}

// NewBatchService 创建批次服务
func NewBatchService(
	setRepo repository.DiscountSetRepository,
	codeRepo repository.DiscountCodeRepository,
	batchRepo repository.CodeBatchRepository,
	merchantRepo repository.MerchantRepository,
	rules PromotionRuleClient,
	enqueuer BatchSyncEnqueuer,
	engineMetrics *metrics.EngineMetrics,
	cfg config.EngineConfig,
) *BatchService {
	return &BatchService{
		setRepo:      setRepo,
		codeRepo:     codeRepo,
		batchRepo:    batchRepo,
		merchantRepo: merchantRepo,
		rules:        rules,
		enqueuer:     enqueuer,
		metrics:      engineMetrics,
		cfg:          cfg.Normalize(),
		generate:     codegen.Generate,
		now:          time.Now,
	}
}

// CreateBatch 生成一批折扣码并推送到平台
// 单码失败只记录不中断；存储不可用时提前结束并返回部分结果；推送失败不回滚已落库的码
func (s *BatchService) CreateBatch(ctx context.Context, input BatchInput) (*BatchResult, error) {
	if s == nil || s.codeRepo == nil || s.batchRepo == nil {
		return nil, ErrBatchCreateFailed
	}
	input.Prefix = strings.TrimSpace(input.Prefix)
	if input.SetID == 0 || input.CodeLength < 0 || input.Count <= 0 {
		return nil, ErrInvalidInput
	}
	if input.Count > s.cfg.MaxBatchSize {
		return nil, ErrInvalidQuantity
	}
	if len(input.Prefix)+input.CodeLength > constants.MaxCodeLength {
		return nil, ErrInvalidCodeTemplate
	}
	if input.Kind == "" {
		input.Kind = constants.BatchKindInitial
	}

	now := s.now()
	batch := &models.CodeBatch{
		BatchNo:    generateBatchNo(now),
		SetID:      input.SetID,
		Kind:       input.Kind,
		Requested:  input.Count,
		SyncStatus: constants.BatchSyncPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.batchRepo.Create(ctx, batch); err != nil {
		logger.Errorw("batch_create_failed", "set_id", input.SetID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrBatchCreateFailed, err)
	}

	result := &BatchResult{Batch: batch}
	for i := 0; i < input.Count; i++ {
		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, err)
			logger.Warnw("batch_generation_aborted", "batch_no", batch.BatchNo, "created", len(result.Created), "error", err)
			break
		}
		code, err := s.persistCode(ctx, batch, input.Prefix, input.CodeLength)
		if err != nil {
			result.Failures = append(result.Failures, err)
			if isStoreUnavailable(err) {
				logger.Warnw("batch_generation_aborted", "batch_no", batch.BatchNo, "created", len(result.Created), "error", err)
				break
			}
			continue
		}
		result.Created = append(result.Created, *code)
	}
	s.metrics.CodeGenerated(input.Kind, len(result.Created))
	s.metrics.PersistFailed(len(result.Failures))

	if err := s.batchRepo.UpdateCreated(ctx, batch.ID, len(result.Created)); err != nil {
		logger.Warnw("batch_update_created_failed", "batch_no", batch.BatchNo, "error", err)
	}
	batch.Created = len(result.Created)
	if len(result.Failures) > 0 {
		logger.Warnw("batch_partial_failure",
			"set_id", input.SetID,
			"batch_no", batch.BatchNo,
			"created", len(result.Created),
			"failed", len(result.Failures),
		)
	}

	if len(result.Created) == 0 {
		reason := "no codes persisted"
		if err := s.batchRepo.MarkFailed(ctx, batch.ID, reason); err != nil {
			logger.Warnw("batch_mark_failed_failed", "batch_no", batch.BatchNo, "error", err)
		}
		batch.SyncStatus = constants.BatchSyncFailed
		result.SyncError = reason
		return result, nil
	}

	if s.enqueuer != nil && s.enqueuer.Enabled() {
		err := s.enqueuer.EnqueueBatchSync(ctx, queue.BatchSyncPayload{BatchID: batch.ID, BatchNo: batch.BatchNo})
		if err == nil {
			result.Success = true
			result.Queued = true
			return result, nil
		}
		logger.Warnw("batch_sync_enqueue_failed", "batch_no", batch.BatchNo, "error", err)
	}

	syncResult, err := s.SyncBatch(ctx, batch.ID)
	if syncResult != nil && syncResult.Batch != nil {
		result.Batch = syncResult.Batch
	}
	if err != nil {
		result.SyncError = err.Error()
		return result, nil
	}
	result.Success = syncResult.Success
	return result, nil
}

// persistCode 生成并保存单个码，唯一冲突时重新生成
func (s *BatchService) persistCode(ctx context.Context, batch *models.CodeBatch, prefix string, length int) (*models.DiscountCode, error) {
	for attempt := 0; attempt < s.cfg.UniqueRetries; attempt++ {
		now := s.now()
		code := &models.DiscountCode{
			Code:           s.generate(prefix, length),
			SetID:          batch.SetID,
			BatchID:        batch.ID,
			UsableQuantity: constants.DefaultUsableQuantity,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		err := s.codeRepo.Create(ctx, code)
		if err == nil {
			return code, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, ErrCodeCollision
}

// SyncBatch 将批次内全部码推送到平台，重复推送同一批次是安全的
func (s *BatchService) SyncBatch(ctx context.Context, batchID uint) (*BatchSyncResult, error) {
	if s == nil || s.batchRepo == nil {
		return nil, ErrBatchFetchFailed
	}
	if batchID == 0 {
		return nil, ErrInvalidInput
	}
	batch, err := s.batchRepo.GetByID(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBatchFetchFailed, err)
	}
	if batch == nil {
		return nil, ErrBatchNotFound
	}
	result := &BatchSyncResult{Batch: batch}
	if batch.SyncStatus == constants.BatchSyncSynced {
		result.Success = true
		result.Pushed = batch.Created
		return result, nil
	}

	set, err := s.setRepo.GetByID(ctx, batch.SetID)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrSetFetchFailed, err)
	}
	if set == nil {
		return result, ErrSetNotFound
	}
	merchant, err := s.merchantRepo.GetByID(ctx, set.MerchantID)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrMerchantFetchFailed, err)
	}
	if merchant == nil {
		return result, ErrMerchantNotFound
	}

	if err := s.batchRepo.BeginSync(ctx, batch.ID); err != nil {
		logger.Warnw("batch_begin_sync_failed", "batch_no", batch.BatchNo, "error", err)
	}
	batch.SyncAttempts++

	codes, err := s.codeRepo.ListByBatch(ctx, batch.ID)
	if err != nil {
		return result, s.failSync(ctx, result, fmt.Errorf("%w: %w", ErrCodeFetchFailed, err))
	}
	values := make([]string, 0, len(codes))
	for _, code := range codes {
		values = append(values, code.Code)
	}

	session := merchantSession(merchant)
	start := s.now()
	bound := set.PriceRuleID != ""
	priceRuleID, err := s.ensurePriceRule(ctx, set, session)
	if err == nil && bound && batch.Kind == constants.BatchKindSupplemental {
		// 补码后数量已提升，先同步规则的使用上限与有效期
		err = s.rules.UpdatePriceRule(ctx, session, priceRuleID, buildPriceRule(set))
	}
	if err == nil {
		err = s.rules.CreateDiscountCodes(ctx, session, priceRuleID, values)
	}
	elapsed := s.now().Sub(start).Seconds()
	if err != nil {
		s.metrics.BatchSynced(metrics.ResultFailed, elapsed)
		return result, s.failSync(ctx, result, fmt.Errorf("%w: %w", ErrPlatformSyncFailed, err))
	}
	s.metrics.BatchSynced(metrics.ResultSuccess, elapsed)

	now := s.now()
	if err := s.batchRepo.MarkSynced(ctx, batch.ID, now); err != nil {
		logger.Warnw("batch_mark_synced_failed", "batch_no", batch.BatchNo, "error", err)
	}
	batch.SyncStatus = constants.BatchSyncSynced
	batch.SyncedAt = &now
	batch.LastSyncError = ""
	result.Success = true
	result.Pushed = len(values)
	logger.Infow("batch_synced",
		"set_id", set.ID,
		"batch_no", batch.BatchNo,
		"kind", batch.Kind,
		"codes", len(values),
		"attempt", batch.SyncAttempts,
	)
	return result, nil
}

func (s *BatchService) failSync(ctx context.Context, result *BatchSyncResult, cause error) error {
	batch := result.Batch
	if err := s.batchRepo.MarkFailed(ctx, batch.ID, cause.Error()); err != nil {
		logger.Warnw("batch_mark_failed_failed", "batch_no", batch.BatchNo, "error", err)
	}
	batch.SyncStatus = constants.BatchSyncFailed
	batch.LastSyncError = cause.Error()
	result.Success = false
	result.Error = cause.Error()
	logger.Warnw("batch_sync_failed",
		"set_id", batch.SetID,
		"batch_no", batch.BatchNo,
		"attempt", batch.SyncAttempts,
		"error", cause,
	)
	return cause
}

// ensurePriceRule 返回活动绑定的促销规则，未绑定时在平台创建并绑定
func (s *BatchService) ensurePriceRule(ctx context.Context, set *models.DiscountSet, session platform.Session) (string, error) {
	if s.rules == nil {
		return "", ErrPlatformUnavailable
	}
	if set.PriceRuleID != "" {
		return set.PriceRuleID, nil
	}
	priceRuleID, err := s.rules.CreatePriceRule(ctx, session, buildPriceRule(set))
	if err != nil {
		return "", err
	}
	bound, err := s.setRepo.BindPriceRuleID(ctx, set.ID, priceRuleID)
	if err != nil {
		return "", err
	}
	if !bound {
		// 并发创建时以先绑定者为准
		latest, err := s.setRepo.GetByID(ctx, set.ID)
		if err != nil {
			return "", err
		}
		if latest == nil || latest.PriceRuleID == "" {
			return "", ErrSetNotFound
		}
		logger.Warnw("price_rule_bind_lost", "set_id", set.ID, "orphan_price_rule_id", priceRuleID, "price_rule_id", latest.PriceRuleID)
		priceRuleID = latest.PriceRuleID
	}
	set.PriceRuleID = priceRuleID
	return priceRuleID, nil
}

// ReconcilePending 重试长时间停留在待同步/失败状态的批次，返回成功数
func (s *BatchService) ReconcilePending(ctx context.Context, staleAfter time.Duration, maxAttempts, limit int) (int, error) {
	if s == nil || s.batchRepo == nil {
		return 0, ErrBatchFetchFailed
	}
	batches, err := s.batchRepo.ListPendingSync(ctx, repository.PendingBatchFilter{
		UpdatedBefore: s.now().Add(-staleAfter),
		MaxAttempts:   maxAttempts,
		Limit:         limit,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBatchFetchFailed, err)
	}
	synced := 0
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		result, err := s.SyncBatch(ctx, batch.ID)
		if err != nil {
			continue
		}
		if result != nil && result.Success {
			synced++
		}
	}
	if len(batches) > 0 {
		logger.Infow("batch_reconcile_done", "candidates", len(batches), "synced", synced)
	}
	return synced, nil
}

// ListBySet 活动批次列表
func (s *BatchService) ListBySet(ctx context.Context, setID uint) ([]models.CodeBatch, error) {
	if setID == 0 {
		return nil, ErrInvalidInput
	}
	batches, err := s.batchRepo.ListBySet(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBatchFetchFailed, err)
	}
	return batches, nil
}

func generateBatchNo(now time.Time) string {
	return fmt.Sprintf("B%s%s", now.UTC().Format("20060102150405"), strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func isStoreUnavailable(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone)
}
