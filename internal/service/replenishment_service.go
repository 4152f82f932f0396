package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/constants"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/metrics"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/repository"

	"gorm.io/gorm"
)

// ReplenishmentService 自动补码：揭示率超过阈值时追加一批码
type ReplenishmentService struct {
	setRepo   repository.DiscountSetRepository
	codeRepo  repository.DiscountCodeRepository
	replRepo  repository.ReplenishmentRepository
	batchSvc  *BatchService
	metrics   *metrics.EngineMetrics
	threshold float64
	size      int
	now       func() time.Time
}

// ReplenishmentOutcome 一次补码检查的结果
type ReplenishmentOutcome struct {
	Triggered     bool         `json:"triggered"`
	FromQuantity  int          `json:"from_quantity"`
	ToQuantity    int          `json:"to_quantity"`
	RevealedCount int64        `json:"revealed_count"`
	Batch         *BatchResult `json:"batch,omitempty"`
}

// NewReplenishmentService 创建补码服务
func NewReplenishmentService(
	setRepo repository.DiscountSetRepository,
	codeRepo repository.DiscountCodeRepository,
	replRepo repository.ReplenishmentRepository,
	batchSvc *BatchService,
	engineMetrics *metrics.EngineMetrics,
	cfg config.EngineConfig,
) *ReplenishmentService {
	cfg = cfg.Normalize()
	return &ReplenishmentService{
		setRepo:   setRepo,
		codeRepo:  codeRepo,
		replRepo:  replRepo,
		batchSvc:  batchSvc,
		metrics:   engineMetrics,
		threshold: cfg.ReplenishThreshold,
		size:      cfg.ReplenishSize,
		now:       time.Now,
	}
}

// Evaluate 检查活动揭示率，达到阈值时补码
// 以当前 quantity 作为水位线做条件更新，同一耗尽周期内只有一个调用方能胜出
func (s *ReplenishmentService) Evaluate(ctx context.Context, setID uint) (*ReplenishmentOutcome, error) {
	outcome := &ReplenishmentOutcome{}
	if s == nil || s.setRepo == nil || setID == 0 {
		return outcome, nil
	}
	set, err := s.setRepo.GetByID(ctx, setID)
	if err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrSetFetchFailed, err)
	}
	if set == nil || !set.IsActive || !set.AutoReplenish || set.Quantity <= 0 {
		return outcome, nil
	}
	now := s.now()
	if !set.InWindow(now) {
		return outcome, nil
	}
	revealed, err := s.codeRepo.CountRevealed(ctx, set.ID)
	if err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrCodeFetchFailed, err)
	}
	outcome.RevealedCount = revealed
	outcome.FromQuantity = set.Quantity
	outcome.ToQuantity = set.Quantity
	if float64(revealed)/float64(set.Quantity) < s.threshold {
		return outcome, nil
	}

	event := &models.ReplenishmentEvent{
		SetID:         set.ID,
		FromQuantity:  set.Quantity,
		ToQuantity:    set.Quantity + s.size,
		RevealedCount: revealed,
		CreatedAt:     now,
	}
	won := false
	err = s.setRepo.Transaction(ctx, func(tx *gorm.DB) error {
		ok, err := s.setRepo.WithTx(tx).ReplenishIfUnchanged(ctx, set.ID, set.Quantity, s.size, now)
		if err != nil || !ok {
			return err
		}
		if err := s.replRepo.WithTx(tx).Create(ctx, event); err != nil {
			return err
		}
		won = true
		return nil
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return outcome, nil
		}
		logger.Errorw("replenishment_claim_failed", "set_id", set.ID, "quantity", set.Quantity, "error", err)
		return outcome, fmt.Errorf("%w: %w", ErrReplenishmentFailed, err)
	}
	if !won {
		return outcome, nil
	}

	outcome.Triggered = true
	outcome.ToQuantity = event.ToQuantity
	s.metrics.Replenished()
	logger.Infow("replenishment_triggered",
		"set_id", set.ID,
		"revealed", revealed,
		"from_quantity", event.FromQuantity,
		"to_quantity", event.ToQuantity,
	)

	batchResult, err := s.batchSvc.CreateBatch(ctx, BatchInput{
		SetID:      set.ID,
		Prefix:     set.CodePrefix,
		CodeLength: set.CodeLength,
		Count:      s.size,
		Kind:       constants.BatchKindSupplemental,
	})
	if err != nil {
		// quantity 已提升，实际码数暂时落后，由管理端重新补批
		logger.Errorw("replenishment_batch_failed", "set_id", set.ID, "event_id", event.ID, "error", err)
		return outcome, fmt.Errorf("%w: %w", ErrReplenishmentFailed, err)
	}
	outcome.Batch = batchResult
	if batchResult.Batch != nil {
		if err := s.replRepo.AttachBatch(ctx, event.ID, batchResult.Batch.ID); err != nil {
			logger.Warnw("replenishment_attach_batch_failed", "set_id", set.ID, "event_id", event.ID, "error", err)
		}
	}
	return outcome, nil
}

// History 活动补码记录
func (s *ReplenishmentService) History(ctx context.Context, setID uint) ([]models.ReplenishmentEvent, error) {
	if setID == 0 {
		return nil, ErrInvalidInput
	}
	events, err := s.replRepo.ListBySet(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetFetchFailed, err)
	}
	return events, nil
}
