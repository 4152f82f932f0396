package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/cache"
	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/constants"
	"github.com/dujiao-next/discount-engine/internal/logger"
	"github.com/dujiao-next/discount-engine/internal/metrics"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/repository"

	"golang.org/x/sync/singleflight"
)

// RevealService 店面揭示流程：领取未揭示码、按码回访、查询码状态
type RevealService struct {
	setRepo     repository.DiscountSetRepository
	codeRepo    repository.DiscountCodeRepository
	replenisher *ReplenishmentService
	cache       *cache.Redis
	metrics     *metrics.EngineMetrics
	attempts    int
	cacheTTL    time.Duration
	loads       singleflight.Group
	now         func() time.Time
}

// RevealResult 揭示结果，ButtonStyle 为活动展示配置原样透传
type RevealResult struct {
	SetID       uint        `json:"set_id"`
	CodeID      uint        `json:"code_id"`
	Code        string      `json:"code"`
	RevealedAt  *time.Time  `json:"revealed_at"`
	ButtonStyle models.JSON `json:"button_style"`
	Replenished bool        `json:"replenished"`
}

// NewRevealService 创建揭示服务
func NewRevealService(
	setRepo repository.DiscountSetRepository,
	codeRepo repository.DiscountCodeRepository,
	replenisher *ReplenishmentService,
	redis *cache.Redis,
	engineMetrics *metrics.EngineMetrics,
	cfg config.EngineConfig,
) *RevealService {
	cfg = cfg.Normalize()
	return &RevealService{
		setRepo:     setRepo,
		codeRepo:    codeRepo,
		replenisher: replenisher,
		cache:       redis,
		metrics:     engineMetrics,
		attempts:    cfg.ClaimAttempts,
		cacheTTL:    time.Duration(cfg.SetCacheSeconds) * time.Second,
		now:         time.Now,
	}
}

// RevealNext 首访流程：领取活动下一个未揭示码并在同一操作中标记为已揭示
func (s *RevealService) RevealNext(ctx context.Context, setID uint) (*RevealResult, error) {
	if setID == 0 {
		return nil, ErrInvalidInput
	}
	snapshot, err := s.loadSet(ctx, setID)
	if err != nil {
		s.metrics.Revealed(metrics.ResultRejected)
		return nil, err
	}
	if err := s.checkSet(snapshot); err != nil {
		s.metrics.Revealed(metrics.ResultRejected)
		return nil, err
	}

	code, claimErr := s.claim(ctx, setID)
	if claimErr != nil && !errors.Is(claimErr, ErrNoCodesAvailable) {
		s.metrics.Revealed(metrics.ResultFailed)
		return nil, claimErr
	}
	outcome := s.replenish(ctx, setID)
	if code == nil && outcome != nil && outcome.Triggered {
		code, claimErr = s.claim(ctx, setID)
		if claimErr != nil && !errors.Is(claimErr, ErrNoCodesAvailable) {
			s.metrics.Revealed(metrics.ResultFailed)
			return nil, claimErr
		}
	}
	if code == nil {
		s.metrics.Revealed(metrics.ResultExhausted)
		logger.Infow("reveal_exhausted", "set_id", setID)
		return nil, ErrNoCodesAvailable
	}
	s.metrics.Revealed(metrics.ResultSuccess)
	result := buildRevealResult(snapshot, code)
	result.Replenished = outcome != nil && outcome.Triggered
	return result, nil
}

// RevealCode 回访流程：返回访客已持有的码，未揭示时幂等地标记揭示
func (s *RevealService) RevealCode(ctx context.Context, setID uint, code string) (*RevealResult, error) {
	code = strings.TrimSpace(code)
	if setID == 0 || code == "" {
		return nil, ErrInvalidInput
	}
	snapshot, err := s.loadSet(ctx, setID)
	if err != nil {
		return nil, err
	}
	if err := s.checkSet(snapshot); err != nil {
		return nil, err
	}
	row, err := s.codeRepo.GetBySetAndCode(ctx, setID, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodeFetchFailed, err)
	}
	if row == nil {
		return nil, ErrCodeNotFound
	}
	result := buildRevealResult(snapshot, row)
	if row.Revealed {
		return result, nil
	}
	now := s.now()
	ok, err := s.codeRepo.MarkRevealed(ctx, row.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRevealFailed, err)
	}
	if ok {
		result.RevealedAt = &now
		s.metrics.Revealed(metrics.ResultSuccess)
		outcome := s.replenish(ctx, setID)
		result.Replenished = outcome != nil && outcome.Triggered
	}
	return result, nil
}

// CodeStatus 查询码是否仍可使用，码不存在时返回 false
func (s *RevealService) CodeStatus(ctx context.Context, setID uint, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if setID == 0 || code == "" {
		return false, ErrInvalidInput
	}
	if _, err := s.loadSet(ctx, setID); err != nil {
		return false, err
	}
	row, err := s.codeRepo.GetBySetAndCode(ctx, setID, code)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCodeFetchFailed, err)
	}
	if row == nil {
		return false, nil
	}
	return row.UseCount < row.UsableQuantity, nil
}

// SetRevealed 按码设置揭示标记，只允许 0 -> 1，重复设置为空操作
func (s *RevealService) SetRevealed(ctx context.Context, code string, status int) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, ErrInvalidInput
	}
	switch status {
	case constants.RevealStatusRevealed:
	case constants.RevealStatusHidden:
		return false, ErrRevealIrreversible
	default:
		return false, ErrInvalidInput
	}
	row, err := s.codeRepo.GetByCode(ctx, code)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCodeFetchFailed, err)
	}
	if row == nil {
		return false, ErrCodeNotFound
	}
	if row.Revealed {
		return false, nil
	}
	ok, err := s.codeRepo.MarkRevealed(ctx, row.ID, s.now())
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRevealFailed, err)
	}
	if ok {
		s.metrics.Revealed(metrics.ResultSuccess)
		s.replenish(ctx, row.SetID)
	}
	return ok, nil
}

// claim 条件更新 revealed=false -> true，失败说明被并发请求抢先，从下一个码继续
func (s *RevealService) claim(ctx context.Context, setID uint) (*models.DiscountCode, error) {
	var afterID uint
	for attempt := 0; attempt < s.attempts; attempt++ {
		id, err := s.codeRepo.FirstUnrevealedID(ctx, setID, afterID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRevealFailed, err)
		}
		if id == 0 {
			return nil, ErrNoCodesAvailable
		}
		ok, err := s.codeRepo.MarkRevealed(ctx, id, s.now())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRevealFailed, err)
		}
		if ok {
			row, err := s.codeRepo.GetByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrRevealFailed, err)
			}
			if row == nil {
				return nil, ErrCodeNotFound
			}
			return row, nil
		}
		afterID = id
	}
	logger.Warnw("reveal_claim_contended", "set_id", setID, "attempts", s.attempts)
	return nil, ErrRevealContended
}

// replenish 补码失败不影响本次揭示
func (s *RevealService) replenish(ctx context.Context, setID uint) *ReplenishmentOutcome {
	if s.replenisher == nil {
		return nil
	}
	outcome, err := s.replenisher.Evaluate(ctx, setID)
	if err != nil {
		logger.Warnw("reveal_replenishment_failed", "set_id", setID, "error", err)
	}
	return outcome
}

func (s *RevealService) checkSet(snapshot *cache.SetSnapshot) error {
	if !snapshot.IsActive {
		return ErrSetInactive
	}
	if !snapshot.InWindow(s.now()) {
		return ErrSetOutOfWindow
	}
	return nil
}

// loadSet 读取活动展示快照：Redis -> 数据库，同一活动的并发回源合并为一次
func (s *RevealService) loadSet(ctx context.Context, setID uint) (*cache.SetSnapshot, error) {
	if snapshot, ok, err := s.cache.GetSetSnapshot(ctx, setID); err != nil {
		logger.Debugw("set_snapshot_cache_get_failed", "set_id", setID, "error", err)
	} else if ok && snapshot != nil {
		return snapshot, nil
	}
	value, err, _ := s.loads.Do(strconv.FormatUint(uint64(setID), 10), func() (interface{}, error) {
		set, err := s.setRepo.GetByID(ctx, setID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSetFetchFailed, err)
		}
		if set == nil {
			return nil, ErrSetNotFound
		}
		snapshot := cache.SnapshotFromSet(set)
		if err := s.cache.SetSetSnapshot(ctx, snapshot, s.cacheTTL); err != nil {
			logger.Debugw("set_snapshot_cache_set_failed", "set_id", setID, "error", err)
		}
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*cache.SetSnapshot), nil
}

func buildRevealResult(snapshot *cache.SetSnapshot, code *models.DiscountCode) *RevealResult {
	return &RevealResult{
		SetID:       code.SetID,
		CodeID:      code.ID,
		Code:        code.Code,
		RevealedAt:  code.RevealedAt,
		ButtonStyle: snapshot.ButtonStyle,
	}
}
