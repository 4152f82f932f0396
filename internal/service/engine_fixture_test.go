package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/metrics"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/platform"
	"github.com/dujiao-next/discount-engine/internal/queue"
	"github.com/dujiao-next/discount-engine/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const testShopDomain = "vip-shop.example.com"

// fakeRuleClient 内存版平台促销规则
type fakeRuleClient struct {
	mu          sync.Mutex
	nextID      int
	rules       map[string]platform.PriceRule
	codes       map[string][]string
	pushCalls   int
	updateCalls int
	pushErr     error
}

func newFakeRuleClient() *fakeRuleClient {
	return &fakeRuleClient{
		rules: make(map[string]platform.PriceRule),
		codes: make(map[string][]string),
	}
}

func (f *fakeRuleClient) CreatePriceRule(_ context.Context, _ platform.Session, rule platform.PriceRule) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("rule-%d", f.nextID)
	f.rules[id] = rule
	return id, nil
}

func (f *fakeRuleClient) UpdatePriceRule(_ context.Context, _ platform.Session, id string, rule platform.PriceRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[id]; !ok {
		return platform.ErrRejected
	}
	f.updateCalls++
	f.rules[id] = rule
	return nil
}

func (f *fakeRuleClient) CreateDiscountCodes(_ context.Context, _ platform.Session, id string, codes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushCalls++
	if f.pushErr != nil {
		return f.pushErr
	}
	f.codes[id] = append(f.codes[id], codes...)
	return nil
}

func (f *fakeRuleClient) setPushErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushErr = err
}

func (f *fakeRuleClient) rule(id string) (platform.PriceRule, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules[id], f.updateCalls
}

func (f *fakeRuleClient) pushedCodes(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes[id]...)
}

// fakeEnqueuer 记录投递的批次同步任务
type fakeEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.BatchSyncPayload
	err      error
}

func (f *fakeEnqueuer) Enabled() bool { return true }

func (f *fakeEnqueuer) EnqueueBatchSync(_ context.Context, payload queue.BatchSyncPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

type engineFixture struct {
	db           *gorm.DB
	rules        *fakeRuleClient
	metrics      *metrics.EngineMetrics
	merchant     *models.Merchant
	setRepo      repository.DiscountSetRepository
	codeRepo     repository.DiscountCodeRepository
	batchRepo    repository.CodeBatchRepository
	replRepo     repository.ReplenishmentRepository
	attrRepo     repository.AttributionRepository
	merchantRepo repository.MerchantRepository
	batches      *BatchService
	replenisher  *ReplenishmentService
	reveals      *RevealService
	redemptions  *RedemptionService
	sets         *DiscountSetService
}

func setupEngineTest(t *testing.T) *engineFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:discount_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	f := &engineFixture{
		db:           db,
		rules:        newFakeRuleClient(),
		metrics:      metrics.NewEngineMetrics(prometheus.NewRegistry()),
		setRepo:      repository.NewDiscountSetRepository(db),
		codeRepo:     repository.NewDiscountCodeRepository(db),
		batchRepo:    repository.NewCodeBatchRepository(db),
		replRepo:     repository.NewReplenishmentRepository(db),
		attrRepo:     repository.NewAttributionRepository(db),
		merchantRepo: repository.NewMerchantRepository(db),
	}
	cfg := config.DefaultEngineConfig()
	f.batches = NewBatchService(f.setRepo, f.codeRepo, f.batchRepo, f.merchantRepo, f.rules, nil, f.metrics, cfg)
	f.replenisher = NewReplenishmentService(f.setRepo, f.codeRepo, f.replRepo, f.batches, f.metrics, cfg)
	f.reveals = NewRevealService(f.setRepo, f.codeRepo, f.replenisher, nil, f.metrics, cfg)
	f.redemptions = NewRedemptionService(f.setRepo, f.codeRepo, f.attrRepo, f.merchantRepo, f.metrics)
	f.sets = NewDiscountSetService(f.setRepo, f.codeRepo, f.merchantRepo, f.batches, f.rules, nil)

	merchant, err := f.sets.UpsertMerchant(context.Background(), MerchantInput{
		ShopDomain:    testShopDomain,
		AccessToken:   "shpat_test",
		WebhookSecret: "whsec",
	})
	if err != nil {
		t.Fatalf("create merchant failed: %v", err)
	}
	f.merchant = merchant
	return f
}

// createSet 创建活动并生成首批码
func (f *engineFixture) createSet(t *testing.T, quantity int, autoReplenish bool) (*models.DiscountSet, *BatchResult) {
	t.Helper()
	startsAt := time.Now().Add(-time.Hour)
	set, batch, err := f.sets.Create(context.Background(), CreateSetInput{
		MerchantID:    f.merchant.ID,
		Title:         "VIP 活动",
		CodePrefix:    "VIP-",
		CodeLength:    4,
		Quantity:      quantity,
		DiscountType:  "percentage",
		Value:         models.NewMoneyFromDecimal(decimal.NewFromInt(15)),
		StartsAt:      &startsAt,
		AutoReplenish: &autoReplenish,
		ButtonStyle:   models.JSON{"button_style_type": "standard", "standard_btn_text": "Reveal"},
	})
	if err != nil {
		t.Fatalf("create set failed: %v", err)
	}
	if batch == nil || !batch.Success {
		t.Fatalf("initial batch should succeed: %+v", batch)
	}
	return set, batch
}

func (f *engineFixture) countBatches(t *testing.T, setID uint, kind string) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&models.CodeBatch{}).Where("set_id = ? AND kind = ?", setID, kind).Count(&count).Error; err != nil {
		t.Fatalf("count batches failed: %v", err)
	}
	return count
}

func (f *engineFixture) reloadSet(t *testing.T, id uint) *models.DiscountSet {
	t.Helper()
	set, err := f.setRepo.GetByID(context.Background(), id)
	if err != nil || set == nil {
		t.Fatalf("reload set failed: %v", err)
	}
	return set
}

func mustMoney(t *testing.T, raw string) models.Money {
	t.Helper()
	m, err := models.ParseMoney(raw)
	if err != nil {
		t.Fatalf("parse money %s failed: %v", raw, err)
	}
	return m
}

var errPlatformDown = errors.New("platform down")

func repositoryCodeFilter(setID uint) repository.DiscountCodeListFilter {
	return repository.DiscountCodeListFilter{SetID: setID, Page: 1, PageSize: 100}
}
