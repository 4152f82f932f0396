package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dujiao-next/discount-engine/internal/constants"
	"github.com/dujiao-next/discount-engine/internal/models"
	"github.com/dujiao-next/discount-engine/internal/platform"
)

func TestValidateSetRejectsInvalidShapes(t *testing.T) {
	start := time.Now()
	before := start.Add(-time.Hour)
	base := func() *models.DiscountSet {
		return &models.DiscountSet{
			Title:          "base",
			CodePrefix:     "VIP-",
			CodeLength:     6,
			Quantity:       10,
			DiscountType:   constants.DiscountTypePercentage,
			Value:          mustMoney(t, "20"),
			TargetScope:    constants.TargetScopeAll,
			MinRequirement: constants.MinRequirementNone,
			StartsAt:       start,
		}
	}
	if err := validateSet(base(), 100); err != nil {
		t.Fatalf("base set should be valid: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(s *models.DiscountSet)
		want   error
	}{
		{"percentage over 100", func(s *models.DiscountSet) { s.Value = mustMoney(t, "100.01") }, ErrInvalidDiscountShape},
		{"zero value", func(s *models.DiscountSet) { s.Value = mustMoney(t, "0") }, ErrInvalidDiscountShape},
		{"unknown type", func(s *models.DiscountSet) { s.DiscountType = "bogo" }, ErrInvalidDiscountShape},
		{"products without ids", func(s *models.DiscountSet) { s.TargetScope = constants.TargetScopeProducts }, ErrInvalidDiscountShape},
		{"subtotal without value", func(s *models.DiscountSet) { s.MinRequirement = constants.MinRequirementSubtotal }, ErrInvalidDiscountShape},
		{"fractional quantity", func(s *models.DiscountSet) {
			s.MinRequirement = constants.MinRequirementQuantity
			s.MinRequirementValue = mustMoney(t, "1.5")
		}, ErrInvalidDiscountShape},
		{"window reversed", func(s *models.DiscountSet) { s.EndsAt = &before }, ErrInvalidWindow},
		{"code too long", func(s *models.DiscountSet) { s.CodeLength = 61 }, ErrInvalidCodeTemplate},
		{"prefix whitespace", func(s *models.DiscountSet) { s.CodePrefix = "VIP " }, ErrInvalidCodeTemplate},
		{"quantity over limit", func(s *models.DiscountSet) { s.Quantity = 101 }, ErrInvalidQuantity},
		{"missing title", func(s *models.DiscountSet) { s.Title = "" }, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			set := base()
			tc.mutate(set)
			if err := validateSet(set, 100); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	all := base()
	all.TargetIDs = models.StringArray{"1"}
	if err := validateSet(all, 100); err != nil || all.TargetIDs != nil {
		t.Fatalf("scope all should drop target ids: %v %v", all.TargetIDs, err)
	}
}

func TestCreateSetRequiresActiveMerchant(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()
	input := CreateSetInput{
		Title:        "no merchant",
		CodePrefix:   "X-",
		Quantity:     1,
		DiscountType: constants.DiscountTypeFixed,
		Value:        mustMoney(t, "1"),
		MerchantID:   999,
	}
	if _, _, err := f.sets.Create(ctx, input); !errors.Is(err, ErrMerchantNotFound) {
		t.Fatalf("expected merchant not found, got %v", err)
	}
	inactive := false
	merchant, err := f.sets.UpsertMerchant(ctx, MerchantInput{ShopDomain: "closed.example.com", AccessToken: "tok", IsActive: &inactive})
	if err != nil {
		t.Fatalf("upsert merchant failed: %v", err)
	}
	input.MerchantID = merchant.ID
	if _, _, err := f.sets.Create(ctx, input); !errors.Is(err, ErrMerchantInactive) {
		t.Fatalf("expected merchant inactive, got %v", err)
	}
}

func TestCreateSetDefaults(t *testing.T) {
	f := setupEngineTest(t)
	set, batch, err := f.sets.Create(context.Background(), CreateSetInput{
		MerchantID:   f.merchant.ID,
		Title:        "defaults",
		Quantity:     2,
		DiscountType: "FIXED",
		Value:        mustMoney(t, "3"),
	})
	if err != nil {
		t.Fatalf("create set failed: %v", err)
	}
	if set.CodeLength != constants.DefaultCodeLength || set.TargetScope != constants.TargetScopeAll || set.MinRequirement != constants.MinRequirementNone {
		t.Fatalf("unexpected defaults: %+v", set)
	}
	if !set.IsActive || !set.AutoReplenish {
		t.Fatalf("sets should default to active with auto replenish: %+v", set)
	}
	if len(batch.Created) != 2 || len(batch.Created[0].Code) != constants.DefaultCodeLength {
		t.Fatalf("unexpected initial batch: %+v", batch.Created)
	}
}

func TestUpdateSetSyncsBoundPriceRule(t *testing.T) {
	f := setupEngineTest(t)
	set, _ := f.createSet(t, 2, true)
	ctx := context.Background()

	value := mustMoney(t, "7.5")
	discountType := constants.DiscountTypeFixed
	result, err := f.sets.Update(ctx, set.ID, UpdateSetInput{
		DiscountType: &discountType,
		Value:        &value,
		ButtonStyle:  models.JSON{"button_style_type": constants.ButtonStyleCustom},
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !result.RuleSynced || f.rules.updateCalls != 1 {
		t.Fatalf("expected rule update, got %+v calls=%d", result, f.rules.updateCalls)
	}
	rule := f.rules.rules[set.PriceRuleID]
	if rule.ValueType != platform.ValueTypeFixedAmount || rule.Value != "7.50" {
		t.Fatalf("unexpected pushed rule: %+v", rule)
	}
	reloaded := f.reloadSet(t, set.ID)
	if reloaded.DiscountType != constants.DiscountTypeFixed || reloaded.ButtonStyle["button_style_type"] != constants.ButtonStyleCustom {
		t.Fatalf("update not persisted: %+v", reloaded)
	}
	if reloaded.Quantity != 2 {
		t.Fatalf("update must not touch quantity, got %d", reloaded.Quantity)
	}

	bad := mustMoney(t, "150")
	percentage := constants.DiscountTypePercentage
	if _, err := f.sets.Update(ctx, set.ID, UpdateSetInput{DiscountType: &percentage, Value: &bad}); !errors.Is(err, ErrInvalidDiscountShape) {
		t.Fatalf("expected invalid shape, got %v", err)
	}
}

func TestUpdateSetKeepsLocalChangeWhenRuleSyncFails(t *testing.T) {
	f := setupEngineTest(t)
	set, _ := f.createSet(t, 1, false)
	ctx := context.Background()
	delete(f.rules.rules, set.PriceRuleID)

	title := "renamed"
	result, err := f.sets.Update(ctx, set.ID, UpdateSetInput{Title: &title})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if result.RuleSynced || result.RuleError != platform.ErrRejected.Error() {
		t.Fatalf("expected rule error, got %+v", result)
	}
	if f.reloadSet(t, set.ID).Title != "renamed" {
		t.Fatalf("local update should persist")
	}
}

func TestGetSetDetailAndListings(t *testing.T) {
	f := setupEngineTest(t)
	set, batch := f.createSet(t, 3, false)
	ctx := context.Background()
	if _, err := f.reveals.RevealNext(ctx, set.ID); err != nil {
		t.Fatalf("reveal failed: %v", err)
	}
	if _, err := f.redemptions.RecordOrder(ctx, OrderEvent{
		MerchantID: testShopDomain,
		OrderID:    "6001",
		TotalPrice: mustMoney(t, "4"),
		Codes:      []string{batch.Created[2].Code},
	}); err != nil {
		t.Fatalf("record order failed: %v", err)
	}

	detail, err := f.sets.Get(ctx, set.ID)
	if err != nil {
		t.Fatalf("get set failed: %v", err)
	}
	if detail.Counts.Total != 3 || detail.Counts.Revealed != 1 || detail.Counts.Used != 1 {
		t.Fatalf("unexpected counts: %+v", detail.Counts)
	}
	if detail.CodeRevenue.String() != "4.00" || detail.CodeRevenue.String() != detail.Set.Revenue.String() {
		t.Fatalf("code revenue %s must match set revenue %s", detail.CodeRevenue.String(), detail.Set.Revenue.String())
	}
	codes, total, err := f.sets.ListCodes(ctx, set.ID, repositoryCodeFilter(0))
	if err != nil || total != 3 || len(codes) != 3 {
		t.Fatalf("unexpected codes listing: %d %d %v", len(codes), total, err)
	}
	batches, err := f.sets.ListBatches(ctx, set.ID)
	if err != nil || len(batches) != 1 || batches[0].Kind != constants.BatchKindInitial {
		t.Fatalf("unexpected batches: %+v %v", batches, err)
	}
	if _, err := f.sets.Get(ctx, 777); !errors.Is(err, ErrSetNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteSetKeepsCodesForAttribution(t *testing.T) {
	f := setupEngineTest(t)
	set, batch := f.createSet(t, 1, false)
	ctx := context.Background()
	if err := f.sets.Delete(ctx, set.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := f.sets.Delete(ctx, set.ID); !errors.Is(err, ErrSetNotFound) {
		t.Fatalf("second delete should report not found, got %v", err)
	}
	var count int64
	f.db.Model(&models.DiscountCode{}).Where("set_id = ?", set.ID).Count(&count)
	if count != 1 {
		t.Fatalf("codes must be retained after delete, got %d", count)
	}
	stored, _ := f.codeRepo.GetByCode(ctx, batch.Created[0].Code)
	if stored != nil {
		t.Fatalf("codes of deleted sets should not resolve for reveal: %+v", stored)
	}
}
