package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dujiao-next/discount-engine/internal/constants"
)

func TestRevealScenarioExhaustionWithoutReplenish(t *testing.T) {
	f := setupEngineTest(t)
	set, _ := f.createSet(t, 2, false)
	ctx := context.Background()
	pattern := regexp.MustCompile(`^VIP-[A-Za-z0-9]{4}$`)

	first, err := f.reveals.RevealNext(ctx, set.ID)
	if err != nil {
		t.Fatalf("first reveal failed: %v", err)
	}
	second, err := f.reveals.RevealNext(ctx, set.ID)
	if err != nil {
		t.Fatalf("second reveal failed: %v", err)
	}
	if first.Code == second.Code {
		t.Fatalf("same code revealed twice: %s", first.Code)
	}
	for _, code := range []string{first.Code, second.Code} {
		if !pattern.MatchString(code) {
			t.Fatalf("unexpected code shape: %s", code)
		}
	}
	if first.ButtonStyle["button_style_type"] != "standard" {
		t.Fatalf("button style should pass through: %+v", first.ButtonStyle)
	}

	_, err = f.reveals.RevealNext(ctx, set.ID)
	if !errors.Is(err, ErrNoCodesAvailable) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if KindOf(err) != KindExhausted {
		t.Fatalf("exhaustion must be distinct from not found, got kind %s", KindOf(err))
	}
	counts, _ := f.codeRepo.CountsBySet(ctx, set.ID)
	if counts.Revealed != 2 {
		t.Fatalf("expected 2 revealed codes, got %d", counts.Revealed)
	}
}

func TestRevealScenarioThresholdReplenishes(t *testing.T) {
	f := setupEngineTest(t)
	set, batch := f.createSet(t, 5, true)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := f.codeRepo.MarkRevealed(ctx, batch.Created[i].ID, time.Now()); err != nil {
			t.Fatalf("seed reveal failed: %v", err)
		}
	}

	result, err := f.reveals.RevealNext(ctx, set.ID)
	if err != nil {
		t.Fatalf("reveal failed: %v", err)
	}
	if !result.Replenished {
		t.Fatalf("expected replenishment to trigger")
	}
	reloaded := f.reloadSet(t, set.ID)
	if reloaded.Quantity != 105 {
		t.Fatalf("expected quantity 105, got %d", reloaded.Quantity)
	}
	if reloaded.ReplenishCount != 1 {
		t.Fatalf("expected replenish count 1, got %d", reloaded.ReplenishCount)
	}
	if got := f.countBatches(t, set.ID, constants.BatchKindSupplemental); got != 1 {
		t.Fatalf("expected 1 supplemental batch, got %d", got)
	}
	counts, _ := f.codeRepo.CountsBySet(ctx, set.ID)
	if counts.Total != 105 {
		t.Fatalf("expected 105 codes, got %d", counts.Total)
	}
	events, err := f.replenisher.History(ctx, set.ID)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected 1 replenishment event, got %d (%v)", len(events), err)
	}
	if events[0].FromQuantity != 5 || events[0].ToQuantity != 105 || events[0].BatchID == nil {
		t.Fatalf("unexpected event: %+v", events[0])
	}

	next, err := f.reveals.RevealNext(ctx, set.ID)
	if err != nil {
		t.Fatalf("reveal after replenish failed: %v", err)
	}
	if next.Replenished {
		t.Fatalf("replenishment must not re-trigger within the same epoch")
	}
	if got := f.countBatches(t, set.ID, constants.BatchKindSupplemental); got != 1 {
		t.Fatalf("expected still 1 supplemental batch, got %d", got)
	}
}

func TestConcurrentRevealsReplenishOnce(t *testing.T) {
	f := setupEngineTest(t)
	set, _ := f.createSet(t, 5, true)
	ctx := context.Background()

	const workers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		codes   = make(map[string]int)
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.reveals.RevealNext(ctx, set.ID)
			if err != nil {
				kind := KindOf(err)
				if kind != KindExhausted && kind != KindConflict {
					t.Errorf("unexpected reveal error: %v", err)
				}
				return
			}
			mu.Lock()
			codes[result.Code]++
			success++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if got := f.countBatches(t, set.ID, constants.BatchKindSupplemental); got != 1 {
		t.Fatalf("expected exactly 1 supplemental batch, got %d", got)
	}
	if q := f.reloadSet(t, set.ID).Quantity; q != 105 {
		t.Fatalf("expected quantity 105, got %d", q)
	}
	for code, n := range codes {
		if n > 1 {
			t.Fatalf("code %s handed out %d times", code, n)
		}
	}
	counts, _ := f.codeRepo.CountsBySet(ctx, set.ID)
	if int(counts.Revealed) != success {
		t.Fatalf("revealed rows (%d) must equal successful reveals (%d)", counts.Revealed, success)
	}
}

func TestRevealRejectsInactiveDeletedAndExpiredSets(t *testing.T) {
	f := setupEngineTest(t)
	ctx := context.Background()

	inactive, _ := f.createSet(t, 1, false)
	if err := f.sets.Deactivate(ctx, inactive.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := f.reveals.RevealNext(ctx, inactive.ID); !errors.Is(err, ErrSetInactive) {
		t.Fatalf("expected inactive error, got %v", err)
	}
	if err := f.sets.Activate(ctx, inactive.ID); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if _, err := f.reveals.RevealNext(ctx, inactive.ID); err != nil {
		t.Fatalf("reactivated set should reveal: %v", err)
	}

	deleted, _ := f.createSet(t, 1, false)
	if err := f.sets.Delete(ctx, deleted.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := f.reveals.RevealNext(ctx, deleted.ID); !errors.Is(err, ErrSetNotFound) {
		t.Fatalf("expected not found for deleted set, got %v", err)
	}
	if err := f.sets.Activate(ctx, deleted.ID); !errors.Is(err, ErrSetNotFound) {
		t.Fatalf("deleted set must stay terminal, got %v", err)
	}

	startsAt := time.Now().Add(-2 * time.Hour)
	endsAt := time.Now().Add(-time.Hour)
	expired, _, err := f.sets.Create(ctx, CreateSetInput{
		MerchantID:   f.merchant.ID,
		Title:        "expired",
		CodePrefix:   "OLD-",
		CodeLength:   4,
		Quantity:     1,
		DiscountType: constants.DiscountTypeFixed,
		Value:        mustMoney(t, "5"),
		StartsAt:     &startsAt,
		EndsAt:       &endsAt,
	})
	if err != nil {
		t.Fatalf("create expired set failed: %v", err)
	}
	_, err = f.reveals.RevealNext(ctx, expired.ID)
	if !errors.Is(err, ErrSetOutOfWindow) || KindOf(err) != KindInactive {
		t.Fatalf("expected out of window, got %v", err)
	}

	if _, err := f.reveals.RevealNext(ctx, 0); KindOf(err) != KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := f.reveals.RevealNext(ctx, 9999); !errors.Is(err, ErrSetNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRevealCodeIsIdempotent(t *testing.T) {
	f := setupEngineTest(t)
	set, batch := f.createSet(t, 3, false)
	ctx := context.Background()
	code := batch.Created[1].Code

	first, err := f.reveals.RevealCode(ctx, set.ID, code)
	if err != nil {
		t.Fatalf("reveal code failed: %v", err)
	}
	if first.RevealedAt == nil {
		t.Fatalf("expected revealed timestamp")
	}
	stored, _ := f.codeRepo.GetBySetAndCode(ctx, set.ID, code)
	revealedAt := *stored.RevealedAt

	second, err := f.reveals.RevealCode(ctx, set.ID, code)
	if err != nil {
		t.Fatalf("repeat reveal failed: %v", err)
	}
	if second.Code != code {
		t.Fatalf("expected same code, got %s", second.Code)
	}
	again, _ := f.codeRepo.GetBySetAndCode(ctx, set.ID, code)
	if !again.RevealedAt.Equal(revealedAt) {
		t.Fatalf("revealed timestamp must not change on repeat reveal")
	}
	counts, _ := f.codeRepo.CountsBySet(ctx, set.ID)
	if counts.Revealed != 1 {
		t.Fatalf("expected 1 revealed code, got %d", counts.Revealed)
	}

	if _, err := f.reveals.RevealCode(ctx, set.ID, "VIP-none"); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected code not found, got %v", err)
	}
}

func TestSetRevealedIsOneWay(t *testing.T) {
	f := setupEngineTest(t)
	_, batch := f.createSet(t, 2, false)
	ctx := context.Background()
	code := batch.Created[0].Code

	changed, err := f.reveals.SetRevealed(ctx, code, constants.RevealStatusRevealed)
	if err != nil || !changed {
		t.Fatalf("expected reveal to change state: %v %v", changed, err)
	}
	changed, err = f.reveals.SetRevealed(ctx, code, constants.RevealStatusRevealed)
	if err != nil || changed {
		t.Fatalf("repeat reveal must be a no-op: %v %v", changed, err)
	}
	if _, err := f.reveals.SetRevealed(ctx, code, constants.RevealStatusHidden); !errors.Is(err, ErrRevealIrreversible) {
		t.Fatalf("expected irreversible error, got %v", err)
	}
	if _, err := f.reveals.SetRevealed(ctx, code, 7); KindOf(err) != KindInvalidInput {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := f.reveals.SetRevealed(ctx, "missing", constants.RevealStatusRevealed); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	stored, _ := f.codeRepo.GetByCode(ctx, code)
	if stored == nil || !stored.Revealed {
		t.Fatalf("code should remain revealed: %+v", stored)
	}
}

func TestCodeStatus(t *testing.T) {
	f := setupEngineTest(t)
	set, batch := f.createSet(t, 2, false)
	ctx := context.Background()

	unused, err := f.reveals.CodeStatus(ctx, set.ID, batch.Created[0].Code)
	if err != nil || !unused {
		t.Fatalf("fresh code should be unused: %v %v", unused, err)
	}
	if _, err := f.redemptions.RecordOrder(ctx, OrderEvent{
		MerchantID: testShopDomain,
		OrderID:    "5001",
		TotalPrice: mustMoney(t, "20"),
		Codes:      []string{batch.Created[0].Code},
	}); err != nil {
		t.Fatalf("record order failed: %v", err)
	}
	unused, err = f.reveals.CodeStatus(ctx, set.ID, batch.Created[0].Code)
	if err != nil || unused {
		t.Fatalf("redeemed code should be used: %v %v", unused, err)
	}
	unused, err = f.reveals.CodeStatus(ctx, set.ID, "VIP-nope")
	if err != nil || unused {
		t.Fatalf("unknown code should report false: %v %v", unused, err)
	}
	if _, err := f.reveals.CodeStatus(ctx, 4242, batch.Created[1].Code); !errors.Is(err, ErrSetNotFound) {
		t.Fatalf("expected set not found, got %v", err)
	}
}

func TestLoadSetWithoutCache(t *testing.T) {
	f := setupEngineTest(t)
	set, _ := f.createSet(t, 1, false)
	snapshot, err := f.reveals.loadSet(context.Background(), set.ID)
	if err != nil {
		t.Fatalf("load set failed: %v", err)
	}
	if snapshot.CodePrefix != "VIP-" || !snapshot.IsActive {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}
