package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dujiao-next/discount-engine/internal/constants"
)

func TestReplenishmentBelowThresholdDoesNothing(t *testing.T) {
	f := setupEngineTest(t)
	set, batch := f.createSet(t, 10, true)
	ctx := context.Background()
	if rule, _ := f.rules.rule(f.reloadSet(t, set.ID).PriceRuleID); rule.UsageLimit != 10 {
		t.Fatalf("expected initial usage limit 10, got %d", rule.UsageLimit)
	}
	for i := 0; i < 7; i++ {
		if _, err := f.codeRepo.MarkRevealed(ctx, batch.Created[i].ID, time.Now()); err != nil {
			t.Fatalf("seed reveal failed: %v", err)
		}
	}

	outcome, err := f.replenisher.Evaluate(ctx, set.ID)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if outcome.Triggered {
		t.Fatalf("70%% revealed must not trigger")
	}
	if outcome.RevealedCount != 7 || outcome.FromQuantity != 10 || outcome.ToQuantity != 10 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if got := f.countBatches(t, set.ID, constants.BatchKindSupplemental); got != 0 {
		t.Fatalf("expected no supplemental batch, got %d", got)
	}
}

func TestReplenishmentAtThresholdTriggersOnce(t *testing.T) {
	f := setupEngineTest(t)
	set, batch := f.createSet(t, 10, true)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		if _, err := f.codeRepo.MarkRevealed(ctx, batch.Created[i].ID, time.Now()); err != nil {
			t.Fatalf("seed reveal failed: %v", err)
		}
	}

	outcome, err := f.replenisher.Evaluate(ctx, set.ID)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !outcome.Triggered || outcome.ToQuantity != 110 {
		t.Fatalf("expected trigger to 110, got %+v", outcome)
	}
	if outcome.Batch == nil || len(outcome.Batch.Created) != 100 {
		t.Fatalf("expected supplemental batch of 100 codes")
	}
	reloaded := f.reloadSet(t, set.ID)
	rule, updates := f.rules.rule(reloaded.PriceRuleID)
	if updates != 1 || rule.UsageLimit != 110 {
		t.Fatalf("expected price rule updated to usage limit 110, got limit=%d updates=%d", rule.UsageLimit, updates)
	}

	again, err := f.replenisher.Evaluate(ctx, set.ID)
	if err != nil {
		t.Fatalf("second evaluate failed: %v", err)
	}
	if again.Triggered {
		t.Fatalf("8/110 must not trigger again")
	}
	events, err := f.replenisher.History(ctx, set.ID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(events) != 1 || events[0].RevealedCount != 8 {
		t.Fatalf("unexpected history: %+v", events)
	}
}

func TestReplenishmentSkipsWhenDisabled(t *testing.T) {
	f := setupEngineTest(t)
	set, batch := f.createSet(t, 4, false)
	ctx := context.Background()
	for _, code := range batch.Created {
		if _, err := f.codeRepo.MarkRevealed(ctx, code.ID, time.Now()); err != nil {
			t.Fatalf("seed reveal failed: %v", err)
		}
	}

	outcome, err := f.replenisher.Evaluate(ctx, set.ID)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if outcome.Triggered {
		t.Fatalf("auto_replenish=false must not trigger")
	}
	if reloaded := f.reloadSet(t, set.ID); reloaded.Quantity != 4 {
		t.Fatalf("quantity changed: %d", reloaded.Quantity)
	}

	if err := f.sets.Deactivate(ctx, set.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	outcome, err = f.replenisher.Evaluate(ctx, set.ID)
	if err != nil || outcome.Triggered {
		t.Fatalf("inactive set must not trigger: %+v %v", outcome, err)
	}
}

func TestReplenishmentHistoryRejectsZeroID(t *testing.T) {
	f := setupEngineTest(t)
	if _, err := f.replenisher.History(context.Background(), 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	outcome, err := f.replenisher.Evaluate(context.Background(), 0)
	if err != nil || outcome.Triggered {
		t.Fatalf("zero id must be a no-op: %+v %v", outcome, err)
	}
}
