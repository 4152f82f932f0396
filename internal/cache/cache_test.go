package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"
	"github.com/dujiao-next/discount-engine/internal/models"
)

func TestDisabledRedisIsNoop(t *testing.T) {
	r := NewRedis(&config.RedisConfig{Enabled: false})
	if r.Enabled() {
		t.Fatalf("disabled redis should not be enabled")
	}
	ctx := context.Background()
	if err := r.SetSetSnapshot(ctx, &SetSnapshot{ID: 1}, time.Minute); err != nil {
		t.Fatalf("set on disabled redis failed: %v", err)
	}
	snapshot, hit, err := r.GetSetSnapshot(ctx, 1)
	if err != nil || hit || snapshot != nil {
		t.Fatalf("disabled redis must miss: hit=%v err=%v", hit, err)
	}
	if err := r.InvalidateSetSnapshot(ctx, 1); err != nil {
		t.Fatalf("invalidate on disabled redis failed: %v", err)
	}
}

func TestKeyUsesPrefix(t *testing.T) {
	var r *Redis
	if got := r.Key("discount:set:1"); got != "dce:discount:set:1" {
		t.Fatalf("unexpected default key: %s", got)
	}
	custom := &Redis{prefix: "shop"}
	if got := custom.Key(" rl:proxy "); got != "shop:rl:proxy" {
		t.Fatalf("unexpected custom key: %s", got)
	}
}

func TestSnapshotFromSet(t *testing.T) {
	end := time.Now().Add(time.Hour)
	set := &models.DiscountSet{
		ID:          3,
		MerchantID:  9,
		CodePrefix:  "VIP-",
		CodeLength:  4,
		IsActive:    true,
		StartsAt:    time.Now().Add(-time.Hour),
		EndsAt:      &end,
		ButtonStyle: models.JSON{"button_style_type": "standard"},
	}
	snapshot := SnapshotFromSet(set)
	if snapshot.ID != 3 || snapshot.MerchantID != 9 || snapshot.CodePrefix != "VIP-" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	if !snapshot.InWindow(time.Now()) {
		t.Fatalf("snapshot should be in window")
	}
	if SnapshotFromSet(nil) != nil {
		t.Fatalf("nil set should produce nil snapshot")
	}
}
