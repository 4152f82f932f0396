package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestEngineConfigNormalize(t *testing.T) {
	got := EngineConfig{ReplenishThreshold: 1.5, ReplenishSize: -1}.Normalize()
	if got.ReplenishThreshold != DefaultReplenishThreshold {
		t.Fatalf("unexpected threshold: %v", got.ReplenishThreshold)
	}
	if got.ReplenishSize != DefaultReplenishSize {
		t.Fatalf("unexpected replenish size: %d", got.ReplenishSize)
	}
	if got.ClaimAttempts != DefaultClaimAttempts || got.UniqueRetries != DefaultUniqueRetries {
		t.Fatalf("unexpected retry defaults: %+v", got)
	}

	kept := EngineConfig{ReplenishThreshold: 0.5, ReplenishSize: 20}.Normalize()
	if kept.ReplenishThreshold != 0.5 || kept.ReplenishSize != 20 {
		t.Fatalf("valid values should be kept: %+v", kept)
	}
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		t.Fatalf("unmarshal defaults failed: %v", err)
	}
	if cfg.Engine.ReplenishSize != 100 {
		t.Fatalf("expected replenish size 100, got %d", cfg.Engine.ReplenishSize)
	}
	if cfg.OrderSync.LookbackDays != 7 {
		t.Fatalf("expected lookback 7 days, got %d", cfg.OrderSync.LookbackDays)
	}
	if cfg.Platform.BatchChunkSize != 100 {
		t.Fatalf("expected chunk size 100, got %d", cfg.Platform.BatchChunkSize)
	}
	if cfg.Server.RequestTimeout().Seconds() != 15 {
		t.Fatalf("unexpected request timeout: %v", cfg.Server.RequestTimeout())
	}
}
