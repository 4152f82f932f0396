package config

const (
	DefaultReplenishThreshold = 0.80
	DefaultReplenishSize      = 100
	DefaultMaxBatchSize       = 10000
	DefaultClaimAttempts      = 5
	DefaultUniqueRetries      = 5
)

// Normalize 补齐引擎配置的非法值
func (c EngineConfig) Normalize() EngineConfig {
	if c.ReplenishThreshold <= 0 || c.ReplenishThreshold > 1 {
		c.ReplenishThreshold = DefaultReplenishThreshold
	}
	if c.ReplenishSize <= 0 {
		c.ReplenishSize = DefaultReplenishSize
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.ClaimAttempts <= 0 {
		c.ClaimAttempts = DefaultClaimAttempts
	}
	if c.UniqueRetries <= 0 {
		c.UniqueRetries = DefaultUniqueRetries
	}
	if c.SetCacheSeconds < 0 {
		c.SetCacheSeconds = 0
	}
	return c
}

// DefaultEngineConfig 默认引擎配置（测试与未加载配置时使用）
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{}.Normalize()
}
