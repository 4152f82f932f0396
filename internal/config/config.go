package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Engine    EngineConfig    `mapstructure:"engine"`
	OrderSync OrderSyncConfig `mapstructure:"order_sync"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host                  string `mapstructure:"host"`
	Port                  string `mapstructure:"port"`
	Mode                  string `mapstructure:"mode"` // debug / release
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// RequestTimeout 单个请求的处理超时
func (c ServerConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
	MaxRetry    int            `mapstructure:"max_retry"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// PlatformConfig 电商平台（促销规则 API）配置
type PlatformConfig struct {
	BaseURLTemplate string `mapstructure:"base_url_template"` // 例如 https://%s/admin/api/2024-01
	APIVersion      string `mapstructure:"api_version"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	MaxRetries      int    `mapstructure:"max_retries"`
	BatchChunkSize  int    `mapstructure:"batch_chunk_size"`
	WebhookSecret   string `mapstructure:"webhook_secret"`
}

// Timeout 单次平台请求超时
func (c PlatformConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 12 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EngineConfig 发码引擎配置
type EngineConfig struct {
	ReplenishThreshold float64 `mapstructure:"replenish_threshold"`
	ReplenishSize      int     `mapstructure:"replenish_size"`
	MaxBatchSize       int     `mapstructure:"max_batch_size"`
	ClaimAttempts      int     `mapstructure:"claim_attempts"`
	UniqueRetries      int     `mapstructure:"unique_retries"`
	SetCacheSeconds    int     `mapstructure:"set_cache_seconds"`
}

// OrderSyncConfig 订单轮询同步配置
type OrderSyncConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	IntervalSeconds  int    `mapstructure:"interval_seconds"`
	LookbackDays     int    `mapstructure:"lookback_days"`
	SessionAttribute string `mapstructure:"session_attribute"`
	Concurrency      int    `mapstructure:"concurrency"`
}

// ReconcileConfig 批次补偿同步配置
type ReconcileConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	IntervalSeconds   int  `mapstructure:"interval_seconds"`
	StaleAfterSeconds int  `mapstructure:"stale_after_seconds"`
	MaxAttempts       int  `mapstructure:"max_attempts"`
}

// KafkaConfig 订单事件流配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// RateLimitConfig 店面代理接口限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	// .env 仅用于本地开发，不存在时忽略
	if err := godotenv.Load(); err == nil {
		logger.Infow("dotenv_loaded")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("./etc")

	setDefaults(viper.GetViper())

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	cfg.Engine = cfg.Engine.Normalize()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.request_timeout_seconds", 15)
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/discount.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	v.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "dce")
	v.SetDefault("queue.enabled", true)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.password", "")
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.max_retry", 8)
	v.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Content-Length",
		"Accept-Encoding",
		"Authorization",
		"Cache-Control",
		"X-Requested-With",
	})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("platform.base_url_template", "https://%s/admin/api/%s")
	v.SetDefault("platform.api_version", "2024-01")
	v.SetDefault("platform.timeout_seconds", 12)
	v.SetDefault("platform.max_retries", 4)
	v.SetDefault("platform.batch_chunk_size", 100)
	v.SetDefault("platform.webhook_secret", "")
	v.SetDefault("engine.replenish_threshold", DefaultReplenishThreshold)
	v.SetDefault("engine.replenish_size", DefaultReplenishSize)
	v.SetDefault("engine.max_batch_size", DefaultMaxBatchSize)
	v.SetDefault("engine.claim_attempts", DefaultClaimAttempts)
	v.SetDefault("engine.unique_retries", DefaultUniqueRetries)
	v.SetDefault("engine.set_cache_seconds", 60)
	v.SetDefault("order_sync.enabled", false)
	v.SetDefault("order_sync.interval_seconds", 900)
	v.SetDefault("order_sync.lookback_days", 7)
	v.SetDefault("order_sync.session_attribute", "discount_session_id")
	v.SetDefault("order_sync.concurrency", 4)
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval_seconds", 300)
	v.SetDefault("reconcile.stale_after_seconds", 120)
	v.SetDefault("reconcile.max_attempts", 10)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic", "orders.created")
	v.SetDefault("kafka.group_id", "discount-engine")
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("rate_limit.max_requests", 120)
}
