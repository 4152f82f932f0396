package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dujiao-next/discount-engine/internal/config"

	"github.com/redis/go-redis/v9"
)

// Redis Redis 客户端封装，未启用时所有操作为空操作
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis 根据配置创建 Redis 客户端，未启用返回 nil
func NewRedis(cfg *config.RedisConfig) *Redis {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	addr := strings.TrimSpace(cfg.Host)
	if addr == "" {
		addr = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", addr, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisWithClient(client, cfg.Prefix)
}

// NewRedisWithClient 使用已有客户端创建封装
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if client == nil {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "dce"
	}
	return &Redis{client: client, prefix: prefix}
}

// Enabled 判断缓存是否启用
func (r *Redis) Enabled() bool {
	return r != nil && r.client != nil
}

// Client 获取 Redis 客户端
func (r *Redis) Client() *redis.Client {
	if !r.Enabled() {
		return nil
	}
	return r.client
}

// Key 拼接带前缀的缓存键
func (r *Redis) Key(key string) string {
	prefix := "dce"
	if r != nil && r.prefix != "" {
		prefix = r.prefix
	}
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return prefix
	}
	return fmt.Sprintf("%s:%s", prefix, trimmed)
}

// GetJSON 获取 JSON 缓存
func (r *Redis) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !r.Enabled() {
		return false, nil
	}
	val, err := r.client.Get(ctx, r.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func (r *Redis) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !r.Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.Key(key), payload, ttl).Err()
}

// Del 删除缓存
func (r *Redis) Del(ctx context.Context, key string) error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Del(ctx, r.Key(key)).Err()
}

// Ping 检查连接
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Ping(ctx).Err()
}

// Close 关闭连接
func (r *Redis) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.client.Close()
}
