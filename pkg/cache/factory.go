package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NewCache 创建缓存实例
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case "local", "":
		return NewLocalCache(config.Local), nil
	case "gocache":
		return NewGoCache(config.Local), nil
	case "redis":
		return NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}

// NewLayeredCache 创建分层缓存：本地一级 + Redis 二级。
// 位置缓存用它保证崩溃/重启后仍可从 Redis 拿到最后已知位置
func NewLayeredCache(config Config) (Cache, error) {
	if strings.ToLower(config.Type) != "redis" {
		return NewCache(config)
	}
	distributed, err := NewRedisCache(config.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return &layeredCache{
		local:       NewLocalCache(config.Local),
		distributed: distributed,
	}, nil
}

// layeredCache 分层缓存实现
type layeredCache struct {
	local       Cache
	distributed Cache
}

// Get 先查本地，未命中再查分布式并回填
func (lc *layeredCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if value, exists := lc.local.Get(ctx, key); exists {
		return value, true
	}
	if value, exists := lc.distributed.Get(ctx, key); exists {
		lc.local.Set(ctx, key, value, 0)
		return value, true
	}
	return nil, false
}

// Set 同时写两层
func (lc *layeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.distributed.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.local.Set(ctx, key, value, expiration)
}

func (lc *layeredCache) Delete(ctx context.Context, key string) error {
	if err := lc.local.Delete(ctx, key); err != nil {
		return err
	}
	return lc.distributed.Delete(ctx, key)
}

func (lc *layeredCache) Exists(ctx context.Context, key string) bool {
	return lc.local.Exists(ctx, key) || lc.distributed.Exists(ctx, key)
}

func (lc *layeredCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	if value, ttl, ok := lc.local.GetWithTTL(ctx, key); ok {
		return value, ttl, true
	}
	return lc.distributed.GetWithTTL(ctx, key)
}

func (lc *layeredCache) Clear(ctx context.Context) error {
	if err := lc.local.Clear(ctx); err != nil {
		return err
	}
	return lc.distributed.Clear(ctx)
}

func (lc *layeredCache) Close() error {
	if err := lc.local.Close(); err != nil {
		return err
	}
	return lc.distributed.Close()
}
