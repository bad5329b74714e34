package cache

import (
	"context"
	"sync"
	"time"
)

// localCache 自带过期清理的进程内缓存
type localCache struct {
	config LocalConfig
	mu     sync.RWMutex
	items  map[string]*cacheItem
	stop   chan struct{}
}

type cacheItem struct {
	value      interface{}
	expiration time.Time // 零值表示不过期
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) Cache {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 10 * time.Minute
	}
	lc := &localCache{
		config: config,
		items:  make(map[string]*cacheItem),
		stop:   make(chan struct{}),
	}
	go lc.startCleanup()
	return lc
}

func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	lc.mu.RLock()
	item, exists := lc.items[key]
	lc.mu.RUnlock()
	if !exists || item.expired(time.Now()) {
		return nil, false
	}
	return item.value, true
}

func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = lc.config.DefaultExpiration
	}
	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}
	lc.mu.Lock()
	lc.items[key] = &cacheItem{value: value, expiration: exp}
	lc.mu.Unlock()
	return nil
}

func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.mu.Lock()
	delete(lc.items, key)
	lc.mu.Unlock()
	return nil
}

func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, ok := lc.Get(ctx, key)
	return ok
}

func (lc *localCache) GetWithTTL(ctx context.Context, key string) (interface{}, time.Duration, bool) {
	lc.mu.RLock()
	item, exists := lc.items[key]
	lc.mu.RUnlock()
	now := time.Now()
	if !exists || item.expired(now) {
		return nil, 0, false
	}
	var ttl time.Duration
	if !item.expiration.IsZero() {
		ttl = item.expiration.Sub(now)
	}
	return item.value, ttl, true
}

func (lc *localCache) Clear(ctx context.Context) error {
	lc.mu.Lock()
	lc.items = make(map[string]*cacheItem)
	lc.mu.Unlock()
	return nil
}

func (lc *localCache) Close() error {
	close(lc.stop)
	return nil
}

func (item *cacheItem) expired(now time.Time) bool {
	return !item.expiration.IsZero() && now.After(item.expiration)
}

// startCleanup 周期清理过期项
func (lc *localCache) startCleanup() {
	ticker := time.NewTicker(lc.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-lc.stop:
			return
		case <-ticker.C:
			now := time.Now()
			lc.mu.Lock()
			for key, item := range lc.items {
				if item.expired(now) {
					delete(lc.items, key)
				}
			}
			lc.mu.Unlock()
		}
	}
}
