package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"VoyagerGuard/pkg/cache"

	"github.com/gin-gonic/gin"
)

// IdemStore 幂等键存储，Set 返回 true 表示首次出现
type IdemStore interface {
	Set(key string, ttl time.Duration) bool
}

type memoryIdemStore struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func newMemoryIdemStore() *memoryIdemStore { return &memoryIdemStore{m: make(map[string]time.Time)} }

func (s *memoryIdemStore) Set(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if exp, ok := s.m[key]; ok && exp.After(now) {
		return false
	}
	s.m[key] = now.Add(ttl)
	return true
}

func (s *memoryIdemStore) gc() {
	for {
		time.Sleep(time.Minute)
		now := time.Now()
		s.mu.Lock()
		for k, exp := range s.m {
			if exp.Before(now) {
				delete(s.m, k)
			}
		}
		s.mu.Unlock()
	}
}

// CacheIdemStore 把幂等键放进 pkg/cache，多实例部署时用 Redis 层共享抑制窗口
type CacheIdemStore struct {
	Cache cache.Cache
}

func (s *CacheIdemStore) Set(key string, ttl time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	full := "idem:" + key
	if s.Cache.Exists(ctx, full) {
		return false
	}
	return s.Cache.Set(ctx, full, "1", ttl) == nil
}

// IdempotencyConfig 重复触发抑制窗口的配置
type IdempotencyConfig struct {
	HeaderName string        // 默认 Idempotency-Key
	TTL        time.Duration // 窗口时长，默认 10 分钟
	Store      IdemStore     // 不传用进程内存储
}

// Idempotency 守住 SOS 触发端点：同一键在窗口内的重复请求回 409。
// 没带键的请求按请求体哈希兜底，抖动的客户端连点也会被吸收
func Idempotency(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	store := cfg.Store
	if store == nil {
		mem := newMemoryIdemStore()
		store = mem
		go mem.gc()
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			body, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(strings.NewReader(string(body)))
			sum := sha256.Sum256(append([]byte(c.FullPath()+"|"), body...))
			key = hex.EncodeToString(sum[:])
		}
		if !store.Set(key, cfg.TTL) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"code": 1, "message": "duplicate request"})
			return
		}
		c.Next()
	}
}
