package cache

import (
	"context"
	"testing"
	"time"
)

func TestLocalCache(t *testing.T) {
	config := LocalConfig{
		DefaultExpiration: 5 * time.Minute,
		CleanupInterval:   10 * time.Minute,
	}

	cache := NewLocalCache(config)
	defer cache.Close()

	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		err := cache.Set(ctx, "test_key", "test_value", time.Minute)
		if err != nil {
			t.Errorf("Failed to set cache: %v", err)
		}

		if retrieved, exists := cache.Get(ctx, "test_key"); !exists {
			t.Error("Cache value not found")
		} else if retrieved != "test_value" {
			t.Errorf("Expected %v, got %v", "test_value", retrieved)
		}
	})

	t.Run("No expiration keeps value", func(t *testing.T) {
		noExpire := NewLocalCache(LocalConfig{DefaultExpiration: 0, CleanupInterval: time.Minute})
		defer noExpire.Close()

		if err := noExpire.Set(ctx, "last_location", "22.5726,88.3639", 0); err != nil {
			t.Fatalf("Failed to set cache: %v", err)
		}
		value, ttl, ok := noExpire.GetWithTTL(ctx, "last_location")
		if !ok {
			t.Fatal("Cache value not found")
		}
		if ttl != 0 {
			t.Errorf("Expected no TTL, got %v", ttl)
		}
		if value != "22.5726,88.3639" {
			t.Errorf("Unexpected value: %v", value)
		}
	})

	t.Run("Expired value is gone", func(t *testing.T) {
		if err := cache.Set(ctx, "ephemeral", 1, 10*time.Millisecond); err != nil {
			t.Fatalf("Failed to set cache: %v", err)
		}
		time.Sleep(30 * time.Millisecond)
		if _, exists := cache.Get(ctx, "ephemeral"); exists {
			t.Error("Expected value to be expired")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "to_delete", "x", time.Minute)
		if err := cache.Delete(ctx, "to_delete"); err != nil {
			t.Errorf("Failed to delete: %v", err)
		}
		if cache.Exists(ctx, "to_delete") {
			t.Error("Key should not exist after delete")
		}
	})
}

func TestGoCache(t *testing.T) {
	cache := NewGoCache(LocalConfig{DefaultExpiration: time.Minute, CleanupInterval: time.Minute})
	defer cache.Close()

	ctx := context.Background()
	if err := cache.Set(ctx, "k", 42, 0); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}
	if v, ok := cache.Get(ctx, "k"); !ok || v != 42 {
		t.Errorf("Expected 42, got %v (exists=%v)", v, ok)
	}
	if err := cache.Clear(ctx); err != nil {
		t.Errorf("Failed to clear: %v", err)
	}
	if cache.Exists(ctx, "k") {
		t.Error("Key should not exist after clear")
	}
}
