package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "value1" {
		t.Errorf("expected 'value1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_DeletePrefix(t *testing.T) {
	c := cache.New[int](5 * time.Minute)
	defer c.Close()

	c.Set("notifications:user-1:list", 1)
	c.Set("notifications:user-1:unread", 2)
	c.Set("notifications:user-2:list", 3)

	c.DeletePrefix("notifications:user-1:")

	if _, ok := c.Get("notifications:user-1:list"); ok {
		t.Error("expected user-1 list to be removed")
	}
	if _, ok := c.Get("notifications:user-1:unread"); ok {
		t.Error("expected user-1 unread to be removed")
	}
	if v, ok := c.Get("notifications:user-2:list"); !ok || v != 3 {
		t.Error("expected user-2 entry to survive")
	}
}
