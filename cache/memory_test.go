package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache(10, 1024)

	mc.Set("requests", []byte("2.31.0"), time.Minute)

	got, ok := mc.Get("requests")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != "2.31.0" {
		t.Errorf("value = %q, want %q", got, "2.31.0")
	}

	if _, ok := mc.Get("missing"); ok {
		t.Error("expected cache miss for unknown key")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache(10, 1024)

	mc.Set("k", []byte("v"), -time.Second)

	if _, ok := mc.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	if mc.Stats().Entries != 0 {
		t.Error("expired entry should be removed on access")
	}
}

func TestMemoryCacheEvictsByCount(t *testing.T) {
	mc := NewMemoryCache(3, 1<<20)

	for i := 0; i < 5; i++ {
		mc.Set(fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}

	if got := mc.Stats().Entries; got != 3 {
		t.Errorf("entries = %d, want 3", got)
	}

	// Oldest entries were evicted.
	if _, ok := mc.Get("k0"); ok {
		t.Error("expected k0 to be evicted")
	}
	if _, ok := mc.Get("k4"); !ok {
		t.Error("expected k4 to survive")
	}
}

func TestMemoryCacheEvictsBySize(t *testing.T) {
	mc := NewMemoryCache(100, 10)

	mc.Set("a", []byte("12345"), time.Minute)
	mc.Set("b", []byte("12345"), time.Minute)
	mc.Set("c", []byte("12345"), time.Minute)

	stats := mc.Stats()
	if stats.SizeBytes > 10 {
		t.Errorf("size = %d, want <= 10", stats.SizeBytes)
	}
}

func TestMemoryCacheGetReturnsCopy(t *testing.T) {
	mc := NewMemoryCache(10, 1024)
	mc.Set("k", []byte("abc"), time.Minute)

	got, _ := mc.Get("k")
	got[0] = 'X'

	again, _ := mc.Get("k")
	if string(again) != "abc" {
		t.Errorf("cached value mutated: %q", again)
	}
}

func TestMemoryCacheClear(t *testing.T) {
	mc := NewMemoryCache(10, 1024)
	mc.Set("k", []byte("v"), time.Minute)

	mc.Clear()

	if mc.Stats().Entries != 0 || mc.Stats().SizeBytes != 0 {
		t.Error("expected empty cache after Clear")
	}
}
