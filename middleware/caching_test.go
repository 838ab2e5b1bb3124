package middleware

import (
	"context"
	"sync"
	"testing"
	"time"
)

// ============================================
// Configuration Tests
// ============================================

func TestCachingConfigValidation(t *testing.T) {
	if _, err := NewCachingDecorator(&scriptedTool{}, CachingConfig{MaxCacheSize: -1}); err == nil {
		t.Error("Expected error for negative cache size")
	}
	if _, err := NewCachingDecorator(&scriptedTool{}, CachingConfig{DefaultTTL: -time.Second}); err == nil {
		t.Error("Expected error for negative TTL")
	}
	c, err := NewCachingDecorator(&scriptedTool{}, CachingConfig{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.config.MaxCacheSize != 1000 || c.config.DefaultTTL != 5*time.Minute {
		t.Errorf("Unexpected defaults: %+v", c.config)
	}
}

// ============================================
// Hit / Miss
// ============================================

func TestCacheHit(t *testing.T) {
	tool := &scriptedTool{}
	c, _ := NewCachingDecorator(tool, DefaultCachingConfig())

	first, _ := c.Execute(context.Background(), args("seoul"))
	second, _ := c.Execute(context.Background(), args("seoul"))

	if first.Output != second.Output {
		t.Errorf("Expected cached output, got %q then %q", first.Output, second.Output)
	}
	if tool.Calls() != 1 {
		t.Errorf("Expected 1 underlying call, got %d", tool.Calls())
	}
	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.HitRate() != 0.5 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestCacheMissDifferentParams(t *testing.T) {
	tool := &scriptedTool{}
	c, _ := NewCachingDecorator(tool, DefaultCachingConfig())

	_, _ = c.Execute(context.Background(), args("seoul"))
	_, _ = c.Execute(context.Background(), args("busan"))
	if tool.Calls() != 2 {
		t.Errorf("Expected 2 underlying calls, got %d", tool.Calls())
	}
}

func TestCacheSkipsErrorResults(t *testing.T) {
	tool := &scriptedTool{errText: "unknown city"}
	c, _ := NewCachingDecorator(tool, DefaultCachingConfig())

	_, _ = c.Execute(context.Background(), args("atlantis"))
	_, _ = c.Execute(context.Background(), args("atlantis"))
	if tool.Calls() != 2 {
		t.Errorf("Error results must not be cached; got %d calls", tool.Calls())
	}
	if c.Stats().Size != 0 {
		t.Errorf("Expected empty cache, got %d entries", c.Stats().Size)
	}
}

// ============================================
// Expiry and Eviction
// ============================================

func TestTTLExpiration(t *testing.T) {
	tool := &scriptedTool{}
	c, _ := NewCachingDecorator(tool, CachingConfig{DefaultTTL: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, _ = c.Execute(context.Background(), args("x"))
	now = now.Add(2 * time.Minute)
	res, _ := c.Execute(context.Background(), args("x"))

	if res.Output != "x #2" {
		t.Errorf("Expected fresh result after expiry, got %q", res.Output)
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestLRUEviction(t *testing.T) {
	tool := &scriptedTool{}
	c, _ := NewCachingDecorator(tool, CachingConfig{MaxCacheSize: 2})

	_, _ = c.Execute(context.Background(), args("a"))
	_, _ = c.Execute(context.Background(), args("b"))
	_, _ = c.Execute(context.Background(), args("a")) // a is now most recent
	_, _ = c.Execute(context.Background(), args("c")) // evicts b

	calls := tool.Calls()
	_, _ = c.Execute(context.Background(), args("a"))
	if tool.Calls() != calls {
		t.Error("Expected 'a' to stay cached")
	}
	_, _ = c.Execute(context.Background(), args("b"))
	if tool.Calls() != calls+1 {
		t.Error("Expected 'b' to have been evicted")
	}
}

func TestInvalidate(t *testing.T) {
	tool := &scriptedTool{}
	c, _ := NewCachingDecorator(tool, DefaultCachingConfig())

	_, _ = c.Execute(context.Background(), args("a"))
	_, _ = c.Execute(context.Background(), args("b"))

	c.Invalidate(args("a"))
	if c.Stats().Size != 1 {
		t.Errorf("Expected 1 entry after targeted invalidation, got %d", c.Stats().Size)
	}
	c.Invalidate(nil)
	if c.Stats().Size != 0 {
		t.Errorf("Expected empty cache, got %d", c.Stats().Size)
	}
}

func TestCustomKeyGenerator(t *testing.T) {
	tool := &scriptedTool{}
	c, _ := NewCachingDecorator(tool, CachingConfig{
		KeyGenerator: func(name string, params map[string]interface{}) string { return name },
	})

	_, _ = c.Execute(context.Background(), args("a"))
	_, _ = c.Execute(context.Background(), args("b"))
	if tool.Calls() != 1 {
		t.Errorf("Expected one shared key, got %d calls", tool.Calls())
	}
}

// ============================================
// Concurrency
// ============================================

func TestConcurrentCacheAccess(t *testing.T) {
	c, _ := NewCachingDecorator(&scriptedTool{}, CachingConfig{MaxCacheSize: 5})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := string(rune('a' + i%10))
			if _, err := c.Execute(context.Background(), args(q)); err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if size := c.Stats().Size; size > 5 {
		t.Errorf("Cache grew past its limit: %d", size)
	}
}
