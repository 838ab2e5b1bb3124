package middleware

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/scttfrdmn/toolplan/toolplan"
)

// CachingConfig configures caching behavior.
type CachingConfig struct {
	// MaxCacheSize is the maximum number of entries in the cache.
	// Default: 1000
	MaxCacheSize int

	// DefaultTTL is the time-to-live for cache entries.
	// Default: 5 minutes
	DefaultTTL time.Duration

	// KeyGenerator is an optional custom function to generate cache keys.
	// If nil, a SHA256 of the tool name and JSON-encoded parameters is used.
	KeyGenerator func(tool string, params map[string]interface{}) string
}

// DefaultCachingConfig returns a caching config with sensible defaults.
func DefaultCachingConfig() CachingConfig {
	return CachingConfig{
		MaxCacheSize: 1000,
		DefaultTTL:   5 * time.Minute,
	}
}

// Validate validates the caching configuration.
func (c *CachingConfig) Validate() error {
	if c.MaxCacheSize < 1 {
		return fmt.Errorf("max_cache_size must be at least 1, got %d", c.MaxCacheSize)
	}
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be positive, got %v", c.DefaultTTL)
	}
	return nil
}

// CacheStats is a point-in-time view of the cache counters.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// HitRate returns hits / (hits + misses), or 0 before the first lookup.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type cacheEntry struct {
	key       string
	result    *toolplan.ToolResult
	expiresAt time.Time
}

// CachingDecorator wraps a tool with an LRU cache of successful results.
//
// Error results and invocation errors are never cached.
type CachingDecorator struct {
	tool   toolplan.Tool
	config CachingConfig
	now    func() time.Time

	mu      sync.Mutex
	cache   map[string]*list.Element
	lruList *list.List
	stats   CacheStats
}

var _ toolplan.Tool = (*CachingDecorator)(nil)

// NewCachingDecorator creates a new caching decorator.
func NewCachingDecorator(tool toolplan.Tool, config CachingConfig) (*CachingDecorator, error) {
	if config.MaxCacheSize == 0 {
		config.MaxCacheSize = 1000
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &CachingDecorator{
		tool:    tool,
		config:  config,
		now:     time.Now,
		cache:   make(map[string]*list.Element),
		lruList: list.New(),
	}, nil
}

// Name returns the name of the underlying tool.
func (c *CachingDecorator) Name() string { return c.tool.Name() }

// Description returns the description of the underlying tool.
func (c *CachingDecorator) Description() string { return c.tool.Description() }

// Parameters returns the parameters of the underlying tool.
func (c *CachingDecorator) Parameters() []toolplan.ParamSpec { return c.tool.Parameters() }

// Stats returns the cache counters.
func (c *CachingDecorator) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.cache)
	return s
}

func (c *CachingDecorator) cacheKey(params map[string]interface{}) string {
	if c.config.KeyGenerator != nil {
		return c.config.KeyGenerator(c.tool.Name(), params)
	}
	// json.Marshal sorts map keys, so equal params hash equally.
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", c.tool.Name(), params)
	}
	sum := sha256.Sum256(append([]byte(c.tool.Name()+"\x00"), data...))
	return fmt.Sprintf("%x", sum)
}

// must be called with c.mu held
func (c *CachingDecorator) remove(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.lruList.Remove(elem)
	delete(c.cache, entry.key)
}

// Execute returns a cached result when one is fresh, otherwise runs the tool.
func (c *CachingDecorator) Execute(ctx context.Context, params map[string]interface{}) (*toolplan.ToolResult, error) {
	key := c.cacheKey(params)

	c.mu.Lock()
	if elem, ok := c.cache[key]; ok {
		entry := elem.Value.(*cacheEntry)
		if c.now().Before(entry.expiresAt) {
			c.lruList.MoveToFront(elem)
			c.stats.Hits++
			res := entry.result
			c.mu.Unlock()
			return res, nil
		}
		c.remove(elem)
		c.stats.Evictions++
	}
	c.stats.Misses++
	c.mu.Unlock()

	res, err := c.tool.Execute(ctx, params)
	if err != nil || res == nil || !res.Success {
		return res, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.remove(elem)
	}
	for c.lruList.Len() >= c.config.MaxCacheSize {
		c.remove(c.lruList.Back())
		c.stats.Evictions++
	}
	c.cache[key] = c.lruList.PushFront(&cacheEntry{
		key:       key,
		result:    res,
		expiresAt: c.now().Add(c.config.DefaultTTL),
	})
	return res, nil
}

// Invalidate drops the entry for params, or the whole cache when params is nil.
func (c *CachingDecorator) Invalidate(params map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if params == nil {
		c.cache = make(map[string]*list.Element)
		c.lruList.Init()
		return
	}
	if elem, ok := c.cache[c.cacheKey(params)]; ok {
		c.remove(elem)
	}
}
