package rate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the fixed-window budget. MaxAttempts <= 0 disables limiting.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// Counter increments a fixed-window counter and reports the count inside the window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

// Limiter enforces a per-key attempt budget over a Counter.
type Limiter struct {
	counter Counter
	config  Config
}

// New creates a Limiter. A nil Limiter allows everything.
func New(counter Counter, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 || counter == nil {
		return nil
	}
	return &Limiter{counter: counter, config: cfg}
}

// Allow records one attempt for key and returns ErrRateLimited once the budget is spent.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	count, err := l.counter.Incr(ctx, normalizeKey(key), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	return l.counter.Reset(ctx, normalizeKey(key))
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// RedisCounter keeps counters under prefix:key with INCR and EXPIRE.
type RedisCounter struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCounter returns a Counter on redisClient.
func NewRedisCounter(redisClient redis.UniversalClient, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "arl"
	}
	return &RedisCounter{redis: redisClient, prefix: prefix}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := c.prefix + ":" + key
	count, err := c.redis.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := c.redis.Expire(ctx, k, window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.prefix+":"+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

type window struct {
	count   int64
	expires time.Time
}

// MemoryCounter is an in-process Counter.
type MemoryCounter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]window
}

// NewMemoryCounter returns a MemoryCounter reading time from now, or time.Now when nil.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{now: now, windows: make(map[string]window)}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.expires) {
		w = window{expires: now.Add(ttl)}
	}
	w.count++
	c.windows[key] = w
	return w.count, nil
}

func (c *MemoryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.windows, key)
	c.mu.Unlock()
	return nil
}
