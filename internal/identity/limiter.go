package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrTooManyAttempts is returned once a key exhausts its failure budget.
	ErrTooManyAttempts = errors.New("attempt_limiter.too_many_attempts")
	// ErrLimiterUnavailable wraps backend failures of the limiter.
	ErrLimiterUnavailable = errors.New("attempt_limiter.unavailable")
)

// AttemptLimiter throttles repeated failed sign-in attempts per email.
type AttemptLimiter interface {
	Check(ctx context.Context, key string) error
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// LimiterConfig tunes the fixed-window failure budget.
type LimiterConfig struct {
	MaxFailures int
	Cooldown    time.Duration
}

// DefaultLimiterConfig allows five failures per fifteen minutes.
var DefaultLimiterConfig = LimiterConfig{MaxFailures: 5, Cooldown: 15 * time.Minute}

type memoryWindow struct {
	failures  int
	expiresAt time.Time
}

// MemoryAttemptLimiter keeps failure windows in process memory.
type MemoryAttemptLimiter struct {
	mutex   sync.Mutex
	config  LimiterConfig
	windows map[string]*memoryWindow
	now     func() time.Time
}

// NewMemoryAttemptLimiter constructs an in-memory limiter.
func NewMemoryAttemptLimiter(config LimiterConfig) *MemoryAttemptLimiter {
	return &MemoryAttemptLimiter{
		config:  config,
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (limiter *MemoryAttemptLimiter) Check(ctx context.Context, key string) error {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	window := limiter.activeWindowLocked(normalizeLimiterKey(key))
	if window != nil && window.failures >= limiter.config.MaxFailures {
		return ErrTooManyAttempts
	}
	return nil
}

func (limiter *MemoryAttemptLimiter) RecordFailure(ctx context.Context, key string) error {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	normalized := normalizeLimiterKey(key)
	window := limiter.activeWindowLocked(normalized)
	if window == nil {
		window = &memoryWindow{expiresAt: limiter.now().Add(limiter.config.Cooldown)}
		limiter.windows[normalized] = window
	}
	window.failures++
	return nil
}

func (limiter *MemoryAttemptLimiter) Reset(ctx context.Context, key string) error {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	delete(limiter.windows, normalizeLimiterKey(key))
	return nil
}

func (limiter *MemoryAttemptLimiter) activeWindowLocked(key string) *memoryWindow {
	window, ok := limiter.windows[key]
	if !ok {
		return nil
	}
	if limiter.now().After(window.expiresAt) {
		delete(limiter.windows, key)
		return nil
	}
	return window
}

// RedisAttemptLimiter shares failure windows across replicas through Redis counters.
type RedisAttemptLimiter struct {
	client redis.UniversalClient
	config LimiterConfig
	prefix string
}

// NewRedisAttemptLimiter constructs a limiter on top of client.
func NewRedisAttemptLimiter(client redis.UniversalClient, config LimiterConfig) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{client: client, config: config, prefix: "xevora:signin_failures:"}
}

func (limiter *RedisAttemptLimiter) Check(ctx context.Context, key string) error {
	count, err := limiter.client.Get(ctx, limiter.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if count >= int64(limiter.config.MaxFailures) {
		return ErrTooManyAttempts
	}
	return nil
}

func (limiter *RedisAttemptLimiter) RecordFailure(ctx context.Context, key string) error {
	redisKey := limiter.key(key)
	count, err := limiter.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	// Fixed window: the TTL starts with the first failure.
	if count == 1 {
		if err := limiter.client.Expire(ctx, redisKey, limiter.config.Cooldown).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
		}
	}
	return nil
}

func (limiter *RedisAttemptLimiter) Reset(ctx context.Context, key string) error {
	if err := limiter.client.Del(ctx, limiter.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}

func (limiter *RedisAttemptLimiter) key(key string) string {
	return limiter.prefix + normalizeLimiterKey(key)
}

func normalizeLimiterKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
