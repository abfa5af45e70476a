// ratelimit.go provides Gin middleware that enforces per-client rate limits,
// returning 429 responses when the configured requests-per-minute threshold is
// exceeded. With Redis configured the limit is enforced cluster-wide via GCRA;
// without it each instance falls back to a local token bucket.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum number of requests allowed per minute
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often the local limiter cleans up idle entries
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 200, // Higher limit for authenticated API usage
		BurstSize:         50,  // Allow burst for pages that load multiple resources
		CleanupInterval:   5 * time.Minute,
	}
}

// AuthRateLimitConfig returns stricter limits for auth endpoints
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10, // 10 login attempts per minute
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// UploadRateLimitConfig returns limits for avatar upload endpoints
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// Limiter is the rate limiting strategy behind the middleware.
type Limiter interface {
	// Allow reports whether one request under key may proceed and how many
	// requests remain in the current window.
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	// Limit returns the configured requests-per-minute ceiling.
	Limit() int
	// Stop releases any background resources.
	Stop()
}

// ---------------------------------------------------------------------------
// Redis-backed limiter (GCRA)
// ---------------------------------------------------------------------------

// RedisRateLimiter enforces limits cluster-wide using the GCRA algorithm, so
// all server instances share one budget per client.
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	rpm     int
}

// NewRedisRateLimiter creates a Redis-backed limiter.
func NewRedisRateLimiter(client *redis.Client, config RateLimitConfig) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit: redis_rate.Limit{
			Rate:   config.RequestsPerMinute,
			Burst:  config.BurstSize,
			Period: time.Minute,
		},
		rpm: config.RequestsPerMinute,
	}
}

// Allow consumes one request from the shared budget.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	result, err := rl.limiter.Allow(ctx, key, rl.limit)
	if err != nil {
		return false, 0, err
	}
	return result.Allowed > 0, result.Remaining, nil
}

// Limit returns the requests-per-minute ceiling.
func (rl *RedisRateLimiter) Limit() int { return rl.rpm }

// Stop is a no-op; the Redis client is owned by the caller.
func (rl *RedisRateLimiter) Stop() {}

// ---------------------------------------------------------------------------
// Local token-bucket limiter
// ---------------------------------------------------------------------------

// rateLimitEntry tracks request counts for a single client
type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter implements a per-instance token bucket, used when no Redis
// address is configured.
type RateLimiter struct {
	config  RateLimitConfig
	entries map[string]*rateLimitEntry
	mu      sync.RWMutex
	stopCh  chan struct{}
}

// NewRateLimiter creates a new local rate limiter with the given config
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// cleanup periodically removes expired entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, entry := range rl.entries {
				// Remove entries that haven't been accessed in 10 minutes
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Allow checks if a request from the given key should be allowed
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.entries[key]

	if !exists {
		// New client, give them full burst
		rl.entries[key] = &rateLimitEntry{
			tokens:     float64(rl.config.BurstSize) - 1,
			lastUpdate: now,
		}
		return true, rl.config.BurstSize - 1, nil
	}

	// Calculate tokens to add based on time elapsed
	elapsed := now.Sub(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	tokensToAdd := elapsed.Seconds() * tokensPerSecond

	// Update tokens (capped at burst size)
	entry.tokens = min(float64(rl.config.BurstSize), entry.tokens+tokensToAdd)
	entry.lastUpdate = now

	if entry.tokens >= 1 {
		entry.tokens--
		return true, int(entry.tokens), nil
	}

	return false, 0, nil
}

// Limit returns the requests-per-minute ceiling.
func (rl *RateLimiter) Limit() int { return rl.config.RequestsPerMinute }

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// RateLimitMiddleware creates a Gin middleware that rate limits requests.
// A limiter backend failure (e.g. Redis briefly unreachable) fails open:
// dropping legitimate traffic is worse than a short unmetered window.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			c.Next()
			return
		}

		if !allowed {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

// getRateLimitKey determines the key to use for rate limiting
// Priority: user_id > IP address
func getRateLimitKey(c *gin.Context) string {
	if userID := c.GetString(ContextUserID); userID != "" {
		return "user:" + userID
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}

// Helper function for min (Go 1.21+ has this built-in, but for compatibility)
func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
