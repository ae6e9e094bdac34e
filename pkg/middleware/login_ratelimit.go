package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/tmercier/keepsake/pkg/audit"
)

// LoginRateLimitConfig defines rate limiting for credential endpoints
type LoginRateLimitConfig struct {
	// AttemptsPerWindow is the max login attempts allowed per client IP
	AttemptsPerWindow int
	// WindowDuration is the counting window
	WindowDuration time.Duration
}

// DefaultLoginRateLimitConfig allows 10 attempts per minute per IP
func DefaultLoginRateLimitConfig() LoginRateLimitConfig {
	return LoginRateLimitConfig{
		AttemptsPerWindow: 10,
		WindowDuration:    time.Minute,
	}
}

// LoginRateLimiter throttles password-guessing against the login endpoint
// using a Redis fixed window shared across instances. Redis being down
// fails open: an unavailable limiter must not lock everyone out.
type LoginRateLimiter struct {
	redis  *redis.Client
	config LoginRateLimitConfig
	log    *logrus.Logger
}

// NewLoginRateLimiter creates a Redis-backed login rate limiter
func NewLoginRateLimiter(redisClient *redis.Client, config LoginRateLimitConfig, log *logrus.Logger) *LoginRateLimiter {
	if config.AttemptsPerWindow <= 0 {
		config = DefaultLoginRateLimitConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LoginRateLimiter{
		redis:  redisClient,
		config: config,
		log:    log,
	}
}

// Allow reports whether another attempt from the client is permitted
func (rl *LoginRateLimiter) Allow(ctx context.Context, clientIP string) (bool, error) {
	redisKey := "keepsake:login-attempts:" + clientIP

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.AttemptsPerWindow), nil
}

// Reset clears the counter for a client, for example after a successful login
func (rl *LoginRateLimiter) Reset(ctx context.Context, clientIP string) error {
	return rl.redis.Del(ctx, "keepsake:login-attempts:"+clientIP).Err()
}

// Handler wraps the login endpoint with per-IP throttling. The counter is
// keyed on the network peer, not on forwarding headers a client could
// rotate to dodge the limit.
func (rl *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := audit.PeerIP(r)

		allowed, err := rl.Allow(r.Context(), clientIP)
		if err != nil {
			rl.log.WithError(err).Warn("login rate limiter unavailable, failing open")
		}
		if !allowed {
			retryAfter := rl.config.WindowDuration.Seconds()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many login attempts","retry_after":` + fmt.Sprintf("%.0f", retryAfter) + `}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
