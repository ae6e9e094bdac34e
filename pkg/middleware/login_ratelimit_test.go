package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoginLimiter(t *testing.T, attempts int) (*LoginRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := NewLoginRateLimiter(client, LoginRateLimitConfig{
		AttemptsPerWindow: attempts,
		WindowDuration:    time.Minute,
	}, quietLogger())
	return limiter, mr
}

func TestLoginRateLimiter_Allow(t *testing.T) {
	limiter, _ := newLoginLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "192.0.2.10")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "192.0.2.10")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Another client has its own window.
	allowed, err = limiter.Allow(ctx, "192.0.2.11")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLoginRateLimiter_Reset(t *testing.T) {
	limiter, _ := newLoginLimiter(t, 1)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "192.0.2.10")
	require.NoError(t, err)
	allowed, err := limiter.Allow(ctx, "192.0.2.10")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, limiter.Reset(ctx, "192.0.2.10"))

	allowed, err = limiter.Allow(ctx, "192.0.2.10")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLoginRateLimiter_Handler(t *testing.T) {
	limiter, _ := newLoginLimiter(t, 1)

	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/auth/login", nil)
		r.RemoteAddr = "192.0.2.10:5555"
		handler.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusOK, request().Code)

	rec := request()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLoginRateLimiter_Handler_ForwardingHeadersDoNotEvade(t *testing.T) {
	limiter, _ := newLoginLimiter(t, 1)

	handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(xff string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest("POST", "/auth/login", nil)
		r.RemoteAddr = "192.0.2.10:5555"
		r.Header.Set("X-Forwarded-For", xff)
		handler.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusOK, request("203.0.113.1").Code)

	// Same peer rotating the header stays throttled.
	assert.Equal(t, http.StatusTooManyRequests, request("203.0.113.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, request("203.0.113.3").Code)
}

func TestLoginRateLimiter_FailsOpen(t *testing.T) {
	limiter, mr := newLoginLimiter(t, 1)
	mr.Close()

	allowed, err := limiter.Allow(context.Background(), "192.0.2.10")
	assert.Error(t, err)
	assert.True(t, allowed)
}
