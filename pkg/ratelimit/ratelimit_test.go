package ratelimit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftflow/pushkit/pkg/ratelimit"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("rejects nil store", func(t *testing.T) {
		t.Parallel()

		_, err := ratelimit.New(nil, 10, time.Minute)
		require.ErrorIs(t, err, ratelimit.ErrStoreRequired)
	})

	t.Run("rejects non-positive limit", func(t *testing.T) {
		t.Parallel()

		_, err := ratelimit.New(ratelimit.NewMemoryStore(), 0, time.Minute)
		require.ErrorIs(t, err, ratelimit.ErrInvalidLimit)
	})

	t.Run("rejects non-positive window", func(t *testing.T) {
		t.Parallel()

		_, err := ratelimit.New(ratelimit.NewMemoryStore(), 10, 0)
		require.ErrorIs(t, err, ratelimit.ErrInvalidWindow)
	})
}

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("allows up to the limit then denies", func(t *testing.T) {
		t.Parallel()

		limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), 3, time.Minute)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			res, err := limiter.Allow(ctx, "key")
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.Equal(t, 2-i, res.Remaining)
		}

		res, err := limiter.Allow(ctx, "key")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Zero(t, res.Remaining)
		assert.Positive(t, res.RetryAfter())
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()

		limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), 1, time.Minute)
		require.NoError(t, err)

		res, err := limiter.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, res.Allowed)

		res, err = limiter.Allow(ctx, "b")
		require.NoError(t, err)
		assert.True(t, res.Allowed)

		res, err = limiter.Allow(ctx, "a")
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	})

	t.Run("window expiry refills the budget", func(t *testing.T) {
		t.Parallel()

		limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), 1, 20*time.Millisecond)
		require.NoError(t, err)

		res, err := limiter.Allow(ctx, "key")
		require.NoError(t, err)
		assert.True(t, res.Allowed)

		res, err = limiter.Allow(ctx, "key")
		require.NoError(t, err)
		assert.False(t, res.Allowed)

		time.Sleep(30 * time.Millisecond)

		res, err = limiter.Allow(ctx, "key")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		t.Parallel()

		limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), 1, time.Minute)
		require.NoError(t, err)

		_, err = limiter.Allow(ctx, "")
		require.ErrorIs(t, err, ratelimit.ErrKeyRequired)
	})

	t.Run("reset clears the window", func(t *testing.T) {
		t.Parallel()

		limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), 1, time.Minute)
		require.NoError(t, err)

		_, err = limiter.Allow(ctx, "key")
		require.NoError(t, err)
		require.NoError(t, limiter.Reset(ctx, "key"))

		res, err := limiter.Allow(ctx, "key")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	newHandler := func(t *testing.T, limit int) http.Handler {
		t.Helper()

		limiter, err := ratelimit.New(ratelimit.NewMemoryStore(), limit, time.Minute)
		require.NoError(t, err)

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		return ratelimit.Middleware(limiter, ratelimit.ByClientIP)(next)
	}

	t.Run("passes requests under the limit with headers", func(t *testing.T) {
		t.Parallel()

		handler := newHandler(t, 2)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("denies over the limit with retry hint", func(t *testing.T) {
		t.Parallel()

		handler := newHandler(t, 1)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:5000"

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("separate clients have separate budgets", func(t *testing.T) {
		t.Parallel()

		handler := newHandler(t, 1)

		first := httptest.NewRequest(http.MethodGet, "/", nil)
		first.RemoteAddr = "10.0.0.3:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, first)
		require.Equal(t, http.StatusOK, rec.Code)

		second := httptest.NewRequest(http.MethodGet, "/", nil)
		second.RemoteAddr = "10.0.0.4:5000"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, second)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}
