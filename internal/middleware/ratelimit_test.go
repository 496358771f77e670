package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func TestLimiterStoreAllowsBurstThenRejects(t *testing.T) {
	t.Parallel()
	store := NewLimiterStore(0.01, 2)

	for i := 0; i < 2; i++ {
		ok, err := store.Allow("10.0.0.1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := store.Allow("10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)

	// separate bucket per key
	ok, err = store.Allow("10.0.0.2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLimiterStoreCleanupDropsIdleKeys(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)
	store := NewLimiterStore(1, 1, WithIdleTTL(time.Minute))
	store.now = func() time.Time { return now }

	_, _ = store.Allow("old")
	now = now.Add(2 * time.Minute)
	_, _ = store.Allow("fresh")

	store.Cleanup()
	require.Equal(t, 1, store.Len())
}

func TestLimiterStoreJanitorEvictsIdleKeys(t *testing.T) {
	t.Parallel()
	start := time.Unix(1_700_000_000, 0)
	store := NewLimiterStore(1, 1, WithIdleTTL(time.Minute), WithCleanupEvery(time.Millisecond))
	store.now = func() time.Time { return start }

	_, _ = store.Allow("10.0.0.1")
	_, _ = store.Allow("10.0.0.2")
	require.Equal(t, 2, store.Len())

	// set before the janitor goroutine starts
	store.now = func() time.Time { return start.Add(2 * time.Minute) }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store.StartJanitor(ctx)

	require.Eventually(t, func() bool { return store.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestLimiterStoreJanitorDisabled(t *testing.T) {
	t.Parallel()
	start := time.Unix(1_700_000_000, 0)
	store := NewLimiterStore(1, 1, WithIdleTTL(time.Minute), WithCleanupEvery(0))
	store.now = func() time.Time { return start }
	_, _ = store.Allow("10.0.0.1")
	store.now = func() time.Time { return start.Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	store.StartJanitor(ctx)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, store.Len())
}

func TestRateLimitMiddlewareRejectsWith429(t *testing.T) {
	t.Parallel()
	e := echo.New()
	e.Use(RateLimit(NewLimiterStore(0.01, 1)))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:5555"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do())
	require.Equal(t, http.StatusTooManyRequests, do())
}
