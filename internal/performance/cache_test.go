package performance

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clk := &clock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	cache := NewCache(client, 5*time.Minute, 3*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	cache.now = clk.Now
	return cache, mr, clk
}

func TestCacheServesFreshEntries(t *testing.T) {
	cache, mr, _ := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		return map[string]int{"n": int(calls.Load())}, nil
	}

	key, err := cache.BuildKey(ctx, "dashboard", "advisors", "1")
	require.NoError(t, err)
	assert.Equal(t, "dashboard:advisors:1:1", key)

	var out map[string]int
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	assert.Equal(t, 1, out["n"])
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 5*time.Minute, mr.TTL(key))
}

func TestCacheStaleEntryTriggersBackgroundRefresh(t *testing.T) {
	cache, _, clk := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32
	loader := func(context.Context) (any, error) {
		return calls.Add(1), nil
	}

	var out int32
	require.NoError(t, cache.FetchJSON(ctx, "k", &out, loader))
	assert.Equal(t, int32(1), out)

	clk.Advance(3*time.Minute + time.Second)
	require.NoError(t, cache.FetchJSON(ctx, "k", &out, loader))
	assert.Equal(t, int32(1), out, "stale value is served")

	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		var v int32
		return cache.FetchJSON(ctx, "k", &v, loader) == nil && v >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	cache, _, _ := newTestCache(t)
	ctx := context.Background()
	release := make(chan struct{})
	var calls atomic.Int32
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var out string
			errs <- cache.FetchJSON(ctx, "same", &out, loader)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheBumpChangesKeys(t *testing.T) {
	cache, _, _ := newTestCache(t)
	ctx := context.Background()
	before, err := cache.BuildKey(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	after, err := cache.BuildKey(ctx, "a")
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
	assert.Equal(t, "a:2", after)
}

func TestNilCacheCallsLoader(t *testing.T) {
	var cache *Cache
	var out []string
	err := cache.FetchJSON(context.Background(), "x", &out, func(context.Context) (any, error) {
		return []string{"a"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out)
	assert.NoError(t, cache.Bump(context.Background()))
}

func TestCacheReportsLookupResults(t *testing.T) {
	cache, _, clk := newTestCache(t)
	ctx := context.Background()
	var results []string
	cache.WithObserver(func(r string) { results = append(results, r) })
	loader := func(context.Context) (any, error) { return 1, nil }

	var out int
	require.NoError(t, cache.FetchJSON(ctx, "k", &out, loader))
	require.NoError(t, cache.FetchJSON(ctx, "k", &out, loader))
	clk.Advance(4 * time.Minute)
	require.NoError(t, cache.FetchJSON(ctx, "k", &out, loader))

	assert.Equal(t, []string{LookupMiss, LookupHit, LookupStale}, results)
}
