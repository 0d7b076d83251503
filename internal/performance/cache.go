package performance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "dashboard:version"
	bumpChannel     = "dashboard.bump"
)

// Cache wraps Redis based caching with versioning controls. Entries live for
// ttl; once older than staleAfter they are still served but a background
// refresh is started. Loads of the same key are collapsed.
type Cache struct {
	client     *redis.Client
	ttl        time.Duration
	staleAfter time.Duration
	group      singleflight.Group
	logger     *slog.Logger
	observe    func(result string)
	now        func() time.Time
}

// Lookup results reported to the observer.
const (
	LookupHit   = "hit"
	LookupStale = "stale"
	LookupMiss  = "miss"
)

type cacheEntry struct {
	StoredAt time.Time       `json:"stored_at"`
	Payload  json.RawMessage `json:"payload"`
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl, staleAfter time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, staleAfter: staleAfter, logger: logger, now: time.Now}
}

// WithObserver reports the result of every lookup to fn.
func (c *Cache) WithObserver(fn func(result string)) *Cache {
	c.observe = fn
	return c
}

func (c *Cache) report(result string) {
	if c.observe != nil {
		c.observe(result)
	}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. The
// loader may run after FetchJSON returns, so it must not depend on ctx
// being live; it receives its own context.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entry cacheEntry
		if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
			if c.now().Sub(entry.StoredAt) >= c.staleAfter {
				c.report(LookupStale)
				c.refreshAsync(ctx, key, loader)
			} else {
				c.report(LookupHit)
			}
			return json.Unmarshal(entry.Payload, dest)
		}
		c.logger.Warn("dashboard cache entry unreadable", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		return err
	}

	c.report(LookupMiss)
	payload, err := c.load(ctx, key, loader)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, dest)
}

func (c *Cache) load(ctx context.Context, key string, loader func(context.Context) (any, error)) (json.RawMessage, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		entry, err := json.Marshal(cacheEntry{StoredAt: c.now(), Payload: payload})
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, entry, c.ttl).Err(); err != nil {
			return nil, err
		}
		return json.RawMessage(payload), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

func (c *Cache) refreshAsync(ctx context.Context, key string, loader func(context.Context) (any, error)) {
	bg := context.WithoutCancel(ctx)
	go func() {
		bg, cancel := context.WithTimeout(bg, time.Minute)
		defer cancel()
		if _, err := c.load(bg, key, loader); err != nil {
			c.logger.Warn("dashboard cache refresh failed", slog.String("key", key), slog.Any("error", err))
		}
	}()
}

// Bump invalidates the cache by incrementing the global version and publishing an event.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bump notifications published by
// other instances sharing the Redis server.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = bumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				// Only move forward; a late message must not roll the version back.
				cur, _ := c.client.Get(ctx, cacheVersionKey).Int64()
				if ver > cur {
					_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
				}
			}
		}
	}()
	return nil
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
