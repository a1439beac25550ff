package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/salesdash/salesdash/internal/drilldown"
)

const (
	cacheVersionKey = "salesdash:cache:version"
	// BumpChannel carries version bumps between dashboard replicas.
	BumpChannel = "salesdash.bump"
)

// Cache wraps Redis based caching with versioning controls.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
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
		return c.client.Get(ctx, cacheVersionKey).Int64()
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
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. Loader
// errors are never cached.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return loadInto(ctx, dest, loader)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func loadInto(ctx context.Context, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached aggregate by incrementing the version and
// publishing it to the other replicas.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	return ver, c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bump notifications. onBump is
// invoked with the announced version; it may be nil.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string, onBump func(int64)) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
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
				if onBump != nil {
					onBump(ver)
				}
			}
		}
	}()
	return nil
}

func keyRanking(rng drilldown.DateRange) string {
	return strings.Join([]string{"salesdash", "ranking", dayToken(rng.Start), dayToken(rng.End)}, ":")
}

func keyVendors(branchID int64, rng drilldown.DateRange) string {
	return strings.Join([]string{"salesdash", "vendors", formatInt(branchID), dayToken(rng.Start), dayToken(rng.End)}, ":")
}

func keyVendorDetail(vendorID int64, rng drilldown.DateRange) string {
	return strings.Join([]string{"salesdash", "vendor_detail", formatInt(vendorID), dayToken(rng.Start), dayToken(rng.End)}, ":")
}

func keyCategories(branchID int64, rng drilldown.DateRange) string {
	return strings.Join([]string{"salesdash", "categories", formatInt(branchID), dayToken(rng.Start), dayToken(rng.End)}, ":")
}

func keyTrend(granularity Granularity, days int) string {
	return strings.Join([]string{"salesdash", "trend", string(granularity), strconv.Itoa(days)}, ":")
}

func keyTopProducts(limit int) string {
	return "salesdash:top_products:" + strconv.Itoa(limit)
}

func keyKPIs() string {
	return "salesdash:kpis"
}

func dayToken(t time.Time) string {
	return t.Format("2006-01-02")
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
