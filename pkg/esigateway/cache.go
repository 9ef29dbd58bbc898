package esigateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"

	"skirmish/pkg/database"
)

const (
	sharedCacheTTL   = 24 * time.Hour
	processCacheTTL  = 5 * time.Minute
	processCacheSize = 8192
)

type cacheEntry struct {
	Data    json.RawMessage `json:"data"`
	Expires time.Time       `json:"expires"`
}

// twoTierCache implements C1's caching contract: an always-present
// in-process LRU/TTL tier and an optional shared Redis tier. Reads try the
// shared tier first, then the in-process tier, then fetch on double miss.
// Writes update both tiers. Shared-tier failures degrade transparently and
// are never fatal — grounded on the teacher's RedisCacheManager
// (pkg/evegateway/redis_cache.go) plus DefaultCacheManager
// (pkg/evegateway/interfaces.go) for the in-process fallback shape.
type twoTierCache struct {
	redis   *database.Redis
	process *lru.Cache
}

func newTwoTierCache(redisClient *database.Redis) *twoTierCache {
	c, err := lru.New(processCacheSize)
	if err != nil {
		panic(fmt.Sprintf("esigateway: invalid process cache size: %v", err))
	}
	return &twoTierCache{redis: redisClient, process: c}
}

func (c *twoTierCache) get(ctx context.Context, key string) (json.RawMessage, bool) {
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, sharedKey(key))
		switch {
		case err == nil:
			var entry cacheEntry
			if jsonErr := json.Unmarshal([]byte(raw), &entry); jsonErr == nil && entry.Expires.After(time.Now()) {
				c.process.Add(key, entry)
				return entry.Data, true
			}
		case err == redis.Nil:
			// shared miss, fall through to process tier
		default:
			slog.Warn("esigateway: shared cache read failed", "error", err)
		}
	}

	if v, ok := c.process.Get(key); ok {
		entry := v.(cacheEntry)
		if entry.Expires.After(time.Now()) {
			return entry.Data, true
		}
		c.process.Remove(key)
	}

	return nil, false
}

func (c *twoTierCache) set(ctx context.Context, key string, data json.RawMessage) {
	c.process.Add(key, cacheEntry{Data: data, Expires: time.Now().Add(processCacheTTL)})

	if c.redis == nil {
		return
	}

	sharedEntry := cacheEntry{Data: data, Expires: time.Now().Add(sharedCacheTTL)}
	payload, err := json.Marshal(sharedEntry)
	if err != nil {
		return
	}
	if err := c.redis.SetWithTTL(ctx, sharedKey(key), string(payload), sharedCacheTTL); err != nil {
		slog.Warn("esigateway: shared cache write failed", "error", err)
	}
}

func sharedKey(key string) string {
	return fmt.Sprintf("esi:cache:%s", key)
}
