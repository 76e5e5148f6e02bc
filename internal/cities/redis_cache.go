package cities

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCache caches neighbor lookups in Redis in front of another
// Lookup. Cache errors degrade to the inner lookup; the key space is
// city-name keyed with a TTL since adjacency data changes rarely.
type RedisCache struct {
	rdb   *redis.Client
	inner Lookup
	ttl   time.Duration
	log   zerolog.Logger
}

// NewRedisCache parses redisURL and wraps inner with a cache layer.
func NewRedisCache(redisURL string, inner Lookup, log zerolog.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{
		rdb:   redis.NewClient(opt),
		inner: inner,
		ttl:   24 * time.Hour,
		log:   log,
	}, nil
}

func (c *RedisCache) key(city string) string { return "cities:neighbors:" + city }

// Neighbors returns cached neighbors for city, falling through to the
// inner lookup on miss or cache error.
func (c *RedisCache) Neighbors(ctx context.Context, city string) ([]string, error) {
	if raw, err := c.rdb.Get(ctx, c.key(city)).Bytes(); err == nil {
		var cached []string
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	} else if err != redis.Nil {
		c.log.Debug().Err(err).Str("city", city).Msg("cities cache read failed")
	}

	neighbors, err := c.inner.Neighbors(ctx, city)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(neighbors); err == nil {
		if err := c.rdb.Set(ctx, c.key(city), data, c.ttl).Err(); err != nil {
			c.log.Debug().Err(err).Str("city", city).Msg("cities cache write failed")
		}
	}
	return neighbors, nil
}
