// Package cache holds shared QueueCache backends.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fit-portal/placement/modules/internship/services"
)

const keyPrefix = "placement:queue:"

// RedisQueueCache shares queue projections across instances. Each period
// keeps a set of its cache keys so invalidation is one SMEMBERS plus DEL,
// and a version counter that Set watches. Cache failures degrade to misses.
type RedisQueueCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Entry
}

func NewRedisQueueCache(client *redis.Client, ttl time.Duration, log *logrus.Entry) *RedisQueueCache {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RedisQueueCache{client: client, ttl: ttl, log: log.WithField("component", "queue-cache")}
}

func OpenRedisQueueCache(url string, ttl time.Duration, log *logrus.Entry) (*RedisQueueCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisQueueCache(redis.NewClient(opts), ttl, log), nil
}

func (c *RedisQueueCache) Close() error { return c.client.Close() }

func indexKey(periodID uuid.UUID) string {
	return keyPrefix + periodID.String() + ":keys"
}

func versionKey(periodID uuid.UUID) string {
	return keyPrefix + periodID.String() + ":version"
}

func entryKey(periodID uuid.UUID, key string) string {
	return keyPrefix + periodID.String() + ":" + key
}

func (c *RedisQueueCache) Get(ctx context.Context, periodID uuid.UUID, key string) ([]services.QueueEntry, bool) {
	raw, err := c.client.Get(ctx, entryKey(periodID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.WithError(err).Warn("queue cache get failed")
		return nil, false
	}
	var out []services.QueueEntry
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.WithError(err).Warn("queue cache entry undecodable")
		return nil, false
	}
	return out, true
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, r getter, periodID uuid.UUID) (uint64, error) {
	raw, err := r.Get(ctx, versionKey(periodID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(raw, 10, 64)
}

// Version returns the period's invalidation counter. On error it returns a
// value no Set will match.
func (c *RedisQueueCache) Version(ctx context.Context, periodID uuid.UUID) uint64 {
	v, err := readVersion(ctx, c.client, periodID)
	if err != nil {
		c.log.WithError(err).Warn("queue cache version read failed")
		return ^uint64(0)
	}
	return v
}

func (c *RedisQueueCache) Set(ctx context.Context, periodID uuid.UUID, key string, version uint64, entries []services.QueueEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		c.log.WithError(err).Warn("queue cache encode failed")
		return
	}
	k, idx, vk := entryKey(periodID, key), indexKey(periodID), versionKey(periodID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx, periodID)
		if err != nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, raw, c.ttl)
			p.SAdd(ctx, idx, k)
			if c.ttl > 0 {
				p.Expire(ctx, idx, c.ttl)
			}
			return nil
		})
		return err
	}, vk)
	if errors.Is(err, redis.TxFailedErr) {
		return
	}
	if err != nil {
		c.log.WithError(err).Warn("queue cache set failed")
	}
}

func (c *RedisQueueCache) InvalidatePeriod(ctx context.Context, periodID uuid.UUID) {
	idx := indexKey(periodID)
	// Bump first so a Set racing this call either fails its watch or lands
	// in the index before it is read below.
	if err := c.client.Incr(ctx, versionKey(periodID)).Err(); err != nil {
		c.log.WithError(err).Warn("queue cache version bump failed")
	}
	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		c.log.WithError(err).Warn("queue cache index read failed")
		return
	}
	if err := c.client.Del(ctx, append(keys, idx)...).Err(); err != nil {
		c.log.WithError(err).Warn("queue cache invalidate failed")
	}
}

var _ services.QueueCache = (*RedisQueueCache)(nil)
