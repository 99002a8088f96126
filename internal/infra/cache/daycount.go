// Package cache holds the optional Redis read-through cache for per-day entry
// counts. SQLite stays the source of truth; a cache miss or a Redis outage
// only costs a COUNT(*) query.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/puffquest/puffquest/internal/domain"
)

// DefaultTTL keeps a day's count around long enough for the nightly recalc.
const DefaultTTL = 48 * time.Hour

const keyPrefix = "puffquest:count"

// Each day is a hash with a "count" field and a "gen" field. A new entry
// drops "count" and increments "gen". A read-through fill only lands if
// "gen" still holds the value the reader saw on its miss, so a count taken
// before a concurrent write can never be cached after it.
var fillScript = redis.NewScript(`
	local gen = tonumber(redis.call('HGET', KEYS[1], 'gen') or '0')
	if gen ~= tonumber(ARGV[1]) then
		return 0
	end
	redis.call('HSET', KEYS[1], 'count', ARGV[2])
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
	return 1
`)

var invalidateScript = redis.NewScript(`
	redis.call('HINCRBY', KEYS[1], 'gen', 1)
	redis.call('HDEL', KEYS[1], 'count')
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	return 1
`)

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisDayCounter caches per-day entry counts in Redis.
type RedisDayCounter struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDayCounter connects to Redis and verifies the connection.
func NewRedisDayCounter(ctx context.Context, cfg Config) (*RedisDayCounter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	return NewFromClient(client, cfg.TTL), nil
}

// NewFromClient wraps an existing client. A zero ttl means DefaultTTL.
func NewFromClient(client *redis.Client, ttl time.Duration) *RedisDayCounter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisDayCounter{client: client, ttl: ttl}
}

// Key returns the cache key for one user, entry type and day ("2006-01-02").
func Key(userID uuid.UUID, typ domain.EntryType, day string) string {
	return keyPrefix + ":" + userID.String() + ":" + string(typ) + ":" + day
}

// Get returns the cached count. On a miss, ok is false and gen is the
// generation to pass to Fill.
func (c *RedisDayCounter) Get(ctx context.Context, userID uuid.UUID, typ domain.EntryType, day string) (count int, gen int64, ok bool, err error) {
	vals, err := c.client.HMGet(ctx, Key(userID, typ, day), "gen", "count").Result()
	if err != nil {
		return 0, 0, false, err
	}
	if v, isStr := vals[0].(string); isStr {
		if gen, err = strconv.ParseInt(v, 10, 64); err != nil {
			return 0, 0, false, fmt.Errorf("corrupt cached generation %q: %w", v, err)
		}
	}
	v, isStr := vals[1].(string)
	if !isStr {
		return 0, gen, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, 0, false, fmt.Errorf("corrupt cached count %q: %w", v, err)
	}
	return n, gen, true, nil
}

// Fill stores a count read from the store after a miss that reported gen.
// It reports false, storing nothing, when an entry was recorded for the day
// since then.
func (c *RedisDayCounter) Fill(ctx context.Context, userID uuid.UUID, typ domain.EntryType, day string, gen int64, count int) (bool, error) {
	stored, err := fillScript.Run(ctx, c.client, []string{Key(userID, typ, day)}, gen, count, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops the cached count of a day that just gained an entry.
func (c *RedisDayCounter) Invalidate(ctx context.Context, userID uuid.UUID, typ domain.EntryType, day string) error {
	return invalidateScript.Run(ctx, c.client, []string{Key(userID, typ, day)}, c.ttl.Milliseconds()).Err()
}

// Forget drops every cached count of a user.
func (c *RedisDayCounter) Forget(ctx context.Context, userID uuid.UUID) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+":"+userID.String()+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks if Redis is reachable.
func (c *RedisDayCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisDayCounter) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
