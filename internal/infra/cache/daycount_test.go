package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puffquest/puffquest/internal/domain"
)

func setupCounter(t *testing.T) (*RedisDayCounter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewFromClient(client, time.Hour)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisDayCounter_GetMiss(t *testing.T) {
	c, _ := setupCounter(t)

	n, gen, ok, err := c.Get(context.Background(), uuid.New(), domain.EntryCig, "2025-01-01")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, n)
	assert.Zero(t, gen)
}

func TestRedisDayCounter_FillGet(t *testing.T) {
	c, mr := setupCounter(t)
	ctx := context.Background()
	user := uuid.New()

	stored, err := c.Fill(ctx, user, domain.EntryPuff, "2025-01-01", 0, 42)
	require.NoError(t, err)
	assert.True(t, stored)

	n, _, ok, err := c.Get(ctx, user, domain.EntryPuff, "2025-01-01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	assert.Equal(t, time.Hour, mr.TTL(Key(user, domain.EntryPuff, "2025-01-01")))

	// Other type, same day, is a separate key.
	_, _, ok, err = c.Get(ctx, user, domain.EntryCig, "2025-01-01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisDayCounter_InvalidateDropsCount(t *testing.T) {
	c, mr := setupCounter(t)
	ctx := context.Background()
	user := uuid.New()
	key := Key(user, domain.EntryCig, "2025-01-01")

	_, err := c.Fill(ctx, user, domain.EntryCig, "2025-01-01", 0, 3)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, user, domain.EntryCig, "2025-01-01"))

	n, gen, ok, err := c.Get(ctx, user, domain.EntryCig, "2025-01-01")
	require.NoError(t, err)
	assert.False(t, ok, "count must be recounted after a write")
	assert.Zero(t, n)
	assert.Equal(t, int64(1), gen)
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestRedisDayCounter_FillRejectedAfterWrite(t *testing.T) {
	c, _ := setupCounter(t)
	ctx := context.Background()
	user := uuid.New()

	// A reader misses, then an entry is recorded before it fills.
	_, gen, ok, err := c.Get(ctx, user, domain.EntryCig, "2025-01-01")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Invalidate(ctx, user, domain.EntryCig, "2025-01-01"))

	stored, err := c.Fill(ctx, user, domain.EntryCig, "2025-01-01", gen, 0)
	require.NoError(t, err)
	assert.False(t, stored)

	_, gen, ok, err = c.Get(ctx, user, domain.EntryCig, "2025-01-01")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err = c.Fill(ctx, user, domain.EntryCig, "2025-01-01", gen, 1)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestRedisDayCounter_Forget(t *testing.T) {
	c, mr := setupCounter(t)
	ctx := context.Background()
	user, other := uuid.New(), uuid.New()

	for _, f := range []struct {
		user uuid.UUID
		day  string
	}{{user, "2025-01-01"}, {user, "2025-01-02"}, {other, "2025-01-01"}} {
		_, err := c.Fill(ctx, f.user, domain.EntryCig, f.day, 0, 1)
		require.NoError(t, err)
	}

	require.NoError(t, c.Forget(ctx, user))

	assert.False(t, mr.Exists(Key(user, domain.EntryCig, "2025-01-01")))
	assert.False(t, mr.Exists(Key(user, domain.EntryCig, "2025-01-02")))
	assert.True(t, mr.Exists(Key(other, domain.EntryCig, "2025-01-01")))
}

func TestRedisDayCounter_CorruptValue(t *testing.T) {
	c, mr := setupCounter(t)
	user := uuid.New()
	mr.HSet(Key(user, domain.EntryCig, "2025-01-01"), "count", "abc")

	_, _, ok, err := c.Get(context.Background(), user, domain.EntryCig, "2025-01-01")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisDayCounter_Unavailable(t *testing.T) {
	c, mr := setupCounter(t)
	mr.Close()

	_, _, _, err := c.Get(context.Background(), uuid.New(), domain.EntryCig, "2025-01-01")
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestNewRedisDayCounter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	c, err := NewRedisDayCounter(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, DefaultTTL, c.ttl)

	_, err = NewRedisDayCounter(context.Background(), Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
