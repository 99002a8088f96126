package tracking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puffquest/puffquest/internal/app/engagement"
	"github.com/puffquest/puffquest/internal/app/stats"
	"github.com/puffquest/puffquest/internal/app/tracking"
	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/cache"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

var now = time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)

type env struct {
	db    *sqlite.DB
	stats *stats.Service
	game  *engagement.Service
	svc   *tracking.Service
}

func setup(t *testing.T, c stats.DayCounter) *env {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := stats.NewService(db, c, domain.NewCalendar(time.UTC), domain.FixedClock(now), nil)
	game := engagement.NewService(db, st, nil, nil)
	return &env{db: db, stats: st, game: game, svc: tracking.NewService(db, st, game, nil, nil)}
}

func (e *env) user(t *testing.T, method domain.Method, limit, packSize int, packCost float64) domain.User {
	t.Helper()
	u := domain.User{
		ID:          uuid.New(),
		DisplayName: "Tester",
		Method:      method,
		DailyLimit:  limit,
		PackSize:    packSize,
		PackCost:    packCost,
		CreatedAt:   now.AddDate(0, 0, -10),
	}
	require.NoError(t, e.db.InsertUser(context.Background(), u))
	return u
}

func ptr(f float64) *float64 { return &f }

func TestResolveCost(t *testing.T) {
	pack := domain.User{Method: domain.MethodCigarettes, PackSize: 20, PackCost: 10}
	vape := domain.User{Method: domain.MethodDisposableVape, PackSize: 20, PackCost: 10}

	assert.Equal(t, 0.5, tracking.ResolveCost(pack, domain.EntryCig, nil))
	assert.Equal(t, 2.0, tracking.ResolveCost(pack, domain.EntryCig, ptr(2)))
	assert.Equal(t, 0.0, tracking.ResolveCost(pack, domain.EntryPuff, nil))
	assert.Equal(t, 0.0, tracking.ResolveCost(vape, domain.EntryPuff, nil))
	assert.Equal(t, 0.0, tracking.ResolveCost(domain.User{Method: domain.MethodCigarettes}, domain.EntryCig, nil))
}

func TestAddEntry(t *testing.T) {
	e := setup(t, nil)
	u := e.user(t, domain.MethodCigarettes, 5, 20, 300)
	ctx := context.Background()

	var last tracking.Recorded
	for i := 0; i < 3; i++ {
		rec, err := e.svc.AddEntry(ctx, u.ID, tracking.EntryRequest{})
		require.NoError(t, err)
		last = rec
	}

	assert.Equal(t, domain.EntryCig, last.Entry.Type)
	assert.Equal(t, 15.0, last.Entry.Cost)
	assert.True(t, last.Entry.CreatedAt.Equal(now))
	assert.Equal(t, 3, last.Feedback.Count)
	assert.Equal(t, 2, last.Feedback.Remaining)
	assert.Equal(t, domain.DayWithin, last.Feedback.Status)

	n, err := e.stats.CountForDay(ctx, u, now, domain.EntryCig)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := e.db.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.XP, "entries never award xp directly")
}

func TestAddEntry_ExplicitTypeAndTime(t *testing.T) {
	e := setup(t, nil)
	u := e.user(t, domain.MethodDisposableVape, 100, 0, 0)
	ctx := context.Background()

	yesterday := now.AddDate(0, 0, -1)
	rec, err := e.svc.AddEntry(ctx, u.ID, tracking.EntryRequest{At: yesterday, Cost: ptr(1.25)})
	require.NoError(t, err)
	assert.Equal(t, domain.EntryPuff, rec.Entry.Type)
	assert.Equal(t, 1.25, rec.Entry.Cost)
	assert.Equal(t, 1, rec.Feedback.Count)

	today, err := e.stats.CountForDay(ctx, u, now, domain.EntryPuff)
	require.NoError(t, err)
	assert.Zero(t, today)
}

func TestAddEntry_Validation(t *testing.T) {
	e := setup(t, nil)
	u := e.user(t, domain.MethodCigarettes, 5, 0, 0)
	ctx := context.Background()

	_, err := e.svc.AddEntry(ctx, u.ID, tracking.EntryRequest{Cost: ptr(-1)})
	assert.True(t, domain.IsValidationError(err))

	_, err = e.svc.AddEntry(ctx, u.ID, tracking.EntryRequest{Type: "cigar"})
	assert.True(t, domain.IsValidationError(err))

	entries, err := e.svc.EntriesForDay(ctx, u, now)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected entries are not stored")
}

func TestAddEntry_UnknownUser(t *testing.T) {
	e := setup(t, nil)
	_, err := e.svc.AddEntry(context.Background(), uuid.New(), tracking.EntryRequest{})
	assert.True(t, errors.Is(err, domain.ErrUserNotFound))
}

func TestAddEntry_StorageFailure(t *testing.T) {
	e := setup(t, nil)
	u := e.user(t, domain.MethodCigarettes, 5, 0, 0)

	_, err := e.db.Conn().Exec(`DROP TABLE entries`)
	require.NoError(t, err)

	_, err = e.svc.AddEntry(context.Background(), u.ID, tracking.EntryRequest{})
	require.Error(t, err)
	assert.True(t, domain.IsStorageError(err))
}

func TestAddEntry_RefreshesCachedCount(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	c := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	t.Cleanup(func() { c.Close() })

	e := setup(t, c)
	u := e.user(t, domain.MethodCigarettes, 5, 0, 0)
	ctx := context.Background()

	// First entry populates the cache through the feedback read.
	_, err = e.svc.AddEntry(ctx, u.ID, tracking.EntryRequest{})
	require.NoError(t, err)
	key := cache.Key(u.ID, domain.EntryCig, "2025-03-15")
	assert.Equal(t, "1", mr.HGet(key, "count"))

	rec, err := e.svc.AddEntry(ctx, u.ID, tracking.EntryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Feedback.Count)
	assert.Equal(t, "2", mr.HGet(key, "count"))

	n, err := e.stats.CountForDay(ctx, u, now, domain.EntryCig)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAddEntry_CacheOutage(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	c := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	t.Cleanup(func() { c.Close() })
	mr.Close()

	e := setup(t, c)
	u := e.user(t, domain.MethodCigarettes, 5, 0, 0)

	rec, err := e.svc.AddEntry(context.Background(), u.ID, tracking.EntryRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Feedback.Count)
}

func TestEntriesForDayAndLastEntry(t *testing.T) {
	e := setup(t, nil)
	u := e.user(t, domain.MethodCigarettes, 5, 0, 0)
	ctx := context.Background()

	last, err := e.svc.LastEntry(ctx, u)
	require.NoError(t, err)
	assert.Nil(t, last)

	times := []time.Time{
		now.Add(-2 * time.Hour),
		now.Add(-5 * time.Hour),
		now.AddDate(0, 0, -1),
	}
	for _, at := range times {
		_, err := e.svc.AddEntry(ctx, u.ID, tracking.EntryRequest{At: at})
		require.NoError(t, err)
	}

	entries, err := e.svc.EntriesForDay(ctx, u, now)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].CreatedAt.Equal(times[1]), "oldest first")
	assert.True(t, entries[1].CreatedAt.Equal(times[0]))

	last, err = e.svc.LastEntry(ctx, u)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.CreatedAt.Equal(times[0]))
}
