package stats_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puffquest/puffquest/internal/app/stats"
	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/cache"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

var now = time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)

func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testUser(t *testing.T, db *sqlite.DB, method domain.Method, limit int) domain.User {
	t.Helper()
	u := domain.User{
		ID:          uuid.New(),
		DisplayName: "Tester",
		Method:      method,
		DailyLimit:  limit,
		CreatedAt:   now.AddDate(0, -2, 0),
	}
	require.NoError(t, db.InsertUser(context.Background(), u))
	return u
}

func addEntries(t *testing.T, db *sqlite.DB, u domain.User, typ domain.EntryType, at time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, db.InsertEntry(context.Background(), domain.Entry{
			ID: uuid.New(), UserID: u.ID, CreatedAt: at.Add(time.Duration(i) * time.Minute), Type: typ,
		}))
	}
}

func newService(db *sqlite.DB, c stats.DayCounter) *stats.Service {
	return stats.NewService(db, c, domain.NewCalendar(time.UTC), domain.FixedClock(now), nil)
}

func TestCountForDay(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodCigarettes, 5)
	svc := newService(db, nil)
	ctx := context.Background()

	addEntries(t, db, u, domain.EntryCig, now.Add(-3*time.Hour), 3)
	addEntries(t, db, u, domain.EntryCig, now.AddDate(0, 0, -1), 2) // yesterday
	addEntries(t, db, u, domain.EntryPuff, now, 4)                  // other type

	n, err := svc.CountForDay(ctx, u, now, domain.EntryCig)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = svc.CountForDay(ctx, u, now.AddDate(0, 0, -1), domain.EntryCig)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.CountForDay(ctx, u, now.AddDate(0, 0, -5), domain.EntryCig)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCountForDay_LocalMidnight(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodCigarettes, 5)
	loc := time.FixedZone("UTC+3", 3*60*60)
	svc := stats.NewService(db, nil, domain.NewCalendar(loc), domain.FixedClock(now), nil)

	// 22:30 UTC on the 14th is 01:30 on the 15th in UTC+3.
	addEntries(t, db, u, domain.EntryCig, time.Date(2025, 3, 14, 22, 30, 0, 0, time.UTC), 1)

	n, err := svc.CountForDay(context.Background(), u, time.Date(2025, 3, 15, 12, 0, 0, 0, loc), domain.EntryCig)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTotalsForLastDays(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodCigarettes, 5)
	svc := newService(db, nil)

	addEntries(t, db, u, domain.EntryCig, now, 2)
	addEntries(t, db, u, domain.EntryCig, now.AddDate(0, 0, -29), 4)
	addEntries(t, db, u, domain.EntryCig, now.AddDate(0, 0, -30), 9) // outside the window

	totals, err := svc.TotalsForLastDays(context.Background(), u, 30, domain.EntryCig)
	require.NoError(t, err)
	require.Len(t, totals, 30)

	assert.Equal(t, time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC), totals[0].Day, "oldest first")
	assert.Equal(t, 4, totals[0].Count)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), totals[29].Day)
	assert.Equal(t, 2, totals[29].Count)
	assert.Equal(t, 6, totals.Sum())
	assert.Len(t, totals.AsMap(), 30, "zero-count days are present")
}

func TestTotalsForLastDays_RejectsNonPositive(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodCigarettes, 5)
	svc := newService(db, nil)

	_, err := svc.TotalsForLastDays(context.Background(), u, 0, domain.EntryCig)
	assert.True(t, domain.IsValidationError(err))
}

func TestWeekSummary(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodDisposableVape, 100)
	svc := newService(db, nil)

	addEntries(t, db, u, domain.EntryPuff, now, 50)
	addEntries(t, db, u, domain.EntryPuff, now.AddDate(0, 0, -1), 150)

	w, err := svc.WeekSummary(context.Background(), u)
	require.NoError(t, err)
	assert.Len(t, w.Days, 7)
	assert.Equal(t, 200, w.Total)
	assert.InDelta(t, 200.0/7.0, w.Average, 1e-9)
	assert.Equal(t, 6, w.WithinDays)
	assert.Equal(t, domain.EntryPuff, w.Type)
}

func TestMonth(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodCigarettes, 4)
	svc := newService(db, nil)

	addEntries(t, db, u, domain.EntryCig, time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC), 3)
	addEntries(t, db, u, domain.EntryCig, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), 5)
	addEntries(t, db, u, domain.EntryCig, time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC), 6)

	m, err := svc.Month(context.Background(), u, now)
	require.NoError(t, err)
	assert.Equal(t, "2025-03", m.Month)
	require.Len(t, m.Days, 31)

	assert.Equal(t, domain.DayNone, m.Days[0].Status)
	assert.Equal(t, domain.DayWithin, m.Days[1].Status)
	assert.Equal(t, domain.DayNear, m.Days[2].Status)
	assert.Equal(t, domain.DayOver, m.Days[3].Status)
	assert.False(t, m.Days[14].Future)
	assert.True(t, m.Days[15].Future)
}

// ─── Cache ──────────────────────────────────────────────────────────────────

func setupCache(t *testing.T) (*cache.RedisDayCounter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	c := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestCountForDay_ReadThroughCache(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodCigarettes, 5)
	c, mr := setupCache(t)
	svc := newService(db, c)
	ctx := context.Background()

	addEntries(t, db, u, domain.EntryCig, now, 3)

	n, err := svc.CountForDay(ctx, u, now, domain.EntryCig)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	key := cache.Key(u.ID, domain.EntryCig, "2025-03-15")
	assert.Equal(t, "3", mr.HGet(key, "count"))

	// A recorded entry drops the cached count; the next read recounts.
	addEntries(t, db, u, domain.EntryCig, now, 1)
	svc.Bump(ctx, u, now, domain.EntryCig)
	assert.Empty(t, mr.HGet(key, "count"))

	n, err = svc.CountForDay(ctx, u, now, domain.EntryCig)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "4", mr.HGet(key, "count"))

	svc.Forget(ctx, u.ID)
	assert.False(t, mr.Exists(key))
}

func TestCountForDay_ReadBetweenCommitAndBump(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodCigarettes, 5)
	c, _ := setupCache(t)
	svc := newService(db, c)
	ctx := context.Background()

	// The entry is committed, a reader fills the cache, then the writer bumps.
	addEntries(t, db, u, domain.EntryCig, now, 1)
	n, err := svc.CountForDay(ctx, u, now, domain.EntryCig)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	svc.Bump(ctx, u, now, domain.EntryCig)

	n, err = svc.CountForDay(ctx, u, now, domain.EntryCig)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the entry must be counted once")
}

func TestCountForDay_StaleFillAfterBump(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodCigarettes, 5)
	c, _ := setupCache(t)
	svc := newService(db, c)
	ctx := context.Background()

	// A reader misses and counts zero, then an entry is committed and
	// bumped before the reader writes its count back.
	_, gen, ok, err := c.Get(ctx, u.ID, domain.EntryCig, "2025-03-15")
	require.NoError(t, err)
	require.False(t, ok)

	addEntries(t, db, u, domain.EntryCig, now, 1)
	svc.Bump(ctx, u, now, domain.EntryCig)

	stored, err := c.Fill(ctx, u.ID, domain.EntryCig, "2025-03-15", gen, 0)
	require.NoError(t, err)
	assert.False(t, stored)

	n, err := svc.CountForDay(ctx, u, now, domain.EntryCig)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCountForDay_CacheOutageFallsBack(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodCigarettes, 5)
	c, mr := setupCache(t)
	svc := newService(db, c)

	addEntries(t, db, u, domain.EntryCig, now, 2)
	mr.Close()

	n, err := svc.CountForDay(context.Background(), u, now, domain.EntryCig)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Bump must not fail the caller either.
	svc.Bump(context.Background(), u, now, domain.EntryCig)
}

func TestBind_DropsCache(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, domain.MethodCigarettes, 5)
	c, mr := setupCache(t)
	svc := newService(db, c)

	mr.HSet(cache.Key(u.ID, domain.EntryCig, "2025-03-15"), "count", "42")

	n, err := svc.Bind(db).CountForDay(context.Background(), u, now, domain.EntryCig)
	require.NoError(t, err)
	assert.Zero(t, n, "bound service reads the store, not the cache")
}

// ─── Properties ─────────────────────────────────────────────────────────────

func TestCountForDay_Idempotent(t *testing.T) {
	db := testDB(t)
	svc := newService(db, nil)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("repeated count without writes is stable", prop.ForAll(
		func(n int, hour int) bool {
			u := testUser(t, db, domain.MethodCigarettes, 5)
			addEntries(t, db, u, domain.EntryCig, time.Date(2025, 3, 15, hour, 0, 0, 0, time.UTC), n)

			first, err1 := svc.CountForDay(ctx, u, now, domain.EntryCig)
			second, err2 := svc.CountForDay(ctx, u, now, domain.EntryCig)
			return err1 == nil && err2 == nil && first == second && first == n
		},
		gen.IntRange(0, 15),
		gen.IntRange(0, 23),
	))

	properties.TestingRun(t)
}
