package rollover_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puffquest/puffquest/internal/app/engagement"
	"github.com/puffquest/puffquest/internal/app/rollover"
	"github.com/puffquest/puffquest/internal/app/stats"
	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

var now = time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)

func setup(t *testing.T, cfg rollover.Config) (*rollover.Runner, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := stats.NewService(db, nil, domain.NewCalendar(time.UTC), domain.FixedClock(now), nil)
	game := engagement.NewService(db, st, nil, nil)
	return rollover.NewRunner(db, st, game, cfg, nil), db
}

func addUser(t *testing.T, db *sqlite.DB, createdAt time.Time) domain.User {
	t.Helper()
	u := domain.User{
		ID:          uuid.New(),
		DisplayName: "Tester",
		Method:      domain.MethodCigarettes,
		DailyLimit:  5,
		CreatedAt:   createdAt,
	}
	require.NoError(t, db.InsertUser(context.Background(), u))
	return u
}

func keys(days []time.Time) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = d.Format(domain.DayLayout)
	}
	return out
}

func TestPendingDays(t *testing.T) {
	r, _ := setup(t, rollover.Config{CatchUpDays: 7})

	fresh := domain.User{CreatedAt: time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)}
	assert.Equal(t, []string{"2025-03-12", "2025-03-13", "2025-03-14"}, keys(r.PendingDays(fresh, now)))

	processed := fresh
	processed.LastRecalcDay = "2025-03-13"
	assert.Equal(t, []string{"2025-03-14"}, keys(r.PendingDays(processed, now)))

	processed.LastRecalcDay = "2025-03-14"
	assert.Empty(t, r.PendingDays(processed, now))

	old := domain.User{CreatedAt: now.AddDate(0, -2, 0)}
	days := keys(r.PendingDays(old, now))
	require.Len(t, days, 7)
	assert.Equal(t, "2025-03-08", days[0])
	assert.Equal(t, "2025-03-14", days[6])

	today := domain.User{CreatedAt: now.Add(-time.Hour)}
	assert.Empty(t, r.PendingDays(today, now), "today is never scored before it ends")
}

func TestRunOnce(t *testing.T) {
	r, db := setup(t, rollover.Config{})
	ctx := context.Background()

	u := addUser(t, db, time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC))
	for i := 0; i < 8; i++ {
		require.NoError(t, db.InsertEntry(ctx, domain.Entry{
			ID: uuid.New(), UserID: u.ID, Type: domain.EntryCig,
			CreatedAt: time.Date(2025, 3, 13, 9, i, 0, 0, time.UTC),
		}))
	}

	rep, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, rollover.Report{Users: 1, Applied: 3}, rep)

	got, err := db.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", got.LastRecalcDay)
	assert.Positive(t, got.XP)

	st, err := db.GetStreak(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, 1, st.CurrentLength, "over-limit 13th resets, 14th extends")
	assert.Equal(t, 1, st.BestLength)

	// Nothing left to do on the next pass.
	xp := got.XP
	rep, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, rollover.Report{Users: 1}, rep)
	got, _ = db.GetUser(ctx, u.ID)
	assert.Equal(t, xp, got.XP)
}

func TestRunOnce_CatchUpBound(t *testing.T) {
	r, db := setup(t, rollover.Config{CatchUpDays: 3})
	ctx := context.Background()
	u := addUser(t, db, now.AddDate(0, 0, -30))

	rep, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Applied)

	st, _ := db.GetStreak(ctx, u.ID)
	assert.Equal(t, 3, st.CurrentLength)
}

func TestRunOnce_Canceled(t *testing.T) {
	r, db := setup(t, rollover.Config{})
	addUser(t, db, now.AddDate(0, 0, -3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RunOnce(ctx)
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	r, db := setup(t, rollover.Config{Interval: 10 * time.Millisecond})
	u := addUser(t, db, now.AddDate(0, 0, -2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := db.GetUser(context.Background(), u.ID)
		return err == nil && got.LastRecalcDay == "2025-03-14"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
