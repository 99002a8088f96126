package engagement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

// Daily reward policy.
const (
	WithinLimitXP    int64 = 30
	WithinLimitCoins int64 = 5
	OverLimitBaseXP  int64 = 15
	OverLimitMinXP   int64 = 5
)

// DayOutcome is the reward for one processed day.
type DayOutcome struct {
	Within bool
	XP     int64
	Coins  int64
}

// Source is the ledger source of the day's reward.
func (o DayOutcome) Source() domain.XPSource {
	if o.Within {
		return domain.XPDayWithinLimit
	}
	return domain.XPDayOverLimit
}

// DailyReward scores a day's count against the limit. A day within the limit
// earns 30 XP and 5 coins. A day over it earns max(5, 15 - overshoot) XP and
// no coins.
func DailyReward(count, limit int) DayOutcome {
	if count <= limit {
		return DayOutcome{Within: true, XP: WithinLimitXP, Coins: WithinLimitCoins}
	}
	delta := int64(count - limit)
	return DayOutcome{XP: max(OverLimitMinXP, OverLimitBaseXP-delta)}
}

// ApplyDay moves the streak for one processed day: a day within the limit
// extends it, any other day resets it. BestLength is kept.
func ApplyDay(s *domain.Streak, o DayOutcome, at time.Time) {
	if o.Within {
		s.Extend(at)
		return
	}
	s.Reset(at)
}

// ensureStreak loads the user's streak, or a fresh zero streak if the user
// has none yet. The caller persists it.
func ensureStreak(ctx context.Context, tx *sqlite.Store, userID uuid.UUID, now time.Time) (domain.Streak, bool, error) {
	st, err := tx.GetStreak(ctx, userID)
	if err != nil {
		return domain.Streak{}, false, err
	}
	if st != nil {
		return *st, false, nil
	}
	return domain.Streak{UserID: userID, UpdatedAt: now}, true, nil
}
