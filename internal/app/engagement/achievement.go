package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/puffquest/puffquest/internal/app/stats"
	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

// Unlock bonus granted once per achievement.
const (
	AchievementXP    int64 = 100
	AchievementCoins int64 = 20
)

// DaysWithinWindow is the trailing window for daysWithinLimit progress.
const DaysWithinWindow = 30

// DefaultCatalog returns the seed achievement catalog.
func DefaultCatalog() []domain.Achievement {
	return []domain.Achievement{
		{
			Code:        "first_day",
			Title:       "First Step",
			Description: "Track at least one day to begin your journey.",
			Icon:        "flame",
			Threshold:   1,
			Kind:        domain.KindDaysWithinLimit,
		},
		{
			Code:        "week_control",
			Title:       "Control x7",
			Description: "Stay within your limit for 7 days in a row.",
			Icon:        "calendar",
			Threshold:   7,
			Kind:        domain.KindStreak,
		},
		{
			Code:        "savings_1000",
			Title:       "Savings 1000",
			Description: "Save 1000 currency units compared to your baseline.",
			Icon:        "banknote",
			Threshold:   1000,
			Kind:        domain.KindTotalSaved,
		},
	}
}

// progressReader computes achievement progress for one user and day. The
// 30-day totals are loaded at most once.
type progressReader struct {
	stats  *stats.Service
	user   domain.User
	streak domain.Streak
	day    time.Time
	totals domain.DailyTotals
}

func (p *progressReader) window(ctx context.Context) (domain.DailyTotals, error) {
	if p.totals != nil {
		return p.totals, nil
	}
	totals, err := p.stats.TotalsEndingAt(ctx, p.user, p.day, DaysWithinWindow, p.user.EntryType())
	if err != nil {
		return nil, err
	}
	p.totals = totals
	return totals, nil
}

// progress returns the current reading for one achievement kind.
func (p *progressReader) progress(ctx context.Context, kind domain.AchievementKind) (int64, error) {
	switch kind {
	case domain.KindStreak:
		return int64(p.streak.BestLength), nil

	case domain.KindDaysWithinLimit:
		totals, err := p.window(ctx)
		if err != nil {
			return 0, err
		}
		return max(int64(p.streak.CurrentLength), int64(totals.CountWithin(p.user.DailyLimit))), nil

	case domain.KindTotalSaved:
		totals, err := p.window(ctx)
		if err != nil {
			return 0, err
		}
		return EstimatedMoneySaved(p.user, totals), nil
	}
	return 0, fmt.Errorf("unknown achievement kind %q", kind)
}

// updateAchievements folds new progress into every catalog achievement and
// unlocks those that reach their threshold for the first time. Unlock bonuses
// are added to user; the codes of new unlocks are returned.
func (s *Service) updateAchievements(ctx context.Context, tx *sqlite.Store, p *progressReader, user *domain.User, day time.Time) ([]string, error) {
	var unlocked []string

	for _, def := range s.catalog {
		a, err := tx.EnsureAchievement(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("ensure achievement %s: %w", def.Code, err)
		}

		ua, err := tx.GetUserAchievement(ctx, user.ID, a.Code)
		if err != nil {
			return nil, err
		}
		if ua == nil {
			ua = &domain.UserAchievement{UserID: user.ID, AchievementCode: a.Code}
		}

		reading, err := p.progress(ctx, a.Kind)
		if err != nil {
			return nil, fmt.Errorf("progress for %s: %w", a.Code, err)
		}
		ua.Observe(reading)

		if !ua.Achieved() && ua.Progress >= a.Threshold {
			at := day
			ua.AchievedAt = &at
			user.XP += AchievementXP
			user.Coins += AchievementCoins
			unlocked = append(unlocked, a.Code)
		}

		if err := tx.UpsertUserAchievement(ctx, *ua); err != nil {
			return nil, err
		}
	}
	return unlocked, nil
}

// statuses joins the catalog with a user's progress rows, in catalog order.
func statuses(catalog []domain.Achievement, rows []domain.UserAchievement) []domain.AchievementStatus {
	byCode := make(map[string]domain.UserAchievement, len(rows))
	for _, r := range rows {
		byCode[r.AchievementCode] = r
	}
	out := make([]domain.AchievementStatus, 0, len(catalog))
	for _, a := range catalog {
		st := domain.AchievementStatus{Achievement: a}
		if r, ok := byCode[a.Code]; ok {
			st.Progress = r.Progress
			st.AchievedAt = r.AchievedAt
		}
		out = append(out, st)
	}
	return out
}
