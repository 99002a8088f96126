package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/puffquest/puffquest/internal/app/stats"
	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/metrics"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

// Service owns all durable progression: XP, coins, the streak and
// achievements. Every mutation holds the user's lock and runs in one
// SQLite transaction.
type Service struct {
	db      *sqlite.DB
	stats   *stats.Service
	locks   *Locks
	catalog []domain.Achievement
	logger  *zap.Logger
}

// NewService creates a gamification service with the default catalog.
// locks may be shared with other writers; nil creates a private table.
func NewService(db *sqlite.DB, st *stats.Service, locks *Locks, logger *zap.Logger) *Service {
	if locks == nil {
		locks = NewLocks()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      db,
		stats:   st,
		locks:   locks,
		catalog: DefaultCatalog(),
		logger:  logger.Named("engagement"),
	}
}

// SetCatalog replaces the achievement catalog evaluated on recalculation.
// Must be called before the service is used.
func (s *Service) SetCatalog(catalog []domain.Achievement) {
	s.catalog = append([]domain.Achievement(nil), catalog...)
}

// Catalog returns the achievement definitions in evaluation order.
func (s *Service) Catalog() []domain.Achievement {
	return append([]domain.Achievement(nil), s.catalog...)
}

// Locks returns the per-user lock table.
func (s *Service) Locks() *Locks { return s.locks }

// BootstrapCatalog creates every missing catalog row. Existing rows are left
// untouched, so it is safe to call on every start and from concurrent callers.
func (s *Service) BootstrapCatalog(ctx context.Context) error {
	for _, def := range s.catalog {
		if _, err := s.db.EnsureAchievement(ctx, def); err != nil {
			return fmt.Errorf("bootstrap achievement %s: %w", def.Code, err)
		}
	}
	return nil
}

// ─── Real-time hook ─────────────────────────────────────────────────────────

// Feedback is the immediate reaction to a newly recorded entry.
type Feedback struct {
	Count     int              `json:"count"`
	Limit     int              `json:"limit"`
	Remaining int              `json:"remaining"`
	Status    domain.DayStatus `json:"status"`
}

// OnEntryAdded reports where the user stands for the day containing at.
// It only reads; all scoring happens in NightlyRecalc.
func (s *Service) OnEntryAdded(ctx context.Context, user domain.User, at time.Time) (Feedback, error) {
	count, err := s.stats.CountForDay(ctx, user, at, user.EntryType())
	if err != nil {
		return Feedback{}, err
	}
	fb := Feedback{
		Count:     count,
		Limit:     user.DailyLimit,
		Remaining: max(0, user.DailyLimit-count),
		Status:    domain.StatusFor(count, user.DailyLimit),
	}
	s.logger.Debug("entry added",
		zap.String("user_id", user.ID.String()),
		zap.Int("count", fb.Count),
		zap.Int("limit", fb.Limit),
		zap.String("status", string(fb.Status)),
	)
	return fb, nil
}

// ─── Nightly recalculation ──────────────────────────────────────────────────

// NightlyRecalc scores the calendar day containing date for the user and
// applies XP, coins, the streak transition and achievement unlocks.
//
// Each (user, day) is applied at most once: a day at or before the user's
// last processed day is a no-op returning Skipped. Either every change is
// committed together with the new last processed day, or nothing is.
func (s *Service) NightlyRecalc(ctx context.Context, userID uuid.UUID, date time.Time) (domain.RecalcResult, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	started := time.Now()
	cal := s.stats.Calendar()
	day := cal.StartOfDay(date)
	dayKey := cal.DayKey(day)
	now := s.stats.Now()

	var res domain.RecalcResult
	var rewards []domain.RewardEntry

	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sqlite.Store) error {
		res, rewards = domain.RecalcResult{Day: dayKey, ProcessedAt: now}, nil

		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return domain.ErrUserNotFound
		}
		user := *u

		if user.LastRecalcDay != "" && dayKey <= user.LastRecalcDay {
			res.Skipped = true
			res.Limit = user.DailyLimit
			res.User = user
			return nil
		}

		st := s.stats.Bind(tx)
		count, err := st.CountForDay(ctx, user, day, user.EntryType())
		if err != nil {
			return err
		}

		streak, _, err := ensureStreak(ctx, tx, user.ID, now)
		if err != nil {
			return err
		}

		outcome := DailyReward(count, user.DailyLimit)
		ApplyDay(&streak, outcome, now)
		user.XP += outcome.XP
		user.Coins += outcome.Coins

		r, err := grant(ctx, tx, user.ID, dayKey, outcome.Source(), "", outcome.XP, outcome.Coins, now)
		if err != nil {
			return err
		}
		rewards = append(rewards, r)

		if err := tx.UpsertStreak(ctx, streak); err != nil {
			return err
		}

		reader := &progressReader{stats: st, user: user, streak: streak, day: day}
		unlocked, err := s.updateAchievements(ctx, tx, reader, &user, day)
		if err != nil {
			return err
		}
		for _, code := range unlocked {
			r, err := grant(ctx, tx, user.ID, dayKey, domain.XPAchievement, code, AchievementXP, AchievementCoins, now)
			if err != nil {
				return err
			}
			rewards = append(rewards, r)
		}

		user.LastRecalcDay = dayKey
		if err := tx.UpdateProgression(ctx, user); err != nil {
			return err
		}

		res.Count = count
		res.Limit = user.DailyLimit
		res.WithinLimit = outcome.Within
		res.XPGained = outcome.XP + int64(len(unlocked))*AchievementXP
		res.CoinsGained = outcome.Coins + int64(len(unlocked))*AchievementCoins
		res.Streak = streak
		res.Unlocked = unlocked
		res.User = user
		return nil
	})
	metrics.RecalcLatency.Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.Recalcs.WithLabelValues("failed").Inc()
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Error("nightly recalc failed",
				zap.String("user_id", userID.String()),
				zap.String("day", dayKey),
				zap.Error(err),
			)
		}
		return domain.RecalcResult{}, fmt.Errorf("nightly recalc %s: %w", dayKey, err)
	}

	s.observe(res, rewards)
	return res, nil
}

// RecalcThrough scores, oldest first, every day after the user's last
// scored day up to and including the day containing date. Without a scored
// day the run starts at the user's creation day, or at date if that is
// earlier. Each day is its own NightlyRecalc; the first failure stops the
// run and the days already scored stay applied. When date is already
// covered, the single skipped result for it is returned.
func (s *Service) RecalcThrough(ctx context.Context, userID uuid.UUID, date time.Time) ([]domain.RecalcResult, error) {
	u, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recalc through: %w", err)
	}
	if u == nil {
		return nil, domain.ErrUserNotFound
	}

	cal := s.stats.Calendar()
	end := cal.StartOfDay(date)
	start := cal.StartOfDay(u.CreatedAt)
	if u.LastRecalcDay != "" {
		last, err := cal.ParseDay(u.LastRecalcDay)
		if err != nil {
			return nil, fmt.Errorf("recalc through: last scored day %q: %w", u.LastRecalcDay, err)
		}
		start = cal.AddDays(last, 1)
	}
	if start.After(end) {
		start = end
	}

	var out []domain.RecalcResult
	for d := start; !d.After(end); d = cal.AddDays(d, 1) {
		res, err := s.NightlyRecalc(ctx, userID, d)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// observe records metrics and logs for a committed recalculation.
func (s *Service) observe(res domain.RecalcResult, rewards []domain.RewardEntry) {
	log := s.logger.With(zap.String("user_id", res.User.ID.String()), zap.String("day", res.Day))

	if res.Skipped {
		metrics.Recalcs.WithLabelValues("skipped").Inc()
		log.Debug("nightly recalc skipped, day already processed",
			zap.String("last_recalc_day", res.User.LastRecalcDay))
		return
	}

	outcome := "over"
	if res.WithinLimit {
		outcome = "within"
	}
	metrics.Recalcs.WithLabelValues(outcome).Inc()
	for _, r := range rewards {
		metrics.XPAwarded.WithLabelValues(string(r.Source)).Add(float64(r.XP))
		metrics.CoinsAwarded.WithLabelValues(string(r.Source)).Add(float64(r.Coins))
	}
	for _, code := range res.Unlocked {
		metrics.AchievementsUnlocked.WithLabelValues(code).Inc()
		log.Info("achievement unlocked", zap.String("code", code))
	}

	log.Info("nightly recalc applied",
		zap.Int("count", res.Count),
		zap.Int("limit", res.Limit),
		zap.Bool("within_limit", res.WithinLimit),
		zap.Int64("xp_gained", res.XPGained),
		zap.Int64("coins_gained", res.CoinsGained),
		zap.Int("streak", res.Streak.CurrentLength),
	)
}

// ─── Read side ──────────────────────────────────────────────────────────────

// EstimatedMoneySaved projects the user's monthly savings from the last 30
// days including today.
func (s *Service) EstimatedMoneySaved(ctx context.Context, user domain.User) (int64, error) {
	totals, err := s.stats.TotalsForLastDays(ctx, user, SavingsWindowDays, user.EntryType())
	if err != nil {
		return 0, err
	}
	return EstimatedMoneySaved(user, totals), nil
}

// Progress returns the user's progression snapshot. The streak row is
// created on first read.
func (s *Service) Progress(ctx context.Context, userID uuid.UUID) (domain.ProgressSnapshot, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	var snap domain.ProgressSnapshot
	err := s.db.WithTx(ctx, func(ctx context.Context, tx *sqlite.Store) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return domain.ErrUserNotFound
		}

		streak, created, err := ensureStreak(ctx, tx, userID, s.stats.Now())
		if err != nil {
			return err
		}
		if created {
			if err := tx.UpsertStreak(ctx, streak); err != nil {
				return err
			}
		}

		st := s.stats.Bind(tx)
		totals, err := st.TotalsForLastDays(ctx, *u, SavingsWindowDays, u.EntryType())
		if err != nil {
			return err
		}

		defs := make([]domain.Achievement, 0, len(s.catalog))
		for _, def := range s.catalog {
			stored, err := tx.GetAchievement(ctx, def.Code)
			if err != nil {
				return err
			}
			if stored != nil {
				def = *stored
			}
			defs = append(defs, def)
		}
		rows, err := tx.ListUserAchievements(ctx, userID)
		if err != nil {
			return err
		}

		snap = domain.ProgressSnapshot{
			UserID:        u.ID,
			Level:         LevelProgress(u.XP),
			Coins:         u.Coins,
			Streak:        streak,
			MoneySaved:    EstimatedMoneySaved(*u, totals),
			Currency:      u.Currency,
			Achievements:  statuses(defs, rows),
			LastRecalcDay: u.LastRecalcDay,
		}
		return nil
	})
	if err != nil {
		return domain.ProgressSnapshot{}, fmt.Errorf("progress: %w", err)
	}
	return snap, nil
}
