// Package rollover detects day changes and runs the nightly recalculation
// for every elapsed day a user has not been scored for yet.
package rollover

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/puffquest/puffquest/internal/app/engagement"
	"github.com/puffquest/puffquest/internal/app/stats"
	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/metrics"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

// Config controls the rollover loop.
type Config struct {
	Interval    time.Duration
	CatchUpDays int
}

// DefaultConfig checks every 15 minutes and catches up at most a week.
func DefaultConfig() Config {
	return Config{Interval: 15 * time.Minute, CatchUpDays: 7}
}

// Report summarizes one pass.
type Report struct {
	Users   int `json:"users"`
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Runner periodically scores finished days.
type Runner struct {
	db     *sqlite.DB
	stats  *stats.Service
	game   *engagement.Service
	cfg    Config
	logger *zap.Logger
}

// NewRunner creates a rollover runner. Zero config fields take defaults.
func NewRunner(db *sqlite.DB, st *stats.Service, game *engagement.Service, cfg Config, logger *zap.Logger) *Runner {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.CatchUpDays <= 0 {
		cfg.CatchUpDays = def.CatchUpDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{db: db, stats: st, game: game, cfg: cfg, logger: logger.Named("rollover")}
}

// Run performs a pass immediately and then every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	r.pass(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Runner) pass(ctx context.Context) {
	rep, err := r.RunOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("rollover pass failed", zap.Error(err))
		}
		return
	}
	if rep.Applied > 0 || rep.Failed > 0 {
		r.logger.Info("rollover pass finished",
			zap.Int("users", rep.Users),
			zap.Int("applied", rep.Applied),
			zap.Int("skipped", rep.Skipped),
			zap.Int("failed", rep.Failed),
		)
	}
}

// RunOnce recalculates every pending day of every user, oldest day first.
// A failing user is logged and counted; the pass moves on to the next user
// and retries the same day next time.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	users, err := r.db.ListUsers(ctx)
	if err != nil {
		return Report{}, err
	}

	today := r.stats.Today()
	rep := Report{Users: len(users)}
	for _, u := range users {
	days:
		for _, day := range r.PendingDays(u, today) {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			res, err := r.game.NightlyRecalc(ctx, u.ID, day)
			switch {
			case err != nil:
				rep.Failed++
				r.logger.Warn("recalc failed, retrying next pass",
					zap.String("user_id", u.ID.String()),
					zap.String("day", r.stats.Calendar().DayKey(day)),
					zap.Error(err),
				)
				break days
			case res.Skipped:
				rep.Skipped++
			default:
				rep.Applied++
			}
		}
	}

	metrics.RolloverLastRun.Set(float64(r.stats.Now().Unix()))
	return rep, nil
}

// PendingDays lists the finished days not yet scored for the user: from the
// day after the last processed day (or the signup day) through yesterday,
// never reaching back more than CatchUpDays.
func (r *Runner) PendingDays(u domain.User, today time.Time) []time.Time {
	cal := r.stats.Calendar()
	today = cal.StartOfDay(today)

	start := cal.StartOfDay(u.CreatedAt)
	if u.LastRecalcDay != "" {
		last, err := cal.ParseDay(u.LastRecalcDay)
		if err != nil {
			r.logger.Warn("unreadable last recalc day", zap.String("user_id", u.ID.String()), zap.Error(err))
		} else {
			start = cal.AddDays(last, 1)
		}
	}
	if earliest := cal.AddDays(today, -r.cfg.CatchUpDays); start.Before(earliest) {
		start = earliest
	}

	var days []time.Time
	for d := start; d.Before(today); d = cal.AddDays(d, 1) {
		days = append(days, d)
	}
	return days
}
