// Engagement types: streaks, levels, rewards and achievements.
// Progression is derived nightly from a day's count against the user's limit:
// XP, coins, the within-limit streak, and threshold achievements.

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ─── Streak Types ───────────────────────────────────────────────────────────

// Streak tracks consecutive within-limit days. One per user.
// BestLength is a high-water mark and is never below CurrentLength.
type Streak struct {
	UserID        uuid.UUID `json:"user_id"`
	CurrentLength int       `json:"current_length"`
	BestLength    int       `json:"best_length"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Extend counts one more within-limit day.
func (s *Streak) Extend(at time.Time) {
	s.CurrentLength++
	if s.CurrentLength > s.BestLength {
		s.BestLength = s.CurrentLength
	}
	s.UpdatedAt = at
}

// Reset breaks the streak. The best length is kept.
func (s *Streak) Reset(at time.Time) {
	s.CurrentLength = 0
	s.UpdatedAt = at
}

// ─── Level / XP Types ───────────────────────────────────────────────────────

// UserLevel is the level derived from accumulated XP.
type UserLevel struct {
	Level       int   `json:"level"`
	CurrentXP   int64 `json:"current_xp"`
	NextLevelXP int64 `json:"next_level_xp"`
}

// XPSource categorizes how XP and coins were earned.
type XPSource string

const (
	XPDayWithinLimit XPSource = "DAY_WITHIN_LIMIT"
	XPDayOverLimit   XPSource = "DAY_OVER_LIMIT"
	XPAchievement    XPSource = "ACHIEVEMENT"
)

// RewardEntry is one row of the append-only reward ledger.
type RewardEntry struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Day       string    `json:"day"`
	Source    XPSource  `json:"source"`
	Reference string    `json:"reference,omitempty"` // achievement code for XPAchievement
	XP        int64     `json:"xp"`
	Coins     int64     `json:"coins"`
	CreatedAt time.Time `json:"created_at"`
}

// ─── Achievement Types ──────────────────────────────────────────────────────

// AchievementKind selects which progress measure an achievement tracks.
type AchievementKind string

const (
	KindStreak          AchievementKind = "streak"
	KindDaysWithinLimit AchievementKind = "daysWithinLimit"
	KindTotalSaved      AchievementKind = "totalSaved"
)

// Achievement is a global catalog row. Code is the stable identity and rows
// are immutable once created.
type Achievement struct {
	ID          uuid.UUID       `json:"id"`
	Code        string          `json:"code"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	Threshold   int64           `json:"threshold"`
	Kind        AchievementKind `json:"kind"`
}

// UserAchievement is a user's progress on one achievement.
// Progress only grows; AchievedAt is set once and never cleared.
type UserAchievement struct {
	UserID          uuid.UUID  `json:"user_id"`
	AchievementCode string     `json:"achievement_code"`
	Progress        int64      `json:"progress"`
	AchievedAt      *time.Time `json:"achieved_at,omitempty"`
}

// Achieved reports whether the achievement has been unlocked.
func (ua UserAchievement) Achieved() bool { return ua.AchievedAt != nil }

// Observe folds a new progress reading in as a high-water mark.
func (ua *UserAchievement) Observe(progress int64) {
	if progress > ua.Progress {
		ua.Progress = progress
	}
}

// AchievementStatus joins a catalog row with the user's progress on it.
type AchievementStatus struct {
	Achievement
	Progress   int64      `json:"progress"`
	AchievedAt *time.Time `json:"achieved_at,omitempty"`
}

// ─── Progress Snapshot ──────────────────────────────────────────────────────

// ProgressSnapshot is everything the UI shows about a user's progression.
type ProgressSnapshot struct {
	UserID        uuid.UUID           `json:"user_id"`
	Level         UserLevel           `json:"level"`
	Coins         int64               `json:"coins"`
	Streak        Streak              `json:"streak"`
	MoneySaved    int64               `json:"money_saved"`
	Currency      string              `json:"currency"`
	Achievements  []AchievementStatus `json:"achievements"`
	LastRecalcDay string              `json:"last_recalc_day,omitempty"`
}

// RecalcResult reports what one nightly recalculation applied.
type RecalcResult struct {
	Day         string    `json:"day"`
	Skipped     bool      `json:"skipped"`
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	WithinLimit bool      `json:"within_limit"`
	XPGained    int64     `json:"xp_gained"`
	CoinsGained int64     `json:"coins_gained"`
	Streak      Streak    `json:"streak"`
	Unlocked    []string  `json:"unlocked,omitempty"`
	User        User      `json:"user"`
	ProcessedAt time.Time `json:"processed_at"`
}
