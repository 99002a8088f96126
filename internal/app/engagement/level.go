// Package engagement implements the PuffQuest gamification engine.
// Nightly recalculation turns a day's count into XP, coins, streak changes
// and achievement unlocks; levels are derived from XP on read.
package engagement

import (
	"math"

	"github.com/puffquest/puffquest/internal/domain"
)

// Level returns the level for an XP total: floor(sqrt(xp/100)) + 1, at least 1.
func Level(xp int64) int {
	if xp <= 0 {
		return 1
	}
	level := int(math.Floor(math.Sqrt(float64(xp)/100.0))) + 1
	if level < 1 {
		return 1
	}
	return level
}

// maxLevelStep is the largest n for which 100*n*n fits in an int64.
const maxLevelStep = 303_700_049

// XPForLevel returns the XP total at which a level is reached.
// It is the inverse of Level: 100 * (level-1)^2, saturating at
// math.MaxInt64 for levels no XP total can reach.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	n := int64(level - 1)
	if n > maxLevelStep {
		return math.MaxInt64
	}
	return 100 * n * n
}

// LevelProgress derives the level view for an XP total.
func LevelProgress(xp int64) domain.UserLevel {
	level := Level(xp)
	return domain.UserLevel{
		Level:       level,
		CurrentXP:   xp,
		NextLevelXP: XPForLevel(level + 1),
	}
}

// ProgressPct returns progress toward the next level (0.0–100.0).
func ProgressPct(xp int64) float64 {
	level := Level(xp)
	this, next := XPForLevel(level), XPForLevel(level+1)
	span := next - this
	if span <= 0 {
		return 100.0
	}
	pct := float64(xp-this) / float64(span) * 100.0
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
