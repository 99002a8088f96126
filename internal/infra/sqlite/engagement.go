package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/puffquest/puffquest/internal/domain"
)

// ─── Streaks ────────────────────────────────────────────────────────────────

// GetStreak returns the user's streak, or nil, nil if none exists yet.
func (s *Store) GetStreak(ctx context.Context, userID uuid.UUID) (*domain.Streak, error) {
	var st domain.Streak
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT current_length, best_length, updated_at FROM streaks WHERE user_id = ?`,
		userID.String(),
	).Scan(&st.CurrentLength, &st.BestLength, &updatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get streak", err)
	}
	st.UserID = userID
	st.UpdatedAt = fromMillis(updatedAt)
	return &st, nil
}

// UpsertStreak writes the user's single streak row.
// best_length is kept as a high-water mark even if the caller passes less.
func (s *Store) UpsertStreak(ctx context.Context, st domain.Streak) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO streaks (user_id, current_length, best_length, updated_at)
		 VALUES (?, ?, MAX(?, ?), ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			current_length=excluded.current_length,
			best_length=MAX(streaks.best_length, excluded.best_length),
			updated_at=excluded.updated_at`,
		st.UserID.String(), st.CurrentLength, st.BestLength, st.CurrentLength, toMillis(st.UpdatedAt),
	)
	return storageErr("upsert streak", err)
}

// ─── Achievement Catalog ────────────────────────────────────────────────────

const achievementColumns = `id, code, title, description, icon, threshold, kind`

// EnsureAchievement creates the catalog row for a.Code if absent and returns
// the stored row. An existing row is never modified.
func (s *Store) EnsureAchievement(ctx context.Context, a domain.Achievement) (domain.Achievement, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO achievements (`+achievementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO NOTHING`,
		a.ID.String(), a.Code, a.Title, a.Description, a.Icon, a.Threshold, string(a.Kind),
	)
	if err != nil {
		return domain.Achievement{}, storageErr("ensure achievement", err)
	}

	stored, err := s.GetAchievement(ctx, a.Code)
	if err != nil {
		return domain.Achievement{}, err
	}
	if stored == nil {
		return domain.Achievement{}, domain.ErrAchievementNotFound
	}
	return *stored, nil
}

// GetAchievement looks a catalog row up by code. Returns nil, nil if absent.
func (s *Store) GetAchievement(ctx context.Context, code string) (*domain.Achievement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+achievementColumns+` FROM achievements WHERE code = ?`, code,
	)
	return scanAchievement(row)
}

// ListAchievements returns the whole catalog ordered by threshold.
func (s *Store) ListAchievements(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+achievementColumns+` FROM achievements ORDER BY kind, threshold, code`,
	)
	if err != nil {
		return nil, storageErr("list achievements", err)
	}
	defer rows.Close()

	var list []domain.Achievement
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, storageErr("list achievements", rows.Err())
}

func scanAchievement(sc scanner) (*domain.Achievement, error) {
	var a domain.Achievement
	var id, kind string
	err := sc.Scan(&id, &a.Code, &a.Title, &a.Description, &a.Icon, &a.Threshold, &kind)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan achievement", err)
	}
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, storageErr("scan achievement", err)
	}
	a.Kind = domain.AchievementKind(kind)
	return &a, nil
}

// ─── User Achievements ──────────────────────────────────────────────────────

// GetUserAchievement returns progress for (user, code), or nil, nil.
func (s *Store) GetUserAchievement(ctx context.Context, userID uuid.UUID, code string) (*domain.UserAchievement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, achievement_code, progress, achieved_at
		 FROM user_achievements WHERE user_id = ? AND achievement_code = ?`,
		userID.String(), code,
	)
	return scanUserAchievement(row)
}

// ListUserAchievements returns all progress rows of a user.
func (s *Store) ListUserAchievements(ctx context.Context, userID uuid.UUID) ([]domain.UserAchievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, achievement_code, progress, achieved_at
		 FROM user_achievements WHERE user_id = ? ORDER BY achievement_code`,
		userID.String(),
	)
	if err != nil {
		return nil, storageErr("list user achievements", err)
	}
	defer rows.Close()

	var list []domain.UserAchievement
	for rows.Next() {
		ua, err := scanUserAchievement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *ua)
	}
	return list, storageErr("list user achievements", rows.Err())
}

// UpsertUserAchievement writes progress for (user, code). The statement itself
// keeps progress monotonic and achieved_at set-once, whatever the caller passes.
func (s *Store) UpsertUserAchievement(ctx context.Context, ua domain.UserAchievement) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_code, progress, achieved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, achievement_code) DO UPDATE SET
			progress=MAX(user_achievements.progress, excluded.progress),
			achieved_at=COALESCE(user_achievements.achieved_at, excluded.achieved_at)`,
		ua.UserID.String(), ua.AchievementCode, ua.Progress, nullableMillis(ua.AchievedAt),
	)
	return storageErr("upsert user achievement", err)
}

func scanUserAchievement(sc scanner) (*domain.UserAchievement, error) {
	var ua domain.UserAchievement
	var userID string
	var achievedAt sql.NullInt64
	err := sc.Scan(&userID, &ua.AchievementCode, &ua.Progress, &achievedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan user achievement", err)
	}
	if ua.UserID, err = uuid.Parse(userID); err != nil {
		return nil, storageErr("scan user achievement", err)
	}
	if achievedAt.Valid {
		t := time.UnixMilli(achievedAt.Int64)
		ua.AchievedAt = &t
	}
	return &ua, nil
}
