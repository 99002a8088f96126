package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/puffquest/puffquest/internal/domain"
)

// ─── Reward Ledger ──────────────────────────────────────────────────────────

// InsertReward appends a ledger row. Rows are never updated.
func (s *Store) InsertReward(ctx context.Context, r domain.RewardEntry) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reward_ledger (id, user_id, day, source, reference, xp, coins, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.UserID.String(), r.Day, string(r.Source),
		nullStr(r.Reference), r.XP, r.Coins, toMillis(r.CreatedAt),
	)
	return storageErr("insert reward", err)
}

// ListRewards returns a user's most recent ledger rows, newest first.
func (s *Store) ListRewards(ctx context.Context, userID uuid.UUID, limit int) ([]domain.RewardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, day, source, reference, xp, coins, created_at
		 FROM reward_ledger WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID.String(), limit,
	)
	if err != nil {
		return nil, storageErr("list rewards", err)
	}
	defer rows.Close()

	var entries []domain.RewardEntry
	for rows.Next() {
		var e domain.RewardEntry
		var id, uid, source string
		var ref sql.NullString
		var ts int64
		if err := rows.Scan(&id, &uid, &e.Day, &source, &ref, &e.XP, &e.Coins, &ts); err != nil {
			return nil, storageErr("scan reward", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, storageErr("scan reward", err)
		}
		if e.UserID, err = uuid.Parse(uid); err != nil {
			return nil, storageErr("scan reward", err)
		}
		e.Source = domain.XPSource(source)
		if ref.Valid {
			e.Reference = ref.String
		}
		e.CreatedAt = fromMillis(ts)
		entries = append(entries, e)
	}
	return entries, storageErr("list rewards", rows.Err())
}

// RewardTotals sums XP and coins awarded to a user across the ledger.
func (s *Store) RewardTotals(ctx context.Context, userID uuid.UUID) (xp, coins int64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(xp), 0), COALESCE(SUM(coins), 0) FROM reward_ledger WHERE user_id = ?`,
		userID.String(),
	).Scan(&xp, &coins)
	if err != nil {
		return 0, 0, storageErr("reward totals", err)
	}
	return xp, coins, nil
}
