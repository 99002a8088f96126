package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/puffquest/puffquest/internal/domain"
)

// ─── User Repository ────────────────────────────────────────────────────────

const userColumns = `id, display_name, method, daily_limit, pack_size, pack_cost, currency, xp, coins, created_at, last_recalc_day`

// InsertUser creates a new user record.
func (s *Store) InsertUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.DisplayName, string(u.Method), u.DailyLimit,
		u.PackSize, u.PackCost, u.Currency, u.XP, u.Coins,
		toMillis(u.CreatedAt), nullStr(u.LastRecalcDay),
	)
	return storageErr("insert user", err)
}

// GetUser retrieves a user by ID. Returns nil, nil when absent.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id.String(),
	)
	return scanUser(row)
}

// FirstUser returns the oldest user, or nil, nil when there is none.
func (s *Store) FirstUser(ctx context.Context) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC LIMIT 1`,
	)
	return scanUser(row)
}

// ListUsers returns all users, oldest first.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, storageErr("list users", rows.Err())
}

// UpdateProgression writes XP, coins and the last processed day.
// The WHERE clause refuses to lower XP or coins.
func (s *Store) UpdateProgression(ctx context.Context, u domain.User) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET xp = ?, coins = ?, last_recalc_day = ?
		 WHERE id = ? AND xp <= ? AND coins <= ?`,
		u.XP, u.Coins, nullStr(u.LastRecalcDay), u.ID.String(), u.XP, u.Coins,
	)
	if err != nil {
		return storageErr("update progression", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		return nil
	}
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return domain.ErrUserNotFound
	}
	return domain.ErrProgressionRegressed
}

// DeleteUser removes a user and, by cascade, everything it owns.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id.String())
	if err != nil {
		return storageErr("delete user", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(sc scanner) (*domain.User, error) {
	var u domain.User
	var id, method string
	var createdAt int64
	var lastDay sql.NullString

	err := sc.Scan(&id, &u.DisplayName, &method, &u.DailyLimit, &u.PackSize,
		&u.PackCost, &u.Currency, &u.XP, &u.Coins, &createdAt, &lastDay)
	if isNoRows(err) {
		return nil, nil // Not found, no error
	}
	if err != nil {
		return nil, storageErr("scan user", err)
	}

	u.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, storageErr("scan user", err)
	}
	u.Method = domain.Method(method)
	u.CreatedAt = fromMillis(createdAt)
	if lastDay.Valid {
		u.LastRecalcDay = lastDay.String
	}
	return &u, nil
}
