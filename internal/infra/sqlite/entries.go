package sqlite

import (
	"context"

	"github.com/google/uuid"

	"github.com/puffquest/puffquest/internal/domain"
)

// ─── Entry Store ────────────────────────────────────────────────────────────

// InsertEntry persists a new entry. Entries are never updated afterwards.
func (s *Store) InsertEntry(ctx context.Context, e domain.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (id, user_id, created_at, type, cost) VALUES (?, ?, ?, ?, ?)`,
		e.ID.String(), e.UserID.String(), toMillis(e.CreatedAt), string(e.Type), e.Cost,
	)
	return storageErr("insert entry", err)
}

// QueryEntries returns a user's entries of one type within [r.Start, r.End),
// oldest first.
func (s *Store) QueryEntries(ctx context.Context, userID uuid.UUID, typ domain.EntryType, r domain.DateRange) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, created_at, type, cost FROM entries
		 WHERE user_id = ? AND type = ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC, rowid ASC`,
		userID.String(), string(typ), toMillis(r.Start), toMillis(r.End),
	)
	if err != nil {
		return nil, storageErr("query entries", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, storageErr("query entries", rows.Err())
}

// CountEntries counts a user's entries of one type within [r.Start, r.End).
func (s *Store) CountEntries(ctx context.Context, userID uuid.UUID, typ domain.EntryType, r domain.DateRange) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries
		 WHERE user_id = ? AND type = ? AND created_at >= ? AND created_at < ?`,
		userID.String(), string(typ), toMillis(r.Start), toMillis(r.End),
	).Scan(&count)
	if err != nil {
		return 0, storageErr("count entries", err)
	}
	return count, nil
}

// MostRecentEntry returns the latest entry of a type, or nil, nil.
func (s *Store) MostRecentEntry(ctx context.Context, userID uuid.UUID, typ domain.EntryType) (*domain.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, type, cost FROM entries
		 WHERE user_id = ? AND type = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		userID.String(), string(typ),
	)
	return scanEntry(row)
}

func scanEntry(sc scanner) (*domain.Entry, error) {
	var e domain.Entry
	var id, userID, typ string
	var createdAt int64

	err := sc.Scan(&id, &userID, &createdAt, &typ, &e.Cost)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan entry", err)
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, storageErr("scan entry", err)
	}
	if e.UserID, err = uuid.Parse(userID); err != nil {
		return nil, storageErr("scan entry", err)
	}
	e.CreatedAt = fromMillis(createdAt)
	e.Type = domain.EntryType(typ)
	return &e, nil
}
