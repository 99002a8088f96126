// Package tracking records consumption entries and reports where the user
// stands for the day after each one.
package tracking

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/puffquest/puffquest/internal/app/engagement"
	"github.com/puffquest/puffquest/internal/app/stats"
	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/metrics"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

// EntryRequest describes one entry to record.
type EntryRequest struct {
	// Type defaults to the unit the user's method counts.
	Type domain.EntryType
	// Cost overrides the cost derived from pack pricing.
	Cost *float64
	// At defaults to now.
	At time.Time
}

// Recorded is the stored entry plus the day feedback.
type Recorded struct {
	Entry    domain.Entry        `json:"entry"`
	Feedback engagement.Feedback `json:"feedback"`
}

// Service is the write path for entries.
type Service struct {
	db     *sqlite.DB
	stats  *stats.Service
	game   *engagement.Service
	locks  *engagement.Locks
	logger *zap.Logger
}

// NewService creates a tracking service. locks should be the table shared
// with the gamification service; nil uses game.Locks().
func NewService(db *sqlite.DB, st *stats.Service, game *engagement.Service, locks *engagement.Locks, logger *zap.Logger) *Service {
	if locks == nil {
		locks = game.Locks()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, stats: st, game: game, locks: locks, logger: logger.Named("tracking")}
}

// ResolveCost picks the cost of a new entry: the explicit cost if given,
// else the per-unit pack price for cigarette units, else 0.
func ResolveCost(user domain.User, typ domain.EntryType, explicit *float64) float64 {
	if explicit != nil {
		return *explicit
	}
	if typ == domain.EntryCig && user.HasPackPricing() {
		return user.PackUnitCost()
	}
	return 0
}

// AddEntry records one entry for the user. The entry is either stored or not
// at all; a failed cache bump or feedback read never undoes it.
func (s *Service) AddEntry(ctx context.Context, userID uuid.UUID, req EntryRequest) (Recorded, error) {
	if req.Cost != nil && (*req.Cost < 0 || math.IsNaN(*req.Cost) || math.IsInf(*req.Cost, 0)) {
		return Recorded{}, domain.NewValidationError("cost", "must be a non-negative number")
	}
	if req.Type != "" {
		if _, err := domain.ParseEntryType(string(req.Type)); err != nil {
			return Recorded{}, domain.NewValidationError("type", err.Error())
		}
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	u, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return Recorded{}, fmt.Errorf("add entry: %w", err)
	}
	if u == nil {
		return Recorded{}, domain.ErrUserNotFound
	}
	user := *u

	typ := req.Type
	if typ == "" {
		typ = user.EntryType()
	}
	at := req.At
	if at.IsZero() {
		at = s.stats.Now()
	}

	entry := domain.Entry{
		ID:        uuid.New(),
		UserID:    user.ID,
		CreatedAt: at,
		Type:      typ,
		Cost:      ResolveCost(user, typ, req.Cost),
	}
	err = s.db.WithTx(ctx, func(ctx context.Context, tx *sqlite.Store) error {
		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		return Recorded{}, fmt.Errorf("add entry: %w", err)
	}
	metrics.EntriesRecorded.WithLabelValues(string(typ)).Inc()

	s.stats.Bump(ctx, user, at, typ)

	rec := Recorded{Entry: entry}
	fb, err := s.game.OnEntryAdded(ctx, user, at)
	if err != nil {
		s.logger.Warn("entry feedback unavailable",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
	} else {
		rec.Feedback = fb
	}

	s.logger.Info("entry recorded",
		zap.String("user_id", user.ID.String()),
		zap.String("entry_id", entry.ID.String()),
		zap.String("type", string(typ)),
		zap.Float64("cost", entry.Cost),
	)
	return rec, nil
}

// EntriesForDay lists the user's entries of their counted unit for the day
// containing date, oldest first.
func (s *Service) EntriesForDay(ctx context.Context, user domain.User, date time.Time) ([]domain.Entry, error) {
	return s.db.QueryEntries(ctx, user.ID, user.EntryType(), s.stats.Calendar().DayRange(date))
}

// LastEntry returns the user's most recent entry of their counted unit, or
// nil if there is none.
func (s *Service) LastEntry(ctx context.Context, user domain.User) (*domain.Entry, error) {
	return s.db.MostRecentEntry(ctx, user.ID, user.EntryType())
}
