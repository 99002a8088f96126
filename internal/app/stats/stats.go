// Package stats implements the read side over recorded entries: per-day
// counts, trailing-day totals, the weekly summary and the month calendar.
// Counts are always derived from entries; the optional day-count cache only
// saves the COUNT(*) round trip.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/infra/metrics"
)

// EntryStore is the subset of the entry repository the service reads.
// Both *sqlite.DB and a transactional *sqlite.Store satisfy it.
type EntryStore interface {
	CountEntries(ctx context.Context, userID uuid.UUID, typ domain.EntryType, r domain.DateRange) (int, error)
	QueryEntries(ctx context.Context, userID uuid.UUID, typ domain.EntryType, r domain.DateRange) ([]domain.Entry, error)
}

// DayCounter caches per-day counts keyed by day ("2006-01-02").
// A miss reports the day's generation; Fill stores a count only while that
// generation is current, and Invalidate moves it on.
type DayCounter interface {
	Get(ctx context.Context, userID uuid.UUID, typ domain.EntryType, day string) (count int, gen int64, ok bool, err error)
	Fill(ctx context.Context, userID uuid.UUID, typ domain.EntryType, day string, gen int64, count int) (bool, error)
	Invalidate(ctx context.Context, userID uuid.UUID, typ domain.EntryType, day string) error
	Forget(ctx context.Context, userID uuid.UUID) error
}

// Service computes aggregate counts over the entry store.
type Service struct {
	store  EntryStore
	cache  DayCounter
	cal    domain.Calendar
	clock  domain.Clock
	logger *zap.Logger
}

// NewService creates a stats service. cache may be nil.
func NewService(store EntryStore, cache DayCounter, cal domain.Calendar, clock domain.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		cache:  cache,
		cal:    cal,
		clock:  clock,
		logger: logger.Named("stats"),
	}
}

// Bind returns a service reading from store with the same calendar and clock
// but no cache. Used inside a transaction, where only the transaction's view
// of the entries may be trusted.
func (s *Service) Bind(store EntryStore) *Service {
	return &Service{store: store, cal: s.cal, clock: s.clock, logger: s.logger}
}

// Calendar returns the day-boundary calendar.
func (s *Service) Calendar() domain.Calendar { return s.cal }

// Now returns the current time from the service clock.
func (s *Service) Now() time.Time { return s.clock.Now() }

// Today returns the start of the current day.
func (s *Service) Today() time.Time { return s.cal.StartOfDay(s.clock.Now()) }

// CountForDay returns how many entries of typ the user recorded on the
// calendar day containing date.
func (s *Service) CountForDay(ctx context.Context, user domain.User, date time.Time, typ domain.EntryType) (int, error) {
	key := s.cal.DayKey(date)

	// The generation must be read before counting so that an entry
	// committed in between turns the fill into a no-op.
	var gen int64
	fill := false
	if s.cache != nil {
		n, g, ok, err := s.cache.Get(ctx, user.ID, typ, key)
		switch {
		case err != nil:
			metrics.CacheRequests.WithLabelValues("error").Inc()
			s.logger.Warn("day count cache read failed", zap.String("day", key), zap.Error(err))
		case ok:
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return n, nil
		default:
			metrics.CacheRequests.WithLabelValues("miss").Inc()
			gen, fill = g, true
		}
	}

	n, err := s.store.CountEntries(ctx, user.ID, typ, s.cal.DayRange(date))
	if err != nil {
		return 0, fmt.Errorf("count for day %s: %w", key, err)
	}

	if fill {
		if _, err := s.cache.Fill(ctx, user.ID, typ, key, gen, n); err != nil {
			s.logger.Warn("day count cache write failed", zap.String("day", key), zap.Error(err))
		}
	}
	return n, nil
}

// TotalsForLastDays returns one total per day for the `days` consecutive
// days ending with today, oldest first. Days without entries are present
// with a zero count.
func (s *Service) TotalsForLastDays(ctx context.Context, user domain.User, days int, typ domain.EntryType) (domain.DailyTotals, error) {
	return s.TotalsEndingAt(ctx, user, s.Today(), days, typ)
}

// TotalsEndingAt is TotalsForLastDays with the window ending on the day
// containing end instead of today.
func (s *Service) TotalsEndingAt(ctx context.Context, user domain.User, end time.Time, days int, typ domain.EntryType) (domain.DailyTotals, error) {
	if days <= 0 {
		return nil, domain.NewValidationError("days", "must be positive")
	}
	return s.totals(ctx, user, typ, s.cal.AddDays(end, -(days-1)), days)
}

// totals buckets the entries of n days starting at the day containing from.
func (s *Service) totals(ctx context.Context, user domain.User, typ domain.EntryType, from time.Time, n int) (domain.DailyTotals, error) {
	start := s.cal.StartOfDay(from)
	r := domain.DateRange{Start: start, End: s.cal.AddDays(start, n)}

	entries, err := s.store.QueryEntries(ctx, user.ID, typ, r)
	if err != nil {
		return nil, fmt.Errorf("totals %s..%s: %w", s.cal.DayKey(r.Start), s.cal.DayKey(r.End), err)
	}

	out := make(domain.DailyTotals, n)
	index := make(map[string]int, n)
	for i := range out {
		day := s.cal.AddDays(start, i)
		out[i] = domain.DayTotal{Day: day}
		index[s.cal.DayKey(day)] = i
	}
	for _, e := range entries {
		if i, ok := index[s.cal.DayKey(e.CreatedAt)]; ok {
			out[i].Count++
		}
	}
	return out, nil
}

// Bump marks the day containing at as changed after an entry was committed
// for it. The cached count is dropped rather than incremented, so the next
// read recounts from the store. Failures are logged and dropped.
func (s *Service) Bump(ctx context.Context, user domain.User, at time.Time, typ domain.EntryType) {
	if s.cache == nil {
		return
	}
	key := s.cal.DayKey(at)
	if err := s.cache.Invalidate(ctx, user.ID, typ, key); err != nil {
		s.logger.Error("day count cache invalidation failed",
			zap.String("user_id", user.ID.String()),
			zap.String("day", key),
			zap.Error(err),
		)
	}
}

// Forget drops every cached count of a user.
func (s *Service) Forget(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Forget(ctx, userID); err != nil {
		s.logger.Warn("day count cache purge failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
