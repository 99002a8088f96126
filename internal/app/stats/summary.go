package stats

import (
	"context"
	"time"

	"github.com/puffquest/puffquest/internal/domain"
)

// WeekSummary is the last seven days, oldest first.
type WeekSummary struct {
	Days       domain.DailyTotals `json:"days"`
	Total      int                `json:"total"`
	Average    float64            `json:"average"`
	Limit      int                `json:"limit"`
	WithinDays int                `json:"within_days"`
	Type       domain.EntryType   `json:"type"`
}

// WeekSummary returns the user's last seven days including today.
func (s *Service) WeekSummary(ctx context.Context, user domain.User) (WeekSummary, error) {
	typ := user.EntryType()
	days, err := s.TotalsForLastDays(ctx, user, 7, typ)
	if err != nil {
		return WeekSummary{}, err
	}
	total := days.Sum()
	return WeekSummary{
		Days:       days,
		Total:      total,
		Average:    float64(total) / float64(len(days)),
		Limit:      user.DailyLimit,
		WithinDays: days.CountWithin(user.DailyLimit),
		Type:       typ,
	}, nil
}

// CalendarDay is one cell of the month calendar.
type CalendarDay struct {
	Day    string           `json:"day"`
	Count  int              `json:"count"`
	Status domain.DayStatus `json:"status"`
	Future bool             `json:"future,omitempty"`
}

// MonthView is the per-day calendar of one month.
type MonthView struct {
	Month string        `json:"month"` // "2006-01"
	Limit int           `json:"limit"`
	Days  []CalendarDay `json:"days"`
}

// Month returns per-day counts and statuses for the month containing day.
// Days after today carry no count.
func (s *Service) Month(ctx context.Context, user domain.User, day time.Time) (MonthView, error) {
	r := s.cal.MonthRange(day)
	n := 0
	for d := r.Start; d.Before(r.End); d = s.cal.AddDays(d, 1) {
		n++
	}

	totals, err := s.totals(ctx, user, user.EntryType(), r.Start, n)
	if err != nil {
		return MonthView{}, err
	}

	today := s.Today()
	view := MonthView{
		Month: r.Start.Format("2006-01"),
		Limit: user.DailyLimit,
		Days:  make([]CalendarDay, 0, n),
	}
	for _, t := range totals {
		cell := CalendarDay{
			Day:    s.cal.DayKey(t.Day),
			Count:  t.Count,
			Status: domain.StatusFor(t.Count, user.DailyLimit),
		}
		if t.Day.After(today) {
			cell.Future = true
		}
		view.Days = append(view.Days, cell)
	}
	return view, nil
}
