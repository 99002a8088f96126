package domain

import (
	"fmt"
	"time"
)

// DayLayout is the storage and wire format of a calendar day.
const DayLayout = "2006-01-02"

// Clock provides "now". Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Calendar resolves day boundaries in one location.
// A day runs from local midnight to the next local midnight.
type Calendar struct {
	Location *time.Location
}

// NewCalendar returns a calendar for the given location (nil means time.Local).
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{Location: loc}
}

// LoadCalendar resolves an IANA zone name. "" and "Local" mean time.Local.
func LoadCalendar(name string) (Calendar, error) {
	if name == "" || name == "Local" {
		return NewCalendar(time.Local), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Calendar{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return NewCalendar(loc), nil
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// StartOfDay returns local midnight of the day containing t.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(c.loc()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc())
}

// AddDays shifts a day by n calendar days, keeping midnight across DST changes.
func (c Calendar) AddDays(t time.Time, n int) time.Time {
	y, m, d := t.In(c.loc()).Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, c.loc())
}

// DayRange returns [midnight, next midnight) for the day containing t.
func (c Calendar) DayRange(t time.Time) DateRange {
	return DateRange{Start: c.StartOfDay(t), End: c.AddDays(t, 1)}
}

// DayKey formats the day containing t as "2006-01-02".
func (c Calendar) DayKey(t time.Time) string {
	return t.In(c.loc()).Format(DayLayout)
}

// ParseDay parses "2006-01-02" as midnight in the calendar location.
func (c Calendar) ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, s, c.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return t, nil
}

// MonthRange returns the first day of the month containing t and the first
// day of the following month.
func (c Calendar) MonthRange(t time.Time) DateRange {
	y, m, _ := t.In(c.loc()).Date()
	return DateRange{
		Start: time.Date(y, m, 1, 0, 0, 0, 0, c.loc()),
		End:   time.Date(y, m+1, 1, 0, 0, 0, 0, c.loc()),
	}
}
