package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EntryType is the unit a single entry counts.
type EntryType string

const (
	EntryCig  EntryType = "cig"
	EntryPuff EntryType = "puff"
)

// ParseEntryType validates an entry type name.
func ParseEntryType(s string) (EntryType, error) {
	switch t := EntryType(s); t {
	case EntryCig, EntryPuff:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, s)
}

// Entry is one consumption event. Entries are never mutated after creation.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Type      EntryType `json:"type"`
	Cost      float64   `json:"cost"`
}

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// DayTotal is the number of entries recorded on one calendar day.
type DayTotal struct {
	Day   time.Time `json:"day"` // start of day
	Count int       `json:"count"`
}

// DailyTotals is an ordered run of consecutive days, oldest first.
type DailyTotals []DayTotal

// Sum returns the total count across all days.
func (t DailyTotals) Sum() int {
	var sum int
	for _, d := range t {
		sum += d.Count
	}
	return sum
}

// AsMap returns the totals keyed by start-of-day.
func (t DailyTotals) AsMap() map[time.Time]int {
	m := make(map[time.Time]int, len(t))
	for _, d := range t {
		m[d.Day] = d.Count
	}
	return m
}

// CountWithin returns how many days stayed at or under limit.
func (t DailyTotals) CountWithin(limit int) int {
	var n int
	for _, d := range t {
		if d.Count <= limit {
			n++
		}
	}
	return n
}

// DayStatus classifies a day's count against the user's limit.
type DayStatus string

const (
	DayNone   DayStatus = "none"
	DayWithin DayStatus = "within"
	DayNear   DayStatus = "near"
	DayOver   DayStatus = "over"
)

// StatusFor classifies count against limit. Up to 125% of the limit is "near".
func StatusFor(count, limit int) DayStatus {
	switch {
	case count == 0:
		return DayNone
	case count <= limit:
		return DayWithin
	case count <= int(float64(limit)*1.25):
		return DayNear
	default:
		return DayOver
	}
}
