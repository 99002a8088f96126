package engagement

import (
	"github.com/puffquest/puffquest/internal/domain"
)

// Fallback unit prices when the user has no pack pricing.
const (
	DefaultCigUnitCost  = 15.0
	DefaultPuffUnitCost = 8.0
)

// SavingsWindowDays is the trailing window the savings average is taken over.
const SavingsWindowDays = 30

// CostPerUnit returns the price of one counted unit: pack cost over pack size
// for cigarette-type units with pack pricing, otherwise a fixed fallback.
func CostPerUnit(u domain.User) float64 {
	if u.HasPackPricing() {
		return u.PackUnitCost()
	}
	if u.EntryType() == domain.EntryCig {
		return DefaultCigUnitCost
	}
	return DefaultPuffUnitCost
}

// EstimatedMoneySaved projects a month of savings from the user's daily
// totals: (limit - average) * unit cost * 30, never negative. The average is
// integer-truncated and the result truncated to whole currency units.
func EstimatedMoneySaved(u domain.User, totals domain.DailyTotals) int64 {
	average := totals.Sum() / max(1, len(totals))
	cpu := CostPerUnit(u)

	baseline := float64(u.DailyLimit) * cpu
	actual := float64(average) * cpu
	saved := max(0, baseline-actual)
	return int64(saved * 30)
}
