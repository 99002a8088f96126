// Package domain holds the PuffQuest core types: users and their consumption
// method, recorded entries, and the progression state derived from them.
// Domain types carry no infrastructure dependency.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ─── Product / Method ───────────────────────────────────────────────────────

// Product is the coarse product family a user is cutting down on.
type Product string

const (
	ProductCigarette Product = "cigarette"
	ProductVape      Product = "vape"
)

// Method is the concrete consumption method picked at onboarding.
// Each method resolves to a product and to the entry type that is counted.
type Method string

const (
	MethodCigarettes     Method = "cigarettes"
	MethodHeatedTobacco  Method = "heated_tobacco"
	MethodSnus           Method = "snus"
	MethodDisposableVape Method = "disposable_vape"
	MethodRefillableVape Method = "refillable_vape"
)

// Methods lists every supported method in display order.
func Methods() []Method {
	return []Method{
		MethodCigarettes,
		MethodHeatedTobacco,
		MethodSnus,
		MethodDisposableVape,
		MethodRefillableVape,
	}
}

// ParseMethod resolves a method name. Product names are accepted as aliases
// for their default method ("cigarette", "vape").
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodCigarettes, MethodHeatedTobacco, MethodSnus, MethodDisposableVape, MethodRefillableVape:
		return m, nil
	case Method(ProductCigarette):
		return MethodCigarettes, nil
	case Method(ProductVape):
		return MethodDisposableVape, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Product returns the product family for the method.
func (m Method) Product() Product {
	switch m {
	case MethodDisposableVape, MethodRefillableVape:
		return ProductVape
	default:
		return ProductCigarette
	}
}

// EntryType returns the unit counted for this method.
func (m Method) EntryType() EntryType {
	if m.Product() == ProductVape {
		return EntryPuff
	}
	return EntryCig
}

// ─── User ───────────────────────────────────────────────────────────────────

// User is the owner of all entries and progression state.
// XP and Coins never decrease.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Method      Method    `json:"method"`
	DailyLimit  int       `json:"daily_limit"`
	PackSize    int       `json:"pack_size"`
	PackCost    float64   `json:"pack_cost"`
	Currency    string    `json:"currency"`
	XP          int64     `json:"xp"`
	Coins       int64     `json:"coins"`
	CreatedAt   time.Time `json:"created_at"`

	// LastRecalcDay is the last calendar day ("2006-01-02") already folded
	// into XP, coins and streak. Empty until the first nightly recalculation.
	LastRecalcDay string `json:"last_recalc_day,omitempty"`
}

// Product is a shortcut for u.Method.Product().
func (u User) Product() Product { return u.Method.Product() }

// EntryType is a shortcut for u.Method.EntryType().
func (u User) EntryType() EntryType { return u.Method.EntryType() }

// HasPackPricing reports whether a per-unit price can be inferred from the
// configured pack. Only cigarette-type units are priced this way.
func (u User) HasPackPricing() bool {
	return u.EntryType() == EntryCig && u.PackSize > 0 && u.PackCost > 0
}

// PackUnitCost returns PackCost / PackSize, or 0 without pack pricing.
func (u User) PackUnitCost() float64 {
	if !u.HasPackPricing() {
		return 0
	}
	return u.PackCost / float64(u.PackSize)
}

// OnboardingData is the input collected by the onboarding flow.
type OnboardingData struct {
	DisplayName string  `json:"display_name"`
	Method      Method  `json:"method"`
	DailyLimit  int     `json:"daily_limit"`
	PackSize    int     `json:"pack_size"`
	PackCost    float64 `json:"pack_cost"`
	Currency    string  `json:"currency"`
}

// MaxPackSize bounds the units-per-pack accepted at onboarding.
const MaxPackSize = 1000

// Validate checks onboarding input, collecting every failing field.
func (d OnboardingData) Validate() error {
	var v ValidationError
	if strings.TrimSpace(d.DisplayName) == "" {
		v.Add("display_name", "must not be blank")
	}
	if _, err := ParseMethod(string(d.Method)); err != nil {
		v.Add("method", "unknown method")
	}
	if d.DailyLimit <= 0 {
		v.Add("daily_limit", "must be positive")
	}
	if d.PackSize < 0 || d.PackSize > MaxPackSize {
		v.Add("pack_size", fmt.Sprintf("must be between 0 and %d", MaxPackSize))
	}
	if d.PackCost < 0 {
		v.Add("pack_cost", "must not be negative")
	}
	return v.OrNil()
}
