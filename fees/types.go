/*
Package fees implements the nightly-rate fee engine for the holiday house.

PURPOSE:
  Three small components, in dependency order:
  - Resolver:       which rate table is active for a given date
  - SelectSeasonal: which seasonal override (if any) applies to a date
  - Engine:         itemized price breakdown for a stay

KEY CONCEPTS IN THIS FILE (types.go):
  - GuestType: Pricing bucket (member, dependent, external adult, ...)
  - FeeConfig: The versioned nightly/monthly rate table
  - SeasonalRate: A recurring month/day window overriding external rates
  - Breakdown: The itemized result, persisted verbatim as a fee snapshot

DESIGN PRINCIPLES:
  1. Precision: all rate arithmetic uses decimal.Decimal, never float
  2. Determinism: identical input + identical config => identical breakdown
  3. Snapshots never mutate: a Breakdown is a value, not a view of config

SEE ALSO:
  - resolver.go: Active-config resolution
  - seasonal.go: Window matching and tie-breaking
  - engine.go:   Calculation rules per booking source
*/
package fees

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// GUEST TYPES - Pricing buckets
// =============================================================================

type GuestType string

// Internal (member) pricing buckets.
const (
	GuestMember                 GuestType = "member"
	GuestDependentWithMember    GuestType = "dependent_with_member"
	GuestDependentWithoutMember GuestType = "dependent_without_member"
	GuestOfMember               GuestType = "guest_of_member"
	GuestOfDependent            GuestType = "guest_of_dependent"
	GuestMereFamily             GuestType = "mere_family"
)

// External (public) pricing buckets.
const (
	GuestAdult       GuestType = "adult"
	GuestChildUnder6 GuestType = "child_under_6"
)

// InternalGuestTypes lists the member buckets in billing order. The engine
// emits line items in this order so breakdowns are stable.
var InternalGuestTypes = []GuestType{
	GuestMember,
	GuestDependentWithMember,
	GuestDependentWithoutMember,
	GuestOfMember,
	GuestOfDependent,
	GuestMereFamily,
}

// Label returns the human label used on breakdown line items.
func (g GuestType) Label() string {
	switch g {
	case GuestMember:
		return "Member"
	case GuestDependentWithMember:
		return "Dependent (with member)"
	case GuestDependentWithoutMember:
		return "Dependent (without member)"
	case GuestOfMember:
		return "Guest of member"
	case GuestOfDependent:
		return "Guest of dependent"
	case GuestMereFamily:
		return "Family"
	case GuestAdult:
		return "Adult"
	case GuestChildUnder6:
		return "Child (under 6)"
	}
	return string(g)
}

// GuestCounts maps pricing buckets to headcounts.
type GuestCounts map[GuestType]int

func (c GuestCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// =============================================================================
// FEE CONFIG - The active rate table, versioned by effective dates
// =============================================================================

// FeeConfig is a nightly/monthly rate table. At most one active config
// covers any given date; the resolver prefers the most recent EffectiveFrom
// when rows overlap.
type FeeConfig struct {
	ID            string
	Name          string
	IsActive      bool
	EffectiveFrom time.Time  // UTC midnight
	EffectiveTo   *time.Time // nil = open-ended

	Currency string

	// Per-guest-type nightly rates for INTERNAL bookings.
	NightlyRates map[GuestType]decimal.Decimal

	// Base external rates, overridable by seasonal windows.
	ExternalAdultRate decimal.Decimal
	ExternalChildRate decimal.Decimal

	// Monthly member subscription (informational for the engine; billed
	// outside the per-stay breakdown).
	MonthlySubscription decimal.Decimal

	// Optional floor for whole-house external stays. nil = no minimum.
	WholeHouseMinimum *decimal.Decimal

	CreatedAt time.Time
}

// Covers reports whether the config's effective window includes the date.
func (c *FeeConfig) Covers(date time.Time) bool {
	if date.Before(c.EffectiveFrom) {
		return false
	}
	return c.EffectiveTo == nil || !date.After(*c.EffectiveTo)
}

// =============================================================================
// SEASONAL RATE - Recurring month/day override window
// =============================================================================

// SeasonalRate overrides external adult/child nightly rates inside a
// recurring month/day window. Windows where start > end wrap across the
// year boundary (e.g. Dec 1 .. Jan 15). Only EXTERNAL_PUBLIC pricing
// consults seasonal rates.
type SeasonalRate struct {
	ID       string
	ConfigID string
	Name     string
	Enabled  bool

	StartMonth int
	StartDay   int
	EndMonth   int
	EndDay     int

	// Higher priority wins among overlapping windows.
	Priority int

	AdultRate decimal.Decimal
	ChildRate decimal.Decimal
}

// =============================================================================
// BREAKDOWN - Itemized price, persisted verbatim as the fee snapshot
// =============================================================================

type LineItem struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Breakdown is the engine's output and the value stored as a booking's fee
// snapshot. Total is always the exact sum of the line items.
type Breakdown struct {
	LineItems         []LineItem      `json:"lineItems"`
	Total             decimal.Decimal `json:"total"`
	Currency          string          `json:"currency"`
	EffectiveRateName string          `json:"effectiveRateName,omitempty"`
}

// =============================================================================
// CONFIG STORE - Persistence contract consumed by the resolver
// =============================================================================

// ConfigStore is implemented by booking/store (memory) and store/sqlite.
type ConfigStore interface {
	// ActiveConfigs returns all active configs whose effective window
	// covers the date, newest EffectiveFrom first.
	ActiveConfigs(ctx context.Context, date time.Time) ([]FeeConfig, error)

	// SeasonalRates returns the enabled seasonal rates for a config.
	SeasonalRates(ctx context.Context, configID string) ([]SeasonalRate, error)

	// EnsureDefaultConfig installs cfg if and only if no default config
	// exists yet, as a single race-safe upsert, and returns the config
	// that ended up installed. Concurrent first-use must not produce
	// duplicates.
	EnsureDefaultConfig(ctx context.Context, cfg FeeConfig) (*FeeConfig, error)
}
