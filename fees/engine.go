/*
engine.go - Fee calculation rules

PURPOSE:
  Turns (guest counts, nights, source, resolved config) into an itemized
  Breakdown. The breakdown is snapshotted onto the booking verbatim and
  never recomputed when rates change later.

RULES:
  INTERNAL:
    one line item per member bucket with a non-zero count:
      rate[type] x count[type] x nights
    No seasonal adjustment ever applies.

  EXTERNAL_PUBLIC:
    the seasonal override for the start date (if any) supplies adult/child
    rates, otherwise the config base rates apply. Two line items:
      adult rate x adults x nights
      child rate x children x nights
    If a whole-house minimum is configured and the subtotal falls short,
    a "Minimum stay adjustment" item tops the total up to exactly the
    minimum.

NUMERIC SEMANTICS:
  decimal.Decimal throughout; nights is a positive integer, validated by
  the booking service before this engine runs.

SEE ALSO:
  - resolver.go: Supplies the Resolved input
  - seasonal.go: Override selection
*/
package fees

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CALCULATION INPUT
// =============================================================================

// CalcInput describes the stay to price. Source mirrors the booking source
// values; anything other than "EXTERNAL_PUBLIC" prices on the internal
// member buckets. StartDate is the calendar check-in date at UTC midnight.
type CalcInput struct {
	Source    string
	StartDate time.Time
	Nights    int
	Guests    GuestCounts
}

// Calculate produces the itemized breakdown for a stay.
func Calculate(in CalcInput, resolved *Resolved) (*Breakdown, error) {
	if resolved == nil {
		return nil, ErrNoActiveConfig
	}
	if in.Nights < 1 {
		return nil, fmt.Errorf("nights must be >= 1, got %d", in.Nights)
	}

	if in.Source == "EXTERNAL_PUBLIC" {
		return calculateExternal(in, resolved)
	}
	return calculateInternal(in, &resolved.Config)
}

// =============================================================================
// INTERNAL PRICING - Per-bucket member rates, no seasonal adjustment
// =============================================================================

func calculateInternal(in CalcInput, cfg *FeeConfig) (*Breakdown, error) {
	nights := decimal.NewFromInt(int64(in.Nights))
	breakdown := &Breakdown{Currency: cfg.Currency, Total: decimal.Zero}

	for _, gt := range InternalGuestTypes {
		count := in.Guests[gt]
		if count == 0 {
			continue
		}
		rate, ok := cfg.NightlyRates[gt]
		if !ok {
			return nil, fmt.Errorf("fee config %s has no nightly rate for %s", cfg.ID, gt)
		}
		amount := rate.Mul(decimal.NewFromInt(int64(count))).Mul(nights)
		breakdown.LineItems = append(breakdown.LineItems, LineItem{
			Label:  fmt.Sprintf("%s x%d, %d night(s)", gt.Label(), count, in.Nights),
			Amount: amount,
		})
		breakdown.Total = breakdown.Total.Add(amount)
	}

	return breakdown, nil
}

// =============================================================================
// EXTERNAL PRICING - Adult/child rates with seasonal overrides and minimum
// =============================================================================

func calculateExternal(in CalcInput, resolved *Resolved) (*Breakdown, error) {
	cfg := &resolved.Config
	nights := decimal.NewFromInt(int64(in.Nights))

	adultRate := cfg.ExternalAdultRate
	childRate := cfg.ExternalChildRate

	breakdown := &Breakdown{Currency: cfg.Currency, Total: decimal.Zero}

	if season := SelectSeasonal(in.StartDate, resolved.SeasonalRates); season != nil {
		adultRate = season.AdultRate
		childRate = season.ChildRate
		breakdown.EffectiveRateName = season.Name
	}

	adults := in.Guests[GuestAdult]
	children := in.Guests[GuestChildUnder6]

	adultAmount := adultRate.Mul(decimal.NewFromInt(int64(adults))).Mul(nights)
	breakdown.LineItems = append(breakdown.LineItems, LineItem{
		Label:  fmt.Sprintf("%s x%d, %d night(s)", GuestAdult.Label(), adults, in.Nights),
		Amount: adultAmount,
	})

	childAmount := childRate.Mul(decimal.NewFromInt(int64(children))).Mul(nights)
	breakdown.LineItems = append(breakdown.LineItems, LineItem{
		Label:  fmt.Sprintf("%s x%d, %d night(s)", GuestChildUnder6.Label(), children, in.Nights),
		Amount: childAmount,
	})

	breakdown.Total = adultAmount.Add(childAmount)

	if cfg.WholeHouseMinimum != nil && breakdown.Total.LessThan(*cfg.WholeHouseMinimum) {
		shortfall := cfg.WholeHouseMinimum.Sub(breakdown.Total)
		breakdown.LineItems = append(breakdown.LineItems, LineItem{
			Label:  "Minimum stay adjustment",
			Amount: shortfall,
		})
		breakdown.Total = breakdown.Total.Add(shortfall)
	}

	return breakdown, nil
}
