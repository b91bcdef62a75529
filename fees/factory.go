/*
factory.go - JSON to FeeConfig conversion and the policy default

PURPOSE:
  Converts JSON rate-table definitions into FeeConfig/SeasonalRate values.
  Rate tables are data, not code: admins adjust rates in JSON (seed files,
  admin API) without a deploy.

JSON SCHEMA:
  {
    "id": "rates-2026",
    "name": "2026 rates",
    "currency": "EUR",
    "effective_from": "2026-01-01",
    "nightly_rates": {"member": "50", "dependent_with_member": "25"},
    "external_adult_rate": "120",
    "external_child_rate": "60",
    "monthly_subscription": "30",
    "whole_house_minimum": "400",
    "seasonal_rates": [
      {"name": "Winter holidays", "start": "12-01", "end": "01-15",
       "priority": 10, "adult_rate": "500", "child_rate": "250"}
    ]
  }

Rates are JSON strings, parsed with decimal.NewFromString, so no float
conversion ever touches money.

SEE ALSO:
  - types.go: FeeConfig / SeasonalRate definitions
  - resolver.go: Installs DefaultConfig() when nothing is configured
*/
package fees

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type ConfigJSON struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Currency            string            `json:"currency"`
	EffectiveFrom       string            `json:"effective_from"`
	EffectiveTo         string            `json:"effective_to,omitempty"`
	NightlyRates        map[string]string `json:"nightly_rates"`
	ExternalAdultRate   string            `json:"external_adult_rate"`
	ExternalChildRate   string            `json:"external_child_rate"`
	MonthlySubscription string            `json:"monthly_subscription,omitempty"`
	WholeHouseMinimum   string            `json:"whole_house_minimum,omitempty"`
	SeasonalRates       []SeasonalJSON    `json:"seasonal_rates,omitempty"`
}

type SeasonalJSON struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Start     string `json:"start"` // "MM-DD"
	End       string `json:"end"`   // "MM-DD"
	Priority  int    `json:"priority"`
	AdultRate string `json:"adult_rate"`
	ChildRate string `json:"child_rate"`
	Disabled  bool   `json:"disabled,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseConfig converts a JSON rate table into a FeeConfig and its seasonal
// rates, validating as it goes.
func ParseConfig(raw []byte) (*FeeConfig, []SeasonalRate, error) {
	var cj ConfigJSON
	if err := json.Unmarshal(raw, &cj); err != nil {
		return nil, nil, fmt.Errorf("invalid fee config JSON: %w", err)
	}

	if cj.Currency == "" {
		return nil, nil, fmt.Errorf("fee config: currency is required")
	}

	cfg := FeeConfig{
		ID:           cj.ID,
		Name:         cj.Name,
		IsActive:     true,
		Currency:     cj.Currency,
		NightlyRates: make(map[GuestType]decimal.Decimal),
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	var err error
	if cfg.EffectiveFrom, err = parseDay(cj.EffectiveFrom); err != nil {
		return nil, nil, fmt.Errorf("fee config: effective_from: %w", err)
	}
	if cj.EffectiveTo != "" {
		to, err := parseDay(cj.EffectiveTo)
		if err != nil {
			return nil, nil, fmt.Errorf("fee config: effective_to: %w", err)
		}
		cfg.EffectiveTo = &to
	}

	for name, rate := range cj.NightlyRates {
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, nil, fmt.Errorf("fee config: nightly rate %q: %w", name, err)
		}
		cfg.NightlyRates[GuestType(name)] = d
	}

	if cfg.ExternalAdultRate, err = decimal.NewFromString(cj.ExternalAdultRate); err != nil {
		return nil, nil, fmt.Errorf("fee config: external_adult_rate: %w", err)
	}
	if cfg.ExternalChildRate, err = decimal.NewFromString(cj.ExternalChildRate); err != nil {
		return nil, nil, fmt.Errorf("fee config: external_child_rate: %w", err)
	}
	if cj.MonthlySubscription != "" {
		if cfg.MonthlySubscription, err = decimal.NewFromString(cj.MonthlySubscription); err != nil {
			return nil, nil, fmt.Errorf("fee config: monthly_subscription: %w", err)
		}
	}
	if cj.WholeHouseMinimum != "" {
		min, err := decimal.NewFromString(cj.WholeHouseMinimum)
		if err != nil {
			return nil, nil, fmt.Errorf("fee config: whole_house_minimum: %w", err)
		}
		cfg.WholeHouseMinimum = &min
	}

	seasons := make([]SeasonalRate, 0, len(cj.SeasonalRates))
	for i, sj := range cj.SeasonalRates {
		s, err := parseSeasonal(cfg.ID, sj)
		if err != nil {
			return nil, nil, fmt.Errorf("fee config: seasonal_rates[%d]: %w", i, err)
		}
		seasons = append(seasons, *s)
	}

	return &cfg, seasons, nil
}

func parseSeasonal(configID string, sj SeasonalJSON) (*SeasonalRate, error) {
	s := SeasonalRate{
		ID:       sj.ID,
		ConfigID: configID,
		Name:     sj.Name,
		Enabled:  !sj.Disabled,
		Priority: sj.Priority,
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	var err error
	if s.StartMonth, s.StartDay, err = parseMonthDay(sj.Start); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if s.EndMonth, s.EndDay, err = parseMonthDay(sj.End); err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	if s.AdultRate, err = decimal.NewFromString(sj.AdultRate); err != nil {
		return nil, fmt.Errorf("adult_rate: %w", err)
	}
	if s.ChildRate, err = decimal.NewFromString(sj.ChildRate); err != nil {
		return nil, fmt.Errorf("child_rate: %w", err)
	}
	return &s, nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY-MM-DD, got %q", s)
	}
	return t.UTC(), nil
}

func parseMonthDay(s string) (int, int, error) {
	t, err := time.Parse("01-02", s)
	if err != nil {
		return 0, 0, fmt.Errorf("want MM-DD, got %q", s)
	}
	return int(t.Month()), t.Day(), nil
}

// =============================================================================
// DEFAULT CONFIG - Installed when nothing is configured yet
// =============================================================================

// DefaultConfigID is the stable identity of the fallback rate table. Stores
// key their default-config upsert on it.
const DefaultConfigID = "fee-config-default"

// DefaultConfig is the policy default installed when pricing runs before any
// rate table has been configured. Deliberately conservative: flat member
// rates, modest external rates, no minimum.
func DefaultConfig() FeeConfig {
	return FeeConfig{
		ID:            DefaultConfigID,
		Name:          "Default rates",
		IsActive:      true,
		EffectiveFrom: time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
		Currency:      "EUR",
		NightlyRates: map[GuestType]decimal.Decimal{
			GuestMember:                 decimal.NewFromInt(50),
			GuestDependentWithMember:    decimal.NewFromInt(25),
			GuestDependentWithoutMember: decimal.NewFromInt(35),
			GuestOfMember:               decimal.NewFromInt(60),
			GuestOfDependent:            decimal.NewFromInt(60),
			GuestMereFamily:             decimal.NewFromInt(45),
		},
		ExternalAdultRate:   decimal.NewFromInt(120),
		ExternalChildRate:   decimal.NewFromInt(60),
		MonthlySubscription: decimal.NewFromInt(30),
	}
}
