package fees

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoActiveConfig is returned when no fee configuration covers the
	// requested date and the default-config fallback also failed. Pricing
	// never proceeds without a config; the engine never prices at zero.
	ErrNoActiveConfig = errors.New("no active fee configuration")
)

// =============================================================================
// FEE CONFIGURATION RESOLVER
// =============================================================================

// Resolver returns the single active fee configuration for a date, together
// with its enabled seasonal overrides. When no configuration exists at all,
// it installs the policy default via a race-safe upsert before pricing.
type Resolver struct {
	Store ConfigStore

	// Default is installed when no config covers the date. Leave the
	// zero value to use DefaultConfig().
	Default *FeeConfig
}

func NewResolver(store ConfigStore) *Resolver {
	return &Resolver{Store: store}
}

// Resolved bundles a config with its enabled seasonal rates.
type Resolved struct {
	Config        FeeConfig
	SeasonalRates []SeasonalRate
}

// Resolve returns the active config covering date. If several active rows
// qualify, the most recent EffectiveFrom wins. If none exists, the default
// config is installed (upsert, not check-then-insert) and resolution is
// retried once.
func (r *Resolver) Resolve(ctx context.Context, date time.Time) (*Resolved, error) {
	cfg, err := r.lookup(ctx, date)
	if err != nil {
		return nil, err
	}

	if cfg == nil {
		def := r.Default
		if def == nil {
			d := DefaultConfig()
			def = &d
		}
		installed, err := r.Store.EnsureDefaultConfig(ctx, *def)
		if err != nil {
			return nil, fmt.Errorf("install default fee config: %w", err)
		}
		if installed != nil && installed.Covers(date) {
			cfg = installed
		} else {
			cfg, err = r.lookup(ctx, date)
			if err != nil {
				return nil, err
			}
		}
	}

	if cfg == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoActiveConfig, date.Format("2006-01-02"))
	}

	rates, err := r.Store.SeasonalRates(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("load seasonal rates: %w", err)
	}

	return &Resolved{Config: *cfg, SeasonalRates: rates}, nil
}

func (r *Resolver) lookup(ctx context.Context, date time.Time) (*FeeConfig, error) {
	configs, err := r.Store.ActiveConfigs(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load fee configs: %w", err)
	}

	// Store returns newest EffectiveFrom first, but don't rely on it.
	var best *FeeConfig
	for i := range configs {
		c := &configs[i]
		if !c.IsActive || !c.Covers(date) {
			continue
		}
		if best == nil || c.EffectiveFrom.After(best.EffectiveFrom) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	cfg := *best
	return &cfg, nil
}
