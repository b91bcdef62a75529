package fees

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// STUB STORE
// =============================================================================

type stubConfigStore struct {
	configs  []FeeConfig
	seasonal map[string][]SeasonalRate
	ensured  int
}

func (s *stubConfigStore) ActiveConfigs(_ context.Context, date time.Time) ([]FeeConfig, error) {
	var out []FeeConfig
	for _, c := range s.configs {
		if c.IsActive && c.Covers(date) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubConfigStore) SeasonalRates(_ context.Context, configID string) ([]SeasonalRate, error) {
	return s.seasonal[configID], nil
}

func (s *stubConfigStore) EnsureDefaultConfig(_ context.Context, cfg FeeConfig) (*FeeConfig, error) {
	s.ensured++
	for _, c := range s.configs {
		if c.ID == cfg.ID {
			existing := c
			return &existing, nil
		}
	}
	s.configs = append(s.configs, cfg)
	return &cfg, nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

func TestResolve_EmptyStoreInstallsDefault(t *testing.T) {
	// GIVEN: No configuration at all
	// WHEN:  Resolving for an arbitrary date
	// THEN:  The policy default is installed and returned; pricing never
	//        proceeds without a config
	store := &stubConfigStore{seasonal: map[string][]SeasonalRate{}}
	r := NewResolver(store)

	resolved, err := r.Resolve(context.Background(), time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfigID, resolved.Config.ID)
	assert.Equal(t, 1, store.ensured)

	// Second resolve finds the installed config without re-ensuring.
	_, err = r.Resolve(context.Background(), time.Date(2026, time.June, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, store.ensured)
}

func TestResolve_MostRecentEffectiveFromWins(t *testing.T) {
	// GIVEN: Two active configs both covering the date
	old := testConfig()
	old.ID = "cfg-2025"
	old.EffectiveFrom = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	newer := testConfig()
	newer.ID = "cfg-2026"
	newer.EffectiveFrom = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	newer.ExternalAdultRate = decimal.NewFromInt(150)

	store := &stubConfigStore{
		configs:  []FeeConfig{old, newer},
		seasonal: map[string][]SeasonalRate{},
	}

	resolved, err := NewResolver(store).Resolve(context.Background(),
		time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "cfg-2026", resolved.Config.ID)
	assert.True(t, resolved.Config.ExternalAdultRate.Equal(decimal.NewFromInt(150)))
}

func TestResolve_ExpiredConfigSkipped(t *testing.T) {
	expired := testConfig()
	expired.ID = "cfg-old"
	to := time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)
	expired.EffectiveTo = &to

	store := &stubConfigStore{
		configs:  []FeeConfig{expired},
		seasonal: map[string][]SeasonalRate{},
	}

	resolved, err := NewResolver(store).Resolve(context.Background(),
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// The expired config does not cover the date, so the default fills in.
	assert.Equal(t, DefaultConfigID, resolved.Config.ID)
}

func TestResolve_LoadsSeasonalRates(t *testing.T) {
	cfg := testConfig()
	store := &stubConfigStore{
		configs: []FeeConfig{cfg},
		seasonal: map[string][]SeasonalRate{
			cfg.ID: {winterRate()},
		},
	}

	resolved, err := NewResolver(store).Resolve(context.Background(),
		time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, resolved.SeasonalRates, 1)
	assert.Equal(t, "winter", resolved.SeasonalRates[0].ID)
}

func TestResolve_CustomDefault(t *testing.T) {
	def := testConfig()
	def.ID = "house-default"
	def.EffectiveFrom = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

	store := &stubConfigStore{seasonal: map[string][]SeasonalRate{}}
	r := &Resolver{Store: store, Default: &def}

	resolved, err := r.Resolve(context.Background(), time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "house-default", resolved.Config.ID)
}
