package waterfall

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/provider"
)

func TestLoadConfigOverridesAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waterfall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
waterfall:
  acceptance_threshold: 0.8
  providers:
    - name: lusha
      search_cost: 2
      search_refill: 500
    - name: coresignal
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.AcceptanceThreshold)
	assert.Equal(t, DefaultConfig().TopK, cfg.TopK, "unset fields fall back to defaults")
	assert.Equal(t, DefaultConfig().MaxInflightCollects, cfg.MaxInflightCollects)

	// File order is priority order.
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, provider.NameLusha, cfg.Providers[0].Name)
	assert.Equal(t, 2, cfg.Providers[0].SearchCost)
	assert.Equal(t, 2, cfg.Providers[0].CollectCost, "zero costs default")
	assert.Equal(t, 1, cfg.Providers[1].SearchCost)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRefillPolicies(t *testing.T) {
	cfg := &Config{Providers: []ProviderConfig{
		{Name: "lusha", SearchRefill: 500, CollectRefill: 100},
		{Name: "prospeo"},
	}}

	policies := cfg.RefillPolicies()
	assert.Len(t, policies, 2, "providers without refill amounts get no policy")
	assert.Equal(t, credit.RefillPolicy{Amount: 500}, policies["lusha/search"])
	assert.Equal(t, credit.RefillPolicy{Amount: 100}, policies["lusha/collect"])
}

func TestDefaultConfigProvidersCarryRefills(t *testing.T) {
	policies := DefaultConfig().RefillPolicies()
	assert.Len(t, policies, 6)
	assert.NotZero(t, policies["coresignal/search"].Amount)
}
