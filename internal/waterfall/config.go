package waterfall

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/provider"
)

// Config is the top-level waterfall configuration. Provider order is the
// priority order: cheapest and broadest first.
type Config struct {
	// AcceptanceThreshold stops the waterfall once a collected candidate
	// scores at or above it.
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"`

	// TopK bounds how many search references per provider proceed to the
	// expensive collect phase.
	TopK int `yaml:"top_k"`

	// MinRefScore filters search references before collect; references
	// scoring below it are never collected.
	MinRefScore float64 `yaml:"min_ref_score"`

	// MaxInflightCollects caps concurrent collect calls across all
	// providers and all enrichment runs.
	MaxInflightCollects int `yaml:"max_inflight_collects"`

	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig configures one waterfall tier. Refill amounts mirror the
// provider's billing-period quota; zero means manual top-up only.
type ProviderConfig struct {
	Name          string               `yaml:"name"`
	SearchCost    int                  `yaml:"search_cost"`
	CollectCost   int                  `yaml:"collect_cost"`
	SearchRefill  int                  `yaml:"search_refill"`
	CollectRefill int                  `yaml:"collect_refill"`
	Guard         provider.GuardConfig `yaml:"guard"`
}

// RefillPolicies maps the per-provider refill amounts into ledger policies,
// keyed "provider/kind".
func (c *Config) RefillPolicies() map[string]credit.RefillPolicy {
	out := make(map[string]credit.RefillPolicy)
	for _, pc := range c.Providers {
		if pc.SearchRefill > 0 {
			out[pc.Name+"/"+string(credit.KindSearch)] = credit.RefillPolicy{Amount: pc.SearchRefill}
		}
		if pc.CollectRefill > 0 {
			out[pc.Name+"/"+string(credit.KindCollect)] = credit.RefillPolicy{Amount: pc.CollectRefill}
		}
	}
	return out
}

// DefaultConfig returns the waterfall defaults used when no config file is
// present: CoreSignal first (broad, cheap), then Lusha, then Prospeo.
func DefaultConfig() *Config {
	return &Config{
		AcceptanceThreshold: 0.7,
		TopK:                2,
		MinRefScore:         0.3,
		MaxInflightCollects: 4,
		Providers: []ProviderConfig{
			{Name: provider.NameCoreSignal, SearchCost: 1, CollectCost: 2, SearchRefill: 2000, CollectRefill: 500, Guard: provider.DefaultGuardConfig()},
			{Name: provider.NameLusha, SearchCost: 1, CollectCost: 3, SearchRefill: 1000, CollectRefill: 200, Guard: provider.DefaultGuardConfig()},
			{Name: provider.NameProspeo, SearchCost: 1, CollectCost: 2, SearchRefill: 1500, CollectRefill: 300, Guard: provider.DefaultGuardConfig()},
		},
	}
}

// LoadConfig reads waterfall config from a YAML file. Missing values fall
// back to defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "waterfall: read config %s", path)
	}

	// The YAML has a top-level "waterfall" key.
	var wrapper struct {
		Waterfall Config `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "waterfall: parse config")
	}

	cfg := &wrapper.Waterfall
	defaults := DefaultConfig()
	if cfg.AcceptanceThreshold <= 0 {
		cfg.AcceptanceThreshold = defaults.AcceptanceThreshold
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.MinRefScore <= 0 {
		cfg.MinRefScore = defaults.MinRefScore
	}
	if cfg.MaxInflightCollects <= 0 {
		cfg.MaxInflightCollects = defaults.MaxInflightCollects
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = defaults.Providers
	}
	for i := range cfg.Providers {
		pc := &cfg.Providers[i]
		if pc.SearchCost <= 0 {
			pc.SearchCost = 1
		}
		if pc.CollectCost <= 0 {
			pc.CollectCost = 2
		}
	}

	return cfg, nil
}
