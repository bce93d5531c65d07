// Package config loads application configuration from a YAML file and
// ADRATA_-prefixed environment variables.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	CoreSignal ProviderKeys     `yaml:"coresignal" mapstructure:"coresignal"`
	Lusha      ProviderKeys     `yaml:"lusha" mapstructure:"lusha"`
	Prospeo    ProviderKeys     `yaml:"prospeo" mapstructure:"prospeo"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	BuyerGroup BuyerGroupConfig `yaml:"buyer_group" mapstructure:"buyer_group"`
	Rank       RankConfig       `yaml:"rank" mapstructure:"rank"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ProviderKeys holds credentials for one enrichment provider.
type ProviderKeys struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SalesforceConfig holds Salesforce JWT auth settings for the CRM sync.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// EnrichConfig configures the enrichment waterfall surface.
type EnrichConfig struct {
	// WaterfallFile optionally points at a YAML file overriding the
	// provider order, costs, and thresholds.
	WaterfallFile string `yaml:"waterfall_file" mapstructure:"waterfall_file"`

	// RefreshTTLHours controls how old a stored contact may be before an
	// enrich request re-runs the waterfall instead of serving the cache.
	RefreshTTLHours int `yaml:"refresh_ttl_hours" mapstructure:"refresh_ttl_hours"`
}

// BuyerGroupConfig configures buyer-group classification.
type BuyerGroupConfig struct {
	ProductCategory string `yaml:"product_category" mapstructure:"product_category"`
}

// RankConfig configures ranking weights. Zero values fall back to the
// engine defaults.
type RankConfig struct {
	CompanyBand        float64 `yaml:"company_band" mapstructure:"company_band"`
	CompanyGrowth      float64 `yaml:"company_growth" mapstructure:"company_growth"`
	CompanyIndustryFit float64 `yaml:"company_industry_fit" mapstructure:"company_industry_fit"`

	PersonInfluence float64 `yaml:"person_influence" mapstructure:"person_influence"`
	PersonStaleness float64 `yaml:"person_staleness" mapstructure:"person_staleness"`
	PersonRole      float64 `yaml:"person_role" mapstructure:"person_role"`

	RecencyHalfLifeDays int `yaml:"recency_half_life_days" mapstructure:"recency_half_life_days"`
}

// IngestConfig configures roster downloads.
type IngestConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerHost int    `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// BatchConfig configures batch enrichment.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the fields required for the given mode are set.
// Modes: "store" (database only), "enrich" (providers plus store), "serve"
// (server plus enrich), "crm" (Salesforce sync).
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				missing = append(missing, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				missing = append(missing, "store.sqlite_path is required for the sqlite driver")
			}
		default:
			missing = append(missing, "store.driver must be postgres or sqlite")
		}
	}

	requireProviders := func() {
		if c.CoreSignal.Key == "" && c.Lusha.Key == "" && c.Prospeo.Key == "" {
			missing = append(missing, "at least one provider key is required (coresignal.key, lusha.key, prospeo.key)")
		}
	}

	switch mode {
	case "store":
		requireStore()
	case "enrich":
		requireStore()
		requireProviders()
	case "serve":
		requireStore()
		requireProviders()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 50 {
			missing = append(missing, "batch.max_concurrent must be between 1 and 50")
		}
	case "crm":
		requireStore()
		if c.Salesforce.ClientID == "" {
			missing = append(missing, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			missing = append(missing, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			missing = append(missing, "salesforce.key_path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ADRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "intel.db")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("enrich.refresh_ttl_hours", 24*30)
	v.SetDefault("buyer_group.product_category", "sales_intelligence")
	v.SetDefault("rank.recency_half_life_days", 30)
	v.SetDefault("ingest.user_agent", "intel-engine/1.0")
	v.SetDefault("ingest.timeout_secs", 60)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.rate_per_host", 5)
	v.SetDefault("batch.max_concurrent", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
