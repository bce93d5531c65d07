package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/buyergroup"
	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/dedup"
	"github.com/adrata/intel-engine/internal/intel"
	"github.com/adrata/intel-engine/internal/provider"
	"github.com/adrata/intel-engine/internal/rank"
	"github.com/adrata/intel-engine/internal/resilience"
	"github.com/adrata/intel-engine/internal/store"
	"github.com/adrata/intel-engine/internal/waterfall"
	"github.com/adrata/intel-engine/pkg/coresignal"
	"github.com/adrata/intel-engine/pkg/crm"
	"github.com/adrata/intel-engine/pkg/lusha"
	"github.com/adrata/intel-engine/pkg/prospeo"
	gosf "github.com/k-capehart/go-salesforce/v3"
)

// engineEnv holds the initialized store and engine shared by the enrich,
// buyer-group, rerank, and serve commands.
type engineEnv struct {
	Store  store.Store
	Engine *intel.Engine
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEngine validates config for the mode, opens the store, registers the
// configured provider adapters, and assembles the facade. Callers should
// defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	wfCfg := waterfall.DefaultConfig()
	if cfg.Enrich.WaterfallFile != "" {
		wfCfg, err = waterfall.LoadConfig(cfg.Enrich.WaterfallFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	registry := provider.NewRegistry()
	for _, pc := range wfCfg.Providers {
		adapter := buildAdapter(pc)
		if adapter == nil {
			zap.L().Warn("provider key not configured, tier disabled",
				zap.String("provider", pc.Name))
			continue
		}
		registry.Register(adapter)
	}

	ledger := credit.NewLedger(st, wfCfg.RefillPolicies())
	scorer := dedup.NewScorer(dedup.DefaultWeights())
	orch := waterfall.NewOrchestrator(wfCfg, registry, ledger, scorer)

	bgCfg := buyergroup.DefaultConfig()
	if cfg.BuyerGroup.ProductCategory != "" {
		bgCfg.ProductCategory = cfg.BuyerGroup.ProductCategory
	}
	classifier := buyergroup.NewClassifier(bgCfg)

	ranker := rank.NewEngine(rankConfig(), st, st)

	engine := intel.NewEngine(st, orch, classifier, ranker, ledger, intel.Options{
		RefreshTTL: time.Duration(cfg.Enrich.RefreshTTLHours) * time.Hour,
	})

	return &engineEnv{Store: st, Engine: engine}, nil
}

// buildAdapter constructs the adapter for one waterfall tier, or nil when
// the provider's API key is not configured.
func buildAdapter(pc waterfall.ProviderConfig) provider.Adapter {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})
	guard := provider.NewGuard(pc.Name, pc.Guard, breaker)

	switch pc.Name {
	case provider.NameCoreSignal:
		if cfg.CoreSignal.Key == "" {
			return nil
		}
		var opts []coresignal.Option
		if cfg.CoreSignal.BaseURL != "" {
			opts = append(opts, coresignal.WithBaseURL(cfg.CoreSignal.BaseURL))
		}
		return provider.NewCoreSignalAdapter(coresignal.NewClient(cfg.CoreSignal.Key, opts...), guard, pc.SearchCost, pc.CollectCost)

	case provider.NameLusha:
		if cfg.Lusha.Key == "" {
			return nil
		}
		var opts []lusha.Option
		if cfg.Lusha.BaseURL != "" {
			opts = append(opts, lusha.WithBaseURL(cfg.Lusha.BaseURL))
		}
		return provider.NewLushaAdapter(lusha.NewClient(cfg.Lusha.Key, opts...), guard, pc.SearchCost, pc.CollectCost)

	case provider.NameProspeo:
		if cfg.Prospeo.Key == "" {
			return nil
		}
		var opts []prospeo.Option
		if cfg.Prospeo.BaseURL != "" {
			opts = append(opts, prospeo.WithBaseURL(cfg.Prospeo.BaseURL))
		}
		return provider.NewProspeoAdapter(prospeo.NewClient(cfg.Prospeo.Key, opts...), guard, pc.SearchCost, pc.CollectCost)
	}

	zap.L().Warn("unknown provider in waterfall config", zap.String("provider", pc.Name))
	return nil
}

func rankConfig() rank.Config {
	rc := rank.DefaultConfig()
	if cfg.Rank.CompanyBand > 0 {
		rc.Company.Band = cfg.Rank.CompanyBand
	}
	if cfg.Rank.CompanyGrowth > 0 {
		rc.Company.Growth = cfg.Rank.CompanyGrowth
	}
	if cfg.Rank.CompanyIndustryFit > 0 {
		rc.Company.IndustryFit = cfg.Rank.CompanyIndustryFit
	}
	if cfg.Rank.PersonInfluence > 0 {
		rc.Person.Influence = cfg.Rank.PersonInfluence
	}
	if cfg.Rank.PersonStaleness > 0 {
		rc.Person.Recency = cfg.Rank.PersonStaleness
	}
	if cfg.Rank.PersonRole > 0 {
		rc.Person.Role = cfg.Rank.PersonRole
	}
	if cfg.Rank.RecencyHalfLifeDays > 0 {
		rc.RecencyHalfLife = time.Duration(cfg.Rank.RecencyHalfLifeDays) * 24 * time.Hour
	}
	return rc
}

// initSalesforce builds the JWT-authenticated CRM client.
func initSalesforce() (crm.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := gosf.Init(gosf.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return crm.NewClient(sf, crm.WithRateLimit(5)), nil
}
