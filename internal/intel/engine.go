// Package intel is the front door of the intelligence engine. It ties the
// enrichment waterfall, the buyer-group classifier, the ranking engine, and
// the store together behind the operations the CLI and the HTTP API expose.
package intel

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adrata/intel-engine/internal/buyergroup"
	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/dedup"
	"github.com/adrata/intel-engine/internal/model"
	"github.com/adrata/intel-engine/internal/rank"
	"github.com/adrata/intel-engine/internal/store"
	"github.com/adrata/intel-engine/internal/waterfall"
)

// Resolver runs the enrichment waterfall for one identity query.
type Resolver interface {
	Resolve(ctx context.Context, q model.IdentityQuery) (*model.CanonicalContact, error)
}

// Engine exposes the engine's operations over a shared store.
type Engine struct {
	store      store.Store
	resolver   Resolver
	classifier *buyergroup.Classifier
	ranker     *rank.Engine
	ledger     *credit.Ledger

	// refreshTTL bounds how old a cached contact may be before an enrich
	// request re-runs the waterfall. Zero disables expiry.
	refreshTTL time.Duration

	now func() time.Time
}

// Options configures the engine.
type Options struct {
	RefreshTTL time.Duration
}

// NewEngine creates the facade.
func NewEngine(st store.Store, resolver Resolver, classifier *buyergroup.Classifier, ranker *rank.Engine, ledger *credit.Ledger, opts Options) *Engine {
	return &Engine{
		store:      st,
		resolver:   resolver,
		classifier: classifier,
		ranker:     ranker,
		ledger:     ledger,
		refreshTTL: opts.RefreshTTL,
		now:        time.Now,
	}
}

// WithNow fixes the clock for tests.
func (e *Engine) WithNow(fn func() time.Time) *Engine {
	e.now = fn
	return e
}

// EnrichRequest asks for one person to be resolved.
type EnrichRequest struct {
	Query model.IdentityQuery `json:"query"`

	// CompanyID attaches the resolved contact to a target company roster.
	CompanyID string `json:"company_id,omitempty"`

	// ForceRefresh re-runs the waterfall even when a fresh cached contact
	// exists.
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// EnrichPerson resolves one identity query. A stored contact younger than the
// refresh TTL is served from the store without spending credits; otherwise
// the waterfall runs and the result is persisted under the query's
// normalized key, together with an audit record of the run.
func (e *Engine) EnrichPerson(ctx context.Context, req EnrichRequest) (*model.CanonicalContact, error) {
	if req.Query.IsEmpty() {
		return nil, eris.New("intel: empty identity query")
	}
	key := dedup.QueryKey(req.Query)

	if !req.ForceRefresh {
		cached, err := e.store.GetContactByQueryKey(ctx, key)
		if err != nil {
			return nil, eris.Wrapf(err, "intel: read cached contact %s", key)
		}
		if cached != nil && e.fresh(cached) {
			zap.L().Debug("intel: serving cached contact",
				zap.String("query_key", key),
				zap.Time("resolved_at", cached.ResolvedAt),
			)
			return cached, nil
		}
	}

	started := e.now().UTC()
	contact, err := e.resolver.Resolve(ctx, req.Query)
	finished := e.now().UTC()

	audit := &model.EnrichmentRun{
		ID:         uuid.New().String(),
		QueryKey:   key,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err != nil {
		audit.Error = err.Error()
		e.recordRun(ctx, audit)
		return nil, err
	}

	if req.CompanyID != "" {
		contact.CompanyID = req.CompanyID
	}
	if err := e.store.UpsertContact(ctx, key, contact); err != nil {
		return nil, eris.Wrapf(err, "intel: persist contact %s", key)
	}

	audit.ContactID = contact.ID
	audit.Providers = contact.ProvidersTried
	audit.SearchCredits = contact.SearchCreditsUsed
	audit.CollectCredits = contact.CollectCreditsUsed
	audit.Confidence = contact.Confidence
	audit.LowConfidence = contact.LowConfidence
	e.recordRun(ctx, audit)

	return contact, nil
}

func (e *Engine) fresh(c *model.CanonicalContact) bool {
	if e.refreshTTL <= 0 {
		return true
	}
	return e.now().Sub(c.ResolvedAt) < e.refreshTTL
}

// recordRun is best-effort: a failed audit write never fails the enrichment
// that produced it.
func (e *Engine) recordRun(ctx context.Context, run *model.EnrichmentRun) {
	if err := e.store.RecordRun(ctx, run); err != nil {
		zap.L().Warn("intel: audit record failed",
			zap.String("query_key", run.QueryKey),
			zap.Error(err),
		)
	}
}

// BatchItem is the outcome of one entry in a batch enrichment.
type BatchItem struct {
	Query   model.IdentityQuery
	Contact *model.CanonicalContact
	Err     error
}

// EnrichBatch resolves many identity queries with bounded concurrency. One
// failed entry does not abort the rest; each item carries its own outcome.
func (e *Engine) EnrichBatch(ctx context.Context, reqs []EnrichRequest, maxConcurrent int) []BatchItem {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	items := make([]BatchItem, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, req := range reqs {
		g.Go(func() error {
			contact, err := e.EnrichPerson(ctx, req)
			items[i] = BatchItem{Query: req.Query, Contact: contact, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// ResolveBuyerGroup classifies the company's enriched roster and replaces the
// stored buyer group with the result. The request may override the product
// category and hint at the deal size; zero values use the configured
// defaults. An empty group is persisted as empty and surfaced on the result,
// never papered over.
func (e *Engine) ResolveBuyerGroup(ctx context.Context, companyID string, req buyergroup.Request) (*buyergroup.Result, error) {
	roster, err := e.store.ListRoster(ctx, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "intel: list roster for %s", companyID)
	}

	res := e.classifier.ClassifyDeal(companyID, roster, req)

	if err := e.store.ReplaceBuyerGroup(ctx, companyID, res.InGroup()); err != nil {
		return nil, eris.Wrapf(err, "intel: replace buyer group for %s", companyID)
	}

	zap.L().Info("intel: buyer group resolved",
		zap.String("company_id", companyID),
		zap.Int("roster", len(roster)),
		zap.Int("members", len(res.InGroup())),
		zap.Bool("empty", res.Empty),
	)
	return res, nil
}

// RerankCompany recomputes person ranks for one company.
func (e *Engine) RerankCompany(ctx context.Context, companyID string) (*model.RerankResult, error) {
	return e.ranker.RerankCompany(ctx, companyID)
}

// RerankWorkspace recomputes company ranks and all person ranks.
func (e *Engine) RerankWorkspace(ctx context.Context, workspaceID string) (*model.RerankResult, error) {
	return e.ranker.RerankWorkspace(ctx, workspaceID)
}

// PriorityQueue returns the top-n people across the workspace in
// (company rank, person rank) order.
func (e *Engine) PriorityQueue(ctx context.Context, workspaceID string, n int) ([]model.QueueEntry, error) {
	people, err := e.rankedPeople(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return rank.PriorityQueue(people, n), nil
}

// QualifiedLeads returns high-influence buyer-group members across the
// workspace in hierarchy order.
func (e *Engine) QualifiedLeads(ctx context.Context, workspaceID string) ([]model.QueueEntry, error) {
	people, err := e.rankedPeople(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return rank.QualifiedLeads(people), nil
}

// ActiveProspects returns buyer-group members engaged within the window, in
// hierarchy order.
func (e *Engine) ActiveProspects(ctx context.Context, workspaceID string, window time.Duration) ([]model.QueueEntry, error) {
	people, err := e.rankedPeople(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return rank.ActiveProspects(people, window, e.now()), nil
}

// rankedPeople joins stored ranks with buyer-group roles and engagement
// timestamps. Subsets only reference ranks that already exist; a company or
// person with no stored rank never appears.
func (e *Engine) rankedPeople(ctx context.Context, workspaceID string) ([]rank.RankedPerson, error) {
	companies, err := e.store.ListCompanyRanks(ctx, workspaceID)
	if err != nil {
		return nil, eris.Wrapf(err, "intel: list company ranks for %s", workspaceID)
	}

	var out []rank.RankedPerson
	for _, co := range companies {
		people, err := e.store.ListPersonRanks(ctx, co.CompanyID)
		if err != nil {
			return nil, eris.Wrapf(err, "intel: list person ranks for %s", co.CompanyID)
		}
		members, err := e.store.ListMembers(ctx, co.CompanyID)
		if err != nil {
			return nil, eris.Wrapf(err, "intel: list members for %s", co.CompanyID)
		}
		roster, err := e.store.ListRoster(ctx, co.CompanyID)
		if err != nil {
			return nil, eris.Wrapf(err, "intel: list roster for %s", co.CompanyID)
		}

		memberByContact := make(map[string]model.BuyerGroupMember, len(members))
		for _, m := range members {
			memberByContact[m.ContactID] = m
		}
		engagedByContact := make(map[string]*time.Time, len(roster))
		for _, c := range roster {
			engagedByContact[c.ID] = c.LastEngagedAt
		}

		for _, pr := range people {
			m := memberByContact[pr.ContactID]
			out = append(out, rank.RankedPerson{
				PersonRank:    pr,
				CompanyRank:   co,
				Influence:     m.Influence,
				Role:          m.Role,
				LastEngagedAt: engagedByContact[pr.ContactID],
			})
		}
	}
	return out, nil
}

// RecordEngagement stamps a contact's last meaningful interaction, feeding
// the recency term of person ranking.
func (e *Engine) RecordEngagement(ctx context.Context, contactID string, at time.Time) error {
	return e.store.RecordEngagement(ctx, contactID, at)
}

// Balance returns the remaining credit balance net of in-flight holds.
func (e *Engine) Balance(ctx context.Context, provider string, kind credit.Kind) (int, error) {
	return e.ledger.Balance(ctx, provider, kind)
}

// TopUp sets a provider's credit balance.
func (e *Engine) TopUp(ctx context.Context, provider string, kind credit.Kind, amount int) error {
	return e.ledger.TopUp(ctx, provider, kind, amount)
}

// Refill restores configured balances to their refill amounts.
func (e *Engine) Refill(ctx context.Context) error {
	return e.ledger.Refill(ctx)
}

// Runs lists enrichment audit records.
func (e *Engine) Runs(ctx context.Context, filter store.RunFilter) ([]model.EnrichmentRun, error) {
	return e.store.ListRuns(ctx, filter)
}

// compile-time check that the orchestrator satisfies Resolver.
var _ Resolver = (*waterfall.Orchestrator)(nil)
