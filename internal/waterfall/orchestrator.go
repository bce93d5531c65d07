// Package waterfall resolves identity queries through a cost-aware cascade
// of enrichment providers, spending cheap search credits to narrow the
// candidate set before each expensive collect call.
package waterfall

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/dedup"
	"github.com/adrata/intel-engine/internal/model"
	"github.com/adrata/intel-engine/internal/provider"
)

// ErrEnrichmentExhausted is returned only when every provider in the
// waterfall failed outright, not when they merely produced low-confidence
// matches or empty results.
var ErrEnrichmentExhausted = eris.New("waterfall: all providers failed")

// Orchestrator runs the provider waterfall for identity queries. Concurrent
// resolutions of the same normalized query share a single in-flight run, so
// duplicate requests never duplicate credit spend.
type Orchestrator struct {
	cfg      *Config
	registry *provider.Registry
	ledger   *credit.Ledger
	scorer   *dedup.Scorer

	collectSem *semaphore.Weighted
	flights    singleflight.Group

	now func() time.Time
}

// NewOrchestrator creates a waterfall orchestrator.
func NewOrchestrator(cfg *Config, registry *provider.Registry, ledger *credit.Ledger, scorer *dedup.Scorer) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		registry:   registry,
		ledger:     ledger,
		scorer:     scorer,
		collectSem: semaphore.NewWeighted(int64(cfg.MaxInflightCollects)),
		now:        time.Now,
	}
}

// WithNow fixes the clock for tests.
func (o *Orchestrator) WithNow(fn func() time.Time) *Orchestrator {
	o.now = fn
	return o
}

// Resolve runs the waterfall for one identity query and returns the resolved
// contact. A result below the acceptance threshold is returned with
// LowConfidence set rather than failing: partial data is preferred over no
// data, but must be visibly flagged.
func (o *Orchestrator) Resolve(ctx context.Context, q model.IdentityQuery) (*model.CanonicalContact, error) {
	if q.IsEmpty() {
		return nil, eris.New("waterfall: empty identity query")
	}

	key := dedup.QueryKey(q)
	val, err, shared := o.flights.Do(key, func() (any, error) {
		return o.resolve(ctx, q)
	})
	if shared {
		zap.L().Debug("waterfall: joined in-flight resolution", zap.String("key", key))
	}
	if err != nil {
		return nil, err
	}
	return val.(*model.CanonicalContact), nil
}

// run tracks the state of one waterfall pass.
type run struct {
	best           *model.CandidateRecord
	bestScore      float64
	siblings       []*model.CandidateRecord // same-identity records merged into the result
	providersTried []string
	searchSpent    int
	collectSpent   int
	hardFailures   int
	attempted      int
}

func (o *Orchestrator) resolve(ctx context.Context, q model.IdentityQuery) (*model.CanonicalContact, error) {
	st := &run{}

	for _, pc := range o.cfg.Providers {
		if ctx.Err() != nil {
			return o.finishCancelled(ctx, q, st)
		}

		adapter := o.registry.Get(pc.Name)
		if adapter == nil {
			zap.L().Warn("waterfall: provider not registered", zap.String("provider", pc.Name))
			continue
		}

		st.attempted++
		st.providersTried = append(st.providersTried, pc.Name)

		accepted, err := o.tryProvider(ctx, q, adapter, st)
		if err != nil {
			if ctx.Err() != nil {
				return o.finishCancelled(ctx, q, st)
			}
			// Provider-scoped failure: absorbed, waterfall continues.
			st.hardFailures++
			zap.L().Warn("waterfall: provider failed, continuing",
				zap.String("provider", pc.Name),
				zap.Error(err),
			)
			continue
		}
		if accepted {
			break
		}
	}

	if st.best == nil && st.attempted > 0 && st.hardFailures == st.attempted {
		return nil, eris.Wrapf(ErrEnrichmentExhausted, "query %s", dedup.QueryKey(q))
	}

	return o.finish(q, st), nil
}

// tryProvider runs one waterfall tier. It returns true when a collected
// candidate met the acceptance threshold and the waterfall should stop.
func (o *Orchestrator) tryProvider(ctx context.Context, q model.IdentityQuery, adapter provider.Adapter, st *run) (bool, error) {
	name := adapter.Name()

	refs, err := o.search(ctx, q, adapter, st)
	if err != nil {
		return false, err
	}
	if len(refs) == 0 {
		zap.L().Debug("waterfall: no candidates", zap.String("provider", name))
		return false, nil
	}

	// Rank references by cheap signals; only the top K earn a collect.
	type scoredRef struct {
		ref   model.CandidateRef
		score float64
	}
	scored := make([]scoredRef, 0, len(refs))
	for _, ref := range refs {
		s := o.scorer.ScoreRef(q, ref)
		if s < o.cfg.MinRefScore {
			continue
		}
		scored = append(scored, scoredRef{ref: ref, score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > o.cfg.TopK {
		scored = scored[:o.cfg.TopK]
	}

	for _, sr := range scored {
		rec, err := o.collect(ctx, adapter, sr.ref, st)
		if err != nil {
			if errors.Is(err, provider.ErrNotFound) {
				continue
			}
			return false, err
		}
		if rec == nil { // collect credits denied
			continue
		}

		score := o.scorer.Score(q, rec)
		o.absorb(st, rec, score)

		if score >= o.cfg.AcceptanceThreshold {
			zap.L().Info("waterfall: accepted candidate",
				zap.String("provider", name),
				zap.Float64("confidence", score),
			)
			return true, nil
		}
	}

	return false, nil
}

// absorb folds a collected record into the run state: same-identity records
// are queued for merging, and the best-scored record becomes the spine of
// the eventual canonical contact.
func (o *Orchestrator) absorb(st *run, rec *model.CandidateRecord, score float64) {
	if st.best == nil {
		st.best = rec
		st.bestScore = score
		return
	}

	if dedup.SameIdentity(st.best, rec) {
		st.siblings = append(st.siblings, rec)
		if score > st.bestScore {
			st.bestScore = score
		}
		return
	}

	if score > st.bestScore {
		// A distinct, better-matching person displaces the previous best and
		// its siblings: candidates that are not the resolved person are
		// discarded after scoring.
		st.best = rec
		st.bestScore = score
		st.siblings = nil
	}
}

func (o *Orchestrator) search(ctx context.Context, q model.IdentityQuery, adapter provider.Adapter, st *run) ([]model.CandidateRef, error) {
	name := adapter.Name()

	res, ok, err := o.ledger.Reserve(ctx, name, credit.KindSearch, adapter.SearchCost())
	if err != nil {
		return nil, err
	}
	if !ok {
		zap.L().Info("waterfall: search credits exhausted, skipping provider",
			zap.String("provider", name))
		return nil, nil
	}

	refs, err := adapter.Search(ctx, q)
	if err != nil {
		o.ledger.Release(res)
		return nil, err
	}

	if err := o.ledger.Commit(ctx, res); err != nil {
		return nil, err
	}
	st.searchSpent += adapter.SearchCost()
	return refs, nil
}

// collect fetches a full record under the global collect cap. A nil record
// with nil error means collect credits were denied for this provider.
func (o *Orchestrator) collect(ctx context.Context, adapter provider.Adapter, ref model.CandidateRef, st *run) (*model.CandidateRecord, error) {
	name := adapter.Name()

	if err := o.collectSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer o.collectSem.Release(1)

	res, ok, err := o.ledger.Reserve(ctx, name, credit.KindCollect, adapter.CollectCost())
	if err != nil {
		return nil, err
	}
	if !ok {
		zap.L().Info("waterfall: collect credits exhausted, skipping provider",
			zap.String("provider", name))
		return nil, nil
	}

	rec, err := adapter.Collect(ctx, ref)
	if err != nil {
		o.ledger.Release(res)
		return nil, err
	}

	if err := o.ledger.Commit(ctx, res); err != nil {
		return nil, err
	}
	st.collectSpent += adapter.CollectCost()
	return rec, nil
}

// finish builds the canonical contact from the run state. No candidate at
// all yields an explicitly low-confidence shell carrying only the query
// fields, so callers can see what was attempted.
func (o *Orchestrator) finish(q model.IdentityQuery, st *run) *model.CanonicalContact {
	contact := &model.CanonicalContact{
		ID:                 uuid.New().String(),
		FullName:           q.Name,
		CompanyName:        q.CompanyName,
		CompanyDomain:      q.CompanyDomain,
		Confidence:         st.bestScore,
		LowConfidence:      st.bestScore < o.cfg.AcceptanceThreshold,
		ProvidersTried:     st.providersTried,
		SearchCreditsUsed:  st.searchSpent,
		CollectCreditsUsed: st.collectSpent,
		ResolvedAt:         o.now().UTC(),
	}

	if st.best != nil {
		merged := dedup.Merge(append([]*model.CandidateRecord{st.best}, st.siblings...))
		contact.FullName = merged.FullName
		contact.Title = merged.Title
		contact.CompanyName = merged.CompanyName
		contact.CompanyDomain = merged.CompanyDomain
		contact.Emails = merged.Emails
		contact.Phones = merged.Phones
		contact.ProfileURL = merged.ProfileURL
	}

	return contact
}

// finishCancelled honors the cancellation contract: partial results already
// collected are returned flagged low-confidence, not discarded.
func (o *Orchestrator) finishCancelled(ctx context.Context, q model.IdentityQuery, st *run) (*model.CanonicalContact, error) {
	if st.best == nil {
		return nil, eris.Wrap(ctx.Err(), "waterfall: cancelled")
	}
	contact := o.finish(q, st)
	contact.LowConfidence = true
	return contact, nil
}
