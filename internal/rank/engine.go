// Package rank computes the two-level hierarchical ranking: companies 1..N
// within a workspace, people 1..M within their company. Every recompute is
// scoped, idempotent, and all-or-nothing.
package rank

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/model"
)

// ErrInvariantViolation aborts a recompute that would persist corrupted
// ranks. Prior ranks are left untouched.
var ErrInvariantViolation = eris.New("rank: invariant violation")

// CompanyWeights blends the firmographic signals into one company score.
type CompanyWeights struct {
	Band        float64 `yaml:"band" mapstructure:"band"`
	Growth      float64 `yaml:"growth" mapstructure:"growth"`
	IndustryFit float64 `yaml:"industry_fit" mapstructure:"industry_fit"`
}

// PersonWeights blends influence, engagement staleness, and role into one
// person score.
type PersonWeights struct {
	Influence float64 `yaml:"influence" mapstructure:"influence"`
	Recency   float64 `yaml:"recency" mapstructure:"recency"`
	Role      float64 `yaml:"role" mapstructure:"role"`
}

// Config holds the tunable rank weights. Exposed as configuration so the
// blend can be validated against labeled outcomes rather than hard-coded.
type Config struct {
	Company CompanyWeights `yaml:"company" mapstructure:"company"`
	Person  PersonWeights  `yaml:"person" mapstructure:"person"`

	// RecencyHalfLife controls how fast a past engagement stops suppressing
	// a person's rank. Someone contacted yesterday ranks low; the penalty
	// halves every half-life.
	RecencyHalfLife time.Duration `yaml:"recency_half_life" mapstructure:"recency_half_life"`
}

// DefaultConfig returns the rank weights used when none are configured.
func DefaultConfig() Config {
	return Config{
		Company:         CompanyWeights{Band: 0.4, Growth: 0.35, IndustryFit: 0.25},
		Person:          PersonWeights{Influence: 0.6, Recency: 0.3, Role: 0.1},
		RecencyHalfLife: 30 * 24 * time.Hour,
	}
}

// Source reads the inputs a recompute needs.
type Source interface {
	GetCompany(ctx context.Context, companyID string) (*model.Company, error)
	ListCompanies(ctx context.Context, workspaceID string) ([]model.Company, error)
	ListRoster(ctx context.Context, companyID string) ([]*model.CanonicalContact, error)
	ListMembers(ctx context.Context, companyID string) ([]model.BuyerGroupMember, error)
}

// Sink persists rank records. Each Replace call is transactional: it fully
// replaces the scope's ranks or leaves the prior ranks untouched.
type Sink interface {
	ReplacePersonRanks(ctx context.Context, companyID string, ranks []model.PersonRank) error
	ReplaceWorkspaceRanks(ctx context.Context, workspaceID string, companies []model.CompanyRank, people map[string][]model.PersonRank) error
}

// Engine computes ranks.
type Engine struct {
	cfg  Config
	src  Source
	sink Sink
	now  func() time.Time
}

// NewEngine creates a ranking engine.
func NewEngine(cfg Config, src Source, sink Sink) *Engine {
	return &Engine{cfg: cfg, src: src, sink: sink, now: time.Now}
}

// WithNow fixes the clock for tests.
func (e *Engine) WithNow(fn func() time.Time) *Engine {
	e.now = fn
	return e
}

// RerankCompany recomputes person ranks for one company. Other companies'
// ranks are never perturbed.
func (e *Engine) RerankCompany(ctx context.Context, companyID string) (*model.RerankResult, error) {
	start := e.now()

	people, err := e.rankPeople(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if err := validatePersonRanks(companyID, people); err != nil {
		return nil, err
	}

	if err := e.sink.ReplacePersonRanks(ctx, companyID, people); err != nil {
		return nil, eris.Wrapf(err, "rank: replace person ranks for %s", companyID)
	}

	zap.L().Info("rank: company recomputed",
		zap.String("company_id", companyID),
		zap.Int("people", len(people)),
	)
	return &model.RerankResult{
		Scope:        model.ScopeCompany,
		PeopleRanked: len(people),
		Duration:     e.now().Sub(start).Milliseconds(),
	}, nil
}

// RerankWorkspace recomputes company ranks across the workspace and person
// ranks within every company, persisted as one replacement.
func (e *Engine) RerankWorkspace(ctx context.Context, workspaceID string) (*model.RerankResult, error) {
	start := e.now()

	companies, err := e.src.ListCompanies(ctx, workspaceID)
	if err != nil {
		return nil, eris.Wrapf(err, "rank: list companies for %s", workspaceID)
	}

	companyRanks := e.rankCompanies(workspaceID, companies)
	if err := validateCompanyRanks(workspaceID, companyRanks); err != nil {
		return nil, err
	}

	people := make(map[string][]model.PersonRank, len(companies))
	total := 0
	for _, co := range companies {
		ranks, err := e.rankPeople(ctx, co.ID)
		if err != nil {
			return nil, err
		}
		if err := validatePersonRanks(co.ID, ranks); err != nil {
			return nil, err
		}
		people[co.ID] = ranks
		total += len(ranks)
	}

	if err := e.sink.ReplaceWorkspaceRanks(ctx, workspaceID, companyRanks, people); err != nil {
		return nil, eris.Wrapf(err, "rank: replace workspace ranks for %s", workspaceID)
	}

	zap.L().Info("rank: workspace recomputed",
		zap.String("workspace_id", workspaceID),
		zap.Int("companies", len(companyRanks)),
		zap.Int("people", total),
	)
	return &model.RerankResult{
		Scope:           model.ScopeWorkspace,
		CompaniesRanked: len(companyRanks),
		PeopleRanked:    total,
		Duration:        e.now().Sub(start).Milliseconds(),
	}, nil
}

func (e *Engine) rankCompanies(workspaceID string, companies []model.Company) []model.CompanyRank {
	w := e.cfg.Company
	type scored struct {
		co    model.Company
		score float64
	}
	list := make([]scored, len(companies))
	for i, co := range companies {
		score := w.Band*co.Band.BandScore() +
			w.Growth*clamp01(co.GrowthSignal) +
			w.IndustryFit*clamp01(co.IndustryFit)
		list[i] = scored{co: co, score: score}
	}

	// Descending score; ties broken by creation order then ID so the total
	// order is strict and reproducible.
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		if !list[i].co.CreatedAt.Equal(list[j].co.CreatedAt) {
			return list[i].co.CreatedAt.Before(list[j].co.CreatedAt)
		}
		return list[i].co.ID < list[j].co.ID
	})

	computedAt := e.now().UTC()
	out := make([]model.CompanyRank, len(list))
	for i, s := range list {
		out[i] = model.CompanyRank{
			CompanyID:   s.co.ID,
			WorkspaceID: workspaceID,
			Rank:        i + 1,
			Score:       s.score,
			Reason: fmt.Sprintf("band %.2f, growth %.2f, industry fit %.2f",
				s.co.Band.BandScore(), clamp01(s.co.GrowthSignal), clamp01(s.co.IndustryFit)),
			ComputedAt: computedAt,
		}
	}
	return out
}

func (e *Engine) rankPeople(ctx context.Context, companyID string) ([]model.PersonRank, error) {
	roster, err := e.src.ListRoster(ctx, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "rank: list roster for %s", companyID)
	}
	members, err := e.src.ListMembers(ctx, companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "rank: list members for %s", companyID)
	}

	byContact := make(map[string]model.BuyerGroupMember, len(members))
	for _, m := range members {
		if model.InfluenceForRole(m.Role) != m.Influence {
			return nil, eris.Wrapf(ErrInvariantViolation,
				"contact %s has role %q with influence %q", m.ContactID, m.Role, m.Influence)
		}
		byContact[m.ContactID] = m
	}

	now := e.now()
	type scored struct {
		contact *model.CanonicalContact
		member  model.BuyerGroupMember
		score   float64
	}
	list := make([]scored, len(roster))
	for i, contact := range roster {
		member := byContact[contact.ID]
		list[i] = scored{
			contact: contact,
			member:  member,
			score:   e.personScore(member, contact.LastEngagedAt, now),
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].contact.ID < list[j].contact.ID
	})

	computedAt := now.UTC()
	out := make([]model.PersonRank, len(list))
	for i, s := range list {
		out[i] = model.PersonRank{
			ContactID:  s.contact.ID,
			CompanyID:  companyID,
			Rank:       i + 1,
			Score:      s.score,
			Reason:     personReason(s.member, s.contact.LastEngagedAt),
			ComputedAt: computedAt,
		}
	}
	return out, nil
}

// personScore blends influence weight, engagement staleness, and role. A
// recent engagement suppresses the score so people just contacted are not
// re-surfaced; the suppression decays with the configured half-life.
func (e *Engine) personScore(m model.BuyerGroupMember, lastEngaged *time.Time, now time.Time) float64 {
	w := e.cfg.Person

	influence := float64(m.Influence.Weight()) / 3.0

	staleness := 1.0
	if lastEngaged != nil {
		age := now.Sub(*lastEngaged)
		if age < 0 {
			age = 0
		}
		halfLives := age.Hours() / e.cfg.RecencyHalfLife.Hours()
		staleness = 1.0 - math.Pow(0.5, halfLives)
	}

	return w.Influence*influence + w.Recency*staleness + w.Role*roleTiebreak(m.Role)
}

// roleTiebreak orders people of equal influence: a decision maker outranks
// the champion sharing their influence level, and a stakeholder outranks a
// blocker.
func roleTiebreak(r model.Role) float64 {
	switch r {
	case model.RoleDecisionMaker:
		return 1.0
	case model.RoleChampion:
		return 0.8
	case model.RoleStakeholder:
		return 0.5
	case model.RoleBlocker:
		return 0.4
	case model.RoleIntroducer:
		return 0.2
	default:
		return 0.0
	}
}

func personReason(m model.BuyerGroupMember, lastEngaged *time.Time) string {
	role := string(m.Role)
	if role == "" {
		role = "none"
	}
	engaged := "never engaged"
	if lastEngaged != nil {
		engaged = "last engaged " + lastEngaged.UTC().Format("2006-01-02")
	}
	return fmt.Sprintf("role %s, influence %s, %s", role, influenceLabel(m.Influence), engaged)
}

func influenceLabel(l model.InfluenceLevel) string {
	if l == model.InfluenceNone {
		return "none"
	}
	return string(l)
}

func validateCompanyRanks(workspaceID string, ranks []model.CompanyRank) error {
	for i, r := range ranks {
		if r.Rank != i+1 {
			return eris.Wrapf(ErrInvariantViolation,
				"workspace %s: company rank gap at position %d (got %d)", workspaceID, i+1, r.Rank)
		}
	}
	return nil
}

func validatePersonRanks(companyID string, ranks []model.PersonRank) error {
	for i, r := range ranks {
		if r.Rank != i+1 {
			return eris.Wrapf(ErrInvariantViolation,
				"company %s: person rank gap at position %d (got %d)", companyID, i+1, r.Rank)
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
