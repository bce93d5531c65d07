package provider

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adrata/intel-engine/internal/model"
	"github.com/adrata/intel-engine/internal/resilience"
	"github.com/adrata/intel-engine/pkg/lusha"
)

// NameLusha is the registry/ledger identifier for Lusha.
const NameLusha = "lusha"

// LushaAdapter maps the Lusha prospecting API onto the Adapter contract.
// Lusha's enrich call is scoped to a search request ID, so the adapter keeps
// the request ID of each search result until its references are collected.
type LushaAdapter struct {
	client      lusha.Client
	guard       *Guard
	searchCost  int
	collectCost int

	mu         sync.Mutex
	requestIDs map[string]string // ref ID → originating search request ID
}

// NewLushaAdapter creates the adapter.
func NewLushaAdapter(client lusha.Client, guard *Guard, searchCost, collectCost int) *LushaAdapter {
	return &LushaAdapter{
		client:      client,
		guard:       guard,
		searchCost:  searchCost,
		collectCost: collectCost,
		requestIDs:  make(map[string]string),
	}
}

func (a *LushaAdapter) Name() string     { return NameLusha }
func (a *LushaAdapter) SearchCost() int  { return a.searchCost }
func (a *LushaAdapter) CollectCost() int { return a.collectCost }

func (a *LushaAdapter) Search(ctx context.Context, q model.IdentityQuery) ([]model.CandidateRef, error) {
	req := lusha.ContactSearchRequest{
		Pages: lusha.Pages{Page: 0, Size: 10},
		Filters: lusha.ContactFilters{
			FullName:    q.Name,
			LinkedInURL: q.ProfileURL,
		},
	}
	if q.CompanyName != "" {
		req.Filters.CompanyNames = []string{q.CompanyName}
	}
	if q.CompanyDomain != "" {
		req.Filters.CompanyDomains = []string{q.CompanyDomain}
	}
	if q.Email != "" {
		req.Filters.Emails = []string{q.Email}
	}

	resp, err := guarded(ctx, a.guard, func(ctx context.Context) (*lusha.ContactSearchResponse, error) {
		res, err := a.client.SearchContacts(ctx, req)
		return res, classifyLusha(err)
	})
	if err != nil {
		return nil, err
	}

	refs := make([]model.CandidateRef, 0, len(resp.Contacts))
	a.mu.Lock()
	for _, c := range resp.Contacts {
		a.requestIDs[c.ContactID] = resp.RequestID
		refs = append(refs, model.CandidateRef{
			Provider:      NameLusha,
			RefID:         c.ContactID,
			Name:          c.Name,
			Title:         c.JobTitle,
			CompanyName:   c.CompanyName,
			CompanyDomain: c.CompanyDomain,
			ProfileURL:    c.LinkedInURL,
		})
	}
	a.mu.Unlock()
	return refs, nil
}

func (a *LushaAdapter) Collect(ctx context.Context, ref model.CandidateRef) (*model.CandidateRecord, error) {
	// A ref is collected at most once, so the mapping is dropped on lookup;
	// the map only ever holds refs from searches awaiting collection.
	a.mu.Lock()
	requestID, ok := a.requestIDs[ref.RefID]
	delete(a.requestIDs, ref.RefID)
	a.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	resp, err := guarded(ctx, a.guard, func(ctx context.Context) (*lusha.ContactEnrichResponse, error) {
		res, err := a.client.EnrichContacts(ctx, requestID, []string{ref.RefID})
		return res, classifyLusha(err)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Contacts) == 0 {
		return nil, ErrNotFound
	}

	c := resp.Contacts[0]
	rec := &model.CandidateRecord{
		Provider:      NameLusha,
		RefID:         ref.RefID,
		FullName:      c.Name,
		Title:         c.JobTitle,
		CompanyName:   c.CompanyName,
		CompanyDomain: c.CompanyDomain,
		ProfileURL:    c.LinkedInURL,
		CollectedAt:   time.Now().UTC(),
		RawPayload:    resp.Raw,
	}

	for _, e := range c.Emails {
		kind := model.EmailProfessional
		if e.EmailType == "personal" {
			kind = model.EmailPersonal
		}
		rec.Emails = append(rec.Emails, model.Email{
			Address:  e.Email,
			Kind:     kind,
			Verified: e.EmailConfidence == "a+" || e.EmailConfidence == "a",
		})
	}
	for _, p := range c.Phones {
		rec.Phones = append(rec.Phones, model.Phone{
			Number: p.Number,
			Kind:   phoneKind(p.PhoneType),
		})
	}
	return rec, nil
}

func classifyLusha(err error) error {
	if err == nil {
		return nil
	}
	var se *lusha.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case se.StatusCode == http.StatusTooManyRequests:
			return &resilience.RateLimitedError{Provider: NameLusha, RetryAfter: se.RetryAfter}
		case resilience.IsTransientHTTPStatus(se.StatusCode):
			return resilience.NewTransientError(se, se.StatusCode)
		}
	}
	return err
}
