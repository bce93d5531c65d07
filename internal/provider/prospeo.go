package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/adrata/intel-engine/internal/model"
	"github.com/adrata/intel-engine/internal/resilience"
	"github.com/adrata/intel-engine/pkg/prospeo"
)

// NameProspeo is the registry/ledger identifier for Prospeo.
const NameProspeo = "prospeo"

// ProspeoAdapter maps the Prospeo API onto the Adapter contract. Prospeo
// enriches by social URL, so references without a profile URL cannot be
// collected and report NotFound.
type ProspeoAdapter struct {
	client      prospeo.Client
	guard       *Guard
	searchCost  int
	collectCost int
}

// NewProspeoAdapter creates the adapter.
func NewProspeoAdapter(client prospeo.Client, guard *Guard, searchCost, collectCost int) *ProspeoAdapter {
	return &ProspeoAdapter{
		client:      client,
		guard:       guard,
		searchCost:  searchCost,
		collectCost: collectCost,
	}
}

func (a *ProspeoAdapter) Name() string     { return NameProspeo }
func (a *ProspeoAdapter) SearchCost() int  { return a.searchCost }
func (a *ProspeoAdapter) CollectCost() int { return a.collectCost }

func (a *ProspeoAdapter) Search(ctx context.Context, q model.IdentityQuery) ([]model.CandidateRef, error) {
	// A profile URL in the query skips the search round-trip entirely: the
	// URL itself is the collectable reference.
	if q.ProfileURL != "" {
		return []model.CandidateRef{{
			Provider:   NameProspeo,
			RefID:      q.ProfileURL,
			Name:       q.Name,
			ProfileURL: q.ProfileURL,
		}}, nil
	}

	req := prospeo.SearchRequest{
		FullName:      q.Name,
		Company:       q.CompanyName,
		CompanyDomain: q.CompanyDomain,
		Email:         q.Email,
		Limit:         10,
	}

	resp, err := guarded(ctx, a.guard, func(ctx context.Context) (*prospeo.SearchResponse, error) {
		res, err := a.client.SearchPerson(ctx, req)
		return res, classifyProspeo(err)
	})
	if err != nil {
		return nil, err
	}

	refs := make([]model.CandidateRef, 0, len(resp.Response))
	for _, hit := range resp.Response {
		if hit.LinkedInURL == "" {
			continue // uncollectable without a social URL
		}
		refs = append(refs, model.CandidateRef{
			Provider:      NameProspeo,
			RefID:         hit.LinkedInURL,
			Name:          hit.FullName,
			Title:         hit.JobTitle,
			CompanyName:   hit.Company,
			CompanyDomain: hit.CompanyDomain,
			ProfileURL:    hit.LinkedInURL,
		})
	}
	return refs, nil
}

func (a *ProspeoAdapter) Collect(ctx context.Context, ref model.CandidateRef) (*model.CandidateRecord, error) {
	if ref.ProfileURL == "" {
		return nil, ErrNotFound
	}

	resp, err := guarded(ctx, a.guard, func(ctx context.Context) (*prospeo.EnrichResponse, error) {
		res, err := a.client.Enrich(ctx, ref.ProfileURL)
		return res, classifyProspeo(err)
	})
	if err != nil {
		return nil, err
	}
	if resp.Error || resp.Response.FullName == "" {
		return nil, ErrNotFound
	}

	p := resp.Response
	rec := &model.CandidateRecord{
		Provider:      NameProspeo,
		RefID:         ref.RefID,
		FullName:      p.FullName,
		Title:         p.JobTitle,
		CompanyName:   p.Company,
		CompanyDomain: p.CompanyDomain,
		ProfileURL:    p.LinkedInURL,
		CollectedAt:   time.Now().UTC(),
		RawPayload:    resp.Raw,
	}

	if p.Email != "" {
		rec.Emails = append(rec.Emails, model.Email{
			Address:  p.Email,
			Kind:     model.EmailProfessional,
			Verified: p.EmailStatus == "VALID",
		})
	}
	if p.MobilePhone != "" {
		rec.Phones = append(rec.Phones, model.Phone{
			Number: p.MobilePhone,
			Kind:   model.PhoneMobile,
		})
	}
	return rec, nil
}

func classifyProspeo(err error) error {
	if err == nil {
		return nil
	}
	var se *prospeo.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case se.StatusCode == http.StatusTooManyRequests:
			return &resilience.RateLimitedError{Provider: NameProspeo, RetryAfter: se.RetryAfter}
		case resilience.IsTransientHTTPStatus(se.StatusCode):
			return resilience.NewTransientError(se, se.StatusCode)
		}
	}
	return err
}
