package provider

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/adrata/intel-engine/internal/model"
	"github.com/adrata/intel-engine/internal/resilience"
	"github.com/adrata/intel-engine/pkg/coresignal"
)

// NameCoreSignal is the registry/ledger identifier for CoreSignal.
const NameCoreSignal = "coresignal"

// CoreSignalAdapter maps the CoreSignal employee API onto the Adapter
// contract. CoreSignal is the broadest and cheapest source, so it normally
// sits first in the waterfall.
type CoreSignalAdapter struct {
	client      coresignal.Client
	guard       *Guard
	searchCost  int
	collectCost int
	searchLimit int
}

// NewCoreSignalAdapter creates the adapter.
func NewCoreSignalAdapter(client coresignal.Client, guard *Guard, searchCost, collectCost int) *CoreSignalAdapter {
	return &CoreSignalAdapter{
		client:      client,
		guard:       guard,
		searchCost:  searchCost,
		collectCost: collectCost,
		searchLimit: 10,
	}
}

func (a *CoreSignalAdapter) Name() string     { return NameCoreSignal }
func (a *CoreSignalAdapter) SearchCost() int  { return a.searchCost }
func (a *CoreSignalAdapter) CollectCost() int { return a.collectCost }

func (a *CoreSignalAdapter) Search(ctx context.Context, q model.IdentityQuery) ([]model.CandidateRef, error) {
	filter := coresignal.SearchFilter{
		FullName:       q.Name,
		CompanyName:    q.CompanyName,
		CompanyWebsite: q.CompanyDomain,
		LinkedInURL:    q.ProfileURL,
		Email:          q.Email,
		Limit:          a.searchLimit,
	}

	previews, err := guarded(ctx, a.guard, func(ctx context.Context) ([]coresignal.EmployeePreview, error) {
		res, err := a.client.SearchEmployees(ctx, filter)
		return res, classifyCoreSignal(err)
	})
	if err != nil {
		return nil, err
	}

	refs := make([]model.CandidateRef, 0, len(previews))
	for _, p := range previews {
		refs = append(refs, model.CandidateRef{
			Provider:      NameCoreSignal,
			RefID:         strconv.FormatInt(p.ID, 10),
			Name:          p.FullName,
			Title:         p.JobTitle,
			CompanyName:   p.CompanyName,
			CompanyDomain: p.CompanyWebsite,
			ProfileURL:    p.LinkedInURL,
		})
	}
	return refs, nil
}

func (a *CoreSignalAdapter) Collect(ctx context.Context, ref model.CandidateRef) (*model.CandidateRecord, error) {
	emp, err := guarded(ctx, a.guard, func(ctx context.Context) (*coresignal.Employee, error) {
		res, err := a.client.CollectEmployee(ctx, ref.RefID)
		return res, classifyCoreSignal(err)
	})
	if err != nil {
		return nil, err
	}

	rec := &model.CandidateRecord{
		Provider:      NameCoreSignal,
		RefID:         ref.RefID,
		FullName:      emp.FullName,
		Title:         emp.JobTitle,
		CompanyName:   emp.CompanyName,
		CompanyDomain: emp.CompanyWebsite,
		ProfileURL:    emp.LinkedInURL,
		CollectedAt:   time.Now().UTC(),
		RawPayload:    emp.Raw,
	}

	for _, e := range emp.Emails {
		kind := model.EmailProfessional
		if e.Type == "personal" {
			kind = model.EmailPersonal
		}
		rec.Emails = append(rec.Emails, model.Email{
			Address:  e.Address,
			Kind:     kind,
			Verified: e.IsVerified,
		})
	}
	for _, p := range emp.Phones {
		rec.Phones = append(rec.Phones, model.Phone{
			Number: p.Number,
			Kind:   phoneKind(p.Type),
		})
	}
	return rec, nil
}

func phoneKind(t string) model.PhoneKind {
	switch t {
	case "mobile":
		return model.PhoneMobile
	case "direct_dial":
		return model.PhoneDirectDial
	default:
		return model.PhoneWork
	}
}

// classifyCoreSignal maps API status errors into the shared failure taxonomy.
func classifyCoreSignal(err error) error {
	if err == nil {
		return nil
	}
	var se *coresignal.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case se.StatusCode == http.StatusTooManyRequests:
			return &resilience.RateLimitedError{Provider: NameCoreSignal, RetryAfter: se.RetryAfter}
		case resilience.IsTransientHTTPStatus(se.StatusCode):
			return resilience.NewTransientError(se, se.StatusCode)
		}
	}
	return err
}
