package provider

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrata/intel-engine/internal/model"
	"github.com/adrata/intel-engine/internal/resilience"
	"github.com/adrata/intel-engine/pkg/coresignal"
)

// fakeCoreSignal satisfies coresignal.Client with canned responses.
type fakeCoreSignal struct {
	previews   []coresignal.EmployeePreview
	employee   *coresignal.Employee
	searchErr  error
	collectErr error

	lastFilter coresignal.SearchFilter
	lastID     string
}

func (f *fakeCoreSignal) SearchEmployees(ctx context.Context, filter coresignal.SearchFilter) ([]coresignal.EmployeePreview, error) {
	f.lastFilter = filter
	return f.previews, f.searchErr
}

func (f *fakeCoreSignal) CollectEmployee(ctx context.Context, id string) (*coresignal.Employee, error) {
	f.lastID = id
	return f.employee, f.collectErr
}

func newCoreSignalAdapter(client coresignal.Client) *CoreSignalAdapter {
	return NewCoreSignalAdapter(client, fastGuard(NameCoreSignal, nil), 1, 2)
}

func TestCoreSignalSearchMapsRefs(t *testing.T) {
	client := &fakeCoreSignal{previews: []coresignal.EmployeePreview{
		{
			ID:             12345,
			FullName:       "Jane Doe",
			JobTitle:       "VP Sales",
			CompanyName:    "Acme",
			CompanyWebsite: "acme.com",
			LinkedInURL:    "linkedin.com/in/jane",
		},
	}}
	a := newCoreSignalAdapter(client)

	refs, err := a.Search(context.Background(), model.IdentityQuery{
		Name:        "Jane Doe",
		CompanyName: "Acme",
	})
	require.NoError(t, err)
	require.Len(t, refs, 1)

	assert.Equal(t, NameCoreSignal, refs[0].Provider)
	assert.Equal(t, "12345", refs[0].RefID)
	assert.Equal(t, "Jane Doe", refs[0].Name)
	assert.Equal(t, "acme.com", refs[0].CompanyDomain)

	assert.Equal(t, "Jane Doe", client.lastFilter.FullName)
	assert.Equal(t, "Acme", client.lastFilter.CompanyName)
	assert.Equal(t, 10, client.lastFilter.Limit)
}

func TestCoreSignalSearchEmptyIsNotAnError(t *testing.T) {
	a := newCoreSignalAdapter(&fakeCoreSignal{})

	refs, err := a.Search(context.Background(), model.IdentityQuery{Name: "Nobody"})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestCoreSignalCollectMapsRecord(t *testing.T) {
	client := &fakeCoreSignal{employee: &coresignal.Employee{
		ID:       12345,
		FullName: "Jane Doe",
		JobTitle: "VP Sales",
		Emails: []coresignal.EmployeeEmail{
			{Address: "jane@acme.com", Type: "professional", IsVerified: true},
			{Address: "jane@gmail.com", Type: "personal"},
		},
		Phones: []coresignal.EmployeePhone{
			{Number: "+14155550123", Type: "mobile"},
			{Number: "+14155550100", Type: "office"},
		},
	}}
	a := newCoreSignalAdapter(client)

	rec, err := a.Collect(context.Background(), model.CandidateRef{Provider: NameCoreSignal, RefID: "12345"})
	require.NoError(t, err)
	assert.Equal(t, "12345", client.lastID)

	require.Len(t, rec.Emails, 2)
	assert.Equal(t, model.EmailProfessional, rec.Emails[0].Kind)
	assert.True(t, rec.Emails[0].Verified)
	assert.Equal(t, model.EmailPersonal, rec.Emails[1].Kind)

	require.Len(t, rec.Phones, 2)
	assert.Equal(t, model.PhoneMobile, rec.Phones[0].Kind)
	assert.Equal(t, model.PhoneWork, rec.Phones[1].Kind, "unknown phone types fall back to work")

	assert.WithinDuration(t, time.Now().UTC(), rec.CollectedAt, time.Minute)
}

func TestCoreSignalClassifiesStatusErrors(t *testing.T) {
	notFound := &fakeCoreSignal{collectErr: &coresignal.StatusError{StatusCode: http.StatusNotFound}}
	a := newCoreSignalAdapter(notFound)
	_, err := a.Collect(context.Background(), model.CandidateRef{RefID: "1"})
	assert.ErrorIs(t, err, ErrNotFound)

	rateLimited := &fakeCoreSignal{searchErr: &coresignal.StatusError{
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: time.Millisecond,
	}}
	a = newCoreSignalAdapter(rateLimited)
	_, err = a.Search(context.Background(), model.IdentityQuery{Name: "Jane"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err), "a provider rate-limited through all retries is down for this run")

	serverDown := &fakeCoreSignal{searchErr: &coresignal.StatusError{StatusCode: http.StatusBadGateway}}
	a = newCoreSignalAdapter(serverDown)
	_, err = a.Search(context.Background(), model.IdentityQuery{Name: "Jane"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err) || IsUnavailable(err))
}
