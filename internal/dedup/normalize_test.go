package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adrata/intel-engine/internal/model"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane@Acme.com", "jane@acme.com"},
		{"jane+crm@acme.com", "jane@acme.com"},
		{" jane@acme.com ", "jane@acme.com"},
		{"+weird@acme.com", "+weird@acme.com"}, // leading plus is not plus-addressing
		{"not-an-email", "not-an-email"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEmail(tt.in), tt.in)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"(415) 555-0123", "+14155550123"},
		{"1-415-555-0123", "+14155550123"},
		{"+44 20 7946 0958", "+442079460958"},
		{"555", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhone(tt.in), tt.in)
	}
}

func TestNormalizeProfileURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.linkedin.com/in/jane-doe/", "linkedin.com/in/jane-doe"},
		{"http://linkedin.com/in/jane-doe", "linkedin.com/in/jane-doe"},
		{"LinkedIn.com/in/Jane-Doe", "linkedin.com/in/jane-doe"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeProfileURL(tt.in), tt.in)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "JANE DOE"},
		{"Doe, Jane", "DOE JANE"},
		{"José García", "JOSE GARCIA"},
		{"Mary-Anne  O'Brien", "MARY ANNE OBRIEN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeName(tt.in), tt.in)
	}
}

func TestNormalizeCompany(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Corp.", "ACME"},
		{"Acme, Inc.", "ACME"},
		{"Acme GmbH", "ACME"},
		{"Acme", "ACME"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCompany(tt.in), tt.in)
	}
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "acme.com", NormalizeDomain("https://www.Acme.com/about?x=1"))
	assert.Equal(t, "acme.com", NormalizeDomain("acme.com"))
}

func TestQueryKeyPrecedence(t *testing.T) {
	// Email wins over everything.
	q := model.IdentityQuery{
		Name:       "Jane Doe",
		Email:      "Jane+x@Acme.com",
		ProfileURL: "https://linkedin.com/in/jane",
	}
	assert.Equal(t, "email:jane@acme.com", QueryKey(q))

	// Then profile URL.
	q.Email = ""
	assert.Equal(t, "url:linkedin.com/in/jane", QueryKey(q))

	// Then name plus domain.
	q.ProfileURL = ""
	q.CompanyDomain = "www.acme.com"
	q.CompanyName = "Acme Inc"
	assert.Equal(t, "name:JANE DOE|domain:acme.com", QueryKey(q))

	// Then name plus company.
	q.CompanyDomain = ""
	assert.Equal(t, "name:JANE DOE|company:ACME", QueryKey(q))

	// Name alone as a last resort.
	q.CompanyName = ""
	assert.Equal(t, "name:JANE DOE", QueryKey(q))
}

func TestQueryKeyEquivalentQueriesCollide(t *testing.T) {
	a := model.IdentityQuery{Email: "jane@acme.com"}
	b := model.IdentityQuery{Email: "Jane+salesloft@ACME.com", Name: "completely different"}
	assert.Equal(t, QueryKey(a), QueryKey(b))
}
