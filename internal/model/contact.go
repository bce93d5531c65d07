package model

import (
	"time"
)

// IdentityQuery is the input to an enrichment run: who we are looking for.
// At least one of Email, ProfileURL, or Name+Company should be set.
type IdentityQuery struct {
	Name          string `json:"name,omitempty"`
	CompanyName   string `json:"company_name,omitempty"`
	CompanyDomain string `json:"company_domain,omitempty"`
	Email         string `json:"email,omitempty"`
	ProfileURL    string `json:"profile_url,omitempty"`
}

// IsEmpty reports whether the query carries no usable identifier.
func (q IdentityQuery) IsEmpty() bool {
	return q.Name == "" && q.Email == "" && q.ProfileURL == ""
}

// EmailKind tags an email address as personal or professional.
type EmailKind string

const (
	EmailPersonal     EmailKind = "personal"
	EmailProfessional EmailKind = "professional"
)

// Email is a tagged email address on a candidate or canonical record.
type Email struct {
	Address  string    `json:"address"`
	Kind     EmailKind `json:"kind,omitempty"`
	Verified bool      `json:"verified"`
}

// PhoneKind tags a phone number.
type PhoneKind string

const (
	PhoneMobile     PhoneKind = "mobile"
	PhoneWork       PhoneKind = "work"
	PhoneDirectDial PhoneKind = "direct_dial"
)

// Phone is a tagged phone number on a candidate or canonical record.
type Phone struct {
	Number string    `json:"number"` // E.164 after normalization
	Kind   PhoneKind `json:"kind,omitempty"`
}

// CandidateRef is a thin search result from a provider: enough to score
// relevance cheaply, not enough to contact anyone. Collecting the full
// record costs collect credits.
type CandidateRef struct {
	Provider      string `json:"provider"`
	RefID         string `json:"ref_id"`
	Name          string `json:"name"`
	Title         string `json:"title,omitempty"`
	CompanyName   string `json:"company_name,omitempty"`
	CompanyDomain string `json:"company_domain,omitempty"`
	ProfileURL    string `json:"profile_url,omitempty"`
}

// CandidateRecord is a provider's full answer to an identity query. It is
// owned by the orchestrator invocation that collected it and discarded after
// scoring unless it wins. RawPayload keeps the provider's response for audit.
type CandidateRecord struct {
	Provider      string     `json:"provider"`
	RefID         string     `json:"ref_id"`
	FullName      string     `json:"full_name"`
	Title         string     `json:"title,omitempty"`
	CompanyName   string     `json:"company_name,omitempty"`
	CompanyDomain string     `json:"company_domain,omitempty"`
	Emails        []Email    `json:"emails,omitempty"`
	Phones        []Phone    `json:"phones,omitempty"`
	ProfileURL    string     `json:"profile_url,omitempty"`
	CollectedAt   time.Time  `json:"collected_at"`
	RawPayload    []byte     `json:"raw_payload,omitempty"`
}

// CanonicalContact is the single resolved record for a person.
type CanonicalContact struct {
	ID            string    `json:"id"`
	CompanyID     string    `json:"company_id,omitempty"`
	FullName      string    `json:"full_name"`
	Title         string    `json:"title,omitempty"`
	CompanyName   string    `json:"company_name,omitempty"`
	CompanyDomain string    `json:"company_domain,omitempty"`
	Emails        []Email   `json:"emails,omitempty"`
	Phones        []Phone   `json:"phones,omitempty"`
	ProfileURL    string    `json:"profile_url,omitempty"`

	// Resolution metadata.
	Confidence       float64   `json:"confidence"`
	LowConfidence    bool      `json:"low_confidence"`
	ProvidersTried   []string  `json:"providers_tried"`
	SearchCreditsUsed int      `json:"search_credits_used"`
	CollectCreditsUsed int     `json:"collect_credits_used"`
	ResolvedAt       time.Time `json:"resolved_at"`

	// LastEngagedAt is the most recent meaningful interaction, maintained by
	// the surrounding CRM and consumed by person ranking.
	LastEngagedAt *time.Time `json:"last_engaged_at,omitempty"`
}

// BestEmail returns the highest-value email on the contact: verified
// professional first, then any professional, then anything at all.
func (c *CanonicalContact) BestEmail() string {
	var professional, any string
	for _, e := range c.Emails {
		if e.Verified && e.Kind == EmailProfessional {
			return e.Address
		}
		if professional == "" && e.Kind == EmailProfessional {
			professional = e.Address
		}
		if any == "" {
			any = e.Address
		}
	}
	if professional != "" {
		return professional
	}
	return any
}
