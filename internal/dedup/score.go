package dedup

import (
	"strings"

	"github.com/adrata/intel-engine/internal/model"
)

// Weights configures the confidence composite. Exposed as configuration
// rather than constants so weights can be tuned against labeled outcomes.
type Weights struct {
	ProfileURL    float64 `yaml:"profile_url" mapstructure:"profile_url"`
	VerifiedEmail float64 `yaml:"verified_email" mapstructure:"verified_email"`
	NameCompany   float64 `yaml:"name_company" mapstructure:"name_company"` // cap, not flat weight
	Title         float64 `yaml:"title" mapstructure:"title"`               // tiebreaker only
}

// DefaultWeights returns the confidence weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{
		ProfileURL:    0.45,
		VerifiedEmail: 0.35,
		NameCompany:   0.15,
		Title:         0.05,
	}
}

// Scorer scores how well a candidate record answers an identity query.
type Scorer struct {
	w Weights
}

// NewScorer creates a Scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w}
}

// Score returns a confidence in [0,1] for a collected candidate against the
// query. Exact profile-URL match contributes the most, verified-email match
// next, fuzzy name+company a capped weight, title similarity the least.
func (s *Scorer) Score(q model.IdentityQuery, c *model.CandidateRecord) float64 {
	score := 0.0

	if q.ProfileURL != "" && c.ProfileURL != "" &&
		NormalizeProfileURL(q.ProfileURL) == NormalizeProfileURL(c.ProfileURL) {
		score += s.w.ProfileURL
	}

	if q.Email != "" {
		want := NormalizeEmail(q.Email)
		for _, e := range c.Emails {
			if NormalizeEmail(e.Address) != want {
				continue
			}
			if e.Verified {
				score += s.w.VerifiedEmail
			} else {
				score += s.w.VerifiedEmail / 2
			}
			break
		}
	}

	score += s.w.NameCompany * s.nameCompanySimilarity(q, c)

	if q.Name != "" && c.Title != "" {
		// Title only helps break ties between otherwise-equal candidates;
		// it never carries a match on its own.
		score += s.w.Title * TokenSetRatio(q.Name, c.Title) * 0.5
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// ScoreRef scores a thin search reference using cheap signals only (name
// similarity and domain match), for ranking candidates before spending
// collect credits.
func (s *Scorer) ScoreRef(q model.IdentityQuery, ref model.CandidateRef) float64 {
	score := 0.0

	if q.ProfileURL != "" && ref.ProfileURL != "" &&
		NormalizeProfileURL(q.ProfileURL) == NormalizeProfileURL(ref.ProfileURL) {
		return 1.0
	}

	if q.Name != "" && ref.Name != "" {
		score += 0.6 * TokenSetRatio(NormalizeName(q.Name), NormalizeName(ref.Name))
	}

	qDomain := NormalizeDomain(q.CompanyDomain)
	if qDomain != "" && qDomain == NormalizeDomain(ref.CompanyDomain) {
		score += 0.4
	} else if q.CompanyName != "" && ref.CompanyName != "" {
		score += 0.4 * TokenSetRatio(NormalizeCompany(q.CompanyName), NormalizeCompany(ref.CompanyName))
	}

	return score
}

func (s *Scorer) nameCompanySimilarity(q model.IdentityQuery, c *model.CandidateRecord) float64 {
	if q.Name == "" || c.FullName == "" {
		return 0
	}
	nameSim := TokenSetRatio(NormalizeName(q.Name), NormalizeName(c.FullName))

	companySim := 1.0 // no company in query: name similarity stands alone
	qDomain := NormalizeDomain(q.CompanyDomain)
	switch {
	case qDomain != "" && NormalizeDomain(c.CompanyDomain) != "":
		if qDomain == NormalizeDomain(c.CompanyDomain) {
			companySim = 1.0
		} else {
			companySim = 0.0
		}
	case q.CompanyName != "" && c.CompanyName != "":
		companySim = TokenSetRatio(NormalizeCompany(q.CompanyName), NormalizeCompany(c.CompanyName))
	}

	return nameSim * companySim
}

// TokenSetRatio computes token-set similarity between two strings: the size
// of the token intersection over the size of the smaller token set. Case,
// order, and duplicates are ignored; punctuation is not stripped, so callers
// compare normalized strings.
func TokenSetRatio(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	small, large := ta, tb
	if len(tb) < len(ta) {
		small, large = tb, ta
	}

	matched := 0
	for tok := range small {
		if large[tok] {
			matched++
		}
	}
	return float64(matched) / float64(len(small))
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToUpper(s)) {
		set[tok] = true
	}
	return set
}
