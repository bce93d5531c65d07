package buyergroup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrata/intel-engine/internal/model"
)

func rosterContact(id, title string) *model.CanonicalContact {
	return &model.CanonicalContact{
		ID:         id,
		FullName:   "Person " + id,
		Title:      title,
		Confidence: 0.9,
	}
}

func TestClassifyFivePersonRoster(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	roster := []*model.CanonicalContact{
		rosterContact("1", "CFO"),
		rosterContact("2", "VP Sales"),
		rosterContact("3", "Sales Engineer"),
		rosterContact("4", "Procurement Manager"),
		rosterContact("5", "Intern"),
	}

	res := c.Classify("co-1", roster)
	require.Len(t, res.Members, 5)
	assert.False(t, res.Empty)

	byID := make(map[string]model.BuyerGroupMember)
	for _, m := range res.Members {
		byID[m.ContactID] = m
	}

	assert.Equal(t, model.RoleBlocker, byID["1"].Role, "CFO gates spend")
	assert.Equal(t, model.RoleDecisionMaker, byID["2"].Role, "VP Sales holds the budget")
	assert.Equal(t, model.RoleIntroducer, byID["3"].Role, "sales IC can introduce")
	assert.Equal(t, model.RoleStakeholder, byID["4"].Role, "procurement reviews the purchase")
	assert.Equal(t, model.RoleNone, byID["5"].Role, "no signal for an intern")

	assert.False(t, byID["5"].IsBuyerGroupMember())
	assert.Equal(t, model.InfluenceHigh, byID["2"].Influence)
	assert.Equal(t, model.InfluenceMedium, byID["1"].Influence)
	assert.Equal(t, model.InfluenceLow, byID["3"].Influence)
}

// Influence is always derived from role via the fixed lookup, for every role
// the classifier can emit.
func TestInfluenceAlwaysMatchesRole(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	titles := []string{
		"CFO", "CEO", "VP Sales", "VP Marketing", "Head of Revenue Operations",
		"Director of Engineering", "Sales Engineer", "Procurement Manager",
		"General Counsel", "Marketing Coordinator", "Customer Success Manager",
		"Intern", "Warehouse Associate", "Chief of Staff", "Controller",
	}

	roster := make([]*model.CanonicalContact, len(titles))
	for i, title := range titles {
		roster[i] = rosterContact(fmt.Sprintf("%d", i), title)
	}

	res := c.Classify("co-1", roster)
	for _, m := range res.Members {
		assert.Equal(t, model.InfluenceForRole(m.Role), m.Influence,
			"influence for role %q must come from the fixed mapping", m.Role)
	}
}

func TestClassifySkipsLowConfidenceContacts(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	weak := rosterContact("1", "VP Sales")
	weak.LowConfidence = true

	res := c.Classify("co-1", []*model.CanonicalContact{weak})
	assert.Empty(t, res.Members)
	assert.True(t, res.Empty, "an all-low-confidence roster is reportably empty")
}

func TestClassifyEmptyRoster(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	res := c.Classify("co-1", nil)
	assert.True(t, res.Empty)
	assert.Empty(t, res.InGroup())
}

func TestCategorizeDepartment(t *testing.T) {
	cases := map[string]Department{
		"VP Sales":                 DeptSales,
		"Sales Engineer":           DeptSales,
		"Growth Marketing Manager": DeptMarketing,
		"Staff Software Engineer":  DeptEngineering,
		"Customer Success Manager": DeptCustomerSuccess,
		"Chief of Staff":           DeptOperations,
		"Talent Acquisition Lead":  DeptHR,
		"Procurement Manager":      DeptFinanceLegal,
		"General Counsel":          DeptFinanceLegal,
		"CFO":                      DeptFinanceLegal,
		"CEO":                      DeptExecutive,
		"Intern":                   DeptOther,
	}
	for title, want := range cases {
		assert.Equal(t, want, CategorizeDepartment(title), "title %q", title)
	}
}

func TestSeniorityOf(t *testing.T) {
	cases := map[string]Seniority{
		"CEO":                    SeniorityExecutive,
		"Co-Founder":             SeniorityExecutive,
		"VP Sales":               SenioritySeniorLeadership,
		"Head of Marketing":      SenioritySeniorLeadership,
		"Engineering Manager":    SeniorityMidManagement,
		"Senior Account Manager": SeniorityMidManagement,
		"Sales Development Rep":  SeniorityIC,
		"Intern":                 SeniorityIC,
	}
	for title, want := range cases {
		assert.Equal(t, want, SeniorityOf(title), "title %q", title)
	}
}

func TestClassifyDealSmallTrimsToCore(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	roster := []*model.CanonicalContact{
		rosterContact("1", "VP Sales"),
		rosterContact("2", "Marketing Coordinator"),
		rosterContact("3", "Senior Account Manager"),
	}

	medium := c.ClassifyDeal("co-1", roster, Request{})
	small := c.ClassifyDeal("co-1", roster, Request{DealSize: DealSmall})
	roleByID := func(res *Result) map[string]model.Role {
		out := make(map[string]model.Role)
		for _, m := range res.Members {
			out[m.ContactID] = m.Role
		}
		return out
	}

	med, sml := roleByID(medium), roleByID(small)
	assert.Equal(t, model.RoleDecisionMaker, sml["1"], "the budget holder survives any deal size")
	assert.Equal(t, model.RoleIntroducer, med["2"])
	assert.Equal(t, model.RoleNone, sml["2"], "adjacent ICs fall outside a small deal's group")
	assert.Equal(t, model.RoleStakeholder, med["3"])
	assert.Equal(t, model.RoleNone, sml["3"], "adjacent mid-management falls outside a small deal's group")
}

func TestClassifyDealLargePullsInExecutiveSponsors(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	eng := rosterContact("1", "Director of Software Engineering")

	medium := c.ClassifyDeal("co-1", []*model.CanonicalContact{eng}, Request{})
	require.Len(t, medium.Members, 1)
	assert.Equal(t, model.RoleNone, medium.Members[0].Role,
		"engineering leadership is outside a sales-tool deal at medium size")

	large := c.ClassifyDeal("co-1", []*model.CanonicalContact{eng}, Request{DealSize: DealLarge})
	require.Len(t, large.Members, 1)
	assert.Equal(t, model.RoleStakeholder, large.Members[0].Role)
	assert.Equal(t, model.InfluenceMedium, large.Members[0].Influence)
}

func TestClassifyDealCategoryOverrideLandsInSignal(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	res := c.ClassifyDeal("co-1", []*model.CanonicalContact{rosterContact("1", "VP Sales")},
		Request{ProductCategory: "expense_management"})
	require.Len(t, res.Members, 1)
	assert.Contains(t, res.Members[0].Signal, "expense_management")
}

// Short keywords must match whole tokens only.
func TestKeywordMatchingAvoidsSubstringFalsePositives(t *testing.T) {
	assert.NotEqual(t, DeptMarketing, CategorizeDepartment("Print Production Associate"), "'pr' must not match 'print'")
	assert.NotEqual(t, SenioritySeniorLeadership, SeniorityOf("MVP Program Participant"), "'vp' must not match 'mvp'")
}
