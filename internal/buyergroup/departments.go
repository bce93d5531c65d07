// Package buyergroup classifies a company's enriched roster into buyer-group
// roles using title and department heuristics. All call sites share this one
// classifier so the (role, influence, membership) triple can never drift.
package buyergroup

import "strings"

// Department is a coarse functional bucket derived from a person's title.
type Department string

const (
	DeptSales           Department = "sales_revenue_ops"
	DeptMarketing       Department = "marketing"
	DeptEngineering     Department = "engineering_product"
	DeptCustomerSuccess Department = "customer_success"
	DeptOperations      Department = "operations"
	DeptHR              Department = "hr_people"
	DeptFinanceLegal    Department = "finance_legal_procurement"
	DeptExecutive       Department = "executive"
	DeptOther           Department = "other"
)

// Seniority is a title-derived seniority tier.
type Seniority int

const (
	SeniorityIC Seniority = iota
	SeniorityMidManagement
	SenioritySeniorLeadership
	SeniorityExecutive
)

func (s Seniority) String() string {
	switch s {
	case SeniorityExecutive:
		return "executive"
	case SenioritySeniorLeadership:
		return "senior leadership"
	case SeniorityMidManagement:
		return "mid-level management"
	default:
		return "individual contributor"
	}
}

// IsLeadership reports whether the tier carries budget-signing authority.
func (s Seniority) IsLeadership() bool {
	return s >= SenioritySeniorLeadership
}

// Department keyword tables, checked in priority order. Sales outranks
// engineering so "Sales Engineer" lands in sales, and finance outranks
// executive so "CFO" lands in finance rather than generic leadership.
var departmentKeywords = []struct {
	dept     Department
	keywords []string
}{
	{DeptSales, []string{
		"sales", "revenue", "revops", "account executive", "business development",
		"sales development", "sales operations", "revenue operations", "sales enablement",
		"field sales", "inside sales", "enterprise sales", "commercial sales",
		"bdr", "sdr", "client manager",
	}},
	{DeptMarketing, []string{
		"marketing", "demand generation", "growth marketing", "brand",
		"communications", "public relations", "pr", "social media", "content",
	}},
	{DeptEngineering, []string{
		"engineer", "software", "developer", "programmer", "architect",
		"product manager", "product owner", "scrum master", "devops",
		"site reliability", "sre", "platform", "infrastructure", "backend",
		"frontend", "full stack", "data engineer", "machine learning",
	}},
	{DeptCustomerSuccess, []string{
		"customer success", "customer support", "customer experience", "cx",
		"support engineer", "technical support", "account manager",
	}},
	{DeptOperations, []string{
		"operations", "strategy", "partnerships", "alliances", "channel",
		"chief of staff",
	}},
	{DeptHR, []string{
		"human resources", "hr", "people", "talent", "recruiting", "recruitment",
		"talent acquisition",
	}},
	{DeptFinanceLegal, []string{
		"finance", "financial", "accounting", "controller", "cfo", "legal",
		"counsel", "attorney", "compliance", "risk", "audit",
		"procurement", "purchasing", "sourcing", "vendor management",
	}},
	{DeptExecutive, []string{
		"ceo", "cto", "coo", "president", "vice president", "vp",
		"director", "head of", "chief", "founder", "co-founder", "executive",
	}},
}

// CategorizeDepartment maps a title to its functional department. Unmatched
// titles land in DeptOther.
func CategorizeDepartment(title string) Department {
	t := strings.ToLower(title)
	for _, entry := range departmentKeywords {
		for _, kw := range entry.keywords {
			if matchKeyword(t, kw) {
				return entry.dept
			}
		}
	}
	return DeptOther
}

var executiveTitles = []string{"ceo", "cto", "cfo", "coo", "president", "founder", "co-founder"}
var seniorTitles = []string{"vice president", "vp", "director", "head of", "chief"}
var midTitles = []string{"manager", "lead", "senior", "principal"}

// SeniorityOf maps a title to a seniority tier. Titles with no ladder keyword
// default to individual contributor.
func SeniorityOf(title string) Seniority {
	t := strings.ToLower(title)
	for _, kw := range executiveTitles {
		if matchKeyword(t, kw) {
			return SeniorityExecutive
		}
	}
	for _, kw := range seniorTitles {
		if matchKeyword(t, kw) {
			return SenioritySeniorLeadership
		}
	}
	for _, kw := range midTitles {
		if matchKeyword(t, kw) {
			return SeniorityMidManagement
		}
	}
	return SeniorityIC
}

// matchKeyword matches multi-word keywords as substrings and single tokens as
// whole words, so "pr" never matches "program" and "vp" never matches "mvp".
func matchKeyword(lowerTitle, keyword string) bool {
	if strings.ContainsRune(keyword, ' ') {
		return strings.Contains(lowerTitle, keyword)
	}
	for _, tok := range strings.FieldsFunc(lowerTitle, func(r rune) bool {
		return r == ' ' || r == ',' || r == '/' || r == '-' || r == '(' || r == ')' || r == '&' || r == '.'
	}) {
		if tok == keyword {
			return true
		}
	}
	return false
}
