package model

import "time"

// RankScope selects what a rerank operation covers.
type RankScope string

const (
	ScopeCompany   RankScope = "company"
	ScopeWorkspace RankScope = "workspace"
)

// CompanyRank is a company's ordinal position within its workspace.
// Ranks are contiguous integers starting at 1.
type CompanyRank struct {
	CompanyID   string    `json:"company_id"`
	WorkspaceID string    `json:"workspace_id"`
	Rank        int       `json:"rank"`
	Score       float64   `json:"score"`
	Reason      string    `json:"reason,omitempty"`
	ComputedAt  time.Time `json:"computed_at"`
}

// PersonRank is a person's ordinal position within their company.
// Ranks are contiguous integers starting at 1 within each company.
type PersonRank struct {
	ContactID  string    `json:"contact_id"`
	CompanyID  string    `json:"company_id"`
	Rank       int       `json:"rank"`
	Score      float64   `json:"score"`
	Reason     string    `json:"reason,omitempty"`
	ComputedAt time.Time `json:"computed_at"`
}

// QueueEntry is a priority-queue slot referencing existing ranks. Derived
// subsets never assign new rank fields.
type QueueEntry struct {
	ContactID   string `json:"contact_id"`
	CompanyID   string `json:"company_id"`
	CompanyRank int    `json:"company_rank"`
	PersonRank  int    `json:"person_rank"`
}

// RerankResult summarizes one rerank operation.
type RerankResult struct {
	Scope           RankScope `json:"scope"`
	CompaniesRanked int       `json:"companies_ranked"`
	PeopleRanked    int       `json:"people_ranked"`
	Duration        int64     `json:"duration_ms"`
}
