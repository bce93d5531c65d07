// Package store persists canonical contacts, companies, buyer groups, rank
// records, credit balances, and enrichment run audit records. SQLite backs
// local single-user work; Postgres backs shared deployments.
package store

import (
	"context"
	"time"

	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/model"
)

// RunFilter specifies criteria for listing enrichment runs.
type RunFilter struct {
	QueryKey      string `json:"query_key,omitempty"`
	LowConfidence bool   `json:"low_confidence,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the intelligence engine. Rank
// replacement methods are transactional: they fully replace the scope's
// ranks or leave the prior ranks untouched.
type Store interface {
	// Contacts
	UpsertContact(ctx context.Context, queryKey string, c *model.CanonicalContact) error
	GetContactByQueryKey(ctx context.Context, queryKey string) (*model.CanonicalContact, error)
	ListRoster(ctx context.Context, companyID string) ([]*model.CanonicalContact, error)
	RecordEngagement(ctx context.Context, contactID string, at time.Time) error

	// Companies
	UpsertCompany(ctx context.Context, co *model.Company) error
	GetCompany(ctx context.Context, companyID string) (*model.Company, error)
	ListCompanies(ctx context.Context, workspaceID string) ([]model.Company, error)

	// Buyer group
	ReplaceBuyerGroup(ctx context.Context, companyID string, members []model.BuyerGroupMember) error
	ListMembers(ctx context.Context, companyID string) ([]model.BuyerGroupMember, error)

	// Ranks
	ReplacePersonRanks(ctx context.Context, companyID string, ranks []model.PersonRank) error
	ReplaceWorkspaceRanks(ctx context.Context, workspaceID string, companies []model.CompanyRank, people map[string][]model.PersonRank) error
	ListCompanyRanks(ctx context.Context, workspaceID string) ([]model.CompanyRank, error)
	ListPersonRanks(ctx context.Context, companyID string) ([]model.PersonRank, error)

	// Enrichment run audit
	RecordRun(ctx context.Context, run *model.EnrichmentRun) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.EnrichmentRun, error)

	// Credit balances
	credit.Store

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
