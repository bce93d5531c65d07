package crm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/model"
)

// External ID fields owned by the engine on the Salesforce side. Records are
// upserted against these so repeated syncs never duplicate.
const (
	ContactExternalIDField = "Adrata_Contact_Id__c"
	AccountExternalIDField = "Adrata_Company_Id__c"
)

// Syncer maps engine records onto Salesforce objects.
type Syncer struct {
	client Client
}

// NewSyncer creates a Syncer.
func NewSyncer(client Client) *Syncer {
	return &Syncer{client: client}
}

// SyncResult summarizes one sync call.
type SyncResult struct {
	Upserted int
	Failed   int
}

// SyncContacts upserts resolved contacts as Salesforce Contact records,
// keyed by the engine's contact ID. Low-confidence contacts are synced too,
// carrying the flag so sellers see the caveat in the CRM.
func (s *Syncer) SyncContacts(ctx context.Context, contacts []*model.CanonicalContact) (*SyncResult, error) {
	if len(contacts) == 0 {
		return &SyncResult{}, nil
	}

	records := make([]map[string]any, 0, len(contacts))
	for _, c := range contacts {
		records = append(records, contactRecord(c))
	}

	results, err := s.client.UpsertCollection(ctx, "Contact", ContactExternalIDField, records)
	if err != nil {
		return nil, eris.Wrap(err, "crm: sync contacts")
	}
	return s.tally("Contact", results), nil
}

// SyncRanks writes company ranks onto the matching Account records and
// person ranks with buyer-group roles onto Contact records.
func (s *Syncer) SyncRanks(ctx context.Context, companies []model.CompanyRank, people []model.PersonRank, members []model.BuyerGroupMember) (*SyncResult, error) {
	roleFor := make(map[string]model.BuyerGroupMember, len(members))
	for _, m := range members {
		roleFor[m.ContactID] = m
	}

	var records []map[string]any
	for _, cr := range companies {
		records = append(records, map[string]any{
			AccountExternalIDField: cr.CompanyID,
			"Adrata_Rank__c":       cr.Rank,
			"Adrata_Score__c":      cr.Score,
		})
	}
	total := &SyncResult{}
	if len(records) > 0 {
		results, err := s.client.UpsertCollection(ctx, "Account", AccountExternalIDField, records)
		if err != nil {
			return nil, eris.Wrap(err, "crm: sync company ranks")
		}
		merge(total, s.tally("Account", results))
	}

	records = records[:0]
	for _, pr := range people {
		rec := map[string]any{
			ContactExternalIDField: pr.ContactID,
			"Adrata_Rank__c":       pr.Rank,
			"Adrata_Score__c":      pr.Score,
		}
		if m, ok := roleFor[pr.ContactID]; ok {
			rec["Adrata_Role__c"] = string(m.Role)
			rec["Adrata_Influence__c"] = string(m.Influence)
		}
		records = append(records, rec)
	}
	if len(records) > 0 {
		results, err := s.client.UpsertCollection(ctx, "Contact", ContactExternalIDField, records)
		if err != nil {
			return nil, eris.Wrap(err, "crm: sync person ranks")
		}
		merge(total, s.tally("Contact", results))
	}

	return total, nil
}

func (s *Syncer) tally(object string, results []UpsertResult) *SyncResult {
	out := &SyncResult{}
	for _, r := range results {
		if r.Success {
			out.Upserted++
			continue
		}
		out.Failed++
		zap.L().Warn("crm: record upsert failed",
			zap.String("object", object),
			zap.String("id", r.ID),
			zap.String("errors", strings.Join(r.Errors, "; ")),
		)
	}
	return out
}

func merge(into, from *SyncResult) {
	into.Upserted += from.Upserted
	into.Failed += from.Failed
}

func contactRecord(c *model.CanonicalContact) map[string]any {
	first, last := splitName(c.FullName)
	rec := map[string]any{
		ContactExternalIDField:  c.ID,
		"FirstName":             first,
		"LastName":              last,
		"Title":                 c.Title,
		"Adrata_Confidence__c":  c.Confidence,
		"Adrata_Low_Conf__c":    c.LowConfidence,
		"Adrata_Resolved_At__c": c.ResolvedAt,
	}
	if email := c.BestEmail(); email != "" {
		rec["Email"] = email
	}
	if len(c.Phones) > 0 {
		rec["Phone"] = c.Phones[0].Number
	}
	if c.ProfileURL != "" {
		rec["Adrata_Profile_URL__c"] = c.ProfileURL
	}
	return rec
}

// splitName splits a full name into Salesforce's first/last shape. LastName
// is required by Salesforce, so a single token becomes the last name.
func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", "Unknown"
	}
	parts := strings.Fields(full)
	if len(parts) == 1 {
		return "", parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}
