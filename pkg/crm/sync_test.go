package crm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrata/intel-engine/internal/model"
)

// fakeClient records upsert calls and returns canned results.
type fakeClient struct {
	calls []upsertCall
	fail  map[string]bool // external ID → force failure
}

type upsertCall struct {
	object  string
	extID   string
	records []map[string]any
}

func (f *fakeClient) Query(ctx context.Context, soql string, out any) error { return nil }

func (f *fakeClient) UpsertCollection(ctx context.Context, object string, extID string, records []map[string]any) ([]UpsertResult, error) {
	f.calls = append(f.calls, upsertCall{object: object, extID: extID, records: records})
	results := make([]UpsertResult, len(records))
	for i, rec := range records {
		id, _ := rec[extID].(string)
		if f.fail[id] {
			results[i] = UpsertResult{ID: id, Errors: []string{"FIELD_CUSTOM_VALIDATION_EXCEPTION"}}
			continue
		}
		results[i] = UpsertResult{ID: id, Success: true}
	}
	return results, nil
}

func (f *fakeClient) UpdateOne(ctx context.Context, object string, id string, fields map[string]any) error {
	return nil
}

func TestSyncContactsMapsFields(t *testing.T) {
	fc := &fakeClient{}
	syncer := NewSyncer(fc)

	contacts := []*model.CanonicalContact{
		{
			ID:       "c-1",
			FullName: "Jane van der Berg",
			Title:    "VP Sales",
			Emails: []model.Email{
				{Address: "jane@personal.net", Kind: model.EmailPersonal},
				{Address: "jane@acme.com", Kind: model.EmailProfessional, Verified: true},
			},
			Phones:     []model.Phone{{Number: "+14155550123", Kind: model.PhoneMobile}},
			Confidence: 0.85,
			ResolvedAt: time.Now().UTC(),
		},
		{ID: "c-2", FullName: "Cher", LowConfidence: true},
	}

	res, err := syncer.SyncContacts(context.Background(), contacts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted)
	assert.Zero(t, res.Failed)

	require.Len(t, fc.calls, 1)
	call := fc.calls[0]
	assert.Equal(t, "Contact", call.object)
	assert.Equal(t, ContactExternalIDField, call.extID)
	require.Len(t, call.records, 2)

	jane := call.records[0]
	assert.Equal(t, "Jane van der", jane["FirstName"])
	assert.Equal(t, "Berg", jane["LastName"])
	assert.Equal(t, "jane@acme.com", jane["Email"], "verified professional email wins")
	assert.Equal(t, "+14155550123", jane["Phone"])

	// Single-token names land in the required LastName slot.
	cher := call.records[1]
	assert.Equal(t, "", cher["FirstName"])
	assert.Equal(t, "Cher", cher["LastName"])
	assert.Equal(t, true, cher["Adrata_Low_Conf__c"])
}

func TestSyncContactsEmptyRoster(t *testing.T) {
	fc := &fakeClient{}
	res, err := NewSyncer(fc).SyncContacts(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Upserted)
	assert.Empty(t, fc.calls)
}

func TestSyncRanksJoinsRolesAndTalliesFailures(t *testing.T) {
	fc := &fakeClient{fail: map[string]bool{"p-2": true}}
	syncer := NewSyncer(fc)

	companies := []model.CompanyRank{
		{CompanyID: "co-1", WorkspaceID: "ws-1", Rank: 1, Score: 0.9},
	}
	people := []model.PersonRank{
		{ContactID: "p-1", CompanyID: "co-1", Rank: 1, Score: 0.8},
		{ContactID: "p-2", CompanyID: "co-1", Rank: 2, Score: 0.4},
	}
	members := []model.BuyerGroupMember{
		{ContactID: "p-1", CompanyID: "co-1", Role: model.RoleChampion, Influence: model.InfluenceHigh},
	}

	res, err := syncer.SyncRanks(context.Background(), companies, people, members)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted, "account plus one contact")
	assert.Equal(t, 1, res.Failed)

	require.Len(t, fc.calls, 2)
	assert.Equal(t, "Account", fc.calls[0].object)
	assert.Equal(t, "Contact", fc.calls[1].object)

	p1 := fc.calls[1].records[0]
	assert.Equal(t, "champion", p1["Adrata_Role__c"])
	assert.Equal(t, "high", p1["Adrata_Influence__c"])

	p2 := fc.calls[1].records[1]
	_, hasRole := p2["Adrata_Role__c"]
	assert.False(t, hasRole, "non-members carry no role field")
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		full  string
		first string
		last  string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Jane van der Berg", "Jane van der", "Berg"},
		{"Cher", "", "Cher"},
		{"", "", "Unknown"},
	}
	for _, tt := range tests {
		first, last := splitName(tt.full)
		assert.Equal(t, tt.first, first)
		assert.Equal(t, tt.last, last)
	}
}
