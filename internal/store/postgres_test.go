package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_GetContact_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, data, last_engaged_at FROM contacts WHERE query_key = \$1`).
		WithArgs("email:nobody@acme.com").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetContactByQueryKey(context.Background(), "email:nobody@acme.com")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetContact_Hydrates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	contact := &model.CanonicalContact{ID: "stale-id", FullName: "Jane Doe", Title: "VP Sales"}
	data, err := json.Marshal(contact)
	require.NoError(t, err)
	engaged := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, data, last_engaged_at FROM contacts WHERE query_key = \$1`).
		WithArgs("email:jane@acme.com").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data", "last_engaged_at"}).
			AddRow("stable-id", data, &engaged))

	got, err := s.GetContactByQueryKey(context.Background(), "email:jane@acme.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "stable-id", got.ID, "row id overrides the blob id")
	assert.Equal(t, "Jane Doe", got.FullName)
	require.NotNil(t, got.LastEngagedAt)
	assert.True(t, got.LastEngagedAt.Equal(engaged))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertContact(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO contacts .* ON CONFLICT \(query_key\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	c := &model.CanonicalContact{ID: "c-1", FullName: "Jane Doe", ResolvedAt: time.Now().UTC()}
	require.NoError(t, s.UpsertContact(context.Background(), "email:jane@acme.com", c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceBuyerGroup_Transactional(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM buyer_group_members WHERE company_id = \$1`).
		WithArgs("co-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`INSERT INTO buyer_group_members`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	members := []model.BuyerGroupMember{
		{CompanyID: "co-1", ContactID: "p1", Role: model.RoleChampion, Influence: model.InfluenceHigh},
	}
	require.NoError(t, s.ReplaceBuyerGroup(context.Background(), "co-1", members))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplacePersonRanks_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM person_ranks WHERE company_id = \$1`).
		WithArgs("co-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO person_ranks`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrTxClosed)
	mock.ExpectRollback()

	ranks := []model.PersonRank{
		{CompanyID: "co-1", ContactID: "p1", Rank: 1, Score: 0.9, ComputedAt: time.Now().UTC()},
	}
	err := s.ReplacePersonRanks(context.Background(), "co-1", ranks)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BulkUpsertCompanies(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_companies"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_companies"},
		[]string{"id", "workspace_id", "data", "created_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "companies" .* ON CONFLICT \("id"\) DO UPDATE`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	companies := []model.Company{
		{ID: "co-1", WorkspaceID: "ws-1", Name: "Acme", CreatedAt: time.Now().UTC()},
		{ID: "co-2", WorkspaceID: "ws-1", Name: "Globex", CreatedAt: time.Now().UTC()},
	}
	n, err := s.BulkUpsertCompanies(context.Background(), companies)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DecrementBalance(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE credit_balances SET balance = balance - \$1`).
		WithArgs(3, "coresignal", "collect").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.DecrementBalance(context.Background(), "coresignal", credit.KindCollect, 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DecrementBalance_Insufficient(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE credit_balances SET balance = balance - \$1`).
		WithArgs(100, "coresignal", "collect").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.DecrementBalance(context.Background(), "coresignal", credit.KindCollect, 100)
	require.NoError(t, err)
	assert.False(t, ok, "conditional decrement must reject when the balance is short")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMembers(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	signal := "vp sales"
	mock.ExpectQuery(`SELECT company_id, contact_id, role, influence, signal FROM buyer_group_members`).
		WithArgs("co-1").
		WillReturnRows(pgxmock.NewRows([]string{"company_id", "contact_id", "role", "influence", "signal"}).
			AddRow("co-1", "p1", model.RoleDecisionMaker, model.InfluenceHigh, &signal).
			AddRow("co-1", "p2", model.RoleBlocker, model.InfluenceMedium, (*string)(nil)))

	members, err := s.ListMembers(context.Background(), "co-1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "vp sales", members[0].Signal)
	assert.Empty(t, members[1].Signal)
	assert.NoError(t, mock.ExpectationsWereMet())
}
