package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id              TEXT PRIMARY KEY,
	company_id      TEXT,
	query_key       TEXT NOT NULL UNIQUE,
	data            TEXT NOT NULL,
	low_confidence  INTEGER NOT NULL DEFAULT 0,
	resolved_at     DATETIME NOT NULL,
	last_engaged_at DATETIME
);

CREATE TABLE IF NOT EXISTS companies (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	data         TEXT NOT NULL,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS buyer_group_members (
	company_id TEXT NOT NULL,
	contact_id TEXT NOT NULL,
	role       TEXT NOT NULL,
	influence  TEXT NOT NULL,
	signal     TEXT,
	PRIMARY KEY (company_id, contact_id)
);

CREATE TABLE IF NOT EXISTS company_ranks (
	company_id   TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	rank         INTEGER NOT NULL,
	score        REAL NOT NULL,
	reason       TEXT,
	computed_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS person_ranks (
	company_id  TEXT NOT NULL,
	contact_id  TEXT NOT NULL,
	rank        INTEGER NOT NULL,
	score       REAL NOT NULL,
	reason      TEXT,
	computed_at DATETIME NOT NULL,
	PRIMARY KEY (company_id, contact_id)
);

CREATE TABLE IF NOT EXISTS credit_balances (
	provider TEXT NOT NULL,
	kind     TEXT NOT NULL,
	balance  INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
	PRIMARY KEY (provider, kind)
);

CREATE TABLE IF NOT EXISTS enrichment_runs (
	id             TEXT PRIMARY KEY,
	query_key      TEXT NOT NULL,
	data           TEXT NOT NULL,
	low_confidence INTEGER NOT NULL DEFAULT 0,
	started_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
CREATE INDEX IF NOT EXISTS idx_companies_workspace_id ON companies(workspace_id);
CREATE INDEX IF NOT EXISTS idx_company_ranks_workspace ON company_ranks(workspace_id, rank);
CREATE INDEX IF NOT EXISTS idx_person_ranks_company ON person_ranks(company_id, rank);
CREATE INDEX IF NOT EXISTS idx_runs_query_key ON enrichment_runs(query_key);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON enrichment_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Contacts

// UpsertContact writes a contact keyed by its normalized query key. On
// refresh the stored row keeps its original contact ID so downstream
// references stay valid.
func (s *SQLiteStore) UpsertContact(ctx context.Context, queryKey string, c *model.CanonicalContact) error {
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contact")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, company_id, query_key, data, low_confidence, resolved_at, last_engaged_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (query_key) DO UPDATE SET
		   company_id = excluded.company_id, data = excluded.data,
		   low_confidence = excluded.low_confidence, resolved_at = excluded.resolved_at`,
		c.ID, c.CompanyID, queryKey, string(data), boolInt(c.LowConfidence), c.ResolvedAt, c.LastEngagedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert contact %s", queryKey)
}

func (s *SQLiteStore) GetContactByQueryKey(ctx context.Context, queryKey string) (*model.CanonicalContact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, last_engaged_at FROM contacts WHERE query_key = ?`,
		queryKey,
	)
	return scanContact(row)
}

func (s *SQLiteStore) ListRoster(ctx context.Context, companyID string) ([]*model.CanonicalContact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data, last_engaged_at FROM contacts WHERE company_id = ? ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list roster %s", companyID)
	}
	defer rows.Close()

	var roster []*model.CanonicalContact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		roster = append(roster, c)
	}
	return roster, eris.Wrap(rows.Err(), "sqlite: list roster iterate")
}

func (s *SQLiteStore) RecordEngagement(ctx context.Context, contactID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET last_engaged_at = ? WHERE id = ?`,
		at.UTC(), contactID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record engagement %s", contactID)
	}
	return checkRowsAffected(res, "contact", contactID)
}

// Companies

func (s *SQLiteStore) UpsertCompany(ctx context.Context, co *model.Company) error {
	data, err := json.Marshal(co)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal company")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO companies (id, workspace_id, data, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET workspace_id = excluded.workspace_id, data = excluded.data`,
		co.ID, co.WorkspaceID, string(data), co.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert company %s", co.ID)
}

func (s *SQLiteStore) GetCompany(ctx context.Context, companyID string) (*model.Company, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM companies WHERE id = ?`, companyID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", companyID)
	}

	var co model.Company
	if err := json.Unmarshal([]byte(data), &co); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal company")
	}
	return &co, nil
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, workspaceID string) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM companies WHERE workspace_id = ? ORDER BY created_at, id`,
		workspaceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list companies %s", workspaceID)
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		var co model.Company
		if err := json.Unmarshal([]byte(data), &co); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal company")
		}
		companies = append(companies, co)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

// Buyer group

// ReplaceBuyerGroup swaps a company's buyer group in one transaction.
func (s *SQLiteStore) ReplaceBuyerGroup(ctx context.Context, companyID string, members []model.BuyerGroupMember) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace buyer group")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM buyer_group_members WHERE company_id = ?`, companyID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear buyer group %s", companyID)
	}

	for _, m := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO buyer_group_members (company_id, contact_id, role, influence, signal)
			 VALUES (?, ?, ?, ?, ?)`,
			companyID, m.ContactID, string(m.Role), string(m.Influence), m.Signal,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert member %s", m.ContactID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace buyer group")
}

func (s *SQLiteStore) ListMembers(ctx context.Context, companyID string) ([]model.BuyerGroupMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id, contact_id, role, influence, signal FROM buyer_group_members
		 WHERE company_id = ? ORDER BY contact_id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list members %s", companyID)
	}
	defer rows.Close()

	var members []model.BuyerGroupMember
	for rows.Next() {
		var m model.BuyerGroupMember
		var signal sql.NullString
		if err := rows.Scan(&m.CompanyID, &m.ContactID, &m.Role, &m.Influence, &signal); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan member")
		}
		m.Signal = signal.String
		members = append(members, m)
	}
	return members, eris.Wrap(rows.Err(), "sqlite: list members iterate")
}

// Ranks

func (s *SQLiteStore) ReplacePersonRanks(ctx context.Context, companyID string, ranks []model.PersonRank) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace person ranks")
	}
	defer tx.Rollback()

	if err := replacePersonRanksTx(ctx, tx, companyID, ranks); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace person ranks")
}

func (s *SQLiteStore) ReplaceWorkspaceRanks(ctx context.Context, workspaceID string, companies []model.CompanyRank, people map[string][]model.PersonRank) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace workspace ranks")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM company_ranks WHERE workspace_id = ?`, workspaceID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear company ranks %s", workspaceID)
	}
	for _, r := range companies {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO company_ranks (company_id, workspace_id, rank, score, reason, computed_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.CompanyID, r.WorkspaceID, r.Rank, r.Score, r.Reason, r.ComputedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert company rank %s", r.CompanyID)
		}
	}

	for companyID, ranks := range people {
		if err := replacePersonRanksTx(ctx, tx, companyID, ranks); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace workspace ranks")
}

func replacePersonRanksTx(ctx context.Context, tx *sql.Tx, companyID string, ranks []model.PersonRank) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM person_ranks WHERE company_id = ?`, companyID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear person ranks %s", companyID)
	}
	for _, r := range ranks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO person_ranks (company_id, contact_id, rank, score, reason, computed_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.CompanyID, r.ContactID, r.Rank, r.Score, r.Reason, r.ComputedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert person rank %s", r.ContactID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListCompanyRanks(ctx context.Context, workspaceID string) ([]model.CompanyRank, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id, workspace_id, rank, score, reason, computed_at FROM company_ranks
		 WHERE workspace_id = ? ORDER BY rank`,
		workspaceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list company ranks %s", workspaceID)
	}
	defer rows.Close()

	var ranks []model.CompanyRank
	for rows.Next() {
		var r model.CompanyRank
		var reason sql.NullString
		if err := rows.Scan(&r.CompanyID, &r.WorkspaceID, &r.Rank, &r.Score, &reason, &r.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company rank")
		}
		r.Reason = reason.String
		ranks = append(ranks, r)
	}
	return ranks, eris.Wrap(rows.Err(), "sqlite: list company ranks iterate")
}

func (s *SQLiteStore) ListPersonRanks(ctx context.Context, companyID string) ([]model.PersonRank, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT company_id, contact_id, rank, score, reason, computed_at FROM person_ranks
		 WHERE company_id = ? ORDER BY rank`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list person ranks %s", companyID)
	}
	defer rows.Close()

	var ranks []model.PersonRank
	for rows.Next() {
		var r model.PersonRank
		var reason sql.NullString
		if err := rows.Scan(&r.CompanyID, &r.ContactID, &r.Rank, &r.Score, &reason, &r.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan person rank")
		}
		r.Reason = reason.String
		ranks = append(ranks, r)
	}
	return ranks, eris.Wrap(rows.Err(), "sqlite: list person ranks iterate")
}

// Enrichment runs

func (s *SQLiteStore) RecordRun(ctx context.Context, run *model.EnrichmentRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_runs (id, query_key, data, low_confidence, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.QueryKey, string(data), boolInt(run.LowConfidence), run.StartedAt,
	)
	return eris.Wrapf(err, "sqlite: record run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.EnrichmentRun, error) {
	query := `SELECT data FROM enrichment_runs WHERE 1=1`
	var args []any

	if filter.QueryKey != "" {
		query += ` AND query_key = ?`
		args = append(args, filter.QueryKey)
	}
	if filter.LowConfidence {
		query += ` AND low_confidence = 1`
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.EnrichmentRun
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var r model.EnrichmentRun
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// Credit balances

func (s *SQLiteStore) GetBalance(ctx context.Context, provider string, kind credit.Kind) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM credit_balances WHERE provider = ? AND kind = ?`,
		provider, string(kind),
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: get balance %s/%s", provider, kind)
	}
	return balance, nil
}

func (s *SQLiteStore) SetBalance(ctx context.Context, provider string, kind credit.Kind, n int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credit_balances (provider, kind, balance) VALUES (?, ?, ?)
		 ON CONFLICT (provider, kind) DO UPDATE SET balance = excluded.balance`,
		provider, string(kind), n,
	)
	return eris.Wrapf(err, "sqlite: set balance %s/%s", provider, kind)
}

// DecrementBalance is atomic and conditional: the WHERE clause rejects the
// decrement when the balance is smaller than n, so it can never go negative.
func (s *SQLiteStore) DecrementBalance(ctx context.Context, provider string, kind credit.Kind, n int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credit_balances SET balance = balance - ?
		 WHERE provider = ? AND kind = ? AND balance >= ?`,
		n, provider, string(kind), n,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: decrement balance %s/%s", provider, kind)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return affected > 0, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// scanContact rehydrates a contact from its JSON blob. The id and engagement
// columns override the blob: the row id is the stable identity across
// refreshes, and engagements are recorded without rewriting the blob.
func scanContact(row scannable) (*model.CanonicalContact, error) {
	var id, data string
	var lastEngaged sql.NullTime

	err := row.Scan(&id, &data, &lastEngaged)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan contact")
	}

	var c model.CanonicalContact
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal contact")
	}
	c.ID = id
	if lastEngaged.Valid {
		t := lastEngaged.Time
		c.LastEngagedAt = &t
	}
	return &c, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
