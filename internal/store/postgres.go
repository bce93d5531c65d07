package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/adrata/intel-engine/internal/credit"
	"github.com/adrata/intel-engine/internal/db"
	"github.com/adrata/intel-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_contact":       `SELECT id, data, last_engaged_at FROM contacts WHERE query_key = $1`,
	"get_balance":       `SELECT balance FROM credit_balances WHERE provider = $1 AND kind = $2`,
	"decrement_balance": `UPDATE credit_balances SET balance = balance - $1 WHERE provider = $2 AND kind = $3 AND balance >= $1`,
	"record_engagement": `UPDATE contacts SET last_engaged_at = $1 WHERE id = $2`,
	"list_members":      `SELECT company_id, contact_id, role, influence, signal FROM buyer_group_members WHERE company_id = $1 ORDER BY contact_id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, for tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk roster import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id              TEXT PRIMARY KEY,
	company_id      TEXT,
	query_key       TEXT NOT NULL UNIQUE,
	data            JSONB NOT NULL,
	low_confidence  BOOLEAN NOT NULL DEFAULT false,
	resolved_at     TIMESTAMPTZ NOT NULL,
	last_engaged_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS companies (
	id           TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	data         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
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
	score        DOUBLE PRECISION NOT NULL,
	reason       TEXT,
	computed_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS person_ranks (
	company_id  TEXT NOT NULL,
	contact_id  TEXT NOT NULL,
	rank        INTEGER NOT NULL,
	score       DOUBLE PRECISION NOT NULL,
	reason      TEXT,
	computed_at TIMESTAMPTZ NOT NULL,
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
	data           JSONB NOT NULL,
	low_confidence BOOLEAN NOT NULL DEFAULT false,
	started_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
CREATE INDEX IF NOT EXISTS idx_companies_workspace_id ON companies(workspace_id);
CREATE INDEX IF NOT EXISTS idx_company_ranks_workspace ON company_ranks(workspace_id, rank);
CREATE INDEX IF NOT EXISTS idx_person_ranks_company ON person_ranks(company_id, rank);
CREATE INDEX IF NOT EXISTS idx_runs_query_key ON enrichment_runs(query_key);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON enrichment_runs(started_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Contacts

func (s *PostgresStore) UpsertContact(ctx context.Context, queryKey string, c *model.CanonicalContact) error {
	data, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contact")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO contacts (id, company_id, query_key, data, low_confidence, resolved_at, last_engaged_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (query_key) DO UPDATE SET
		   company_id = EXCLUDED.company_id, data = EXCLUDED.data,
		   low_confidence = EXCLUDED.low_confidence, resolved_at = EXCLUDED.resolved_at`,
		c.ID, c.CompanyID, queryKey, data, c.LowConfidence, c.ResolvedAt, c.LastEngagedAt,
	)
	return eris.Wrapf(err, "postgres: upsert contact %s", queryKey)
}

func (s *PostgresStore) GetContactByQueryKey(ctx context.Context, queryKey string) (*model.CanonicalContact, error) {
	var id string
	var data []byte
	var lastEngaged *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, data, last_engaged_at FROM contacts WHERE query_key = $1`,
		queryKey,
	).Scan(&id, &data, &lastEngaged)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get contact %s", queryKey)
	}

	return hydrateContact(id, data, lastEngaged)
}

func (s *PostgresStore) ListRoster(ctx context.Context, companyID string) ([]*model.CanonicalContact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, data, last_engaged_at FROM contacts WHERE company_id = $1 ORDER BY id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list roster %s", companyID)
	}
	defer rows.Close()

	var roster []*model.CanonicalContact
	for rows.Next() {
		var id string
		var data []byte
		var lastEngaged *time.Time
		if err := rows.Scan(&id, &data, &lastEngaged); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		c, err := hydrateContact(id, data, lastEngaged)
		if err != nil {
			return nil, err
		}
		roster = append(roster, c)
	}
	return roster, eris.Wrap(rows.Err(), "postgres: list roster iterate")
}

func (s *PostgresStore) RecordEngagement(ctx context.Context, contactID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contacts SET last_engaged_at = $1 WHERE id = $2`,
		at.UTC(), contactID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record engagement %s", contactID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("contact not found: %s", contactID)
	}
	return nil
}

// Companies

func (s *PostgresStore) UpsertCompany(ctx context.Context, co *model.Company) error {
	data, err := json.Marshal(co)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal company")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO companies (id, workspace_id, data, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET workspace_id = EXCLUDED.workspace_id, data = EXCLUDED.data`,
		co.ID, co.WorkspaceID, data, co.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert company %s", co.ID)
}

// BulkUpsertCompanies imports companies in bulk via COPY and
// INSERT ... ON CONFLICT, for roster import jobs.
func (s *PostgresStore) BulkUpsertCompanies(ctx context.Context, companies []model.Company) (int64, error) {
	rows := make([][]any, 0, len(companies))
	for i := range companies {
		co := &companies[i]
		data, err := json.Marshal(co)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: marshal company")
		}
		rows = append(rows, []any{co.ID, co.WorkspaceID, data, co.CreatedAt})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "companies",
		Columns:      []string{"id", "workspace_id", "data", "created_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"workspace_id", "data"},
	}, rows)
}

func (s *PostgresStore) GetCompany(ctx context.Context, companyID string) (*model.Company, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM companies WHERE id = $1`, companyID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get company %s", companyID)
	}

	var co model.Company
	if err := json.Unmarshal(data, &co); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal company")
	}
	return &co, nil
}

func (s *PostgresStore) ListCompanies(ctx context.Context, workspaceID string) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM companies WHERE workspace_id = $1 ORDER BY created_at, id`,
		workspaceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list companies %s", workspaceID)
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		var co model.Company
		if err := json.Unmarshal(data, &co); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal company")
		}
		companies = append(companies, co)
	}
	return companies, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

// Buyer group

func (s *PostgresStore) ReplaceBuyerGroup(ctx context.Context, companyID string, members []model.BuyerGroupMember) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace buyer group")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM buyer_group_members WHERE company_id = $1`, companyID,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear buyer group %s", companyID)
	}

	for _, m := range members {
		if _, err := tx.Exec(ctx,
			`INSERT INTO buyer_group_members (company_id, contact_id, role, influence, signal)
			 VALUES ($1, $2, $3, $4, $5)`,
			companyID, m.ContactID, string(m.Role), string(m.Influence), m.Signal,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert member %s", m.ContactID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace buyer group")
}

func (s *PostgresStore) ListMembers(ctx context.Context, companyID string) ([]model.BuyerGroupMember, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, contact_id, role, influence, signal FROM buyer_group_members
		 WHERE company_id = $1 ORDER BY contact_id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list members %s", companyID)
	}
	defer rows.Close()

	var members []model.BuyerGroupMember
	for rows.Next() {
		var m model.BuyerGroupMember
		var signal *string
		if err := rows.Scan(&m.CompanyID, &m.ContactID, &m.Role, &m.Influence, &signal); err != nil {
			return nil, eris.Wrap(err, "postgres: scan member")
		}
		if signal != nil {
			m.Signal = *signal
		}
		members = append(members, m)
	}
	return members, eris.Wrap(rows.Err(), "postgres: list members iterate")
}

// Ranks

func (s *PostgresStore) ReplacePersonRanks(ctx context.Context, companyID string, ranks []model.PersonRank) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace person ranks")
	}
	defer tx.Rollback(ctx)

	if err := replacePersonRanksPgx(ctx, tx, companyID, ranks); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace person ranks")
}

func (s *PostgresStore) ReplaceWorkspaceRanks(ctx context.Context, workspaceID string, companies []model.CompanyRank, people map[string][]model.PersonRank) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace workspace ranks")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM company_ranks WHERE workspace_id = $1`, workspaceID,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear company ranks %s", workspaceID)
	}
	for _, r := range companies {
		if _, err := tx.Exec(ctx,
			`INSERT INTO company_ranks (company_id, workspace_id, rank, score, reason, computed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.CompanyID, r.WorkspaceID, r.Rank, r.Score, r.Reason, r.ComputedAt,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert company rank %s", r.CompanyID)
		}
	}

	for companyID, ranks := range people {
		if err := replacePersonRanksPgx(ctx, tx, companyID, ranks); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace workspace ranks")
}

func replacePersonRanksPgx(ctx context.Context, tx pgx.Tx, companyID string, ranks []model.PersonRank) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM person_ranks WHERE company_id = $1`, companyID,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear person ranks %s", companyID)
	}
	for _, r := range ranks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO person_ranks (company_id, contact_id, rank, score, reason, computed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.CompanyID, r.ContactID, r.Rank, r.Score, r.Reason, r.ComputedAt,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert person rank %s", r.ContactID)
		}
	}
	return nil
}

func (s *PostgresStore) ListCompanyRanks(ctx context.Context, workspaceID string) ([]model.CompanyRank, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, workspace_id, rank, score, reason, computed_at FROM company_ranks
		 WHERE workspace_id = $1 ORDER BY rank`,
		workspaceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list company ranks %s", workspaceID)
	}
	defer rows.Close()

	var ranks []model.CompanyRank
	for rows.Next() {
		var r model.CompanyRank
		var reason *string
		if err := rows.Scan(&r.CompanyID, &r.WorkspaceID, &r.Rank, &r.Score, &reason, &r.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company rank")
		}
		if reason != nil {
			r.Reason = *reason
		}
		ranks = append(ranks, r)
	}
	return ranks, eris.Wrap(rows.Err(), "postgres: list company ranks iterate")
}

func (s *PostgresStore) ListPersonRanks(ctx context.Context, companyID string) ([]model.PersonRank, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT company_id, contact_id, rank, score, reason, computed_at FROM person_ranks
		 WHERE company_id = $1 ORDER BY rank`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list person ranks %s", companyID)
	}
	defer rows.Close()

	var ranks []model.PersonRank
	for rows.Next() {
		var r model.PersonRank
		var reason *string
		if err := rows.Scan(&r.CompanyID, &r.ContactID, &r.Rank, &r.Score, &reason, &r.ComputedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan person rank")
		}
		if reason != nil {
			r.Reason = *reason
		}
		ranks = append(ranks, r)
	}
	return ranks, eris.Wrap(rows.Err(), "postgres: list person ranks iterate")
}

// Enrichment runs

func (s *PostgresStore) RecordRun(ctx context.Context, run *model.EnrichmentRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_runs (id, query_key, data, low_confidence, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.QueryKey, data, run.LowConfidence, run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: record run %s", run.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.EnrichmentRun, error) {
	query := `SELECT data FROM enrichment_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.QueryKey != "" {
		query += fmt.Sprintf(` AND query_key = $%d`, argIdx)
		args = append(args, filter.QueryKey)
		argIdx++
	}
	if filter.LowConfidence {
		query += ` AND low_confidence`
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.EnrichmentRun
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var r model.EnrichmentRun
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// Credit balances

func (s *PostgresStore) GetBalance(ctx context.Context, provider string, kind credit.Kind) (int, error) {
	var balance int
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM credit_balances WHERE provider = $1 AND kind = $2`,
		provider, string(kind),
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, eris.Wrapf(err, "postgres: get balance %s/%s", provider, kind)
	}
	return balance, nil
}

func (s *PostgresStore) SetBalance(ctx context.Context, provider string, kind credit.Kind, n int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credit_balances (provider, kind, balance) VALUES ($1, $2, $3)
		 ON CONFLICT (provider, kind) DO UPDATE SET balance = EXCLUDED.balance`,
		provider, string(kind), n,
	)
	return eris.Wrapf(err, "postgres: set balance %s/%s", provider, kind)
}

// DecrementBalance is atomic and conditional: the WHERE clause rejects the
// decrement when the balance is smaller than n, so it can never go negative.
func (s *PostgresStore) DecrementBalance(ctx context.Context, provider string, kind credit.Kind, n int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE credit_balances SET balance = balance - $1
		 WHERE provider = $2 AND kind = $3 AND balance >= $1`,
		n, provider, string(kind),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: decrement balance %s/%s", provider, kind)
	}
	return tag.RowsAffected() > 0, nil
}

func hydrateContact(id string, data []byte, lastEngaged *time.Time) (*model.CanonicalContact, error) {
	var c model.CanonicalContact
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal contact")
	}
	c.ID = id
	c.LastEngagedAt = lastEngaged
	return &c, nil
}
