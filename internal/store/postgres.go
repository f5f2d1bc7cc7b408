package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lender-match/internal/db"
	"github.com/sells-group/lender-match/internal/model"
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS lenders (
	id   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name TEXT NOT NULL UNIQUE,
	slug TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS policies (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lender_id  TEXT NOT NULL REFERENCES lenders(id),
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	active     BOOLEAN NOT NULL DEFAULT true,
	rules      JSONB NOT NULL,
	scoring    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (lender_id, name, version)
);

CREATE TABLE IF NOT EXISTS applications (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_name     TEXT NOT NULL,
	amount_requested  DOUBLE PRECISION NOT NULL,
	equipment_type    TEXT NOT NULL,
	fico_score        INTEGER NOT NULL,
	years_in_business DOUBLE PRECISION NOT NULL,
	annual_revenue    DOUBLE PRECISION NOT NULL,
	paynet_score      INTEGER,
	city              TEXT NOT NULL,
	state             TEXT NOT NULL,
	zip_code          TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'pending',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS match_runs (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	application_id TEXT NOT NULL REFERENCES applications(id),
	results        JSONB NOT NULL,
	policy_hash    TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_policies_lender_id ON policies(lender_id);
CREATE INDEX IF NOT EXISTS idx_policies_active ON policies(active) WHERE active;
CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
CREATE INDEX IF NOT EXISTS idx_match_runs_application ON match_runs(application_id, created_at DESC);
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

// Lenders

func (s *PostgresStore) CreateLender(ctx context.Context, l model.Lender) (*model.Lender, error) {
	l.ID = uuid.New().String()
	if l.Slug == "" {
		l.Slug = model.Slugify(l.Name)
	}
	l.Policies = nil

	_, err := s.pool.Exec(ctx,
		`INSERT INTO lenders (id, name, slug, type) VALUES ($1, $2, $3, $4)`,
		l.ID, l.Name, l.Slug, l.Type,
	)
	if isPgUniqueViolation(err) {
		return nil, eris.Wrapf(ErrConflict, "postgres: lender %s", l.Slug)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert lender %s", l.Name)
	}
	return &l, nil
}

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (s *PostgresStore) GetLender(ctx context.Context, id string) (*model.Lender, error) {
	return s.getLender(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) GetLenderBySlug(ctx context.Context, slug string) (*model.Lender, error) {
	return s.getLender(ctx, `WHERE slug = $1`, slug)
}

func (s *PostgresStore) getLender(ctx context.Context, where, arg string) (*model.Lender, error) {
	var l model.Lender
	err := s.pool.QueryRow(ctx, `SELECT id, name, slug, type FROM lenders `+where, arg).
		Scan(&l.ID, &l.Name, &l.Slug, &l.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: lender %s", arg)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lender %s", arg)
	}

	policies, err := s.ListPolicies(ctx, PolicyFilter{LenderID: l.ID})
	if err != nil {
		return nil, err
	}
	l.Policies = policies
	return &l, nil
}

func (s *PostgresStore) ListLenders(ctx context.Context) ([]model.Lender, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, slug, type FROM lenders ORDER BY name, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lenders")
	}
	defer rows.Close()

	lenders := []model.Lender{}
	for rows.Next() {
		var l model.Lender
		if err := rows.Scan(&l.ID, &l.Name, &l.Slug, &l.Type); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lender")
		}
		lenders = append(lenders, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list lenders iterate")
	}

	policies, err := s.ListPolicies(ctx, PolicyFilter{})
	if err != nil {
		return nil, err
	}
	attachPolicies(lenders, policies)
	return lenders, nil
}

// Policies

func (s *PostgresStore) CreatePolicy(ctx context.Context, p model.PolicyRecord) (*model.PolicyRecord, error) {
	rulesJSON, scoringJSON, err := marshalPolicy(p)
	if err != nil {
		return nil, err
	}

	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT name FROM lenders WHERE id = $1`, p.LenderID).Scan(&p.LenderName)
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "postgres: lender %s", p.LenderID)
		}
		if err != nil {
			return eris.Wrapf(err, "postgres: get lender %s", p.LenderID)
		}

		if p.Version <= 0 {
			err = tx.QueryRow(ctx,
				`SELECT COALESCE(MAX(version), 0) + 1 FROM policies WHERE lender_id = $1 AND name = $2`,
				p.LenderID, p.Name,
			).Scan(&p.Version)
			if err != nil {
				return eris.Wrap(err, "postgres: next policy version")
			}
		}

		if p.Active {
			if _, err := tx.Exec(ctx, postgresRetireVersions, p.LenderID, p.Name); err != nil {
				return eris.Wrapf(err, "postgres: retire active versions of %s", p.Name)
			}
		}

		p.ID = uuid.New().String()
		p.CreatedAt = time.Now().UTC()

		_, err = tx.Exec(ctx,
			`INSERT INTO policies (id, lender_id, name, version, active, rules, scoring, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, p.LenderID, p.Name, p.Version, p.Active, rulesJSON, scoringJSON, p.CreatedAt,
		)
		return eris.Wrapf(err, "postgres: insert policy %s", p.Name)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const postgresPolicySelect = `
SELECT p.id, p.lender_id, l.name, p.name, p.version, p.active, p.rules, p.scoring, p.created_at
FROM policies p JOIN lenders l ON l.id = p.lender_id`

func (s *PostgresStore) GetPolicy(ctx context.Context, id string) (*model.PolicyRecord, error) {
	p, err := scanPostgresPolicy(s.pool.QueryRow(ctx, postgresPolicySelect+` WHERE p.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: policy %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get policy %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListPolicies(ctx context.Context, filter PolicyFilter) ([]model.PolicyRecord, error) {
	query := postgresPolicySelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.LenderID != "" {
		query += fmt.Sprintf(` AND p.lender_id = $%d`, argIdx)
		args = append(args, filter.LenderID)
		argIdx++
	}
	if filter.ActiveOnly {
		query += ` AND p.active`
	}
	query += ` ORDER BY l.name, p.name, p.version, p.id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list policies")
	}
	defer rows.Close()

	policies := []model.PolicyRecord{}
	for rows.Next() {
		p, err := scanPostgresPolicy(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan policy")
		}
		policies = append(policies, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list policies iterate")
	}
	sortPolicies(policies)
	return policies, nil
}

func (s *PostgresStore) ActivePolicies(ctx context.Context) ([]model.PolicyRecord, error) {
	return s.ListPolicies(ctx, PolicyFilter{ActiveOnly: true})
}

// postgresRetireVersions deactivates the active versions of one lender policy.
const postgresRetireVersions = `UPDATE policies SET active = false WHERE lender_id = $1 AND name = $2 AND active`

// SetPolicyActive toggles one policy version. Activating a version retires
// the other active versions of the same lender and policy name.
func (s *PostgresStore) SetPolicyActive(ctx context.Context, id string, active bool) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if active {
			var lenderID, name string
			err := tx.QueryRow(ctx, `SELECT lender_id, name FROM policies WHERE id = $1`, id).Scan(&lenderID, &name)
			if errors.Is(err, pgx.ErrNoRows) {
				return eris.Wrapf(ErrNotFound, "postgres: policy %s", id)
			}
			if err != nil {
				return eris.Wrapf(err, "postgres: get policy %s", id)
			}
			if _, err := tx.Exec(ctx, postgresRetireVersions+` AND id <> $3`, lenderID, name, id); err != nil {
				return eris.Wrapf(err, "postgres: retire active versions of %s", name)
			}
		}

		tag, err := tx.Exec(ctx, `UPDATE policies SET active = $1 WHERE id = $2`, active, id)
		if err != nil {
			return eris.Wrapf(err, "postgres: set policy active %s", id)
		}
		if tag.RowsAffected() == 0 {
			return eris.Wrapf(ErrNotFound, "postgres: policy %s", id)
		}
		return nil
	})
}

// Applications

func (s *PostgresStore) CreateApplication(ctx context.Context, app model.Application) (*model.Application, error) {
	app.ID = uuid.New().String()
	app.CreatedAt = time.Now().UTC()
	if app.Status == "" {
		app.Status = model.ApplicationPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO applications (id, business_name, amount_requested, equipment_type, fico_score,
			years_in_business, annual_revenue, paynet_score, city, state, zip_code, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		app.ID, app.BusinessName, app.AmountRequested, app.EquipmentType, app.FICOScore,
		app.YearsInBusiness, app.AnnualRevenue, app.PaynetScore, app.City, app.State, app.ZipCode,
		string(app.Status), app.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert application")
	}
	return &app, nil
}

// A NULL paynet score is read back as -1 and mapped to nil.
const postgresApplicationSelect = `
SELECT id, business_name, amount_requested, equipment_type, fico_score, years_in_business,
       annual_revenue, COALESCE(paynet_score, -1), city, state, zip_code, status, created_at
FROM applications`

func (s *PostgresStore) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	app, err := scanPostgresApplication(s.pool.QueryRow(ctx, postgresApplicationSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: application %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get application %s", id)
	}
	return app, nil
}

func (s *PostgresStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]model.Application, error) {
	query := postgresApplicationSelect + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list applications")
	}
	defer rows.Close()

	apps := []model.Application{}
	for rows.Next() {
		app, err := scanPostgresApplication(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan application")
		}
		apps = append(apps, *app)
	}
	return apps, eris.Wrap(rows.Err(), "postgres: list applications iterate")
}

func (s *PostgresStore) UpdateApplicationStatus(ctx context.Context, id string, status model.ApplicationStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE applications SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update application status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: application %s", id)
	}
	return nil
}

// Match runs

func (s *PostgresStore) SaveMatchRun(ctx context.Context, run model.MatchRun) (*model.MatchRun, error) {
	run.ID = uuid.New().String()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal match results")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO match_runs (id, application_id, results, policy_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.ApplicationID, resultsJSON, run.PolicyHash, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert match run for %s", run.ApplicationID)
	}
	return &run, nil
}

func (s *PostgresStore) GetLatestMatchRun(ctx context.Context, applicationID string) (*model.MatchRun, error) {
	var run model.MatchRun
	var resultsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, application_id, results, policy_hash, created_at FROM match_runs
		 WHERE application_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		applicationID,
	).Scan(&run.ID, &run.ApplicationID, &resultsJSON, &run.PolicyHash, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: match run for %s", applicationID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get match run for %s", applicationID)
	}

	if err := json.Unmarshal(resultsJSON, &run.Results); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal match results")
	}
	return &run, nil
}

func scanPostgresPolicy(row pgx.Row) (*model.PolicyRecord, error) {
	var p model.PolicyRecord
	var rulesJSON, scoringJSON []byte

	err := row.Scan(&p.ID, &p.LenderID, &p.LenderName, &p.Name, &p.Version, &p.Active,
		&rulesJSON, &scoringJSON, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalPolicy(&p, rulesJSON, scoringJSON); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPostgresApplication(row pgx.Row) (*model.Application, error) {
	var app model.Application
	var paynet int
	var status string

	err := row.Scan(&app.ID, &app.BusinessName, &app.AmountRequested, &app.EquipmentType, &app.FICOScore,
		&app.YearsInBusiness, &app.AnnualRevenue, &paynet, &app.City, &app.State, &app.ZipCode,
		&status, &app.CreatedAt)
	if err != nil {
		return nil, err
	}
	app.Status = model.ApplicationStatus(status)
	if paynet >= 0 {
		app.PaynetScore = &paynet
	}
	return &app, nil
}
