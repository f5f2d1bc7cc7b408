package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/lender-match/internal/model"
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
CREATE TABLE IF NOT EXISTS lenders (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	slug TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS policies (
	id         TEXT PRIMARY KEY,
	lender_id  TEXT NOT NULL REFERENCES lenders(id),
	name       TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	active     INTEGER NOT NULL DEFAULT 1,
	rules      TEXT NOT NULL,
	scoring    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (lender_id, name, version)
);

CREATE TABLE IF NOT EXISTS applications (
	id                TEXT PRIMARY KEY,
	business_name     TEXT NOT NULL,
	amount_requested  REAL NOT NULL,
	equipment_type    TEXT NOT NULL,
	fico_score        INTEGER NOT NULL,
	years_in_business REAL NOT NULL,
	annual_revenue    REAL NOT NULL,
	paynet_score      INTEGER,
	city              TEXT NOT NULL,
	state             TEXT NOT NULL,
	zip_code          TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'pending',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS match_runs (
	id             TEXT PRIMARY KEY,
	application_id TEXT NOT NULL REFERENCES applications(id),
	results        TEXT NOT NULL,
	policy_hash    TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_policies_lender_id ON policies(lender_id);
CREATE INDEX IF NOT EXISTS idx_policies_active ON policies(active);
CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
CREATE INDEX IF NOT EXISTS idx_match_runs_application_id ON match_runs(application_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Lenders

func (s *SQLiteStore) CreateLender(ctx context.Context, l model.Lender) (*model.Lender, error) {
	l.ID = uuid.New().String()
	if l.Slug == "" {
		l.Slug = model.Slugify(l.Name)
	}
	l.Policies = nil

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lenders (id, name, slug, type) VALUES (?, ?, ?, ?)`,
		l.ID, l.Name, l.Slug, l.Type,
	)
	if isSQLiteUniqueViolation(err) {
		return nil, eris.Wrapf(ErrConflict, "sqlite: lender %s", l.Slug)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert lender %s", l.Name)
	}
	return &l, nil
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (s *SQLiteStore) GetLender(ctx context.Context, id string) (*model.Lender, error) {
	return s.getLender(ctx, `WHERE id = ?`, id)
}

func (s *SQLiteStore) GetLenderBySlug(ctx context.Context, slug string) (*model.Lender, error) {
	return s.getLender(ctx, `WHERE slug = ?`, slug)
}

func (s *SQLiteStore) getLender(ctx context.Context, where string, arg string) (*model.Lender, error) {
	var l model.Lender
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug, type FROM lenders `+where, arg).
		Scan(&l.ID, &l.Name, &l.Slug, &l.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: lender %s", arg)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lender %s", arg)
	}

	policies, err := s.ListPolicies(ctx, PolicyFilter{LenderID: l.ID})
	if err != nil {
		return nil, err
	}
	l.Policies = policies
	return &l, nil
}

func (s *SQLiteStore) ListLenders(ctx context.Context) ([]model.Lender, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug, type FROM lenders ORDER BY name, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list lenders")
	}
	defer rows.Close()

	lenders := []model.Lender{}
	for rows.Next() {
		var l model.Lender
		if err := rows.Scan(&l.ID, &l.Name, &l.Slug, &l.Type); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lender")
		}
		lenders = append(lenders, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list lenders iterate")
	}

	policies, err := s.ListPolicies(ctx, PolicyFilter{})
	if err != nil {
		return nil, err
	}
	attachPolicies(lenders, policies)
	return lenders, nil
}

// Policies

func (s *SQLiteStore) CreatePolicy(ctx context.Context, p model.PolicyRecord) (*model.PolicyRecord, error) {
	rulesJSON, scoringJSON, err := marshalPolicy(p)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	err = tx.QueryRowContext(ctx, `SELECT name FROM lenders WHERE id = ?`, p.LenderID).Scan(&p.LenderName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: lender %s", p.LenderID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lender %s", p.LenderID)
	}

	if p.Version <= 0 {
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM policies WHERE lender_id = ? AND name = ?`,
			p.LenderID, p.Name,
		).Scan(&p.Version)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: next policy version")
		}
	}

	if p.Active {
		if _, err := tx.ExecContext(ctx, sqliteRetireVersions, p.LenderID, p.Name); err != nil {
			return nil, eris.Wrapf(err, "sqlite: retire active versions of %s", p.Name)
		}
	}

	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO policies (id, lender_id, name, version, active, rules, scoring, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LenderID, p.Name, p.Version, p.Active, string(rulesJSON), string(scoringJSON), p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert policy %s", p.Name)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit policy")
	}
	return &p, nil
}

const sqlitePolicySelect = `
SELECT p.id, p.lender_id, l.name, p.name, p.version, p.active, p.rules, p.scoring, p.created_at
FROM policies p JOIN lenders l ON l.id = p.lender_id`

func (s *SQLiteStore) GetPolicy(ctx context.Context, id string) (*model.PolicyRecord, error) {
	p, err := scanSQLitePolicy(s.db.QueryRowContext(ctx, sqlitePolicySelect+` WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: policy %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get policy %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListPolicies(ctx context.Context, filter PolicyFilter) ([]model.PolicyRecord, error) {
	query := sqlitePolicySelect + ` WHERE 1=1`
	var args []any

	if filter.LenderID != "" {
		query += ` AND p.lender_id = ?`
		args = append(args, filter.LenderID)
	}
	if filter.ActiveOnly {
		query += ` AND p.active = 1`
	}
	query += ` ORDER BY l.name, p.name, p.version, p.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list policies")
	}
	defer rows.Close()

	policies := []model.PolicyRecord{}
	for rows.Next() {
		p, err := scanSQLitePolicy(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan policy")
		}
		policies = append(policies, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list policies iterate")
	}
	sortPolicies(policies)
	return policies, nil
}

func (s *SQLiteStore) ActivePolicies(ctx context.Context) ([]model.PolicyRecord, error) {
	return s.ListPolicies(ctx, PolicyFilter{ActiveOnly: true})
}

// sqliteRetireVersions deactivates the active versions of one lender policy.
const sqliteRetireVersions = `UPDATE policies SET active = 0 WHERE lender_id = ? AND name = ? AND active = 1`

// SetPolicyActive toggles one policy version. Activating a version retires
// the other active versions of the same lender and policy name.
func (s *SQLiteStore) SetPolicyActive(ctx context.Context, id string, active bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if active {
		var lenderID, name string
		err = tx.QueryRowContext(ctx, `SELECT lender_id, name FROM policies WHERE id = ?`, id).Scan(&lenderID, &name)
		if errors.Is(err, sql.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "sqlite: policy %s", id)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: get policy %s", id)
		}
		if _, err := tx.ExecContext(ctx, sqliteRetireVersions+` AND id <> ?`, lenderID, name, id); err != nil {
			return eris.Wrapf(err, "sqlite: retire active versions of %s", name)
		}
	}

	res, err := tx.ExecContext(ctx, `UPDATE policies SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set policy active %s", id)
	}
	if err := checkRowsAffected(res, "policy", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit policy activation")
}

// Applications

func (s *SQLiteStore) CreateApplication(ctx context.Context, app model.Application) (*model.Application, error) {
	app.ID = uuid.New().String()
	app.CreatedAt = time.Now().UTC()
	if app.Status == "" {
		app.Status = model.ApplicationPending
	}

	var paynet sql.NullInt64
	if app.PaynetScore != nil {
		paynet = sql.NullInt64{Int64: int64(*app.PaynetScore), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (id, business_name, amount_requested, equipment_type, fico_score,
			years_in_business, annual_revenue, paynet_score, city, state, zip_code, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.BusinessName, app.AmountRequested, app.EquipmentType, app.FICOScore,
		app.YearsInBusiness, app.AnnualRevenue, paynet, app.City, app.State, app.ZipCode,
		string(app.Status), app.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert application")
	}
	return &app, nil
}

const sqliteApplicationSelect = `
SELECT id, business_name, amount_requested, equipment_type, fico_score, years_in_business,
       annual_revenue, paynet_score, city, state, zip_code, status, created_at
FROM applications`

func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	app, err := scanSQLiteApplication(s.db.QueryRowContext(ctx, sqliteApplicationSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: application %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get application %s", id)
	}
	return app, nil
}

func (s *SQLiteStore) ListApplications(ctx context.Context, filter ApplicationFilter) ([]model.Application, error) {
	query := sqliteApplicationSelect + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list applications")
	}
	defer rows.Close()

	apps := []model.Application{}
	for rows.Next() {
		app, err := scanSQLiteApplication(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan application")
		}
		apps = append(apps, *app)
	}
	return apps, eris.Wrap(rows.Err(), "sqlite: list applications iterate")
}

func (s *SQLiteStore) UpdateApplicationStatus(ctx context.Context, id string, status model.ApplicationStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE applications SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update application status %s", id)
	}
	return checkRowsAffected(res, "application", id)
}

// Match runs

func (s *SQLiteStore) SaveMatchRun(ctx context.Context, run model.MatchRun) (*model.MatchRun, error) {
	run.ID = uuid.New().String()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal match results")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO match_runs (id, application_id, results, policy_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.ApplicationID, string(resultsJSON), run.PolicyHash, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert match run for %s", run.ApplicationID)
	}
	return &run, nil
}

func (s *SQLiteStore) GetLatestMatchRun(ctx context.Context, applicationID string) (*model.MatchRun, error) {
	var run model.MatchRun
	var resultsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, application_id, results, policy_hash, created_at FROM match_runs
		 WHERE application_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		applicationID,
	).Scan(&run.ID, &run.ApplicationID, &resultsJSON, &run.PolicyHash, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: match run for %s", applicationID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get match run for %s", applicationID)
	}

	if err := json.Unmarshal([]byte(resultsJSON), &run.Results); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal match results")
	}
	return &run, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLitePolicy(row scannable) (*model.PolicyRecord, error) {
	var p model.PolicyRecord
	var rulesJSON, scoringJSON string

	err := row.Scan(&p.ID, &p.LenderID, &p.LenderName, &p.Name, &p.Version, &p.Active,
		&rulesJSON, &scoringJSON, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalPolicy(&p, []byte(rulesJSON), []byte(scoringJSON)); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanSQLiteApplication(row scannable) (*model.Application, error) {
	var app model.Application
	var paynet sql.NullInt64
	var status string

	err := row.Scan(&app.ID, &app.BusinessName, &app.AmountRequested, &app.EquipmentType, &app.FICOScore,
		&app.YearsInBusiness, &app.AnnualRevenue, &paynet, &app.City, &app.State, &app.ZipCode,
		&status, &app.CreatedAt)
	if err != nil {
		return nil, err
	}
	app.Status = model.ApplicationStatus(status)
	if paynet.Valid {
		v := int(paynet.Int64)
		app.PaynetScore = &v
	}
	return &app, nil
}

func marshalPolicy(p model.PolicyRecord) (rules, scoring []byte, err error) {
	defs := p.Rules
	if defs == nil {
		defs = []model.RuleDefinition{}
	}
	rules, err = json.Marshal(defs)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal rules")
	}
	scoring, err = json.Marshal(p.Scoring)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal scoring")
	}
	return rules, scoring, nil
}

func unmarshalPolicy(p *model.PolicyRecord, rules, scoring []byte) error {
	if err := json.Unmarshal(rules, &p.Rules); err != nil {
		return eris.Wrapf(err, "store: unmarshal rules for policy %s", p.ID)
	}
	if err := json.Unmarshal(scoring, &p.Scoring); err != nil {
		return eris.Wrapf(err, "store: unmarshal scoring for policy %s", p.ID)
	}
	return nil
}
