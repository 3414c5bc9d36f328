package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx as a database/sql driver
	_ "modernc.org/sqlite"
)

// Per-call guard so a wedged database connection cannot hang the batch.
const callTimeout = 15 * time.Second

type flavor int

const (
	flavorPostgres flavor = iota
	flavorSQLite
)

// SQLStore implements Store over database/sql. The production backend is
// Postgres; the SQLite backend serves local runs and tests with identical
// upsert semantics (both dialects support ON CONFLICT and RETURNING).
type SQLStore struct {
	db      *sql.DB
	dialect flavor
}

var _ Store = (*SQLStore)(nil)

// OpenPostgres connects to the facility database. The schema is owned and
// migrated externally; this store only reads reference tables and writes
// reconciliation rows.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &SQLStore{db: db, dialect: flavorPostgres}, nil
}

// OpenSQLite opens (or creates) a local database file, applying the schema
// and seeding the static reference rows so a fresh file is usable at once.
// Pass ":memory:" for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection only: writes serialize anyway, and it keeps a shared
	// :memory: database alive across the pool.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLStore{db: db, dialect: flavorSQLite}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_access_control (
	id INTEGER PRIMARY KEY,
	level TEXT UNIQUE NOT NULL,
	description TEXT
);
CREATE TABLE IF NOT EXISTS experiment_roles (
	id INTEGER PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	description TEXT
);
CREATE TABLE IF NOT EXISTS scan_types (
	id INTEGER PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	description TEXT
);
CREATE TABLE IF NOT EXISTS beamlines (
	id INTEGER PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	description TEXT
);
CREATE TABLE IF NOT EXISTS syncotron_runs (
	id INTEGER PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	start_timestamp TEXT,
	end_timestamp TEXT
);
CREATE TABLE IF NOT EXISTS users (
	badge INTEGER PRIMARY KEY,
	username TEXT,
	first_name TEXT,
	last_name TEXT,
	institution TEXT,
	email TEXT,
	user_access_control_id INTEGER REFERENCES user_access_control(id)
);
CREATE TABLE IF NOT EXISTS proposals (
	id INTEGER PRIMARY KEY,
	title TEXT,
	proprietary_flag TEXT,
	mail_in_flag TEXT,
	status TEXT
);
CREATE TABLE IF NOT EXISTS datasets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT UNIQUE NOT NULL,
	acquisition_timestamp TEXT,
	beamline_id INTEGER REFERENCES beamlines(id),
	syncotron_run_id INTEGER REFERENCES syncotron_runs(id),
	scan_type_id INTEGER REFERENCES scan_types(id)
);
CREATE TABLE IF NOT EXISTS experimenters (
	dataset_id INTEGER NOT NULL,
	user_badge INTEGER NOT NULL,
	proposal_id INTEGER NOT NULL,
	experiment_role_id INTEGER,
	PRIMARY KEY (dataset_id, user_badge, proposal_id)
);
INSERT OR IGNORE INTO user_access_control (level, description) VALUES
	('Visitor', 'visiting experimenter'),
	('Staff', 'facility staff');
INSERT OR IGNORE INTO experiment_roles (name, description) VALUES
	('PI', 'principal investigator'),
	('CI', 'co-investigator');
INSERT OR IGNORE INTO scan_types (name, description) VALUES
	('step', 'step scan'),
	('fly', 'fly scan');
`

// rebind rewrites $N placeholders to ? for SQLite. Arguments are always
// passed in placeholder order, so a positional rewrite is enough.
func (s *SQLStore) rebind(query string) string {
	if s.dialect == flavorPostgres {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *SQLStore) refs(ctx context.Context, query string) ([]Ref, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Ref
	for rows.Next() {
		var r Ref
		var desc sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &desc); err != nil {
			return nil, err
		}
		r.Description = desc.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) AccessControls(ctx context.Context) ([]Ref, error) {
	refs, err := s.refs(ctx, `SELECT id, level, description FROM user_access_control`)
	if err != nil {
		return nil, fmt.Errorf("load access controls: %w", err)
	}
	return refs, nil
}

func (s *SQLStore) Roles(ctx context.Context) ([]Ref, error) {
	refs, err := s.refs(ctx, `SELECT id, name, description FROM experiment_roles`)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return refs, nil
}

func (s *SQLStore) ScanTypes(ctx context.Context) ([]Ref, error) {
	refs, err := s.refs(ctx, `SELECT id, name, description FROM scan_types`)
	if err != nil {
		return nil, fmt.Errorf("load scan types: %w", err)
	}
	return refs, nil
}

func (s *SQLStore) Beamlines(ctx context.Context) ([]Ref, error) {
	refs, err := s.refs(ctx, `SELECT id, name, description FROM beamlines`)
	if err != nil {
		return nil, fmt.Errorf("load beamlines: %w", err)
	}
	return refs, nil
}

func (s *SQLStore) Runs(ctx context.Context) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, start_timestamp, end_timestamp FROM syncotron_runs`)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var r Run
		var start, end any
		if err := rows.Scan(&r.ID, &r.Name, &start, &end); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Start = asTime(start)
		r.End = asTime(end)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}
	return out, nil
}

func (s *SQLStore) UpsertUser(ctx context.Context, u User) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (badge, username, first_name, last_name, institution, email, user_access_control_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (badge) DO NOTHING`),
		u.Badge, u.Username, u.FirstName, u.LastName, u.Institution, u.Email, u.AccessControlID)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.Badge, err)
	}
	return nil
}

func (s *SQLStore) UpsertProposal(ctx context.Context, p Proposal) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO proposals (id, title, proprietary_flag, mail_in_flag, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`),
		p.ID, p.Title, p.ProprietaryFlag, p.MailInFlag, p.Status)
	if err != nil {
		return fmt.Errorf("upsert proposal %d: %w", p.ID, err)
	}
	return nil
}

// InsertDataset upserts by path and returns the row id either way. The
// DO UPDATE arm is a no-op self-assignment that makes RETURNING yield the
// existing id on conflict, so re-runs resolve rather than duplicate.
func (s *SQLStore) InsertDataset(ctx context.Context, d Dataset) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO datasets (path, acquisition_timestamp, beamline_id, syncotron_run_id, scan_type_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (path) DO UPDATE SET path = EXCLUDED.path
		 RETURNING id`),
		d.Path, d.AcquiredAt.UTC().Format(time.RFC3339Nano), d.BeamlineID, d.RunID, d.ScanTypeID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert dataset %s: %w", d.Path, err)
	}
	return id, nil
}

func (s *SQLStore) LinkExperimenter(ctx context.Context, l Link) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO experimenters (dataset_id, user_badge, proposal_id, experiment_role_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (dataset_id, user_badge, proposal_id) DO NOTHING`),
		l.DatasetID, l.UserBadge, l.ProposalID, l.RoleID)
	if err != nil {
		return fmt.Errorf("link badge %d to dataset %d: %w", l.UserBadge, l.DatasetID, err)
	}
	return nil
}

func (s *SQLStore) InsertRun(ctx context.Context, r Run) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO syncotron_runs (id, name, start_timestamp, end_timestamp)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`),
		r.ID, r.Name, r.Start.UTC().Format(time.RFC3339Nano), r.End.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.Name, err)
	}
	return nil
}

func (s *SQLStore) Users(ctx context.Context, level string) ([]User, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	query := `SELECT u.badge, u.username, u.first_name, u.last_name, u.institution, u.email, uac.id, uac.level
	          FROM users u INNER JOIN user_access_control uac ON u.user_access_control_id = uac.id`
	var args []any
	if level != "" {
		query += s.rebind(` WHERE uac.level = $1`)
		args = append(args, level)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Badge, &u.Username, &u.FirstName, &u.LastName,
			&u.Institution, &u.Email, &u.AccessControlID, &u.AccessLevel); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// asTime normalizes a scanned timestamp column across drivers: pgx returns
// time.Time, sqlite returns the stored text.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
	case []byte:
		if ts, err := time.Parse(time.RFC3339Nano, string(t)); err == nil {
			return ts
		}
	}
	return time.Time{}
}
