// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sqlstore is the SQL-backed store.Store implementation: a single
// embedded SQLite database file, accessed through database/sql and the
// pure-Go modernc.org/sqlite driver. Status is stored as a nullable INTEGER
// column where NULL=Running, 0=Success, 1=Failure, 2=Unknown; sqlstore is
// the only layer that ever observes that NULL convention — every exported
// method returns a *store.ExecutionStatus instead.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/musergi/ospreid/internal/osprerr"
	"github.com/musergi/ospreid/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS stages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job INTEGER NOT NULL REFERENCES jobs(id),
	dependency INTEGER NULL REFERENCES stages(id),
	definition TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job INTEGER NOT NULL REFERENCES jobs(id),
	start_time DATETIME NOT NULL,
	end_time DATETIME NULL,
	status INTEGER NULL,
	stdout TEXT NULL,
	stderr TEXT NULL
);
CREATE TABLE IF NOT EXISTS schedules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job INTEGER NOT NULL REFERENCES jobs(id),
	hour INTEGER NOT NULL,
	minute INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS templates (
	name TEXT PRIMARY KEY,
	definition TEXT NOT NULL
);
`

// Store is the SQL-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if absent) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, osprerr.Wrap(osprerr.KindStorage, err, "opening database %q", path)
	}
	// SQLite allows only one writer at a time; a single connection avoids
	// "database is locked" errors under the engine's concurrent goroutines.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init creates the schema if missing and reaps orphaned Running executions.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return osprerr.Wrap(osprerr.KindStorage, err, "creating schema")
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, end_time = ? WHERE status IS NULL`,
		int(store.StatusUnknown), nowUTC(),
	); err != nil {
		return osprerr.Wrap(osprerr.KindStorage, err, "reaping orphaned executions")
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func (s *Store) CreateJob(ctx context.Context, source string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "beginning transaction")
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	res, err := tx.ExecContext(ctx, `INSERT INTO jobs (source) VALUES (?)`, source)
	if err != nil {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "inserting job")
	}
	jobID, err := res.LastInsertId()
	if err != nil {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "reading job id")
	}

	checkout := checkoutDefinition(source)
	defJSON, err := json.Marshal(checkout)
	if err != nil {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "marshalling checkout definition")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO stages (job, dependency, definition) VALUES (?, NULL, ?)`,
		jobID, string(defJSON),
	); err != nil {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "inserting checkout stage")
	}

	if err := tx.Commit(); err != nil {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "committing job creation")
	}
	return jobID, nil
}

func checkoutDefinition(source string) store.StageDefinition {
	return store.StageDefinition{
		Name:       store.CheckoutStageName,
		Image:      store.CheckoutImage,
		WorkingDir: store.WorkspaceDir,
		Environment: []store.EnvVar{
			{Name: "SOURCE", Value: source},
		},
	}
}

func (s *Store) JobIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM jobs ORDER BY id ASC`)
	if err != nil {
		return nil, osprerr.Wrap(osprerr.KindStorage, err, "listing jobs")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, osprerr.Wrap(osprerr.KindStorage, err, "scanning job id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) JobSource(ctx context.Context, id int64) (string, error) {
	var source string
	err := s.db.QueryRowContext(ctx, `SELECT source FROM jobs WHERE id = ?`, id).Scan(&source)
	if err == sql.ErrNoRows {
		return "", osprerr.NotFound("job %d not found", id)
	}
	if err != nil {
		return "", osprerr.Wrap(osprerr.KindStorage, err, "fetching job %d", id)
	}
	return source, nil
}

func (s *Store) JobStatus(ctx context.Context, id int64) (*store.ExecutionStatus, error) {
	if _, err := s.JobSource(ctx, id); err != nil {
		return nil, err
	}
	var status sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM executions WHERE job = ? ORDER BY id DESC LIMIT 1`, id,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, osprerr.Wrap(osprerr.KindStorage, err, "fetching latest execution for job %d", id)
	}
	return nullableStatus(status), nil
}

func nullableStatus(v sql.NullInt64) *store.ExecutionStatus {
	if !v.Valid {
		return nil
	}
	st := store.ExecutionStatus(v.Int64)
	return &st
}

func (s *Store) StagesForJob(ctx context.Context, jobID int64) ([]store.Stage, error) {
	if _, err := s.JobSource(ctx, jobID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dependency, definition FROM stages WHERE job = ? ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, osprerr.Wrap(osprerr.KindStorage, err, "listing stages for job %d", jobID)
	}
	defer rows.Close()

	var stages []store.Stage
	for rows.Next() {
		var (
			id         int64
			dependency sql.NullInt64
			defJSON    string
		)
		if err := rows.Scan(&id, &dependency, &defJSON); err != nil {
			return nil, osprerr.Wrap(osprerr.KindStorage, err, "scanning stage")
		}
		var def store.StageDefinition
		if err := json.Unmarshal([]byte(defJSON), &def); err != nil {
			return nil, osprerr.Wrap(osprerr.KindStorage, err, "decoding stage definition")
		}
		stage := store.Stage{ID: id, JobID: jobID, Definition: def}
		if dependency.Valid {
			dep := dependency.Int64
			stage.Dependency = &dep
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

func (s *Store) CreateStage(ctx context.Context, jobID int64, dependency *int64, def store.StageDefinition) (int64, error) {
	if _, err := s.JobSource(ctx, jobID); err != nil {
		return 0, err
	}
	if dependency == nil {
		return 0, osprerr.Invalid("dependency is required for a non-checkout stage")
	}
	if def.Name == "" {
		return 0, osprerr.Invalid("stage name must be non-empty")
	}
	var depJob int64
	err := s.db.QueryRowContext(ctx, `SELECT job FROM stages WHERE id = ?`, *dependency).Scan(&depJob)
	if err == sql.ErrNoRows || (err == nil && depJob != jobID) {
		return 0, osprerr.Invalid("dependency %d is not a stage of job %d", *dependency, jobID)
	}
	if err != nil && err != sql.ErrNoRows {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "validating dependency %d", *dependency)
	}

	defJSON, err := json.Marshal(def)
	if err != nil {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "marshalling stage definition")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stages (job, dependency, definition) VALUES (?, ?, ?)`,
		jobID, *dependency, string(defJSON))
	if err != nil {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "inserting stage")
	}
	return res.LastInsertId()
}

func (s *Store) CreateExecution(ctx context.Context, jobID int64) (int64, error) {
	if _, err := s.JobSource(ctx, jobID); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (job, start_time, status) VALUES (?, ?, NULL)`,
		jobID, nowUTC())
	if err != nil {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "inserting execution")
	}
	return res.LastInsertId()
}

func (s *Store) SetExecutionTerminal(ctx context.Context, id int64, status store.ExecutionStatus, stdout, stderr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, end_time = ?, stdout = ?, stderr = ? WHERE id = ? AND status IS NULL`,
		int(status), nowUTC(), stdout, stderr, id)
	if err != nil {
		return osprerr.Wrap(osprerr.KindStorage, err, "setting execution %d terminal", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return osprerr.Wrap(osprerr.KindStorage, err, "reading rows affected")
	}
	if affected == 0 {
		var exists bool
		_ = s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM executions WHERE id = ?)`, id).Scan(&exists)
		if !exists {
			return osprerr.NotFound("execution %d not found", id)
		}
		return osprerr.Invalid("execution %d is already terminal", id)
	}
	return nil
}

func (s *Store) ExecutionIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM executions ORDER BY id DESC`)
	if err != nil {
		return nil, osprerr.Wrap(osprerr.KindStorage, err, "listing executions")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, osprerr.Wrap(osprerr.KindStorage, err, "scanning execution id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) Execution(ctx context.Context, id int64) (store.Execution, error) {
	var (
		exec      store.Execution
		startTime time.Time
		endTime   sql.NullTime
		status    sql.NullInt64
		stdout    sql.NullString
		stderr    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, job, start_time, end_time, status, stdout, stderr FROM executions WHERE id = ?`, id,
	).Scan(&exec.ID, &exec.JobID, &startTime, &endTime, &status, &stdout, &stderr)
	if err == sql.ErrNoRows {
		return store.Execution{}, osprerr.NotFound("execution %d not found", id)
	}
	if err != nil {
		return store.Execution{}, osprerr.Wrap(osprerr.KindStorage, err, "fetching execution %d", id)
	}
	exec.StartTime = startTime
	if endTime.Valid {
		t := endTime.Time
		exec.EndTime = &t
	}
	exec.Status = nullableStatus(status)
	exec.Stdout = stdout.String
	exec.Stderr = stderr.String
	return exec, nil
}

func (s *Store) ExecutionStatus(ctx context.Context, id int64) (*store.ExecutionStatus, error) {
	exec, err := s.Execution(ctx, id)
	if err != nil {
		return nil, err
	}
	return exec.Status, nil
}

func (s *Store) ExecutionDuration(ctx context.Context, id int64) (*time.Duration, error) {
	exec, err := s.Execution(ctx, id)
	if err != nil {
		return nil, err
	}
	return exec.Duration(), nil
}

func (s *Store) ExecutionStdout(ctx context.Context, id int64) (string, error) {
	exec, err := s.Execution(ctx, id)
	if err != nil {
		return "", err
	}
	return exec.Stdout, nil
}

func (s *Store) ExecutionStderr(ctx context.Context, id int64) (string, error) {
	exec, err := s.Execution(ctx, id)
	if err != nil {
		return "", err
	}
	return exec.Stderr, nil
}

func (s *Store) CreateDailySchedule(ctx context.Context, jobID int64, hour, minute int) (int64, error) {
	if _, err := s.JobSource(ctx, jobID); err != nil {
		return 0, err
	}
	if hour < 0 || hour > 23 {
		return 0, osprerr.Invalid("hour %d out of range [0,23]", hour)
	}
	if minute < 0 || minute > 59 {
		return 0, osprerr.Invalid("minute %d out of range [0,59]", minute)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (job, hour, minute) VALUES (?, ?, ?)`, jobID, hour, minute)
	if err != nil {
		return 0, osprerr.Wrap(osprerr.KindStorage, err, "inserting schedule")
	}
	return res.LastInsertId()
}

func (s *Store) AllSchedules(ctx context.Context) ([]store.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, job, hour, minute FROM schedules ORDER BY id ASC`)
	if err != nil {
		return nil, osprerr.Wrap(osprerr.KindStorage, err, "listing schedules")
	}
	defer rows.Close()

	var schedules []store.Schedule
	for rows.Next() {
		var sc store.Schedule
		if err := rows.Scan(&sc.ID, &sc.JobID, &sc.Hour, &sc.Minute); err != nil {
			return nil, osprerr.Wrap(osprerr.KindStorage, err, "scanning schedule")
		}
		schedules = append(schedules, sc)
	}
	return schedules, rows.Err()
}

func (s *Store) TemplateNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM templates ORDER BY name ASC`)
	if err != nil {
		return nil, osprerr.Wrap(osprerr.KindStorage, err, "listing templates")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, osprerr.Wrap(osprerr.KindStorage, err, "scanning template name")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) Template(ctx context.Context, name string) (store.Template, error) {
	var defJSON string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM templates WHERE name = ?`, name).Scan(&defJSON)
	if err == sql.ErrNoRows {
		return store.Template{}, osprerr.NotFound("template %q not found", name)
	}
	if err != nil {
		return store.Template{}, osprerr.Wrap(osprerr.KindStorage, err, "fetching template %q", name)
	}
	var def store.StageDefinition
	if err := json.Unmarshal([]byte(defJSON), &def); err != nil {
		return store.Template{}, osprerr.Wrap(osprerr.KindStorage, err, "decoding template %q", name)
	}
	return store.Template{Name: name, Definition: def}, nil
}

// AddTemplate inserts or replaces a template definition. Used by config
// loading to seed the catalog named in ospreid.yml; the content of that
// catalog is out of core scope, but the insertion path itself is not.
func (s *Store) AddTemplate(ctx context.Context, tmpl store.Template) error {
	defJSON, err := json.Marshal(tmpl.Definition)
	if err != nil {
		return osprerr.Wrap(osprerr.KindStorage, err, "marshalling template %q", tmpl.Name)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (name, definition) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET definition = excluded.definition`,
		tmpl.Name, string(defJSON),
	); err != nil {
		return osprerr.Wrap(osprerr.KindStorage, err, "upserting template %q", tmpl.Name)
	}
	return nil
}
