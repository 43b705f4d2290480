// Package history keeps a SQLite ledger of provisioning runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/go-logr/logr"

	"github.com/bluerov-ops/rovprep/internal/bootstrap"
	"github.com/bluerov-ops/rovprep/internal/log"
)

// DefaultFile is the ledger file name inside the state directory.
const DefaultFile = "history.db"

var ErrClosed = errors.New("history ledger is closed")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	started   TEXT    NOT NULL,
	completed INTEGER NOT NULL,
	error     TEXT    NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS steps (
	run_id     INTEGER NOT NULL REFERENCES runs(id),
	position   INTEGER NOT NULL,
	name       TEXT    NOT NULL,
	status     TEXT    NOT NULL,
	message    TEXT    NOT NULL,
	elapsed_ns INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);`

// Run is a recorded provisioning run.
type Run struct {
	ID        int64
	Started   time.Time
	Completed bool
	Error     string
	Steps     []bootstrap.StepResult
}

type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open history at %s: %w", path, err)
	}
	// a single connection serialises writers on the file
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialise history at %s: %w", path, err)
	}
	logr.FromContextOrDiscard(ctx).V(log.DBG).Info("opened history", "path", path)
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Record stores results together with the error that ended the run, if
// any, and returns the run id.
func (l *Ledger) Record(ctx context.Context, results bootstrap.Results, runErr error) (int64, error) {
	if l.db == nil {
		return 0, ErrClosed
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not record run: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (started, completed, error) VALUES (?, ?, ?)`,
		results.Started.UTC().Format(time.RFC3339Nano), results.Completed, errText)
	if err != nil {
		return 0, fmt.Errorf("could not record run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("could not record run: %w", err)
	}

	for i, s := range results.Steps {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO steps (run_id, position, name, status, message, elapsed_ns) VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, s.Name, string(s.Status), s.Message, int64(s.Elapsed))
		if err != nil {
			return 0, fmt.Errorf("could not record step %s: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not record run: %w", err)
	}
	return id, nil
}

// List returns up to limit runs, newest first. A limit below one returns
// every run.
func (l *Ledger) List(ctx context.Context, limit int) ([]Run, error) {
	if l.db == nil {
		return nil, ErrClosed
	}
	if limit < 1 {
		limit = -1
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started, completed, error FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started string
		)
		if err := rows.Scan(&r.ID, &started, &r.Completed, &r.Error); err != nil {
			return nil, fmt.Errorf("could not read run: %w", err)
		}
		if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %d has an invalid start time: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not list runs: %w", err)
	}

	for i := range runs {
		if runs[i].Steps, err = l.steps(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (l *Ledger) steps(ctx context.Context, runID int64) ([]bootstrap.StepResult, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT name, status, message, elapsed_ns FROM steps WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("could not read steps of run %d: %w", runID, err)
	}
	defer rows.Close()

	var steps []bootstrap.StepResult
	for rows.Next() {
		var (
			s       bootstrap.StepResult
			status  string
			elapsed int64
		)
		if err := rows.Scan(&s.Name, &status, &s.Message, &elapsed); err != nil {
			return nil, fmt.Errorf("could not read step of run %d: %w", runID, err)
		}
		s.Status = bootstrap.Status(status)
		s.Elapsed = time.Duration(elapsed)
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
