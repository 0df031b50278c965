// Package journal keeps a local SQLite record of upload runs: which stage
// each run reached and how it ended. It exists so a document whose blob was
// transferred but whose metadata was never registered can be found later.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// registerStage is the last pipeline stage. A run that failed there has an
// uploaded blob with no visible document.
const registerStage = "register"

const dirPerms = 0o700

const (
	sqlBegin = `INSERT INTO runs (run_id, display_name, size, stage, status, started_at)
		VALUES (?, ?, ?, 'credential', 'running', ?)`

	sqlAdvance = `UPDATE runs SET stage = ?,
		document_id = CASE WHEN ? = '' THEN document_id ELSE ? END
		WHERE run_id = ?`

	sqlFinish = `UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE run_id = ?`

	sqlRecent = `SELECT run_id, display_name, size, document_id, stage, status, error,
		started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`
)

// ErrUnknownRun is returned when updating a run that was never begun.
var ErrUnknownRun = errors.New("journal: unknown run")

// Run is one row of the journal.
type Run struct {
	RunID       string
	DisplayName string
	Size        int64
	DocumentID  string
	Stage       string
	Status      string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
}

// Orphaned reports whether the run left an invisible blob behind.
func (r *Run) Orphaned() bool {
	return r.Status == StatusFailed && r.Stage == registerStage && r.DocumentID != ""
}

// Journal is the sole writer to the journal database.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the journal database at path and applies
// migrations. Pass ":memory:" for an ephemeral journal.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := path

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
			return nil, fmt.Errorf("journal: creating directory: %w", err)
		}

		// DSN parameters ensure pragmas apply to every connection from the pool.
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", path, err)
	}

	// Sole-writer pattern; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("path", path))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Begin records the start of a run.
func (j *Journal) Begin(ctx context.Context, runID, name string, size int64) error {
	if _, err := j.db.ExecContext(ctx, sqlBegin, runID, name, size, j.nowFunc().UnixNano()); err != nil {
		return fmt.Errorf("journal: recording run start: %w", err)
	}

	return nil
}

// Advance records that a run reached stage. An empty documentID keeps the
// one already stored.
func (j *Journal) Advance(ctx context.Context, runID, stage, documentID string) error {
	res, err := j.db.ExecContext(ctx, sqlAdvance, stage, documentID, documentID, runID)
	if err != nil {
		return fmt.Errorf("journal: recording stage %s: %w", stage, err)
	}

	return checkAffected(res, runID)
}

// Finish records the outcome of a run. A nil runErr marks success.
func (j *Journal) Finish(ctx context.Context, runID string, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}

	res, err := j.db.ExecContext(ctx, sqlFinish, status, msg, j.nowFunc().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("journal: recording run outcome: %w", err)
	}

	return checkAffected(res, runID)
}

func checkAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("journal: rows affected: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	return nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, sqlRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			r         Run
			started   int64
			finishedN sql.NullInt64
		)

		if err := rows.Scan(&r.RunID, &r.DisplayName, &r.Size, &r.DocumentID, &r.Stage,
			&r.Status, &r.Error, &started, &finishedN); err != nil {
			return nil, fmt.Errorf("journal: scanning run: %w", err)
		}

		r.StartedAt = time.Unix(0, started)
		if finishedN.Valid {
			r.FinishedAt = time.Unix(0, finishedN.Int64)
		}

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating runs: %w", err)
	}

	return runs, nil
}
