// Package ledger records apply runs in a local SQLite database.
//
// The ledger answers two questions: what happened on past runs (history),
// and whether an entity's rendered DDL changed since it was last applied
// (hash comparison, so unchanged entities are skipped).
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Ledger is a SQLite-backed apply log.
// Uses WAL mode so history reads do not block a running apply.
type Ledger struct {
	db *sql.DB
}

// Run is one apply run.
type Run struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
}

// Statement is the per-entity outcome of a run.
type Statement struct {
	RunID  string `json:"run_id"`
	Entity string `json:"entity"`
	Hash   string `json:"hash"`
	Status string `json:"status"`
}

// Statement status values.
const (
	StatusApplied   = "applied"
	StatusUnchanged = "unchanged"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Open creates or opens the ledger database at the given path.
// Applies pragmas and the schema; safe to call on an existing ledger.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}

	// SQLite allows one writer at a time; keep the pool at one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// RecordRun writes a run and its per-entity statements in one transaction.
func (l *Ledger) RecordRun(ctx context.Context, run Run, stmts []Statement) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, target, started_at, finished_at, outcome) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Target,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Outcome,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, s := range stmts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO statements (run_id, entity, hash, status) VALUES (?, ?, ?, ?)`,
			run.ID, s.Entity, s.Hash, s.Status,
		)
		if err != nil {
			return fmt.Errorf("insert statement for %s: %w", s.Entity, err)
		}
	}

	return tx.Commit()
}

// LastAppliedHash returns the hash recorded the last time the entity was
// applied (or confirmed unchanged). ok is false when the entity has never
// been applied.
func (l *Ledger) LastAppliedHash(ctx context.Context, entity string) (hash string, ok bool, err error) {
	// RFC 3339 UTC timestamps sort lexicographically.
	row := l.db.QueryRowContext(ctx, `
		SELECT s.hash
		FROM statements s
		JOIN runs r ON r.id = s.run_id
		WHERE s.entity = ? AND s.status IN (?, ?)
		ORDER BY r.started_at DESC
		LIMIT 1`,
		entity, StatusApplied, StatusUnchanged,
	)
	switch err := row.Scan(&hash); err {
	case nil:
		return hash, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, err
	}
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, target, started_at, finished_at, outcome
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                  Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Target, &started, &finished, &r.Outcome); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: bad started_at: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("run %s: bad finished_at: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunStatements returns the per-entity outcomes of one run, by entity name.
func (l *Ledger) RunStatements(ctx context.Context, runID string) ([]Statement, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, entity, hash, status
		FROM statements
		WHERE run_id = ?
		ORDER BY entity ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stmts []Statement
	for rows.Next() {
		var s Statement
		if err := rows.Scan(&s.RunID, &s.Entity, &s.Hash, &s.Status); err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, rows.Err()
}
