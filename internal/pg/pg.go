// Package pg connects to PostgreSQL and applies generated DDL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"go.uber.org/zap"
)

// Open connects to PostgreSQL through the pgx stdlib driver and verifies
// the connection with a short ping.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Postgres error codes for objects that already exist. Re-applying a corpus
// must not fail on these.
var duplicateCodes = map[string]bool{
	"42710": true, // duplicate_object
	"42P07": true, // duplicate_table
	"42701": true, // duplicate_column
}

// Apply executes statements in order. Duplicate-object errors are logged and
// skipped so applying the same corpus twice is idempotent. Returns the number
// of skipped statements.
func Apply(ctx context.Context, db *sql.DB, log *zap.Logger, stmts []string) (int, error) {
	skipped := 0
	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if isDuplicate(err) {
				log.Debug("statement skipped, object already exists",
					zap.String("statement", firstLine(stmt)),
					zap.Error(err))
				skipped++
				continue
			}
			return skipped, err
		}
	}
	return skipped, nil
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && duplicateCodes[pgErr.Code] {
		return true
	}
	// Fallback on the message for objects without a dedicated code.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
