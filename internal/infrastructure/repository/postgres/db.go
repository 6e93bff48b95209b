package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/keyword-intel/internal/core/domain"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the cache and research tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS serp_cache (
	cache_key TEXT PRIMARY KEY,
	keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
	region TEXT NOT NULL,
	language TEXT NOT NULL,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS volume_cache (
	keyword_key TEXT NOT NULL,
	region TEXT NOT NULL,
	language TEXT NOT NULL,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (keyword_key, region, language)
);

CREATE TABLE IF NOT EXISTS research_records (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	region TEXT NOT NULL,
	language TEXT NOT NULL,
	keywords JSONB NOT NULL DEFAULT '[]'::jsonb,
	clusters JSONB,
	personas JSONB,
	clustering_status TEXT NOT NULL DEFAULT '',
	clustering_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_serp_cache_updated_at ON serp_cache(updated_at);
CREATE INDEX IF NOT EXISTS idx_research_records_status ON research_records(clustering_status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// wrapStoreError tags storage failures with a domain kind based on the SQLSTATE class.
func wrapStoreError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		// 53: insufficient resources (disk full, out of memory, too many connections).
		// 54: program limit exceeded.
		case strings.HasPrefix(pgErr.Code, "53"), strings.HasPrefix(pgErr.Code, "54"):
			return domain.WrapError(domain.ErrQuotaExceeded, operation, err)
		case pgErr.Code == "40001", pgErr.Code == "40P01", strings.HasPrefix(pgErr.Code, "08"):
			return domain.WrapError(domain.ErrTemporary, operation, err)
		}
	}
	return fmt.Errorf("%s: %w", operation, err)
}
