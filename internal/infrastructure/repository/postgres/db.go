package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
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

// EnsureSchema bootstraps all pipeline tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	name TEXT NOT NULL,
	doc_type TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	storage_key TEXT NOT NULL,
	status TEXT NOT NULL,
	confidence INTEGER,
	extracted_text TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	warnings JSONB,
	grant_id TEXT,
	processed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_org_status ON documents(organization_id, status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS grants (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	funder TEXT,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS commitments (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	grant_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	commitment_type TEXT NOT NULL,
	description TEXT NOT NULL,
	metric_name TEXT,
	metric_value TEXT,
	due_date TIMESTAMPTZ,
	extracted_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_commitments_doc_grant ON commitments(document_id, grant_id);

CREATE TABLE IF NOT EXISTS compliance_audits (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	action TEXT NOT NULL,
	actor TEXT NOT NULL,
	document_id TEXT NOT NULL,
	grant_id TEXT NOT NULL,
	commitment_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_logs (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	subject TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	error_message TEXT,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notification_logs_org ON notification_logs(organization_id, created_at DESC);

CREATE TABLE IF NOT EXISTS organization_members (
	organization_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	email TEXT NOT NULL,
	PRIMARY KEY (organization_id, user_id)
);

CREATE TABLE IF NOT EXISTS notification_preferences (
	organization_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	document_processed BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (organization_id, user_id)
);

CREATE TABLE IF NOT EXISTS pipeline_steps (
	document_id TEXT NOT NULL,
	step TEXT NOT NULL,
	payload JSONB NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (document_id, step)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
