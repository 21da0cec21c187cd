package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/invoice-dashboard/internal/core/domain"
)

// ChangeChannel is the NOTIFY channel written by the invoices trigger.
const ChangeChannel = "invoice_changes"

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

	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS invoices (
	id TEXT PRIMARY KEY,
	invoice_number TEXT,
	vendor_name TEXT,
	invoice_date DATE,
	due_date DATE,
	total_amount NUMERIC(14,2),
	currency TEXT NOT NULL DEFAULT 'USD',
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending', 'processed', 'approved', 'paid', 'rejected')),
	file_url TEXT,
	file_name TEXT,
	mime_type TEXT NOT NULL DEFAULT '',
	storage_key TEXT NOT NULL DEFAULT '',
	page_count INTEGER,
	extracted_data JSONB,
	confidence INTEGER CHECK (confidence BETWEEN 0 AND 100),
	matched_po TEXT,
	flags JSONB NOT NULL DEFAULT '[]'::jsonb,
	processing_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status);
CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_invoices_vendor_name ON invoices(vendor_name);

CREATE TABLE IF NOT EXISTS invoice_line_items (
	id TEXT PRIMARY KEY,
	invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	description TEXT NOT NULL DEFAULT '',
	quantity NUMERIC(14,4) NOT NULL DEFAULT 0,
	unit_price NUMERIC(14,4) NOT NULL DEFAULT 0,
	total NUMERIC(14,2) NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_invoice_line_items_invoice_id ON invoice_line_items(invoice_id);

CREATE OR REPLACE FUNCTION notify_invoice_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(
		'` + ChangeChannel + `',
		json_build_object(
			'op', TG_OP,
			'id', CASE WHEN TG_OP = 'DELETE' THEN OLD.id ELSE NEW.id END
		)::text
	);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS invoices_notify_change ON invoices;
CREATE TRIGGER invoices_notify_change
	AFTER INSERT OR UPDATE OR DELETE ON invoices
	FOR EACH ROW EXECUTE FUNCTION notify_invoice_change();
`

// wrapStoreError tags connectivity failures as network errors so callers can
// report them as retryable.
func wrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	cause := domain.FailureCause("")
	var netErr net.Error
	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		cause = domain.CauseTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		cause = domain.CauseTimeout
	case errors.As(err, &connErr), errors.Is(err, driver.ErrBadConn), errors.As(err, &netErr):
		cause = domain.CauseConnection
	}
	if cause == "" {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, &domain.NetworkError{Service: "postgres", Cause: cause, Err: err})
}
