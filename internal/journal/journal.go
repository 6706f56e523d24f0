// Package journal keeps an append-only record of final voice commands.
//
// The journal is optional. Without a PostgreSQL DSN the application uses
// [Nop], which discards everything.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Entry is one journaled command.
type Entry struct {
	ID       uuid.UUID
	At       time.Time
	User     string
	Body     string
	Kind     string
	Language string
	Outcome  string
	Detail   string
}

// Journal records commands.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close()
}

// Nop is a [Journal] that records nothing.
type Nop struct{}

// Record discards e.
func (Nop) Record(context.Context, Entry) error { return nil }

// Recent returns nothing.
func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }

// Close does nothing.
func (Nop) Close() {}

// Schema is the DDL for the command_journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS command_journal (
    id         UUID PRIMARY KEY,
    at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    user_name  TEXT NOT NULL DEFAULT '',
    body       TEXT NOT NULL,
    kind       TEXT NOT NULL,
    language   TEXT NOT NULL DEFAULT '',
    outcome    TEXT NOT NULL DEFAULT '',
    detail     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_command_journal_at ON command_journal(at DESC);
`

// DB is the database interface used by [Postgres]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a [Journal] backed by PostgreSQL.
type Postgres struct {
	db    DB
	close func()
}

var _ Journal = (*Postgres)(nil)

// NewPostgres wraps an existing connection or pool. The caller owns db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db, close: func() {}}
}

// Open connects to dsn, verifies the connection, and migrates the schema.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	p := &Postgres{db: pool, close: pool.Close}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the table and index if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

// Record inserts e. A zero ID or timestamp is filled in.
func (p *Postgres) Record(ctx context.Context, e Entry) error {
	if e.Body == "" {
		return errors.New("journal: record: empty body")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	const query = `
		INSERT INTO command_journal (id, at, user_name, body, kind, language, outcome, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := p.db.Exec(ctx, query, e.ID, e.At, e.User, e.Body, e.Kind, e.Language, e.Outcome, e.Detail); err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, at, user_name, body, kind, language, outcome, detail
		FROM command_journal
		ORDER BY at DESC
		LIMIT $1`
	rows, err := p.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.At, &e.User, &e.Body, &e.Kind, &e.Language, &e.Outcome, &e.Detail); err != nil {
			return nil, fmt.Errorf("journal: recent: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	return out, nil
}

// Close releases the pool when the journal opened it.
func (p *Postgres) Close() { p.close() }
