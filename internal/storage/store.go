// Package storage provides the persistent store for the agent runtime.
//
// It is backed by a relational engine with two deployment modes: an
// embedded single-file engine (modernc.org/sqlite) for single-process
// runs, and a networked engine (PostgreSQL via pgx) when a DSN is
// configured. Both modes share one schema and one query set; sqlx
// rebinding bridges the placeholder dialects. Callers never depend on
// which backend is active.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	_ "modernc.org/sqlite"             // embedded sqlite driver
)

// Backend identifies which relational engine a Store runs on.
type Backend string

const (
	BackendEmbedded Backend = "embedded"
	BackendPostgres Backend = "postgres"
)

// Options configures Open.
type Options struct {
	// DSNs is an ordered failover list of PostgreSQL connection strings.
	// When non-empty the networked backend is selected and entries are
	// tried in order until one connects.
	DSNs []string
	// Path is the embedded database file, used when DSNs is empty.
	// Defaults to "folio.db".
	Path string
	// PoolSize caps open connections. Defaults to 5.
	PoolSize int
}

// Store is the durable ground truth for every runtime component.
type Store struct {
	db      *sqlx.DB
	backend Backend
	logger  *slog.Logger
}

// Open connects to the configured backend and applies the schema.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 5
	}

	var (
		db      *sqlx.DB
		backend Backend
		err     error
	)
	if len(opts.DSNs) > 0 {
		backend = BackendPostgres
		for _, dsn := range opts.DSNs {
			db, err = sqlx.ConnectContext(ctx, "pgx", dsn)
			if err == nil {
				break
			}
			logger.Warn("storage: postgres connect failed, trying next DSN", "error", err)
		}
		if db == nil {
			return nil, fmt.Errorf("storage: connect postgres: %w", err)
		}
	} else {
		backend = BackendEmbedded
		path := opts.Path
		if path == "" {
			path = "folio.db"
		}
		dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		db, err = sqlx.ConnectContext(ctx, "sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("storage: open embedded db: %w", err)
		}
	}

	db.SetMaxOpenConns(opts.PoolSize)
	db.SetMaxIdleConns(opts.PoolSize)
	db.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{db: db, backend: backend, logger: logger}
	if err := s.applySchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", ErrFatal, err)
	}
	return s, nil
}

// Backend returns which engine the store runs on.
func (s *Store) Backend() Backend {
	return s.backend
}

// Ping checks connectivity to the underlying engine.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// exec rebinds query to the active dialect and executes it.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.db.Rebind(query), args...)
}

// query rebinds query to the active dialect and runs it.
func (s *Store) query(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
}

// queryRow rebinds query to the active dialect and runs it for one row.
func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sqlx.Row {
	return s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...)
}

// withTx runs fn inside a transaction, rolling back on error. Every write
// that touches more than one row within one entity goes through here.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit tx: %w", err)
	}
	return nil
}

// rebind exposes dialect rebinding to same-package transaction helpers.
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// timeLayout is a fixed-width UTC encoding so lexical ordering of stored
// timestamps matches chronological ordering on both backends.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseTime(*s)
	return &t
}
