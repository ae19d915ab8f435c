package bunstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/ballasthq/ballast"
	"github.com/ballasthq/ballast/maintain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements the driver and maintenance boundaries at
// compile time.
var (
	_ ballast.Driver      = (*Store)(nil)
	_ maintain.Maintainer = (*Store)(nil)
)

// Store is a Bun ORM backing store for the ballast write path, using the
// PostgreSQL dialect.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
	ownsDB bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle; the Store
// will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromDSN creates a Bun store over pgdriver from a PostgreSQL DSN.
// The returned store owns the connection; Close releases it.
func NewFromDSN(dsn string, opts ...Option) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	s := New(db, opts...)
	s.ownsDB = true
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	// Create migrations tracking table.
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ballast_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ballast/bun: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ballast/bun: read migrations: %w", err)
	}

	// Sort by filename for deterministic order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM ballast_migrations WHERE filename = ?)`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("ballast/bun: check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("ballast/bun: read migration %s: %w", entry.Name(), readErr)
		}

		_, execErr := s.db.ExecContext(ctx, string(data))
		if execErr != nil {
			return fmt.Errorf("ballast/bun: execute migration %s: %w", entry.Name(), execErr)
		}

		_, recErr := s.db.ExecContext(ctx,
			`INSERT INTO ballast_migrations (filename) VALUES (?)`,
			entry.Name(),
		)
		if recErr != nil {
			return fmt.Errorf("ballast/bun: record migration %s: %w", entry.Name(), recErr)
		}

		s.logger.Info("applied migration", "file", entry.Name())
	}

	return nil
}

// Begin opens a batch transaction.
func (s *Store) Begin(ctx context.Context) (ballast.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ballast/bun: begin: %w", err)
	}
	return &bunTx{tx: tx}, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database only when the store created it through
// NewFromDSN; otherwise the caller owns the *bun.DB.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
