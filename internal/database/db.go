package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	sqliteFile = "corrosion_rating.db"
)

// Config selects the database backend and pool sizes.
type Config struct {
	Driver          string
	DSN             string
	DataDir         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	driver string
	pool   *ConnectionPool
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"max_lifetime_seconds": cp.maxLifetime.Seconds(),
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens the default SQLite database inside dataDir.
func NewDB(dataDir string) (*DB, error) {
	return Open(context.Background(), Config{Driver: DriverSQLite, DataDir: dataDir})
}

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	dsn, err := resolveDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == DriverSQLite {
		// one writer keeps sequential id allocation free of SQLITE_BUSY
		maxOpen = 1
	}
	pool := NewConnectionPool(db, maxOpen, cfg.MaxIdleConns, cfg.ConnMaxLifetime)

	database := &DB{DB: db, driver: cfg.Driver, pool: pool}

	if err := database.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("Database initialized with connection pooling",
		"driver", cfg.Driver,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns,
		"max_lifetime", pool.maxLifetime)

	return database, nil
}

func resolveDSN(cfg Config) (string, error) {
	switch cfg.Driver {
	case DriverSQLite:
		if cfg.DSN != "" {
			return cfg.DSN, nil
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create data directory: %w", err)
		}
		path := filepath.Join(cfg.DataDir, sqliteFile)
		return fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000", path), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return "", fmt.Errorf("driver %s requires a DSN", cfg.Driver)
		}
		return cfg.DSN, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Driver returns the name of the database/sql driver in use.
func (db *DB) Driver() string { return db.driver }

// Rebind rewrites ? placeholders into the $n form Postgres expects.
func (db *DB) Rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// migrate creates the necessary tables
func (db *DB) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS parameters (
			id TEXT PRIMARY KEY,
			short_name TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			range_type TEXT NOT NULL,
			range_value TEXT NOT NULL DEFAULT '',
			accepts_impurities BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS norms (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			output_config TEXT NOT NULL DEFAULT '[]', -- JSON, snake_case keys
			classes TEXT NOT NULL DEFAULT '[]', -- JSON, snake_case keys
			expected_parameters TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS norm_parameters (
			norm_id TEXT NOT NULL REFERENCES norms(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			parameter_id TEXT NOT NULL,
			code TEXT NOT NULL DEFAULT '',
			rating_ranges TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (norm_id, position)
		)`,

		`CREATE TABLE IF NOT EXISTS datapoints (
			id TEXT PRIMARY KEY,
			norm_id TEXT NOT NULL REFERENCES norms(id) ON DELETE CASCADE,
			sequential_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			measured_at TIMESTAMP NOT NULL,
			raw_values TEXT NOT NULL DEFAULT '{}',
			ratings TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (norm_id, sequential_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_norm_parameters_parameter ON norm_parameters(parameter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_datapoints_norm ON datapoints(norm_id, sequential_id)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	stats := db.pool.GetStats()
	stats["driver"] = db.driver
	return stats
}
