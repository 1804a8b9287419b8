// Package dbstore wraps database/sql with a fail-fast connection pool, the
// storage substrate for pkg/statecraft/eventlog and pkg/statecraft/archive.
// It registers three drivers purely by blank import so a caller selects one
// by DriverName without this package importing anything vendor-specific
// beyond the registration side effect.
package dbstore

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // DriverName "pgx", primary Postgres driver
	_ "github.com/lib/pq"              // DriverName "postgres", secondary/legacy DSN scheme
	_ "github.com/mattn/go-sqlite3"    // DriverName "sqlite3", embedded/test default
)

// PoolConfig configures the connection pool (HikariCP-style knobs).
type PoolConfig struct {
	DSN string

	MaxOpenConns int
	MaxIdleConns int

	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	DriverName string
}

// DefaultPoolConfig returns sane defaults for the given dsn/driver pair.
// "sqlite3" is the default for tests and single-node deployments; "pgx" is
// the recommended production driver.
func DefaultPoolConfig(dsn string, driverName string) PoolConfig {
	return PoolConfig{
		DSN:             dsn,
		DriverName:      driverName,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// Pool is a fail-fast database/sql wrapper: every accessor validates its own
// receiver and arguments rather than trusting the caller, matching the
// event log's append-heavy, never-silently-degrade usage pattern.
type Pool struct {
	db     *sql.DB
	config PoolConfig
}

// Error is a structured pool error carrying a stable code for callers that
// want to branch on failure category without string matching.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewPool validates config, opens the pool, configures its limits, and
// pings once before returning, so a bad DSN fails at construction instead
// of at the first query.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.DSN == "" {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "DSN cannot be empty"}
	}
	if config.DriverName == "" {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "DriverName cannot be empty"}
	}
	if config.MaxOpenConns <= 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxOpenConns must be positive"}
	}
	if config.MaxIdleConns < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot be negative"}
	}
	if config.MaxIdleConns > config.MaxOpenConns {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot exceed MaxOpenConns"}
	}
	if config.ConnMaxLifetime < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "ConnMaxLifetime cannot be negative"}
	}
	if config.ConnMaxIdleTime < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "ConnMaxIdleTime cannot be negative"}
	}

	db, err := sql.Open(config.DriverName, config.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Pool{db: db, config: config}, nil
}

func (p *Pool) DB() *sql.DB {
	if p == nil {
		panic("dbstore: pool cannot be nil")
	}
	if p.db == nil {
		panic("dbstore: pool not initialized")
	}
	return p.db
}

func (p *Pool) Close() error {
	if p == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool already closed"}
	}
	return p.db.Close()
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	return p.db.PingContext(ctx)
}

func (p *Pool) Stats() sql.DBStats {
	if p == nil || p.db == nil {
		return sql.DBStats{}
	}
	return p.db.Stats()
}

func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if err := p.validateQuery(ctx, query); err != nil {
		return nil, err
	}
	return p.db.QueryContext(ctx, query, args...)
}

func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	if err := p.validateQuery(ctx, query); err != nil {
		panic(err)
	}
	return p.db.QueryRowContext(ctx, query, args...)
}

func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := p.validateQuery(ctx, query); err != nil {
		return nil, err
	}
	return p.db.ExecContext(ctx, query, args...)
}

func (p *Pool) Begin(ctx context.Context) (*sql.Tx, error) {
	return p.BeginTx(ctx, nil)
}

func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if p == nil || p.db == nil {
		return nil, &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return nil, &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	return p.db.BeginTx(ctx, opts)
}

func (p *Pool) validateQuery(ctx context.Context, query string) error {
	if p == nil || p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	if query == "" {
		return &Error{Code: "INVALID_INPUT", Message: "query cannot be empty"}
	}
	return nil
}
