package dbstore

import (
	"context"
	"testing"
)

func TestNewPoolRejectsEmptyDSN(t *testing.T) {
	_, err := NewPool(PoolConfig{DriverName: "sqlite3", MaxOpenConns: 1})
	if err == nil {
		t.Fatalf("expected an error for an empty DSN")
	}
	if perr, ok := err.(*Error); !ok || perr.Code != "INVALID_CONFIG" {
		t.Fatalf("expected an INVALID_CONFIG *Error, got %#v", err)
	}
}

func TestNewPoolRejectsEmptyDriverName(t *testing.T) {
	_, err := NewPool(PoolConfig{DSN: ":memory:", MaxOpenConns: 1})
	if err == nil {
		t.Fatalf("expected an error for an empty DriverName")
	}
}

func TestNewPoolRejectsIdleExceedingOpen(t *testing.T) {
	_, err := NewPool(PoolConfig{DSN: ":memory:", DriverName: "sqlite3", MaxOpenConns: 1, MaxIdleConns: 5})
	if err == nil {
		t.Fatalf("expected an error when MaxIdleConns exceeds MaxOpenConns")
	}
}

func TestNewPoolOpensAndPingsSQLite(t *testing.T) {
	cfg := DefaultPoolConfig(":memory:", "sqlite3")
	pool, err := NewPool(cfg)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPoolExecAndQueryRoundTrip(t *testing.T) {
	pool, err := NewPool(DefaultPoolConfig(":memory:", "sqlite3"))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	if _, err := pool.Exec(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("Exec create: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO widgets (name) VALUES (?)`, "gadget"); err != nil {
		t.Fatalf("Exec insert: %v", err)
	}

	row := pool.QueryRow(ctx, `SELECT name FROM widgets WHERE id = ?`, 1)
	var name string
	if err := row.Scan(&name); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if name != "gadget" {
		t.Fatalf("expected name=gadget, got %q", name)
	}
}

func TestPoolQueryRejectsNilContext(t *testing.T) {
	pool, err := NewPool(DefaultPoolConfig(":memory:", "sqlite3"))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Query(nil, "SELECT 1"); err == nil { //nolint:staticcheck // intentionally exercising the nil-context guard
		t.Fatalf("expected an error for a nil context")
	}
}

func TestPoolOperationsOnZeroValueFailFast(t *testing.T) {
	var pool Pool
	if err := pool.Ping(context.Background()); err == nil {
		t.Fatalf("expected an error from an uninitialized pool")
	}
	if err := pool.Close(); err == nil {
		t.Fatalf("expected an error closing an uninitialized pool")
	}
}
