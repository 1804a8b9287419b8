package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/statecraftio/statecraft/pkg/statecraft"
	"github.com/statecraftio/statecraft/pkg/statecraft/dbstore"
)

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	pool, err := dbstore.NewPool(dbstore.DefaultPoolConfig(":memory:", "sqlite3"))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	store := NewSQLStore(pool, "")
	if _, err := pool.Exec(context.Background(), store.Schema()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return store
}

func sampleEvent(rootEventID string, seq int) statecraft.MachineEvent {
	return statecraft.MachineEvent{
		ID:             "evt-" + rootEventID + "-" + string(rune('a'+seq)),
		RootEventID:    rootEventID,
		SequenceNumber: seq,
		CreatedAt:      time.Unix(int64(1_700_000_000+seq), 0).UTC(),
		MachineID:      "door",
		MachineValue:   []string{"door", "closed"},
		Source:         statecraft.External,
		Type:           "OPEN",
		Payload:        map[string]any{"n": float64(seq)},
		Version:        1,
	}
}

func TestSQLStoreAppendAndLoadOrdersBySequence(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()

	events := []statecraft.MachineEvent{sampleEvent("root-1", 1), sampleEvent("root-1", 0)}
	if err := store.Append(ctx, events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := store.Load(ctx, "root-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 events, got %d", len(loaded))
	}
	if loaded[0].SequenceNumber != 0 || loaded[1].SequenceNumber != 1 {
		t.Fatalf("expected events ordered by sequence number, got %#v", loaded)
	}
	if loaded[0].Payload["n"] != float64(0) {
		t.Fatalf("expected payload to round-trip, got %#v", loaded[0].Payload)
	}
}

func TestSQLStoreLoadIsolatesByRoot(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, []statecraft.MachineEvent{sampleEvent("root-1", 0)}); err != nil {
		t.Fatalf("Append root-1: %v", err)
	}
	if err := store.Append(ctx, []statecraft.MachineEvent{sampleEvent("root-2", 0)}); err != nil {
		t.Fatalf("Append root-2: %v", err)
	}

	loaded, err := store.Load(ctx, "root-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].RootEventID != "root-1" {
		t.Fatalf("expected only root-1's event, got %#v", loaded)
	}
}

func TestSQLStoreDeleteRemovesAllRowsForRoot(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, []statecraft.MachineEvent{sampleEvent("root-1", 0), sampleEvent("root-1", 1)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Delete(ctx, "root-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	loaded, err := store.Load(ctx, "root-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected no events after delete, got %d", len(loaded))
	}
}

func TestSQLStoreLatestActivityReportsMostRecentAndMissing(t *testing.T) {
	store := newSQLStore(t)
	ctx := context.Background()

	if _, ok, err := store.LatestActivity(ctx, "unknown-root"); err != nil || ok {
		t.Fatalf("expected ok=false for an unknown root, got ok=%v err=%v", ok, err)
	}

	if err := store.Append(ctx, []statecraft.MachineEvent{sampleEvent("root-1", 0), sampleEvent("root-1", 1)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	nanos, ok, err := store.LatestActivity(ctx, "root-1")
	if err != nil || !ok {
		t.Fatalf("LatestActivity: nanos=%d ok=%v err=%v", nanos, ok, err)
	}
	if nanos != sampleEvent("root-1", 1).CreatedAt.UnixNano() {
		t.Fatalf("expected the later sequence number's timestamp, got %d", nanos)
	}
}
