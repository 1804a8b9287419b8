// Package eventlog implements the append-only, incrementally-diffed event
// log: physically an upsert keyed by event id, written as a single batch at
// the end of each send, read back by applying a recursive context merge in
// sequenceNumber order.
package eventlog

import (
	"context"

	"github.com/statecraftio/statecraft/pkg/statecraft"
)

// Store is the persistence contract for a machine's event history.
type Store interface {
	// Append upserts every record in events, keyed by id. Implementations
	// must be idempotent: appending the same id twice overwrites, it never
	// duplicates a row.
	Append(ctx context.Context, events []statecraft.MachineEvent) error

	// Load returns every record for rootEventID ordered by SequenceNumber,
	// or an empty slice if none exist (not an error — the caller decides
	// whether that means "never existed" or "check the archive").
	Load(ctx context.Context, rootEventID string) ([]statecraft.MachineEvent, error)

	// Delete removes every record for rootEventID (used by
	// archive.Service.ArchiveMachine once the archive row is written).
	Delete(ctx context.Context, rootEventID string) error

	// LatestActivity returns the CreatedAt of the most recent record for
	// rootEventID, used by archive eligibility scans.
	LatestActivity(ctx context.Context, rootEventID string) (latest int64, found bool, err error)
}
