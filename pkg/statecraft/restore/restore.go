// Package restore implements Restorer: rebuilding a State from
// the event log, transparently falling back to the archive when the active
// log is empty.
package restore

import (
	"context"

	"github.com/statecraftio/statecraft/pkg/statecraft"
	"github.com/statecraftio/statecraft/pkg/statecraft/archive"
	"github.com/statecraftio/statecraft/pkg/statecraft/eventlog"
)

// Restorer rebuilds State values from persisted event history.
type Restorer struct {
	events  eventlog.Store
	archive *archive.Service
}

// New returns a Restorer. archiveSvc may be nil, in which case an empty
// active log simply yields RestoreFailure instead of falling back.
func New(events eventlog.Store, archiveSvc *archive.Service) *Restorer {
	return &Restorer{events: events, archive: archiveSvc}
}

// Restore rebuilds the State for rootEventID. If the active
// log is empty and an archive service is configured, it transparently
// restores-and-deletes the archive first.
func (r *Restorer) Restore(ctx context.Context, def *statecraft.MachineDefinition, rootEventID string) (*statecraft.State, error) {
	records, err := r.events.Load(ctx, rootEventID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 && r.archive != nil {
		if err := r.archive.RestoreAndDelete(ctx, rootEventID); err != nil {
			return nil, err
		}
		records, err = r.events.Load(ctx, rootEventID)
		if err != nil {
			return nil, err
		}
	}
	if len(records) == 0 {
		return nil, &statecraft.RestoreFailure{RootEventID: rootEventID, Reason: "no records in active log or archive"}
	}
	return rebuild(def, records)
}

// rebuild applies the incremental context merge chain and reconstructs the
// representative pieces of State from the last record.
func rebuild(def *statecraft.MachineDefinition, records []statecraft.MachineEvent) (*statecraft.State, error) {
	effective := make(map[string]any)
	for _, rec := range records {
		if rec.Context != nil {
			effective = eventlog.MergeContext(effective, rec.Context)
		}
	}
	last := records[len(records)-1]

	var leaves []*statecraft.StateDefinition
	for _, id := range last.MachineValue {
		if st, ok := def.IDMap[id]; ok {
			leaves = append(leaves, st)
		}
	}
	var representative *statecraft.StateDefinition
	switch {
	case len(leaves) == 1:
		representative = leaves[0]
	case len(leaves) > 1:
		lca := statecraft.NearestCommonAncestor(leaves...)
		representative = def.Root
		for cur := lca; cur != nil; cur = cur.Parent {
			if cur.Type == statecraft.Parallel {
				representative = cur
				break
			}
		}
	default:
		representative = def.Root
	}

	lastEvent := statecraft.Event{
		Type:      last.Type,
		Payload:   last.Payload,
		Source:    last.Source,
		Timestamp: last.CreatedAt,
	}

	return &statecraft.State{
		Value:                  append([]string(nil), last.MachineValue...),
		Context:                statecraft.NewMapContext(effective),
		CurrentStateDefinition: representative,
		CurrentEventBehavior:   lastEvent,
		History:                records,
	}, nil
}
