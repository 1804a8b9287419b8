package eventlog

import (
	"context"
	"sort"
	"sync"

	"github.com/statecraftio/statecraft/pkg/statecraft"
)

// MemoryStore is an in-process Store: useful for tests and for
// single-process deployments that don't need durability across restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]statecraft.MachineEvent   // event id -> record (upsert key)
	byRoot map[string]map[string]bool // rootEventID -> set of event ids
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]statecraft.MachineEvent),
		byRoot: make(map[string]map[string]bool),
	}
}

func (s *MemoryStore) Append(_ context.Context, events []statecraft.MachineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range events {
		s.byID[evt.ID] = evt
		set, ok := s.byRoot[evt.RootEventID]
		if !ok {
			set = make(map[string]bool)
			s.byRoot[evt.RootEventID] = set
		}
		set[evt.ID] = true
	}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, rootEventID string) ([]statecraft.MachineEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRoot[rootEventID]
	out := make([]statecraft.MachineEvent, 0, len(ids))
	for id := range ids {
		out = append(out, s.byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNumber < out[j].SequenceNumber })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, rootEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.byRoot[rootEventID] {
		delete(s.byID, id)
	}
	delete(s.byRoot, rootEventID)
	return nil
}

func (s *MemoryStore) LatestActivity(_ context.Context, rootEventID string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRoot[rootEventID]
	if len(ids) == 0 {
		return 0, false, nil
	}
	var latest int64
	for id := range ids {
		ts := s.byID[id].CreatedAt.UnixNano()
		if ts > latest {
			latest = ts
		}
	}
	return latest, true, nil
}
