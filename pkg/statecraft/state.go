package statecraft

// State is the runtime snapshot of one machine instance. Unlike
// MachineDefinition it is mutable and instance-owned; the engine produces a
// new *State on every step.
type State struct {
	Value                  []string
	Context                Context
	CurrentStateDefinition *StateDefinition
	CurrentEventBehavior   Event
	History                []MachineEvent
}

// Leaves resolves Value back to *StateDefinition pointers via def.IDMap.
func (s *State) Leaves(def *MachineDefinition) []*StateDefinition {
	out := make([]*StateDefinition, 0, len(s.Value))
	for _, id := range s.Value {
		if st, ok := def.IDMap[id]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Matches reports whether every suffix in want is present, as a suffix
// match, among the current leaf ids.
func (s *State) Matches(want ...string) bool {
	for _, w := range want {
		found := false
		for _, v := range s.Value {
			if hasSuffix(v, w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// representativeStateDefinition computes CurrentStateDefinition: for a
// single leaf, the leaf itself; for multiple leaves (parallel), the nearest
// common ancestor that is itself PARALLEL, falling back to root.
func representativeStateDefinition(def *MachineDefinition, leaves []*StateDefinition) *StateDefinition {
	if len(leaves) == 0 {
		return def.Root
	}
	if len(leaves) == 1 {
		return leaves[0]
	}
	lca := NearestCommonAncestor(leaves...)
	for cur := lca; cur != nil; cur = cur.Parent {
		if cur.Type == Parallel {
			return cur
		}
	}
	return def.Root
}
