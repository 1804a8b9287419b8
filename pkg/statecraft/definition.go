package statecraft

import "time"

// StateType enumerates the kinds a StateDefinition can have.
type StateType int

const (
	Atomic StateType = iota
	Compound
	Parallel
	Final
)

func (t StateType) String() string {
	switch t {
	case Atomic:
		return "atomic"
	case Compound:
		return "compound"
	case Parallel:
		return "parallel"
	case Final:
		return "final"
	default:
		return "unknown"
	}
}

// AlwaysEvent is the reserved event type token for eventless transitions.
const AlwaysEvent = "@always"

// BehaviorRef names a registered behavior, optionally with a colon-separated
// argument string ("checkChannel:direct_cash").
type BehaviorRef struct {
	Name string
	Arg  string // empty when the reference carries no argument
}

// MachineDefinition is the immutable, compiled representation of a machine.
// It is safe to share across goroutines/workers once compiled.
type MachineDefinition struct {
	ID               string
	Delimiter        byte
	Version          string
	Root             *StateDefinition
	IDMap            map[string]*StateDefinition
	Behavior         *BehaviorRegistry
	ShouldPersist    bool
	ScenariosEnabled bool
	Scenarios        map[string]RawConfig
}

// RawConfig is the declarative configuration map a MachineDefinition is
// compiled from, typically produced by unmarshalling YAML
// or JSON via pkg/statecraft/machineconfig.
type RawConfig = map[string]any

// StateDefinition is the immutable compiled representation of a single
// state.
type StateDefinition struct {
	ID     string // fully-qualified id, "<machine>.<seg>.<seg>"
	Key    string // local segment name
	Type   StateType
	Parent *StateDefinition

	// Children preserves declaration order; ChildOrder is the source of
	// truth for iteration, Children is the lookup index. Go maps have no
	// native ordered form, so both are kept in sync by the compiler.
	Children   map[string]*StateDefinition
	ChildOrder []string

	InitialChildKey string // required for Compound, forbidden for Parallel

	EntryActions []BehaviorRef
	ExitActions  []BehaviorRef

	// Transitions maps event type (including AlwaysEvent) to an ordered list
	// of guarded alternatives. A single unconditional transition is simply a
	// one-element list whose entry has no guards.
	Transitions map[string][]*TransitionDefinition

	OnDone *TransitionDefinition // fired when children settle into FINAL leaves
	Result *BehaviorRef          // valid only on FINAL states

	Meta map[string]any

	// Precomputed by the compiler.
	UniqueEventTypes []string
	InitialLeaves    []string
}

// IsLeaf reports whether this state is an Atomic or Final state (no
// children to descend into).
func (s *StateDefinition) IsLeaf() bool {
	return s.Type == Atomic || s.Type == Final
}

// OrderedChildren returns children in declaration order.
func (s *StateDefinition) OrderedChildren() []*StateDefinition {
	out := make([]*StateDefinition, 0, len(s.ChildOrder))
	for _, k := range s.ChildOrder {
		out = append(out, s.Children[k])
	}
	return out
}

// Ancestors returns this state's ancestor chain, starting with its direct
// parent and ending at the root (root included, machine-level sentinel
// excluded since Root itself is a StateDefinition).
func (s *StateDefinition) Ancestors() []*StateDefinition {
	var out []*StateDefinition
	for p := s.Parent; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out
}

// IsAncestorOf reports whether s is an ancestor of other (or other itself).
func (s *StateDefinition) IsAncestorOf(other *StateDefinition) bool {
	for cur := other; cur != nil; cur = cur.Parent {
		if cur == s {
			return true
		}
	}
	return false
}

// NearestCommonAncestor finds the closest shared ancestor of the given
// states, or nil if they share none (should not happen for states compiled
// from the same MachineDefinition, since Root is common to all).
func NearestCommonAncestor(states ...*StateDefinition) *StateDefinition {
	if len(states) == 0 {
		return nil
	}
	common := states[0]
	for _, s := range states[1:] {
		common = pairwiseLCA(common, s)
		if common == nil {
			return nil
		}
	}
	return common
}

func pairwiseLCA(a, b *StateDefinition) *StateDefinition {
	ancestorsA := map[*StateDefinition]bool{a: true}
	for p := a.Parent; p != nil; p = p.Parent {
		ancestorsA[p] = true
	}
	if ancestorsA[b] {
		return b
	}
	for cur := b; cur != nil; cur = cur.Parent {
		if ancestorsA[cur] {
			return cur
		}
	}
	return nil
}

// NearestParallelAncestor walks up from s (inclusive) to the nearest
// Parallel state, or nil.
func NearestParallelAncestor(s *StateDefinition) *StateDefinition {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Type == Parallel {
			return cur
		}
	}
	return nil
}

// TransitionDefinition is a resolved transition: target plus ordered
// guards/calculators/actions.
type TransitionDefinition struct {
	Target      string // fully qualified target id; empty = internal transition
	TargetState *StateDefinition
	Guards      []BehaviorRef
	Calculators []BehaviorRef
	Actions     []BehaviorRef
}

// EventSource distinguishes externally sent events from internally emitted
// ones.
type EventSource int

const (
	External EventSource = iota
	Internal
)

func (s EventSource) String() string {
	if s == Internal {
		return "internal"
	}
	return "external"
}

// Event is a normalized event delivered to the engine.
type Event struct {
	Type      string
	Payload   map[string]any
	Source    EventSource
	Timestamp time.Time

	// Transactional makes Machine.Send tag every record the step appends
	// with Meta["transactional"] = true. Send opens no DB transaction of its
	// own around the step and its actions; the only transaction is the one
	// a store's Append uses for its batch, and a failed step is not rolled
	// back.
	Transactional bool
}

// MachineEvent is one durable record in the event log.
type MachineEvent struct {
	ID             string
	RootEventID    string
	SequenceNumber int
	CreatedAt      time.Time
	MachineID      string
	MachineValue   []string
	Source         EventSource
	Type           string
	Payload        map[string]any
	Version        int
	Context        map[string]any // incremental diff relative to the previous record
	Meta           map[string]any
}
