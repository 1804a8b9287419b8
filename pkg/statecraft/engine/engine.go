// Package engine implements the TransitionEngine step algorithm: given a
// compiled machine definition, a current State, and an Event, it produces
// the next State, honouring hierarchy, parallel regions, guarded
// alternatives, @always eventless transitions, onDone cascades, and
// actions that raise further events.
package engine

import (
	"fmt"
	"time"

	"github.com/statecraftio/statecraft/pkg/statecraft"
	"github.com/statecraftio/statecraft/pkg/statecraft/eventlog"
)

// MaxAlwaysIterations bounds the @always fixpoint loop. 64
// consecutive eventless transitions is generous for any machine with a
// acyclic @always chain and catches a misconfigured cycle quickly.
const MaxAlwaysIterations = 64

// Engine runs the step algorithm against a single MachineDefinition. It
// holds no per-instance state itself; every call takes the instance's
// current State explicitly, so one Engine is safely shared across workers.
type Engine struct {
	def *statecraft.MachineDefinition
}

// New returns an Engine bound to a compiled, immutable MachineDefinition.
func New(def *statecraft.MachineDefinition) *Engine {
	return &Engine{def: def}
}

// Step consumes an event against the current state and returns the new
// state. The returned State is a distinct value; cur is never
// mutated in place, so callers that need to retain the pre-step snapshot
// (e.g. for a transactional rollback) may do so freely.
func (e *Engine) Step(cur *statecraft.State, evt statecraft.Event) (*statecraft.State, error) {
	ctx := cur.Context
	if ctx != nil {
		ctx = ctx.Clone()
	}
	prev := snapshotContext(cur.Context)
	if len(cur.History) == 0 {
		// A fresh instance: the first record diffs against an empty
		// snapshot, so it carries the full context.
		prev = map[string]any{}
	}
	st := &run{
		def:           e.def,
		value:         append([]string(nil), cur.Value...),
		ctx:           ctx,
		history:       append([]statecraft.MachineEvent(nil), cur.History...),
		seq:           len(cur.History),
		prevEffective: prev,
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if err := st.process(evt); err != nil {
		return nil, err
	}
	leaves := st.leafDefs()
	newState := &statecraft.State{
		Value:                  st.value,
		Context:                st.ctx,
		CurrentStateDefinition: representativeStateDefinition(e.def, leaves),
		CurrentEventBehavior:   evt,
		History:                st.history,
	}
	return newState, nil
}

// run carries the mutable working set for a single Step call: value,
// context, and the growing history/raise queue. It is discarded at the end
// of Step.
type run struct {
	def     *statecraft.MachineDefinition
	value   []string
	ctx     statecraft.Context
	history []statecraft.MachineEvent
	seq     int
	raised  []statecraft.Event

	// prevEffective is the context as of the last recorded MachineEvent
	// (the full context, for the very first record of a fresh instance).
	// Each new record stores only DiffContext(prevEffective, current)
	// before prevEffective advances to match.
	prevEffective map[string]any
}

// snapshotContext deep-copies ctx's data so later mutations through
// ctx.Set/Remove can never retroactively change a diff already computed
// against this snapshot.
func snapshotContext(ctx statecraft.Context) map[string]any {
	if ctx == nil {
		return map[string]any{}
	}
	return ctx.Clone().AsMap()
}

func (r *run) process(evt statecraft.Event) error {
	r.recordExternal(evt)

	if err := r.dispatch(evt); err != nil {
		return err
	}
	if err := r.settleAlways(); err != nil {
		return err
	}

	for len(r.raised) > 0 {
		next := r.raised[0]
		r.raised = r.raised[1:]
		next.Source = statecraft.Internal
		if err := r.dispatch(next); err != nil {
			return err
		}
		if err := r.settleAlways(); err != nil {
			return err
		}
	}
	return nil
}

// dispatch resolves and executes (at most) one transition per active
// region for evt, then runs the onDone cascade.
func (r *run) dispatch(evt statecraft.Event) error {
	leaves := r.leafDefs()
	fired, err := r.fireForLeaves(leaves, evt)
	if err != nil {
		return err
	}
	if !fired {
		return nil
	}
	return r.cascadeOnDone()
}

// fireForLeaves groups active leaves by the nearest ancestor (inclusive)
// that declares a transition for evt.Type, so a transition declared above
// a parallel split fires exactly once and affects every leaf beneath it,
// while a transition declared on an individual region's own states affects
// only that region.
func (r *run) fireForLeaves(leaves []*statecraft.StateDefinition, evt statecraft.Event) (bool, error) {
	type group struct {
		source *statecraft.StateDefinition
		alt    *statecraft.TransitionDefinition
		leaves []*statecraft.StateDefinition
	}
	var groups []*group
	handled := make(map[*statecraft.StateDefinition]bool)

	for _, leaf := range leaves {
		if handled[leaf] {
			continue
		}
		source, alt, err := r.resolveCandidate(leaf, evt)
		if err != nil {
			return false, err
		}
		if source == nil || alt == nil {
			continue
		}
		var g *group
		for _, existing := range groups {
			if existing.source == source {
				g = existing
				break
			}
		}
		if g == nil {
			g = &group{source: source, alt: alt}
			groups = append(groups, g)
		}
		g.leaves = append(g.leaves, leaf)
		handled[leaf] = true
	}

	if len(groups) == 0 {
		return false, nil
	}
	for _, g := range groups {
		if err := r.executeTransition(g.source, g.alt, g.leaves, evt); err != nil {
			return false, err
		}
	}
	return true, nil
}

// resolveCandidate walks from leaf upward to find the nearest ancestor
// (inclusive) declaring a handler for evt.Type, resolves guarded
// alternatives in order, and returns the firing one. Once a state with a
// matching key is found, its resolution is final: if none of its
// alternatives fire, the search does not continue further up.
func (r *run) resolveCandidate(leaf *statecraft.StateDefinition, evt statecraft.Event) (*statecraft.StateDefinition, *statecraft.TransitionDefinition, error) {
	for cur := leaf; cur != nil; cur = cur.Parent {
		alts, ok := cur.Transitions[evt.Type]
		if !ok {
			continue
		}
		alt, err := r.resolveAlternatives(cur, alts, evt)
		if err != nil {
			return nil, nil, err
		}
		return cur, alt, nil // nil alt => declared but none fired: stop here, no candidate
	}
	return nil, nil, nil
}

// resolveAlternatives runs calculators then guards for each alternative in
// order and returns the first that fires, or nil if none do.
func (r *run) resolveAlternatives(from *statecraft.StateDefinition, alts []*statecraft.TransitionDefinition, evt statecraft.Event) (*statecraft.TransitionDefinition, error) {
	for _, alt := range alts {
		for _, ref := range alt.Calculators {
			calc, err := r.def.Behavior.ResolveCalculator(ref)
			if err != nil {
				return nil, err
			}
			if err := statecraft.CheckRequiredContext(ref.Name, calc, r.ctx); err != nil {
				return nil, err
			}
			val, err := calc.Calculate(r.ctx, evt)
			if err != nil {
				return nil, err
			}
			r.ctx.Set(ref.Name, val)
		}

		passed := true
		for _, ref := range alt.Guards {
			guard, err := r.def.Behavior.ResolveGuard(ref)
			if err != nil {
				return nil, err
			}
			if err := statecraft.CheckRequiredContext(ref.Name, guard, r.ctx); err != nil {
				return nil, err
			}
			ok, gerr := guard.Check(r.ctx, evt)
			message := messageFor(guard, gerr)
			if gerr != nil || !ok {
				r.recordInternal(statecraft.GuardFailEventType(r.def.ID, ref.Name), map[string]any{evt.Type: message})
				passed = false
				break
			}
			r.recordInternal(statecraft.GuardPassEventType(r.def.ID, ref.Name), map[string]any{evt.Type: "ok"})
		}
		if passed {
			return alt, nil
		}
	}
	return nil, nil
}

// messageFor produces the failure text recorded for a guard, preferring a
// MessagedGuard's own text over
// the raw Go error.
func messageFor(guard statecraft.Guard, err error) string {
	if mg, ok := guard.(interface{ Message() string }); ok {
		return mg.Message()
	}
	if err != nil {
		return err.Error()
	}
	return "guard failed"
}

// executeTransition runs the exit/transition/entry sequence for a firing
// alternative scoped to affectedLeaves and updates r.value.
func (r *run) executeTransition(source *statecraft.StateDefinition, alt *statecraft.TransitionDefinition, affectedLeaves []*statecraft.StateDefinition, evt statecraft.Event) error {
	if alt.Target == "" {
		// Internal transition: actions run, but nothing is exited/entered.
		return r.runActions(alt.Actions, evt)
	}

	lca := statecraft.NearestCommonAncestor(append(append([]*statecraft.StateDefinition{}, affectedLeaves...), alt.TargetState)...)

	exitSet := exitChain(affectedLeaves, lca)
	for _, st := range exitSet {
		r.recordInternal(statecraft.StateExitEventType(r.def.ID, st.Key), nil)
		if err := r.runActions(st.ExitActions, evt); err != nil {
			return err
		}
	}

	if err := r.runActions(alt.Actions, evt); err != nil {
		return err
	}

	entrySet := entryChainBelow(alt.TargetState, lca)
	newLeaves := initialLeavesChain(alt.TargetState)
	for _, st := range entrySet {
		if err := r.runActions(st.EntryActions, evt); err != nil {
			return err
		}
		r.recordInternal(statecraft.StateEnterEventType(r.def.ID, st.Key), nil)
	}

	fromKey := ""
	if len(affectedLeaves) > 0 {
		fromKey = affectedLeaves[0].Key
	}
	toKey := alt.TargetState.Key
	r.recordInternal(statecraft.TransitionEventType(r.def.ID, fromKey, evt.Type, toKey), nil)

	r.replaceLeaves(affectedLeaves, newLeaves)
	return nil
}

func (r *run) runActions(refs []statecraft.BehaviorRef, evt statecraft.Event) error {
	for _, ref := range refs {
		action, err := r.def.Behavior.ResolveAction(ref)
		if err != nil {
			return err
		}
		if err := statecraft.CheckRequiredContext(ref.Name, action, r.ctx); err != nil {
			return err
		}
		r.recordInternal(statecraft.ActionStartEventType(r.def.ID, ref.Name), nil)
		wrapped := statecraft.NewRaisingContext(r.ctx, &r.raised)
		if err := action.Run(wrapped, evt); err != nil {
			return fmt.Errorf("statecraft: action %q failed: %w", ref.Name, err)
		}
		r.recordInternal(statecraft.ActionFinishEventType(r.def.ID, ref.Name), nil)
	}
	return nil
}

// exitChain returns every ancestor of each affected leaf up to (not
// including) lca, leaf-first, deduplicated: exit actions of the exit set
// fire leaf first.
func exitChain(leaves []*statecraft.StateDefinition, lca *statecraft.StateDefinition) []*statecraft.StateDefinition {
	seen := make(map[*statecraft.StateDefinition]bool)
	var out []*statecraft.StateDefinition
	for _, leaf := range leaves {
		for cur := leaf; cur != nil && cur != lca; cur = cur.Parent {
			if seen[cur] {
				continue
			}
			seen[cur] = true
			out = append(out, cur)
		}
	}
	return out
}

// entryChainBelow returns the path from the state immediately below lca
// down to target, outermost first. When target is compound or parallel, the
// chain continues on to target's initial leaf/leaves via initialLeavesChain
// (step 6d).
func entryChainBelow(target, lca *statecraft.StateDefinition) []*statecraft.StateDefinition {
	var chain []*statecraft.StateDefinition
	for cur := target; cur != nil && cur != lca; cur = cur.Parent {
		chain = append([]*statecraft.StateDefinition{cur}, chain...)
	}
	if target.IsLeaf() {
		return chain
	}
	// target itself is compound/parallel: append the descent to its
	// initial leaves (excluding target, already in chain), outermost
	// (closest to target) first, so their entry actions fire in nesting
	// order too.
	seen := make(map[*statecraft.StateDefinition]bool, len(chain))
	for _, st := range chain {
		seen[st] = true
	}
	for _, leaf := range initialLeavesChain(target) {
		var descent []*statecraft.StateDefinition
		for cur := leaf; cur != nil && cur != target; cur = cur.Parent {
			descent = append([]*statecraft.StateDefinition{cur}, descent...)
		}
		for _, st := range descent {
			if !seen[st] {
				seen[st] = true
				chain = append(chain, st)
			}
		}
	}
	return chain
}

func initialLeavesChain(target *statecraft.StateDefinition) []*statecraft.StateDefinition {
	switch target.Type {
	case statecraft.Atomic, statecraft.Final:
		return []*statecraft.StateDefinition{target}
	case statecraft.Compound:
		child := target.Children[target.InitialChildKey]
		if child == nil {
			return []*statecraft.StateDefinition{target}
		}
		return initialLeavesChain(child)
	case statecraft.Parallel:
		var out []*statecraft.StateDefinition
		for _, key := range target.ChildOrder {
			out = append(out, initialLeavesChain(target.Children[key])...)
		}
		return out
	}
	return []*statecraft.StateDefinition{target}
}

func (r *run) replaceLeaves(oldLeaves, newLeaves []*statecraft.StateDefinition) {
	oldSet := make(map[string]bool, len(oldLeaves))
	for _, l := range oldLeaves {
		oldSet[l.ID] = true
	}
	filtered := r.value[:0]
	for _, v := range r.value {
		if !oldSet[v] {
			filtered = append(filtered, v)
		}
	}
	for _, nl := range newLeaves {
		filtered = append(filtered, nl.ID)
	}
	r.value = filtered
}

// cascadeOnDone fires onDone transitions for any compound/parallel
// ancestor whose active descendants have all settled into FINAL leaves
//, repeating since firing one onDone may itself
// complete an enclosing ancestor.
func (r *run) cascadeOnDone() error {
	for {
		leaves := r.leafDefs()
		ancestor, alt := r.findCompletedAncestor(leaves)
		if ancestor == nil {
			return nil
		}
		if err := r.executeTransition(ancestor, alt, descendantLeavesOf(ancestor, leaves), statecraft.Event{Type: "@done", Source: statecraft.Internal, Timestamp: time.Now()}); err != nil {
			return err
		}
	}
}

func (r *run) findCompletedAncestor(leaves []*statecraft.StateDefinition) (*statecraft.StateDefinition, *statecraft.TransitionDefinition) {
	checked := make(map[*statecraft.StateDefinition]bool)
	for _, leaf := range leaves {
		for cur := leaf.Parent; cur != nil; cur = cur.Parent {
			if checked[cur] {
				continue
			}
			checked[cur] = true
			if cur.OnDone == nil {
				continue
			}
			if isSettled(cur, leaves) {
				return cur, cur.OnDone
			}
		}
	}
	return nil, nil
}

// isSettled reports whether every currently active leaf beneath ancestor
// is a FINAL state: for Compound, its single active child leaf must be
// FINAL; for Parallel, every region's active leaf must be FINAL.
func isSettled(ancestor *statecraft.StateDefinition, leaves []*statecraft.StateDefinition) bool {
	descendants := descendantLeavesOf(ancestor, leaves)
	if len(descendants) == 0 {
		return false
	}
	for _, l := range descendants {
		if l.Type != statecraft.Final {
			return false
		}
	}
	if ancestor.Type == statecraft.Parallel {
		return len(descendants) == len(ancestor.ChildOrder)
	}
	return true
}

func descendantLeavesOf(ancestor *statecraft.StateDefinition, leaves []*statecraft.StateDefinition) []*statecraft.StateDefinition {
	var out []*statecraft.StateDefinition
	for _, l := range leaves {
		if ancestor.IsAncestorOf(l) {
			out = append(out, l)
		}
	}
	return out
}

// settleAlways implements the @always fixpoint: after
// any step that may have changed context, repeatedly check @always
// transitions from the new leaves upward until none fire, bounded by
// MaxAlwaysIterations.
func (r *run) settleAlways() error {
	for i := 0; i < MaxAlwaysIterations; i++ {
		leaves := r.leafDefs()
		evt := statecraft.Event{Type: statecraft.AlwaysEvent, Source: statecraft.Internal, Timestamp: time.Now()}
		fired, err := r.fireForLeaves(leaves, evt)
		if err != nil {
			return err
		}
		if !fired {
			return nil
		}
	}
	return &statecraft.AlwaysLoopExceeded{MachineID: r.def.ID, Value: append([]string(nil), r.value...)}
}

func (r *run) leafDefs() []*statecraft.StateDefinition {
	out := make([]*statecraft.StateDefinition, 0, len(r.value))
	for _, id := range r.value {
		if st, ok := r.def.IDMap[id]; ok {
			out = append(out, st)
		}
	}
	return out
}

func (r *run) recordExternal(evt statecraft.Event) {
	r.seq++
	r.history = append(r.history, statecraft.MachineEvent{
		ID:             statecraft.NewULID(),
		SequenceNumber: r.seq,
		CreatedAt:      evt.Timestamp,
		MachineID:      r.def.ID,
		MachineValue:   append([]string(nil), r.value...),
		Source:         evt.Source,
		Type:           evt.Type,
		Payload:        evt.Payload,
		Context:        r.contextDiff(),
		Version:        1,
	})
}

func (r *run) recordInternal(eventType string, payload map[string]any) {
	r.seq++
	r.history = append(r.history, statecraft.MachineEvent{
		ID:             statecraft.NewULID(),
		SequenceNumber: r.seq,
		CreatedAt:      time.Now(),
		MachineID:      r.def.ID,
		MachineValue:   append([]string(nil), r.value...),
		Source:         statecraft.Internal,
		Type:           eventType,
		Payload:        payload,
		Context:        r.contextDiff(),
		Version:        1,
	})
}

// contextDiff returns the recursive diff between the context as of the
// previously recorded event and its current value, then advances
// prevEffective so the next record's diff is relative to this one. Every
// record gets one, including the first: diffing against an empty starting
// snapshot naturally yields the full context.
func (r *run) contextDiff() map[string]any {
	cur := snapshotContext(r.ctx)
	diff := eventlog.DiffContext(r.prevEffective, cur)
	r.prevEffective = cur
	if len(diff) == 0 {
		return nil
	}
	return diff
}

func representativeStateDefinition(def *statecraft.MachineDefinition, leaves []*statecraft.StateDefinition) *statecraft.StateDefinition {
	if len(leaves) == 0 {
		return def.Root
	}
	if len(leaves) == 1 {
		return leaves[0]
	}
	lca := statecraft.NearestCommonAncestor(leaves...)
	for cur := lca; cur != nil; cur = cur.Parent {
		if cur.Type == statecraft.Parallel {
			return cur
		}
	}
	return def.Root
}
