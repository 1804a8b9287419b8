package statecraft

import (
	"fmt"
	"sort"
	"strings"
)

// Visualizer renders a compiled MachineDefinition as a diagram or reports
// structural lint warnings, walking the compiled StateDefinition tree
// (hierarchy, parallel regions, guarded alternatives) rather than a flat
// state map.
type Visualizer struct {
	def *MachineDefinition
}

// NewVisualizer returns a Visualizer for def.
func NewVisualizer(def *MachineDefinition) *Visualizer {
	return &Visualizer{def: def}
}

// initialTarget returns the fully-qualified id of the root's initial child,
// or "" when the root is PARALLEL (no single initial child to point to).
func (v *Visualizer) initialTarget() string {
	if v.def.Root.InitialChildKey == "" {
		return ""
	}
	child, ok := v.def.Root.Children[v.def.Root.InitialChildKey]
	if !ok {
		return ""
	}
	return child.ID
}

// sortedIDs returns every compiled state id in a deterministic order.
func (v *Visualizer) sortedIDs() []string {
	ids := make([]string, 0, len(v.def.IDMap))
	for id := range v.def.IDMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ToMermaid renders a stateDiagram-v2 block. Compound/parallel states
// render as composite blocks; parallel children are separated by "--".
func (v *Visualizer) ToMermaid() string {
	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("stateDiagram-v2\n")

	var walk func(st *StateDefinition, indent string)
	walk = func(st *StateDefinition, indent string) {
		if len(st.ChildOrder) == 0 {
			return
		}
		fmt.Fprintf(&sb, "%sstate %s {\n", indent, mermaidID(st.ID))
		if st.Type == Compound && st.InitialChildKey != "" {
			fmt.Fprintf(&sb, "%s    [*] --> %s\n", indent, mermaidID(st.Children[st.InitialChildKey].ID))
		}
		children := st.OrderedChildren()
		for i, child := range children {
			if st.Type == Parallel && i > 0 {
				fmt.Fprintf(&sb, "%s    --\n", indent)
			}
			walk(child, indent+"    ")
		}
		fmt.Fprintf(&sb, "%s}\n", indent)
	}
	walk(v.def.Root, "")

	if start := v.initialTarget(); start != "" {
		fmt.Fprintf(&sb, "[*] --> %s\n", mermaidID(start))
	}
	for _, id := range v.sortedIDs() {
		st := v.def.IDMap[id]
		if st.Type == Final {
			fmt.Fprintf(&sb, "%s --> [*]\n", mermaidID(st.ID))
		}
		for evt, alts := range st.Transitions {
			for _, alt := range alts {
				label := evt
				if len(alt.Guards) > 0 {
					label += " [guarded]"
				}
				target := st.ID
				if alt.TargetState != nil {
					target = alt.TargetState.ID
				}
				fmt.Fprintf(&sb, "%s --> %s : %s\n", mermaidID(st.ID), mermaidID(target), label)
			}
		}
	}
	sb.WriteString("```\n")
	return sb.String()
}

func mermaidID(id string) string {
	return strings.NewReplacer(".", "_", ":", "_").Replace(id)
}

// ToASCII renders a flat, indented listing of every compiled state and its
// transitions.
func (v *Visualizer) ToASCII() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Machine: %s\n", v.def.ID)
	sb.WriteString(strings.Repeat("=", 60) + "\n\n")

	for _, id := range v.sortedIDs() {
		st := v.def.IDMap[id]
		marker := ""
		switch st.Type {
		case Final:
			marker = " (final)"
		case Parallel:
			marker = " (parallel)"
		case Compound:
			marker = " (compound)"
		}
		fmt.Fprintf(&sb, "  * %s%s\n", st.ID, marker)
		for _, evt := range sortedKeys(st.Transitions) {
			for _, alt := range st.Transitions[evt] {
				guardMarker := ""
				if len(alt.Guards) > 0 {
					guardMarker = " [guarded]"
				}
				actionMarker := ""
				if len(alt.Actions) > 0 {
					actionMarker = " [action]"
				}
				target := "(internal)"
				if alt.TargetState != nil {
					target = alt.TargetState.ID
				}
				fmt.Fprintf(&sb, "      %s -> %s%s%s\n", evt, target, guardMarker, actionMarker)
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func sortedKeys(m map[string][]*TransitionDefinition) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ToGraphviz renders a DOT digraph, doublecircle for final states.
func (v *Visualizer) ToGraphviz() string {
	var sb strings.Builder
	sb.WriteString("digraph StateMachine {\n  rankdir=LR;\n  node [shape=circle];\n\n")
	sb.WriteString("  start [shape=point];\n")
	if start := v.initialTarget(); start != "" {
		fmt.Fprintf(&sb, "  start -> %q;\n\n", start)
	}

	for _, id := range v.sortedIDs() {
		st := v.def.IDMap[id]
		shape := "circle"
		switch st.Type {
		case Final:
			shape = "doublecircle"
		case Compound, Parallel:
			shape = "box"
		}
		fmt.Fprintf(&sb, "  %q [shape=%s];\n", st.ID, shape)
		for evt, alts := range st.Transitions {
			for _, alt := range alts {
				label := evt
				if len(alt.Guards) > 0 {
					label += "\\n[guard]"
				}
				target := st.ID
				if alt.TargetState != nil {
					target = alt.TargetState.ID
				}
				fmt.Fprintf(&sb, "  %q -> %q [label=%q];\n", st.ID, target, label)
			}
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// ToJSON renders a nodes/edges document suitable for a generic graph
// viewer.
func (v *Visualizer) ToJSON() string {
	var nodes, edges []string
	for _, id := range v.sortedIDs() {
		st := v.def.IDMap[id]
		nodeType := "normal"
		switch {
		case st == v.def.Root:
			nodeType = "root"
		case st.Type == Final:
			nodeType = "final"
		}
		nodes = append(nodes, fmt.Sprintf(`{"id":%q,"type":%q,"stateType":%q}`, st.ID, nodeType, st.Type.String()))
		for evt, alts := range st.Transitions {
			for _, alt := range alts {
				target := st.ID
				if alt.TargetState != nil {
					target = alt.TargetState.ID
				}
				edges = append(edges, fmt.Sprintf(`{"from":%q,"to":%q,"event":%q,"guarded":%t}`,
					st.ID, target, evt, len(alt.Guards) > 0))
			}
		}
	}
	return fmt.Sprintf(`{"nodes":[%s],"edges":[%s]}`, strings.Join(nodes, ","), strings.Join(edges, ","))
}

// GetStats summarises the compiled definition.
func (v *Visualizer) GetStats() map[string]any {
	transitionCount, finalCount, parallelCount := 0, 0, 0
	for _, st := range v.def.IDMap {
		transitionCount += len(st.UniqueEventTypes)
		if st.Type == Final {
			finalCount++
		}
		if st.Type == Parallel {
			parallelCount++
		}
	}
	return map[string]any{
		"id":              v.def.ID,
		"version":         v.def.Version,
		"stateCount":      len(v.def.IDMap),
		"transitionCount": transitionCount,
		"finalStateCount": finalCount,
		"parallelCount":   parallelCount,
	}
}

// Validate reports structural lint warnings: unreachable states, atomic
// dead-ends with no outgoing transitions, and duplicate event handlers on
// the same state.
func (v *Visualizer) Validate() []string {
	var issues []string

	reachable := map[string]bool{v.def.Root.ID: true}
	queue := []*StateDefinition{v.def.Root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range cur.OrderedChildren() {
			if !reachable[child.ID] {
				reachable[child.ID] = true
				queue = append(queue, child)
			}
		}
		for _, alts := range cur.Transitions {
			for _, alt := range alts {
				if alt.TargetState != nil && !reachable[alt.TargetState.ID] {
					reachable[alt.TargetState.ID] = true
					queue = append(queue, alt.TargetState)
				}
			}
		}
	}
	for _, id := range v.sortedIDs() {
		if !reachable[id] {
			issues = append(issues, fmt.Sprintf("state %q is unreachable", id))
		}
	}

	for _, id := range v.sortedIDs() {
		st := v.def.IDMap[id]
		if st.IsLeaf() && st.Type != Final && len(st.Transitions) == 0 {
			issues = append(issues, fmt.Sprintf("state %q has no outgoing transitions and is not final", id))
		}
	}

	for _, id := range v.sortedIDs() {
		st := v.def.IDMap[id]
		for evt, alts := range st.Transitions {
			unguarded := 0
			for _, alt := range alts {
				if len(alt.Guards) == 0 {
					unguarded++
				}
			}
			if unguarded > 1 {
				issues = append(issues, fmt.Sprintf("state %q has %d unconditional transitions for event %q", id, unguarded, evt))
			}
		}
	}

	return issues
}
