package statecraft

import (
	"fmt"
)

// Compile turns a validated raw configuration into an immutable
// MachineDefinition. It runs ValidateConfig first, then builds
// the StateDefinition tree in a single pass (recording ids as it goes),
// then wires transitions in a second pass so a transition's target may name
// a sibling that had not yet been visited in pass one.
func Compile(raw RawConfig, registry *BehaviorRegistry) (*MachineDefinition, error) {
	if err := ValidateConfig(raw); err != nil {
		return nil, err
	}

	id := "machine"
	if s, ok := raw["id"].(string); ok && s != "" {
		id = s
	}
	delimiter := byte('.')
	if s, ok := raw["delimiter"].(string); ok && len(s) == 1 {
		delimiter = s[0]
	}
	version, _ := raw["version"].(string)

	shouldPersist := true
	if b, ok := raw["shouldPersist"].(bool); ok {
		shouldPersist = b
	}
	scenariosEnabled, _ := raw["scenariosEnabled"].(bool)
	var scenarios map[string]RawConfig
	if raw2, ok := raw["scenarios"].(RawConfig); ok {
		scenarios = make(map[string]RawConfig, len(raw2))
		for k, v := range raw2 {
			if m, ok := v.(RawConfig); ok {
				scenarios[k] = m
			}
		}
	}

	def := &MachineDefinition{
		ID:               id,
		Delimiter:        delimiter,
		Version:          version,
		IDMap:            make(map[string]*StateDefinition),
		Behavior:         registry,
		ShouldPersist:    shouldPersist,
		ScenariosEnabled: scenariosEnabled,
		Scenarios:        scenarios,
	}

	c := &compileSession{def: def, delim: string(delimiter), rootRaw: raw}

	rootType := "compound"
	if t, ok := raw["type"].(string); ok {
		rootType = t
	}
	root, err := c.buildState(id, rootType, raw)
	if err != nil {
		return nil, err
	}
	def.Root = root

	if err := c.wireTransitions(root, registry); err != nil {
		return nil, err
	}
	for _, st := range def.IDMap {
		precomputeState(st)
	}
	return def, nil
}

type compileSession struct {
	def     *MachineDefinition
	delim   string
	rootRaw RawConfig
}

// buildState is pass one: constructs the tree and populates IDMap, without
// resolving transition targets (which may not exist yet).
func (c *compileSession) buildState(fqid, stateType string, node RawConfig) (*StateDefinition, error) {
	var typ StateType
	switch stateType {
	case "atomic", "":
		typ = Atomic
	case "compound":
		typ = Compound
	case "parallel":
		typ = Parallel
	case "final":
		typ = Final
	default:
		return nil, &ConfigError{Path: []string{fqid}, Message: fmt.Sprintf("unknown state type %q", stateType)}
	}

	key := fqid
	if idx := lastIndexByte(fqid, c.delim[0]); idx >= 0 {
		key = fqid[idx+1:]
	}

	st := &StateDefinition{
		ID:       fqid,
		Key:      key,
		Type:     typ,
		Children: make(map[string]*StateDefinition),
	}
	if meta, ok := node["meta"].(RawConfig); ok {
		st.Meta = meta
	}
	if resultRaw, ok := node["result"].(string); ok && typ == Final {
		ref := ParseBehaviorRef(resultRaw)
		st.Result = &ref
	}
	st.EntryActions = parseBehaviorList(node["entry"])
	st.ExitActions = parseBehaviorList(node["exit"])

	if initial, ok := node["initial"].(string); ok {
		st.InitialChildKey = initial
	}

	c.def.IDMap[fqid] = st

	if childrenRaw, ok := node["states"].(RawConfig); ok {
		for key, childRaw := range childrenRaw {
			childMap := childRaw.(RawConfig)
			childFQID := fqid + c.delim + key
			childType := "atomic"
			if t, ok := childMap["type"].(string); ok {
				childType = t
			} else if _, hasGrandchildren := childMap["states"]; hasGrandchildren {
				childType = "compound"
			}
			child, err := c.buildState(childFQID, childType, childMap)
			if err != nil {
				return nil, err
			}
			child.Parent = st
			st.Children[key] = child
			st.ChildOrder = append(st.ChildOrder, key)
		}
	}
	return st, nil
}

// wireTransitions is pass two: resolves "on"/"done" entries into
// TransitionDefinition values whose Target now definitely exists in IDMap.
func (c *compileSession) wireTransitions(st *StateDefinition, registry *BehaviorRegistry) error {
	node := c.rawNodeFor(st)
	st.Transitions = make(map[string][]*TransitionDefinition)

	if onRaw, ok := node["on"]; ok {
		onMap := onRaw.(RawConfig)
		for evtKey, transRaw := range onMap {
			evtType := c.resolveEventType(evtKey, registry)
			alts, err := c.parseTransitionValue(st, transRaw)
			if err != nil {
				return err
			}
			st.Transitions[evtType] = alts
		}
	}

	if doneRaw, ok := node["done"].(RawConfig); ok {
		alts, err := c.parseTransitionValue(st, doneRaw)
		if err != nil {
			return err
		}
		if len(alts) > 0 {
			st.OnDone = alts[0]
		}
	}

	for _, child := range st.Children {
		if err := c.wireTransitions(child, registry); err != nil {
			return err
		}
	}
	return nil
}

// rawNodeFor re-walks raw config to fetch the node for a compiled state.
// The compiler keeps the original tree around only transiently (it is
// discarded after Compile returns), so this mirrors buildState's descent
// using the already-known key path instead of storing raw pointers on
// StateDefinition, which must remain config-free.
func (c *compileSession) rawNodeFor(st *StateDefinition) RawConfig {
	var segments []string
	for cur := st; cur.Parent != nil; cur = cur.Parent {
		segments = append([]string{cur.Key}, segments...)
	}
	node := c.rootRaw
	for _, seg := range segments {
		children := node["states"].(RawConfig)
		node = children[seg].(RawConfig)
	}
	return node
}

func (c *compileSession) resolveEventType(key string, registry *BehaviorRegistry) string {
	if key == AlwaysEvent {
		return AlwaysEvent
	}
	if registry != nil {
		return registry.ResolveEventType(key)
	}
	return key
}

func (c *compileSession) parseTransitionValue(from *StateDefinition, raw any) ([]*TransitionDefinition, error) {
	switch t := raw.(type) {
	case string:
		td, err := c.resolveTransitionAlt(RawConfig{"target": t})
		if err != nil {
			return nil, err
		}
		return []*TransitionDefinition{td}, nil
	case RawConfig:
		td, err := c.resolveTransitionAlt(t)
		if err != nil {
			return nil, err
		}
		return []*TransitionDefinition{td}, nil
	case []any:
		out := make([]*TransitionDefinition, 0, len(t))
		for _, altRaw := range t {
			alt := altRaw.(RawConfig)
			td, err := c.resolveTransitionAlt(alt)
			if err != nil {
				return nil, err
			}
			out = append(out, td)
		}
		return out, nil
	}
	return nil, &ConfigError{Path: []string{from.ID}, Message: "unrecognized transition shape"}
}

func (c *compileSession) resolveTransitionAlt(alt RawConfig) (*TransitionDefinition, error) {
	td := &TransitionDefinition{}
	if targetRaw, ok := alt["target"]; ok {
		target, ok := targetRaw.(string)
		if !ok {
			return nil, &ConfigError{Message: "target must be a string"}
		}
		fqTarget := c.qualify(target)
		st, ok := c.def.IDMap[fqTarget]
		if !ok {
			return nil, &ConfigError{Path: []string{target}, Message: fmt.Sprintf("transition target %q does not resolve", target)}
		}
		td.Target = fqTarget
		td.TargetState = st
	}
	td.Guards = parseBehaviorList(alt["guards"])
	td.Calculators = parseBehaviorList(alt["calculators"])
	td.Actions = parseBehaviorList(alt["actions"])
	return td, nil
}

// qualify resolves a possibly-relative target name to a fully qualified id.
// Targets given with the machine's delimiter are already fully qualified;
// a bare name is looked up by exact suffix match against known ids.
func (c *compileSession) qualify(target string) string {
	if _, ok := c.def.IDMap[target]; ok {
		return target
	}
	suffix := c.delim + target
	for id := range c.def.IDMap {
		if hasSuffix(id, suffix) || id == target {
			return id
		}
	}
	return target
}

func parseBehaviorList(raw any) []BehaviorRef {
	switch t := raw.(type) {
	case nil:
		return nil
	case string:
		return []BehaviorRef{ParseBehaviorRef(t)}
	case []any:
		out := make([]BehaviorRef, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, ParseBehaviorRef(s))
			}
		}
		return out
	case RawConfig:
		if name, ok := t["name"].(string); ok {
			arg, _ := t["arg"].(string)
			return []BehaviorRef{{Name: name, Arg: arg}}
		}
	}
	return nil
}

// precomputeState fills UniqueEventTypes and InitialLeaves.
func precomputeState(st *StateDefinition) {
	seen := make(map[string]bool)
	for evt := range st.Transitions {
		seen[evt] = true
	}
	st.UniqueEventTypes = make([]string, 0, len(seen))
	for evt := range seen {
		st.UniqueEventTypes = append(st.UniqueEventTypes, evt)
	}
	st.InitialLeaves = initialLeavesOf(st)
}

// initialLeavesOf recursively computes the initial active leaf set for a
// state: itself if atomic/final; its initial child's leaves if compound;
// the union of every region's initial leaves if parallel.
func initialLeavesOf(st *StateDefinition) []string {
	switch st.Type {
	case Atomic, Final:
		return []string{st.ID}
	case Compound:
		if st.InitialChildKey == "" {
			return nil
		}
		child := st.Children[st.InitialChildKey]
		if child == nil {
			return nil
		}
		return initialLeavesOf(child)
	case Parallel:
		var leaves []string
		for _, key := range st.ChildOrder {
			leaves = append(leaves, initialLeavesOf(st.Children[key])...)
		}
		return leaves
	}
	return nil
}

func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
