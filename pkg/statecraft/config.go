package statecraft

import (
	"fmt"
)

// ValidateConfig enforces the structural rules of a raw configuration map,
// independent of any BehaviorRegistry. It never touches
// the network or a database; Compile calls it before attempting to build a
// StateDefinition tree.
func ValidateConfig(raw RawConfig) error {
	v := &configValidator{}
	return v.validateMachine(raw)
}

var machineLevelKeys = map[string]bool{
	"id": true, "delimiter": true, "version": true, "initial": true,
	"states": true, "on": true, "entry": true, "exit": true, "type": true,
	"meta": true, "shouldPersist": true, "scenariosEnabled": true,
	"scenarios": true, "done": true, "result": true,
}

var stateLevelKeys = map[string]bool{
	"type": true, "initial": true, "states": true, "on": true,
	"entry": true, "exit": true, "meta": true, "done": true, "result": true,
}

var transitionAltKeys = map[string]bool{
	"target": true, "guards": true, "calculators": true, "actions": true,
}

type configValidator struct{}

func (v *configValidator) validateMachine(raw RawConfig) error {
	for k := range raw {
		if !machineLevelKeys[k] {
			return &ConfigError{Path: []string{k}, Message: "unknown key at root level"}
		}
	}
	statesRaw, hasStates := raw["states"]
	if !hasStates {
		return &ConfigError{Path: []string{"states"}, Message: "root must declare states"}
	}
	states, ok := statesRaw.(RawConfig)
	if !ok {
		return &ConfigError{Path: []string{"states"}, Message: "states must be a map"}
	}
	stateType := "compound"
	if t, ok := raw["type"].(string); ok {
		stateType = t
	}
	return v.validateState([]string{"root"}, stateType, raw, states)
}

// validateState validates one state's own keys and recurses into children.
// node is the full raw map for this state (carries initial/on/entry/exit/etc);
// children is node["states"] already type-asserted (nil for leaf kinds).
func (v *configValidator) validateState(path []string, stateType string, node RawConfig, children RawConfig) error {
	isRoot := len(path) == 1 && path[0] == "root"
	if !isRoot {
		for k := range node {
			if !stateLevelKeys[k] {
				return &ConfigError{Path: append(clonePath(path), k), Message: "unknown key at state level"}
			}
		}
	}

	switch stateType {
	case "final":
		if _, ok := node["on"]; ok {
			return &ConfigError{Path: append(clonePath(path), "on"), Message: "FINAL state must not declare transitions"}
		}
		if _, ok := node["states"]; ok {
			return &ConfigError{Path: append(clonePath(path), "states"), Message: "FINAL state must not declare children"}
		}
	case "parallel":
		if _, ok := node["initial"]; ok {
			return &ConfigError{Path: append(clonePath(path), "initial"), Message: "PARALLEL state must not declare initial"}
		}
		if len(children) == 0 {
			return &ConfigError{Path: append(clonePath(path), "states"), Message: "PARALLEL state requires at least one region"}
		}
	case "compound":
		initial, ok := node["initial"].(string)
		if !ok || initial == "" {
			return &ConfigError{Path: append(clonePath(path), "initial"), Message: "COMPOUND state requires an initial child name"}
		}
		if _, exists := children[initial]; len(children) > 0 && !exists {
			return &ConfigError{Path: append(clonePath(path), "initial"), Message: fmt.Sprintf("initial %q is not a declared child", initial)}
		}
	case "atomic":
		if len(children) > 0 {
			return &ConfigError{Path: append(clonePath(path), "states"), Message: "ATOMIC state must not declare children"}
		}
	default:
		return &ConfigError{Path: append(clonePath(path), "type"), Message: fmt.Sprintf("unknown state type %q", stateType)}
	}

	if on, ok := node["on"]; ok {
		onMap, ok := on.(RawConfig)
		if !ok {
			return &ConfigError{Path: append(clonePath(path), "on"), Message: "on must be a map of event type to transition"}
		}
		for evt, t := range onMap {
			if err := v.validateTransitionValue(append(clonePath(path), "on", evt), evt, t); err != nil {
				return err
			}
		}
	}

	for _, key := range []string{"entry", "exit"} {
		if raw, ok := node[key]; ok {
			switch raw.(type) {
			case string, []any, RawConfig:
			default:
				return &ConfigError{Path: append(clonePath(path), key), Message: key + " must be a string, a list, or a single behavior reference"}
			}
		}
	}

	if done, ok := node["done"]; ok {
		if _, ok := done.(RawConfig); !ok {
			return &ConfigError{Path: append(clonePath(path), "done"), Message: "done must be a transition object"}
		}
	}

	for key, childRaw := range children {
		childMap, ok := childRaw.(RawConfig)
		if !ok {
			return &ConfigError{Path: append(clonePath(path), key), Message: "state must be a map"}
		}
		childType := "atomic"
		if t, ok := childMap["type"].(string); ok {
			childType = t
		} else if _, hasGrand := childMap["states"]; hasGrand {
			childType = "compound"
		}
		var grandchildren RawConfig
		if gc, ok := childMap["states"].(RawConfig); ok {
			grandchildren = gc
		}
		if err := v.validateState(append(clonePath(path), key), childType, childMap, grandchildren); err != nil {
			return err
		}
	}
	return nil
}

// validateTransitionValue validates a single "on" entry, which may be a bare
// target string, a single transition object, or an ordered list of guarded
// alternatives.
func (v *configValidator) validateTransitionValue(path []string, eventType string, raw any) error {
	switch t := raw.(type) {
	case string:
		return nil // bare target shorthand
	case RawConfig:
		return v.validateTransitionAlt(path, t)
	case []any:
		if len(t) == 0 {
			return &ConfigError{Path: path, Message: "guarded-alternative list must not be empty"}
		}
		for i, altRaw := range t {
			alt, ok := altRaw.(RawConfig)
			if !ok {
				return &ConfigError{Path: append(clonePath(path), fmt.Sprint(i)), Message: "alternative must be a transition object"}
			}
			if err := v.validateTransitionAlt(append(clonePath(path), fmt.Sprint(i)), alt); err != nil {
				return err
			}
			_, hasGuards := alt["guards"]
			isLast := i == len(t)-1
			if !hasGuards && !isLast {
				return &ConfigError{Path: append(clonePath(path), fmt.Sprint(i)), Message: "only the last alternative may omit guards"}
			}
		}
		return nil
	default:
		return &ConfigError{Path: path, Message: "transition must be a string, an object, or a list of alternatives"}
	}
}

func (v *configValidator) validateTransitionAlt(path []string, alt RawConfig) error {
	for k := range alt {
		if !transitionAltKeys[k] {
			return &ConfigError{Path: append(clonePath(path), k), Message: "unknown key in transition alternative"}
		}
	}
	return nil
}

func clonePath(path []string) []string {
	out := make([]string, len(path))
	copy(out, path)
	return out
}
