package statecraft

import "testing"

func compileParallelSwitch(t *testing.T) *MachineDefinition {
	t.Helper()
	raw := RawConfig{
		"id":   "m",
		"type": "parallel",
		"states": RawConfig{
			"left": RawConfig{
				"initial": "on",
				"states": RawConfig{
					"on":  RawConfig{},
					"off": RawConfig{},
				},
			},
			"right": RawConfig{
				"initial": "idle",
				"states": RawConfig{
					"idle": RawConfig{},
					"busy": RawConfig{},
				},
			},
		},
	}
	def, err := Compile(raw, NewBehaviorRegistry())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return def
}

func TestStateLeavesResolvesValueToStateDefinitions(t *testing.T) {
	def := compileLight(t)
	state := &State{Value: def.Root.InitialLeaves}

	leaves := state.Leaves(def)
	if len(leaves) != 1 || leaves[0].Key != "red" {
		t.Fatalf("expected the single red leaf, got %#v", leaves)
	}
}

func TestStateLeavesSkipsUnknownIDs(t *testing.T) {
	def := compileLight(t)
	state := &State{Value: []string{"does.not.exist"}}

	if leaves := state.Leaves(def); len(leaves) != 0 {
		t.Fatalf("expected no leaves for an unresolvable id, got %#v", leaves)
	}
}

func TestStateMatchesSuffixAgainstAllWantedValues(t *testing.T) {
	state := &State{Value: []string{"light.red"}}
	if !state.Matches("red") {
		t.Fatalf("expected a suffix match against red")
	}
	if state.Matches("green") {
		t.Fatalf("expected no match against an absent suffix")
	}
	if !state.Matches("light.red", "red") {
		t.Fatalf("expected all wanted suffixes to be satisfied")
	}
}

func TestRepresentativeStateDefinitionSingleLeafIsTheLeafItself(t *testing.T) {
	def := compileLight(t)
	leaf := def.IDMap[def.Root.InitialLeaves[0]]

	got := representativeStateDefinition(def, []*StateDefinition{leaf})
	if got != leaf {
		t.Fatalf("expected the single leaf itself, got %#v", got)
	}
}

func TestRepresentativeStateDefinitionParallelLeavesResolveToNearestParallelAncestor(t *testing.T) {
	def := compileParallelSwitch(t)
	leaves := (&State{Value: def.Root.InitialLeaves}).Leaves(def)

	got := representativeStateDefinition(def, leaves)
	if got != def.Root {
		t.Fatalf("expected the parallel root as the representative state, got %#v", got)
	}
}

func TestRepresentativeStateDefinitionEmptyLeavesFallsBackToRoot(t *testing.T) {
	def := compileLight(t)
	if got := representativeStateDefinition(def, nil); got != def.Root {
		t.Fatalf("expected root for an empty leaf set, got %#v", got)
	}
}
