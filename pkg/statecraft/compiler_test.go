package statecraft

import "testing"

func trafficLightConfig() RawConfig {
	return RawConfig{
		"id":      "light",
		"initial": "red",
		"states": RawConfig{
			"red": RawConfig{
				"on": RawConfig{
					"TIMER": "green",
				},
			},
			"green": RawConfig{
				"on": RawConfig{
					"TIMER": "yellow",
				},
			},
			"yellow": RawConfig{
				"on": RawConfig{
					"TIMER": "red",
				},
			},
		},
	}
}

func TestCompileBuildsCompoundTree(t *testing.T) {
	def, err := Compile(trafficLightConfig(), NewBehaviorRegistry())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if def.Root.Type != Compound {
		t.Fatalf("expected root to default to compound, got %v", def.Root.Type)
	}
	if len(def.Root.ChildOrder) != 3 {
		t.Fatalf("expected 3 children, got %d", len(def.Root.ChildOrder))
	}
	red, ok := def.IDMap["light.red"]
	if !ok {
		t.Fatalf("expected light.red in IDMap")
	}
	alts, ok := red.Transitions["TIMER"]
	if !ok || len(alts) != 1 {
		t.Fatalf("expected one TIMER alternative on red, got %#v", red.Transitions)
	}
	if alts[0].TargetState == nil || alts[0].TargetState.ID != "light.green" {
		t.Fatalf("expected TIMER to target light.green, got %#v", alts[0].TargetState)
	}
	if def.Root.InitialLeaves[0] != "light.red" {
		t.Fatalf("expected initial leaves [light.red], got %#v", def.Root.InitialLeaves)
	}
}

func TestCompileRejectsUnknownStateType(t *testing.T) {
	raw := RawConfig{
		"id":      "m",
		"initial": "a",
		"states": RawConfig{
			"a": RawConfig{"type": "bogus"},
		},
	}
	if _, err := Compile(raw, NewBehaviorRegistry()); err == nil {
		t.Fatalf("expected an error for an unknown state type")
	}
}

func TestCompileRejectsUnresolvedTransitionTarget(t *testing.T) {
	raw := RawConfig{
		"id":      "m",
		"initial": "a",
		"states": RawConfig{
			"a": RawConfig{
				"on": RawConfig{"GO": "nowhere"},
			},
		},
	}
	if _, err := Compile(raw, NewBehaviorRegistry()); err == nil {
		t.Fatalf("expected an error for an unresolved transition target")
	}
}

func TestCompileParallelRegionsUnionInitialLeaves(t *testing.T) {
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
	if def.Root.Type != Parallel {
		t.Fatalf("expected parallel root")
	}
	if len(def.Root.InitialLeaves) != 2 {
		t.Fatalf("expected 2 initial leaves across both regions, got %#v", def.Root.InitialLeaves)
	}
}

func TestParseBehaviorRefSplitsOnFirstColon(t *testing.T) {
	ref := ParseBehaviorRef("checkChannel:direct_cash:v2")
	if ref.Name != "checkChannel" || ref.Arg != "direct_cash:v2" {
		t.Fatalf("unexpected split: %#v", ref)
	}
	bare := ParseBehaviorRef("simple")
	if bare.Name != "simple" || bare.Arg != "" {
		t.Fatalf("unexpected bare ref: %#v", bare)
	}
}
