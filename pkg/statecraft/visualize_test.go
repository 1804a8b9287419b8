package statecraft

import "testing"

func compileLight(t *testing.T) *MachineDefinition {
	t.Helper()
	raw := RawConfig{
		"id":      "light",
		"initial": "red",
		"states": RawConfig{
			"red":    RawConfig{"on": RawConfig{"TIMER": "green"}},
			"green":  RawConfig{"on": RawConfig{"TIMER": "yellow"}},
			"yellow": RawConfig{"on": RawConfig{"TIMER": "red"}},
		},
	}
	def, err := Compile(raw, NewBehaviorRegistry())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return def
}

func TestVisualizerGetStats(t *testing.T) {
	def := compileLight(t)
	stats := NewVisualizer(def).GetStats()
	if stats["id"] != "light" {
		t.Fatalf("expected id light, got %#v", stats["id"])
	}
	if stats["stateCount"] != 4 {
		t.Fatalf("expected 4 states (root + 3 children), got %#v", stats["stateCount"])
	}
}

func TestVisualizerToMermaidIncludesStatesAndTransitions(t *testing.T) {
	def := compileLight(t)
	out := NewVisualizer(def).ToMermaid()
	for _, want := range []string{"stateDiagram-v2", "light_red", "light_green", "TIMER"} {
		if !containsSubstring(out, want) {
			t.Fatalf("expected mermaid output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestVisualizerToGraphvizHandlesParallelRootWithoutPanicking(t *testing.T) {
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
	v := NewVisualizer(def)
	// Must not panic despite the parallel root having no single initial child.
	_ = v.ToGraphviz()
	_ = v.ToMermaid()
}

func TestVisualizerValidateFlagsDeadEndAndDuplicateTransitions(t *testing.T) {
	raw := RawConfig{
		"id":      "m",
		"initial": "a",
		"states": RawConfig{
			"a": RawConfig{
				"on": RawConfig{"GO": "b"},
			},
			"b": RawConfig{},
			"c": RawConfig{},
		},
	}
	def, err := Compile(raw, NewBehaviorRegistry())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// Compile rejects two unguarded alternatives for one event, so the
	// duplicate is added to the compiled definition directly.
	a := def.IDMap["m.a"]
	a.Transitions["GO"] = append(a.Transitions["GO"], &TransitionDefinition{Target: "m.c", TargetState: def.IDMap["m.c"]})
	issues := NewVisualizer(def).Validate()
	if len(issues) == 0 {
		t.Fatalf("expected lint issues for dead-end states and duplicate unconditional transitions")
	}
	foundDuplicate := false
	for _, issue := range issues {
		if containsSubstring(issue, "unconditional transitions") {
			foundDuplicate = true
		}
	}
	if !foundDuplicate {
		t.Fatalf("expected a duplicate-unconditional-transition issue, got %#v", issues)
	}
}

func containsSubstring(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
