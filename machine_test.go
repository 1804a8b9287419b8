package statecraft_test

import (
	"context"
	"testing"

	"github.com/statecraftio/statecraft"
	core "github.com/statecraftio/statecraft/pkg/statecraft"
	"github.com/statecraftio/statecraft/pkg/statecraft/engine"
	"github.com/statecraftio/statecraft/pkg/statecraft/eventlog"
	"github.com/statecraftio/statecraft/pkg/statecraft/lock"
	"github.com/statecraftio/statecraft/pkg/statecraft/restore"
)

func compileDoor(t *testing.T) *core.MachineDefinition {
	t.Helper()
	raw := core.RawConfig{
		"id":      "door",
		"initial": "closed",
		"states": core.RawConfig{
			"closed": core.RawConfig{"on": core.RawConfig{"OPEN": "open"}},
			"open":   core.RawConfig{"on": core.RawConfig{"CLOSE": "closed"}},
		},
	}
	def, err := core.Compile(raw, core.NewBehaviorRegistry())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return def
}

func newTestMachine(t *testing.T) *statecraft.Machine {
	t.Helper()
	def := compileDoor(t)
	store := eventlog.NewMemoryStore()
	restorer := restore.New(store, nil)
	return statecraft.NewMachine(def, engine.New(def), store, restorer, statecraft.WithGate(lock.NewMemoryGate(lock.DefaultTimeout)))
}

func TestMachineSendFirstEventStartsFromInitialState(t *testing.T) {
	m := newTestMachine(t)
	state, err := m.Send(context.Background(), "instance-1", core.Event{Type: "OPEN"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !state.Matches("door.open") {
		t.Fatalf("expected door.open, got %#v", state.Value)
	}
}

func TestMachineSendPersistsAndRestoresAcrossCalls(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	if _, err := m.Send(ctx, "instance-1", core.Event{Type: "OPEN"}); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	state, err := m.Send(ctx, "instance-1", core.Event{Type: "CLOSE"})
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if !state.Matches("door.closed") {
		t.Fatalf("expected door.closed after restoring prior history, got %#v", state.Value)
	}
}

func TestMachineSendIsolatesDistinctRootEventIDs(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	if _, err := m.Send(ctx, "instance-1", core.Event{Type: "OPEN"}); err != nil {
		t.Fatalf("Send instance-1: %v", err)
	}
	state, err := m.Send(ctx, "instance-2", core.Event{Type: "OPEN"})
	if err != nil {
		t.Fatalf("Send instance-2: %v", err)
	}
	if !state.Matches("door.open") {
		t.Fatalf("expected a fresh instance-2 to also reach door.open, got %#v", state.Value)
	}
}

func TestMachineSendSurfacesValidationGuardFailure(t *testing.T) {
	reg := core.NewBehaviorRegistry()
	reg.RegisterValidationGuard("isPositive", core.GuardFunc(func(ctx core.Context, evt core.Event) (bool, error) {
		amount, _ := evt.Payload["amount"].(float64)
		return amount > 0, nil
	}))
	raw := core.RawConfig{
		"id":      "order",
		"initial": "open",
		"states": core.RawConfig{
			"open": core.RawConfig{
				"on": core.RawConfig{"SUBMIT": core.RawConfig{"target": "accepted", "guards": "isPositive"}},
			},
			"accepted": core.RawConfig{},
		},
	}
	def, err := core.Compile(raw, reg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	store := eventlog.NewMemoryStore()
	m := statecraft.NewMachine(def, engine.New(def), store, restore.New(store, nil))

	_, err = m.Send(context.Background(), "order-1", core.Event{Type: "SUBMIT", Payload: map[string]any{"amount": -1.0}})
	if err == nil {
		t.Fatalf("expected a ValidationError for a negative amount")
	}
	verr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("expected *core.ValidationError, got %T: %v", err, err)
	}
	if _, ok := verr.Fields["SUBMIT"]; !ok {
		t.Fatalf("expected SUBMIT in ValidationError.Fields, got %#v", verr.Fields)
	}
}

func TestMachineSendDoesNotResurfaceStaleValidationFailureOnLaterUnrelatedSend(t *testing.T) {
	reg := core.NewBehaviorRegistry()
	reg.RegisterValidationGuard("isPositive", core.GuardFunc(func(ctx core.Context, evt core.Event) (bool, error) {
		amount, _ := evt.Payload["amount"].(float64)
		return amount > 0, nil
	}))
	raw := core.RawConfig{
		"id":      "order",
		"initial": "open",
		"states": core.RawConfig{
			"open": core.RawConfig{
				"on": core.RawConfig{
					"SUBMIT": core.RawConfig{"target": "accepted", "guards": "isPositive"},
					"PING":   core.RawConfig{"target": "open"},
				},
			},
			"accepted": core.RawConfig{},
		},
	}
	def, err := core.Compile(raw, reg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	store := eventlog.NewMemoryStore()
	m := statecraft.NewMachine(def, engine.New(def), store, restore.New(store, nil))
	ctx := context.Background()

	if _, err := m.Send(ctx, "order-1", core.Event{Type: "SUBMIT", Payload: map[string]any{"amount": -1.0}}); err == nil {
		t.Fatalf("expected the first SUBMIT to fail validation")
	}

	if _, err := m.Send(ctx, "order-1", core.Event{Type: "PING"}); err != nil {
		t.Fatalf("expected a later, unrelated event to succeed without re-surfacing the stale guard failure, got %v", err)
	}
}
