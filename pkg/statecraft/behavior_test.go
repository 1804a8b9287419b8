package statecraft

import (
	"reflect"
	"testing"
)

func TestBehaviorRegistryResolvesAndMemoizesGuards(t *testing.T) {
	reg := NewBehaviorRegistry()
	calls := 0
	reg.RegisterParameterizedGuard("checkChannel", func(arg string) (Guard, error) {
		calls++
		want := arg
		return GuardFunc(func(ctx Context, _ Event) (bool, error) {
			v, _ := ctx.Get("channel")
			return v == want, nil
		}), nil
	})

	ref := ParseBehaviorRef("checkChannel:direct_cash")
	g1, err := reg.ResolveGuard(ref)
	if err != nil {
		t.Fatalf("ResolveGuard: %v", err)
	}
	g2, err := reg.ResolveGuard(ref)
	if err != nil {
		t.Fatalf("ResolveGuard (cached): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the guard factory to run once (memoized), ran %d times", calls)
	}

	ctx := NewMapContext(map[string]any{"channel": "direct_cash"})
	ok, err := g1.Check(ctx, Event{})
	if err != nil || !ok {
		t.Fatalf("expected resolved guard to pass, ok=%v err=%v", ok, err)
	}
	ok2, _ := g2.Check(ctx, Event{})
	if !ok2 {
		t.Fatalf("expected cached guard instance to behave identically")
	}
}

func TestBehaviorRegistryUnknownNameReturnsBehaviorNotFound(t *testing.T) {
	reg := NewBehaviorRegistry()
	_, err := reg.ResolveGuard(BehaviorRef{Name: "doesNotExist"})
	if err == nil {
		t.Fatalf("expected an error for an unregistered guard")
	}
	if _, ok := err.(*BehaviorNotFound); !ok {
		t.Fatalf("expected *BehaviorNotFound, got %T: %v", err, err)
	}
}

func TestRegisterValidationGuardMarksNameAsValidation(t *testing.T) {
	reg := NewBehaviorRegistry()
	reg.RegisterValidationGuard("isPositive", AlwaysAllow)
	reg.RegisterGuard("isEven", AlwaysAllow)

	if !reg.IsValidationGuard("isPositive") {
		t.Fatalf("expected isPositive to be flagged as a validation guard")
	}
	if reg.IsValidationGuard("isEven") {
		t.Fatalf("expected isEven not to be flagged as a validation guard")
	}
}

func TestAndOrNotGuardCombinators(t *testing.T) {
	ctx := NewMapContext(map[string]any{"x": "1"})
	evt := Event{}

	and := AndGuard(AlwaysAllow, DataFieldEquals("x", "1"))
	if ok, err := and.Check(ctx, evt); err != nil || !ok {
		t.Fatalf("expected AndGuard to pass, ok=%v err=%v", ok, err)
	}

	or := OrGuard(NeverAllow, DataFieldEquals("x", "1"))
	if ok, err := or.Check(ctx, evt); err != nil || !ok {
		t.Fatalf("expected OrGuard to pass via its second guard, ok=%v err=%v", ok, err)
	}

	not := NotGuard(NeverAllow)
	if ok, err := not.Check(ctx, evt); err != nil || !ok {
		t.Fatalf("expected NotGuard(NeverAllow) to pass, ok=%v err=%v", ok, err)
	}
}

func TestCheckRequiredContextReportsMissingKey(t *testing.T) {
	behavior := requiredContextStub{required: map[string]reflect.Type{"amount": nil}}
	ctx := NewMapContext(nil)

	err := CheckRequiredContext("needsAmount", behavior, ctx)
	if err == nil {
		t.Fatalf("expected an error for a missing required key")
	}
	if _, ok := err.(*MissingContext); !ok {
		t.Fatalf("expected *MissingContext, got %T: %v", err, err)
	}

	ctx.Set("amount", 5)
	if err := CheckRequiredContext("needsAmount", behavior, ctx); err != nil {
		t.Fatalf("expected no error once the key is present: %v", err)
	}
}

type requiredContextStub struct {
	required map[string]reflect.Type
}

func (r requiredContextStub) RequiredContext() map[string]reflect.Type {
	return r.required
}
