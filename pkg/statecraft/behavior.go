package statecraft

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// RequiredContexter is implemented by any behavior that wants its context
// requirements checked before invocation. Behaviors that don't
// need any particular context key simply don't implement it.
type RequiredContexter interface {
	RequiredContext() map[string]reflect.Type
}

// Guard decides whether a transition alternative is taken.
type Guard interface {
	Check(ctx Context, evt Event) (bool, error)
}

// GuardFunc adapts a function to Guard.
type GuardFunc func(ctx Context, evt Event) (bool, error)

func (f GuardFunc) Check(ctx Context, evt Event) (bool, error) { return f(ctx, evt) }

// Action performs a side effect or context mutation during a transition,
// entry, or exit.
type Action interface {
	Run(ctx Context, evt Event) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx Context, evt Event) error

func (f ActionFunc) Run(ctx Context, evt Event) error { return f(ctx, evt) }

// Calculator derives a value and writes it into the context ahead of a
// transition's actions; unlike Action it is meant to be pure and
// is always run before Actions regardless of declaration order.
type Calculator interface {
	Calculate(ctx Context, evt Event) (any, error)
}

// CalculatorFunc adapts a function to Calculator.
type CalculatorFunc func(ctx Context, evt Event) (any, error)

func (f CalculatorFunc) Calculate(ctx Context, evt Event) (any, error) { return f(ctx, evt) }

// EventClass resolves an event type name to a concrete, possibly
// payload-validated Event at the moment it is sent.
type EventClass interface {
	EventType() string
}

// Result computes the payload a FINAL state reports to its parent's onDone
// transition.
type Result interface {
	Compute(ctx Context) (any, error)
}

// ResultFunc adapts a function to Result.
type ResultFunc func(ctx Context) (any, error)

func (f ResultFunc) Compute(ctx Context) (any, error) { return f(ctx) }

// BehaviorRegistry resolves BehaviorRef values to concrete callables. Names
// are registered once at startup; "name:arg" references are parsed lazily
// and memoized per (name, arg) pair so repeated transitions sharing a
// parameterized guard don't re-parse the argument string on every step.
type BehaviorRegistry struct {
	mu          sync.RWMutex
	guards      map[string]func(arg string) (Guard, error)
	actions     map[string]func(arg string) (Action, error)
	calculators map[string]func(arg string) (Calculator, error)
	results     map[string]func(arg string) (Result, error)
	events      map[string]EventClass

	validationGuards map[string]bool // names flagged via RegisterValidationGuard

	guardCache      map[string]Guard
	actionCache     map[string]Action
	calculatorCache map[string]Calculator
	resultCache     map[string]Result
}

// NewBehaviorRegistry returns an empty registry ready for Register* calls.
func NewBehaviorRegistry() *BehaviorRegistry {
	return &BehaviorRegistry{
		guards:           make(map[string]func(arg string) (Guard, error)),
		actions:          make(map[string]func(arg string) (Action, error)),
		calculators:      make(map[string]func(arg string) (Calculator, error)),
		results:          make(map[string]func(arg string) (Result, error)),
		events:           make(map[string]EventClass),
		validationGuards: make(map[string]bool),
		guardCache:       make(map[string]Guard),
		actionCache:      make(map[string]Action),
		calculatorCache:  make(map[string]Calculator),
		resultCache:      make(map[string]Result),
	}
}

// RegisterGuard registers a parameterless guard by name.
func (r *BehaviorRegistry) RegisterGuard(name string, g Guard) {
	r.RegisterParameterizedGuard(name, func(string) (Guard, error) { return g, nil })
}

// RegisterParameterizedGuard registers a guard factory invoked with the
// "arg" portion of a "name:arg" reference (empty string when bare).
func (r *BehaviorRegistry) RegisterParameterizedGuard(name string, factory func(arg string) (Guard, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards[name] = factory
}

// RegisterValidationGuard marks a guard name as a "validation guard": its
// failure is surfaced to the caller as a ValidationError field rather than
// being silently treated as "alternative not taken".
func (r *BehaviorRegistry) RegisterValidationGuard(name string, g Guard) {
	r.RegisterGuard(name, g)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validationGuards[name] = true
}

// IsValidationGuard reports whether name was registered via
// RegisterValidationGuard.
func (r *BehaviorRegistry) IsValidationGuard(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validationGuards[name]
}

// RegisterAction registers a parameterless action by name.
func (r *BehaviorRegistry) RegisterAction(name string, a Action) {
	r.RegisterParameterizedAction(name, func(string) (Action, error) { return a, nil })
}

// RegisterParameterizedAction registers an action factory.
func (r *BehaviorRegistry) RegisterParameterizedAction(name string, factory func(arg string) (Action, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[name] = factory
}

// RegisterCalculator registers a parameterless calculator by name.
func (r *BehaviorRegistry) RegisterCalculator(name string, c Calculator) {
	r.RegisterParameterizedCalculator(name, func(string) (Calculator, error) { return c, nil })
}

// RegisterParameterizedCalculator registers a calculator factory.
func (r *BehaviorRegistry) RegisterParameterizedCalculator(name string, factory func(arg string) (Calculator, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculators[name] = factory
}

// RegisterResult registers a named result computer.
func (r *BehaviorRegistry) RegisterResult(name string, res Result) {
	r.RegisterParameterizedResult(name, func(string) (Result, error) { return res, nil })
}

// RegisterParameterizedResult registers a result factory.
func (r *BehaviorRegistry) RegisterParameterizedResult(name string, factory func(arg string) (Result, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[name] = factory
}

// RegisterEvent registers a named EventClass, allowing config to reference
// typed events by name instead of a bare string.
func (r *BehaviorRegistry) RegisterEvent(name string, ec EventClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[name] = ec
}

// ParseBehaviorRef splits a "name:arg" reference into its components. Only
// the first colon is significant, so arguments may themselves contain
// colons (e.g. "checkChannel:direct_cash:v2").
func ParseBehaviorRef(raw string) BehaviorRef {
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		return BehaviorRef{Name: raw[:idx], Arg: raw[idx+1:]}
	}
	return BehaviorRef{Name: raw}
}

func cacheKey(ref BehaviorRef) string {
	if ref.Arg == "" {
		return ref.Name
	}
	return ref.Name + ":" + ref.Arg
}

// ResolveGuard resolves a BehaviorRef to a Guard, consulting and populating
// the memoization cache.
func (r *BehaviorRegistry) ResolveGuard(ref BehaviorRef) (Guard, error) {
	key := cacheKey(ref)
	r.mu.RLock()
	if g, ok := r.guardCache[key]; ok {
		r.mu.RUnlock()
		return g, nil
	}
	factory, ok := r.guards[ref.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, &BehaviorNotFound{Kind: "guard", Name: ref.Name}
	}
	g, err := factory(ref.Arg)
	if err != nil {
		return nil, fmt.Errorf("statecraft: constructing guard %q: %w", key, err)
	}
	r.mu.Lock()
	r.guardCache[key] = g
	r.mu.Unlock()
	return g, nil
}

// ResolveAction resolves a BehaviorRef to an Action.
func (r *BehaviorRegistry) ResolveAction(ref BehaviorRef) (Action, error) {
	key := cacheKey(ref)
	r.mu.RLock()
	if a, ok := r.actionCache[key]; ok {
		r.mu.RUnlock()
		return a, nil
	}
	factory, ok := r.actions[ref.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, &BehaviorNotFound{Kind: "action", Name: ref.Name}
	}
	a, err := factory(ref.Arg)
	if err != nil {
		return nil, fmt.Errorf("statecraft: constructing action %q: %w", key, err)
	}
	r.mu.Lock()
	r.actionCache[key] = a
	r.mu.Unlock()
	return a, nil
}

// ResolveCalculator resolves a BehaviorRef to a Calculator.
func (r *BehaviorRegistry) ResolveCalculator(ref BehaviorRef) (Calculator, error) {
	key := cacheKey(ref)
	r.mu.RLock()
	if c, ok := r.calculatorCache[key]; ok {
		r.mu.RUnlock()
		return c, nil
	}
	factory, ok := r.calculators[ref.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, &BehaviorNotFound{Kind: "calculator", Name: ref.Name}
	}
	c, err := factory(ref.Arg)
	if err != nil {
		return nil, fmt.Errorf("statecraft: constructing calculator %q: %w", key, err)
	}
	r.mu.Lock()
	r.calculatorCache[key] = c
	r.mu.Unlock()
	return c, nil
}

// ResolveResult resolves a BehaviorRef to a Result.
func (r *BehaviorRegistry) ResolveResult(ref BehaviorRef) (Result, error) {
	key := cacheKey(ref)
	r.mu.RLock()
	if res, ok := r.resultCache[key]; ok {
		r.mu.RUnlock()
		return res, nil
	}
	factory, ok := r.results[ref.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, &BehaviorNotFound{Kind: "result", Name: ref.Name}
	}
	res, err := factory(ref.Arg)
	if err != nil {
		return nil, fmt.Errorf("statecraft: constructing result %q: %w", key, err)
	}
	r.mu.Lock()
	r.resultCache[key] = res
	r.mu.Unlock()
	return res, nil
}

// ResolveEventType resolves a bare event type string or a registered
// EventClass name to its canonical event type string.
func (r *BehaviorRegistry) ResolveEventType(nameOrType string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ec, ok := r.events[nameOrType]; ok {
		return ec.EventType()
	}
	return nameOrType
}

// CheckRequiredContext verifies a behavior's declared context requirements
// before it is invoked, returning *MissingContext on the first violation.
// Exported so pkg/statecraft/engine can call it from outside this package.
func CheckRequiredContext(behaviorName string, b any, ctx Context) error {
	rc, ok := b.(RequiredContexter)
	if !ok {
		return nil
	}
	for key, typ := range rc.RequiredContext() {
		val, present := ctx.Get(key)
		if !present {
			return &MissingContext{Behavior: behaviorName, Key: key, Reason: "required field absent"}
		}
		if typ != nil && reflect.TypeOf(val) != typ {
			return &MissingContext{
				Behavior: behaviorName,
				Key:      key,
				Reason:   fmt.Sprintf("expected %s, got %T", typ, val),
			}
		}
	}
	return nil
}

// Common guards and actions: AlwaysAllow/NeverAllow/DataFieldEquals/
// AndGuard/OrGuard/NotGuard and NoOpAction/ChainActions.

// AlwaysAllow is a Guard that always passes.
var AlwaysAllow Guard = GuardFunc(func(Context, Event) (bool, error) { return true, nil })

// NeverAllow is a Guard that always fails.
var NeverAllow Guard = GuardFunc(func(Context, Event) (bool, error) { return false, nil })

// DataFieldEquals returns a Guard that passes when ctx[key] == want.
func DataFieldEquals(key string, want any) Guard {
	return GuardFunc(func(ctx Context, _ Event) (bool, error) {
		v, ok := ctx.Get(key)
		return ok && v == want, nil
	})
}

// AndGuard passes only when every sub-guard passes.
func AndGuard(guards ...Guard) Guard {
	return GuardFunc(func(ctx Context, evt Event) (bool, error) {
		for _, g := range guards {
			ok, err := g.Check(ctx, evt)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// OrGuard passes when any sub-guard passes.
func OrGuard(guards ...Guard) Guard {
	return GuardFunc(func(ctx Context, evt Event) (bool, error) {
		for _, g := range guards {
			ok, err := g.Check(ctx, evt)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}

// NotGuard inverts a guard.
func NotGuard(g Guard) Guard {
	return GuardFunc(func(ctx Context, evt Event) (bool, error) {
		ok, err := g.Check(ctx, evt)
		return !ok, err
	})
}

// NoOpAction does nothing; useful as a placeholder in config-driven tests.
var NoOpAction Action = ActionFunc(func(Context, Event) error { return nil })

// ChainActions runs the given actions in order, stopping at the first error.
func ChainActions(actions ...Action) Action {
	return ActionFunc(func(ctx Context, evt Event) error {
		for _, a := range actions {
			if err := a.Run(ctx, evt); err != nil {
				return err
			}
		}
		return nil
	})
}
